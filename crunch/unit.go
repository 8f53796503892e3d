package crunch

import (
	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/disk"
	"github.com/dargueta/spindle/gcr"
)

const (
	// contBufferSize is the size of the drive-side continuation buffer, which
	// receives the index records of a batch.
	contBufferSize = 0x50
	// unitHeaderSize covers the load address, the chain tail link and the
	// length byte.
	unitHeaderSize = 1 + 3
	// chainHeadSize is the size of a chain head record in the index buffer.
	chainHeadSize = 1 + 2
)

// region is a contiguous block of memory that doesn't straddle an I/O or
// shadow RAM boundary, together with its parse.
type region struct {
	name        string
	data        []byte
	loadAddress int
	items       []Item
	// left is the number of items not yet emitted. Items are emitted from the
	// end of the region towards its start.
	left int

	// contRef points at the tail link of the most recently emitted unit that
	// contained a copy item. A later unit can extend that chain by patching
	// the link, provided the drive hasn't moved on to another batch.
	contRef     disk.Ref
	hasCont     bool
	contAddress int
}

func (r *region) canExtendChain(head int) bool {
	return r.hasCont && r.contAddress-head <= MaxChainSpan
}

// sectorBuffer tracks the free part of a sector being filled from the top
// down. Free bytes are Data[1:free+1].
type sectorBuffer struct {
	block disk.Block
	free  int
}

func (b *sectorBuffer) push(value byte) {
	if b.free < 1 {
		spindle.Internalf("sector %d:%d overflowed", b.block.Track, b.block.Sector)
	}
	b.block.Data[b.free] = value
	b.free--
}

// used returns the number of bytes the buffer would occupy in the drive's
// continuation buffer.
func (b *sectorBuffer) used() int {
	return disk.BlockCapacity - b.free
}

// generateUnit serializes as many of the region's remaining items as fit in
// `limit` bytes into `dst`, not counting the length byte, and returns the
// number of bytes written along with the address of the first copy item in
// the unit, or -1 if there is none.
//
// If the unit contains copy items, its chain head is linked to the region's
// open chain when it is close enough, or else recorded in the index buffer.
func (p *packer) generateUnit(dst []byte, limit int, r *region) (int, int) {
	ipos, size := selectItems(limit, r)
	sizeLeft := limit - size
	if ipos == r.left || sizeLeft < 0 {
		return 0, -1
	}

	// Fill the leftover space with the tail of a preceding literal.
	extra := 0
	if sizeLeft >= 2 && ipos > 0 && r.items[ipos-1].Literal && r.items[ipos-1].Length >= 2 {
		extra = r.items[ipos-1].Length - 1
		if extra > sizeLeft-1 {
			extra = sizeLeft - 1
		}
		r.items[ipos-1].Length -= extra
		size += 1 + extra
	}

	extraAddress := r.items[ipos].Address - extra
	address := uint16(r.loadAddress + extraAddress)
	dst[0] = byte(address >> 8)
	dst[1] = byte(address)
	upos := 3 // skip the tail link

	if extra > 0 {
		dst[upos] = 0xc0 | byte(extra-1)
		upos++
		upos += copy(dst[upos:], r.data[extraAddress:extraAddress+extra])
	}

	head, tail := -1, -1
	for j := ipos; j < r.left; j++ {
		itm := &r.items[j]
		if itm.Literal {
			dst[upos] = 0xc0 | byte(itm.Length-1)
			upos++
			upos += copy(dst[upos:], r.data[itm.Address:itm.Address+itm.Length])
			continue
		}

		itemAddress := r.loadAddress + itm.Address
		if head >= 0 && itemAddress-head > MaxChainSpan {
			spindle.Internalf(
				"copy chain from $%04x to $%04x is too long", head, itemAddress)
		}
		head = itemAddress
		if tail < 0 {
			tail = itemAddress
		}
		if itm.Length == 2 {
			dst[upos] = byte(itm.Offset)
			upos++
		} else {
			dst[upos] = 0x80 | byte(itm.Length-3)<<2 | byte((itm.Offset-1)>>8)
			dst[upos+1] = byte(itm.Offset - 1)
			upos += 2
		}
	}

	if head >= 0 {
		if r.canExtendChain(head) {
			p.alloc.Poke(r.contRef, gcr.Scramble(byte(head)))
		} else {
			p.log.Logf(4, "Chain starting at %04x.", head)
			p.idx.push(2)
			p.idx.push(gcr.Scramble(byte(head)))
			p.idx.push(gcr.Scramble(byte(head >> 8)))
		}
	}

	if tail >= 0 {
		dst[2] = byte(tail)
	} else {
		dst[2] = 0
	}

	if p.log.Enabled(4) {
		last := &r.items[r.left-1]
		end := r.loadAddress + last.Address + last.Length
		onDisk := size
		if onDisk == 256 {
			onDisk = 255
		}
		p.log.Logf(
			4,
			"Unit at $%04x-$%04x (%d bytes), %d bytes on disk.",
			address,
			end-1,
			end-int(address),
			onDisk)
	}

	r.left = ipos
	if upos+1 != size {
		spindle.Internalf("unit size mismatch: wrote %d bytes, expected %d", upos+1, size)
	}
	return upos, tail
}

// selectItems picks the items of the next unit of `r` that fit in `limit`
// bytes. It returns the index of the first item picked, which is r.left if
// none fit, and the size of the unit without any extra literal bytes.
func selectItems(limit int, r *region) (int, int) {
	size := unitHeaderSize
	ipos := r.left - 1
	for ; ipos >= 0; ipos-- {
		itm := &r.items[ipos]
		n := itm.Size()
		if size+n > limit {
			break
		}
		size += n
		if itm.FarChain {
			// The chain would stretch too far; this item has to start the
			// unit.
			ipos--
			break
		}
	}
	return ipos + 1, size
}

// needsChainHead reports whether the next unit of `r` within `limit` bytes
// would add a chain head record to the index buffer. The region is left
// untouched.
func needsChainHead(limit int, r *region) bool {
	ipos, size := selectItems(limit, r)
	if ipos == r.left || size > limit {
		return false
	}
	for j := r.left - 1; j >= ipos; j-- {
		itm := &r.items[j]
		if !itm.Literal {
			return !r.canExtendChain(r.loadAddress + itm.Address)
		}
	}
	return false
}

// remainingSize estimates how many bytes the rest of the region needs if it
// were emitted as a single unit, giving up once `max` is exceeded. Chain head
// records needed are added to `idxSize`.
func remainingSize(r *region, max int, idxSize *int) int {
	if r.left == 0 {
		return 0
	}

	size := unitHeaderSize
	head := -1
	for j := 0; j < r.left && size <= max; j++ {
		itm := &r.items[j]
		size += itm.Size()
		if !itm.Literal {
			head = r.loadAddress + itm.Address
		}
		if itm.FarChain {
			// A single unit can't hold a broken chain.
			size = max + 1
		}
	}
	if head >= 0 && !r.canExtendChain(head) {
		size += chainHeadSize
		*idxSize += chainHeadSize
	}
	return size
}

// loaderPoke makes the host store `value` at `offset` within the loader page
// when the batch is processed. Postponed pokes happen after the batch's
// chains have been followed.
func loaderPoke(b *sectorBuffer, offset, value byte, postpone bool, loaderPage byte) {
	if postpone {
		// Units up to size 4 are postponed by the drive code.
		if b.free < 5 {
			spindle.Internalf("no room for postponed loader poke")
		}
		b.push(4)
		b.push(gcr.Scramble(0x01))  // 2-byte copy item, becomes operand
		b.push(gcr.Scramble(value)) // tail link, becomes opcode
	} else {
		if b.free < 6 {
			spindle.Internalf("no room for loader poke")
		}
		b.push(5)
		b.push(gcr.Scramble(value))
		b.push(gcr.Scramble(0xc0)) // literal, length 1
		b.push(gcr.Scramble(0x00))
	}
	b.push(gcr.Scramble(offset))
	b.push(gcr.Scramble(loaderPage))
}
