package crunch

import (
	"fmt"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/disk"
	"github.com/dargueta/spindle/gcr"
)

// Memory boundaries the runtime handles specially. Data destined for
// $D000-$DFFF lives under the I/O area and has to be written with shadow RAM
// enabled.
const (
	shadowStart = 0xd000
	shadowEnd   = 0xe000
)

// Loader page offsets patched to switch shadow RAM on and off, in the order
// the runtime lists them.
const (
	patchOffset1 = iota
	patchOffset2
	patchOffset3
)

// Chunk is a contiguous block of data to be loaded at LoadAddress.
type Chunk struct {
	Name        string
	LoadAddress uint16
	Data        []byte
}

// Options controls how a job is compressed.
type Options struct {
	// LoaderPage is the page where the host-side loader resides.
	LoaderPage byte
	// EntryVector, if nonzero, is left for the host to jump to once the job
	// has been loaded.
	EntryVector uint16
	// Squeeze disables moving to a fresh track ahead of large jobs.
	Squeeze bool
	// PatchOffsets are the loader page offsets poked to toggle shadow RAM.
	PatchOffsets [3]byte
	Logger       *spindle.Logger
}

// BlockAllocator hands out sectors to the packer. It's implemented by
// disk.Cursor.
type BlockAllocator interface {
	AllocateBlock(newJob, forceBoundary, forceTrack bool, jobID byte) (disk.Block, error)
	SectorsLeftOnTrack() int
	Poke(ref disk.Ref, value byte)
}

type packer struct {
	alloc   BlockAllocator
	opts    Options
	log     *spindle.Logger
	regions []*region
	// numNormal is the number of regions outside the shadow area. They come
	// first in `regions`.
	numNormal     int
	shadowEnabled bool
	// indexFull is set when the next chain head wouldn't fit in the
	// continuation buffer, so the next sector has to start a new batch.
	indexFull bool
	// idx is the index sector of the current batch. Chain head records and
	// loader pokes go here.
	idx sectorBuffer
	buf sectorBuffer
}

// splitChunks breaks the chunks into regions that don't straddle the shadow
// area and parses each one. Regions outside the shadow area come first. It
// returns the total size of the parsed items.
func (p *packer) splitChunks(chunks []Chunk) int {
	var normal, shadow []*region
	packedSize := 0

	for _, chunk := range chunks {
		data := chunk.Data
		address := int(chunk.LoadAddress)
		for len(data) > 0 {
			n := len(data)
			if address < shadowStart && address+n > shadowStart {
				n = shadowStart - address
			} else if address < shadowEnd && address+n > shadowEnd {
				n = shadowEnd - address
			}

			r := &region{
				name:        chunk.Name,
				data:        data[:n],
				loadAddress: address,
			}
			var cost int
			r.items, cost = Parse(r.data)
			r.left = len(r.items)
			for i := range r.items {
				packedSize += r.items[i].Size()
			}

			byteCost := (cost + 7) / 8
			p.log.Logf(
				1,
				"%04x-%04x \"%s\": %d bytes crunched to %d, ratio %.02f%%.",
				address,
				address+n-1,
				chunk.Name,
				n,
				byteCost,
				100.0*float64(byteCost)/float64(n))

			if address&0xf000 == shadowStart {
				shadow = append(shadow, r)
			} else {
				normal = append(normal, r)
			}
			data = data[n:]
			address += n
		}
	}

	p.numNormal = len(normal)
	p.regions = append(normal, shadow...)
	return packedSize
}

func (p *packer) hasShadow() bool {
	return len(p.regions) > p.numNormal
}

func (p *packer) enableShadowPokes(b *sectorBuffer) {
	page := p.opts.LoaderPage
	offsets := p.opts.PatchOffsets
	loaderPoke(b, offsets[patchOffset3], 0xc6, false, page)
	loaderPoke(b, offsets[patchOffset1], 0xe6, true, page)
	loaderPoke(b, offsets[patchOffset2], 0xc6, true, page)
}

func (p *packer) disableShadowPokes(b *sectorBuffer) {
	page := p.opts.LoaderPage
	offsets := p.opts.PatchOffsets
	loaderPoke(b, offsets[patchOffset3], 0x80, true, page)
	loaderPoke(b, offsets[patchOffset1], 0x80, true, page)
	loaderPoke(b, offsets[patchOffset2], 0x80, true, page)
}

// fitsInIndex reports whether everything that remains, including the shadow
// RAM pokes and the entry vector, can go into the index sector.
func (p *packer) fitsInIndex(first int) bool {
	idxSize := p.idx.used()
	size := 0
	if p.hasShadow() && !p.shadowEnabled {
		size += 16 + 15 // turn shadow RAM on and off
	} else if p.shadowEnabled {
		size += 15 // turn shadow RAM off
	}
	if p.opts.EntryVector != 0 {
		size += 4
	}
	idxSize += size
	for i := first; i < len(p.regions) && size <= p.idx.free; i++ {
		size += remainingSize(p.regions[i], p.idx.free-size, &idxSize)
	}
	return size <= p.idx.free && idxSize <= contBufferSize
}

// finishInIndex stores all remaining data in the index sector, followed by
// the control records that end the job.
func (p *packer) finishInIndex(first int) {
	var units [256]byte
	upos := 0
	for _, r := range p.regions[first:] {
		if r.left == 0 {
			continue
		}
		n, _ := p.generateUnit(units[upos:], len(units)-upos, r)
		if n == 0 || r.left != 0 {
			spindle.Internalf("remaining data of %q doesn't fit in one unit", r.name)
		}
		for j := 0; j < n; j++ {
			units[upos] = gcr.Scramble(units[upos])
			upos++
		}
		units[upos] = byte(n)
		upos++
	}

	if p.hasShadow() {
		// Disable shadow RAM at the end of this last batch, after the chain
		// heads.
		p.disableShadowPokes(&p.idx)
	}
	if p.opts.EntryVector != 0 {
		p.idx.push(3)
		p.idx.push(gcr.Scramble(0x4c)) // jmp
		p.idx.push(gcr.Scramble(byte(p.opts.EntryVector)))
		p.idx.push(gcr.Scramble(byte(p.opts.EntryVector >> 8)))
	}
	if p.hasShadow() && !p.shadowEnabled {
		// Enabling shadow RAM in the final sector isn't postponed, so it
		// happens before the operations above.
		p.enableShadowPokes(&p.idx)
	}
	if p.idx.used() > contBufferSize {
		spindle.Internalf("continuation buffer overflow (%d bytes)", p.idx.used())
	}
	for i := upos - 1; i >= 0; i-- {
		p.idx.push(units[i])
	}
}

// CompressJob crunches the chunks of one job and stores them in sectors
// granted by `alloc`. It returns the number of sectors used.
//
// Each region is emitted from its end towards its start, because the runtime
// decrunches backwards. Chain heads and loader pokes of a batch are collected
// in the batch's index sector, which is the first sector of the batch.
func CompressJob(chunks []Chunk, alloc BlockAllocator, jobID byte, opts Options) (int, error) {
	totalIn := 0
	for _, chunk := range chunks {
		totalIn += len(chunk.Data)
	}
	if totalIn == 0 {
		return 0, spindle.ErrBlankJob.WithMessage(fmt.Sprintf("job %c has no data", jobID))
	}

	p := &packer{
		alloc: alloc,
		opts:  opts,
		log:   opts.Logger,
	}
	packedSize := p.splitChunks(chunks)

	if opts.EntryVector != 0 {
		p.log.Logf(2, "Side entry at %04x", opts.EntryVector)
	}

	// Go to a new track if there's little space left, unless we're squeezing.
	approxSectors := (packedSize + 251) / disk.FirstBlockCapacity
	forceTrack := !opts.Squeeze && approxSectors > 6 && alloc.SectorsLeftOnTrack() < 4

	block, err := alloc.AllocateBlock(true, false, forceTrack, jobID)
	if err != nil {
		return 0, err
	}
	totalBlocks := 1
	p.idx = sectorBuffer{block: block, free: block.Capacity}

	var units [256]byte
	first := 0
	for {
		if p.fitsInIndex(first) {
			p.log.Logf(4, "Remaining data fits inside index sector.")
			p.finishInIndex(first)
			break
		}

		// Force a new boundary if too many chain heads have piled up, or if
		// only shadow regions are left but shadow RAM isn't enabled yet.
		forceBoundary := p.indexFull || p.idx.used() >= contBufferSize ||
			(first >= p.numNormal && !p.shadowEnabled)

		block, err := alloc.AllocateBlock(false, forceBoundary, false, jobID)
		if err != nil {
			return totalBlocks, err
		}
		totalBlocks++
		p.indexFull = false

		if block.NewBatch {
			p.log.Logf(4, "New sector batch.")

			// Break all open chains so the host can work on them while the
			// drive moves on. New chain heads are added as they come up.
			for _, r := range p.regions[first:] {
				r.hasCont = false
			}

			if p.hasShadow() && !p.shadowEnabled {
				// This goes into the old index sector. It isn't postponed, so
				// shadow data can follow it in the same sector.
				p.enableShadowPokes(&p.idx)
				p.shadowEnabled = true
			}

			// The rest of the old index sector takes crunched data, while new
			// chain heads go into the new index sector.
			p.buf = p.idx
			p.idx = sectorBuffer{block: block, free: block.Capacity}
		} else {
			p.buf = sectorBuffer{block: block, free: block.Capacity}
		}

		for p.buf.free > 0 && p.idx.used() <= contBufferSize {
			if p.buf.free < 5 {
				p.buf.free = 0
				break
			}

			for first < len(p.regions) && p.regions[first].left == 0 {
				first++
			}
			if first >= len(p.regions) || (first >= p.numNormal && !p.shadowEnabled) {
				// A sector was allocated, but there's no more data that can
				// go in it.
				p.log.Logf(3, "Internal problem. %d bytes wasted.", p.buf.free)
				p.buf.free = 0
				break
			}
			r := p.regions[first]

			limit := p.buf.free
			if limit == disk.BlockCapacity {
				// A unit filling the whole sector needs no length byte.
				limit++
			}
			if p.idx.used()+chainHeadSize > contBufferSize && needsChainHead(limit, r) {
				p.log.Logf(4, "Continuation buffer full, %d bytes wasted.", p.buf.free)
				p.buf.free = 0
				p.indexFull = true
				break
			}
			n, tail := p.generateUnit(units[:], limit, r)
			if p.idx.used() > contBufferSize {
				spindle.Internalf("continuation buffer overflow (%d bytes)", p.idx.used())
			}

			if n == 0 {
				p.buf.free = 0
				break
			}
			if n == disk.BlockCapacity {
				if p.buf.free != n {
					spindle.Internalf("full-sector unit in a partially used sector")
				}
				p.buf.block.Data[0] |= 0x80
			} else {
				if n >= p.buf.free {
					spindle.Internalf("unit of %d bytes overflows %d free bytes", n, p.buf.free)
				}
				p.buf.push(byte(n))
			}
			for i := n - 1; i >= 0; i-- {
				p.buf.push(gcr.Scramble(units[i]))
			}

			if tail >= 0 {
				r.contRef = p.buf.block.Ref(p.buf.free + 3)
				r.hasCont = true
				r.contAddress = tail
			} else {
				r.hasCont = false
			}
		}
	}

	p.log.Logf(
		3,
		"%d bytes left in tail sector, and %d bytes in index sector.",
		p.buf.free,
		p.idx.free)
	p.log.Logf(
		2,
		"%d bytes crunched into %d blocks, effective compression ratio %d%%.",
		totalIn,
		totalBlocks,
		totalBlocks*100/((totalIn+253)/254))

	return totalBlocks, nil
}
