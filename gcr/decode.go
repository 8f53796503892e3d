package gcr

import (
	"fmt"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/geometry"
)

const unsetSlot = 0x99

// 4-to-5 GCR encoding of each nibble.
var nibbleEncoding = [16]byte{
	0x0a, 0x0b, 0x12, 0x13, 0x0e, 0x0f, 0x16, 0x17,
	0x09, 0x19, 0x1a, 0x1b, 0x0d, 0x1d, 0x1e, 0x15,
}

// BranchOffsets are the two relative branch operands taken from the drive
// code: one for zones whose read loop lacks a padding NOP and one for the zone
// that has it.
type BranchOffsets struct {
	WithoutNop byte
	WithNop    byte
}

// DecodeTable maps raw bytes read from the disk to nibbles (and a few
// constants) for the drive-side decoder.
type DecodeTable [256]byte

type tableBuilder struct {
	table DecodeTable
}

// put stores `value` in slot `pos`. A slot may only be rewritten with the same
// value or with one differing in bit 4, which is the don't-care bit of the
// 0000eeee group.
func (b *tableBuilder) put(pos byte, value byte) {
	current := b.table[pos]
	if current != unsetSlot && current != value && current != value^0x10 {
		spindle.Internalf(
			"GCR decode table conflict at $%02x: have $%02x, writing $%02x",
			pos,
			current,
			value)
	}
	b.table[pos] = value
}

// BuildDecodeTable builds the 256-entry GCR decoding table. Conflicting writes
// are internal errors and panic.
func BuildDecodeTable(branches BranchOffsets) DecodeTable {
	b := tableBuilder{}
	for i := range b.table {
		b.table[i] = unsetSlot
	}

	for i := byte(0); i < 16; i++ {
		enc := nibbleEncoding[i]

		// aaaaa000 at offset 00
		b.put(enc<<3, i<<4)

		// bb001bbb at offset 00
		b.put(enc>>2|enc<<6|8, i)

		// 000ccccc at offset 00
		b.put(enc, i<<4)

		// ddddd000 at offset 01
		b.put((enc<<3)+1, i)

		// 0000eeee at offset 79
		b.put((enc>>1)+0x79, (i^1)<<4)

		// 0efffff0 at offset 40
		b.put((enc<<1)+0x40, i)
		b.put((enc<<1)+0x80, i|0x10)

		// ggg000gg at offset 00
		b.put(enc>>3|enc<<5, i<<4)

		// 000hhhhh at offset 20
		b.put(enc+0x20, i)
	}

	// 0000eeee special case
	b.put(0x0f+0x79, 0xe0)

	zones := geometry.Zones()
	if len(zones) != 4 {
		panic(fmt.Errorf("the drive code supports 4 zones, got %d", len(zones)))
	}
	for _, zone := range zones {
		b.put(0x44+byte(zone.Index), byte(zone.BitRateCode))
		b.put(0xc4+byte(zone.Index), byte(zone.SectorsPerTrack))
	}

	// zone branch offsets
	b.put(0xbd+0, branches.WithoutNop)
	b.put(0xbd+1, branches.WithoutNop)
	b.put(0xbd+2, branches.WithoutNop)
	b.put(0xbd+3, branches.WithNop)

	// bit-scrambling table
	b.put(0x1f+0x0, 0x7f)
	b.put(0x1f+0x1, 0x76)
	b.put(0x1f+0x8, 0x76)
	b.put(0x1f+0x9, 0x7f)

	// sector number
	b.put(0, 3)

	return b.table
}
