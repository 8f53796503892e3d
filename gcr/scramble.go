// Package gcr holds the byte-level tables shared by the image builder and the
// drive-resident runtime: the bit-scramble permutation applied to every
// transmitted byte, and the GCR decoding table stored on track 18.
package gcr

// Bit transmission order over the serial bus:
//
//	Data  Clock  Ends up at
//	/1    /3     1, 0
//	/0    /2     3, 2
//	/5    /4     5, 4
//	7     /6     7, 6
//
// A slash denotes an inverted line.
var scrambleTable = buildScrambleTable()

func buildScrambleTable() (table [256]byte) {
	for i := 0; i < 256; i++ {
		var b byte
		if i&0x01 == 0 {
			b |= 0x08
		}
		if i&0x02 == 0 {
			b |= 0x02
		}
		if i&0x04 == 0 {
			b |= 0x04
		}
		if i&0x08 == 0 {
			b |= 0x01
		}
		if i&0x10 == 0 {
			b |= 0x10
		}
		if i&0x20 == 0 {
			b |= 0x20
		}
		if i&0x40 == 0 {
			b |= 0x40
		}
		if i&0x80 != 0 {
			b |= 0x80
		}
		table[i] = b
	}
	return table
}

// Scramble returns `b` permuted into the order the host receives it in.
func Scramble(b byte) byte {
	return scrambleTable[b]
}

// ScrambleTable returns a copy of the whole permutation.
func ScrambleTable() [256]byte {
	return scrambleTable
}
