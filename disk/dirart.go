package disk

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/geometry"
)

const (
	// DirArtBlocks is the maximum number of directory sectors.
	DirArtBlocks = 6
	// DirArtEntries is the maximum number of directory entries.
	DirArtEntries     = DirArtBlocks * 8
	dirArtEntryLength = 16
	petsciiShiftSpace = 0xa0
)

// DirArt holds the file names shown in the directory listing, already
// converted to PETSCII. Unused entries are filled with shifted spaces.
type DirArt [DirArtEntries][dirArtEntryLength]byte

func blankDirArt() DirArt {
	var art DirArt
	for i := range art {
		for j := range art[i] {
			art[i][j] = petsciiShiftSpace
		}
	}
	return art
}

// DefaultDirArt is a single entry named "DEMO".
func DefaultDirArt() DirArt {
	art := blankDirArt()
	copy(art[0][:], "DEMO")
	return art
}

// ParseDirArt reads directory art from plain text, one entry per line. Lines
// longer than 16 characters are truncated. Both LF and CRLF line endings are
// accepted.
func ParseDirArt(r io.Reader) (DirArt, error) {
	art := blankDirArt()
	reader := bufio.NewReader(r)
	line, column := 0, 0

	for {
		ch, err := reader.ReadByte()
		if errors.Is(err, io.EOF) {
			return art, nil
		} else if err != nil {
			return art, spindle.ErrIOFailed.Wrap(err)
		}

		if ch == '\r' {
			line++
			column = 0
			next, err := reader.ReadByte()
			if err == nil && next != '\n' {
				if err = reader.UnreadByte(); err != nil {
					return art, spindle.ErrIOFailed.Wrap(err)
				}
			}
			continue
		} else if ch == '\n' {
			line++
			column = 0
			continue
		}

		if line >= DirArtEntries {
			return art, spindle.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("too many directory art lines, the limit is %d", DirArtEntries))
		}
		if column < dirArtEntryLength {
			art[line][column] = ASCIIToPETSCII(ch)
		}
		column++
	}
}

// LoadDirArt reads directory art in any of the supported formats: a disk
// image whose directory is copied, a dump of the screen matrix with a load
// address (the leftmost 16 columns of each row become an entry) or plain
// text as understood by ParseDirArt.
func LoadDirArt(data []byte, log *spindle.Logger) (DirArt, error) {
	g := geometry.New(false)
	bamOffset := g.Offset(geometry.DirTrack, SectorBAM)
	if len(data) >= g.Size() && data[bamOffset] == geometry.DirTrack {
		return dirArtFromImage(data, g)
	}
	if len(data) > 0 && data[0] == 0 {
		return dirArtFromScreen(data, log)
	}
	return ParseDirArt(bytes.NewReader(data))
}

func dirArtFromImage(data []byte, g geometry.Geometry) (DirArt, error) {
	art := blankDirArt()
	n := 0
	sector := int(data[g.Offset(geometry.DirTrack, SectorBAM)+1])

	for blocks := 0; blocks < g.TrackSize(geometry.DirTrack); blocks++ {
		if sector >= g.TrackSize(geometry.DirTrack) {
			return art, spindle.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("directory chain points at sector 18/%d", sector))
		}
		block := data[g.Offset(geometry.DirTrack, sector):]
		track := int(block[0])
		sector = int(block[1])

		for i := 0; i < 8; i++ {
			entry := block[i*32+2:]
			if entry[0] != 0 && n < DirArtEntries {
				copy(art[n][:], entry[3:3+dirArtEntryLength])
				n++
			}
		}
		if track != geometry.DirTrack || n >= DirArtEntries {
			break
		}
	}
	return art, nil
}

func dirArtFromScreen(data []byte, log *spindle.Logger) (DirArt, error) {
	const (
		rows    = 25
		columns = 40
	)
	art := blankDirArt()
	if len(data) < 2+rows*columns {
		return art, spindle.ErrInvalidArgument.WithMessage(
			"failed to detect directory art format")
	}
	screen := data[2:]

	warned := false
	for row := 0; row < rows; row++ {
		blank := true
		for i := 0; i < dirArtEntryLength; i++ {
			code := screen[row*columns+i]
			if code != 0x20 {
				blank = false
			}
			if code&0x80 != 0 {
				if !warned {
					log.Logf(0, "Warning: Inverted screen codes are not allowed in directory art.")
					warned = true
				}
				code &= 0x7f
			}
			art[row][i] = screenCodeToPETSCII(code)
		}
		if blank {
			for i := range art[row] {
				art[row][i] = petsciiShiftSpace
			}
		}
	}
	return art, nil
}

func screenCodeToPETSCII(code byte) byte {
	switch code & 0xe0 {
	case 0x00:
		return 0x40 | (code & 0x1f)
	case 0x20:
		return code
	case 0x40:
		return 0xc0 | (code & 0x1f)
	default:
		return 0xa0 | (code & 0x1f)
	}
}

// lastEntry returns the index of the last entry that isn't blank, or 0.
func (art *DirArt) lastEntry() int {
	last := 0
	for i := range art {
		if art[i][0] != petsciiShiftSpace {
			last = i
		}
	}
	return last
}

// ASCIIToPETSCII converts an ASCII character to PETSCII. Lowercase letters
// become the shifted (uppercase in the default charset) range; characters
// outside 7-bit ASCII become '?'.
func ASCIIToPETSCII(ch byte) byte {
	if ch&0x80 != 0 {
		return '?'
	} else if ch >= 0x60 {
		return 0xc0 | (ch & 0x1f)
	}
	return ch
}
