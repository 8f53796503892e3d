package disk_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/disk"
	"github.com/dargueta/spindle/geometry"
	st "github.com/dargueta/spindle/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestASCIIToPETSCII(t *testing.T) {
	tests := []struct {
		Input    byte
		Expected byte
	}{
		{'A', 'A'},
		{'0', '0'},
		{' ', ' '},
		{'a', 0xc1},
		{'z', 0xda},
		{'~', 0xde},
		{0x80, '?'},
		{0xff, '?'},
	}

	for _, test := range tests {
		assert.Equalf(
			t, test.Expected, disk.ASCIIToPETSCII(test.Input), "wrong conversion of $%02x", test.Input)
	}
}

func TestParseDirArt(t *testing.T) {
	art, err := disk.ParseDirArt(strings.NewReader("HELLO\r\nwo\rA VERY LONG LINE THAT GETS CUT\n\nLAST"))
	require.NoError(t, err)

	assert.Equal(t, []byte("HELLO"), art[0][:5])
	assert.EqualValues(t, 0xa0, art[0][5])
	assert.Equal(t, []byte{0xd7, 0xcf}, art[1][:2])
	assert.Equal(t, []byte("A VERY LONG LINE"), art[2][:])
	assert.EqualValues(t, 0xa0, art[3][0], "blank line")
	assert.Equal(t, []byte("LAST"), art[4][:4])
	assert.EqualValues(t, 0xa0, art[5][0])
}

func TestParseDirArtLineEndings(t *testing.T) {
	tests := []struct {
		Name   string
		Input  string
		Second string
	}{
		{"LF", "ONE\nTWO", "TWO"},
		{"CRLF", "ONE\r\nTWO", "TWO"},
		{"CR", "ONE\rTWO", "TWO"},
		{"trailing CR", "ONE\r", ""},
	}

	for _, test := range tests {
		t.Run(
			test.Name,
			func(t *testing.T) {
				art, err := disk.ParseDirArt(strings.NewReader(test.Input))
				require.NoError(t, err)
				assert.Equal(t, []byte("ONE"), art[0][:3])
				assert.EqualValues(t, 0xa0, art[0][3])
				assert.Equal(t, []byte(test.Second), art[1][:len(test.Second)])
				assert.EqualValues(t, 0xa0, art[1][len(test.Second)])
			},
		)
	}
}

func TestParseDirArtReadError(t *testing.T) {
	_, err := disk.ParseDirArt(iotest.ErrReader(errors.New("device not ready")))
	assert.ErrorIs(t, err, spindle.ErrIOFailed)
}

func TestParseDirArtTooLong(t *testing.T) {
	_, err := disk.ParseDirArt(strings.NewReader(strings.Repeat("X\n", disk.DirArtEntries)))
	assert.NoError(t, err)

	_, err = disk.ParseDirArt(strings.NewReader(strings.Repeat("X\n", disk.DirArtEntries+1)))
	assert.ErrorIs(t, err, spindle.ErrInvalidArgument)
}

func TestDirectoryBlocks(t *testing.T) {
	art, err := disk.ParseDirArt(strings.NewReader(strings.Repeat("ENTRY\n", 12)))
	require.NoError(t, err)

	rt := st.NewRuntime(t, 900)
	img, err := disk.New(disk.Options{ID: "uk", Branches: rt.Branches()})
	require.NoError(t, err)
	_, err = img.StoreLoader(rt, disk.LoaderOptions{
		DirArt:      art,
		ActiveEntry: 40,
		Placement:   testPlacement,
	})
	require.NoError(t, err)

	// Twelve entries take two blocks, the second one at 18/4.
	first := img.Sector(geometry.DirTrack, disk.SectorDirectory)
	assert.Equal(t, []byte{18, 4}, first[:2])
	second := img.Sector(geometry.DirTrack, 4)
	assert.Equal(t, []byte{0, 0xff}, second[:2])
	assert.True(t, img.IsUsed(geometry.DirTrack, 4))
	assert.False(t, img.IsUsed(geometry.DirTrack, 7))

	// Entries past the last one select the last one.
	assert.EqualValues(t, 0x80, first[2], "entry 0 is DEL")
	assert.EqualValues(t, 0x82, second[3*32+2], "entry 11 is PRG")
	assert.EqualValues(t, 4, second[3*32+2+28], "stage 1 block count")
	assert.EqualValues(t, 0, second[4*32+2], "no entry 12")

	// A long stage 1 spills into 18/15.
	assert.True(t, img.IsUsed(geometry.DirTrack, disk.SectorStage1Part4))
	assert.Equal(t, []byte{18, 15}, img.Sector(geometry.DirTrack, disk.SectorStage1Part3)[:2])
	assert.Equal(t, []byte{0, 900 - 3*254 + 1}, img.Sector(geometry.DirTrack, disk.SectorStage1Part4)[:2])
}

func TestLoadDirArtFromImage(t *testing.T) {
	art, err := disk.ParseDirArt(strings.NewReader(strings.Repeat("ENTRY\n", 12) + "THE END"))
	require.NoError(t, err)

	rt := st.NewRuntime(t, 600)
	img, err := disk.New(disk.Options{ID: "uk", Branches: rt.Branches()})
	require.NoError(t, err)
	_, err = img.StoreLoader(rt, disk.LoaderOptions{DirArt: art, Placement: testPlacement})
	require.NoError(t, err)

	var buffer bytes.Buffer
	_, err = img.WriteTo(&buffer)
	require.NoError(t, err)

	loaded, err := disk.LoadDirArt(buffer.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, art, loaded)
}

func TestLoadDirArtFromScreen(t *testing.T) {
	screen := append([]byte{0x00, 0x04}, bytes.Repeat([]byte{0x20}, 1000)...)
	copy(screen[2:], []byte{0x08, 0x05, 0x0c, 0x0c, 0x0f}) // "hello" in screen codes
	screen[2+40] = 0x81                                    // inverted "a"
	screen[2+40+1] = 0x31                                  // "1"
	screen[2+3*40] = 0x5b                                  // graphics character

	var logOutput bytes.Buffer
	art, err := disk.LoadDirArt(screen, spindle.NewLogger(&logOutput, 0))
	require.NoError(t, err)

	assert.Equal(t, []byte("HELLO"), art[0][:5])
	assert.EqualValues(t, ' ', art[0][5])
	assert.Equal(t, []byte("A1"), art[1][:2])
	assert.EqualValues(t, 0xa0, art[2][0], "blank row")
	assert.EqualValues(t, 0xdb, art[3][0])
	assert.EqualValues(t, 0xa0, art[25][0], "past the last row")
	assert.Contains(t, logOutput.String(), "Inverted screen codes")

	_, err = disk.LoadDirArt(screen[:500], nil)
	assert.ErrorIs(t, err, spindle.ErrInvalidArgument)
}

func TestLoadDirArtText(t *testing.T) {
	art, err := disk.LoadDirArt([]byte("FIRST\nSECOND\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("SECOND"), art[1][:6])
}
