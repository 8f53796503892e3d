package testing

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/dargueta/spindle/disk"
	"github.com/dargueta/spindle/geometry"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// CreateRandomData returns `size` random bytes. It is guaranteed to either
// return a valid slice or fail the test and abort.
func CreateRandomData(size int, t *testing.T) []byte {
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoErrorf(t, err, "failed to generate %d random bytes", size)
	return data
}

// SerializeImage writes the image out and returns a stream over the result.
// Writes to the stream don't affect the image.
func SerializeImage(t *testing.T, img *disk.Image) io.ReadWriteSeeker {
	size := img.Geometry().Size()
	buffer := make([]byte, size)
	writer := bytewriter.New(buffer)

	n, err := img.WriteTo(writer)
	require.NoError(t, err, "failed to serialize image")
	require.EqualValues(t, size, n, "serialized image is the wrong size")
	return bytesextra.NewReadWriteSeeker(buffer)
}

// ReadSector reads one sector of a serialized image.
func ReadSector(
	t *testing.T, stream io.ReadSeeker, g geometry.Geometry, track, sector int,
) []byte {
	_, err := stream.Seek(int64(g.Offset(track, sector)), io.SeekStart)
	require.NoErrorf(t, err, "failed to seek to sector %d:%d", track, sector)

	data := make([]byte, geometry.SectorSize)
	n, err := io.ReadFull(stream, data)
	require.NoErrorf(t, err, "failed to read sector %d:%d", track, sector)
	assert.Equal(t, geometry.SectorSize, n)
	return data
}
