package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadTrack(t *testing.T) {
	tests := []struct {
		Name     string
		Track    int
		Used     []int
		Expected string
	}{
		{"21 sectors, step 3 adjusted", 1, []int{0, 5, 10}, "1++++1++++1++++++++++"},
		{"18 sectors, step 4 adjusted", 25, []int{0, 1, 2, 3}, "1111++++++++++++++"},
		{"one sector", 31, []int{16}, "++++++++++++++++1"},
		{"full track", 20, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18}, "1111111111111111111"},
		{"empty track", 2, nil, "....................."},
	}

	for _, test := range tests {
		t.Run(
			test.Name,
			func(t *testing.T) {
				img, err := New(Options{ID: "uk"})
				require.NoError(t, err)

				for _, sector := range test.Used {
					img.claim(test.Track, sector, '1')
					img.Sector(test.Track, sector)[1] = byte(sector + 1)
				}
				img.padTrack(test.Track)
				assert.Equal(t, test.Expected, img.TrackMap(test.Track))

				// Every padding sector is a copy of some data sector.
				for sector := 0; sector < img.geometry.TrackSize(test.Track); sector++ {
					if img.JobAt(test.Track, sector) == jobPadding {
						assert.NotZerof(t, img.Sector(test.Track, sector)[1], "padding sector %d is blank", sector)
					}
				}
			},
		)
	}
}

func TestReorderSector(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	reorderSector(data)

	assert.EqualValues(t, 0, data[0])
	assert.EqualValues(t, 0xff, data[1])
	assert.EqualValues(t, 0x80, data[0x80])
	assert.EqualValues(t, 1, data[0xff])

	reorderSector(data)
	for i := range data {
		require.EqualValues(t, i, data[i])
	}
}

func TestTrack18LayoutMatchesReservations(t *testing.T) {
	assert.Equal(t, RoleBAM, Track18Layout[SectorBAM])
	assert.Equal(t, RoleGCRTable, Track18Layout[SectorGCRTable])
	assert.Equal(t, "stage 1", Track18Layout[SectorStage1Part2].String())
	for _, sector := range driveCodeSectors {
		role := Track18Layout[sector]
		assert.Containsf(
			t,
			[]Role{RoleDriveCode, RoleFlipCode, RoleSeekCode},
			role,
			"sector %d holds drive code but is marked %s",
			sector,
			role)
	}
	for block := 0; block < DirArtBlocks; block++ {
		assert.Equal(t, RoleDirectory, Track18Layout[SectorDirectory+3*block])
	}
}
