// Package geometry describes the track and sector layout of a 1541 disk.
//
// Tracks are numbered from 1. Sectors are numbered from 0 within a track. The
// number of sectors on a track depends on its zone: the outer tracks are
// longer and hold more sectors.
package geometry

import (
	_ "embed"
	"fmt"

	"github.com/gocarina/gocsv"
)

const (
	SectorSize         = 256
	DirTrack           = 18
	StandardTracks     = 35
	ExtendedTracks     = 40
	MaxSectorsPerTrack = 21
)

// Zone is a contiguous range of tracks sharing a sector count and bit rate.
type Zone struct {
	Index           int `csv:"zone"`
	FirstTrack      int `csv:"first_track"`
	LastTrack       int `csv:"last_track"`
	SectorsPerTrack int `csv:"sectors_per_track"`
	// BitRateCode is the value the drive code writes to the VIA to select the
	// zone's bit rate.
	BitRateCode int `csv:"bitrate_code"`
}

//go:embed zones.csv
var zonesRawCSV string
var zones []Zone

func init() {
	if err := gocsv.UnmarshalString(zonesRawCSV, &zones); err != nil {
		panic(fmt.Errorf("failed to decode zone table: %w", err))
	}

	nextTrack := 1
	for i, zone := range zones {
		if zone.Index != i || zone.FirstTrack != nextTrack || zone.LastTrack < zone.FirstTrack {
			panic(fmt.Errorf("zone table row %d is out of order: %+v", i+1, zone))
		}
		nextTrack = zone.LastTrack + 1
	}
	if nextTrack != ExtendedTracks+1 {
		panic(fmt.Errorf("zone table covers %d tracks, expected %d", nextTrack-1, ExtendedTracks))
	}
}

// Zones returns a copy of the zone table, outermost zone first.
func Zones() []Zone {
	result := make([]Zone, len(zones))
	copy(result, zones)
	return result
}

// ZoneOf returns the zone containing `track`. It panics if the track doesn't
// exist on any supported disk.
func ZoneOf(track int) Zone {
	for _, zone := range zones {
		if track >= zone.FirstTrack && track <= zone.LastTrack {
			return zone
		}
	}
	panic(fmt.Errorf("track %d not in range [1, %d]", track, ExtendedTracks))
}

// Geometry gives the layout of one disk side.
type Geometry struct {
	tracks     int
	trackStart []int
	sectors    int
}

// New returns the geometry of a 35-track disk, or a 40-track one if
// `fortyTracks` is set.
func New(fortyTracks bool) Geometry {
	g := Geometry{tracks: StandardTracks}
	if fortyTracks {
		g.tracks = ExtendedTracks
	}

	g.trackStart = make([]int, g.tracks)
	pos := 0
	for track := 1; track <= g.tracks; track++ {
		g.trackStart[track-1] = pos
		pos += ZoneOf(track).SectorsPerTrack
	}
	g.sectors = pos
	return g
}

// Tracks returns the number of tracks on the disk.
func (g Geometry) Tracks() int {
	return g.tracks
}

// Sectors returns the total number of sectors on the disk.
func (g Geometry) Sectors() int {
	return g.sectors
}

// Size returns the size of the disk image, in bytes.
func (g Geometry) Size() int {
	return g.sectors * SectorSize
}

// TrackSize returns the number of sectors on `track`.
func (g Geometry) TrackSize(track int) int {
	g.mustHaveTrack(track)
	return ZoneOf(track).SectorsPerTrack
}

// TrackStart returns the linear index of the first sector of `track`.
func (g Geometry) TrackStart(track int) int {
	g.mustHaveTrack(track)
	return g.trackStart[track-1]
}

// Offset returns the byte offset of a sector within the image.
func (g Geometry) Offset(track, sector int) int {
	if sector < 0 || sector >= g.TrackSize(track) {
		panic(fmt.Errorf(
			"sector %d not in range [0, %d) on track %d", sector, g.TrackSize(track), track))
	}
	return (g.trackStart[track-1] + sector) * SectorSize
}

// HasTrack reports whether `track` exists on this disk.
func (g Geometry) HasTrack(track int) bool {
	return track >= 1 && track <= g.tracks
}

func (g Geometry) mustHaveTrack(track int) {
	if !g.HasTrack(track) {
		panic(fmt.Errorf("track %d not in range [1, %d]", track, g.tracks))
	}
}
