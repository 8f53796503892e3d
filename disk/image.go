// Package disk builds the 1541 disk image: it owns every sector, hands out
// sectors to jobs in rotation-friendly order, lays out the loader on track 18
// and serializes the result.
package disk

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/gcr"
	"github.com/dargueta/spindle/geometry"
)

const (
	// Job map marks for sectors not owned by a data job.
	jobFree    = '.'
	jobDir     = 'd'
	jobSystem  = 's'
	jobPadding = '+'

	seekSlots = 64
)

// Ref addresses a single byte of the image.
type Ref struct {
	Track  int
	Sector int
	Offset int
}

// Options configures a new image.
type Options struct {
	Title       string
	ID          string
	FortyTracks bool
	// Squeeze disables the track-advance heuristics that trade density for
	// loading speed.
	Squeeze  bool
	Branches gcr.BranchOffsets
	Logger   *spindle.Logger
}

type seekPoint struct {
	set    bool
	track  int
	sector int
}

// Image is one disk side under construction.
type Image struct {
	geometry geometry.Geometry
	data     []byte
	// used holds one bitmap per track; a set bit means the sector is taken.
	used      []bitmap.Bitmap
	jobs      [][]byte
	gcrTable  gcr.DecodeTable
	seekTable [seekSlots]seekPoint
	squeeze   bool
	log       *spindle.Logger
}

// New creates an empty, formatted image.
func New(opts Options) (*Image, error) {
	if len(opts.ID) != 2 {
		return nil, spindle.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("disk ID must be two characters, got %q", opts.ID))
	}
	if len(opts.Title) > 16 {
		return nil, spindle.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("disk title %q is longer than 16 characters", opts.Title))
	}

	g := geometry.New(opts.FortyTracks)
	img := &Image{
		geometry: g,
		data:     make([]byte, g.Size()),
		used:     make([]bitmap.Bitmap, g.Tracks()),
		jobs:     make([][]byte, g.Tracks()),
		gcrTable: gcr.BuildDecodeTable(opts.Branches),
		squeeze:  opts.Squeeze,
		log:      opts.Logger,
	}

	for track := 1; track <= g.Tracks(); track++ {
		size := g.TrackSize(track)
		img.used[track-1] = bitmap.New(size)
		img.jobs[track-1] = make([]byte, size)
		for sector := range img.jobs[track-1] {
			img.jobs[track-1][sector] = jobFree
		}
	}

	bam := img.Sector(geometry.DirTrack, SectorBAM)
	bam[0] = geometry.DirTrack // first directory block
	bam[1] = SectorDirectory
	bam[2] = 0x41 // 1541

	for i := 0; i < 27; i++ {
		bam[bamTitleOffset+i] = 0xa0
	}
	for i := 0; i < len(opts.Title); i++ {
		bam[bamTitleOffset+i] = ASCIIToPETSCII(opts.Title[i])
	}
	bam[bamIDOffset] = opts.ID[0]
	bam[bamIDOffset+1] = opts.ID[1]
	bam[bamDOSTypeOffset] = '2'
	bam[bamDOSTypeOffset+1] = 'A'

	return img, nil
}

// Geometry returns the layout of the image.
func (img *Image) Geometry() geometry.Geometry {
	return img.geometry
}

// Sector returns a view of the 256 bytes of a sector. Writes through the view
// modify the image.
func (img *Image) Sector(track, sector int) []byte {
	offset := img.geometry.Offset(track, sector)
	return img.data[offset : offset+geometry.SectorSize : offset+geometry.SectorSize]
}

// Poke writes a single byte.
func (img *Image) Poke(ref Ref, value byte) {
	img.Sector(ref.Track, ref.Sector)[ref.Offset] = value
}

// Peek reads a single byte.
func (img *Image) Peek(ref Ref) byte {
	return img.Sector(ref.Track, ref.Sector)[ref.Offset]
}

func (img *Image) setBits(ref Ref, bits byte) {
	img.Sector(ref.Track, ref.Sector)[ref.Offset] |= bits
}

// IsUsed reports whether a sector has been allocated.
func (img *Image) IsUsed(track, sector int) bool {
	return img.used[track-1].Get(sector)
}

// JobAt returns the diagnostic label of a sector: '.' when free, the job ID
// for data sectors, '+' for padding and 'd' or 's' for loader sectors.
func (img *Image) JobAt(track, sector int) byte {
	return img.jobs[track-1][sector]
}

func (img *Image) claim(track, sector int, job byte) {
	if img.used[track-1].Get(sector) {
		spindle.Internalf("sector %d:%d allocated twice", track, sector)
	}
	img.used[track-1].Set(sector, true)
	img.jobs[track-1][sector] = job
}

func (img *Image) usedOnTrack(track int) int {
	n := 0
	for sector := 0; sector < img.geometry.TrackSize(track); sector++ {
		if img.used[track-1].Get(sector) {
			n++
		}
	}
	return n
}

// TrackMap renders the job map of one track, one character per sector.
func (img *Image) TrackMap(track int) string {
	return string(img.jobs[track-1])
}

// takeNextFree claims the first free sector at or after (track, sector),
// moving on to later tracks when the current one is exhausted or when
// `forceTrack` is set. It reports whether a new track was entered.
func (img *Image) takeNextFree(
	track, sector int, job byte, forceTrack bool,
) (int, int, bool, error) {
	newTrack := false
	count := img.geometry.TrackSize(track)

	for {
		exhausted := count == 0
		count--
		if exhausted || forceTrack {
			newTrack = true
			forceTrack = false
			track++
			// The loader skips the directory track, so we do that too.
			if track == geometry.DirTrack {
				track++
			}
			if track > img.geometry.Tracks() {
				if img.squeeze {
					return 0, 0, false, spindle.ErrDiskFull
				}
				return 0, 0, false, spindle.ErrDiskFull.WithMessage("the --squeeze option might help")
			}
			sector %= img.geometry.TrackSize(track)
			count = img.geometry.TrackSize(track)
		}
		if !img.used[track-1].Get(sector) {
			break
		}
		sector = (sector + 1) % img.geometry.TrackSize(track)
	}

	img.claim(track, sector, job)
	return track, sector, newTrack, nil
}

// reorderSector reverses the byte order of a sector, keeping byte 0 in
// place, to match the order in which the drive code transmits it.
func reorderSector(data []byte) {
	var original [geometry.SectorSize]byte
	copy(original[:], data)
	for i := 0; i < geometry.SectorSize; i++ {
		data[(-i)&0xff] = original[i]
	}
}
