package disk

import (
	"fmt"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/drivecode"
	"github.com/dargueta/spindle/gcr"
	"github.com/dargueta/spindle/geometry"
)

const stage1BlockPayload = 254

// LoaderOptions controls how the loader is installed on track 18.
type LoaderOptions struct {
	DirArt DirArt
	// ActiveEntry is the directory entry that loads the PRG. Entries past the
	// last non-blank one select the last one.
	ActiveEntry int
	// MyMagic identifies this side; NextMagic the side to request when this
	// one ends. Both are 24-bit values.
	MyMagic   uint32
	NextMagic uint32
	// ErrorPercent is the probability of simulated read errors, 0-99.
	ErrorPercent int
	Placement    drivecode.Placement
}

// Validate checks the option ranges the loader can handle.
func (opts *LoaderOptions) Validate() error {
	p := opts.Placement
	if p.ResidentPage < 2 || p.ResidentPage&0xf0 == 0xd0 {
		return spindle.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid resident page ($%02xxx)", p.ResidentPage))
	}
	if p.ResidentPage >= 8 && p.ResidentPage <= 9 {
		return spindle.ErrInvalidArgument.WithMessage(
			"resident page collides with bootloader (801-9ff)")
	}
	if p.BufferPage < 2 || p.BufferPage&0xf0 == 0xd0 {
		return spindle.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid buffer page ($%02xxx)", p.BufferPage))
	}
	if p.ResidentPage == p.BufferPage {
		return spindle.ErrInvalidArgument.WithMessage(
			"resident page cannot be equal to buffer page")
	}
	if p.ZeroPage < 2 || p.ZeroPage > 0xfb {
		return spindle.ErrInvalidArgument.WithMessage(
			"start of zeropage area must be in the range 02-fb")
	}
	if opts.ErrorPercent < 0 || opts.ErrorPercent > 99 {
		return spindle.ErrInvalidArgument.WithMessage(
			"error probability must be in the range 0-99")
	}
	if opts.MyMagic > 0xffffff || opts.NextMagic > 0xffffff {
		return spindle.ErrInvalidArgument.WithMessage("magic values are 24 bits")
	}
	return nil
}

func (img *Image) reserve(sector int, job byte) {
	img.claim(geometry.DirTrack, sector, job)
}

// StoreLoader installs the directory, stage 1, the GCR decode table and the
// drive code on track 18, and returns the cursor for the side's data.
func (img *Image) StoreLoader(rt *drivecode.Runtime, opts LoaderOptions) (*Cursor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}

	simulateErrors := opts.ErrorPercent != 0
	stage1, err := rt.RelocatedStage1(opts.Placement, simulateErrors)
	if err != nil {
		return nil, err
	}
	driveCode := rt.DriveCodeFor(simulateErrors)

	img.reserve(SectorBAM, jobDir)
	for _, sector := range []int{
		SectorDriveMisc,
		SectorGCRTable,
		SectorFlip,
		SectorSeek,
		SectorDriveFetch,
		SectorDriveInit,
		SectorDriveComm,
	} {
		img.reserve(sector, jobSystem)
	}
	img.reserve(SectorStage1, jobDir)
	img.reserve(SectorStage1Part2, jobDir)
	img.reserve(SectorStage1Part3, jobDir)
	if len(stage1) > 3*stage1BlockPayload {
		img.reserve(SectorStage1Part4, jobDir)
	}

	img.storeDirectory(&opts.DirArt, opts.ActiveEntry, len(stage1))
	img.storeStage1(stage1)

	copy(img.Sector(geometry.DirTrack, SectorGCRTable), img.gcrTable[:])
	for i, sector := range driveCodeSectors {
		copy(img.Sector(geometry.DirTrack, sector), driveCode[i*256:(i+1)*256])
	}

	// Patch msb of dummy data unit for flip
	flip := img.Sector(geometry.DirTrack, SectorFlip)
	flip[0xfb] = gcr.Scramble(opts.Placement.BufferPage)
	flip[0xff] = byte(opts.NextMagic >> 16)
	flip[0xfe] = byte(opts.NextMagic >> 8)
	flip[0xfd] = byte(opts.NextMagic)

	comm := img.Sector(geometry.DirTrack, SectorDriveComm)
	reorderSector(comm)
	reorderSector(flip)

	comm[0xf8] = byte(opts.ErrorPercent * 256 / 100)
	comm[0xf9] = byte(opts.MyMagic >> 16)
	comm[0xfa] = byte(opts.MyMagic >> 8)
	comm[0xfb] = byte(opts.MyMagic)

	return &Cursor{
		img:     img,
		track:   1,
		sector:  0,
		next:    Ref{Track: geometry.DirTrack, Sector: SectorDriveComm, Offset: chainRecordOffset},
		hasNext: true,
	}, nil
}

func (img *Image) storeDirectory(art *DirArt, activeEntry, stage1Size int) {
	last := art.lastEntry()
	if activeEntry > last {
		activeEntry = last
	}

	for block := 0; block < DirArtBlocks; block++ {
		sector := SectorDirectory + 3*block
		img.reserve(sector, jobDir)
		dir := img.Sector(geometry.DirTrack, sector)
		for i := range dir {
			dir[i] = 0
		}

		for j := 0; j < 8; j++ {
			entry := block*8 + j
			if entry > last {
				break
			}
			dentry := dir[j*32+2:]
			if entry == activeEntry {
				dentry[0] = 0x82 // PRG
				dentry[1] = geometry.DirTrack
				dentry[2] = SectorStage1
				dentry[28] = byte((stage1Size + 253) / stage1BlockPayload)
			} else {
				dentry[0] = 0x80 // DEL
			}
			copy(dentry[3:3+dirArtEntryLength], art[entry][:])
		}

		if last >= (block+1)*8 {
			dir[0] = geometry.DirTrack
			dir[1] = byte(sector + 3)
		} else {
			dir[0] = 0
			dir[1] = 0xff
			return
		}
	}
}

// storeStage1 chains stage 1 through 18/8, 18/18, 18/9 and, if needed, 18/15.
func (img *Image) storeStage1(stage1 []byte) {
	chain := []int{SectorStage1, SectorStage1Part2, SectorStage1Part3}
	if len(stage1) > 3*stage1BlockPayload {
		chain = append(chain, SectorStage1Part4)
	}

	for i, sector := range chain {
		data := img.Sector(geometry.DirTrack, sector)
		part := stage1[i*stage1BlockPayload:]
		if i+1 < len(chain) {
			data[0] = geometry.DirTrack
			data[1] = byte(chain[i+1])
			copy(data[2:], part[:stage1BlockPayload])
		} else {
			data[0] = 0
			data[1] = byte(len(part) + 1)
			copy(data[2:], part)
		}
	}
}
