package disk

import (
	"fmt"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/geometry"
)

const (
	// Payload of the first sector of a batch; its last three bytes hold the
	// continuation record of the batch.
	FirstBlockCapacity = 252
	BlockCapacity      = 255
)

// Block is a sector granted by Cursor.AllocateBlock.
type Block struct {
	Track  int
	Sector int
	// Data is a view of the whole sector. Byte 0 is the header; payload goes in
	// Data[1:Capacity+1].
	Data     []byte
	Capacity int
	// NewBatch is set when this block starts a new chain: a new job, a new
	// track or a forced boundary.
	NewBatch bool
}

// Ref returns the address of a byte of this block.
func (b Block) Ref(offset int) Ref {
	return Ref{Track: b.Track, Sector: b.Sector, Offset: offset}
}

// Cursor is the allocation state of a disk side. Only one Cursor may exist
// per image, since it exclusively owns the pending continuation record.
type Cursor struct {
	img             *Image
	track           int
	sector          int
	interleaveState int
	// chain is the continuation record collecting the sector bitmap of the
	// current batch.
	chain Ref
	// next is the continuation record of the current batch, to be linked to
	// the following batch.
	next      Ref
	hasNext   bool
	allocated int
}

// Image returns the image this cursor allocates from.
func (c *Cursor) Image() *Image {
	return c.img
}

// Position returns the most recently allocated sector.
func (c *Cursor) Position() (track, sector int) {
	return c.track, c.sector
}

// Poke writes a byte of the image. It lets the packer patch links in
// sectors it filled earlier.
func (c *Cursor) Poke(ref Ref, value byte) {
	c.img.Poke(ref, value)
}

func (c *Cursor) interleave() int {
	size := c.img.geometry.TrackSize(c.track)
	switch c.interleaveState {
	case 0, 2:
		return size / 2
	case 1:
		return (size + 3) / 4
	default:
		return 4
	}
}

// AllocateBlock grants the next sector to job `jobID`.
//
// The sector is chosen by stepping ahead of the previous one by an interleave
// that approximates how far the disk rotates while the host consumes a
// sector, then taking the first free sector from there. A new batch starts
// when `newJob` or `forceBoundary` is set or when a new track is entered
// (possibly forced by `forceTrack`).
func (c *Cursor) AllocateBlock(
	newJob, forceBoundary, forceTrack bool, jobID byte,
) (Block, error) {
	if c.img == nil {
		return Block{}, spindle.ErrInvalidArgument.WithMessage("cursor was never initialized")
	}
	if !c.hasNext {
		// The side has been closed, so there's no record left to link a new
		// batch to.
		return Block{}, spindle.ErrBlankJob.WithMessage("side is already closed")
	}

	size := c.img.geometry.TrackSize(c.track)
	step := c.interleave()
	c.interleaveState++
	c.sector = (c.sector + step) % size

	track, sector, newTrack, err := c.img.takeNextFree(c.track, c.sector, jobID, forceTrack)
	if err != nil {
		return Block{}, err
	}
	c.track, c.sector = track, sector
	c.allocated++

	block := Block{
		Track:    track,
		Sector:   sector,
		Data:     c.img.Sector(track, sector),
		NewBatch: newTrack || newJob || forceBoundary,
	}

	if block.NewBatch {
		c.chain = c.next
		c.hasNext = false
		c.interleaveState = 0
	}
	if newTrack {
		c.img.setBits(c.chain, 0x40)
	}
	if newJob {
		c.img.setBits(c.chain, 0x80)
	}

	if c.hasNext {
		block.Capacity = BlockCapacity
	} else {
		c.next = block.Ref(chainRecordOffset)
		c.hasNext = true
		block.Data[chainRecordOffset] = 0
		block.Data[chainRecordOffset+1] = 0
		block.Data[chainRecordOffset+2] = 0
		block.Data[0] |= 0x40
		block.Capacity = FirstBlockCapacity
	}

	// Tell the drive which sectors of this track belong to the batch, so it
	// can read them in any order.
	switch {
	case sector < 5:
		c.img.setBits(c.chain, 0x10>>sector)
	case sector < 13:
		c.img.setBits(Ref{c.chain.Track, c.chain.Sector, c.chain.Offset + 1}, 0x80>>(sector-5))
	default:
		c.img.setBits(Ref{c.chain.Track, c.chain.Sector, c.chain.Offset + 2}, 0x80>>(sector-13))
	}

	c.img.log.Logf(
		5,
		"Allocated sector %d:%d, file offset $%05x00.",
		track,
		sector,
		c.img.geometry.TrackStart(track)+sector)

	return block, nil
}

// SectorsLeftOnTrack returns the number of free sectors on the current track.
func (c *Cursor) SectorsLeftOnTrack() int {
	return c.img.geometry.TrackSize(c.track) - c.img.usedOnTrack(c.track)
}

// SetSeekPoint records the start of the next batch in seek table slot `slot`.
func (c *Cursor) SetSeekPoint(slot int) error {
	if slot < 0 || slot >= seekSlots {
		return spindle.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("seek slot %d not in range [0, %d)", slot, seekSlots))
	}
	c.img.seekTable[slot] = seekPoint{set: true, track: c.next.Track, sector: c.next.Sector}
	return nil
}

// CloseSide finalizes the side: it terminates the last chain, installs the
// seek table, stamps sector numbers into the headers and pads partially used
// tracks. `last` is set for the final side of a production, whose end record
// doesn't lead to another side.
func (c *Cursor) CloseSide(last bool) error {
	if c.img == nil {
		return spindle.ErrInvalidArgument.WithMessage("cursor was never initialized")
	}
	if !c.hasNext || c.allocated == 0 {
		return spindle.ErrBlankJob
	}
	img := c.img

	next := img.Sector(c.next.Track, c.next.Sector)
	next[c.next.Offset] = 0xa0
	next[c.next.Offset+1] = 0x80 // sector 5 (on track 18)
	next[c.next.Offset+2] = 0x00

	// clear the new-job flag of the first continuation record
	img.Sector(geometry.DirTrack, SectorDriveComm)[chainRecordOffset] &= 0x7f

	seek := img.Sector(geometry.DirTrack, SectorSeek)
	for i, point := range img.seekTable {
		if point.set {
			seek[seekTrackOffset+i] = byte(point.track * 2)
			seek[seekSectorOffset+i] = byte(point.sector)
		} else {
			seek[seekTrackOffset+i] = byte(c.next.Track * 2)
			seek[seekSectorOffset+i] = byte(c.next.Sector)
		}
	}
	reorderSector(seek)

	for track := 1; track <= img.geometry.Tracks(); track++ {
		if track == geometry.DirTrack {
			continue
		}
		for sector := 0; sector < img.geometry.TrackSize(track); sector++ {
			img.Sector(track, sector)[0] |= byte(sector)
		}
		img.padTrack(track)
	}

	if img.log.Enabled(2) {
		if last {
			img.log.Logf(2, "Closing final side.")
		}
		for track := img.geometry.Tracks(); track >= 1; track-- {
			img.log.Logf(2, "Track %2d: %s", track, img.TrackMap(track))
		}
	}

	c.hasNext = false
	return nil
}
