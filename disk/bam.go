package disk

import (
	"io"
	"os"
	"path/filepath"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/geometry"
)

// updateBAM stores the free count and free-sector bitmap of every track in
// the BAM sector. Tracks past 35 use the extended area at $c0.
func (img *Image) updateBAM() {
	bam := img.Sector(geometry.DirTrack, SectorBAM)
	for track := 1; track <= img.geometry.Tracks(); track++ {
		var entry [4]byte
		for sector := 0; sector < img.geometry.TrackSize(track); sector++ {
			if !img.IsUsed(track, sector) {
				entry[0]++
				entry[1+sector/8] |= 1 << (sector & 7)
			}
		}

		var offset int
		if track <= geometry.StandardTracks {
			offset = bamEntriesOffset + 4*(track-1)
		} else {
			offset = bamExtendedEntriesOffset + 4*(track-1-geometry.StandardTracks)
		}
		copy(bam[offset:offset+4], entry[:])
	}
}

// FreeBlocks returns the number of sectors not holding data. `free` includes
// padding sectors, which may be overwritten without harming the loader;
// `forDOS` counts only the sectors the BAM reports free outside track 18.
func (img *Image) FreeBlocks() (free, forDOS int) {
	padding := 0
	for track := 1; track <= img.geometry.Tracks(); track++ {
		for sector := 0; sector < img.geometry.TrackSize(track); sector++ {
			if !img.IsUsed(track, sector) {
				if track != geometry.DirTrack {
					forDOS++
				}
			} else if img.JobAt(track, sector) == jobPadding {
				padding++
			}
		}
	}
	return forDOS + padding, forDOS
}

// WriteTo updates the BAM and writes every sector in (track, sector) order,
// implementing the io.WriterTo interface.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	img.updateBAM()
	n, err := w.Write(img.data)
	if err != nil {
		return int64(n), spindle.ErrIOFailed.Wrap(err)
	}
	return int64(n), nil
}

// WriteFile writes the image to `path`. The file is replaced only once the
// whole image has been written.
func (img *Image) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".spindle-*.d64")
	if err != nil {
		return spindle.ErrIOFailed.Wrap(err)
	}
	defer os.Remove(tmp.Name())

	if err = tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return spindle.ErrIOFailed.Wrap(err)
	}
	if _, err = img.WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return spindle.ErrIOFailed.Wrap(err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return spindle.ErrIOFailed.Wrap(err)
	}

	free, forDOS := img.FreeBlocks()
	img.log.Logf(0, "%s: %d blocks free (%d for DOS).", path, free, forDOS)
	return nil
}
