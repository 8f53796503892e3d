package disk

// padTrack fills the free sectors of a partially used track with copies of
// used ones. The copies are placed by stepping around the track from each
// used sector, so that a drive reading the track in rotation order finds
// real and duplicate sectors evenly spread instead of clustered at the end.
func (img *Image) padTrack(track int) {
	size := img.geometry.TrackSize(track)
	n := img.usedOnTrack(track)
	if n == 0 || n == size {
		return
	}

	for {
		anyFree, filled := false, false

		// The step and the track size must be relatively prime. These
		// adjustments cover the cases known to produce short cycles.
		switch size {
		case 18:
			n |= 1
			if n == 3 || n == 9 {
				n += 2
			}
		case 21:
			if n == 3 || n == 7 {
				n++
			}
		}

		for sector := 0; sector < size; sector++ {
			if !img.IsUsed(track, sector) {
				anyFree = true
				continue
			}
			for i := 1; i < size; i++ {
				target := (sector + i*n) % size
				if !img.IsUsed(track, target) {
					copy(img.Sector(track, target), img.Sector(track, sector))
					img.claim(track, target, jobPadding)
					filled = true
					break
				}
			}
		}

		if !anyFree {
			return
		}
		if !filled {
			// Every used sector cycles among used sectors only.
			n = 1
		}
	}
}
