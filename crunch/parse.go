// Package crunch compresses load chunks into the sector chains read by the
// drive-resident runtime.
//
// Data is decompressed backwards: the runtime starts at the highest address
// of each region and works its way down, so back-references point to higher
// addresses than the bytes they produce.
package crunch

// Token limits of the runtime's decruncher.
const (
	MaxLiteralLength   = 64
	MinCopyLength      = 2
	MaxCopyLength      = 18
	MaxCopyOffset      = 1024
	MaxShortCopyOffset = 127
	// MaxChainSpan is the largest address distance between two copy items
	// that share a chain.
	MaxChainSpan = 255
)

// Item is one token of a parsed region. Address is relative to the start of
// the region.
type Item struct {
	Literal bool
	// FarChain is set on copy items too far from the previous copy item to
	// share its chain. Such an item must start a new unit.
	FarChain bool
	Length   int
	Offset   int
	Address  int
}

// Size returns the number of bytes the item occupies in a unit.
func (itm *Item) Size() int {
	if itm.Literal {
		return 1 + itm.Length
	} else if itm.Length == 2 {
		return 1
	}
	return 2
}

type choice struct {
	literal bool
	length  int
	offset  int
	// ncopy is the number of copy items on the best path from here to the end.
	ncopy int
	cost  int
}

// Parse finds the cheapest decomposition of `data` into items and returns it
// along with its cost in bits. Among paths of equal cost, the one with the
// fewest copy items wins, since each copy is a link the runtime follows.
func Parse(data []byte) ([]Item, int) {
	size := len(data)
	choices := make([]choice, size+1)

	for pos := size - 1; pos >= 0; pos-- {
		best := choice{cost: int(^uint32(0) >> 1)}
		consider := func(cand choice) {
			if best.cost > cand.cost || (best.cost == cand.cost && best.ncopy > cand.ncopy) {
				best = cand
			}
		}

		for length := 1; length <= MaxLiteralLength && pos+length <= size; length++ {
			consider(choice{
				literal: true,
				length:  length,
				ncopy:   choices[pos+length].ncopy,
				cost:    choices[pos+length].cost + 8 + length*8,
			})
		}

		for offset := 1; offset <= MaxCopyOffset; offset++ {
			for length := 1; length <= MaxCopyLength &&
				pos+offset+length <= size; length++ {
				if data[pos+length-1] != data[pos+offset+length-1] {
					break
				}
				if length == 2 && offset <= MaxShortCopyOffset {
					consider(choice{
						length: length,
						offset: offset,
						ncopy:  choices[pos+length].ncopy + 1,
						cost:   choices[pos+length].cost + 8,
					})
				} else if length >= 3 {
					consider(choice{
						length: length,
						offset: offset,
						ncopy:  choices[pos+length].ncopy + 1,
						cost:   choices[pos+length].cost + 16,
					})
				}
			}
		}

		choices[pos] = best
	}

	// The chain of choices starting at 0 describes the optimal path.
	var items []Item
	lastCopyAddress := -1
	for pos := 0; pos < size; pos += choices[pos].length {
		c := choices[pos]
		itm := Item{
			Literal: c.literal,
			Length:  c.length,
			Offset:  c.offset,
			Address: pos,
		}
		if !c.literal {
			if lastCopyAddress >= 0 && pos >= lastCopyAddress+MaxChainSpan {
				itm.FarChain = true
			}
			lastCopyAddress = pos
		}
		items = append(items, itm)
	}

	return items, choices[0].cost
}
