package crunch

import (
	"testing"

	"github.com/dargueta/spindle/disk"
	"github.com/dargueta/spindle/gcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegion(loadAddress int, data []byte) *region {
	items, _ := Parse(data)
	return &region{
		name:        "test",
		data:        data,
		loadAddress: loadAddress,
		items:       items,
		left:        len(items),
	}
}

func newIndexBuffer() sectorBuffer {
	return sectorBuffer{
		block: disk.Block{Data: make([]byte, 256), Capacity: disk.FirstBlockCapacity},
		free:  disk.FirstBlockCapacity,
	}
}

func TestSplitChunks(t *testing.T) {
	p := &packer{}
	p.splitChunks([]Chunk{
		{Name: "low", LoadAddress: 0x0801, Data: make([]byte, 0x100)},
		{Name: "spans io", LoadAddress: 0xcf00, Data: make([]byte, 0x1200)},
		{Name: "empty", LoadAddress: 0x4000},
	})

	require.Len(t, p.regions, 4)
	assert.Equal(t, 3, p.numNormal)
	assert.True(t, p.hasShadow())

	expected := []struct {
		Address int
		Size    int
	}{
		{0x0801, 0x100},
		{0xcf00, 0x100},
		{0xe000, 0x100},
		{0xd000, 0x1000},
	}
	for i, exp := range expected {
		assert.Equalf(t, exp.Address, p.regions[i].loadAddress, "region %d", i)
		assert.Lenf(t, p.regions[i].data, exp.Size, "region %d", i)
		assert.Equal(t, len(p.regions[i].items), p.regions[i].left)
	}
}

func TestGenerateUnitSplitsLiteral(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	r := newTestRegion(0x1000, data)
	require.Equal(
		t,
		[]Item{
			{Literal: true, Length: 36, Address: 0},
			{Literal: true, Length: 64, Address: 36},
		},
		r.items)

	p := &packer{idx: newIndexBuffer()}
	var unit [256]byte

	// The unit doesn't even fit the header.
	n, tail := p.generateUnit(unit[:], 3, r)
	assert.Equal(t, 0, n)
	assert.Equal(t, -1, tail)
	assert.Equal(t, 2, r.left)

	n, tail = p.generateUnit(unit[:], 80, r)
	assert.Equal(t, 79, n)
	assert.Equal(t, -1, tail)
	assert.Equal(t, 1, r.left)
	assert.Equal(t, 26, r.items[0].Length, "the preceding literal gave up its tail")

	expected := []byte{0x10, 0x1a, 0x00, 0xc9}
	expected = append(expected, data[26:36]...)
	expected = append(expected, 0xff)
	expected = append(expected, data[36:]...)
	assert.Equal(t, expected, unit[:n])
	assert.Equal(t, disk.FirstBlockCapacity, p.idx.free, "no chain head for literals")

	idxSize := 0
	assert.Equal(t, 4+27, remainingSize(r, 255, &idxSize))
	assert.Equal(t, 0, idxSize)
}

func TestGenerateUnitExtendsChain(t *testing.T) {
	data := make([]byte, 100)
	r := newTestRegion(0x2000, data)
	p := &packer{idx: newIndexBuffer()}

	var unit [256]byte
	n, tail := p.generateUnit(unit[:], 256, r)
	require.NotZero(t, n)
	assert.Equal(t, 0x2000, tail)
	assert.Equal(t, 0, r.left)
	assert.Equal(t, disk.FirstBlockCapacity-3, p.idx.free, "one chain head record")

	head := -1
	for _, itm := range r.items {
		if !itm.Literal {
			head = 0x2000 + itm.Address
		}
	}
	assert.Equal(
		t,
		[]byte{gcr.Scramble(byte(head >> 8)), gcr.Scramble(byte(head)), 2},
		p.idx.block.Data[disk.FirstBlockCapacity-2:disk.FirstBlockCapacity+1])
}

func TestRemainingSizeChainHeads(t *testing.T) {
	r := newTestRegion(0x3000, make([]byte, 40))
	idxSize := 0
	size := remainingSize(r, 255, &idxSize)
	assert.Equal(t, 3, idxSize, "a chain head record is needed")

	// A chain close enough to the open one needs no record.
	r.hasCont = true
	r.contAddress = 0x3000 + 100
	idxSize = 0
	assert.Equal(t, size-3, remainingSize(r, 255, &idxSize))
	assert.Equal(t, 0, idxSize)

	r.contAddress = 0x3000 + 400
	idxSize = 0
	assert.Equal(t, size, remainingSize(r, 255, &idxSize))
	assert.Equal(t, 3, idxSize)
}

func TestNeedsChainHead(t *testing.T) {
	r := newTestRegion(0x3000, make([]byte, 40))
	items := append([]Item(nil), r.items...)

	assert.True(t, needsChainHead(256, r), "no open chain")
	assert.False(t, needsChainHead(3, r), "nothing fits")
	assert.Equal(t, items, r.items, "region was modified")
	assert.Equal(t, len(items), r.left)

	r.hasCont = true
	r.contAddress = 0x3000 + 100
	assert.False(t, needsChainHead(256, r), "open chain is close enough")
	r.contAddress = 0x3000 + 400
	assert.True(t, needsChainHead(256, r), "open chain is too far away")

	literal := newTestRegion(0x3000, []byte{0x42})
	assert.False(t, needsChainHead(256, literal), "no copy items")
}

// pokeCounter only takes link patches.
type pokeCounter struct {
	pokes int
}

func (a *pokeCounter) AllocateBlock(bool, bool, bool, byte) (disk.Block, error) {
	panic("unexpected allocation")
}

func (a *pokeCounter) SectorsLeftOnTrack() int {
	return 0
}

func (a *pokeCounter) Poke(disk.Ref, byte) {
	a.pokes++
}

func TestNeedsChainHeadMatchesGenerateUnit(t *testing.T) {
	data := make([]byte, 600)
	for i := range data {
		data[i] = "abc"[(i*i/7)%3]
	}

	for _, limit := range []int{8, 20, 64, 150, 256} {
		r := newTestRegion(0x4000, data)
		alloc := &pokeCounter{}
		p := &packer{alloc: alloc}
		var unit [256]byte

		for r.left > 0 {
			expected := needsChainHead(limit, r)
			left := r.left
			p.idx = newIndexBuffer()
			pokes := alloc.pokes
			n, tail := p.generateUnit(unit[:], limit, r)
			if n == 0 {
				break
			}
			pushed := p.idx.free != disk.FirstBlockCapacity
			assert.Equalf(t, expected, pushed, "limit %d, %d items left", limit, left)
			if tail >= 0 {
				// A unit with copies either patches the open chain or starts
				// a new one.
				assert.NotEqualf(t, pushed, alloc.pokes != pokes, "limit %d, %d items left", limit, left)
				r.hasCont = true
				r.contAddress = tail
			} else {
				r.hasCont = false
			}
		}
	}
}

func TestLoaderPoke(t *testing.T) {
	s := gcr.Scramble
	b := newIndexBuffer()

	loaderPoke(&b, 0x30, 0xc6, false, 0x02)
	assert.Equal(t, 252-6, b.free)
	assert.Equal(
		t,
		[]byte{s(0x02), s(0x30), s(0x00), s(0xc0), s(0xc6), 5},
		b.block.Data[247:253])

	loaderPoke(&b, 0x10, 0xe6, true, 0x02)
	assert.Equal(t, 252-11, b.free)
	assert.Equal(t, []byte{s(0x02), s(0x10), s(0xe6), s(0x01), 4}, b.block.Data[242:247])
	assert.Equal(t, 11, b.used()-3)
}

func TestSectorBufferOverflowPanics(t *testing.T) {
	b := sectorBuffer{block: disk.Block{Data: make([]byte, 256)}, free: 1}
	b.push(0xaa)
	assert.EqualValues(t, 0xaa, b.block.Data[1])
	assert.Panics(t, func() { b.push(0xbb) })
}
