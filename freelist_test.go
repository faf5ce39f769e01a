package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func carveInts(n int) []int64 {
	return make([]int64, n)
}

func TestFreelistGrow(t *testing.T) {
	var f freelist[int64]
	f.init(4, 8)
	assert.Equal(t, 0, f.nchunks())
	assert.Equal(t, []uint32(nil), f.contentOfList())

	_, ok := f.grow(carveInts)
	assert.True(t, ok)
	assert.Equal(t, 1, f.nchunks())
	assert.Equal(t, []uint32{0, 1, 2, 3}, f.contentOfList())

	_, ok = f.grow(carveInts)
	assert.True(t, ok)
	assert.Equal(t, 2, f.nchunks())
	assert.Equal(t, []uint32{4, 5, 6, 7, 0, 1, 2, 3}, f.contentOfList())
}

func TestFreelistGrowLimit(t *testing.T) {
	var f freelist[int64]
	f.init(2, 2)

	_, ok := f.grow(carveInts)
	assert.True(t, ok)
	_, ok = f.grow(carveInts)
	assert.True(t, ok)
	_, ok = f.grow(carveInts)
	assert.False(t, ok)
	assert.Equal(t, 2, f.nchunks())
}

func TestFreelistPopPushOne(t *testing.T) {
	var f freelist[int64]
	f.init(4, 8)
	f.grow(carveInts)

	id, ok := f.popOne()
	assert.True(t, ok)
	assert.Equal(t, uint32(0), id)
	assert.Equal(t, []uint32{1, 2, 3}, f.contentOfList())

	id, ok = f.popOne()
	assert.True(t, ok)
	assert.Equal(t, uint32(1), id)

	f.pushOne(0)
	assert.Equal(t, []uint32{0, 2, 3}, f.contentOfList())

	// most recently pushed comes back first
	id, ok = f.popOne()
	assert.True(t, ok)
	assert.Equal(t, uint32(0), id)
}

func TestFreelistPopEmpty(t *testing.T) {
	var f freelist[int64]
	f.init(2, 2)
	f.grow(carveInts)

	_, ok := f.popOne()
	assert.True(t, ok)
	_, ok = f.popOne()
	assert.True(t, ok)
	_, ok = f.popOne()
	assert.False(t, ok)

	ids := make([]uint32, 4)
	assert.Equal(t, 0, f.popBatch(ids))
}

func TestFreelistPopBatch(t *testing.T) {
	var f freelist[int64]
	f.init(8, 4)
	f.grow(carveInts)

	ids := make([]uint32, 3)
	n := f.popBatch(ids)
	assert.Equal(t, 3, n)
	assert.Equal(t, []uint32{0, 1, 2}, ids[:n])
	assert.Equal(t, []uint32{3, 4, 5, 6, 7}, f.contentOfList())

	// batch larger than the list drains it
	big := make([]uint32, 16)
	n = f.popBatch(big)
	assert.Equal(t, 5, n)
	assert.Equal(t, []uint32{3, 4, 5, 6, 7}, big[:n])
	assert.Equal(t, []uint32(nil), f.contentOfList())
}

func TestFreelistPushSegment(t *testing.T) {
	var f freelist[int64]
	f.init(8, 4)
	f.grow(carveInts)

	ids := make([]uint32, 8)
	n := f.popBatch(ids)
	assert.Equal(t, 8, n)

	f.pushSegment([]uint32{5, 6, 7})
	assert.Equal(t, []uint32{5, 6, 7}, f.contentOfList())

	f.pushSegment([]uint32{0, 1})
	assert.Equal(t, []uint32{0, 1, 5, 6, 7}, f.contentOfList())

	f.pushSegment(nil)
	assert.Equal(t, []uint32{0, 1, 5, 6, 7}, f.contentOfList())
}

func TestFreelistAbaTagAdvances(t *testing.T) {
	var f freelist[int64]
	f.init(4, 4)
	f.grow(carveInts)

	id, _ := f.popOne()
	before := f.head.Load()
	f.pushOne(id)
	after := f.head.Load()
	assert.Equal(t, id, unpack(after))
	assert.NotEqual(t, before, after)

	// a second pop/push of the same block yields yet another head value
	f.popOne()
	f.pushOne(id)
	assert.NotEqual(t, after, f.head.Load())
	assert.Equal(t, id, unpack(f.head.Load()))
}

func TestFreelistReset(t *testing.T) {
	var f freelist[int64]
	f.init(4, 4)
	f.grow(carveInts)
	assert.False(t, f.released())

	f.reset()
	assert.True(t, f.released())
	_, ok := f.popOne()
	assert.False(t, ok)
}

func TestPackUnpack(t *testing.T) {
	assert.Equal(t, uint32(0), unpack(pack(0, 0)))
	assert.Equal(t, uint32(41), unpack(pack(41, 7)))
	assert.NotEqual(t, pack(3, 1), pack(3, 2))
	assert.NotEqual(t, uint64(0), pack(0, 0))
}
