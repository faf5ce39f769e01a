package mempool

import "sync/atomic"

// node carries a block's freelist linkage. Links live in a side table next
// to the payload, never inside it, so walking the list only ever reads live
// words no matter how the race with a concurrent pop resolves.
type node struct {
	next atomic.Uint64 // packed ref of the successor while list-resident
	aba  uint32        // bumped once per push, written only by the block's owner
}

// pack builds a freelist ref from a block id and the block's aba tag. The id
// is offset by one so the zero word always means "empty list". A block that
// is popped and pushed again carries a new tag, which is what defeats ABA on
// the head compare-and-swap.
func pack(id uint32, aba uint32) uint64 {
	return uint64(id+1)<<32 | uint64(aba)
}

func unpack(ref uint64) uint32 {
	return uint32(ref>>32) - 1
}

// chunk is one contiguous run of blocks of a single class: payload items and
// their link table, parallel slices. Structure is immutable after carving.
type chunk[T any] struct {
	items []T
	nodes []node
}

// freelist is the lock-free LIFO of free blocks for one size class. Block
// ids index into the chunk table: id/nper selects the chunk, id%nper the
// block within it.
type freelist[T any] struct {
	head   atomic.Uint64
	chunks atomic.Pointer[[]*chunk[T]]
	nper   uint32 // blocks per chunk
	nmax   uint32 // chunk count limit
}

func (f *freelist[T]) init(nper, nmax uint32) {
	f.nper, f.nmax = nper, nmax
	f.chunks.Store(&[]*chunk[T]{})
}

func (f *freelist[T]) node(id uint32) *node {
	chunks := *f.chunks.Load()
	return &chunks[id/f.nper].nodes[id%f.nper]
}

func (f *freelist[T]) item(id uint32) *T {
	chunks := *f.chunks.Load()
	return &chunks[id/f.nper].items[id%f.nper]
}

func (f *freelist[T]) nchunks() int {
	return len(*f.chunks.Load())
}

// popOne removes the top block.
func (f *freelist[T]) popOne() (uint32, bool) {
	for {
		old := f.head.Load()
		if old == 0 {
			return 0, false
		}
		id := unpack(old)
		next := f.node(id).next.Load()
		if f.head.CompareAndSwap(old, next) {
			return id, true
		}
	}
}

// popBatch removes up to len(ids) blocks with a single head CAS and returns
// how many were taken. The walk preceding the CAS is sound: success proves
// the head ref never changed, and an interior block cannot leave the list
// while its head block is still on it, so the walked segment was intact.
func (f *freelist[T]) popBatch(ids []uint32) int {
	for {
		old := f.head.Load()
		if old == 0 {
			return 0
		}
		n := 0
		ref := old
		for ref != 0 && n < len(ids) {
			id := unpack(ref)
			ids[n] = id
			n++
			ref = f.node(id).next.Load()
		}
		if f.head.CompareAndSwap(old, ref) {
			return n
		}
	}
}

// pushOne returns a single block to the list.
func (f *freelist[T]) pushOne(id uint32) {
	nd := f.node(id)
	nd.aba++
	ref := pack(id, nd.aba)
	for {
		old := f.head.Load()
		nd.next.Store(old)
		if f.head.CompareAndSwap(old, ref) {
			return
		}
	}
}

// pushSegment links ids into a chain, ids[0] first, and splices the whole
// run with a single head CAS.
func (f *freelist[T]) pushSegment(ids []uint32) {
	if len(ids) == 0 {
		return
	}
	for i := 0; i+1 < len(ids); i++ {
		nd := f.node(ids[i+1])
		nd.aba++
		f.node(ids[i]).next.Store(pack(ids[i+1], nd.aba))
	}
	first := f.node(ids[0])
	first.aba++
	ref := pack(ids[0], first.aba)
	tail := f.node(ids[len(ids)-1])
	for {
		old := f.head.Load()
		tail.next.Store(old)
		if f.head.CompareAndSwap(old, ref) {
			return
		}
	}
}

// grow carves one chunk via carve, registers it in the chunk table and
// splices its blocks onto the head. No block is reachable before its link
// is threaded; the final CAS is the single publish point. Fails only when
// the class already owns nmax chunks.
func (f *freelist[T]) grow(carve func(n int) []T) (*chunk[T], bool) {
	if uint32(len(*f.chunks.Load())) >= f.nmax {
		return nil, false
	}
	ch := &chunk[T]{
		items: carve(int(f.nper)),
		nodes: make([]node, f.nper),
	}
	var base uint32
	for {
		oldp := f.chunks.Load()
		old := *oldp
		if uint32(len(old)) >= f.nmax {
			return nil, false
		}
		nw := make([]*chunk[T], len(old)+1)
		copy(nw, old)
		nw[len(old)] = ch
		if f.chunks.CompareAndSwap(oldp, &nw) {
			base = uint32(len(old)) * f.nper
			break
		}
	}
	for i := uint32(0); i+1 < f.nper; i++ {
		ch.nodes[i].next.Store(pack(base+i+1, 0))
	}
	tail := &ch.nodes[f.nper-1]
	ref := pack(base, 0)
	for {
		old := f.head.Load()
		tail.next.Store(old)
		if f.head.CompareAndSwap(old, ref) {
			return ch, true
		}
	}
}

// reset empties the list and drops the chunk table. Later pops find the list
// empty; anything that resolves a block id or the chunk table panics.
func (f *freelist[T]) reset() {
	f.head.Store(0)
	f.chunks.Store(nil)
}

func (f *freelist[T]) released() bool {
	return f.chunks.Load() == nil
}

// contentOfList walks the current list, for tests.
func (f *freelist[T]) contentOfList() []uint32 {
	var result []uint32
	ref := f.head.Load()
	for ref != 0 {
		id := unpack(ref)
		result = append(result, id)
		ref = f.node(id).next.Load()
	}
	return result
}
