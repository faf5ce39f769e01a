package mempool

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	s "github.com/bnclabs/gosettings"
	"golang.org/x/sys/cpu"

	"github.com/birate-wz/mempool/lockfree"
)

// classSlot couples one size class's freelist with its counters. Slots sit
// in an array, so each is padded to keep neighbouring freelist heads off the
// same cache line.
type classSlot struct {
	size        int
	list        freelist[[]byte]
	allocated   atomic.Int64
	deallocated atomic.Int64
	_           cpu.CacheLinePad
}

// MultiPool is a lock-free segregated allocator. Requests are rounded up to
// the alignment unit and served from the smallest fitting size class; above
// the largest class they are delegated to the runtime allocator. All methods
// are safe for concurrent use.
type MultiPool struct {
	classes [numClasses]classSlot
	chunks  lockfree.Stack[*chunk[[]byte]]
	cfg     config
}

// NewMultiPool creates a multi-size pool. Pass nil settings for
// Defaultsettings(). Chunks are carved lazily, per class, on first demand.
func NewMultiPool(setts s.Settings) *MultiPool {
	cfg := makeconfig(setts)
	p := &MultiPool{cfg: cfg}
	for i := range p.classes {
		cls := &p.classes[i]
		cls.size = sizeClasses[i]
		nper := cfg.chunksize / int64(cls.size)
		if nper < 1 {
			nper = 1
		}
		cls.list.init(uint32(nper), uint32(cfg.maxchunks))
	}
	return p
}

// carve returns the chunk storage allocator for one class: a single
// word-aligned buffer sliced into n blocks whose capacity is locked to the
// class size. Every payload is therefore Alignment-aligned and cap() names
// the class on the way back in.
func (p *MultiPool) carve(size int) func(n int) [][]byte {
	return func(n int) [][]byte {
		words := make([]uint64, n*size/8)
		buf := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n*size)
		items := make([][]byte, n)
		for i := 0; i < n; i++ {
			items[i] = buf[i*size : (i+1)*size : (i+1)*size]
		}
		return items
	}
}

func (p *MultiPool) grow(ci int) bool {
	cls := &p.classes[ci]
	ch, ok := cls.list.grow(p.carve(cls.size))
	if !ok {
		return false
	}
	p.chunks.Push(ch)
	debugf("mempool: class %v grew to %v chunks\n", cls.size, cls.list.nchunks())
	return true
}

// Alloc returns a buffer of n bytes, nil when n <= 0 or the class cannot
// grow past its chunk limit. Oversized requests come from the runtime
// allocator and are invisible to the class counters.
func (p *MultiPool) Alloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	ci := classIndex(alignUp(n))
	if ci >= numClasses {
		return make([]byte, n)
	}
	cls := &p.classes[ci]
	if cls.list.released() {
		panic("mempool: pool released")
	}
	id, ok := cls.list.popOne()
	if !ok {
		p.grow(ci)
		if id, ok = cls.list.popOne(); !ok {
			return nil
		}
	}
	cls.allocated.Add(1)
	return (*cls.list.item(id))[:n]
}

// Free returns buf to its class, which is recovered from cap(buf). Buffers
// that match no class (oversized allocations, or storage the pool never
// owned) are left to the collector.
func (p *MultiPool) Free(buf []byte) {
	ci := p.classOf(buf)
	if ci < 0 {
		return
	}
	cls := &p.classes[ci]
	id, ok := cls.blockOf(buf)
	if !ok {
		return
	}
	cls.list.pushOne(id)
	cls.deallocated.Add(1)
}

// classOf resolves the class index from a buffer's capacity, -1 when the
// capacity is not an exact class size.
func (p *MultiPool) classOf(buf []byte) int {
	c := cap(buf)
	if c == 0 {
		return -1
	}
	ci := classIndex(c)
	if ci >= numClasses || sizeClasses[ci] != c {
		return -1
	}
	return ci
}

// blockOf recovers a block id from a payload pointer by locating its chunk.
func (cls *classSlot) blockOf(buf []byte) (uint32, bool) {
	chunks := *cls.list.chunks.Load()
	addr := uintptr(unsafe.Pointer(&buf[:1][0]))
	span := uintptr(cls.list.nper) * uintptr(cls.size)
	for ci, ch := range chunks {
		base := uintptr(unsafe.Pointer(&ch.items[0][0]))
		if addr >= base && addr < base+span {
			off := addr - base
			if off%uintptr(cls.size) != 0 {
				panic(fmt.Errorf("mempool: unaligned pointer into class %v", cls.size))
			}
			return uint32(ci)*cls.list.nper + uint32(off/uintptr(cls.size)), true
		}
	}
	return 0, false
}

// Release drops every chunk in every class. The pool must be quiescent: no
// live blocks, no open caches. Afterwards any Alloc or Free served by a size
// class panics; oversized requests still go to the runtime allocator.
func (p *MultiPool) Release() {
	for i := range p.classes {
		p.classes[i].list.reset()
	}
	p.chunks.Drain()
}

// Create allocates sizeof(T) bytes from p and places v there. T must not
// contain pointers: multi-pool storage is opaque to the collector. Returns
// nil for zero-sized T or on allocation failure.
func Create[T any](p *MultiPool, v T) *T {
	buf := p.Alloc(int(unsafe.Sizeof(v)))
	if buf == nil {
		return nil
	}
	ptr := (*T)(unsafe.Pointer(&buf[0]))
	*ptr = v
	return ptr
}

// Destroy clears the object and returns its storage to p. ptr must have come
// from Create on the same pool.
func Destroy[T any](p *MultiPool, ptr *T) {
	if ptr == nil {
		return
	}
	var zero T
	*ptr = zero
	n := alignUp(int(unsafe.Sizeof(zero)))
	if ci := classIndex(n); ci < numClasses {
		n = sizeClasses[ci]
	}
	p.Free(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
}

// MultiCache is a worker-owned fast path over a MultiPool, one bounded cache
// slot per size class. Not safe for concurrent use; each worker goroutine
// keeps its own. Close is the termination handoff.
type MultiCache struct {
	pool   *MultiPool
	caches [numClasses]cache[[]byte]
}

// NewCache creates a cache bound to this pool for the calling worker.
func (p *MultiPool) NewCache() *MultiCache {
	mc := &MultiCache{pool: p}
	for i := range mc.caches {
		mc.caches[i].init(int(p.cfg.cachecap), int(p.cfg.batchsize))
	}
	return mc
}

// Alloc mirrors MultiPool.Alloc through the per-class cache.
func (mc *MultiCache) Alloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	ci := classIndex(alignUp(n))
	if ci >= numClasses {
		return make([]byte, n)
	}
	p := mc.pool
	cls := &p.classes[ci]
	c := &mc.caches[ci]
	id, ok := c.get()
	if !ok {
		if !c.refill(&cls.list, func() bool { return p.grow(ci) }) {
			return nil
		}
		id, _ = c.get()
	}
	cls.allocated.Add(1)
	return (*cls.list.item(id))[:n]
}

// Free mirrors MultiPool.Free through the per-class cache.
func (mc *MultiCache) Free(buf []byte) {
	p := mc.pool
	ci := p.classOf(buf)
	if ci < 0 {
		return
	}
	cls := &p.classes[ci]
	id, ok := cls.blockOf(buf)
	if !ok {
		return
	}
	mc.caches[ci].put(&cls.list, id)
	cls.deallocated.Add(1)
}

// Flush returns every cached block in every class to its freelist.
func (mc *MultiCache) Flush() {
	for i := range mc.caches {
		mc.caches[i].flush(&mc.pool.classes[i].list)
	}
}

// Close flushes the cache. Call it when the owning worker exits; the cache
// must not be used afterwards.
func (mc *MultiCache) Close() {
	mc.Flush()
}
