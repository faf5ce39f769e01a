package mempool

import (
	"sync/atomic"
	"unsafe"

	s "github.com/bnclabs/gosettings"

	"github.com/birate-wz/mempool/lockfree"
)

// Pool is a lock-free fixed-size object pool. Blocks are backed by []T
// chunks, so the collector sees any pointers T carries and payloads keep T's
// natural alignment. All methods are safe for concurrent use; none of them
// blocks on contention.
type Pool[T any] struct {
	list   freelist[T]
	chunks lockfree.Stack[*chunk[T]]
	cfg    config

	allocated   atomic.Int64
	deallocated atomic.Int64
}

// New creates a fixed-size pool for T, carving its first chunk eagerly. Pass
// nil settings for Defaultsettings().
func New[T any](setts s.Settings) *Pool[T] {
	var zero T
	stride := int64(unsafe.Sizeof(zero))
	if stride == 0 {
		panic("mempool: cannot pool a zero-sized type")
	}
	cfg := makeconfig(setts)
	nper := cfg.chunksize / stride
	if nper < 1 {
		nper = 1
	}
	p := &Pool[T]{cfg: cfg}
	p.list.init(uint32(nper), uint32(cfg.maxchunks))
	p.grow()
	return p
}

func (p *Pool[T]) grow() bool {
	ch, ok := p.list.grow(func(n int) []T { return make([]T, n) })
	if !ok {
		return false
	}
	p.chunks.Push(ch)
	debugf("mempool: fixed pool grew to %v chunks\n", p.list.nchunks())
	return true
}

// Get hands out a zero-valued block, or nil when the class cannot grow past
// its chunk limit.
func (p *Pool[T]) Get() *T {
	if p.list.released() {
		panic("mempool: pool released")
	}
	id, ok := p.list.popOne()
	if !ok {
		p.grow()
		if id, ok = p.list.popOne(); !ok {
			return nil
		}
	}
	p.allocated.Add(1)
	return p.list.item(id)
}

// New constructs a T in place and returns it.
func (p *Pool[T]) New(v T) *T {
	ptr := p.Get()
	if ptr != nil {
		*ptr = v
	}
	return ptr
}

// Put clears the object at ptr and returns its block to the global freelist.
// ptr must have come from this pool.
func (p *Pool[T]) Put(ptr *T) {
	if ptr == nil {
		return
	}
	id, ok := p.blockOf(ptr)
	if !ok {
		panic("mempool: Put of foreign pointer")
	}
	var zero T
	*ptr = zero
	p.list.pushOne(id)
	p.deallocated.Add(1)
}

// blockOf recovers a block id from its payload pointer.
func (p *Pool[T]) blockOf(ptr *T) (uint32, bool) {
	chunks := *p.list.chunks.Load()
	var zero T
	stride := unsafe.Sizeof(zero)
	addr := uintptr(unsafe.Pointer(ptr))
	span := uintptr(p.list.nper) * stride
	for ci, ch := range chunks {
		base := uintptr(unsafe.Pointer(&ch.items[0]))
		if addr >= base && addr < base+span {
			return uint32(ci)*p.list.nper + uint32((addr-base)/stride), true
		}
	}
	return 0, false
}

// AllocatedCount returns the number of allocations served so far.
func (p *Pool[T]) AllocatedCount() int64 {
	return p.allocated.Load()
}

// DeallocatedCount returns the number of blocks returned so far.
func (p *Pool[T]) DeallocatedCount() int64 {
	return p.deallocated.Load()
}

// ActiveCount returns allocations minus deallocations. Counters are relaxed;
// the value is exact only at quiescence.
func (p *Pool[T]) ActiveCount() int64 {
	return p.allocated.Load() - p.deallocated.Load()
}

// Memory returns bytes taken from the runtime for payload storage and the
// number of chunks backing them.
func (p *Pool[T]) Memory() (heap int64, chunks int64) {
	var zero T
	n := int64(p.list.nchunks())
	return n * int64(p.list.nper) * int64(unsafe.Sizeof(zero)), n
}

// Release drops every chunk. The pool must be quiescent: no live blocks, no
// open caches. Any use afterwards panics.
func (p *Pool[T]) Release() {
	p.list.reset()
	p.chunks.Drain()
}

// Cache is a worker-owned fast path over one pool: a bounded block buffer
// refilled from and drained to the pool's freelist in batches. Not safe for
// concurrent use; each worker goroutine keeps its own. Close is the
// termination handoff, after which no block is lost to the exiting worker.
type Cache[T any] struct {
	pool *Pool[T]
	c    cache[T]
}

// NewCache creates a cache bound to this pool for the calling worker.
func (p *Pool[T]) NewCache() *Cache[T] {
	cc := &Cache[T]{pool: p}
	cc.c.init(int(p.cfg.cachecap), int(p.cfg.batchsize))
	return cc
}

// Get hands out a zero-valued block, refilling from the pool on a dry cache.
func (cc *Cache[T]) Get() *T {
	p := cc.pool
	id, ok := cc.c.get()
	if !ok {
		if !cc.c.refill(&p.list, p.grow) {
			return nil
		}
		id, _ = cc.c.get()
	}
	p.allocated.Add(1)
	return p.list.item(id)
}

// New constructs a T in place through the cache.
func (cc *Cache[T]) New(v T) *T {
	ptr := cc.Get()
	if ptr != nil {
		*ptr = v
	}
	return ptr
}

// Put parks the freed block in the cache, draining to the pool at the
// high-water mark.
func (cc *Cache[T]) Put(ptr *T) {
	if ptr == nil {
		return
	}
	p := cc.pool
	id, ok := p.blockOf(ptr)
	if !ok {
		panic("mempool: Put of foreign pointer")
	}
	var zero T
	*ptr = zero
	cc.c.put(&p.list, id)
	p.deallocated.Add(1)
}

// Flush returns every cached block to the pool's freelist.
func (cc *Cache[T]) Flush() {
	cc.c.flush(&cc.pool.list)
}

// Close flushes the cache. Call it when the owning worker exits; the cache
// must not be used afterwards.
func (cc *Cache[T]) Close() {
	cc.Flush()
}

// Ref owns one pooled object, pairing the payload with its pool. Release
// returns the block and is idempotent. A Ref must have a single owner; hand
// it over with Move rather than copying.
type Ref[T any] struct {
	ptr  *T
	pool *Pool[T]
}

// NewRef constructs a T in the pool and wraps it in an owning Ref.
func (p *Pool[T]) NewRef(v T) Ref[T] {
	return Ref[T]{ptr: p.New(v), pool: p}
}

// Deref returns the owned object, nil for an empty Ref.
func (r *Ref[T]) Deref() *T {
	return r.ptr
}

// Ok reports whether the Ref holds an object.
func (r *Ref[T]) Ok() bool {
	return r.ptr != nil
}

// Move transfers ownership to the returned Ref, leaving r empty.
func (r *Ref[T]) Move() Ref[T] {
	moved := Ref[T]{ptr: r.ptr, pool: r.pool}
	r.ptr, r.pool = nil, nil
	return moved
}

// Take releases ownership of the raw pointer without freeing it. The caller
// becomes responsible for handing it back to the pool.
func (r *Ref[T]) Take() *T {
	ptr := r.ptr
	r.ptr, r.pool = nil, nil
	return ptr
}

// Release frees the owned object, if any.
func (r *Ref[T]) Release() {
	if r.ptr != nil {
		r.pool.Put(r.ptr)
		r.ptr, r.pool = nil, nil
	}
}
