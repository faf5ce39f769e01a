package mempool

import "github.com/dustin/go-humanize"

// ClassStats is one size class's view of the pool.
type ClassStats struct {
	Size        int   // block size in bytes
	Allocated   int64 // allocations served
	Deallocated int64 // blocks returned
	Chunks      int64 // chunks carved
	Heap        int64 // payload bytes taken from the runtime
}

// Stats snapshots every size class. Counters are maintained with relaxed
// increments; Allocated-Deallocated is exact only at quiescence.
func (p *MultiPool) Stats() []ClassStats {
	stats := make([]ClassStats, numClasses)
	for i := range p.classes {
		cls := &p.classes[i]
		nchunks := int64(cls.list.nchunks())
		stats[i] = ClassStats{
			Size:        cls.size,
			Allocated:   cls.allocated.Load(),
			Deallocated: cls.deallocated.Load(),
			Chunks:      nchunks,
			Heap:        nchunks * int64(cls.list.nper) * int64(cls.size),
		}
	}
	return stats
}

// PrintStats logs one line per touched class through the package logger.
// Silent unless LogComponents has enabled logging.
func (p *MultiPool) PrintStats() {
	for _, st := range p.Stats() {
		if st.Allocated == 0 && st.Deallocated == 0 {
			continue
		}
		infof("mempool: class %v allocs:%v frees:%v chunks:%v heap:%v\n",
			st.Size, st.Allocated, st.Deallocated, st.Chunks,
			humanize.Bytes(uint64(st.Heap)))
	}
}
