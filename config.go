package mempool

import "fmt"

import s "github.com/bnclabs/gosettings"

// Defaultsettings for pools, applied under settings supplied to New and
// NewMultiPool.
//
// "chunksize" (int64, default: 65536)
//		Bytes of payload storage carved per chunk.
//
// "maxchunks" (int64, default: 65536)
//		Maximum number of chunks a single size class may own. Growing past
//		it fails the allocation with a nil return.
//
// "cache.capacity" (int64, default: 32)
//		Blocks a cache holds per size class.
//
// "cache.batchsize" (int64, default: 8)
//		Blocks moved from the global freelist into a cache per refill.
func Defaultsettings() s.Settings {
	return s.Settings{
		"chunksize":       int64(64 * 1024),
		"maxchunks":       int64(65536),
		"cache.capacity":  int64(32),
		"cache.batchsize": int64(8),
	}
}

type config struct {
	chunksize int64
	maxchunks int64
	cachecap  int64
	batchsize int64
}

func makeconfig(setts s.Settings) config {
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	cfg := config{
		chunksize: setts.Int64("chunksize"),
		maxchunks: setts.Int64("maxchunks"),
		cachecap:  setts.Int64("cache.capacity"),
		batchsize: setts.Int64("cache.batchsize"),
	}
	if cfg.chunksize <= 0 {
		panic(fmt.Errorf("chunksize must be positive, got %v", cfg.chunksize))
	} else if cfg.maxchunks <= 0 {
		panic(fmt.Errorf("maxchunks must be positive, got %v", cfg.maxchunks))
	} else if cfg.cachecap < 2 {
		panic(fmt.Errorf("cache.capacity must be >= 2, got %v", cfg.cachecap))
	} else if cfg.batchsize <= 0 || cfg.batchsize > cfg.cachecap {
		fmsg := "cache.batchsize %v must be within (0, cache.capacity=%v]"
		panic(fmt.Errorf(fmsg, cfg.batchsize, cfg.cachecap))
	}
	return cfg
}
