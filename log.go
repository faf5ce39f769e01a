package mempool

import "sync/atomic"

import "github.com/bnclabs/golog"

var logok = int64(0)

// LogComponents enables logging. By default nothing is logged; applications
// wanting diagnostics from this package call this function with "self" or
// "all" as argument. The data path never logs either way.
func LogComponents(components ...string) {
	for _, comp := range components {
		switch comp {
		case "mempool", "self", "all":
			atomic.StoreInt64(&logok, 1)
		}
	}
}

func debugf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Debugf(format, v...)
	}
}

func infof(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Infof(format, v...)
	}
}
