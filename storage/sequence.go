package storage

import (
	"sync/atomic"
	"time"
)

var lastSequence int64

// nextSequence returns a strictly increasing value close to the current time
// in microseconds. It orders entities by creation inside one process.
func nextSequence() int64 {
	for {
		now := time.Now().UnixMicro()
		last := atomic.LoadInt64(&lastSequence)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastSequence, last, now) {
			return now
		}
	}
}
