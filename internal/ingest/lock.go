package ingest

import (
	"sync"
	"sync/atomic"
)

// pathLock is a non-blocking lock built on CompareAndSwap.
type pathLock struct {
	state atomic.Int32 // 0 = free, 1 = held
}

func (l *pathLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

func (l *pathLock) release() {
	l.state.Store(0)
}

// pathGuard rejects a second ingestion of a path while the first is running.
// Entries are never removed; the set is bounded by the distinct paths a
// process ingests.
type pathGuard struct {
	locks sync.Map // absolute path -> *pathLock
}

// tryAcquire returns a release func, or false if path is already in flight.
func (g *pathGuard) tryAcquire(path string) (func(), bool) {
	v, _ := g.locks.LoadOrStore(path, &pathLock{})
	lock := v.(*pathLock)
	if !lock.tryAcquire() {
		return nil, false
	}
	return lock.release, true
}
