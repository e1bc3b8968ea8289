package indexing

import "sync/atomic"

// Guard is a single-flight flag. The zero value is released.
type Guard struct {
	held atomic.Bool
}

// TryAcquire takes the guard and reports whether this call won it.
func (g *Guard) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release frees the guard.
func (g *Guard) Release() {
	g.held.Store(false)
}

// Held reports whether the guard is taken.
func (g *Guard) Held() bool {
	return g.held.Load()
}
