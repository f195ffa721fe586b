package gpio

import "sync"

// Arbiter serializes physical pin access across goroutines. Every sequence
// of pin operations that other tasks must see as atomic (a full sensor read
// cycle, a servo position change) runs inside Do.
//
// Arbiter must never be held while sleeping or while holding another lock.
type Arbiter struct {
	mu sync.Mutex
}

// NewArbiter returns an unlocked Arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// Do runs fn with exclusive pin access. The arbiter is released on every
// exit path, including a panic in fn.
func (a *Arbiter) Do(fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn()
}
