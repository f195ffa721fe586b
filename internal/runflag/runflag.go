// Package runflag provides the process-wide running signal shared by the
// weight and access loops.
package runflag

import (
	"sync"
	"time"
)

// Flag is set once at startup and cleared exactly once at shutdown. It is
// never reset. The zero value is a cleared flag; use New.
type Flag struct {
	mu      sync.Mutex
	running bool
	done    chan struct{}
	once    sync.Once
}

// New returns a flag in the running state.
func New() *Flag {
	return &Flag{running: true, done: make(chan struct{})}
}

// Running reports whether the flag is still set.
func (f *Flag) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Clear stops the flag. Only the first call has an effect; it reports
// whether this call was the one that cleared it.
func (f *Flag) Clear() bool {
	cleared := false
	f.once.Do(func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
		if f.done != nil {
			close(f.done)
		}
		cleared = true
	})
	return cleared
}

// Done returns a channel closed when the flag is cleared.
func (f *Flag) Done() <-chan struct{} {
	return f.done
}

// Sleep waits for d or until the flag is cleared, whichever comes first.
// It returns true if the full duration elapsed while still running.
func (f *Flag) Sleep(d time.Duration) bool {
	if !f.Running() {
		return false
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return f.Running()
	case <-f.done:
		return false
	}
}
