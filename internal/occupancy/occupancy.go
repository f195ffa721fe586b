// Package occupancy provides the thread-safe registry of per-slot occupancy.
// It is written by the weight loop and read by the access loop.
package occupancy

import (
	"fmt"
	"sync"

	"github.com/sweeney/parking-controller/internal/logic"
)

// Transition describes a slot changing state.
type Transition struct {
	Slot  int // zero-based
	From  logic.State
	To    logic.State
	Grams float64
}

// Registry holds slot states behind its own mutex. It never touches pins, so
// holding its lock can never block on, or be blocked by, the hardware arbiter.
type Registry struct {
	mu       sync.RWMutex
	slots    []logic.State
	onChange func(Transition)
}

// NewRegistry creates a registry with n slots, all FREE. onChange, if not nil,
// is called under the registry lock for every state change, before the new
// state becomes visible to readers. It must not block.
func NewRegistry(n int, onChange func(Transition)) *Registry {
	slots := make([]logic.State, n)
	for i := range slots {
		slots[i] = logic.StateFree
	}
	return &Registry{slots: slots, onChange: onChange}
}

// Len returns the number of slots.
func (r *Registry) Len() int {
	return len(r.slots)
}

// Set records the state of one slot, with the weight that produced it.
// It reports whether the state changed.
func (r *Registry) Set(slot int, state logic.State, grams float64) (bool, error) {
	if slot < 0 || slot >= len(r.slots) {
		return false, fmt.Errorf("occupancy: slot %d out of range [0,%d)", slot, len(r.slots))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.slots[slot]
	if prev == state {
		return false, nil
	}
	if r.onChange != nil {
		r.onChange(Transition{Slot: slot, From: prev, To: state, Grams: grams})
	}
	r.slots[slot] = state
	return true, nil
}

// Snapshot returns a copy of all slot states in slot order. It is a momentary
// view: slots are updated independently, so no cross-slot consistency is
// implied.
func (r *Registry) Snapshot() []logic.State {
	r.mu.RLock()
	out := make([]logic.State, len(r.slots))
	copy(out, r.slots)
	r.mu.RUnlock()
	return out
}

// Free returns the number of FREE slots.
func (r *Registry) Free() int {
	n := 0
	for _, s := range r.Snapshot() {
		if s == logic.StateFree {
			n++
		}
	}
	return n
}
