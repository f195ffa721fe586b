// Package monitor runs the weight loop: it samples each slot's load cell in
// turn, classifies occupancy, drives the slot LED and publishes the result to
// the occupancy registry.
package monitor

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/parking-controller/internal/actuator"
	"github.com/sweeney/parking-controller/internal/gpio"
	"github.com/sweeney/parking-controller/internal/loadcell"
	"github.com/sweeney/parking-controller/internal/logic"
	"github.com/sweeney/parking-controller/internal/occupancy"
	"github.com/sweeney/parking-controller/internal/runflag"
)

const (
	DefaultInterval = 200 * time.Millisecond
	DefaultBackoff  = time.Second
)

var errNoSlots = errors.New("monitor: no slots")

// Slot pairs a load cell with its vacancy LED.
type Slot struct {
	Channel *loadcell.Channel
	LED     actuator.LED
}

// Config holds the loop's thresholds and timing.
type Config struct {
	Thresholds logic.Thresholds
	Interval   time.Duration // pause after a good cycle
	Backoff    time.Duration // pause after a failed cycle
}

// Monitor owns the channels for its whole lifetime. Pin access goes through
// the arbiter; the registry is written only after the arbiter is released.
type Monitor struct {
	slots []Slot
	arb   *gpio.Arbiter
	reg   *occupancy.Registry
	flag  *runflag.Flag
	cfg   Config
	next  int
}

func New(slots []Slot, arb *gpio.Arbiter, reg *occupancy.Registry, flag *runflag.Flag, cfg Config) *Monitor {
	return &Monitor{slots: slots, arb: arb, reg: reg, flag: flag, cfg: cfg}
}

// Step runs one cycle on the next slot in round-robin order. The slot index
// advances even when the cycle fails, so one broken cell cannot starve the
// others.
func (m *Monitor) Step() error {
	if len(m.slots) == 0 {
		return errNoSlots
	}
	i := m.next
	m.next = (i + 1) % len(m.slots)
	s := m.slots[i]

	var grams float64
	var state logic.State
	var ledErr error
	err := m.arb.Do(func() error {
		g, err := s.Channel.Weight()
		if err != nil {
			return err
		}
		grams = g
		state = logic.Classify(s.Channel.State, g, m.cfg.Thresholds)
		s.Channel.State = state
		if s.LED == nil {
			return nil
		}
		// lit means vacant
		if state == logic.StateFree {
			ledErr = s.LED.On()
		} else {
			ledErr = s.LED.Off()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	if _, err := m.reg.Set(s.Channel.Index, state, grams); err != nil {
		return err
	}
	if ledErr != nil {
		return fmt.Errorf("slot %d led: %w", s.Channel.Index+1, ledErr)
	}
	return nil
}

// Run cycles until the run flag is cleared. A failed cycle is logged and
// followed by the backoff pause; it never ends the loop.
func (m *Monitor) Run() {
	log.Printf("weight: monitoring %d slots every %v", len(m.slots), m.cfg.Interval)
	for m.flag.Running() {
		if err := m.Step(); err != nil {
			if !m.flag.Running() {
				break
			}
			log.Printf("weight: %v", err)
			m.flag.Sleep(m.cfg.Backoff)
			continue
		}
		m.flag.Sleep(m.cfg.Interval)
	}
	log.Printf("weight: stopped")
}

// LogTransition is a registry change hook that logs the new state.
func LogTransition(t occupancy.Transition) {
	log.Printf("weight: slot %d -> %s (%.2fg)", t.Slot+1, t.To, t.Grams)
}
