// Package logic contains pure business logic for slot occupancy and access decisions.
// This package has NO external dependencies (no GPIO, NFC, OS, or time.Sleep).
package logic

import (
	"errors"
	"fmt"
)

// State represents the occupancy state of a parking slot.
type State string

const (
	StateFree     State = "FREE"
	StateOccupied State = "OCCUPIED"
)

// Thresholds holds the hysteresis band used by Classify.
// A slot becomes OCCUPIED above Occupy and FREE again below Release.
type Thresholds struct {
	Occupy  float64 // grams
	Release float64 // grams
}

// DefaultThresholds match the deployed load cells: readings between 25g and
// 35g sit in the dead zone and never change state.
var DefaultThresholds = Thresholds{Occupy: 35.0, Release: 25.0}

// Validate reports whether the band is usable.
func (t Thresholds) Validate() error {
	if t.Release < 0 || t.Occupy < 0 {
		return errors.New("thresholds must be non-negative")
	}
	if t.Release > t.Occupy {
		return fmt.Errorf("release threshold %.2fg above occupy threshold %.2fg", t.Release, t.Occupy)
	}
	return nil
}

// Decision is the outcome of a card presentation.
type Decision int

const (
	Granted Decision = iota
	DeniedInvalid
	DeniedFull
)

// String returns the reason logged for a decision.
func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case DeniedInvalid:
		return "invalid"
	case DeniedFull:
		return "full"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}
