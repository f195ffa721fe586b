// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation records every pin operation for tests.
package gpio

import "errors"

// ErrClosed is returned by operations on a released line or chip.
var ErrClosed = errors.New("gpio: closed")

// Line is a single claimed GPIO line.
type Line interface {
	// Value returns the current level (0 or 1).
	Value() (int, error)

	// SetValue drives an output line to the given level.
	SetValue(v int) error

	// Close releases the line claim. Closing twice is not an error.
	Close() error
}

// Chip hands out line claims by BCM offset.
type Chip interface {
	RequestInput(offset int) (Line, error)
	RequestOutput(offset int, initial int) (Line, error)
	Close() error
}

// DefaultChip is the Raspberry Pi header GPIO controller.
const DefaultChip = "gpiochip0"
