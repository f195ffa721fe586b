// Package actuator drives the status LEDs and the barrier servo.
package actuator

import (
	"fmt"
	"sync"

	"github.com/sweeney/parking-controller/internal/gpio"
)

// LED is an on/off indicator.
type LED interface {
	On() error
	Off() error
}

// Barrier is the entry gate.
type Barrier interface {
	SetOpen() error
	SetClosed() error
}

// GPIOLED is an LED on a claimed output line.
type GPIOLED struct {
	mu   sync.Mutex
	pin  int
	line gpio.Line
}

// NewLED claims pin as an output, initially off.
func NewLED(chip gpio.Chip, pin int) (*GPIOLED, error) {
	line, err := chip.RequestOutput(pin, 0)
	if err != nil {
		return nil, fmt.Errorf("request LED pin %d: %w", pin, err)
	}
	return &GPIOLED{pin: pin, line: line}, nil
}

// Pin returns the BCM pin number.
func (l *GPIOLED) Pin() int { return l.pin }

// On lights the LED.
func (l *GPIOLED) On() error { return l.set(1) }

// Off turns the LED off.
func (l *GPIOLED) Off() error { return l.set(0) }

func (l *GPIOLED) set(v int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return gpio.ErrClosed
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("LED pin %d: %w", l.pin, err)
	}
	return nil
}

// Close releases the line. Closing twice is not an error.
func (l *GPIOLED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return nil
	}
	err := l.line.Close()
	l.line = nil
	return err
}
