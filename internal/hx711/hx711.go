// Package hx711 reads signed 24-bit samples from an HX711 load-cell amplifier
// by bit-banging its data (DT) and clock (SCK) lines.
//
// The driver does no locking of its own: callers serialize whole reads
// against other pin users.
package hx711

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/parking-controller/internal/gpio"
	"go.uber.org/multierr"
)

// ErrNotReady is returned when DT does not go low within the ready timeout.
var ErrNotReady = errors.New("hx711: data not ready")

const (
	bits = 24
	// One extra clock pulse after the data bits selects channel A, gain 128.
	gainPulses = 1

	defaultReadyTimeout = time.Second
	readyBackoff        = 10 * time.Millisecond
)

// Pins identifies the lines an HX711 is wired to (BCM numbering).
type Pins struct {
	Data  int
	Clock int
}

// Device is one HX711 on a pin pair.
type Device struct {
	pins  Pins
	data  gpio.Line
	clock gpio.Line

	// ReadyTimeout bounds the wait for a conversion. Zero means one second.
	ReadyTimeout time.Duration

	sleep func(time.Duration)
}

// Open claims DT as input and SCK as output (driven low). If the second claim
// fails the first is released before returning.
func Open(chip gpio.Chip, pins Pins) (*Device, error) {
	data, err := chip.RequestInput(pins.Data)
	if err != nil {
		return nil, fmt.Errorf("request DT pin %d: %w", pins.Data, err)
	}
	clock, err := chip.RequestOutput(pins.Clock, 0)
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("request SCK pin %d: %w", pins.Clock, err)
	}
	return &Device{pins: pins, data: data, clock: clock, sleep: time.Sleep}, nil
}

// Pins returns the pin pair the device was opened on.
func (d *Device) Pins() Pins {
	return d.pins
}

// Read blocks until a conversion is ready, then clocks out one sample.
func (d *Device) Read() (int32, error) {
	if d.data == nil || d.clock == nil {
		return 0, gpio.ErrClosed
	}
	if err := d.waitReady(); err != nil {
		return 0, err
	}

	var raw uint32
	for i := 0; i < bits; i++ {
		if err := d.clock.SetValue(1); err != nil {
			return 0, fmt.Errorf("hx711: clock high: %w", err)
		}
		v, err := d.data.Value()
		if err != nil {
			return 0, fmt.Errorf("hx711: read bit %d: %w", i, err)
		}
		raw <<= 1
		if v == 1 {
			raw |= 1
		}
		if err := d.clock.SetValue(0); err != nil {
			return 0, fmt.Errorf("hx711: clock low: %w", err)
		}
	}
	for i := 0; i < gainPulses; i++ {
		if err := d.clock.SetValue(1); err != nil {
			return 0, fmt.Errorf("hx711: gain pulse: %w", err)
		}
		if err := d.clock.SetValue(0); err != nil {
			return 0, fmt.Errorf("hx711: gain pulse: %w", err)
		}
	}
	return signExtend(raw), nil
}

// waitReady polls DT until the chip pulls it low.
func (d *Device) waitReady() error {
	timeout := d.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	for waited := time.Duration(0); ; waited += readyBackoff {
		v, err := d.data.Value()
		if err != nil {
			return fmt.Errorf("hx711: read DT: %w", err)
		}
		if v == 0 {
			return nil
		}
		if waited >= timeout {
			return fmt.Errorf("%w after %v (DT=%d)", ErrNotReady, timeout, d.pins.Data)
		}
		d.sleep(readyBackoff)
	}
}

// Close releases both lines. Closing twice is not an error.
func (d *Device) Close() error {
	var err error
	if d.clock != nil {
		err = multierr.Append(err, d.clock.Close())
		d.clock = nil
	}
	if d.data != nil {
		err = multierr.Append(err, d.data.Close())
		d.data = nil
	}
	return err
}

func signExtend(raw uint32) int32 {
	raw &= 0xFFFFFF
	if raw&0x800000 != 0 {
		raw |= 0xFF000000
	}
	return int32(raw)
}
