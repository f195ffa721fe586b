// Package loadcell converts HX711 samples into grams for one parking slot.
package loadcell

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/sweeney/parking-controller/internal/logic"
)

// ErrZeroScale is returned when a scale factor of zero is configured.
var ErrZeroScale = errors.New("loadcell: scale factor must be non-zero")

// DefaultSamples is the number of raw samples averaged per reading.
const DefaultSamples = 5

// Sampler produces one signed raw sample per call.
type Sampler interface {
	Read() (int32, error)
}

// Device is a Sampler that owns hardware.
type Device interface {
	Sampler
	io.Closer
}

// Pins identifies the lines a channel is wired to (BCM numbering).
type Pins struct {
	Data  int
	Clock int
}

// Channel is one load cell: its pins, calibration and last classified state.
// A Channel is owned by a single goroutine; only Close is safe to call
// concurrently.
type Channel struct {
	Index int
	Pins  Pins

	// State is the last classified occupancy state.
	State logic.State

	dev     Device
	offset  float64
	scale   float64
	samples int

	closeOnce sync.Once
	closeErr  error
}

// New wraps an opened device. samples <= 0 selects DefaultSamples.
func New(index int, pins Pins, dev Device, scale float64, samples int) (*Channel, error) {
	if scale == 0 {
		return nil, ErrZeroScale
	}
	if samples <= 0 {
		samples = DefaultSamples
	}
	return &Channel{
		Index:   index,
		Pins:    pins,
		State:   logic.StateFree,
		dev:     dev,
		scale:   scale,
		samples: samples,
	}, nil
}

// Offset returns the tare baseline in raw units.
func (c *Channel) Offset() float64 { return c.offset }

// Scale returns the raw-units-per-gram divisor.
func (c *Channel) Scale() float64 { return c.scale }

// SetScale replaces the scale factor.
func (c *Channel) SetScale(f float64) error {
	if f == 0 {
		return ErrZeroScale
	}
	c.scale = f
	return nil
}

// SetOffset replaces the tare baseline.
func (c *Channel) SetOffset(offset float64) {
	c.offset = offset
}

// average reads c.samples raw values and returns their mean.
func (c *Channel) average() (float64, error) {
	buf := make([]int32, c.samples)
	for i := range buf {
		v, err := c.dev.Read()
		if err != nil {
			return 0, fmt.Errorf("slot %d sample %d: %w", c.Index+1, i+1, err)
		}
		buf[i] = v
	}
	return logic.Average(buf), nil
}

// Tare averages unloaded samples and stores them as the new offset. On error
// the previous offset is kept. Tare may be repeated at any time.
func (c *Channel) Tare() error {
	avg, err := c.average()
	if err != nil {
		log.Printf("loadcell: tare failed, keeping offset %.1f: %v", c.offset, err)
		return fmt.Errorf("tare: %w", err)
	}
	c.offset = avg
	log.Printf("loadcell: slot %d tared (DT=%d SCK=%d), offset %.1f", c.Index+1, c.Pins.Data, c.Pins.Clock, avg)
	return nil
}

// Weight returns the filtered weight in grams (always >= 0).
func (c *Channel) Weight() (float64, error) {
	avg, err := c.average()
	if err != nil {
		return 0, err
	}
	return logic.Grams(avg, c.offset, c.scale), nil
}

// RawNet returns |average - offset| in raw units, as used when computing a
// scale factor against a known weight.
func (c *Channel) RawNet() (float64, error) {
	avg, err := c.average()
	if err != nil {
		return 0, err
	}
	net := avg - c.offset
	if net < 0 {
		net = -net
	}
	return net, nil
}

// Close releases the channel's pins. It is safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		if c.dev != nil {
			c.closeErr = c.dev.Close()
		}
	})
	return c.closeErr
}
