// Package controller brings the parking controller up and down: it acquires
// the hardware in a fixed order, runs the weight loop in the background and
// the access loop in the foreground, and releases everything on shutdown.
package controller

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/sweeney/parking-controller/internal/access"
	"github.com/sweeney/parking-controller/internal/actuator"
	"github.com/sweeney/parking-controller/internal/allowlist"
	"github.com/sweeney/parking-controller/internal/config"
	"github.com/sweeney/parking-controller/internal/gpio"
	"github.com/sweeney/parking-controller/internal/loadcell"
	"github.com/sweeney/parking-controller/internal/logic"
	"github.com/sweeney/parking-controller/internal/monitor"
	"github.com/sweeney/parking-controller/internal/nfc"
	"github.com/sweeney/parking-controller/internal/occupancy"
	"github.com/sweeney/parking-controller/internal/runflag"
)

var errNotStarted = errors.New("controller: not started")

// ErrInterrupted is returned by Start when Stop is called before startup
// completes. It is a normal shutdown, not a failure.
var ErrInterrupted = errors.New("controller: startup interrupted")

// LED is a vacancy indicator that owns a pin.
type LED interface {
	actuator.LED
	io.Closer
}

// Barrier is the entry barrier actuator.
type Barrier interface {
	actuator.Barrier
	io.Closer
}

// Reader is the card reader.
type Reader interface {
	nfc.Reader
	io.Closer
}

// Hardware opens the physical devices. Close releases whatever is shared
// between devices (the GPIO chip) and is called last.
type Hardware interface {
	OpenLED(pin int) (LED, error)
	OpenBarrier() (Barrier, error)
	OpenReader() (Reader, error)
	OpenCell(pins loadcell.Pins) (loadcell.Device, error)
	Close() error
}

// Controller owns every resource of a running system.
type Controller struct {
	cfg  config.Config
	hw   Hardware
	flag *runflag.Flag
	arb  *gpio.Arbiter
	reg  *occupancy.Registry

	leds     []LED
	barrier  Barrier
	reader   Reader
	allow    *allowlist.List
	channels []*loadcell.Channel

	weight *monitor.Monitor
	gate   *access.Loop

	mu         sync.Mutex
	weightDone chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// New returns a controller with its run flag set. Nothing is opened until
// Start.
func New(cfg config.Config, hw Hardware) *Controller {
	return &Controller{
		cfg:  cfg,
		hw:   hw,
		flag: runflag.New(),
		arb:  gpio.NewArbiter(),
		reg:  occupancy.NewRegistry(len(cfg.Channels), monitor.LogTransition),
	}
}

// Registry returns the live occupancy registry.
func (c *Controller) Registry() *occupancy.Registry { return c.reg }

// Stop clears the run flag. Both loops return within one sleep interval.
func (c *Controller) Stop() { c.flag.Clear() }

// Start acquires all hardware. On failure everything acquired so far is
// released and the error is returned.
func (c *Controller) Start() error {
	if err := c.start(); err != nil {
		if errors.Is(err, ErrInterrupted) {
			log.Printf("startup: interrupted, releasing hardware")
		} else {
			log.Printf("startup: failed: %v", err)
		}
		if serr := c.Shutdown(); serr != nil {
			log.Printf("startup: cleanup: %v", serr)
		}
		return err
	}
	return nil
}

func (c *Controller) start() error {
	log.Printf("startup: %d slots, occupy above %.1fg, release below %.1fg",
		len(c.cfg.Channels), c.cfg.Occupy, c.cfg.Release)

	for i, ch := range c.cfg.Channels {
		led, err := c.hw.OpenLED(ch.LED)
		if err != nil {
			return fmt.Errorf("slot %d led pin %d: %w", i+1, ch.LED, err)
		}
		c.leds = append(c.leds, led)
	}
	if err := c.interrupted(); err != nil {
		return err
	}
	barrier, err := c.hw.OpenBarrier()
	if err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	c.barrier = barrier
	if err := c.arb.Do(barrier.SetClosed); err != nil {
		return fmt.Errorf("close barrier: %w", err)
	}
	log.Printf("startup: actuators ready, barrier closed")
	if err := c.interrupted(); err != nil {
		return err
	}

	reader, err := c.hw.OpenReader()
	if err != nil {
		return fmt.Errorf("nfc reader: %w", err)
	}
	c.reader = reader
	log.Printf("startup: nfc reader ready")
	if err := c.interrupted(); err != nil {
		return err
	}

	allow, err := allowlist.Load(c.cfg.AllowList)
	switch {
	case err != nil:
		log.Printf("startup: warning: %v; every card will be denied", err)
	case allow.Len() == 0:
		log.Printf("startup: warning: allow-list %s is empty; every card will be denied", c.cfg.AllowList)
	default:
		log.Printf("startup: %d cards allowed", allow.Len())
	}
	c.allow = allow

	channels, err := openChannels(c.cfg, c.hw)
	c.channels = channels
	if err != nil {
		return err
	}
	for _, ch := range c.channels {
		if err := c.interrupted(); err != nil {
			return err
		}
		// a failed tare is logged and leaves the offset at zero
		_ = c.arb.Do(ch.Tare)
	}
	log.Printf("startup: %d load cells tared", len(c.channels))

	slots := make([]monitor.Slot, len(c.channels))
	for i, ch := range c.channels {
		slots[i] = monitor.Slot{Channel: ch, LED: c.leds[i]}
	}
	t := c.cfg.Timing
	c.weight = monitor.New(slots, c.arb, c.reg, c.flag, monitor.Config{
		Thresholds: c.cfg.Thresholds(),
		Interval:   t.Cycle.D(),
		Backoff:    t.ErrorBackoff.D(),
	})
	c.gate = access.New(c.reader, c.allow, c.reg, c.barrier, c.arb, c.flag, access.Config{
		PollTimeout:  c.cfg.NFC.PollTimeout.D(),
		IdlePause:    t.IdlePause.D(),
		RemovalGrace: t.RemovalGrace.D(),
		Dwell:        t.BarrierDwell.D(),
	})
	log.Printf("startup: complete, %d of %d slots free", c.reg.Free(), c.reg.Len())
	return nil
}

func (c *Controller) interrupted() error {
	if !c.flag.Running() {
		return ErrInterrupted
	}
	return nil
}

// openChannels opens one load cell per configured slot. On error the
// channels opened so far are returned so the caller can release them.
func openChannels(cfg config.Config, hw Hardware) ([]*loadcell.Channel, error) {
	var channels []*loadcell.Channel
	for i, cc := range cfg.Channels {
		pins := loadcell.Pins{Data: cc.Data, Clock: cc.Clock}
		dev, err := hw.OpenCell(pins)
		if err != nil {
			return channels, fmt.Errorf("slot %d load cell (DT=%d SCK=%d): %w", i+1, cc.Data, cc.Clock, err)
		}
		ch, err := loadcell.New(i, pins, dev, cc.Scale, cfg.Timing.Samples)
		if err != nil {
			dev.Close()
			return channels, fmt.Errorf("slot %d: %w", i+1, err)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// Run starts the weight loop in the background and runs the access loop
// until the run flag is cleared.
func (c *Controller) Run() error {
	if c.weight == nil || c.gate == nil {
		return errNotStarted
	}
	done := make(chan struct{})
	c.mu.Lock()
	c.weightDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.weight.Run()
	}()
	c.gate.Run()
	return nil
}

// Shutdown stops both loops and releases all hardware. Every release is
// attempted; failures are combined. Later calls return the first result.
func (c *Controller) Shutdown() error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.shutdown()
	})
	return c.shutdownErr
}

func (c *Controller) shutdown() error {
	log.Printf("shutdown: stopping")
	c.flag.Clear()

	c.mu.Lock()
	done := c.weightDone
	c.mu.Unlock()
	if done != nil {
		select {
		case <-done:
			log.Printf("shutdown: weight loop stopped")
		case <-time.After(c.cfg.Timing.JoinTimeout.D()):
			log.Printf("shutdown: weight loop still running after %v", c.cfg.Timing.JoinTimeout.D())
		}
	}

	// Pins are released under the arbiter: after a join timeout the weight
	// loop may still be inside a read.
	var err error
	for i, led := range c.leds {
		if e := c.arb.Do(led.Off); e != nil {
			err = multierr.Append(err, fmt.Errorf("slot %d led off: %w", i+1, e))
		}
		err = multierr.Append(err, c.arb.Do(led.Close))
	}
	log.Printf("shutdown: leds off")

	for _, ch := range c.channels {
		if e := c.arb.Do(ch.Close); e != nil {
			err = multierr.Append(err, fmt.Errorf("slot %d release: %w", ch.Index+1, e))
		}
	}
	log.Printf("shutdown: %d channels released", len(c.channels))

	if c.barrier != nil {
		err = multierr.Append(err, c.barrier.Close())
	}
	if c.reader != nil {
		err = multierr.Append(err, c.reader.Close())
	}
	err = multierr.Append(err, c.hw.Close())

	if err != nil {
		log.Printf("shutdown: completed with errors: %v", err)
	} else {
		log.Printf("shutdown: complete")
	}
	return err
}

// PrintState opens and tares every load cell, reads each slot once and writes
// "slot N: W.WWg STATE" lines to w. All hardware is released before it
// returns.
func PrintState(cfg config.Config, hw Hardware, w io.Writer) (err error) {
	defer func() { err = multierr.Append(err, hw.Close()) }()

	channels, err := openChannels(cfg, hw)
	defer func() {
		for _, ch := range channels {
			err = multierr.Append(err, ch.Close())
		}
	}()
	if err != nil {
		return err
	}

	t := cfg.Thresholds()
	for _, ch := range channels {
		if err := ch.Tare(); err != nil {
			return fmt.Errorf("slot %d: %w", ch.Index+1, err)
		}
	}
	for _, ch := range channels {
		g, err := ch.Weight()
		if err != nil {
			return fmt.Errorf("slot %d: %w", ch.Index+1, err)
		}
		fmt.Fprintf(w, "slot %d: %.2fg %s\n", ch.Index+1, g, logic.Classify(logic.StateFree, g, t))
	}
	return nil
}
