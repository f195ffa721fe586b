package controller

import (
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/sweeney/parking-controller/internal/actuator"
	"github.com/sweeney/parking-controller/internal/config"
	"github.com/sweeney/parking-controller/internal/gpio"
	"github.com/sweeney/parking-controller/internal/hx711"
	"github.com/sweeney/parking-controller/internal/loadcell"
	"github.com/sweeney/parking-controller/internal/nfc"
)

// Board is the Raspberry Pi wiring: LEDs and HX711 lines on the GPIO
// character device, the servo on a periph PWM pin and the PN532 on I2C.
type Board struct {
	cfg config.Config

	mu      sync.Mutex
	chip    gpio.Chip
	openErr error
	opened  bool
	newChip func(name string) (gpio.Chip, error)
}

// NewBoard returns a Board for cfg. The GPIO chip is opened on first use.
func NewBoard(cfg config.Config) *Board {
	return &Board{
		cfg: cfg,
		newChip: func(name string) (gpio.Chip, error) {
			c, err := gpio.NewRealChip(name)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

func (b *Board) gpioChip() (gpio.Chip, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened {
		b.opened = true
		b.chip, b.openErr = b.newChip(b.cfg.Chip)
	}
	return b.chip, b.openErr
}

func (b *Board) OpenLED(pin int) (LED, error) {
	chip, err := b.gpioChip()
	if err != nil {
		return nil, err
	}
	led, err := actuator.NewLED(chip, pin)
	if err != nil {
		return nil, err
	}
	return led, nil
}

func (b *Board) OpenBarrier() (Barrier, error) {
	s, err := actuator.OpenServo(b.cfg.Servo.Pin, ServoConfig(b.cfg.Servo))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *Board) OpenReader() (Reader, error) {
	p, err := nfc.OpenPN532(b.cfg.NFC.Bus, b.cfg.NFC.Addr)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (b *Board) OpenCell(pins loadcell.Pins) (loadcell.Device, error) {
	chip, err := b.gpioChip()
	if err != nil {
		return nil, err
	}
	dev, err := hx711.Open(chip, hx711.Pins{Data: pins.Data, Clock: pins.Clock})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Close releases the GPIO chip if it was opened.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chip == nil {
		return nil
	}
	err := b.chip.Close()
	b.chip = nil
	b.openErr = gpio.ErrClosed
	return err
}

// ServoConfig converts the file settings to actuator settings.
func ServoConfig(s config.Servo) actuator.ServoConfig {
	return actuator.ServoConfig{
		Frequency:   physic.Frequency(s.FrequencyHz * float64(physic.Hertz)),
		ClosedPulse: s.ClosedPulse.D(),
		OpenPulse:   s.OpenPulse.D(),
	}
}
