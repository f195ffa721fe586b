package actuator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// PWMPin is the subset of a periph output pin a servo needs.
type PWMPin interface {
	PWM(duty gpio.Duty, f physic.Frequency) error
	Halt() error
}

// ServoConfig describes the pulse train for a hobby servo.
type ServoConfig struct {
	Frequency   physic.Frequency
	ClosedPulse time.Duration
	OpenPulse   time.Duration
}

// DefaultServoConfig suits an MG90S: 50Hz, 0.5ms end of travel (closed),
// 1.5ms centre (open, 90 degrees).
var DefaultServoConfig = ServoConfig{
	Frequency:   50 * physic.Hertz,
	ClosedPulse: 500 * time.Microsecond,
	OpenPulse:   1500 * time.Microsecond,
}

// Servo is a Barrier driven by PWM position commands.
type Servo struct {
	mu     sync.Mutex
	name   string
	pin    PWMPin
	cfg    ServoConfig
	period time.Duration
}

// OpenServo initialises periph and looks up the named pin, e.g. "GPIO4".
func OpenServo(name string, cfg ServoConfig) (*Servo, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("servo pin %s: not found", name)
	}
	return NewServo(name, p, cfg)
}

// NewServo wraps an already resolved PWM pin.
func NewServo(name string, pin PWMPin, cfg ServoConfig) (*Servo, error) {
	if cfg.Frequency <= 0 {
		return nil, errors.New("servo: frequency must be positive")
	}
	period := cfg.Frequency.Period()
	for _, p := range []time.Duration{cfg.ClosedPulse, cfg.OpenPulse} {
		if p <= 0 || p >= period {
			return nil, fmt.Errorf("servo: pulse %v outside period %v", p, period)
		}
	}
	return &Servo{name: name, pin: pin, cfg: cfg, period: period}, nil
}

// SetOpen moves the barrier to the open position.
func (s *Servo) SetOpen() error {
	return s.pulse(s.cfg.OpenPulse)
}

// SetClosed moves the barrier to the closed position.
func (s *Servo) SetClosed() error {
	return s.pulse(s.cfg.ClosedPulse)
}

// Duty returns the duty cycle used for a pulse width.
func (s *Servo) Duty(pulse time.Duration) gpio.Duty {
	return gpio.Duty(int64(gpio.DutyMax) * int64(pulse) / int64(s.period))
}

func (s *Servo) pulse(width time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pin == nil {
		return errors.New("servo: closed")
	}
	if err := s.pin.PWM(s.Duty(width), s.cfg.Frequency); err != nil {
		return fmt.Errorf("servo %s: pwm %v: %w", s.name, width, err)
	}
	return nil
}

// Close stops the pulse train. Closing twice is not an error.
func (s *Servo) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pin == nil {
		return nil
	}
	err := s.pin.Halt()
	s.pin = nil
	if err != nil {
		return fmt.Errorf("servo %s: halt: %w", s.name, err)
	}
	return nil
}
