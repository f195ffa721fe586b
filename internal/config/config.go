// Package config holds the deployment settings of the parking controller:
// pin assignments, calibration factors, thresholds and loop timings. Settings
// live in a TOML file; a missing file means factory defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"github.com/sweeney/parking-controller/internal/logic"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Duration is a time.Duration stored as a string such as "200ms".
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Channel is one weight-sensing slot.
type Channel struct {
	Data  int     `toml:"data_pin"`
	Clock int     `toml:"clock_pin"`
	LED   int     `toml:"led_pin"`
	Scale float64 `toml:"scale"`
}

type Servo struct {
	Pin         string   `toml:"pin"`
	FrequencyHz float64  `toml:"frequency_hz"`
	ClosedPulse Duration `toml:"closed_pulse"`
	OpenPulse   Duration `toml:"open_pulse"`
}

type NFC struct {
	Bus         string   `toml:"i2c_bus"`
	Addr        uint16   `toml:"i2c_addr"`
	PollTimeout Duration `toml:"poll_timeout"`
}

type Timing struct {
	Samples      int      `toml:"samples"`
	Cycle        Duration `toml:"cycle"`
	ErrorBackoff Duration `toml:"error_backoff"`
	IdlePause    Duration `toml:"idle_pause"`
	RemovalGrace Duration `toml:"removal_grace"`
	BarrierDwell Duration `toml:"barrier_dwell"`
	JoinTimeout  Duration `toml:"join_timeout"`
}

type Config struct {
	Chip      string    `toml:"chip"`
	AllowList string    `toml:"allow_list"`
	Occupy    float64   `toml:"occupy_grams"`
	Release   float64   `toml:"release_grams"`
	Channels  []Channel `toml:"channel"`
	Servo     Servo     `toml:"servo"`
	NFC       NFC       `toml:"nfc"`
	Timing    Timing    `toml:"timing"`
}

// Thresholds returns the hysteresis band.
func (c Config) Thresholds() logic.Thresholds {
	return logic.Thresholds{Occupy: c.Occupy, Release: c.Release}
}

// Default returns the factory configuration.
func Default() Config {
	return Config{
		Chip:      "gpiochip0",
		AllowList: "valid_uids.txt",
		Occupy:    35.0,
		Release:   25.0,
		Channels: []Channel{
			{Data: 17, Clock: 27, LED: 22, Scale: 215.24},
			{Data: 5, Clock: 6, LED: 23, Scale: 92.5714},
			{Data: 13, Clock: 19, LED: 24, Scale: 33.2686},
		},
		Servo: Servo{
			Pin:         "GPIO4",
			FrequencyHz: 50,
			ClosedPulse: Duration(500 * time.Microsecond),
			OpenPulse:   Duration(1500 * time.Microsecond),
		},
		NFC: NFC{
			Addr:        0x24,
			PollTimeout: Duration(100 * time.Millisecond),
		},
		Timing: Timing{
			Samples:      5,
			Cycle:        Duration(200 * time.Millisecond),
			ErrorBackoff: Duration(time.Second),
			IdlePause:    Duration(100 * time.Millisecond),
			RemovalGrace: Duration(3 * time.Second),
			BarrierDwell: Duration(10 * time.Second),
			JoinTimeout:  Duration(5 * time.Second),
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}

	// A file that lists channels replaces the default set entirely.
	cfg.Channels = nil
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = Default().Channels
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// WriteDefault writes the factory configuration to path.
func WriteDefault(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	err = toml.NewEncoder(f).Encode(Default())
	return multierr.Append(err, f.Close())
}

// Validate reports every problem found, each wrapping ErrInvalid.
func (c Config) Validate() error {
	var err error
	bad := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if len(c.Channels) == 0 {
		bad("no channels")
	}
	if terr := c.Thresholds().Validate(); terr != nil {
		bad("%v", terr)
	}
	if c.Timing.Samples < 1 {
		bad("samples %d < 1", c.Timing.Samples)
	}
	if c.Servo.FrequencyHz <= 0 {
		bad("servo frequency %.1fHz", c.Servo.FrequencyHz)
	}

	durations := map[string]Duration{
		"servo.closed_pulse":   c.Servo.ClosedPulse,
		"servo.open_pulse":     c.Servo.OpenPulse,
		"nfc.poll_timeout":     c.NFC.PollTimeout,
		"timing.cycle":         c.Timing.Cycle,
		"timing.error_backoff": c.Timing.ErrorBackoff,
		"timing.idle_pause":    c.Timing.IdlePause,
		"timing.removal_grace": c.Timing.RemovalGrace,
		"timing.barrier_dwell": c.Timing.BarrierDwell,
		"timing.join_timeout":  c.Timing.JoinTimeout,
	}
	for name, d := range durations {
		if d < 0 {
			bad("%s is negative", name)
		}
	}

	pins := make(map[int]string)
	claim := func(pin int, what string) {
		if other, ok := pins[pin]; ok {
			bad("pin %d used by %s and %s", pin, other, what)
			return
		}
		pins[pin] = what
	}
	for i, ch := range c.Channels {
		if ch.Scale == 0 {
			bad("channel %d scale is zero", i+1)
		}
		claim(ch.Data, fmt.Sprintf("channel %d data", i+1))
		claim(ch.Clock, fmt.Sprintf("channel %d clock", i+1))
		claim(ch.LED, fmt.Sprintf("channel %d led", i+1))
	}
	return err
}
