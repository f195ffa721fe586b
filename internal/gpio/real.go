//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// RealChip claims lines on actual hardware using the Linux GPIO character device.
type RealChip struct {
	mu   sync.Mutex
	chip *gpiocdev.Chip
}

// NewRealChip opens the named GPIO chip, e.g. "gpiochip0".
func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &RealChip{chip: chip}, nil
}

// RequestInput claims offset as an input.
func (c *RealChip) RequestInput(offset int) (Line, error) {
	return c.request(offset, false, gpiocdev.AsInput)
}

// RequestOutput claims offset as an output driven to initial.
func (c *RealChip) RequestOutput(offset int, initial int) (Line, error) {
	return c.request(offset, true, gpiocdev.AsOutput(initial))
}

func (c *RealChip) request(offset int, output bool, opts ...gpiocdev.LineReqOption) (Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chip == nil {
		return nil, ErrClosed
	}
	l, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}
	return &realLine{line: l, output: output}, nil
}

// Close releases the chip handle. Lines already handed out stay claimed
// until their own Close.
func (c *RealChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chip == nil {
		return nil
	}
	err := c.chip.Close()
	c.chip = nil
	if err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

type realLine struct {
	mu     sync.Mutex
	line   *gpiocdev.Line
	output bool
}

func (l *realLine) Value() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return 0, ErrClosed
	}
	return l.line.Value()
}

func (l *realLine) SetValue(v int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return ErrClosed
	}
	return l.line.SetValue(v)
}

// Close releases the line.
// Outputs are reconfigured to input with pull-down first (matching Pi boot
// defaults) so nothing is left driven after the process exits.
func (l *realLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return nil
	}
	var err error
	if l.output {
		if rerr := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure line %d: %w", l.line.Offset(), rerr))
		}
	}
	if cerr := l.line.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("close line %d: %w", l.line.Offset(), cerr))
	}
	l.line = nil
	return err
}
