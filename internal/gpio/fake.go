package gpio

import (
	"fmt"
	"sync"
)

// OpKind classifies a recorded pin operation.
type OpKind string

const (
	OpRead  OpKind = "read"
	OpWrite OpKind = "write"
	OpClose OpKind = "close"
)

// Op is one pin operation observed by a FakeChip.
type Op struct {
	Offset int
	Kind   OpKind
	Value  int
}

// FakeChip is a test double that hands out FakeLines and records every
// operation on them, in order, across all goroutines.
type FakeChip struct {
	mu    sync.Mutex
	lines map[int]*FakeLine
	ops   []Op

	// RequestErrors, if set for an offset, is returned by Request*.
	RequestErrors map[int]error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeChip creates an empty FakeChip.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		lines:         make(map[int]*FakeLine),
		RequestErrors: make(map[int]error),
	}
}

// Line returns the fake for offset, creating it if needed. Tests use it to
// script input values before the line is requested.
func (c *FakeChip) Line(offset int) *FakeLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lineLocked(offset)
}

func (c *FakeChip) lineLocked(offset int) *FakeLine {
	l, ok := c.lines[offset]
	if !ok {
		l = &FakeLine{chip: c, offset: offset}
		c.lines[offset] = l
	}
	return l
}

// RequestInput claims offset as an input.
func (c *FakeChip) RequestInput(offset int) (Line, error) {
	return c.request(offset, false, 0)
}

// RequestOutput claims offset as an output driven to initial.
func (c *FakeChip) RequestOutput(offset int, initial int) (Line, error) {
	return c.request(offset, true, initial)
}

func (c *FakeChip) request(offset int, output bool, initial int) (Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Closed {
		return nil, ErrClosed
	}
	if err := c.RequestErrors[offset]; err != nil {
		return nil, err
	}
	l := c.lineLocked(offset)
	if l.requested && !l.released {
		return nil, fmt.Errorf("line %d: busy", offset)
	}
	l.requested = true
	l.released = false
	l.Output = output
	if output {
		l.level = initial
	}
	return l, nil
}

// Close marks the chip as closed.
func (c *FakeChip) Close() error {
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
	return nil
}

// Ops returns a copy of every operation recorded so far.
func (c *FakeChip) Ops() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Op, len(c.ops))
	copy(out, c.ops)
	return out
}

// Released reports whether offset was requested and then closed.
func (c *FakeChip) Released(offset int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lines[offset]
	return ok && l.requested && l.released
}

// Claimed reports whether offset is currently held.
func (c *FakeChip) Claimed(offset int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lines[offset]
	return ok && l.requested && !l.released
}

func (c *FakeChip) record(op Op) {
	c.ops = append(c.ops, op)
}

// FakeLine is a scripted line owned by a FakeChip.
// Reads consume the scripted values first, then return the last level.
type FakeLine struct {
	chip      *FakeChip
	offset    int
	script    []int
	level     int
	requested bool
	released  bool

	// Output is true when the line was requested as an output.
	Output bool

	// ReadError and WriteError, if set, are returned by Value and SetValue.
	ReadError  error
	WriteError error
}

// Script queues values returned by successive reads.
func (l *FakeLine) Script(values ...int) {
	l.chip.mu.Lock()
	l.script = append(l.script, values...)
	l.chip.mu.Unlock()
}

// SetLevel sets the level returned once the script is exhausted.
func (l *FakeLine) SetLevel(v int) {
	l.chip.mu.Lock()
	l.level = v
	l.chip.mu.Unlock()
}

// Level returns the last written (or set) level.
func (l *FakeLine) Level() int {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	return l.level
}

// Value returns the next scripted value.
func (l *FakeLine) Value() (int, error) {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.released {
		return 0, ErrClosed
	}
	if l.ReadError != nil {
		return 0, l.ReadError
	}
	v := l.level
	if len(l.script) > 0 {
		v = l.script[0]
		l.script = l.script[1:]
	}
	l.chip.record(Op{Offset: l.offset, Kind: OpRead, Value: v})
	return v, nil
}

// SetValue records the write.
func (l *FakeLine) SetValue(v int) error {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.released {
		return ErrClosed
	}
	if l.WriteError != nil {
		return l.WriteError
	}
	l.level = v
	l.chip.record(Op{Offset: l.offset, Kind: OpWrite, Value: v})
	return nil
}

// Close releases the line. Closing twice is not an error.
func (l *FakeLine) Close() error {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true
	l.chip.record(Op{Offset: l.offset, Kind: OpClose})
	return nil
}
