package actuator

import "sync"

// FakeLED records LED commands for test assertions.
type FakeLED struct {
	mu   sync.Mutex
	on   bool
	ons  int
	offs int

	// Err, if set, is returned by On and Off.
	Err error
}

// On records the call.
func (f *FakeLED) On() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.on = true
	f.ons++
	return nil
}

// Off records the call.
func (f *FakeLED) Off() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.on = false
	f.offs++
	return nil
}

// IsOn reports the last commanded state.
func (f *FakeLED) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Counts returns the number of On and Off calls.
func (f *FakeLED) Counts() (ons, offs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ons, f.offs
}

// Position is a commanded barrier position.
type Position string

const (
	PositionOpen   Position = "open"
	PositionClosed Position = "closed"
)

// FakeBarrier records barrier commands for test assertions.
type FakeBarrier struct {
	mu       sync.Mutex
	commands []Position

	// OpenErr and CloseErr, if set, are returned by SetOpen and SetClosed.
	OpenErr  error
	CloseErr error

	// OnCommand, if set, is called with each command before it is recorded.
	OnCommand func(Position)
}

// SetOpen records an open command.
func (f *FakeBarrier) SetOpen() error {
	return f.command(PositionOpen, f.OpenErr)
}

// SetClosed records a close command.
func (f *FakeBarrier) SetClosed() error {
	return f.command(PositionClosed, f.CloseErr)
}

func (f *FakeBarrier) command(p Position, err error) error {
	if f.OnCommand != nil {
		f.OnCommand(p)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	f.commands = append(f.commands, p)
	return nil
}

// Commands returns a copy of all recorded commands.
func (f *FakeBarrier) Commands() []Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Position, len(f.commands))
	copy(out, f.commands)
	return out
}
