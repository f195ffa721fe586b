package loadcell

import (
	"errors"
	"sync"
)

// FakeDevice is a test double that returns scripted raw samples.
type FakeDevice struct {
	mu sync.Mutex

	// Samples are returned in order; the last one repeats once exhausted.
	Samples []int32
	index   int

	// ReadError, if set, is returned by Read.
	ReadError error

	// Reads counts calls to Read.
	Reads int

	// Closes counts calls to Close.
	Closes int
}

// NewFakeDevice creates a FakeDevice with the given samples.
func NewFakeDevice(samples ...int32) *FakeDevice {
	return &FakeDevice{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeDevice) Read() (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}
	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Set replaces the script with a constant reading.
func (f *FakeDevice) Set(v int32) {
	f.mu.Lock()
	f.Samples = []int32{v}
	f.index = 0
	f.mu.Unlock()
}

// Fail makes subsequent reads return err (nil clears it).
func (f *FakeDevice) Fail(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// Close records the call.
func (f *FakeDevice) Close() error {
	f.mu.Lock()
	f.Closes++
	f.mu.Unlock()
	return nil
}

// CloseCount returns the number of Close calls.
func (f *FakeDevice) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closes
}
