package nfc

import (
	"sync"
	"time"
)

// FakeReader is a test double that presents scripted cards.
type FakeReader struct {
	mu    sync.Mutex
	cards [][]byte
	polls int

	// PollError, if set, is returned by Poll.
	PollError error
}

// NewFakeReader creates a FakeReader that presents the given UIDs, one per
// Poll, then reports no card.
func NewFakeReader(uids ...[]byte) *FakeReader {
	return &FakeReader{cards: uids}
}

// Present queues another card.
func (f *FakeReader) Present(uid []byte) {
	f.mu.Lock()
	f.cards = append(f.cards, uid)
	f.mu.Unlock()
}

// Poll returns the next queued card, or nil.
func (f *FakeReader) Poll(timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.PollError != nil {
		return nil, f.PollError
	}
	if len(f.cards) == 0 {
		return nil, nil
	}
	uid := f.cards[0]
	f.cards = f.cards[1:]
	return uid, nil
}

// Polls returns the number of Poll calls.
func (f *FakeReader) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// Pending returns the number of cards not yet read.
func (f *FakeReader) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cards)
}
