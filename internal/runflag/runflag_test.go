package runflag

import (
	"testing"
	"time"
)

func TestNewIsRunning(t *testing.T) {
	f := New()
	if !f.Running() {
		t.Error("expected running after New")
	}
}

func TestClearOnce(t *testing.T) {
	f := New()
	if !f.Clear() {
		t.Error("first Clear should report true")
	}
	if f.Clear() {
		t.Error("second Clear should report false")
	}
	if f.Running() {
		t.Error("expected not running after Clear")
	}
	select {
	case <-f.Done():
	default:
		t.Error("Done channel not closed after Clear")
	}
}

func TestSleepFullDuration(t *testing.T) {
	f := New()
	start := time.Now()
	if !f.Sleep(20 * time.Millisecond) {
		t.Error("expected Sleep to complete")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("slept %v, want >= 20ms", elapsed)
	}
}

func TestSleepInterruptedByClear(t *testing.T) {
	f := New()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Clear()
	}()

	start := time.Now()
	if f.Sleep(10 * time.Second) {
		t.Error("expected Sleep to be interrupted")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("interrupted sleep took %v", elapsed)
	}
}

func TestSleepAfterClearReturnsImmediately(t *testing.T) {
	f := New()
	f.Clear()
	if f.Sleep(time.Hour) {
		t.Error("expected false when already cleared")
	}
}

func TestZeroValueIsCleared(t *testing.T) {
	var f Flag
	if f.Running() {
		t.Error("zero Flag should not be running")
	}
	// Clearing a zero Flag must not panic on the nil channel.
	f.Clear()
}
