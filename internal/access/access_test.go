package access

import (
	"bytes"
	"errors"
	"log"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/sweeney/parking-controller/internal/actuator"
	"github.com/sweeney/parking-controller/internal/allowlist"
	"github.com/sweeney/parking-controller/internal/gpio"
	"github.com/sweeney/parking-controller/internal/logic"
	"github.com/sweeney/parking-controller/internal/nfc"
	"github.com/sweeney/parking-controller/internal/occupancy"
	"github.com/sweeney/parking-controller/internal/runflag"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	validUID   = []byte{0x04, 0xa1, 0xb2, 0xc3}
	unknownUID = []byte{0xde, 0xad, 0xbe, 0xef}
)

type rig struct {
	reader  *nfc.FakeReader
	barrier *actuator.FakeBarrier
	reg     *occupancy.Registry
	arb     *gpio.Arbiter
	flag    *runflag.Flag
	loop    *Loop
}

func newRig(cfg Config, uids ...[]byte) *rig {
	r := &rig{
		reader:  nfc.NewFakeReader(uids...),
		barrier: &actuator.FakeBarrier{},
		reg:     occupancy.NewRegistry(3, nil),
		arb:     gpio.NewArbiter(),
		flag:    runflag.New(),
	}
	allow := allowlist.New(nfc.EncodeUID(validUID))
	r.loop = New(r.reader, allow, r.reg, r.barrier, r.arb, r.flag, cfg)
	return r
}

func fastConfig() Config {
	return Config{
		PollTimeout:  10 * time.Millisecond,
		IdlePause:    5 * time.Millisecond,
		RemovalGrace: 5 * time.Millisecond,
		Dwell:        20 * time.Millisecond,
	}
}

func occupyAll(t *testing.T, reg *occupancy.Registry) {
	t.Helper()
	for i := 0; i < reg.Len(); i++ {
		if _, err := reg.Set(i, logic.StateOccupied, 50); err != nil {
			t.Fatal(err)
		}
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestStepNoCard(t *testing.T) {
	r := newRig(fastConfig())
	if _, seen := r.loop.Step(); seen {
		t.Error("seen: got true, want false")
	}
	if got := r.barrier.Commands(); len(got) != 0 {
		t.Errorf("commands: got %v, want none", got)
	}
}

func TestStepUnknownCardDenied(t *testing.T) {
	buf := captureLog(t)
	r := newRig(fastConfig(), unknownUID)

	d, seen := r.loop.Step()
	if !seen || d != logic.DeniedInvalid {
		t.Fatalf("got (%v, %v), want (invalid, true)", d, seen)
	}
	if got := r.barrier.Commands(); len(got) != 0 {
		t.Errorf("commands: got %v, want none", got)
	}
	if !strings.Contains(buf.String(), "card deadbeef denied: invalid") {
		t.Errorf("log: got %q", buf.String())
	}
}

func TestStepFullDenied(t *testing.T) {
	buf := captureLog(t)
	r := newRig(fastConfig(), validUID)
	occupyAll(t, r.reg)

	d, seen := r.loop.Step()
	if !seen || d != logic.DeniedFull {
		t.Fatalf("got (%v, %v), want (full, true)", d, seen)
	}
	if got := r.barrier.Commands(); len(got) != 0 {
		t.Errorf("commands: got %v, want none", got)
	}
	if !strings.Contains(buf.String(), "denied: full") {
		t.Errorf("log: got %q", buf.String())
	}
}

func TestStepGrantedCyclesBarrier(t *testing.T) {
	buf := captureLog(t)
	r := newRig(fastConfig(), validUID)
	if _, err := r.reg.Set(0, logic.StateOccupied, 50); err != nil {
		t.Fatal(err)
	}

	d, seen := r.loop.Step()
	if !seen || d != logic.Granted {
		t.Fatalf("got (%v, %v), want (granted, true)", d, seen)
	}
	want := []actuator.Position{actuator.PositionOpen, actuator.PositionClosed}
	if got := r.barrier.Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands: got %v, want %v", got, want)
	}
	if !strings.Contains(buf.String(), "card 04a1b2c3 granted (2 of 3 slots free)") {
		t.Errorf("log: got %q", buf.String())
	}
}

func TestStepUppercaseAllowListEntry(t *testing.T) {
	r := newRig(fastConfig(), unknownUID)
	r.loop.allow = allowlist.New("DEADBEEF")

	if d, _ := r.loop.Step(); d != logic.Granted {
		t.Errorf("got %v, want granted", d)
	}
}

func TestNilAllowListDeniesAll(t *testing.T) {
	r := newRig(fastConfig(), validUID)
	r.loop.allow = nil

	if d, _ := r.loop.Step(); d != logic.DeniedInvalid {
		t.Errorf("got %v, want invalid", d)
	}
}

func TestArbiterReleasedDuringDwell(t *testing.T) {
	cfg := fastConfig()
	cfg.Dwell = 500 * time.Millisecond
	r := newRig(cfg, validUID)

	opened := make(chan struct{})
	r.barrier.OnCommand = func(p actuator.Position) {
		if p == actuator.PositionOpen {
			close(opened)
		}
	}

	done := make(chan struct{})
	go func() {
		r.loop.Step()
		close(done)
	}()

	<-opened
	acquired := make(chan struct{})
	go func() {
		r.arb.Do(func() error { return nil })
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("arbiter held during barrier dwell")
	}
	if got := r.barrier.Commands(); len(got) != 1 {
		t.Errorf("commands during dwell: got %v, want [open]", got)
	}
	<-done
}

func TestShutdownDuringDwellStillCloses(t *testing.T) {
	cfg := fastConfig()
	cfg.Dwell = time.Hour
	r := newRig(cfg, validUID)
	r.barrier.OnCommand = func(p actuator.Position) {
		if p == actuator.PositionOpen {
			go r.flag.Clear()
		}
	}

	done := make(chan struct{})
	go func() {
		r.loop.Step()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dwell not interrupted by shutdown")
	}
	want := []actuator.Position{actuator.PositionOpen, actuator.PositionClosed}
	if got := r.barrier.Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands: got %v, want %v", got, want)
	}
}

func TestServoErrorIsNotFatal(t *testing.T) {
	buf := captureLog(t)
	r := newRig(fastConfig(), validUID, validUID)
	r.barrier.OpenErr = errors.New("pwm busy")

	if d, _ := r.loop.Step(); d != logic.Granted {
		t.Fatalf("got %v, want granted", d)
	}
	// open failed, close still attempted
	want := []actuator.Position{actuator.PositionClosed}
	if got := r.barrier.Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands: got %v, want %v", got, want)
	}
	if !strings.Contains(buf.String(), "access: open barrier: pwm busy") {
		t.Errorf("log: got %q", buf.String())
	}

	r.barrier.OpenErr = nil
	if d, _ := r.loop.Step(); d != logic.Granted {
		t.Errorf("second card: got %v, want granted", d)
	}
}

func TestPollErrorsLoggedOncePerStreak(t *testing.T) {
	buf := captureLog(t)
	r := newRig(fastConfig())
	r.reader.PollError = errors.New("i2c nack")

	for i := 0; i < 5; i++ {
		if _, seen := r.loop.Step(); seen {
			t.Fatal("poll error reported as a card")
		}
	}
	if n := strings.Count(buf.String(), "reader poll failed"); n != 1 {
		t.Errorf("poll failure lines: got %d, want 1", n)
	}

	r.reader.PollError = nil
	r.loop.Step()
	if !strings.Contains(buf.String(), "access: reader recovered") {
		t.Errorf("log: got %q", buf.String())
	}
}

func TestRunStopsOnFlagClear(t *testing.T) {
	r := newRig(fastConfig(), unknownUID, validUID)

	done := make(chan struct{})
	go func() {
		r.loop.Run()
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for r.reader.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.flag.Clear()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("access loop did not stop")
	}
	if r.reader.Pending() != 0 {
		t.Errorf("pending cards: got %d, want 0", r.reader.Pending())
	}
}
