// Package access runs the barrier loop: it polls the NFC reader, checks the
// card against the allow-list and the free-slot count, and opens the barrier
// for granted cards.
package access

import (
	"log"
	"time"

	"github.com/sweeney/parking-controller/internal/actuator"
	"github.com/sweeney/parking-controller/internal/allowlist"
	"github.com/sweeney/parking-controller/internal/gpio"
	"github.com/sweeney/parking-controller/internal/logic"
	"github.com/sweeney/parking-controller/internal/nfc"
	"github.com/sweeney/parking-controller/internal/occupancy"
	"github.com/sweeney/parking-controller/internal/runflag"
)

const (
	DefaultPollTimeout  = 100 * time.Millisecond
	DefaultIdlePause    = 100 * time.Millisecond
	DefaultRemovalGrace = 3 * time.Second
	DefaultDwell        = 10 * time.Second
)

type Config struct {
	PollTimeout  time.Duration
	IdlePause    time.Duration // between polls that found no card
	RemovalGrace time.Duration // after any card, so one tap is read once
	Dwell        time.Duration // how long the barrier stays open
}

// DefaultConfig returns the standard loop timings.
func DefaultConfig() Config {
	return Config{
		PollTimeout:  DefaultPollTimeout,
		IdlePause:    DefaultIdlePause,
		RemovalGrace: DefaultRemovalGrace,
		Dwell:        DefaultDwell,
	}
}

// Loop is the access control task. The allow-list may be nil, in which case
// every card is denied.
type Loop struct {
	reader  nfc.Reader
	allow   *allowlist.List
	reg     *occupancy.Registry
	barrier actuator.Barrier
	arb     *gpio.Arbiter
	flag    *runflag.Flag
	cfg     Config

	pollFailing bool
}

func New(reader nfc.Reader, allow *allowlist.List, reg *occupancy.Registry, barrier actuator.Barrier, arb *gpio.Arbiter, flag *runflag.Flag, cfg Config) *Loop {
	return &Loop{
		reader:  reader,
		allow:   allow,
		reg:     reg,
		barrier: barrier,
		arb:     arb,
		flag:    flag,
		cfg:     cfg,
	}
}

// Step polls once and handles any card found. seen reports whether a card
// was read; d is meaningful only when seen is true.
func (l *Loop) Step() (d logic.Decision, seen bool) {
	uid, err := l.reader.Poll(l.cfg.PollTimeout)
	if err != nil {
		if !l.pollFailing {
			log.Printf("access: reader poll failed: %v", err)
			l.pollFailing = true
		}
		return 0, false
	}
	if l.pollFailing {
		log.Printf("access: reader recovered")
		l.pollFailing = false
	}
	if len(uid) == 0 {
		return 0, false
	}

	card := nfc.EncodeUID(uid)
	d = logic.Decide(l.allow.Contains(card), l.reg.Snapshot())
	switch d {
	case logic.Granted:
		log.Printf("access: card %s granted (%d of %d slots free)", card, l.reg.Free(), l.reg.Len())
		l.cycleBarrier()
	case logic.DeniedInvalid:
		log.Printf("access: card %s denied: invalid", card)
	case logic.DeniedFull:
		log.Printf("access: card %s denied: full (0 of %d slots free)", card, l.reg.Len())
	}
	return d, true
}

// cycleBarrier opens the barrier, holds it for the dwell and closes it. The
// arbiter is held only for each servo command. The barrier is closed even if
// the dwell is cut short by shutdown or the open command failed.
func (l *Loop) cycleBarrier() {
	if err := l.arb.Do(l.barrier.SetOpen); err != nil {
		log.Printf("access: open barrier: %v", err)
	} else {
		log.Printf("access: barrier open for %v", l.cfg.Dwell)
		l.flag.Sleep(l.cfg.Dwell)
	}
	if err := l.arb.Do(l.barrier.SetClosed); err != nil {
		log.Printf("access: close barrier: %v", err)
		return
	}
	log.Printf("access: barrier closed")
}

// Run polls until the run flag is cleared.
func (l *Loop) Run() {
	log.Printf("access: polling reader (%d cards allowed)", l.allow.Len())
	for l.flag.Running() {
		if _, seen := l.Step(); seen {
			l.flag.Sleep(l.cfg.RemovalGrace)
		} else {
			l.flag.Sleep(l.cfg.IdlePause)
		}
	}
	log.Printf("access: stopped")
}
