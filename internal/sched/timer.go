// Package sched delivers recurring daily window triggers using in-process
// timers. It stands in for the OS wake-up mechanism the platform provides:
// each registered window fires once per day at its local start time.
package sched

import (
	"fmt"
	"sync"
	"time"

	"github.com/msageha/steplock/internal/unlock"
)

type registration struct {
	window unlock.Window
	stop   chan struct{}
}

// TimerScheduler implements unlock.Scheduler with one timer goroutine per
// registered identifier. Fired identifiers are delivered on Triggers; the
// sender blocks until the consumer picks the trigger up, so triggers are
// never dropped.
type TimerScheduler struct {
	mu      sync.Mutex
	loc     *time.Location
	now     func() time.Time
	regs    map[string]*registration
	trigger chan string
	closed  bool
	wg      sync.WaitGroup
}

func NewTimerScheduler(loc *time.Location) *TimerScheduler {
	if loc == nil {
		loc = time.Local
	}
	return &TimerScheduler{
		loc:     loc,
		now:     time.Now,
		regs:    make(map[string]*registration),
		trigger: make(chan string),
	}
}

// Triggers returns the channel fired identifiers arrive on.
func (s *TimerScheduler) Triggers() <-chan string {
	return s.trigger
}

// Register starts a daily timer for the window. Registering an identifier
// that is already registered replaces its window.
func (s *TimerScheduler) Register(identifier string, w unlock.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("scheduler is shut down")
	}
	if old, ok := s.regs[identifier]; ok {
		close(old.stop)
	}

	reg := &registration{window: w, stop: make(chan struct{})}
	s.regs[identifier] = reg
	s.wg.Add(1)
	go s.run(identifier, w, reg.stop)
	return nil
}

// Unregister stops the timers for the given identifiers. Identifiers that
// were never registered are ignored.
func (s *TimerScheduler) Unregister(identifiers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range identifiers {
		if reg, ok := s.regs[id]; ok {
			close(reg.stop)
			delete(s.regs, id)
		}
	}
}

// Registered reports whether an identifier currently has a live timer.
func (s *TimerScheduler) Registered(identifier string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.regs[identifier]
	return ok
}

// Close stops every timer and waits for their goroutines to exit.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, reg := range s.regs {
		close(reg.stop)
		delete(s.regs, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *TimerScheduler) run(identifier string, w unlock.Window, stop chan struct{}) {
	defer s.wg.Done()

	for {
		now := s.now()
		fire := nextFire(now, w, s.loc)
		timer := time.NewTimer(fire.Sub(now))

		select {
		case <-timer.C:
			select {
			case s.trigger <- identifier:
			case <-stop:
				return
			}
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// nextFire returns the next local occurrence of the window start strictly
// after now.
func nextFire(now time.Time, w unlock.Window, loc *time.Location) time.Time {
	local := now.In(loc)
	fire := time.Date(local.Year(), local.Month(), local.Day(),
		w.StartHour, w.StartMinute, 0, 0, loc)
	if !fire.After(local) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}
