package unlock

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/msageha/steplock/internal/cycle"
	"github.com/msageha/steplock/internal/model"
	"github.com/msageha/steplock/internal/store"
)

// SchedulingError reports that the OS scheduling capability rejected a
// window registration.
type SchedulingError struct {
	Identifier string
	Err        error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("register window %q: %v", e.Identifier, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}

// Scheduler is the OS scheduling capability. Unregistering identifiers that
// were never registered is a no-op.
type Scheduler interface {
	Register(identifier string, w Window) error
	Unregister(identifiers []string)
}

// ShieldUpdater is the slice of the shield controller the registry needs.
type ShieldUpdater interface {
	UpdateShields(shouldBlock bool) error
}

// Registry owns the unlock window registration and the persisted unlock
// state document.
type Registry struct {
	mu      sync.Mutex
	sched   Scheduler
	shields ShieldUpdater
	store   store.Store
	clock   cycle.Clock
	state   model.UnlockState
}

// NewRegistry loads the persisted unlock state if one exists. A failed load
// is logged and the registry starts unscheduled.
func NewRegistry(sched Scheduler, shields ShieldUpdater, st store.Store, clk cycle.Clock) *Registry {
	r := &Registry{
		sched:   sched,
		shields: shields,
		store:   st,
		clock:   clk,
	}

	var us model.UnlockState
	found, err := st.Load(store.KeyUnlock, &us)
	if err != nil {
		log.Printf("unlock: load state failed, starting unscheduled: %v", err)
	} else if found {
		r.state = us
	}
	r.state.SchemaVersion = model.SchemaVersion
	r.state.FileType = model.FileTypeUnlockState
	return r
}

// ScheduleDailyUnlock registers a repeating window from the given minute of
// day to the end of the day under the canonical identifier. Out-of-range
// minutes are clamped to [0, 1439], never rejected.
func (r *Registry) ScheduleDailyUnlock(minuteOfDay int) error {
	if minuteOfDay < 0 {
		minuteOfDay = 0
	}
	if minuteOfDay > minutesPerDay-1 {
		minuteOfDay = minutesPerDay - 1
	}

	w := Window{
		StartHour:   minuteOfDay / 60,
		StartMinute: minuteOfDay % 60,
		EndHour:     23,
		EndMinute:   59,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.sched.Register(CanonicalName, w); err != nil {
		return &SchedulingError{Identifier: CanonicalName, Err: err}
	}

	next := r.state
	next.Scheduled = true
	next.MinuteOfDay = minuteOfDay
	next.Identifier = CanonicalName
	next.UpdatedAt = r.clock.Now().Format(time.RFC3339)
	if err := r.store.Save(store.KeyUnlock, &next); err != nil {
		return err
	}
	r.state = next
	return nil
}

// CancelDailyUnlock unregisters the whole generation set so stale
// registrations from the earlier naming schema are cleaned up too. It never
// errors when nothing was registered.
func (r *Registry) CancelDailyUnlock() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sched.Unregister(GenerationSet())

	next := r.state
	next.Scheduled = false
	next.MinuteOfDay = 0
	next.Identifier = ""
	next.UpdatedAt = r.clock.Now().Format(time.RFC3339)
	if err := r.store.Save(store.KeyUnlock, &next); err != nil {
		return err
	}
	r.state = next
	return nil
}

// Restore re-registers the persisted window after a daemon restart. It
// reports whether a window was restored.
func (r *Registry) Restore() (bool, error) {
	r.mu.Lock()
	scheduled := r.state.Scheduled
	minute := r.state.MinuteOfDay
	r.mu.Unlock()

	if !scheduled {
		return false, nil
	}
	if err := r.ScheduleDailyUnlock(minute); err != nil {
		return false, err
	}
	return true, nil
}

// HandleTrigger reacts to a fired window. Identifiers that do not name the
// daily unlock window are ignored without error. A recognized trigger means
// the unlock window has begun, so shields are cleared unconditionally;
// failures from the shield controller propagate to the caller.
func (r *Registry) HandleTrigger(identifier string) error {
	if !Matches(identifier) {
		return nil
	}
	return r.shields.UpdateShields(false)
}

// State returns a copy of the persisted unlock state document.
func (r *Registry) State() model.UnlockState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
