// Package pending owns the goal state document: the active configuration and
// the single pending-change slot. All access is serialized through one
// Manager so a background trigger, a foreground edit, and a periodic check
// never interleave against the slot.
package pending

import (
	"fmt"
	"sync"
	"time"

	"github.com/msageha/steplock/internal/cycle"
	"github.com/msageha/steplock/internal/intent"
	"github.com/msageha/steplock/internal/model"
	"github.com/msageha/steplock/internal/store"
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// ProposalResult reports how an edit was handled: the stored change, the
// configuration it was classified against, and whether it already took
// effect (harder and neutral edits apply immediately, easier ones wait for
// their boundary).
type ProposalResult struct {
	Change   model.PendingChange
	Original model.GoalConfig
	Applied  bool
}

type Manager struct {
	mu     sync.Mutex
	store  store.Store
	clock  cycle.Clock
	cal    cycle.Calendar
	anchor model.AnchorPolicy
	state  model.GoalState
}

func NewManager(st store.Store, clk cycle.Clock, cal cycle.Calendar, anchor model.AnchorPolicy) (*Manager, error) {
	var gs model.GoalState
	found, err := st.Load(store.KeyGoals, &gs)
	if err != nil {
		return nil, err
	}
	if !found {
		gs = model.GoalState{}
	}
	gs.SchemaVersion = model.SchemaVersion
	gs.FileType = model.FileTypeGoalState

	return &Manager{
		store:  st,
		clock:  clk,
		cal:    cal,
		anchor: anchor,
		state:  gs,
	}, nil
}

// Active returns the configuration the gate is currently evaluated against.
func (m *Manager) Active() model.GoalConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Active.Clone()
}

// Pending returns the current slot contents, if any.
func (m *Manager) Pending() (model.PendingChange, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Pending == nil {
		return model.PendingChange{}, false
	}
	out := *m.state.Pending
	out.Proposed = out.Proposed.Clone()
	return out, true
}

// Snapshot returns a copy of the whole goal state document.
func (m *Manager) Snapshot() model.GoalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.state
	out.Active = m.state.Active.Clone()
	if m.state.Pending != nil {
		p := *m.state.Pending
		p.Proposed = p.Proposed.Clone()
		out.Pending = &p
	}
	return out
}

// Propose classifies the edit against the active configuration, stores it in
// the pending slot with its computed effective time, and applies it right
// away when the effective time is not in the future. The whole sequence runs
// under one lock so a concurrent cancel or trigger observes either the old
// state or the final one.
func (m *Manager) Propose(proposed model.GoalConfig, now time.Time) (ProposalResult, error) {
	if err := proposed.Validate(); err != nil {
		return ProposalResult{}, &ValidationError{Msg: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	original := m.state.Active.Clone()
	edit := intent.Classify(m.state.Active, proposed)
	effective := cycle.EffectiveAt(edit, now, m.cal, m.anchor)

	id, err := model.GenerateID(model.IDTypePending)
	if err != nil {
		return ProposalResult{}, fmt.Errorf("generate pending id: %w", err)
	}

	change := model.PendingChange{
		ID:          id,
		Proposed:    proposed.Clone(),
		Intent:      edit,
		RequestedAt: now.Format(time.RFC3339),
		EffectiveAt: effective.Format(time.RFC3339),
	}

	if err := m.setPendingLocked(change, now); err != nil {
		return ProposalResult{}, err
	}

	applied, err := m.applyLocked(now)
	if err != nil {
		return ProposalResult{}, err
	}
	return ProposalResult{Change: change, Original: original, Applied: applied != nil}, nil
}

// SetPending overwrites the slot unconditionally. Last write wins; there is
// no merging of pending changes.
func (m *Manager) SetPending(change model.PendingChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setPendingLocked(change, m.clock.Now())
}

// ApplyIfReady commits the pending change when its effective time has
// arrived: the proposed configuration becomes active and the slot is cleared
// in a single write. It returns the applied change, or nil when the slot is
// empty or not yet due. Safe to call arbitrarily often.
func (m *Manager) ApplyIfReady(now time.Time) (*model.PendingChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(now)
}

// Cancel clears the slot and returns the discarded change. An empty slot is
// not an error; Cancel then returns nil without writing.
func (m *Manager) Cancel() (*model.PendingChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Pending == nil {
		return nil, nil
	}
	cancelled := *m.state.Pending
	cancelled.Proposed = cancelled.Proposed.Clone()

	next := m.state
	next.Pending = nil
	next.UpdatedAt = m.clock.Now().Format(time.RFC3339)
	if err := m.store.Save(store.KeyGoals, &next); err != nil {
		return nil, err
	}
	m.state = next
	return &cancelled, nil
}

func (m *Manager) setPendingLocked(change model.PendingChange, at time.Time) error {
	change.Proposed = change.Proposed.Clone()

	next := m.state
	next.Pending = &change
	next.UpdatedAt = at.Format(time.RFC3339)
	if err := m.store.Save(store.KeyGoals, &next); err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *Manager) applyLocked(now time.Time) (*model.PendingChange, error) {
	if m.state.Pending == nil {
		return nil, nil
	}

	effective, err := time.Parse(time.RFC3339, m.state.Pending.EffectiveAt)
	if err != nil {
		return nil, fmt.Errorf("parse pending effective_at %q: %w", m.state.Pending.EffectiveAt, err)
	}
	if effective.After(now) {
		return nil, nil
	}

	applied := *m.state.Pending
	applied.Proposed = applied.Proposed.Clone()

	next := m.state
	next.Active = applied.Proposed.Clone()
	next.Pending = nil
	next.UpdatedAt = now.Format(time.RFC3339)
	if err := m.store.Save(store.KeyGoals, &next); err != nil {
		return nil, err
	}
	m.state = next
	return &applied, nil
}
