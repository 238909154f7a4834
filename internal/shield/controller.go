// Package shield applies and clears the blocking state for the selected
// target set through an injected blocking capability.
package shield

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/msageha/steplock/internal/cycle"
	"github.com/msageha/steplock/internal/model"
	"github.com/msageha/steplock/internal/store"
)

// AuthorizationError reports that the blocking capability has not been
// granted. It is surfaced to the caller and never retried internally.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string {
	return e.Msg
}

// Blocker is the platform blocking capability. Apply and Clear are expected
// to be idempotent on the platform side; the controller invokes them on
// every UpdateShields call.
type Blocker interface {
	Authorized() bool
	Apply(selection model.Selection) error
	Clear() error
}

type Controller struct {
	mu        sync.Mutex
	store     store.Store
	blocker   Blocker
	clock     cycle.Clock
	selection model.Selection
	lastState model.ShieldState
}

// NewController loads the persisted selection if one exists. A failed load
// is logged and the controller starts with an empty selection; reads never
// fail after construction.
func NewController(st store.Store, b Blocker, clk cycle.Clock) *Controller {
	c := &Controller{
		store:     st,
		blocker:   b,
		clock:     clk,
		lastState: model.ShieldStateUnknown,
	}

	var ss model.SelectionState
	found, err := st.Load(store.KeySelection, &ss)
	if err != nil {
		log.Printf("shield: load selection failed, starting empty: %v", err)
		return c
	}
	if found {
		c.selection = ss.Selection
	}
	return c
}

// UpdateShields applies or clears the block for the stored selection.
// It requires prior authorization and returns AuthorizationError when the
// capability has not been granted. Calling it repeatedly with the same
// argument is safe.
func (c *Controller) UpdateShields(shouldBlock bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.blocker.Authorized() {
		return &AuthorizationError{Msg: "blocking capability not authorized"}
	}

	if shouldBlock {
		if err := c.blocker.Apply(c.selection.Clone()); err != nil {
			return fmt.Errorf("apply shields: %w", err)
		}
		c.lastState = model.ShieldStateActive
		return nil
	}

	if err := c.blocker.Clear(); err != nil {
		return fmt.Errorf("clear shields: %w", err)
	}
	c.lastState = model.ShieldStateCleared
	return nil
}

// SetSelection replaces the target set and persists it.
func (c *Controller) SetSelection(sel model.Selection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := model.SelectionState{
		SchemaVersion: model.SchemaVersion,
		FileType:      model.FileTypeSelectionState,
		Selection:     sel.Clone(),
		UpdatedAt:     c.clock.Now().Format(time.RFC3339),
	}
	if err := c.store.Save(store.KeySelection, &ss); err != nil {
		return err
	}
	c.selection = ss.Selection
	return nil
}

// Selection returns the current target set, empty if none was ever stored.
func (c *Controller) Selection() model.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Clone()
}

// State reports the last state UpdateShields reached, for status output.
// It is unknown until the first successful UpdateShields call.
func (c *Controller) State() model.ShieldState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastState
}
