package shield

import (
	"errors"
	"testing"
	"time"

	"github.com/msageha/steplock/internal/blocker"
	"github.com/msageha/steplock/internal/model"
	"github.com/msageha/steplock/internal/store"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.FixedZone("JST", 9*3600))

func testSelection() model.Selection {
	return model.Selection{
		Apps:       []string{"com.example.game"},
		Categories: []string{"social"},
	}
}

func TestUpdateShieldsRequiresAuthorization(t *testing.T) {
	b := blocker.NewMemory(false)
	c := NewController(store.NewMemory(), b, fixedClock{testNow})

	err := c.UpdateShields(true)
	var aerr *AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if b.ApplyCalls() != 0 {
		t.Error("capability must not be invoked without authorization")
	}
	if c.State() != model.ShieldStateUnknown {
		t.Errorf("state: got %s, want %s", c.State(), model.ShieldStateUnknown)
	}
}

func TestUpdateShieldsAppliesSelection(t *testing.T) {
	b := blocker.NewMemory(true)
	c := NewController(store.NewMemory(), b, fixedClock{testNow})

	if err := c.SetSelection(testSelection()); err != nil {
		t.Fatalf("SetSelection failed: %v", err)
	}
	if err := c.UpdateShields(true); err != nil {
		t.Fatalf("UpdateShields failed: %v", err)
	}

	if !b.Blocking() {
		t.Error("expected block to be active")
	}
	if got := b.LastSelection().Apps; len(got) != 1 || got[0] != "com.example.game" {
		t.Errorf("applied selection: got %v", got)
	}
	if c.State() != model.ShieldStateActive {
		t.Errorf("state: got %s, want %s", c.State(), model.ShieldStateActive)
	}
}

func TestUpdateShieldsIdempotent(t *testing.T) {
	b := blocker.NewMemory(true)
	c := NewController(store.NewMemory(), b, fixedClock{testNow})

	for i := 0; i < 3; i++ {
		if err := c.UpdateShields(true); err != nil {
			t.Fatalf("UpdateShields #%d failed: %v", i+1, err)
		}
	}
	// The capability is invoked each time; the observable state does not
	// compound.
	if b.ApplyCalls() != 3 {
		t.Errorf("apply calls: got %d, want 3", b.ApplyCalls())
	}
	if !b.Blocking() {
		t.Error("expected block to be active")
	}

	for i := 0; i < 2; i++ {
		if err := c.UpdateShields(false); err != nil {
			t.Fatalf("clear #%d failed: %v", i+1, err)
		}
	}
	if b.ClearCalls() != 2 {
		t.Errorf("clear calls: got %d, want 2", b.ClearCalls())
	}
	if b.Blocking() {
		t.Error("expected block to be cleared")
	}
	if c.State() != model.ShieldStateCleared {
		t.Errorf("state: got %s, want %s", c.State(), model.ShieldStateCleared)
	}
}

func TestUpdateShieldsCapabilityFailure(t *testing.T) {
	b := blocker.NewMemory(true)
	b.ApplyErr = errors.New("platform refused")
	c := NewController(store.NewMemory(), b, fixedClock{testNow})

	if err := c.UpdateShields(true); err == nil {
		t.Error("expected capability failure to propagate")
	}
	if c.State() != model.ShieldStateUnknown {
		t.Errorf("state must not advance on failure, got %s", c.State())
	}
}

func TestSelectionEmptyWhenNeverStored(t *testing.T) {
	c := NewController(store.NewMemory(), blocker.NewMemory(true), fixedClock{testNow})

	sel := c.Selection()
	if !sel.Empty() {
		t.Errorf("expected empty selection, got %+v", sel)
	}
}

func TestSetSelectionPersists(t *testing.T) {
	mem := store.NewMemory()
	c := NewController(mem, blocker.NewMemory(true), fixedClock{testNow})

	if err := c.SetSelection(testSelection()); err != nil {
		t.Fatalf("SetSelection failed: %v", err)
	}

	// A fresh controller over the same store sees the selection.
	c2 := NewController(mem, blocker.NewMemory(true), fixedClock{testNow})
	sel := c2.Selection()
	if sel.Count() != 2 {
		t.Errorf("reloaded selection count: got %d, want 2", sel.Count())
	}
}

func TestSetSelectionPersistenceFailure(t *testing.T) {
	mem := store.NewMemory()
	c := NewController(mem, blocker.NewMemory(true), fixedClock{testNow})
	mem.SaveErr = errors.New("disk full")

	err := c.SetSelection(testSelection())
	var perr *store.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !c.Selection().Empty() {
		t.Error("failed write must not change the in-memory selection")
	}
}

func TestNewControllerToleratesLoadFailure(t *testing.T) {
	mem := store.NewMemory()
	mem.LoadErr = errors.New("read failed")

	c := NewController(mem, blocker.NewMemory(true), fixedClock{testNow})
	if !c.Selection().Empty() {
		t.Error("expected empty selection after failed load")
	}
}
