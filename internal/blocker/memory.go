package blocker

import (
	"sync"

	"github.com/msageha/steplock/internal/model"
)

// Memory is an in-memory blocking capability for tests. It records every
// call so tests can assert on call counts and the last selection applied.
type Memory struct {
	mu sync.Mutex

	Granted  bool
	ApplyErr error
	ClearErr error

	applyCalls    int
	clearCalls    int
	lastSelection model.Selection
	blocking      bool
}

func NewMemory(granted bool) *Memory {
	return &Memory{Granted: granted}
}

func (m *Memory) Authorized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Granted
}

func (m *Memory) Apply(selection model.Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ApplyErr != nil {
		return m.ApplyErr
	}
	m.applyCalls++
	m.lastSelection = selection
	m.blocking = true
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.clearCalls++
	m.blocking = false
	return nil
}

func (m *Memory) ApplyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyCalls
}

func (m *Memory) ClearCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCalls
}

func (m *Memory) LastSelection() model.Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSelection
}

func (m *Memory) Blocking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocking
}
