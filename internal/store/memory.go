package store

import (
	"sync"

	yamlv3 "gopkg.in/yaml.v3"
)

// Memory is an in-memory Store for tests. Error fields, when set, are
// returned from the corresponding operation.
type Memory struct {
	mu   sync.Mutex
	docs map[string][]byte

	LoadErr   error
	SaveErr   error
	DeleteErr error
	SaveCalls int
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Load(key string, out any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadErr != nil {
		return false, &PersistenceError{Op: "load", Key: key, Err: m.LoadErr}
	}
	raw, ok := m.docs[key]
	if !ok {
		return false, nil
	}
	if err := yamlv3.Unmarshal(raw, out); err != nil {
		return false, &PersistenceError{Op: "load", Key: key, Err: err}
	}
	return true, nil
}

func (m *Memory) Save(key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return &PersistenceError{Op: "save", Key: key, Err: m.SaveErr}
	}
	raw, err := yamlv3.Marshal(v)
	if err != nil {
		return &PersistenceError{Op: "save", Key: key, Err: err}
	}
	m.docs[key] = raw
	m.SaveCalls++
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return &PersistenceError{Op: "delete", Key: key, Err: m.DeleteErr}
	}
	delete(m.docs, key)
	return nil
}
