// Package store persists steplock's state documents as YAML files under
// the state directory, one document per key.
package store

import "fmt"

const (
	KeyGoals     = "goals"
	KeySelection = "selection"
	KeyUnlock    = "unlock"
)

// Store reads and writes whole state documents. Load reports whether the
// document existed; a missing document is not an error.
type Store interface {
	Load(key string, out any) (bool, error)
	Save(key string, v any) error
	Delete(key string) error
}

// PersistenceError wraps any failure to read or write a state document.
// Callers must treat the operation as failed and leave in-memory state
// untouched.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
