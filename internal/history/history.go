// Package history records every classified goal edit in a local sqlite
// database. The journal rotates away; this trail does not, so disputes
// about when a goal was weakened can always be settled.
package history

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	yamlv3 "gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/msageha/steplock/internal/model"
)

// Decision is one row of the goal-edit trail.
type Decision struct {
	ID          string
	RequestedAt string
	Intent      model.Intent
	EffectiveAt string
	Original    model.GoalConfig
	Proposed    model.GoalConfig
	Status      model.DecisionStatus
	AppliedAt   string
}

// Store persists decisions to a single sqlite file.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open initializes the history database at the given path, creating the
// file and schema when missing.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	applyPragmas(db)

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens an existing history database without creating one.
// Used by the CLI so `steplock history` never scaffolds an empty trail.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("history database not found: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Printf("Warning: failed to set sqlite busy_timeout: %v", err)
	}
	return &Store{db: db, path: path}, nil
}

func applyPragmas(db *sql.DB) {
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Printf("Warning: failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Printf("Warning: failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Printf("Warning: failed to set sqlite synchronous=NORMAL: %v", err)
	}
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		requested_at TEXT NOT NULL,
		intent TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		original_yaml TEXT NOT NULL,
		proposed_yaml TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		applied_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_requested ON decisions(requested_at);
	CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create decisions table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a freshly proposed change as a pending decision. Any
// decision still pending is marked superseded in the same transaction,
// mirroring last-write-wins on the pending slot.
func (s *Store) Record(change model.PendingChange, original model.GoalConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	originalYAML, err := yamlv3.Marshal(original)
	if err != nil {
		return fmt.Errorf("failed to marshal original config: %w", err)
	}
	proposedYAML, err := yamlv3.Marshal(change.Proposed)
	if err != nil {
		return fmt.Errorf("failed to marshal proposed config: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE decisions SET status = ? WHERE status = ?`,
		string(model.DecisionSuperseded), string(model.DecisionPending),
	); err != nil {
		return fmt.Errorf("failed to supersede pending decisions: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO decisions (id, requested_at, intent, effective_at, original_yaml, proposed_yaml, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		change.ID, change.RequestedAt, string(change.Intent), change.EffectiveAt,
		string(originalYAML), string(proposedYAML), string(model.DecisionPending),
	); err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision: %w", err)
	}
	return nil
}

// MarkApplied transitions a pending decision to applied and stamps the
// moment the change took effect.
func (s *Store) MarkApplied(id, appliedAt string) error {
	return s.transition(id, model.DecisionApplied, appliedAt)
}

// MarkCancelled transitions a pending decision to cancelled.
func (s *Store) MarkCancelled(id string) error {
	return s.transition(id, model.DecisionCancelled, "")
}

func (s *Store) transition(id string, to model.DecisionStatus, appliedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(`SELECT status FROM decisions WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("decision %q not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read decision %q: %w", id, err)
	}

	if err := model.ValidateDecisionTransition(model.DecisionStatus(current), to); err != nil {
		return err
	}

	if appliedAt != "" {
		_, err = tx.Exec(`UPDATE decisions SET status = ?, applied_at = ? WHERE id = ?`,
			string(to), appliedAt, id)
	} else {
		_, err = tx.Exec(`UPDATE decisions SET status = ? WHERE id = ?`, string(to), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update decision %q: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return nil
}

// Get returns a single decision by change ID.
func (s *Store) Get(id string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, requested_at, intent, effective_at, original_yaml, proposed_yaml, status, applied_at
		 FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return Decision{}, fmt.Errorf("decision %q not found", id)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read decision %q: %w", id, err)
	}
	return d, nil
}

// Recent returns the newest decisions, most recent first. A non-positive
// limit reads 20.
func (s *Store) Recent(limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, requested_at, intent, effective_at, original_yaml, proposed_yaml, status, applied_at
		 FROM decisions ORDER BY requested_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}
	return decisions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDecision(row rowScanner) (Decision, error) {
	var d Decision
	var intent, status, originalYAML, proposedYAML string
	var appliedAt sql.NullString

	if err := row.Scan(&d.ID, &d.RequestedAt, &intent, &d.EffectiveAt,
		&originalYAML, &proposedYAML, &status, &appliedAt); err != nil {
		return Decision{}, err
	}

	d.Intent = model.Intent(intent)
	d.Status = model.DecisionStatus(status)
	if appliedAt.Valid {
		d.AppliedAt = appliedAt.String
	}
	if err := yamlv3.Unmarshal([]byte(originalYAML), &d.Original); err != nil {
		return Decision{}, fmt.Errorf("failed to unmarshal original config: %w", err)
	}
	if err := yamlv3.Unmarshal([]byte(proposedYAML), &d.Proposed); err != nil {
		return Decision{}, fmt.Errorf("failed to unmarshal proposed config: %w", err)
	}
	return d, nil
}
