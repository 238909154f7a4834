package model

// Persisted state documents. Every document carries a schema header that is
// validated on load; corrupt or mismatched files are quarantined rather than
// silently reinterpreted.

const (
	SchemaVersion = 1

	FileTypeGoalState      = "goal_state"
	FileTypeSelectionState = "selection_state"
	FileTypeUnlockState    = "unlock_state"
	FileTypeDailyMetrics   = "daily_metrics"
)

// GoalState holds the active configuration and the pending slot in one
// document so that applying a pending change is a single atomic write.
type GoalState struct {
	SchemaVersion int            `yaml:"schema_version"`
	FileType      string         `yaml:"file_type"`
	Active        GoalConfig     `yaml:"active"`
	Pending       *PendingChange `yaml:"pending"`
	UpdatedAt     string         `yaml:"updated_at"`
}

// SelectionState holds the shield target set.
type SelectionState struct {
	SchemaVersion int       `yaml:"schema_version"`
	FileType      string    `yaml:"file_type"`
	Selection     Selection `yaml:"selection"`
	UpdatedAt     string    `yaml:"updated_at"`
}

// UnlockState records the currently registered daily unlock window so the
// daemon can re-register it after a restart.
type UnlockState struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
	Scheduled     bool   `yaml:"scheduled"`
	MinuteOfDay   int    `yaml:"minute_of_day"`
	Identifier    string `yaml:"identifier"`
	UpdatedAt     string `yaml:"updated_at"`
}
