package model

// PendingChange is the single queued configuration change. At most one
// exists at a time; storing a new one replaces the previous slot contents
// unconditionally (last-write-wins, no merge). Timestamps are RFC3339.
type PendingChange struct {
	ID          string     `yaml:"id" json:"id"`
	Proposed    GoalConfig `yaml:"proposed" json:"proposed"`
	Intent      Intent     `yaml:"intent" json:"intent"`
	RequestedAt string     `yaml:"requested_at" json:"requested_at"`
	EffectiveAt string     `yaml:"effective_at" json:"effective_at"`
}
