package model

// DailyMetrics is the drop file an external collector writes with today's
// already-computed health metrics. The daemon only compares these values
// against targets; it never derives metrics itself.
type DailyMetrics struct {
	SchemaVersion    int            `yaml:"schema_version" json:"schema_version"`
	FileType         string         `yaml:"file_type" json:"file_type"`
	Date             string         `yaml:"date" json:"date"` // YYYY-MM-DD, collector-local
	Steps            int            `yaml:"steps" json:"steps"`
	ActiveEnergyKcal int            `yaml:"active_energy_kcal" json:"active_energy_kcal"`
	ExerciseMinutes  map[string]int `yaml:"exercise_minutes" json:"exercise_minutes"`
	CollectedAt      string         `yaml:"collected_at" json:"collected_at"`
}
