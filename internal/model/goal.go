package model

import (
	"fmt"
	"sort"
)

// GoalConfig is the complete goal configuration the gate is evaluated
// against. Values are treated as immutable: an edit builds a new GoalConfig
// and hands original+proposed to the intent classifier; nothing mutates a
// configuration in place.
type GoalConfig struct {
	Steps     QuantGoal      `yaml:"steps" json:"steps"`
	Energy    QuantGoal      `yaml:"energy" json:"energy"`
	Exercises []ExerciseGoal `yaml:"exercises" json:"exercises"`
	Unlock    TimeGoal       `yaml:"unlock" json:"unlock"`
}

// QuantGoal is a quantitative daily target (step count, active energy kcal).
type QuantGoal struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Target  int  `yaml:"target" json:"target"`
}

// ExerciseGoal is one exercise-type sub-goal. ID is the stable identity;
// matching between two configurations is always by ID, never by position.
type ExerciseGoal struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	TargetMinutes int    `yaml:"target_minutes" json:"target_minutes"`
}

// TimeGoal is the daily unlock threshold as a minute of day (0-1439).
// Shields stay up until this minute unless all other goals are met first.
type TimeGoal struct {
	Enabled     bool `yaml:"enabled" json:"enabled"`
	MinuteOfDay int  `yaml:"minute_of_day" json:"minute_of_day"`
}

// Clone returns a copy that shares no slice storage with the receiver.
func (g GoalConfig) Clone() GoalConfig {
	out := g
	if g.Exercises != nil {
		out.Exercises = make([]ExerciseGoal, len(g.Exercises))
		copy(out.Exercises, g.Exercises)
	}
	return out
}

// Exercise looks up a sub-goal by ID.
func (g GoalConfig) Exercise(id string) (ExerciseGoal, bool) {
	for _, e := range g.Exercises {
		if e.ID == id {
			return e, true
		}
	}
	return ExerciseGoal{}, false
}

// EnabledExerciseIDs returns the IDs of all enabled sub-goals, sorted.
func (g GoalConfig) EnabledExerciseIDs() []string {
	ids := make([]string, 0, len(g.Exercises))
	for _, e := range g.Exercises {
		if e.Enabled {
			ids = append(ids, e.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Validate checks structural soundness of a configuration. Out-of-range
// unlock minutes are not an error here: the schedule registry clamps them.
func (g GoalConfig) Validate() error {
	if g.Steps.Enabled && g.Steps.Target < 0 {
		return fmt.Errorf("steps target must be >= 0, got %d", g.Steps.Target)
	}
	if g.Energy.Enabled && g.Energy.Target < 0 {
		return fmt.Errorf("energy target must be >= 0, got %d", g.Energy.Target)
	}
	seen := make(map[string]bool, len(g.Exercises))
	for _, e := range g.Exercises {
		if e.ID == "" {
			return fmt.Errorf("exercise sub-goal %q has empty id", e.Name)
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate exercise sub-goal id %q", e.ID)
		}
		seen[e.ID] = true
		if e.Enabled && e.TargetMinutes < 0 {
			return fmt.Errorf("exercise %q target minutes must be >= 0, got %d", e.ID, e.TargetMinutes)
		}
	}
	return nil
}
