package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/msageha/steplock/internal/gate"
	"github.com/msageha/steplock/internal/model"
)

func TestFillFromFiles_ReadsState(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")
	os.Mkdir(stateDir, 0755)

	goals := `schema_version: 1
file_type: "goal_state"
active:
  steps:
    enabled: true
    target: 8000
  unlock:
    enabled: true
    minute_of_day: 1260
pending: null
updated_at: "2026-03-02T10:00:00Z"
`
	os.WriteFile(filepath.Join(stateDir, "goals.yaml"), []byte(goals), 0644)

	selection := `schema_version: 1
file_type: "selection_state"
selection:
  apps: ["com.example.game"]
  categories: []
  web_domains: ["example.com"]
updated_at: ""
`
	os.WriteFile(filepath.Join(stateDir, "selection.yaml"), []byte(selection), 0644)

	unlock := `schema_version: 1
file_type: "unlock_state"
scheduled: true
minute_of_day: 1260
identifier: "daily_unlock_1"
updated_at: ""
`
	os.WriteFile(filepath.Join(stateDir, "unlock.yaml"), []byte(unlock), 0644)

	s := Summary{}
	fillFromFiles(&s, dir)

	if s.Active == nil {
		t.Fatal("active goals not read")
	}
	if !s.Active.Steps.Enabled || s.Active.Steps.Target != 8000 {
		t.Errorf("steps goal: got %+v", s.Active.Steps)
	}
	if s.Pending != nil {
		t.Errorf("pending: got %+v, want nil", s.Pending)
	}
	if s.Selection == nil || s.Selection.Count() != 2 {
		t.Errorf("selection: got %+v", s.Selection)
	}
	if s.Unlock == nil || !s.Unlock.Scheduled || s.Unlock.MinuteOfDay != 1260 {
		t.Errorf("unlock: got %+v", s.Unlock)
	}
	if s.Metrics != nil {
		t.Errorf("metrics: got %+v, want nil without a collector file", s.Metrics)
	}
}

func TestFillFromFiles_ReadsMetrics(t *testing.T) {
	dir := t.TempDir()
	metricsDir := filepath.Join(dir, "metrics")
	os.Mkdir(metricsDir, 0755)

	content := `schema_version: 1
file_type: "daily_metrics"
date: "2026-03-02"
steps: 5231
active_energy_kcal: 320
exercise_minutes:
  stretch: 10
collected_at: "2026-03-02T09:55:00Z"
`
	os.WriteFile(filepath.Join(metricsDir, "today.yaml"), []byte(content), 0644)

	s := Summary{}
	fillFromFiles(&s, dir)

	if s.Metrics == nil {
		t.Fatal("metrics not read")
	}
	if s.Metrics.Steps != 5231 {
		t.Errorf("steps: got %d, want 5231", s.Metrics.Steps)
	}
	if s.Metrics.Date != "2026-03-02" {
		t.Errorf("date: got %q", s.Metrics.Date)
	}
	if s.Metrics.ExerciseMinutes["stretch"] != 10 {
		t.Errorf("exercise_minutes: got %v", s.Metrics.ExerciseMinutes)
	}
}

func TestFillFromFiles_MissingFiles(t *testing.T) {
	dir := t.TempDir()

	s := Summary{}
	fillFromFiles(&s, dir)

	if s.Active != nil || s.Selection != nil || s.Unlock != nil || s.Metrics != nil {
		t.Errorf("expected empty summary for missing files, got %+v", s)
	}
}

func TestFillFromFiles_SkipsInvalidSchema(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")
	os.Mkdir(stateDir, 0755)

	// Wrong file_type
	os.WriteFile(filepath.Join(stateDir, "goals.yaml"),
		[]byte("schema_version: 1\nfile_type: \"selection_state\"\n"), 0644)

	// Invalid YAML
	os.WriteFile(filepath.Join(stateDir, "unlock.yaml"),
		[]byte(":::invalid yaml:::"), 0644)

	s := Summary{}
	fillFromFiles(&s, dir)

	if s.Active != nil {
		t.Errorf("mismatched schema should be skipped, got %+v", s.Active)
	}
	if s.Unlock != nil {
		t.Errorf("corrupt document should be skipped, got %+v", s.Unlock)
	}

	// A read-only status check must not quarantine anything.
	if _, err := os.Stat(filepath.Join(stateDir, "goals.yaml")); err != nil {
		t.Errorf("goals.yaml moved by a read: %v", err)
	}
	if entries, err := os.ReadDir(filepath.Join(dir, "quarantine")); err == nil && len(entries) > 0 {
		t.Errorf("quarantine populated by a read: %v", entries)
	}
}

func TestCheckDaemon_NotRunning(t *testing.T) {
	// Non-existent socket should report not running
	_, ok := checkDaemon("/tmp/nonexistent-steplock-test.sock")
	if ok {
		t.Error("expected daemon not running")
	}
}

func TestPrintSummary_DoesNotPanic(t *testing.T) {
	// Verify printing works without panicking for all cases
	s := Summary{
		Daemon: DaemonStatus{Running: false},
	}
	printSummary(s)

	active := model.GoalConfig{
		Steps: model.QuantGoal{Enabled: true, Target: 8000},
		Exercises: []model.ExerciseGoal{
			{ID: "stretch", Name: "Stretching", Enabled: true, TargetMinutes: 10},
		},
		Unlock: model.TimeGoal{Enabled: true, MinuteOfDay: 1260},
	}
	s.Daemon = DaemonStatus{Running: true, Pid: 4242}
	s.Shields = model.ShieldStateActive
	s.Active = &active
	s.Pending = &model.PendingChange{
		ID:          "pnd_0000000001_aaaaaaaa",
		Intent:      model.IntentEasier,
		EffectiveAt: "2026-03-03T00:00:00Z",
	}
	s.Selection = &model.Selection{Apps: []string{"com.example.game"}}
	s.Unlock = &UnlockStatus{Scheduled: true, MinuteOfDay: 1260, Identifier: "daily_unlock_1"}
	s.Metrics = &model.DailyMetrics{Date: "2026-03-02", Steps: 5231}
	s.Decision = &gate.Decision{Block: true, Reasons: []string{"steps 5231/8000"}}
	printSummary(s)
}
