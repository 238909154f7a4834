package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestConfigMarshalUnmarshal(t *testing.T) {
	cfg := Config{
		Steplock: SteplockConfig{
			Version: "0.2.0",
			Created: "2026-03-01T09:00:00+09:00",
		},
		Clock: ClockConfig{Timezone: "Asia/Tokyo"},
		Goals: GoalsConfig{
			Anchor: AnchorPolicy{Cycle: CycleWeekly, Weekday: 2},
		},
		Watcher: WatcherConfig{
			DebounceSec:     0.3,
			ScanIntervalSec: 60,
		},
		Blocker: BlockerConfig{
			ApplyCmd: "steplock-helper apply",
			ClearCmd: "steplock-helper clear",
			ProbeCmd: "steplock-helper probe",
		},
		Notifications: NotificationsConfig{Enabled: true},
		Journal:       JournalConfig{MaxSizeBytes: 1048576, Checksum: false},
		History:       HistoryConfig{Enabled: true},
		Limits:        LimitsConfig{MaxYAMLFileBytes: 5242880},
		Daemon:        DaemonConfig{ShutdownTimeoutSec: 30},
		Logging:       LoggingConfig{Level: "info"},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Config
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Goals.Anchor.Cycle != CycleWeekly {
		t.Errorf("goals.anchor.cycle: got %q, want %q", decoded.Goals.Anchor.Cycle, CycleWeekly)
	}
	if decoded.Goals.Anchor.Weekday != 2 {
		t.Errorf("goals.anchor.weekday: got %d, want 2", decoded.Goals.Anchor.Weekday)
	}
	if decoded.Watcher.DebounceSec != 0.3 {
		t.Errorf("watcher.debounce_sec: got %f, want %f", decoded.Watcher.DebounceSec, 0.3)
	}
	if decoded.Blocker.ProbeCmd != "steplock-helper probe" {
		t.Errorf("blocker.probe_cmd: got %q", decoded.Blocker.ProbeCmd)
	}
	if decoded.Limits.MaxYAMLFileBytes != 5242880 {
		t.Errorf("limits.max_yaml_file_bytes: got %d, want %d", decoded.Limits.MaxYAMLFileBytes, 5242880)
	}
}

func TestGoalStateMarshalUnmarshal(t *testing.T) {
	s := GoalState{
		SchemaVersion: 1,
		FileType:      FileTypeGoalState,
		Active: GoalConfig{
			Steps:  QuantGoal{Enabled: true, Target: 10000},
			Energy: QuantGoal{Enabled: false},
			Exercises: []ExerciseGoal{
				{ID: "walking", Name: "Walking", Enabled: true, TargetMinutes: 30},
			},
			Unlock: TimeGoal{Enabled: true, MinuteOfDay: 1080},
		},
		Pending: &PendingChange{
			ID:          "pnd_1771722000_a3f2b7c1",
			Proposed:    GoalConfig{Steps: QuantGoal{Enabled: true, Target: 8000}},
			Intent:      IntentEasier,
			RequestedAt: "2026-03-01T10:00:00+09:00",
			EffectiveAt: "2026-03-02T00:00:00+09:00",
		},
		UpdatedAt: "2026-03-01T10:00:00+09:00",
	}

	data, err := yaml.Marshal(&s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded GoalState
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Active.Steps.Target != 10000 {
		t.Errorf("active.steps.target: got %d", decoded.Active.Steps.Target)
	}
	if decoded.Pending == nil {
		t.Fatal("pending: expected non-nil")
	}
	if decoded.Pending.Intent != IntentEasier {
		t.Errorf("pending.intent: got %q", decoded.Pending.Intent)
	}
	if decoded.Pending.Proposed.Steps.Target != 8000 {
		t.Errorf("pending.proposed.steps.target: got %d", decoded.Pending.Proposed.Steps.Target)
	}
}

func TestGoalConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GoalConfig
		wantErr bool
	}{
		{
			name: "valid",
			cfg: GoalConfig{
				Steps: QuantGoal{Enabled: true, Target: 10000},
				Exercises: []ExerciseGoal{
					{ID: "walking", Enabled: true, TargetMinutes: 30},
					{ID: "yoga", Enabled: false},
				},
			},
			wantErr: false,
		},
		{
			name:    "negative steps target",
			cfg:     GoalConfig{Steps: QuantGoal{Enabled: true, Target: -1}},
			wantErr: true,
		},
		{
			name: "negative target on disabled goal is fine",
			cfg:  GoalConfig{Steps: QuantGoal{Enabled: false, Target: -1}},
		},
		{
			name:    "empty exercise id",
			cfg:     GoalConfig{Exercises: []ExerciseGoal{{ID: "", Name: "Walking"}}},
			wantErr: true,
		},
		{
			name: "duplicate exercise id",
			cfg: GoalConfig{Exercises: []ExerciseGoal{
				{ID: "walking"}, {ID: "walking"},
			}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGoalConfigExerciseLookup(t *testing.T) {
	cfg := GoalConfig{
		Exercises: []ExerciseGoal{
			{ID: "walking", Enabled: true, TargetMinutes: 30},
			{ID: "cycling", Enabled: false, TargetMinutes: 20},
		},
	}

	e, ok := cfg.Exercise("walking")
	if !ok {
		t.Fatal("expected walking to be found")
	}
	if e.TargetMinutes != 30 {
		t.Errorf("walking target: got %d, want 30", e.TargetMinutes)
	}
	if _, ok := cfg.Exercise("swimming"); ok {
		t.Error("expected swimming to be absent")
	}

	ids := cfg.EnabledExerciseIDs()
	if len(ids) != 1 || ids[0] != "walking" {
		t.Errorf("enabled exercise ids: got %v", ids)
	}
}

func TestGoalConfigClone(t *testing.T) {
	original := GoalConfig{
		Steps:  QuantGoal{Enabled: true, Target: 10000},
		Energy: QuantGoal{Enabled: true, Target: 500},
		Exercises: []ExerciseGoal{
			{ID: "walking", Name: "Walking", Enabled: true, TargetMinutes: 30},
			{ID: "yoga", Name: "Yoga", Enabled: false, TargetMinutes: 20},
		},
		Unlock: TimeGoal{Enabled: true, MinuteOfDay: 1080},
	}

	clone := original.Clone()
	if diff := cmp.Diff(original, clone); diff != "" {
		t.Errorf("clone mismatch (-want +got):\n%s", diff)
	}

	// Mutating the clone must not reach the original.
	clone.Exercises[0].TargetMinutes = 99
	if original.Exercises[0].TargetMinutes != 30 {
		t.Errorf("original mutated through clone: got %d, want 30", original.Exercises[0].TargetMinutes)
	}

	empty := GoalConfig{}.Clone()
	if empty.Exercises != nil {
		t.Errorf("expected nil exercises, got %v", empty.Exercises)
	}
}

func TestSelectionClone(t *testing.T) {
	original := Selection{
		Apps:       []string{"com.example.social"},
		Categories: []string{"games"},
		WebDomains: []string{"example.com"},
	}

	clone := original.Clone()
	if diff := cmp.Diff(original, clone); diff != "" {
		t.Errorf("clone mismatch (-want +got):\n%s", diff)
	}

	clone.Apps[0] = "changed"
	if original.Apps[0] != "com.example.social" {
		t.Errorf("original mutated through clone: got %q", original.Apps[0])
	}
}

func TestAnchorPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  AnchorPolicy
		wantErr bool
	}{
		{"daily", AnchorPolicy{Cycle: CycleDaily}, false},
		{"weekly sunday", AnchorPolicy{Cycle: CycleWeekly, Weekday: 1}, false},
		{"weekly saturday", AnchorPolicy{Cycle: CycleWeekly, Weekday: 7}, false},
		{"weekly weekday zero", AnchorPolicy{Cycle: CycleWeekly, Weekday: 0}, true},
		{"weekly weekday eight", AnchorPolicy{Cycle: CycleWeekly, Weekday: 8}, true},
		{"unknown cycle", AnchorPolicy{Cycle: "monthly"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIntent(t *testing.T) {
	for _, i := range []Intent{IntentEasier, IntentHarder, IntentNeutral} {
		if err := ValidateIntent(i); err != nil {
			t.Errorf("ValidateIntent(%q) = %v, want nil", i, err)
		}
	}
	if err := ValidateIntent("sideways"); err == nil {
		t.Error("expected error for unknown intent")
	}
}

func TestIntentDeferred(t *testing.T) {
	tests := []struct {
		intent   Intent
		deferred bool
	}{
		{IntentEasier, true},
		{IntentHarder, false},
		{IntentNeutral, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.intent), func(t *testing.T) {
			if got := tt.intent.Deferred(); got != tt.deferred {
				t.Errorf("Deferred(%q) = %v, want %v", tt.intent, got, tt.deferred)
			}
		})
	}
}
