// Package setup handles steplock state directory initialization.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/steplock/internal/model"
	atomicyaml "github.com/msageha/steplock/internal/yaml"
	"github.com/msageha/steplock/templates"
)

// Run initializes the steplock state directory. It refuses to touch a
// directory that already exists so a misconfigured STEPLOCK_DIR cannot
// clobber live state.
func Run(steplockDir string) error {
	base, err := filepath.Abs(steplockDir)
	if err != nil {
		return fmt.Errorf("resolve steplock dir: %w", err)
	}

	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	// Create directory structure
	dirs := []string{
		"state",
		"metrics",
		"logs",
		"logs/archive",
		"locks",
		"quarantine",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	// Generate and write config.yaml with auto-filled fields
	cfg, err := generateConfig()
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}
	if err := cfg.Goals.Anchor.Validate(); err != nil {
		return fmt.Errorf("config template: %w", err)
	}
	if err := atomicyaml.AtomicWrite(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	// Create state documents. The daemon loads these through the store, so
	// every document carries the schema header it validates on load.
	if err := writeGoalState(filepath.Join(base, "state", "goals.yaml")); err != nil {
		return fmt.Errorf("write goals.yaml: %w", err)
	}
	if err := writeSelectionState(filepath.Join(base, "state", "selection.yaml")); err != nil {
		return fmt.Errorf("write selection.yaml: %w", err)
	}
	if err := writeUnlockState(filepath.Join(base, "state", "unlock.yaml")); err != nil {
		return fmt.Errorf("write unlock.yaml: %w", err)
	}

	// Create daemon.lock (empty)
	if err := os.WriteFile(filepath.Join(base, "locks", "daemon.lock"), nil, 0600); err != nil {
		return fmt.Errorf("create daemon.lock: %w", err)
	}

	return nil
}

func generateConfig() (*model.Config, error) {
	// Read template config as base
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	// Auto-fill fields
	cfg.Steplock.Created = time.Now().Format(time.RFC3339)

	return &cfg, nil
}

func writeGoalState(path string) error {
	gs := model.GoalState{
		SchemaVersion: model.SchemaVersion,
		FileType:      model.FileTypeGoalState,
	}
	return atomicyaml.AtomicWrite(path, gs)
}

func writeSelectionState(path string) error {
	ss := model.SelectionState{
		SchemaVersion: model.SchemaVersion,
		FileType:      model.FileTypeSelectionState,
	}
	return atomicyaml.AtomicWrite(path, ss)
}

func writeUnlockState(path string) error {
	us := model.UnlockState{
		SchemaVersion: model.SchemaVersion,
		FileType:      model.FileTypeUnlockState,
	}
	return atomicyaml.AtomicWrite(path, us)
}
