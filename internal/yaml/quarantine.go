package yaml

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/steplock/internal/model"
)

// Quarantine moves a corrupt document into <steplockDir>/quarantine,
// stamped so repeated corruption never overwrites earlier evidence.
func Quarantine(steplockDir, filePath string) error {
	dir := filepath.Join(steplockDir, "quarantine")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create quarantine dir: %w", err)
	}

	dest := filepath.Join(dir, fmt.Sprintf("%s.%s.corrupt",
		filepath.Base(filePath), time.Now().Format("20060102T150405")))
	if err := os.Rename(filePath, dest); err != nil {
		return fmt.Errorf("move to quarantine: %w", err)
	}

	log.Printf("quarantined corrupted file: %s → %s", filePath, dest)
	return nil
}

// RestoreFromBackup replaces filePath with its .bak sibling, provided the
// backup itself still parses.
func RestoreFromBackup(filePath string) error {
	bakPath := BackupPath(filePath)
	if _, err := os.Stat(bakPath); os.IsNotExist(err) {
		return fmt.Errorf("no backup file: %s", bakPath)
	}

	content, err := os.ReadFile(bakPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := parseCheck(content); err != nil {
		return fmt.Errorf("backup YAML is also corrupted: %w", err)
	}

	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}

	log.Printf("restored from backup: %s → %s", bakPath, filePath)
	return nil
}

// GenerateSkeleton writes a minimal valid document of the given type.
func GenerateSkeleton(filePath string, fileType string) error {
	content, err := yamlv3.Marshal(skeletonFor(fileType))
	if err != nil {
		return fmt.Errorf("marshal skeleton: %w", err)
	}

	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("write skeleton: %w", err)
	}

	log.Printf("generated skeleton: %s (type: %s)", filePath, fileType)
	return nil
}

// RecoverCorruptedFile quarantines the document, restores the .bak
// snapshot if one parses, and otherwise writes a fresh skeleton.
func RecoverCorruptedFile(steplockDir, filePath, fileType string) error {
	if err := Quarantine(steplockDir, filePath); err != nil {
		return fmt.Errorf("quarantine failed: %w", err)
	}

	err := RestoreFromBackup(filePath)
	if err == nil {
		return nil
	}
	log.Printf("backup restore failed for %s: %v — falling back to skeleton generation", filePath, err)

	if err := GenerateSkeleton(filePath, fileType); err != nil {
		return fmt.Errorf("skeleton generation failed: %w", err)
	}
	return nil
}

func header(fileType string) map[string]any {
	return map[string]any{
		"schema_version": CurrentSchemaVersion,
		"file_type":      fileType,
	}
}

// skeletonFor builds the empty document for a file type. Unknown types
// get a bare header.
func skeletonFor(fileType string) map[string]any {
	doc := header(fileType)
	switch fileType {
	case model.FileTypeGoalState:
		doc["active"] = map[string]any{}
		doc["pending"] = nil
		doc["updated_at"] = ""
	case model.FileTypeSelectionState:
		doc["selection"] = map[string]any{
			"apps":        []any{},
			"categories":  []any{},
			"web_domains": []any{},
		}
		doc["updated_at"] = ""
	case model.FileTypeUnlockState:
		doc["scheduled"] = false
		doc["minute_of_day"] = 0
		doc["identifier"] = ""
		doc["updated_at"] = ""
	case model.FileTypeDailyMetrics:
		doc["date"] = ""
		doc["steps"] = 0
		doc["active_energy_kcal"] = 0
		doc["exercise_minutes"] = map[string]any{}
		doc["collected_at"] = ""
	}
	return doc
}
