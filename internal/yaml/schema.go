package yaml

import (
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/steplock/internal/model"
)

// CurrentSchemaVersion is stamped into every document this package writes.
// Documents claiming a newer version are refused, not guessed at.
const CurrentSchemaVersion = 1

// Header is the prefix every steplock state document starts with.
type Header struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
}

var knownFileTypes = []string{
	model.FileTypeGoalState,
	model.FileTypeSelectionState,
	model.FileTypeUnlockState,
	model.FileTypeDailyMetrics,
}

// ValidateHeader parses content as YAML and checks its schema header. A
// non-empty want pins the expected file_type.
func ValidateHeader(content []byte, want string) error {
	var h Header
	if err := yamlv3.Unmarshal(content, &h); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	switch {
	case h.SchemaVersion < 1:
		return fmt.Errorf("invalid schema_version %d (must be >= 1)", h.SchemaVersion)
	case h.SchemaVersion > CurrentSchemaVersion:
		return fmt.Errorf("unsupported schema_version %d (max supported: %d)", h.SchemaVersion, CurrentSchemaVersion)
	case h.FileType == "":
		return fmt.Errorf("missing file_type")
	case !knownFileType(h.FileType):
		return fmt.Errorf("unknown file_type: %q", h.FileType)
	case want != "" && h.FileType != want:
		return fmt.Errorf("file_type mismatch: got %q, expected %q", h.FileType, want)
	}
	return nil
}

// ValidateHeaderFile is ValidateHeader over a document on disk.
func ValidateHeaderFile(path string, want string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return ValidateHeader(content, want)
}

func knownFileType(ft string) bool {
	for _, k := range knownFileTypes {
		if k == ft {
			return true
		}
	}
	return false
}
