package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/msageha/steplock/internal/model"
)

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"valid goal state", "schema_version: 1\nfile_type: goal_state\nactive: {}\n", model.FileTypeGoalState, false},
		{"known type accepted when unpinned", "schema_version: 1\nfile_type: unlock_state\n", "", false},
		{"version above current", "schema_version: 99\nfile_type: goal_state\n", model.FileTypeGoalState, true},
		{"negative version", "schema_version: -1\nfile_type: goal_state\n", model.FileTypeGoalState, true},
		{"missing version", "file_type: goal_state\n", model.FileTypeGoalState, true},
		{"missing file_type", "schema_version: 1\n", model.FileTypeGoalState, true},
		{"unknown file_type", "schema_version: 1\nfile_type: shopping_list\n", "", true},
		{"pinned type mismatch", "schema_version: 1\nfile_type: selection_state\n", model.FileTypeGoalState, true},
		{"unparseable document", "corrupted: [\n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader([]byte(tt.content), tt.want)
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateHeader_EveryKnownType(t *testing.T) {
	for _, ft := range knownFileTypes {
		t.Run(ft, func(t *testing.T) {
			content := []byte("schema_version: 1\nfile_type: " + ft + "\n")
			if err := ValidateHeader(content, ft); err != nil {
				t.Errorf("%q should validate: %v", ft, err)
			}
		})
	}
}

func TestValidateHeaderFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goals.yaml")
	content := []byte("schema_version: 1\nfile_type: goal_state\nactive: {}\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateHeaderFile(path, model.FileTypeGoalState); err != nil {
		t.Errorf("expected valid document: %v", err)
	}
	if err := ValidateHeaderFile(filepath.Join(dir, "absent.yaml"), ""); err == nil {
		t.Error("expected an error for a missing file")
	}
}
