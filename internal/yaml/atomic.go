// Package yaml reads and writes steplock's YAML state documents: atomic
// writes through temp files, schema header checks, and quarantine recovery
// for documents that no longer parse.
package yaml

import (
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"
)

// BackupPath returns the .bak sibling of a state document.
func BackupPath(path string) string {
	return path + ".bak"
}

// AtomicWrite marshals a document and writes it via AtomicWriteRaw.
func AtomicWrite(path string, data any) error {
	content, err := yamlv3.Marshal(data)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return AtomicWriteRaw(path, content)
}

// AtomicWriteRaw writes content through a temp file: write and sync,
// re-read and parse, snapshot the previous document to .bak, rename over
// the destination. A crash at any step leaves either the old document or
// the new one on disk, never a torn write.
func AtomicWriteRaw(path string, content []byte) error {
	tmpName, err := writeTemp(filepath.Dir(path), content)
	if tmpName != "" {
		defer func() { _ = os.Remove(tmpName) }()
	}
	if err != nil {
		return err
	}

	// Reject the write if what landed on disk does not parse back.
	written, err := os.ReadFile(tmpName)
	if err != nil {
		return fmt.Errorf("read temp file for validation: %w", err)
	}
	if err := parseCheck(written); err != nil {
		return fmt.Errorf("yaml validation failed: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := snapshot(path, BackupPath(path)); err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// writeTemp writes content to a fresh temp file in dir and syncs it. The
// temp file lives next to the destination so the final rename never
// crosses a filesystem boundary.
func writeTemp(dir string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".steplock-tmp-*.yaml")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return name, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return name, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return name, fmt.Errorf("close temp file: %w", err)
	}
	return name, nil
}

func parseCheck(content []byte) error {
	var doc any
	return yamlv3.Unmarshal(content, &doc)
}

// snapshot copies src to dst and syncs the copy. State documents are
// small, so the copy goes through memory.
func snapshot(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
