// Package journal provides the append-only JSONL record of goal-edit and
// shield decisions. Every line is a self-contained entry so the log stays
// readable after a crash mid-write.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// Default maximum journal file size (10MB)
	DefaultMaxLogSize = 10 * 1024 * 1024
	// Journal file extension
	LogFileExtension = ".jsonl"
	// Archive directory name
	ArchiveDir = "archive"
)

// LogEntry represents a single journal entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	EventID   string                 `json:"event_id,omitempty"`
	ChangeID  string                 `json:"change_id,omitempty"`
	Intent    string                 `json:"intent,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Checksum  string                 `json:"checksum,omitempty"`
}

// Journal provides append-only logging functionality with rotation
type Journal struct {
	mu              sync.Mutex
	file            *os.File
	currentSize     int64
	maxSize         int64
	logPath         string
	enableChecksum  bool
	rotationCounter int
}

// NewJournal creates a new journal instance
func NewJournal(logPath string, maxSize int64) (*Journal, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}

	j := &Journal{
		logPath: logPath,
		maxSize: maxSize,
	}

	// Ensure log directory exists
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	// Open or create log file
	if err := j.openLogFile(); err != nil {
		return nil, err
	}

	return j, nil
}

// openLogFile opens the journal file and gets its current size
func (j *Journal) openLogFile() error {
	file, err := os.OpenFile(j.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat journal file: %w", err)
	}

	j.file = file
	j.currentSize = stat.Size()
	return nil
}

// Log writes an entry to the journal
func (j *Journal) Log(eventType string, details map[string]interface{}) error {
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Details:   details,
	}

	// Extract common fields from details if present
	if eventID, ok := details["event_id"].(string); ok {
		entry.EventID = eventID
	}
	if changeID, ok := details["change_id"].(string); ok {
		entry.ChangeID = changeID
	}
	if intent, ok := details["intent"].(string); ok {
		entry.Intent = intent
	}

	return j.WriteEntry(&entry)
}

// WriteEntry writes a structured entry to the file
func (j *Journal) WriteEntry(entry *LogEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Add checksum if enabled
	if j.enableChecksum {
		entry.Checksum = j.calculateChecksum(entry)
	}

	// Marshal entry to JSON
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	// Add newline for JSONL format
	data = append(data, '\n')

	// Check if rotation is needed
	if j.currentSize+int64(len(data)) > j.maxSize {
		if err := j.rotate(); err != nil {
			return fmt.Errorf("failed to rotate journal: %w", err)
		}
	}

	// Write to file with lock
	n, err := j.file.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}

	// Sync to disk for durability
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal file: %w", err)
	}

	j.currentSize += int64(n)
	return nil
}

// rotate performs journal rotation
func (j *Journal) rotate() error {
	// Close current file
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close current journal file: %w", err)
	}

	// Create archive directory if needed
	archiveDir := filepath.Join(filepath.Dir(j.logPath), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	// Generate archive filename with timestamp
	timestamp := time.Now().Format("20060102_150405")
	j.rotationCounter++
	baseName := filepath.Base(j.logPath)
	archiveName := fmt.Sprintf("%s.%s.%d%s",
		baseName[:len(baseName)-len(LogFileExtension)],
		timestamp,
		j.rotationCounter,
		LogFileExtension)
	archivePath := filepath.Join(archiveDir, archiveName)

	// Move current journal to archive
	if err := os.Rename(j.logPath, archivePath); err != nil {
		return fmt.Errorf("failed to archive journal file: %w", err)
	}

	// Open new journal file
	if err := j.openLogFile(); err != nil {
		return fmt.Errorf("failed to open new journal file: %w", err)
	}

	return nil
}

// calculateChecksum calculates a simple checksum for integrity verification
func (j *Journal) calculateChecksum(entry *LogEntry) string {
	// Create a copy without the checksum field
	entryCopy := *entry
	entryCopy.Checksum = ""

	data, err := json.Marshal(entryCopy)
	if err != nil {
		return ""
	}

	hash := fmt.Sprintf("%x", simpleHash(data))
	return hash
}

// simpleHash provides a basic hash function for checksums
func simpleHash(data []byte) uint64 {
	var hash uint64 = 5381
	for _, b := range data {
		hash = ((hash << 5) + hash) + uint64(b)
	}
	return hash
}

// EnableChecksum enables checksum calculation for journal entries
func (j *Journal) EnableChecksum(enable bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.enableChecksum = enable
}

// VerifyLogIntegrity verifies the integrity of entries in a journal file
func VerifyLogIntegrity(logPath string) (int, int, error) {
	file, err := os.Open(logPath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	totalEntries := 0
	validEntries := 0

	for decoder.More() {
		var entry LogEntry
		if err := decoder.Decode(&entry); err != nil {
			// Skip malformed entries
			continue
		}

		totalEntries++

		// If entry has checksum, verify it
		if entry.Checksum != "" {
			expectedChecksum := entry.Checksum
			entry.Checksum = ""

			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}

			actualChecksum := fmt.Sprintf("%x", simpleHash(data))
			if actualChecksum == expectedChecksum {
				validEntries++
			}
		} else {
			// Entries without checksum are considered valid
			validEntries++
		}
	}

	return totalEntries, validEntries, nil
}

// Close closes the journal
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		if err := j.file.Sync(); err != nil {
			return err
		}
		return j.file.Close()
	}
	return nil
}

// GetCurrentLogPath returns the current journal file path
func (j *Journal) GetCurrentLogPath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.logPath
}

// GetCurrentSize returns the current size of the journal file
func (j *Journal) GetCurrentSize() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.currentSize
}
