// Package health reads the daily metrics document an external collector
// drops under the metrics directory. The gate never computes metrics; it
// only consumes what the collector reported for today.
package health

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/msageha/steplock/internal/cycle"
	"github.com/msageha/steplock/internal/model"
	yamlutil "github.com/msageha/steplock/internal/yaml"
	yamlv3 "gopkg.in/yaml.v3"
)

// Reader provides the metrics for the day containing now.
type Reader interface {
	Today(now time.Time) (model.DailyMetrics, error)
}

const defaultMaxFileBytes = 1048576 // メトリクスファイルの読み込み上限（バイト）

// FileReader reads <steplockDir>/metrics/today.yaml. A missing file or one
// whose date is not today reads as zero metrics, which keeps the gate
// failing closed: no fresh data means goals count as unmet.
type FileReader struct {
	steplockDir string
	maxBytes    int
	cal         cycle.Calendar
}

func NewFileReader(steplockDir string, maxBytes int, cal cycle.Calendar) *FileReader {
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileBytes
	}
	return &FileReader{steplockDir: steplockDir, maxBytes: maxBytes, cal: cal}
}

// Path returns the metrics document location, the path the daemon watches.
func (r *FileReader) Path() string {
	return filepath.Join(r.steplockDir, "metrics", "today.yaml")
}

func (r *FileReader) Today(now time.Time) (model.DailyMetrics, error) {
	zero := model.DailyMetrics{
		SchemaVersion: model.SchemaVersion,
		FileType:      model.FileTypeDailyMetrics,
		Date:          r.cal.DayKey(now),
	}

	path := r.Path()
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, nil
		}
		return zero, fmt.Errorf("stat metrics: %w", err)
	}
	if info.Size() > int64(r.maxBytes) {
		return zero, fmt.Errorf("metrics file size %d exceeds limit %d", info.Size(), r.maxBytes)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return zero, fmt.Errorf("read metrics: %w", err)
	}

	if err := yamlutil.ValidateHeader(content, model.FileTypeDailyMetrics); err != nil {
		if rerr := yamlutil.RecoverCorruptedFile(r.steplockDir, path, model.FileTypeDailyMetrics); rerr != nil {
			return zero, fmt.Errorf("invalid metrics (%v), recovery failed: %w", err, rerr)
		}
		return zero, fmt.Errorf("invalid metrics, quarantined: %w", err)
	}

	var metrics model.DailyMetrics
	if err := yamlv3.Unmarshal(content, &metrics); err != nil {
		return zero, fmt.Errorf("parse metrics: %w", err)
	}

	// A document from another day is stale, not an error. Yesterday's
	// progress never satisfies today's goals.
	if metrics.Date != zero.Date {
		return zero, nil
	}
	return metrics, nil
}

// Memory is an in-memory Reader for tests.
type Memory struct {
	Metrics model.DailyMetrics
	Err     error
}

func (m *Memory) Today(now time.Time) (model.DailyMetrics, error) {
	if m.Err != nil {
		return model.DailyMetrics{}, m.Err
	}
	return m.Metrics, nil
}
