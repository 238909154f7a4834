// Package model defines the data structures for steplock's configuration, goals, and persisted state.
package model

import "fmt"

type Config struct {
	Steplock      SteplockConfig      `yaml:"steplock"`
	Clock         ClockConfig         `yaml:"clock"`
	Goals         GoalsConfig         `yaml:"goals"`
	Watcher       WatcherConfig       `yaml:"watcher"`
	Blocker       BlockerConfig       `yaml:"blocker"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Journal       JournalConfig       `yaml:"journal"`
	History       HistoryConfig       `yaml:"history"`
	Limits        LimitsConfig        `yaml:"limits"`
	Daemon        DaemonConfig        `yaml:"daemon"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type SteplockConfig struct {
	Version string `yaml:"version"`
	Created string `yaml:"created"`
}

type ClockConfig struct {
	Timezone string `yaml:"timezone"` // IANA name; empty = system local
}

type GoalsConfig struct {
	Anchor AnchorPolicy `yaml:"anchor"`
}

// Cycle selects the boundary an easier edit defers to.
type Cycle string

const (
	CycleDaily  Cycle = "daily"
	CycleWeekly Cycle = "weekly"
)

// AnchorPolicy configures the deferral boundary for easier edits.
// Weekday uses 1 (Sunday) through 7 (Saturday) and only matters for the
// weekly cycle.
type AnchorPolicy struct {
	Cycle   Cycle `yaml:"cycle" json:"cycle"`
	Weekday int   `yaml:"weekday" json:"weekday"`
}

func (a AnchorPolicy) Validate() error {
	switch a.Cycle {
	case CycleDaily:
		return nil
	case CycleWeekly:
		if a.Weekday < 1 || a.Weekday > 7 {
			return fmt.Errorf("weekly anchor weekday must be 1-7, got %d", a.Weekday)
		}
		return nil
	}
	return fmt.Errorf("unknown anchor cycle %q", a.Cycle)
}

type WatcherConfig struct {
	DebounceSec     float64 `yaml:"debounce_sec"`
	ScanIntervalSec int     `yaml:"scan_interval_sec"`
}

type BlockerConfig struct {
	ApplyCmd string `yaml:"apply_cmd"` // invoked with the selection on stdin
	ClearCmd string `yaml:"clear_cmd"`
	ProbeCmd string `yaml:"probe_cmd"` // exit 0 = authorized
}

type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type JournalConfig struct {
	MaxSizeBytes int64 `yaml:"max_size_bytes"` // ジャーナルサイズの上限（バイト）
	Checksum     bool  `yaml:"checksum"`       // 改ざん検知用のチェックサムを各行に付与
}

type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LimitsConfig struct {
	MaxYAMLFileBytes int `yaml:"max_yaml_file_bytes"` // YAMLファイルサイズの上限（バイト）
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"` // シャットダウン時のドレイン上限（秒）
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}
