// Package gate decides whether shields should be up. The decision is a pure
// comparison of today's metrics against the active goal configuration;
// collecting the metrics themselves is the health package's business.
package gate

import (
	"fmt"
	"time"

	"github.com/msageha/steplock/internal/cycle"
	"github.com/msageha/steplock/internal/model"
)

// Decision is the outcome of one gate evaluation. Reasons explain the
// outcome either way: unmet goals when blocking, or why the gate is open.
type Decision struct {
	Block   bool     `json:"block"`
	Reasons []string `json:"reasons"`
}

// Evaluate compares metrics against the configuration at the given time.
// Shields go up only while an enabled metric goal is unmet and the daily
// unlock window has not begun. The unlock time is a release valve, not a
// goal of its own: meeting every metric goal opens the gate early, and the
// unlock minute opens it regardless of progress.
func Evaluate(cfg model.GoalConfig, metrics model.DailyMetrics, now time.Time, cal cycle.Calendar) Decision {
	if cfg.Unlock.Enabled && cal.MinuteOfDay(now) >= clampMinute(cfg.Unlock.MinuteOfDay) {
		minute := clampMinute(cfg.Unlock.MinuteOfDay)
		return Decision{Reasons: []string{
			fmt.Sprintf("unlock window open since %02d:%02d", minute/60, minute%60),
		}}
	}

	anyEnabled := false
	var unmet []string

	if cfg.Steps.Enabled {
		anyEnabled = true
		if metrics.Steps < cfg.Steps.Target {
			unmet = append(unmet, fmt.Sprintf("steps %d/%d", metrics.Steps, cfg.Steps.Target))
		}
	}
	if cfg.Energy.Enabled {
		anyEnabled = true
		if metrics.ActiveEnergyKcal < cfg.Energy.Target {
			unmet = append(unmet, fmt.Sprintf("energy %d/%d kcal", metrics.ActiveEnergyKcal, cfg.Energy.Target))
		}
	}
	for _, e := range cfg.Exercises {
		if !e.Enabled {
			continue
		}
		anyEnabled = true
		done := metrics.ExerciseMinutes[e.ID]
		if done < e.TargetMinutes {
			unmet = append(unmet, fmt.Sprintf("exercise %s %d/%d min", e.ID, done, e.TargetMinutes))
		}
	}

	if !anyEnabled {
		return Decision{Reasons: []string{"no enabled goals"}}
	}
	if len(unmet) == 0 {
		return Decision{Reasons: []string{"all goals met"}}
	}
	return Decision{Block: true, Reasons: unmet}
}

func clampMinute(m int) int {
	if m < 0 {
		return 0
	}
	if m > 1439 {
		return 1439
	}
	return m
}
