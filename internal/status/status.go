package status

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/msageha/steplock/internal/gate"
	"github.com/msageha/steplock/internal/model"
	"github.com/msageha/steplock/internal/uds"
	steplockyaml "github.com/msageha/steplock/internal/yaml"
)

type Summary struct {
	Daemon    DaemonStatus         `json:"daemon"`
	Shields   model.ShieldState    `json:"shields,omitempty"`
	Active    *model.GoalConfig    `json:"active,omitempty"`
	Pending   *model.PendingChange `json:"pending,omitempty"`
	Selection *model.Selection     `json:"selection,omitempty"`
	Unlock    *UnlockStatus        `json:"unlock,omitempty"`
	Metrics   *model.DailyMetrics  `json:"metrics,omitempty"`
	Decision  *gate.Decision       `json:"decision,omitempty"`
}

type DaemonStatus struct {
	Running bool `json:"running"`
	Pid     int  `json:"pid,omitempty"`
}

type UnlockStatus struct {
	Scheduled   bool   `json:"scheduled"`
	MinuteOfDay int    `json:"minute_of_day"`
	Identifier  string `json:"identifier,omitempty"`
}

// daemonSummary mirrors the status UDS response payload.
type daemonSummary struct {
	PID       int                  `json:"pid"`
	Shields   model.ShieldState    `json:"shields"`
	Active    model.GoalConfig     `json:"active"`
	Pending   *model.PendingChange `json:"pending"`
	Selection model.Selection      `json:"selection"`
	Unlock    UnlockStatus         `json:"unlock"`
	Metrics   model.DailyMetrics   `json:"metrics"`
	Decision  gate.Decision        `json:"decision"`
}

// Run reports the gate status and prints it. A running daemon answers over
// UDS; otherwise the persisted state files are read directly, which still
// shows goals, pending change, unlock window and today's raw metrics.
func Run(steplockDir string, jsonOutput bool) error {
	summary := Summary{}

	sockPath := filepath.Join(steplockDir, uds.DefaultSocketName)
	if ds, ok := checkDaemon(sockPath); ok {
		summary.Daemon = DaemonStatus{Running: true, Pid: ds.PID}
		summary.Shields = ds.Shields
		active := ds.Active
		summary.Active = &active
		summary.Pending = ds.Pending
		sel := ds.Selection
		summary.Selection = &sel
		unlock := ds.Unlock
		summary.Unlock = &unlock
		metrics := ds.Metrics
		summary.Metrics = &metrics
		decision := ds.Decision
		summary.Decision = &decision
	} else {
		summary.Daemon = DaemonStatus{Running: false}
		fillFromFiles(&summary, steplockDir)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	printSummary(summary)
	return nil
}

func checkDaemon(sockPath string) (daemonSummary, bool) {
	client := uds.NewClient(sockPath)
	resp, err := client.SendCommand("status", nil)
	if err != nil || !resp.Success {
		return daemonSummary{}, false
	}
	var ds daemonSummary
	if err := json.Unmarshal(resp.Data, &ds); err != nil {
		return daemonSummary{}, false
	}
	return ds, true
}

// fillFromFiles reads the persisted documents without going through the
// store so a corrupt file is reported, never quarantined, by a read-only
// status check.
func fillFromFiles(s *Summary, steplockDir string) {
	stateDir := filepath.Join(steplockDir, "state")

	var gs model.GoalState
	if readDoc(filepath.Join(stateDir, "goals.yaml"), model.FileTypeGoalState, &gs) {
		active := gs.Active
		s.Active = &active
		s.Pending = gs.Pending
	}

	var ss model.SelectionState
	if readDoc(filepath.Join(stateDir, "selection.yaml"), model.FileTypeSelectionState, &ss) {
		sel := ss.Selection
		s.Selection = &sel
	}

	var us model.UnlockState
	if readDoc(filepath.Join(stateDir, "unlock.yaml"), model.FileTypeUnlockState, &us) {
		s.Unlock = &UnlockStatus{
			Scheduled:   us.Scheduled,
			MinuteOfDay: us.MinuteOfDay,
			Identifier:  us.Identifier,
		}
	}

	// Raw collector file; the date field shows whether it is stale.
	var dm model.DailyMetrics
	if readDoc(filepath.Join(steplockDir, "metrics", "today.yaml"), model.FileTypeDailyMetrics, &dm) {
		s.Metrics = &dm
	}
}

func readDoc(path, fileType string, out any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("status: failed to read %s: %v", filepath.Base(path), err)
		}
		return false
	}

	if err := steplockyaml.ValidateHeader(data, fileType); err != nil {
		log.Printf("status: invalid schema in %s: %v", filepath.Base(path), err)
		return false
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		log.Printf("status: failed to parse %s: %v", filepath.Base(path), err)
		return false
	}
	return true
}

func printSummary(s Summary) {
	// Daemon
	if s.Daemon.Running {
		fmt.Printf("Daemon: running (pid %d)\n", s.Daemon.Pid)
	} else {
		fmt.Println("Daemon: stopped")
	}

	if s.Shields != "" {
		fmt.Printf("Shields: %s\n", s.Shields)
	}

	if s.Decision != nil {
		if s.Decision.Block {
			fmt.Println("Gate: blocking")
		} else {
			fmt.Println("Gate: open")
		}
		for _, r := range s.Decision.Reasons {
			fmt.Printf("  - %s\n", r)
		}
	}

	// Goals
	if s.Active != nil {
		fmt.Println("\nGoals:")
		printGoals(*s.Active, s.Metrics)
	}

	if s.Pending != nil {
		fmt.Printf("\nPending: %s (%s), effective %s\n",
			s.Pending.ID, s.Pending.Intent, s.Pending.EffectiveAt)
	}

	if s.Unlock != nil && s.Unlock.Scheduled {
		fmt.Printf("\nUnlock window: %02d:%02d daily\n",
			s.Unlock.MinuteOfDay/60, s.Unlock.MinuteOfDay%60)
	}

	if s.Selection != nil {
		fmt.Printf("\nSelection: %d blocked targets\n", s.Selection.Count())
	}

	if s.Metrics != nil && s.Metrics.Date != "" {
		fmt.Printf("\nMetrics date: %s\n", s.Metrics.Date)
	}
}

func printGoals(active model.GoalConfig, m *model.DailyMetrics) {
	steps, energy := "-", "-"
	var exMinutes map[string]int
	if m != nil {
		steps = strconv.Itoa(m.Steps)
		energy = strconv.Itoa(m.ActiveEnergyKcal)
		exMinutes = m.ExerciseMinutes
	}

	printed := false
	fmt.Printf("  %-14s  %8s  %8s\n", "GOAL", "TARGET", "TODAY")
	if active.Steps.Enabled {
		fmt.Printf("  %-14s  %8d  %8s\n", "steps", active.Steps.Target, steps)
		printed = true
	}
	if active.Energy.Enabled {
		fmt.Printf("  %-14s  %8d  %8s\n", "energy_kcal", active.Energy.Target, energy)
		printed = true
	}
	for _, ex := range active.Exercises {
		if !ex.Enabled {
			continue
		}
		cur := "-"
		if exMinutes != nil {
			cur = strconv.Itoa(exMinutes[ex.ID])
		}
		fmt.Printf("  %-14s  %8d  %8s\n", "ex:"+ex.ID, ex.TargetMinutes, cur)
		printed = true
	}
	if active.Unlock.Enabled {
		fmt.Printf("  %-14s  %8s\n", "unlock",
			fmt.Sprintf("%02d:%02d", active.Unlock.MinuteOfDay/60, active.Unlock.MinuteOfDay%60))
		printed = true
	}
	if !printed {
		fmt.Println("  (none enabled)")
	}
}
