// Package blocker implements the platform blocking capability by shelling
// out to configured commands.
package blocker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/msageha/steplock/internal/model"
)

// Exec runs the configured apply/clear/probe commands through the shell.
// The apply command receives the selection as JSON on stdin; the probe
// command's exit status reports authorization (0 = granted).
type Exec struct {
	applyCmd string
	clearCmd string
	probeCmd string
}

func NewExec(cfg model.BlockerConfig) *Exec {
	return &Exec{
		applyCmd: cfg.ApplyCmd,
		clearCmd: cfg.ClearCmd,
		probeCmd: cfg.ProbeCmd,
	}
}

// Authorized runs the probe command. An empty probe command means no
// authorization gate is configured and always reports true.
func (e *Exec) Authorized() bool {
	if e.probeCmd == "" {
		return true
	}
	cmd := exec.Command("/bin/sh", "-c", e.probeCmd)
	return cmd.Run() == nil
}

func (e *Exec) Apply(selection model.Selection) error {
	if e.applyCmd == "" {
		return fmt.Errorf("no apply command configured")
	}

	payload, err := json.Marshal(selection)
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}

	cmd := exec.Command("/bin/sh", "-c", e.applyCmd)
	cmd.Stdin = bytes.NewReader(payload)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("apply command: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (e *Exec) Clear() error {
	if e.clearCmd == "" {
		return fmt.Errorf("no clear command configured")
	}

	cmd := exec.Command("/bin/sh", "-c", e.clearCmd)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("clear command: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
