package daemon

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/msageha/steplock/internal/events"
	"github.com/msageha/steplock/internal/gate"
	"github.com/msageha/steplock/internal/model"
	"github.com/msageha/steplock/internal/uds"
)

// SelectionSetParams is the request payload for the selection_set UDS command.
type SelectionSetParams struct {
	Selection model.Selection `json:"selection"`
}

// ShieldsUpdateParams is the request payload for the shields_update UDS command.
type ShieldsUpdateParams struct {
	Block bool `json:"block"`
}

// statusSummary is the response payload for the status UDS command.
type statusSummary struct {
	PID       int                  `json:"pid"`
	Shields   model.ShieldState    `json:"shields"`
	Active    model.GoalConfig     `json:"active"`
	Pending   *model.PendingChange `json:"pending,omitempty"`
	Selection model.Selection      `json:"selection"`
	Unlock    unlockSummary        `json:"unlock"`
	Metrics   model.DailyMetrics   `json:"metrics"`
	Decision  gate.Decision        `json:"decision"`
}

type unlockSummary struct {
	Scheduled   bool   `json:"scheduled"`
	MinuteOfDay int    `json:"minute_of_day"`
	Identifier  string `json:"identifier,omitempty"`
}

// handleStatus reports a full snapshot without side effects: state is read,
// the gate is evaluated, but shields are not driven.
func (d *Daemon) handleStatus(req *uds.Request) *uds.Response {
	now := d.clock.Now()

	metrics, err := d.health.Today(now)
	if err != nil {
		d.log(LogLevelWarn, "status metrics read: %v", err)
	}

	snap := d.manager.Snapshot()
	ust := d.registry.State()

	return uds.SuccessResponse(statusSummary{
		PID:       os.Getpid(),
		Shields:   d.shields.State(),
		Active:    snap.Active,
		Pending:   snap.Pending,
		Selection: d.shields.Selection(),
		Unlock: unlockSummary{
			Scheduled:   ust.Scheduled,
			MinuteOfDay: ust.MinuteOfDay,
			Identifier:  ust.Identifier,
		},
		Metrics:  metrics,
		Decision: gate.Evaluate(snap.Active, metrics, now, d.calendar),
	})
}

func (d *Daemon) handleSelectionGet(req *uds.Request) *uds.Response {
	sel := d.shields.Selection()
	return uds.SuccessResponse(map[string]interface{}{
		"selection": sel,
		"count":     sel.Count(),
	})
}

func (d *Daemon) handleSelectionSet(req *uds.Request) *uds.Response {
	var params SelectionSetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}

	if err := d.shields.SetSelection(params.Selection); err != nil {
		return d.errorResponse(err)
	}
	d.publish(events.EventSelectionUpdated, map[string]interface{}{
		"count": params.Selection.Count(),
	})

	// A live shield keeps blocking the old set until reapplied.
	if d.shields.State() == model.ShieldStateActive {
		if _, err := d.refreshShields("selection"); err != nil {
			d.log(LogLevelWarn, "refresh after selection update: %v", err)
		}
	}

	d.log(LogLevelInfo, "selection_set count=%d", params.Selection.Count())
	return uds.SuccessResponse(map[string]interface{}{"count": params.Selection.Count()})
}

// handleShieldsUpdate is the manual override. The next evaluation (watcher,
// ticker or trigger) re-imposes whatever the gate decides.
func (d *Daemon) handleShieldsUpdate(req *uds.Request) *uds.Response {
	var params ShieldsUpdateParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}

	if err := d.shields.UpdateShields(params.Block); err != nil {
		return d.errorResponse(err)
	}
	d.publish(events.EventShieldsUpdated, map[string]interface{}{
		"block":   params.Block,
		"trigger": "manual",
	})

	d.log(LogLevelInfo, "shields_update block=%v", params.Block)
	return uds.SuccessResponse(map[string]interface{}{"shields": d.shields.State()})
}
