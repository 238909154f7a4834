package daemon

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/msageha/steplock/internal/cycle"
	"github.com/msageha/steplock/internal/events"
	"github.com/msageha/steplock/internal/intent"
	"github.com/msageha/steplock/internal/model"
	"github.com/msageha/steplock/internal/uds"
)

// GoalProposeParams is the request payload for the goal_propose UDS command.
type GoalProposeParams struct {
	Config model.GoalConfig `json:"config"`
	DryRun bool             `json:"dry_run,omitempty"`
}

// goalProposeResult is the response payload for goal_propose.
type goalProposeResult struct {
	ChangeID    string       `json:"change_id,omitempty"`
	Intent      model.Intent `json:"intent"`
	EffectiveAt string       `json:"effective_at"`
	Applied     bool         `json:"applied"`
	DryRun      bool         `json:"dry_run,omitempty"`
}

func (d *Daemon) handleGoalGet(req *uds.Request) *uds.Response {
	return uds.SuccessResponse(map[string]interface{}{"active": d.manager.Active()})
}

func (d *Daemon) handleGoalPropose(req *uds.Request) *uds.Response {
	var params GoalProposeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}

	now := d.clock.Now()

	if params.DryRun {
		if err := params.Config.Validate(); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		edit := intent.Classify(d.manager.Active(), params.Config)
		effective := cycle.EffectiveAt(edit, now, d.calendar, d.config.Goals.Anchor)
		d.log(LogLevelInfo, "goal_propose dry_run intent=%s effective_at=%s", edit, effective.Format(time.RFC3339))
		return uds.SuccessResponse(goalProposeResult{
			Intent:      edit,
			EffectiveAt: effective.Format(time.RFC3339),
			Applied:     !effective.After(now),
			DryRun:      true,
		})
	}

	res, err := d.manager.Propose(params.Config, now)
	if err != nil {
		return d.errorResponse(err)
	}

	if d.history != nil {
		if err := d.history.Record(res.Change, res.Original); err != nil {
			d.log(LogLevelWarn, "history record: %v", err)
		}
	}
	d.publish(events.EventPendingSet, map[string]interface{}{
		"change_id":    res.Change.ID,
		"intent":       string(res.Change.Intent),
		"effective_at": res.Change.EffectiveAt,
		"applied":      res.Applied,
	})

	if res.Applied {
		d.onApplied(&res.Change, now)
		if _, err := d.refreshShields("proposal"); err != nil {
			d.log(LogLevelWarn, "refresh after proposal: %v", err)
		}
	}

	d.log(LogLevelInfo, "goal_propose id=%s intent=%s applied=%v", res.Change.ID, res.Change.Intent, res.Applied)
	return uds.SuccessResponse(goalProposeResult{
		ChangeID:    res.Change.ID,
		Intent:      res.Change.Intent,
		EffectiveAt: res.Change.EffectiveAt,
		Applied:     res.Applied,
	})
}

func (d *Daemon) handlePendingGet(req *uds.Request) *uds.Response {
	change, ok := d.manager.Pending()
	if !ok {
		return uds.SuccessResponse(map[string]interface{}{"pending": nil})
	}
	return uds.SuccessResponse(map[string]interface{}{"pending": change})
}

func (d *Daemon) handlePendingCancel(req *uds.Request) *uds.Response {
	cancelled, err := d.manager.Cancel()
	if err != nil {
		return d.errorResponse(err)
	}
	if cancelled == nil {
		return uds.SuccessResponse(map[string]interface{}{"cancelled": false})
	}

	if d.history != nil {
		if err := d.history.MarkCancelled(cancelled.ID); err != nil {
			d.log(LogLevelWarn, "history mark cancelled: %v", err)
		}
	}
	d.publish(events.EventPendingCancelled, map[string]interface{}{
		"change_id": cancelled.ID,
		"intent":    string(cancelled.Intent),
	})

	d.log(LogLevelInfo, "pending_cancel id=%s", cancelled.ID)
	return uds.SuccessResponse(map[string]interface{}{
		"cancelled": true,
		"change_id": cancelled.ID,
	})
}

func (d *Daemon) handleApplyNow(req *uds.Request) *uds.Response {
	now := d.clock.Now()

	applied, err := d.manager.ApplyIfReady(now)
	if err != nil {
		return d.errorResponse(err)
	}
	if applied != nil {
		d.onApplied(applied, now)
	}

	decision, err := d.refreshShields("apply_now")
	if err != nil {
		d.log(LogLevelWarn, "refresh after apply_now: %v", err)
	}

	result := map[string]interface{}{
		"applied": applied != nil,
		"block":   decision.Block,
		"reasons": decision.Reasons,
	}
	if applied != nil {
		result["change_id"] = applied.ID
	}
	return uds.SuccessResponse(result)
}
