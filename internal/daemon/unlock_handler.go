package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/msageha/steplock/internal/events"
	"github.com/msageha/steplock/internal/uds"
)

// UnlockScheduleParams is the request payload for the unlock_schedule UDS command.
type UnlockScheduleParams struct {
	MinuteOfDay int `json:"minute_of_day"`
}

// TriggerParams is the request payload for the trigger UDS command.
type TriggerParams struct {
	Identifier string `json:"identifier"`
}

func (d *Daemon) handleUnlockSchedule(req *uds.Request) *uds.Response {
	var params UnlockScheduleParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}

	if err := d.registry.ScheduleDailyUnlock(params.MinuteOfDay); err != nil {
		return d.errorResponse(err)
	}

	st := d.registry.State()
	d.publish(events.EventUnlockScheduled, map[string]interface{}{
		"event_id":      st.Identifier,
		"minute_of_day": st.MinuteOfDay,
	})

	d.log(LogLevelInfo, "unlock_schedule minute=%d identifier=%s", st.MinuteOfDay, st.Identifier)
	return uds.SuccessResponse(map[string]interface{}{
		"scheduled":     true,
		"minute_of_day": st.MinuteOfDay,
		"identifier":    st.Identifier,
	})
}

func (d *Daemon) handleUnlockCancel(req *uds.Request) *uds.Response {
	st := d.registry.State()

	if err := d.registry.CancelDailyUnlock(); err != nil {
		return d.errorResponse(err)
	}
	if st.Scheduled {
		d.publish(events.EventUnlockCancelled, map[string]interface{}{
			"event_id": st.Identifier,
		})
		d.log(LogLevelInfo, "unlock_cancel identifier=%s", st.Identifier)
	}

	return uds.SuccessResponse(map[string]interface{}{"cancelled": st.Scheduled})
}

func (d *Daemon) handleTrigger(req *uds.Request) *uds.Response {
	var params TriggerParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	if params.Identifier == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "identifier is required")
	}

	matched, err := d.processTrigger(params.Identifier)
	if err != nil {
		return d.errorResponse(err)
	}
	return uds.SuccessResponse(map[string]interface{}{"matched": matched})
}
