package daemon

import (
	"errors"

	"github.com/msageha/steplock/internal/pending"
	"github.com/msageha/steplock/internal/shield"
	"github.com/msageha/steplock/internal/uds"
)

// registerHandlers registers UDS request handlers.
func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	d.server.Handle("shutdown", func(req *uds.Request) *uds.Response {
		d.log(LogLevelInfo, "shutdown requested via UDS")
		go d.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})

	d.server.Handle("status", d.handleStatus)
	d.server.Handle("goal_get", d.handleGoalGet)
	d.server.Handle("goal_propose", d.handleGoalPropose)
	d.server.Handle("pending_get", d.handlePendingGet)
	d.server.Handle("pending_cancel", d.handlePendingCancel)
	d.server.Handle("selection_get", d.handleSelectionGet)
	d.server.Handle("selection_set", d.handleSelectionSet)
	d.server.Handle("shields_update", d.handleShieldsUpdate)
	d.server.Handle("unlock_schedule", d.handleUnlockSchedule)
	d.server.Handle("unlock_cancel", d.handleUnlockCancel)
	d.server.Handle("trigger", d.handleTrigger)
	d.server.Handle("apply_now", d.handleApplyNow)
}

// errorResponse maps component errors onto UDS error codes.
func (d *Daemon) errorResponse(err error) *uds.Response {
	var ve *pending.ValidationError
	if errors.As(err, &ve) {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	var ae *shield.AuthorizationError
	if errors.As(err, &ae) {
		return uds.ErrorResponse(uds.ErrCodeUnauthorized, err.Error())
	}
	return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
}
