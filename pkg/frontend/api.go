// Package frontend is the CLI-facing façade over uds.Client: every
// method returns a tagged Success{text}/Fail{text} result instead of a
// Go error, matching the textual pass/fail contract the CLI and a GUI
// layer both consume.
package frontend

import (
	"context"
	"time"

	"github.com/fleetdiag/canuds/pkg/codec"
	"github.com/fleetdiag/canuds/pkg/uds"
)

// Result is the tagged Success/Fail outcome every API call returns.
// Text always begins with "SUCCESS" or "FAIL".
type Result struct {
	Ok   bool
	Text string
}

// Success builds an Ok result. If extra is supplied it is appended
// after a newline, matching the "SUCCESS\n<detail>" shape scenario 6
// expects.
func Success(extra ...string) Result {
	text := "SUCCESS"
	for _, e := range extra {
		if e != "" {
			text += "\n" + e
		}
	}
	return Result{Ok: true, Text: text}
}

// Fail builds a failed result with reason appended after "FAIL\n".
func Fail(reason string) Result {
	return Result{Ok: false, Text: "FAIL\n" + reason}
}

func fromError(err error) Result {
	var nr *uds.NegativeResponse
	if asNegativeResponse(err, &nr) {
		return Fail("NEGATIVE UDS RESPONSE")
	}
	return Fail(err.Error())
}

func asNegativeResponse(err error, target **uds.NegativeResponse) bool {
	for err != nil {
		if nr, ok := err.(*uds.NegativeResponse); ok {
			*target = nr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// API wraps a uds.Client behind the textual command surface the CLI
// drives.
type API struct {
	client *uds.Client
}

// New wraps client.
func New(client *uds.Client) *API {
	return &API{client: client}
}

// SetMode issues DiagnosticSessionControl.
func (a *API) SetMode(ctx context.Context, mode uds.SessionType) Result {
	if err := a.client.SetSessionMode(ctx, mode); err != nil {
		return fromError(err)
	}
	return Success()
}

// Reset issues ECUReset.
func (a *API) Reset(ctx context.Context, resetType uds.ResetType) Result {
	if err := a.client.Reset(ctx, resetType); err != nil {
		return fromError(err)
	}
	return Success()
}

// ReadData issues ReadDataByIdentifier and returns the decoded report.
func (a *API) ReadData(ctx context.Context, id codec.DataId) Result {
	text, err := a.client.ReadData(ctx, id)
	if err != nil {
		return fromError(err)
	}
	return Success(text)
}

// RunRoutine issues RoutineControl/Start.
func (a *API) RunRoutine(ctx context.Context, id codec.RoutineId, option []byte) Result {
	text, err := a.client.StartRoutine(ctx, id, option)
	if err != nil {
		return fromError(err)
	}
	return Success(text)
}

// RoutineResult issues RoutineControl/RequestResults, or pops the
// correlator queue for connectivity routines.
func (a *API) RoutineResult(ctx context.Context, id codec.RoutineId, option []byte) Result {
	text, err := a.client.RoutineResult(ctx, id, option)
	if err != nil {
		return fromError(err)
	}
	return Success(text)
}

// StopRoutine issues RoutineControl/Stop.
func (a *API) StopRoutine(ctx context.Context, id codec.RoutineId, option []byte) Result {
	if err := a.client.StopRoutine(ctx, id, option); err != nil {
		return fromError(err)
	}
	return Success()
}

// SecurityAccess drives the full RequestSeed/SendKey handshake for
// level.
func (a *API) SecurityAccess(ctx context.Context, level uds.SecurityLevel) Result {
	seed, err := a.client.RequestSeed(ctx, level)
	if err != nil {
		return fromError(err)
	}
	if err := a.client.SendKey(ctx, level, seed); err != nil {
		return fromError(err)
	}
	return Success()
}

// DtcByStatusMask issues ReadDTCInformation/ReportDTCByStatusMask.
func (a *API) DtcByStatusMask(ctx context.Context, statusMask uint8) Result {
	dtcs, err := a.client.ReadDTCByStatusMask(ctx, statusMask)
	if err != nil {
		return fromError(err)
	}
	return Success(codec.FormatDtcReport(dtcs))
}

// Stream invokes call once per second until ctx is cancelled, handing
// each Result to emit.
func Stream(ctx context.Context, call func(context.Context) Result, emit func(Result)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	emit(call(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit(call(ctx))
		}
	}
}
