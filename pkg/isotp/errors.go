package isotp

import "errors"

// Failure semantics per ISO 15765-2. No automatic retransmission of the
// logical PDU happens inside the engine; the caller decides whether to
// retry.
var (
	ErrTimeout                = errors.New("isotp: timeout")
	ErrSequenceError          = errors.New("isotp: consecutive frame sequence mismatch")
	ErrSeparationTimeViolation = errors.New("isotp: consecutive frame arrived before STmin elapsed")
	ErrAborted                = errors.New("isotp: transfer aborted")
	ErrPduTooLarge            = errors.New("isotp: pdu exceeds 4095 bytes")
	ErrFlowControlTimeout     = errors.New("isotp: flow control wait limit exceeded")
	ErrBusy                   = errors.New("isotp: engine already has a transfer in progress")
)
