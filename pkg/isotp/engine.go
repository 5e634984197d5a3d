// Package isotp implements the ISO 15765-2 transport layer: classical
// (8-byte, single-address) CAN segmentation, reassembly, flow control
// and separation-time enforcement, driving an abstract can.Bus.
package isotp

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fleetdiag/canuds/internal/fifo"
	"github.com/fleetdiag/canuds/pkg/can"
)

// State is one of the engine's transport states.
type State uint8

const (
	StateIdle State = iota
	StateTxAwaitingFC
	StateTxSendingCFs
	StateRxAwaitingCF
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateTxAwaitingFC:
		return "TxAwaitingFC"
	case StateTxSendingCFs:
		return "TxSendingCFs"
	case StateRxAwaitingCF:
		return "RxAwaitingCF"
	case StateCompleted:
		return "Completed"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Engine drives the ISO-TP segmentation/flow-control state machine over
// one exclusively-owned can.Channel. One Engine handles one logical PDU
// transfer at a time; Send, Recv and Transact serialize on an internal
// lock.
type Engine struct {
	mu       sync.Mutex
	channel  *can.Channel
	settings Settings
	state    State
	log      *log.Entry
}

// New creates an Engine driving channel with the given settings.
func New(channel *can.Channel, settings Settings) *Engine {
	return &Engine{
		channel:  channel,
		settings: settings,
		state:    StateIdle,
		log:      log.WithField("component", "isotp"),
	}
}

// Configure replaces the engine's settings. Safe only when no transfer
// is in progress.
func (e *Engine) Configure(settings Settings) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return ErrBusy
	}
	e.settings = settings
	return nil
}

// State reports the engine's current transport state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.state = s
	e.log.Debugf("state -> %s", s)
}

// Send segments and transmits a single PDU, driving flow control
// dictated by the receiver. No automatic retransmission on failure.
func (e *Engine) Send(ctx context.Context, pdu []byte, timeout time.Duration) error {
	if len(pdu) > PduMaxLength {
		return ErrPduTooLarge
	}
	e.mu.Lock()
	defer func() {
		e.state = StateIdle
		e.mu.Unlock()
	}()
	if e.state != StateIdle {
		return ErrBusy
	}

	deadline := time.Now().Add(timeout)

	if len(pdu) <= 7 {
		frame := e.frame(pad(encodeSingleFrame(pdu), e.settings.PadFrame))
		if err := e.channel.Write(frame, NAs); err != nil {
			e.setState(StateError)
			return err
		}
		e.setState(StateCompleted)
		return nil
	}

	first6 := pdu[:6]
	frame := e.frame(pad(encodeFirstFrame(len(pdu), first6), e.settings.PadFrame))
	if err := e.channel.Write(frame, NAs); err != nil {
		e.setState(StateError)
		return err
	}
	e.setState(StateTxAwaitingFC)

	remaining := pdu[6:]
	sn := uint8(1)
	var lastCf time.Time

	for len(remaining) > 0 {
		bs, stMin, err := e.awaitFlowControl(ctx, deadline)
		if err != nil {
			e.setState(StateError)
			return err
		}
		e.setState(StateTxSendingCFs)

		sepTime := STMinDuration(stMin)
		block := int(bs)
		if block == 0 {
			block = len(remaining)/7 + 1
		}
		for i := 0; i < block && len(remaining) > 0; i++ {
			if !lastCf.IsZero() && sepTime > 0 {
				if wait := sepTime - time.Since(lastCf); wait > 0 {
					time.Sleep(wait)
				}
			}
			n := 7
			if n > len(remaining) {
				n = len(remaining)
			}
			cfFrame := e.frame(pad(encodeConsecutiveFrame(sn, remaining[:n]), e.settings.PadFrame))
			if err := e.channel.Write(cfFrame, NAs); err != nil {
				e.setState(StateError)
				return err
			}
			lastCf = time.Now()
			sn = (sn + 1) % 16
			remaining = remaining[n:]
		}
		if len(remaining) > 0 {
			e.setState(StateTxAwaitingFC)
		}
	}

	e.setState(StateCompleted)
	return nil
}

// awaitFlowControl blocks for the next Flow Control frame, honouring
// Wait frames up to MaxFlowControlWaits and failing on Overflow.
func (e *Engine) awaitFlowControl(ctx context.Context, deadline time.Time) (bs uint8, stMin uint8, err error) {
	waits := 0
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, 0, ErrTimeout
		}
		wait := NBs
		if wait > remaining {
			wait = remaining
		}
		frame, rerr := e.channel.ReadOne(ctx, wait)
		if rerr == can.ErrBufferEmpty {
			return 0, 0, ErrTimeout
		}
		if rerr != nil {
			return 0, 0, rerr
		}
		if frame.ID != e.settings.RxID {
			continue
		}
		data := frame.Bytes()
		if pciType(data) != pciFlowControl {
			e.log.Debugf("ignoring non-FC frame while awaiting flow control: % x", data)
			continue
		}
		fs := data[0] & 0x0F
		switch fs {
		case fsContinueToSend:
			return data[1], data[2], nil
		case fsWait:
			waits++
			if waits > MaxFlowControlWaits {
				return 0, 0, ErrFlowControlTimeout
			}
			continue
		case fsOverflow:
			return 0, 0, ErrAborted
		default:
			return 0, 0, ErrAborted
		}
	}
}

// Recv returns the next complete incoming PDU.
func (e *Engine) Recv(ctx context.Context, timeout time.Duration) ([]byte, error) {
	e.mu.Lock()
	defer func() {
		e.state = StateIdle
		e.mu.Unlock()
	}()
	if e.state != StateIdle {
		return nil, ErrBusy
	}

	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			e.setState(StateError)
			return nil, ErrTimeout
		}
		frame, err := e.channel.ReadOne(ctx, remaining)
		if err == can.ErrBufferEmpty {
			e.setState(StateError)
			return nil, ErrTimeout
		}
		if err != nil {
			e.setState(StateError)
			return nil, err
		}
		if frame.ID != e.settings.RxID {
			continue
		}
		data := frame.Bytes()
		switch pciType(data) {
		case pciSingleFrame:
			n := int(data[0] & 0x0F)
			if n+1 > len(data) {
				e.setState(StateError)
				return nil, ErrAborted
			}
			e.setState(StateCompleted)
			return append([]byte(nil), data[1:1+n]...), nil
		case pciFirstFrame:
			return e.recvMultiFrame(ctx, deadline, data)
		case pciFlowControl:
			e.log.Debug("flow control received with no outstanding first frame, ignoring")
			continue
		default:
			e.log.Debugf("unexpected PCI while idle: % x", data)
			continue
		}
	}
}

func (e *Engine) recvMultiFrame(ctx context.Context, deadline time.Time, ffData []byte) ([]byte, error) {
	totalLen := (int(ffData[0]&0x0F) << 8) | int(ffData[1])
	if totalLen > PduMaxLength {
		e.setState(StateError)
		return nil, ErrPduTooLarge
	}
	buf := fifo.NewFifo(totalLen + 1)
	n := 6
	if n > len(ffData)-2 {
		n = len(ffData) - 2
	}
	if n > totalLen {
		n = totalLen
	}
	buf.Write(ffData[2 : 2+n])

	e.setState(StateRxAwaitingCF)
	if err := e.sendFlowControl(fsContinueToSend); err != nil {
		e.setState(StateError)
		return nil, err
	}

	expectedSN := uint8(1)
	framesSinceFC := 0
	var lastCf time.Time

	for {
		if buf.Occupied() >= totalLen {
			e.setState(StateCompleted)
			return buf.ReadAll(), nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			e.setState(StateError)
			return nil, ErrTimeout
		}
		wait := NCr
		if wait > remaining {
			wait = remaining
		}
		frame, err := e.channel.ReadOne(ctx, wait)
		if err == can.ErrBufferEmpty {
			e.setState(StateError)
			return nil, ErrTimeout
		}
		if err != nil {
			e.setState(StateError)
			return nil, err
		}
		if frame.ID != e.settings.RxID {
			continue
		}
		data := frame.Bytes()
		switch pciType(data) {
		case pciConsecutiveFrame:
			sn := data[0] & 0x0F
			if sn != expectedSN {
				e.setState(StateError)
				return nil, ErrSequenceError
			}
			now := time.Now()
			if framesSinceFC > 0 {
				if now.Sub(lastCf) < STMinDuration(e.settings.STmin) {
					e.setState(StateError)
					return nil, ErrSeparationTimeViolation
				}
			}
			lastCf = now
			payload := data[1:]
			left := totalLen - buf.Occupied()
			if len(payload) > left {
				payload = payload[:left]
			}
			buf.Write(payload)
			expectedSN = (expectedSN + 1) % 16
			framesSinceFC++

			bs := int(e.settings.BlockSize)
			if buf.Occupied() < totalLen && bs > 0 && framesSinceFC == bs {
				if err := e.sendFlowControl(fsContinueToSend); err != nil {
					e.setState(StateError)
					return nil, err
				}
				framesSinceFC = 0
			}
		case pciFirstFrame:
			e.log.Debug("second first frame while reassembling, sending wait and dropping")
			_ = e.sendFlowControl(fsWait)
		case pciFlowControl:
			e.log.Debug("flow control received while reassembling, ignoring")
		default:
			e.setState(StateError)
			return nil, ErrAborted
		}
	}
}

func (e *Engine) sendFlowControl(fs uint8) error {
	frame := e.frame(pad(encodeFlowControl(fs, e.settings.BlockSize, e.settings.STmin), e.settings.PadFrame))
	return e.channel.Write(frame, NAr)
}

func (e *Engine) frame(data []byte) can.Frame {
	return can.NewFrame(e.settings.TxID, e.settings.ExtendedID, data)
}

// Transact sends pdu and returns the reply received on RxID, combining
// Send and Recv under one deadline.
func (e *Engine) Transact(ctx context.Context, pdu []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if err := e.Send(ctx, pdu, timeout); err != nil {
		return nil, err
	}
	return e.Recv(ctx, time.Until(deadline))
}
