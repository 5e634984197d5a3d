package uds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fleetdiag/canuds/pkg/codec"
	"github.com/fleetdiag/canuds/pkg/isotp"
)

// RoutineGateway is the correlator capability RoutineControl needs for
// connectivity-domain routines: fire a request, non-blocking-pop a
// result. Client depends on this narrow interface rather than the
// concrete correlator type, the same way the engine depends on an
// abstract CAN adapter rather than a concrete driver.
type RoutineGateway interface {
	Send(domain codec.Domain, command uint8) error
	TryRecv() (text string, ok bool)
}

// errBusyRetry signals transact to resend the PDU once after NRC 0x21.
var errBusyRetry = errors.New("uds: internal busy-retry signal")

// Client drives one ECU's UDS service dispatch over an isotp.Engine. At
// most one transaction is in flight at a time; SetSessionMode/SendKey
// mutate the owned SessionState only on a positive reply.
type Client struct {
	mu       sync.Mutex
	engine   *isotp.Engine
	opts     ClientOptions
	state    SessionState
	gateway  RoutineGateway
	lastTxn  time.Time
	log      *log.Entry
	stopTp   chan struct{}
	tpDone   chan struct{}
}

// NewClient wraps engine with UDS service dispatch using opts.
func NewClient(engine *isotp.Engine, opts ClientOptions) *Client {
	return &Client{
		engine: engine,
		opts:   opts,
		state:  SessionState{Mode: SessionDefault},
		log:    log.WithField("component", "uds"),
	}
}

// SetGateway attaches the correlator used for connectivity-domain
// routines. Nil is valid; such routines then fail with ErrNotSupported.
func (c *Client) SetGateway(gw RoutineGateway) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gateway = gw
}

// State returns a copy of the client's current session/security state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transact sends one PDU, classifies the reply, and absorbs NRC 0x78
// pending extensions and a single NRC 0x21 busy-repeat resend. Callers
// must already exclude SID from the body; transact prepends it.
func (c *Client) transact(ctx context.Context, sid SID, body []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.CommandCooldown > 0 {
		if wait := c.opts.CommandCooldown - time.Since(c.lastTxn); wait > 0 {
			time.Sleep(wait)
		}
	}

	pdu := make([]byte, 0, 1+len(body))
	pdu = append(pdu, byte(sid))
	pdu = append(pdu, body...)

	var reply []byte
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if sendErr := c.engine.Send(ctx, pdu, c.opts.ReplyTimeout); sendErr != nil {
			c.lastTxn = time.Now()
			return nil, sendErr
		}
		reply, err = c.awaitReply(ctx, sid)
		c.lastTxn = time.Now()
		if errors.Is(err, errBusyRetry) {
			c.log.Debugf("SID 0x%02X busy, retrying after 100ms", sid)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		return reply, err
	}
	return nil, &NegativeResponse{SID: sid, NRC: NRCBusyRepeatRequest}
}

func (c *Client) awaitReply(ctx context.Context, sid SID) ([]byte, error) {
	deadline := time.Now().Add(c.opts.ReplyTimeout)
	pendingCount := 0
	for {
		reply, err := c.engine.Recv(ctx, time.Until(deadline))
		if err != nil {
			return nil, err
		}
		if len(reply) == 0 {
			return nil, ErrEmptyResponse
		}
		if reply[0] == negativeResponseSID {
			if len(reply) < 3 {
				return nil, ErrInvalidResponseLength
			}
			respSid := SID(reply[1])
			nrc := NRC(reply[2])
			if respSid != sid {
				return nil, ErrWrongResponseSid
			}
			switch nrc {
			case NRCRequestCorrectlyReceivedResponsePending:
				pendingCount++
				if pendingCount > c.opts.MaxPendingCount {
					return nil, &NegativeResponse{SID: sid, NRC: nrc}
				}
				deadline = time.Now().Add(c.opts.PendingExtension)
				continue
			case NRCBusyRepeatRequest:
				return nil, errBusyRetry
			default:
				return nil, &NegativeResponse{SID: sid, NRC: nrc}
			}
		}
		if reply[0] != byte(sid)+PositiveOffset {
			return nil, ErrWrongResponseSid
		}
		return reply[1:], nil
	}
}

// SetSessionMode issues DiagnosticSessionControl. On a positive reply,
// SessionState.Mode is updated; this is the only path that mutates it.
func (c *Client) SetSessionMode(ctx context.Context, mode SessionType) error {
	_, err := c.transact(ctx, SIDDiagnosticSessionControl, []byte{byte(mode)})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.state.Mode = mode
	c.mu.Unlock()
	return nil
}

// Reset issues ECUReset.
func (c *Client) Reset(ctx context.Context, resetType ResetType) error {
	_, err := c.transact(ctx, SIDECUReset, []byte{byte(resetType)})
	return err
}

// ReadData issues ReadDataByIdentifier and decodes the reply into a
// human-readable report.
func (c *Client) ReadData(ctx context.Context, id codec.DataId) (string, error) {
	reply, err := c.transact(ctx, SIDReadDataByIdentifier, id.Bytes())
	if err != nil {
		return "", err
	}
	// reply is [did_hi, did_lo, payload...]
	if len(reply) < 2 {
		return "", ErrInvalidResponseLength
	}
	return codec.DecodeDataId(id, reply[2:])
}

// ReadDashboard issues ReadDataByIdentifier(Dashboard) and decodes the
// typed 201-byte record.
func (c *Client) ReadDashboard(ctx context.Context) (codec.DashboardRecord, error) {
	reply, err := c.transact(ctx, SIDReadDataByIdentifier, codec.Dashboard.Bytes())
	if err != nil {
		return codec.DashboardRecord{}, err
	}
	if len(reply) < 2 {
		return codec.DashboardRecord{}, ErrInvalidResponseLength
	}
	return codec.DecodeDashboard(reply[2:])
}

// RequestSeed issues the RequestSeed half of the SecurityAccess
// handshake and returns the raw 5-byte seed.
func (c *Client) RequestSeed(ctx context.Context, level SecurityLevel) ([]byte, error) {
	if level != SecurityL1RequestSeed && level != SecurityL2RequestSeed {
		return nil, ErrParameterInvalid
	}
	reply, err := c.transact(ctx, SIDSecurityAccess, []byte{byte(level)})
	if err != nil {
		return nil, err
	}
	if len(reply) < 1 || len(reply[1:]) != 5 {
		return nil, ErrParameterInvalid
	}
	return reply[1:], nil
}

// SendKey completes the SecurityAccess handshake using a key derived
// by the Client's configured KeyDeriver, and marks tester-present as
// required on success.
func (c *Client) SendKey(ctx context.Context, requestLevel SecurityLevel, seed []byte) error {
	if len(seed) != 5 {
		return ErrParameterInvalid
	}
	if c.opts.Keys == nil {
		return fmt.Errorf("uds: %w: no KeyDeriver configured", ErrNotImplemented)
	}
	key, err := c.opts.Keys.DeriveKey(requestLevel, seed)
	if err != nil {
		return err
	}
	sendLevel, authLevel, err := sendLevelFor(requestLevel)
	if err != nil {
		return err
	}
	body := append([]byte{byte(sendLevel)}, key...)
	_, err = c.transact(ctx, SIDSecurityAccess, body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.state.Security = authLevel
	c.state.TesterPresentNeeded = true
	c.mu.Unlock()
	return nil
}

func sendLevelFor(requestLevel SecurityLevel) (SecurityLevel, AuthLevel, error) {
	switch requestLevel {
	case SecurityL1RequestSeed:
		return SecurityL1SendKey, AuthL1Authenticated, nil
	case SecurityL2RequestSeed:
		return SecurityL2SendKey, AuthL2Authenticated, nil
	default:
		return 0, AuthNone, ErrParameterInvalid
	}
}

// ensureRoutinePrerequisites transitions into the Programming session
// and an authenticated security level if not already held, as
// RoutineControl requires both.
func (c *Client) ensureRoutinePrerequisites(ctx context.Context) error {
	if c.State().Mode != SessionProgramming {
		if err := c.SetSessionMode(ctx, SessionProgramming); err != nil {
			return err
		}
	}
	if c.State().Security == AuthNone {
		seed, err := c.RequestSeed(ctx, SecurityL1RequestSeed)
		if err != nil {
			return err
		}
		if err := c.SendKey(ctx, SecurityL1RequestSeed, seed); err != nil {
			return err
		}
	}
	return nil
}

// StartRoutine issues RoutineControl/Start. Connectivity RIDs are
// forwarded to the correlator and return immediately; all others are
// driven over UDS directly after the session/security prerequisites
// are met.
func (c *Client) StartRoutine(ctx context.Context, id codec.RoutineId, option []byte) (string, error) {
	if domain, command, ok := codec.IsConnectivityRoutine(id); ok {
		if c.gateway == nil {
			return "", ErrNotSupported
		}
		if err := c.gateway.Send(domain, command); err != nil {
			return "", err
		}
		return "Started", nil
	}

	if err := c.ensureRoutinePrerequisites(ctx); err != nil {
		return "", err
	}
	body := append([]byte{byte(StartRoutine)}, id.Bytes()...)
	body = append(body, option...)
	_, err := c.transact(ctx, SIDRoutineControl, body)
	if err != nil {
		return "", err
	}
	return "Started", nil
}

// StopRoutine issues RoutineControl/Stop for a non-connectivity RID.
func (c *Client) StopRoutine(ctx context.Context, id codec.RoutineId, option []byte) error {
	if _, _, ok := codec.IsConnectivityRoutine(id); ok {
		return ErrNotSupported
	}
	body := append([]byte{byte(StopRoutine)}, id.Bytes()...)
	body = append(body, option...)
	_, err := c.transact(ctx, SIDRoutineControl, body)
	return err
}

// RoutineResult retrieves a routine's result: for connectivity RIDs it
// non-blocking-pops the correlator's queue; for all others it issues
// RoutineControl/Result over UDS.
func (c *Client) RoutineResult(ctx context.Context, id codec.RoutineId, option []byte) (string, error) {
	if _, _, ok := codec.IsConnectivityRoutine(id); ok {
		if c.gateway == nil {
			return "", ErrNotSupported
		}
		if text, ok := c.gateway.TryRecv(); ok {
			return text, nil
		}
		return "no result yet", nil
	}

	body := append([]byte{byte(RequestRoutineResults)}, id.Bytes()...)
	body = append(body, option...)
	reply, err := c.transact(ctx, SIDRoutineControl, body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("% x", reply), nil
}

// ReadDTCByStatusMask issues ReadDTCInformation/ReportDTCByStatusMask.
func (c *Client) ReadDTCByStatusMask(ctx context.Context, statusMask uint8) ([]codec.DtcCode, error) {
	reply, err := c.transact(ctx, SIDReadDTCInformation, codec.EncodeDtcByStatusMaskRequest(statusMask))
	if err != nil {
		return nil, err
	}
	if len(reply) < 1 {
		return nil, ErrInvalidResponseLength
	}
	_, dtcs, err := codec.DecodeDtcByStatusMask(reply[1:])
	return dtcs, err
}

// TesterPresent issues a single 0x3E keep-alive. Idempotent: it never
// mutates session state.
func (c *Client) TesterPresent(ctx context.Context) error {
	_, err := c.transact(ctx, SIDTesterPresent, nil)
	return err
}

// StartTesterPresentLoop launches a goroutine issuing TesterPresent
// every opts.TesterPresentInterval while the session requires it.
// Cancel ctx or call StopTesterPresentLoop to stop it.
func (c *Client) StartTesterPresentLoop(ctx context.Context) {
	c.mu.Lock()
	if c.stopTp != nil {
		c.mu.Unlock()
		return
	}
	c.stopTp = make(chan struct{})
	c.tpDone = make(chan struct{})
	stop := c.stopTp
	done := c.tpDone
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.opts.TesterPresentInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if !c.State().TesterPresentNeeded {
					continue
				}
				c.mu.Lock()
				idle := time.Since(c.lastTxn)
				c.mu.Unlock()
				if idle < c.opts.TesterPresentInterval {
					continue
				}
				if err := c.TesterPresent(ctx); err != nil {
					c.log.Warnf("tester-present failed: %v", err)
				}
			}
		}
	}()
}

// StopTesterPresentLoop stops a loop started by StartTesterPresentLoop
// and waits for its goroutine to exit.
func (c *Client) StopTesterPresentLoop() {
	c.mu.Lock()
	stop := c.stopTp
	done := c.tpDone
	c.stopTp = nil
	c.tpDone = nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
