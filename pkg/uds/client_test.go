package uds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdiag/canuds/pkg/can"
	"github.com/fleetdiag/canuds/pkg/can/virtual"
	"github.com/fleetdiag/canuds/pkg/codec"
	"github.com/fleetdiag/canuds/pkg/isotp"
)

// linkedClient wires a Client to a synthetic ECU peer over a virtual
// CAN bus pair. The peer's behaviour is driven by the test via ecu.
func linkedClient(t *testing.T, opts ClientOptions) (c *Client, ecu *isotp.Engine, closeFn func()) {
	t.Helper()
	a, b := virtual.NewPair()
	chanA := can.NewChannel(a)
	chanB := can.NewChannel(b)
	require.NoError(t, chanA.Open())
	require.NoError(t, chanB.Open())

	testerSettings := isotp.DefaultSettings()
	ecuSettings := isotp.DefaultSettings()
	ecuSettings.TxID, ecuSettings.RxID = testerSettings.RxID, testerSettings.TxID

	engine := isotp.New(chanA, testerSettings)
	ecu = isotp.New(chanB, ecuSettings)

	c = NewClient(engine, opts)
	return c, ecu, func() {
		chanA.Close()
		chanB.Close()
	}
}

// serveOnce receives one request on ecu and replies with reply.
func serveOnce(t *testing.T, ecu *isotp.Engine, reply []byte) {
	t.Helper()
	_, err := ecu.Recv(context.Background(), time.Second)
	require.NoError(t, err)
	require.NoError(t, ecu.Send(context.Background(), reply, time.Second))
}

func TestSetSessionModePositiveReply(t *testing.T) {
	opts := DefaultClientOptions()
	opts.ReplyTimeout = time.Second
	c, ecu, closeFn := linkedClient(t, opts)
	defer closeFn()

	done := make(chan error, 1)
	go func() { done <- c.SetSessionMode(context.Background(), SessionExtended) }()
	serveOnce(t, ecu, []byte{byte(SIDDiagnosticSessionControl) + PositiveOffset, byte(SessionExtended)})

	require.NoError(t, <-done)
	assert.Equal(t, SessionExtended, c.State().Mode)
}

func TestSetSessionModeNegativeReplyLeavesStateUntouched(t *testing.T) {
	opts := DefaultClientOptions()
	opts.ReplyTimeout = time.Second
	c, ecu, closeFn := linkedClient(t, opts)
	defer closeFn()

	done := make(chan error, 1)
	go func() { done <- c.SetSessionMode(context.Background(), SessionExtended) }()
	serveOnce(t, ecu, []byte{negativeResponseSID, byte(SIDDiagnosticSessionControl), byte(NRCSubFunctionNotSupported)})

	err := <-done
	require.Error(t, err)
	var nr *NegativeResponse
	assert.ErrorAs(t, err, &nr)
	assert.Equal(t, SessionDefault, c.State().Mode)
}

func TestPendingReplyAbsorbedThenSucceeds(t *testing.T) {
	opts := DefaultClientOptions()
	opts.ReplyTimeout = time.Second
	opts.PendingExtension = time.Second
	c, ecu, closeFn := linkedClient(t, opts)
	defer closeFn()

	done := make(chan error, 1)
	go func() { done <- c.Reset(context.Background(), ResetSoft) }()

	_, err := ecu.Recv(context.Background(), time.Second)
	require.NoError(t, err)
	pending := []byte{negativeResponseSID, byte(SIDECUReset), byte(NRCRequestCorrectlyReceivedResponsePending)}
	require.NoError(t, ecu.Send(context.Background(), pending, time.Second))
	require.NoError(t, ecu.Send(context.Background(), pending, time.Second))
	require.NoError(t, ecu.Send(context.Background(), []byte{byte(SIDECUReset) + PositiveOffset, byte(ResetSoft)}, time.Second))

	require.NoError(t, <-done)
}

func TestPendingReplyExceedsCapSurfacesError(t *testing.T) {
	opts := DefaultClientOptions()
	opts.ReplyTimeout = time.Second
	opts.PendingExtension = 50 * time.Millisecond
	opts.MaxPendingCount = 1
	c, ecu, closeFn := linkedClient(t, opts)
	defer closeFn()

	done := make(chan error, 1)
	go func() { done <- c.Reset(context.Background(), ResetSoft) }()

	_, err := ecu.Recv(context.Background(), time.Second)
	require.NoError(t, err)
	pending := []byte{negativeResponseSID, byte(SIDECUReset), byte(NRCRequestCorrectlyReceivedResponsePending)}
	require.NoError(t, ecu.Send(context.Background(), pending, time.Second))
	require.NoError(t, ecu.Send(context.Background(), pending, time.Second))

	err = <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, &NegativeResponse{NRC: NRCRequestCorrectlyReceivedResponsePending})
}

func TestBusyRepeatRequestRetriedOnce(t *testing.T) {
	opts := DefaultClientOptions()
	opts.ReplyTimeout = time.Second
	c, ecu, closeFn := linkedClient(t, opts)
	defer closeFn()

	done := make(chan error, 1)
	go func() { done <- c.TesterPresent(context.Background()) }()

	serveOnce(t, ecu, []byte{negativeResponseSID, byte(SIDTesterPresent), byte(NRCBusyRepeatRequest)})
	serveOnce(t, ecu, []byte{byte(SIDTesterPresent) + PositiveOffset, 0x00})

	require.NoError(t, <-done)
}

func TestReadDataDecodesViaCodec(t *testing.T) {
	opts := DefaultClientOptions()
	opts.ReplyTimeout = time.Second
	c, ecu, closeFn := linkedClient(t, opts)
	defer closeFn()

	type result struct {
		text string
		err  error
	}
	resc := make(chan result, 1)
	go func() {
		text, err := c.ReadData(context.Background(), codec.KeyfobState)
		resc <- result{text, err}
	}()

	_, err := ecu.Recv(context.Background(), time.Second)
	require.NoError(t, err)
	reply := append([]byte{byte(SIDReadDataByIdentifier) + PositiveOffset}, codec.KeyfobState.Bytes()...)
	reply = append(reply, 0x01, 0x00, 0x00)
	require.NoError(t, ecu.Send(context.Background(), reply, time.Second))

	res := <-resc
	require.NoError(t, res.err)
	assert.Contains(t, res.text, "RKE")
}

type mockKeyDeriver struct {
	key []byte
	err error
}

func (m mockKeyDeriver) DeriveKey(level SecurityLevel, seed []byte) ([]byte, error) {
	return m.key, m.err
}

func TestSecurityAccessHandshake(t *testing.T) {
	opts := DefaultClientOptions()
	opts.ReplyTimeout = time.Second
	opts.Keys = mockKeyDeriver{key: []byte{0xAA, 0xBB, 0xCC, 0xDD}}
	c, ecu, closeFn := linkedClient(t, opts)
	defer closeFn()

	type seedResult struct {
		seed []byte
		err  error
	}
	resc := make(chan seedResult, 1)
	go func() {
		seed, err := c.RequestSeed(context.Background(), SecurityL1RequestSeed)
		resc <- seedResult{seed, err}
	}()
	serveOnce(t, ecu, append([]byte{byte(SIDSecurityAccess) + PositiveOffset, byte(SecurityL1RequestSeed)}, 1, 2, 3, 4, 5))
	sr := <-resc
	require.NoError(t, sr.err)
	require.Len(t, sr.seed, 5)

	done := make(chan error, 1)
	go func() { done <- c.SendKey(context.Background(), SecurityL1RequestSeed, sr.seed) }()
	serveOnce(t, ecu, []byte{byte(SIDSecurityAccess) + PositiveOffset, byte(SecurityL1SendKey)})

	require.NoError(t, <-done)
	assert.Equal(t, AuthL1Authenticated, c.State().Security)
	assert.True(t, c.State().TesterPresentNeeded)
}

func TestSendKeyRejectsWrongSeedLength(t *testing.T) {
	opts := DefaultClientOptions()
	opts.Keys = mockKeyDeriver{key: []byte{1, 2, 3, 4}}
	c, _, closeFn := linkedClient(t, opts)
	defer closeFn()

	err := c.SendKey(context.Background(), SecurityL1RequestSeed, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrParameterInvalid)
}

type mockGateway struct {
	sent    []uint8
	results []string
}

func (g *mockGateway) Send(domain codec.Domain, command uint8) error {
	g.sent = append(g.sent, command)
	return nil
}

func (g *mockGateway) TryRecv() (string, bool) {
	if len(g.results) == 0 {
		return "", false
	}
	r := g.results[0]
	g.results = g.results[1:]
	return r, true
}

func TestStartRoutineRoutesConnectivityToGateway(t *testing.T) {
	opts := DefaultClientOptions()
	c, _, closeFn := linkedClient(t, opts)
	defer closeFn()

	gw := &mockGateway{}
	c.SetGateway(gw)

	text, err := c.StartRoutine(context.Background(), codec.LteGetSignalStrength, nil)
	require.NoError(t, err)
	assert.Equal(t, "Started", text)
	require.Len(t, gw.sent, 1)
	assert.Equal(t, uint8(5), gw.sent[0])
}

func TestRoutineResultPopsGatewayQueue(t *testing.T) {
	opts := DefaultClientOptions()
	c, _, closeFn := linkedClient(t, opts)
	defer closeFn()

	gw := &mockGateway{results: []string{"signal -67 dBm"}}
	c.SetGateway(gw)

	text, err := c.RoutineResult(context.Background(), codec.LteGetSignalStrength, nil)
	require.NoError(t, err)
	assert.Equal(t, "signal -67 dBm", text)
}

func TestStartRoutineWithoutGatewayFails(t *testing.T) {
	opts := DefaultClientOptions()
	c, _, closeFn := linkedClient(t, opts)
	defer closeFn()

	_, err := c.StartRoutine(context.Background(), codec.LteGetSignalStrength, nil)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestReadDTCByStatusMask(t *testing.T) {
	opts := DefaultClientOptions()
	opts.ReplyTimeout = time.Second
	c, ecu, closeFn := linkedClient(t, opts)
	defer closeFn()

	type result struct {
		dtcs []codec.DtcCode
		err  error
	}
	resc := make(chan result, 1)
	go func() {
		dtcs, err := c.ReadDTCByStatusMask(context.Background(), 0xFF)
		resc <- result{dtcs, err}
	}()

	_, err := ecu.Recv(context.Background(), time.Second)
	require.NoError(t, err)
	reply := []byte{byte(SIDReadDTCInformation) + PositiveOffset, byte(codec.ReportDtcByStatusMask), 0xFF, 0x01, 0xA3, 0x4F, 0x08}
	require.NoError(t, ecu.Send(context.Background(), reply, time.Second))

	res := <-resc
	require.NoError(t, res.err)
	require.Len(t, res.dtcs, 1)
	assert.Equal(t, codec.DtcCode{Code: 0x01A34F, Status: 0x08}, res.dtcs[0])
}

func TestTesterPresentLoopHonoursNeededFlag(t *testing.T) {
	opts := DefaultClientOptions()
	opts.TesterPresentInterval = 20 * time.Millisecond
	opts.ReplyTimeout = time.Second
	c, ecu, closeFn := linkedClient(t, opts)
	defer closeFn()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartTesterPresentLoop(ctx)
	defer c.StopTesterPresentLoop()

	select {
	case <-time.After(60 * time.Millisecond):
	}
	_, err := ecu.Recv(context.Background(), 20*time.Millisecond)
	assert.Error(t, err)

	c.mu.Lock()
	c.state.TesterPresentNeeded = true
	c.mu.Unlock()

	req, err := ecu.Recv(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, SIDTesterPresent, SID(req[0]))
	require.NoError(t, ecu.Send(context.Background(), []byte{byte(SIDTesterPresent) + PositiveOffset, 0x00}, time.Second))
}
