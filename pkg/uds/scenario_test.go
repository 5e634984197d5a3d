package uds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdiag/canuds/pkg/can"
	"github.com/fleetdiag/canuds/pkg/can/virtual"
	"github.com/fleetdiag/canuds/pkg/isotp"
)

// These tests walk the literal byte sequences of the end-to-end
// scenarios a diagnostic session is expected to produce on the wire,
// as opposed to the mechanism-level tests in client_test.go.

// linkedClientRaw mirrors linkedClient but keeps the ECU-side
// can.Channel reachable, so a test can assert on the exact bytes and
// arbitration ID the client puts on the bus instead of going through
// the peer Engine's reassembly.
func linkedClientRaw(t *testing.T, opts ClientOptions) (c *Client, ecuChan *can.Channel, closeFn func()) {
	t.Helper()
	a, b := virtual.NewPair()
	chanA := can.NewChannel(a)
	ecuChan = can.NewChannel(b)
	require.NoError(t, chanA.Open())
	require.NoError(t, ecuChan.Open())

	testerSettings := isotp.DefaultSettings()
	engine := isotp.New(chanA, testerSettings)

	c = NewClient(engine, opts)
	return c, ecuChan, func() {
		chanA.Close()
		ecuChan.Close()
	}
}

func TestScenarioDefaultSessionEntryExactWireBytes(t *testing.T) {
	client, ecuChan, closeFn := linkedClientRaw(t, DefaultClientOptions())
	defer closeFn()

	resc := make(chan error, 1)
	go func() { resc <- client.SetSessionMode(context.Background(), SessionDefault) }()

	frame, err := ecuChan.ReadOne(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x10, 0x01, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC}, frame.Bytes())
	assert.Equal(t, uint32(0x784), frame.ID)

	reply := can.NewFrame(0x7F0, false, []byte{0x02, 0x50, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, ecuChan.Write(reply, time.Second))

	require.NoError(t, <-resc)
	assert.Equal(t, SessionDefault, client.State().Mode)
}

func TestScenarioPendingResponseAbsorbedSurfacesFinalPayload(t *testing.T) {
	client, ecu, closeFn := linkedClient(t, DefaultClientOptions())
	defer closeFn()

	resc := make(chan struct {
		text string
		err  error
	}, 1)
	go func() {
		text, err := client.ReadData(context.Background(), 0x0106)
		resc <- struct {
			text string
			err  error
		}{text, err}
	}()

	// The request is sent once; each 0x78 only extends the client's wait.
	_, err := ecu.Recv(context.Background(), time.Second)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		require.NoError(t, ecu.Send(context.Background(), []byte{0x7F, 0x22, 0x78}, time.Second))
	}

	require.NoError(t, ecu.Send(context.Background(), []byte{0x62, 0x01, 0x06, 1, 2, 3, 4, 5, 6}, time.Second))

	got := <-resc
	require.NoError(t, got.err)
	assert.NotEmpty(t, got.text)
}
