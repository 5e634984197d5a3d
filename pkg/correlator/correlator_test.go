package correlator

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdiag/canuds/pkg/codec"
)

// fakeGatewayServer accepts one connection and hands the test both the
// raw request lines it receives and a way to push response lines back.
func fakeGatewayServer(t *testing.T) (addr string, requests chan ServiceRequest, respond func(ServiceResponse), closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	requests = make(chan ServiceRequest, 8)
	connc := make(chan net.Conn, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		connc <- conn
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var req ServiceRequest
			if err := json.Unmarshal(scanner.Bytes(), &req); err == nil {
				requests <- req
			}
		}
	}()

	respond = func(resp ServiceResponse) {
		conn := <-connc
		connc <- conn
		line, _ := json.Marshal(resp)
		line = append(line, '\n')
		_, _ = conn.Write(line)
	}

	return ln.Addr().String(), requests, respond, func() { ln.Close() }
}

func TestDialAndSendRoundTrip(t *testing.T) {
	addr, requests, _, closeFn := fakeGatewayServer(t)
	defer closeFn()

	c := NewTcpCorrelator()
	require.NoError(t, c.Dial(addr))
	defer c.Close()
	assert.True(t, c.Connected())

	require.NoError(t, c.Send(codec.Lte, 5))

	select {
	case req := <-requests:
		assert.Equal(t, "Lte", req.Domain)
		assert.Equal(t, uint8(5), req.Command)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded request")
	}
}

func TestTryRecvPopsQueuedResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverConnc := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverConnc <- conn
	}()

	c := NewTcpCorrelator()
	require.NoError(t, c.Dial(ln.Addr().String()))
	defer c.Close()

	serverConn := <-serverConnc
	resp := ServiceResponse{Domain: "Lte", Command: 5, Response: "signal -67 dBm"}
	line, _ := json.Marshal(resp)
	line = append(line, '\n')
	_, err = serverConn.Write(line)
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	var text string
	var ok bool
	for time.Now().Before(deadline) {
		text, ok = c.TryRecv()
		if ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, ok)
	assert.Equal(t, "signal -67 dBm\n Signal Strength Map:\n rsrp >= -80.0 => Excellent\n"+
		" rsrp >= -90.0 => Good\n rsrp >= -100.0 => Fair to poor\n"+
		" rsrp >= -120.0 => very poor signal", text)
}

func TestTryRecvEmptyReturnsFalse(t *testing.T) {
	c := NewTcpCorrelator()
	_, ok := c.TryRecv()
	assert.False(t, ok)
}

func TestSendWithoutConnectionFails(t *testing.T) {
	c := NewTcpCorrelator()
	err := c.Send(codec.Wifi, 1)
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestCloseStopsConnection(t *testing.T) {
	addr, _, _, closeFn := fakeGatewayServer(t)
	defer closeFn()

	c := NewTcpCorrelator()
	require.NoError(t, c.Dial(addr))
	require.NoError(t, c.Close())
	assert.False(t, c.Connected())

	err := c.Send(codec.Wifi, 1)
	assert.ErrorIs(t, err, ErrDisconnected)
}
