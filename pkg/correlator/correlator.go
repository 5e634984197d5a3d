// Package correlator relays connectivity-domain routine requests to a
// companion agent on the gateway processor over a TCP JSON channel and
// correlates its asynchronous responses back for uds.Client to poll.
package correlator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fleetdiag/canuds/pkg/codec"
)

// DefaultAddress is the gateway agent's well-known endpoint.
const DefaultAddress = "192.168.7.1:50130"

// ErrDisconnected is returned by Send once the connection has been
// lost; the caller must reconnect via Dial.
var ErrDisconnected = errors.New("correlator: not connected")

// outboundQueueCapacity bounds the writer goroutine's backlog of
// not-yet-written ServiceRequests. It exists only to keep Send
// non-blocking under an unresponsive peer; the inbound response FIFO
// (responseQueue) carries no such cap.
const outboundQueueCapacity = 256

// ServiceRequest is a connectivity-domain routine request forwarded to
// the gateway agent.
type ServiceRequest struct {
	Domain  string `json:"domain"`
	Command uint8  `json:"command"`
}

// ServiceResponse is the gateway agent's asynchronous reply to a prior
// ServiceRequest.
type ServiceResponse struct {
	Domain   string `json:"domain"`
	Command  uint8  `json:"command"`
	Response string `json:"response"`
}

// TcpCorrelator maintains one TCP connection to the gateway agent,
// writing ServiceRequests and reading ServiceResponses on independent
// goroutines, mirroring the reader/writer split of a bidirectional CAN
// bus driver's send path and receive-dispatch loop.
type TcpCorrelator struct {
	mu        sync.Mutex
	conn      net.Conn
	connected bool
	outbound  chan ServiceRequest
	responses *responseQueue
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	log       *log.Entry
}

// NewTcpCorrelator constructs an unconnected correlator; call Dial to
// establish the connection and start its goroutines.
func NewTcpCorrelator() *TcpCorrelator {
	return &TcpCorrelator{
		responses: newResponseQueue(),
		log:       log.WithField("component", "correlator"),
	}
}

// Dial connects to addr and starts the reader/writer goroutines. A
// prior connection, if any, is torn down first.
func (c *TcpCorrelator) Dial(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.stopLocked()
	}

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connected = true
	c.cancel = cancel
	c.outbound = make(chan ServiceRequest, outboundQueueCapacity)

	c.wg.Add(2)
	go c.readLoop(ctx, conn)
	go c.writeLoop(ctx, conn, c.outbound)

	c.log.Infof("connected to gateway agent at %s", addr)
	return nil
}

// Close tears down the connection and stops the reader/writer
// goroutines.
func (c *TcpCorrelator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *TcpCorrelator) stopLocked() error {
	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.connected = false
	c.conn = nil
	c.cancel = nil
	c.outbound = nil
	c.mu.Unlock()
	c.wg.Wait()
	c.mu.Lock()
	return err
}

// Connected reports whether the TCP connection is currently believed
// healthy.
func (c *TcpCorrelator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send satisfies uds.RoutineGateway: it enqueues one ServiceRequest
// for the writer goroutine, rather than writing to the socket itself.
func (c *TcpCorrelator) Send(domain codec.Domain, command uint8) error {
	c.mu.Lock()
	outbound := c.outbound
	connected := c.connected
	c.mu.Unlock()

	if !connected || outbound == nil {
		return ErrDisconnected
	}

	select {
	case outbound <- ServiceRequest{Domain: domain.String(), Command: command}:
		return nil
	default:
		c.log.Warn("outbound gateway request queue full, rejecting request")
		return ErrDisconnected
	}
}

// TryRecv satisfies uds.RoutineGateway: it non-blocking-pops the
// oldest queued response text, if any.
func (c *TcpCorrelator) TryRecv() (string, bool) {
	return c.responses.pop()
}

func (c *TcpCorrelator) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

// writeLoop drains outbound ServiceRequests and writes each as one
// newline-delimited JSON line, independently of readLoop.
func (c *TcpCorrelator) writeLoop(ctx context.Context, conn net.Conn, outbound chan ServiceRequest) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-outbound:
			line, err := json.Marshal(req)
			if err != nil {
				c.log.Warnf("encoding gateway request: %v", err)
				continue
			}
			line = append(line, '\n')
			if _, err := conn.Write(line); err != nil {
				c.log.Warnf("writing gateway request: %v", err)
				c.markDisconnected()
				return
			}
		}
	}
}

func (c *TcpCorrelator) readLoop(ctx context.Context, conn net.Conn) {
	defer c.wg.Done()
	scanner := bufio.NewScanner(conn)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for scanner.Scan() {
			var resp ServiceResponse
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if err := json.Unmarshal(line, &resp); err != nil {
				c.log.Warnf("malformed gateway response: %v", err)
				continue
			}
			text := codec.FormatGatewayResponse(codec.DomainFromString(resp.Domain), resp.Command, resp.Response)
			c.responses.push(text)
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
		// Stop writeLoop too: both goroutines end on connection loss.
		c.mu.Lock()
		c.connected = false
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Unlock()
		c.log.Warn("gateway connection closed")
	}
}

// responseQueue is an unbounded FIFO of decoded response text, guarded
// by its own mutex since the reader goroutine pushes while uds.Client
// pops from an arbitrary caller goroutine. It never drops a response
// the gateway has sent, per the correlator's single-unbounded-FIFO
// invariant: a slow consumer grows this slice rather than losing
// data. Response payloads are short JSON-decoded strings, not raw CAN
// bytes, so a plain slice is used here rather than the byte-oriented
// internal/fifo the ISO-TP engine uses for frame reassembly.
type responseQueue struct {
	mu  sync.Mutex
	buf []string
}

func newResponseQueue() *responseQueue {
	return &responseQueue{}
}

func (q *responseQueue) push(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(q.buf, text)
}

func (q *responseQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return "", false
	}
	text := q.buf[0]
	q.buf = q.buf[1:]
	return text, true
}
