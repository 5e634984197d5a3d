// Package virtual provides an in-process CAN bus pair used by tests and
// by the bench harness to exercise the ISO-TP/UDS stack without real
// hardware. It is a direct descendant of the teacher's TCP-backed
// virtual bus, collapsed from an external broker process into a pair of
// linked Go structs: the teacher's virtual bus needed a broker so unrelated
// processes could rendezvous, but our transport and application layers
// only ever need two ends of one bus inside the same test binary.
package virtual

import (
	"sync"

	"github.com/fleetdiag/canuds/pkg/can"
)

func init() {
	can.RegisterInterface("virtual", NewBus)
}

// Bus is one end of an in-process loopback CAN bus. Frames sent on one
// end are delivered, in order, to the listener subscribed on the other.
type Bus struct {
	mu         sync.Mutex
	name       string
	peer       *Bus
	listener   can.FrameListener
	receiveOwn bool
}

// NewBus satisfies can.NewInterfaceFunc; channel only names the bus. A
// bus created this way has no peer, so its frames reach no other end;
// linked ends come only from NewPair.
func NewBus(channel string) (can.Bus, error) {
	return &Bus{name: channel}, nil
}

// NewPair creates two linked Bus ends, simulating a tester and an ECU
// sharing one CAN segment.
func NewPair() (a, b *Bus) {
	a = &Bus{name: "a"}
	b = &Bus{name: "b"}
	a.peer, b.peer = b, a
	return a, b
}

// Connect is a no-op: pairing happens via NewPair, matching the
// teacher's pattern of a cheap Connect that assumes Subscribe/linkage
// already set state up.
func (b *Bus) Connect(...any) error { return nil }

// Disconnect unlinks this end from its peer.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peer = nil
	return nil
}

// SetBitrate is a no-op on the loopback bus.
func (b *Bus) SetBitrate(bps int) error { return nil }

// Send delivers frame to the peer's subscribed listener synchronously,
// and to its own listener too when SetReceiveOwn is set (used by tests
// that want to observe their own transmissions).
func (b *Bus) Send(frame can.Frame) error {
	b.mu.Lock()
	peer := b.peer
	own := b.receiveOwn
	listener := b.listener
	b.mu.Unlock()

	if own && listener != nil {
		listener.Handle(frame)
	}
	if peer != nil {
		peer.mu.Lock()
		peerListener := peer.listener
		peer.mu.Unlock()
		if peerListener != nil {
			peerListener.Handle(frame)
		}
	}
	return nil
}

// Subscribe registers the frame listener for this end.
func (b *Bus) Subscribe(listener can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = listener
	return nil
}

// SetReceiveOwn controls whether this end observes its own transmissions.
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiveOwn = receiveOwn
}
