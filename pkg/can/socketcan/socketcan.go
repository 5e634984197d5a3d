// Package socketcan wraps github.com/brutella/can as the production
// CAN adapter driver, exactly as the teacher's own pkg/can/socketcan
// wrapper does, adapted to this system's Frame/Bus shapes.
package socketcan

import (
	"fmt"
	"log/slog"

	sockcan "github.com/brutella/can"

	"github.com/fleetdiag/canuds/pkg/can"
)

// effFlag mirrors Linux SocketCAN's CAN_EFF_FLAG: bit 31 of the 32-bit
// arbitration ID marks an extended (29-bit) frame.
const effFlag uint32 = 0x80000000

func init() {
	can.RegisterInterface("socketcan", NewBus)
}

// Bus is a github.com/brutella/can backed CAN adapter.
type Bus struct {
	channel  string
	bus      *sockcan.Bus
	listener can.FrameListener
}

// NewBus opens a socketcan interface by name, e.g. "can0".
func NewBus(channel string) (can.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(channel)
	if err != nil {
		return nil, fmt.Errorf("socketcan: %s: %w", channel, err)
	}
	return &Bus{channel: channel, bus: bus}, nil
}

// Connect starts the brutella/can reception loop in the background.
func (b *Bus) Connect(...any) error {
	go func() {
		if err := b.bus.ConnectAndPublish(); err != nil {
			slog.Error("socketcan connection ended", "interface", b.channel, "error", err)
		}
	}()
	return nil
}

// Disconnect tears down the socketcan socket.
func (b *Bus) Disconnect() error {
	if err := b.bus.Disconnect(); err != nil {
		slog.Warn("socketcan disconnect failed", "interface", b.channel, "error", err)
		return err
	}
	return nil
}

// SetBitrate is a no-op for socketcan: bitrate is set on the Linux
// interface (e.g. via "ip link set can0 type can bitrate 500000")
// before this process starts, not by the driver binding.
func (b *Bus) SetBitrate(bps int) error {
	return nil
}

// Send publishes a single frame, translating the extended-ID flag into
// SocketCAN's bit-31 convention.
func (b *Bus) Send(frame can.Frame) error {
	id := frame.ID
	if frame.Extended {
		id |= effFlag
	}
	return b.bus.Publish(sockcan.Frame{
		ID:     id,
		Length: frame.DLC,
		Data:   frame.Data,
	})
}

// Subscribe registers the listener that receives every inbound frame.
func (b *Bus) Subscribe(listener can.FrameListener) error {
	b.listener = listener
	b.bus.Subscribe(b)
	return nil
}

// Handle implements brutella/can's reception callback.
func (b *Bus) Handle(frame sockcan.Frame) {
	if b.listener == nil {
		return
	}
	extended := frame.ID&effFlag != 0
	b.listener.Handle(can.Frame{
		ID:       frame.ID &^ effFlag,
		Extended: extended,
		DLC:      frame.Length,
		Data:     frame.Data,
	})
}
