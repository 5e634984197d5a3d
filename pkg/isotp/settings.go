package isotp

import "time"

// Settings configures one direction of an ISO-TP link: flow-control
// parameters dictated to a peer, CAN identifiers, and framing options.
// Safe to replace only while no transfer is in progress.
type Settings struct {
	// BlockSize is the number of Consecutive Frames the peer may send
	// per flow-control window; 0 means unlimited (all remaining CFs in
	// a single block).
	BlockSize uint8

	// STmin is the wire-encoded separation time this engine asks its
	// peer to respect: 0x00-0x7F is whole milliseconds, 0xF1-0xF9 is
	// 100-900 microsecond steps. Use STMinDuration to decode it.
	STmin uint8

	// PadFrame, when set, pads every outgoing CAN payload to 8 bytes
	// with 0xCC.
	PadFrame bool

	// ExtendedAddress holds an extended-addressing prefix byte. The
	// engine does not read it: frames are always built and parsed with
	// the PCI in the first data byte and no address prefix.
	ExtendedAddress *byte

	// TxID/RxID are the CAN arbitration IDs used to send requests and
	// receive replies respectively.
	TxID       uint32
	RxID       uint32
	ExtendedID bool
}

// DefaultSettings matches the wire defaults named in the external
// interfaces section: 500 kbit/s classical CAN, tx 0x784, rx 0x7F0,
// BS=8, STmin=0x14 (20 ms), padded frames.
func DefaultSettings() Settings {
	return Settings{
		BlockSize: 8,
		STmin:     0x14,
		PadFrame:  true,
		TxID:      0x784,
		RxID:      0x7F0,
	}
}

// STMinDuration decodes a wire STmin byte into a time.Duration per
// ISO 15765-2: 0x00-0x7F are whole milliseconds, 0xF1-0xF9 are
// 100-900 microsecond steps, everything else is reserved and treated
// as zero (no enforced separation).
func STMinDuration(raw uint8) time.Duration {
	switch {
	case raw <= 0x7F:
		return time.Duration(raw) * time.Millisecond
	case raw >= 0xF1 && raw <= 0xF9:
		return time.Duration(raw-0xF0) * 100 * time.Microsecond
	default:
		return 0
	}
}

// Timeouts per ISO 15765-2, as specified: N_As/N_Ar/N_Bs/N_Cr all 1s,
// the 0x78 pending extension is 5s, and the flow-control wait cap is 4
// consecutive Wait frames before giving up.
const (
	NAs             = 1000 * time.Millisecond
	NAr             = 1000 * time.Millisecond
	NBs             = 1000 * time.Millisecond
	NCr             = 1000 * time.Millisecond
	MaxFlowControlWaits = 4
)

// PduMaxLength is the largest payload classical ISO-TP can carry
// (12-bit length field, 4095 octets).
const PduMaxLength = 4095
