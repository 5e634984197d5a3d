// Package uds implements the ISO 14229-1 application layer: service
// dispatch, positive/negative reply classification, diagnostic session
// and security-level state, and the tester-present keep-alive loop,
// driving an isotp.Engine.
package uds

import "time"

// SID is a UDS service identifier, the first byte of a request.
type SID uint8

const (
	SIDDiagnosticSessionControl SID = 0x10
	SIDECUReset                 SID = 0x11
	SIDReadDataByIdentifier     SID = 0x22
	SIDSecurityAccess           SID = 0x27
	SIDCommunicationControl     SID = 0x28
	SIDRoutineControl           SID = 0x31
	SIDTesterPresent            SID = 0x3E
	SIDReadDTCInformation       SID = 0x19
	SIDControlDTCSetting        SID = 0x85
	SIDLinkControl              SID = 0x87

	negativeResponseSID = 0x7F
)

// PositiveOffset is added to an SID to form the positive-response SID.
const PositiveOffset = 0x40

// SessionType selects the diagnostic session via DiagnosticSessionControl.
type SessionType uint8

const (
	SessionDefault      SessionType = 0x01
	SessionProgramming  SessionType = 0x02
	SessionExtended     SessionType = 0x03
	SessionSafetySystem SessionType = 0x04
	SessionStreamMode   SessionType = 0x08
	SessionInvalid      SessionType = 0xFF
)

// ResetType selects the reset kind via ECUReset.
type ResetType uint8

const (
	ResetHard                     ResetType = 0x01
	ResetKeyOff                   ResetType = 0x02
	ResetSoft                     ResetType = 0x03
	ResetEnableRapidPowerShutDown  ResetType = 0x04
	ResetDisableRapidPowerShutDown ResetType = 0x05
	ResetRealtime                 ResetType = 0x40
	ResetTelematic                ResetType = 0x41
	ResetImx                      ResetType = 0x42
	ResetEsp32Wifi                ResetType = 0x43
	ResetEsp32Ble                 ResetType = 0x44
	ResetQuectel                  ResetType = 0x45
	ResetLizard                   ResetType = 0x46
	ResetCendric                  ResetType = 0x47
)

// SecurityLevel selects both the target level and direction (seed
// request vs. key send) of a SecurityAccess subfunction.
type SecurityLevel uint8

const (
	SecurityNone          SecurityLevel = 0x01
	SecurityL1RequestSeed SecurityLevel = 0x03
	SecurityL1SendKey     SecurityLevel = 0x04
	SecurityL2RequestSeed SecurityLevel = 0x05
	SecurityL2SendKey     SecurityLevel = 0x06
)

// AuthLevel is the client's currently-held authentication state,
// distinct from SecurityLevel (which also names the seed/key
// subfunction pair used to reach a level).
type AuthLevel uint8

const (
	AuthNone AuthLevel = iota
	AuthL1SeedRequested
	AuthL1Authenticated
	AuthL2SeedRequested
	AuthL2Authenticated
)

// SessionState is the process-wide diagnostic session/security
// singleton a Client owns. Mode and security level change only as the
// direct consequence of a positive reply to the corresponding service.
type SessionState struct {
	Mode              SessionType
	Security          AuthLevel
	TesterPresentNeeded bool
	LastActivity      time.Time
}

// KeyDeriver computes a SecurityAccess response key from an ECU seed.
// The derivation algorithm is ECU-specific and supplied by the caller;
// this package only drives the two-step request/send protocol.
type KeyDeriver interface {
	DeriveKey(level SecurityLevel, seed []byte) ([]byte, error)
}

// ClientOptions configures a Client's timing and retry behaviour.
type ClientOptions struct {
	// ReplyTimeout bounds one UDS transaction before NRC 0x78 pending
	// extension kicks in.
	ReplyTimeout time.Duration

	// PendingExtension is the deadline extension (N_Cr_ext) applied
	// each time NRC 0x78 is observed.
	PendingExtension time.Duration

	// MaxPendingCount caps consecutive NRC 0x78 replies before the
	// client gives up and surfaces a negative response.
	MaxPendingCount int

	// TesterPresentInterval is how often 0x3E is sent while
	// TesterPresentNeeded is set and no other request supersedes it.
	// Must stay below the ECU's S3 timeout (50000 ms).
	TesterPresentInterval time.Duration

	// CommandCooldown, if non-zero, is the minimum spacing enforced
	// between the end of one transaction and the start of the next.
	// Named after a field the original client tracked but never
	// consulted; here it is actually honoured.
	CommandCooldown time.Duration

	Keys KeyDeriver
}

// DefaultClientOptions matches the external interface defaults: 5 s
// reply timeout, 5 s pending extension, 10 max pending replies, 40 s
// tester-present interval, no cooldown.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		ReplyTimeout:          5 * time.Second,
		PendingExtension:      5 * time.Second,
		MaxPendingCount:       10,
		TesterPresentInterval: 40 * time.Second,
	}
}
