package codec

import "fmt"

// RoutineId selects a routine via RoutineControl (SID 0x31).
type RoutineId uint16

const (
	EnableImxLte          RoutineId = 0x0200
	DisableImxLte         RoutineId = 0x0201
	EnableImxHmi          RoutineId = 0x0202
	DisableImxHmi         RoutineId = 0x0203
	SimulateInput         RoutineId = 0x0204
	SwitchUsbOtgUsbHost   RoutineId = 0x0205
	TriggerOutput         RoutineId = 0x0206
	OpenDebugScreen       RoutineId = 0x0207
	CloseDebugScreen      RoutineId = 0x0208
	ToggleOffBmsVoltage   RoutineId = 0x0209
	ToggleOnBmsVoltage    RoutineId = 0x020A
	BikeForceUnlock       RoutineId = 0x020B
	BikeForceLock         RoutineId = 0x020C
	WifiScan              RoutineId = 0x020D
	WifiCheckIp           RoutineId = 0x020E
	WifiRestartApp        RoutineId = 0x020F
	GpsCheckLog           RoutineId = 0x0210
	LteCheckIp            RoutineId = 0x0211
	LteCheckPing          RoutineId = 0x0212
	LteCheckEnableSignal  RoutineId = 0x0213
	LteGetModemInfo       RoutineId = 0x0214
	BleRestartApp         RoutineId = 0x0215
	BleCheckPair          RoutineId = 0x0216
	ImxCheckServiceStatus RoutineId = 0x0217
	LteGetSignalStrength  RoutineId = 0x0218
)

// RoutineSubfunction is the subfunction byte preceding the RID in a
// RoutineControl request.
type RoutineSubfunction uint8

const (
	StartRoutine          RoutineSubfunction = 0x01
	StopRoutine           RoutineSubfunction = 0x02
	RequestRoutineResults RoutineSubfunction = 0x03
)

// Bytes returns the big-endian wire encoding of id.
func (id RoutineId) Bytes() []byte {
	return []byte{byte(id >> 8), byte(id)}
}

func (id RoutineId) String() string {
	if name, ok := routineIdNames[id]; ok {
		return name
	}
	return fmt.Sprintf("RoutineId(0x%04X)", uint16(id))
}

var routineIdNames = map[RoutineId]string{
	EnableImxLte:          "EnableImxLte",
	DisableImxLte:         "DisableImxLte",
	EnableImxHmi:          "EnableImxHmi",
	DisableImxHmi:         "DisableImxHmi",
	SimulateInput:         "SimulateInput",
	SwitchUsbOtgUsbHost:   "SwitchUsbOtgUsbHost",
	TriggerOutput:         "TriggerOutput",
	OpenDebugScreen:       "OpenDebugScreen",
	CloseDebugScreen:      "CloseDebugScreen",
	ToggleOffBmsVoltage:   "ToggleOffBMSVoltage",
	ToggleOnBmsVoltage:    "ToggleOnBMSVoltage",
	BikeForceUnlock:       "BikeForceUnlock",
	BikeForceLock:         "BikeForceLock",
	WifiScan:              "WifiScan",
	WifiCheckIp:           "WifiCheckIp",
	WifiRestartApp:        "WifiRestartApp",
	GpsCheckLog:           "GpsCheckLog",
	LteCheckIp:            "LteCheckIp",
	LteCheckPing:          "LteCheckPing",
	LteCheckEnableSignal:  "LteCheckEnableSignal",
	LteGetModemInfo:       "LteGetModemInfo",
	BleRestartApp:         "BleRestartApp",
	BleCheckPair:          "BleCheckPair",
	ImxCheckServiceStatus: "ImxCheckServiceStatus",
	LteGetSignalStrength:  "LteGetSignalStrength",
}

// Domain names a gateway subsystem addressed over the TCP correlator.
type Domain uint8

const (
	InvalidDomain Domain = 0x00
	Wifi          Domain = 0x01
	Gps           Domain = 0x02
	Lte           Domain = 0x03
	Ble           Domain = 0x04
	Imx           Domain = 0x05
)

func (d Domain) String() string {
	switch d {
	case Wifi:
		return "Wifi"
	case Gps:
		return "Gps"
	case Lte:
		return "Lte"
	case Ble:
		return "Ble"
	case Imx:
		return "Imx"
	default:
		return "InvalidDomain"
	}
}

// DomainFromString parses the JSON wire value of a domain, defaulting
// to InvalidDomain on anything unrecognised rather than failing: the
// gateway protocol treats an unknown domain as informational, not
// fatal.
func DomainFromString(s string) Domain {
	switch s {
	case "Wifi":
		return Wifi
	case "Gps":
		return Gps
	case "Lte":
		return Lte
	case "Ble":
		return Ble
	case "Imx":
		return Imx
	default:
		return InvalidDomain
	}
}

// connectivityRoute maps a RoutineId to the correlator domain/command
// pair that serves it instead of a direct UDS round trip.
//
// LteCheckEnableSignal (0x0213) is deliberately excluded even though
// it carries a domain/command pair in the gateway protocol: it is the
// RID used to exercise the direct-UDS negative-response path, so it
// stays on the UDS round trip rather than the correlator.
var connectivityRoute = map[RoutineId]struct {
	Domain  Domain
	Command uint8
}{
	WifiScan:              {Wifi, 0x01},
	WifiCheckIp:           {Wifi, 0x02},
	WifiRestartApp:        {Wifi, 0x03},
	GpsCheckLog:           {Gps, 0x01},
	LteCheckIp:            {Lte, 0x01},
	LteCheckPing:          {Lte, 0x02},
	LteGetModemInfo:       {Lte, 0x04},
	LteGetSignalStrength:  {Lte, 0x05},
	BleRestartApp:         {Ble, 0x01},
	BleCheckPair:          {Ble, 0x02},
	ImxCheckServiceStatus: {Imx, 0x01},
}

// IsConnectivityRoutine reports whether id is served asynchronously
// over the gateway's TCP correlator channel, returning the domain and
// command byte to send if so.
func IsConnectivityRoutine(id RoutineId) (domain Domain, command uint8, ok bool) {
	route, ok := connectivityRoute[id]
	if !ok {
		return InvalidDomain, 0, false
	}
	return route.Domain, route.Command, true
}

// signalStrengthMap is appended to the raw gateway text for
// Lte/GetSignalStrength, giving the RSRP figure a qualitative legend.
const signalStrengthMap = "\n Signal Strength Map:\n rsrp >= -80.0 => Excellent\n" +
	" rsrp >= -90.0 => Good\n rsrp >= -100.0 => Fair to poor\n" +
	" rsrp >= -120.0 => very poor signal"

// FormatGatewayResponse applies the same per-domain/command annotation
// the gateway agent's own response types apply before display: most
// responses pass through untouched, but LteGetSignalStrength (command
// 0x05 in the Lte domain) gets a qualitative signal legend appended.
func FormatGatewayResponse(domain Domain, command uint8, response string) string {
	if domain == Lte && command == 0x05 {
		return response + signalStrengthMap
	}
	return response
}
