// Package codec encodes and decodes UDS service-specific payloads: data
// identifiers for ReadDataByIdentifier, routine identifiers for
// RoutineControl, and diagnostic trouble code records for
// ReadDTCInformation. Every function here is stateless; byte order is
// big-endian for identifiers and little-endian for DID payload scalars,
// fixed by the ECU firmware these clients talk to.
package codec

import "fmt"

// DataId selects a record via ReadDataByIdentifier (SID 0x22).
type DataId uint16

const (
	BikeState           DataId = 0x0100
	SwitchGear          DataId = 0x0101
	ComponentError      DataId = 0x0102
	ImuRaw              DataId = 0x0103
	KeyfobState         DataId = 0x0104
	PerformanceVehicle1 DataId = 0x0105
	FirmwareVersion     DataId = 0x0106
	AdcVoltage          DataId = 0x0107
	Bms1                DataId = 0x0108
	Dashboard           DataId = 0x0109
	PerformanceCharge   DataId = 0x010A
	Bms2                DataId = 0x010B
	Bms3                DataId = 0x010C
	PerformanceVehicle2 DataId = 0x010D
	TempSensors         DataId = 0x010E
	Obc                 DataId = 0x010F
	DiagState           DataId = 0x0110
)

// Bytes returns the big-endian wire encoding of id.
func (id DataId) Bytes() []byte {
	return []byte{byte(id >> 8), byte(id)}
}

// String names the DataId for logging, falling back to its numeric form.
func (id DataId) String() string {
	if name, ok := dataIdNames[id]; ok {
		return name
	}
	return fmt.Sprintf("DataId(0x%04X)", uint16(id))
}

var dataIdNames = map[DataId]string{
	BikeState:           "BikeState",
	SwitchGear:          "SwitchGear",
	ComponentError:      "ComponentError",
	ImuRaw:              "ImuRaw",
	KeyfobState:         "KeyfobState",
	PerformanceVehicle1: "PerformanceVehicle1",
	FirmwareVersion:     "FirmwareVersion",
	AdcVoltage:          "AdcVoltage",
	Bms1:                "Bms1",
	Dashboard:           "Dashboard",
	PerformanceCharge:   "PerformanceCharge",
	Bms2:                "Bms2",
	Bms3:                "Bms3",
	PerformanceVehicle2: "PerformanceVehicle2",
	TempSensors:         "TempSensors",
	Obc:                 "Obc",
	DiagState:           "DiagState",
}

// ExpectedLength is the fixed payload length this ECU returns for id, or
// 0 if id carries no fixed-length codec.
func (id DataId) ExpectedLength() int {
	switch id {
	case BikeState:
		return 2
	case SwitchGear:
		return 19
	case ComponentError:
		return 18
	case ImuRaw:
		return 24
	case KeyfobState:
		return 3
	case PerformanceVehicle1:
		return 17
	case FirmwareVersion:
		return 6
	case AdcVoltage:
		return 20
	case Bms1:
		return 18
	case Dashboard:
		return 201
	case PerformanceCharge:
		return 12
	case Bms2:
		return 8
	case Bms3:
		return 6
	case PerformanceVehicle2:
		return 15
	case TempSensors:
		return 16
	case Obc:
		return 15
	case DiagState:
		return 2
	default:
		return 0
	}
}
