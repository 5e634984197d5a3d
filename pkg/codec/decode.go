package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidResponseLength is returned when a DataId's positive-response
// payload does not match its fixed expected length.
var ErrInvalidResponseLength = errors.New("codec: invalid response length")

func f32le(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func u16le(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

func u32le(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// DecodeDataId renders a ReadDataByIdentifier positive-response payload
// (the bytes following the echoed DID) as a human-readable, newline
// separated report. ErrInvalidResponseLength is returned if the payload
// length does not match id's fixed length.
func DecodeDataId(id DataId, payload []byte) (string, error) {
	want := id.ExpectedLength()
	if want != 0 && len(payload) != want {
		return "", fmt.Errorf("%w: %s wants %d bytes, got %d", ErrInvalidResponseLength, id, want, len(payload))
	}

	var b strings.Builder
	switch id {
	case BikeState:
		fmt.Fprintf(&b, "Bike State: %d\n", payload[0])
		fmt.Fprintf(&b, "Bike Lock: %d", payload[1])
	case SwitchGear:
		writeSwitchGear(&b, payload)
	case ComponentError:
		writeComponentErrors(&b, payload)
	case ImuRaw:
		writeImu(&b, payload)
	case KeyfobState:
		fmt.Fprintf(&b, "RKE: %d\n", payload[0])
		fmt.Fprintf(&b, "PKE: %d\n", payload[1])
		fmt.Fprintf(&b, "PKE Distance: %d", payload[2])
	case PerformanceVehicle1:
		fmt.Fprintf(&b, "Persist: %d\n", payload[0])
		fmt.Fprintf(&b, "Odometer: %d\n", u32le(payload[1:5]))
		fmt.Fprintf(&b, "TripA: %d\n", u32le(payload[5:9]))
		fmt.Fprintf(&b, "TripB: %d\n", u32le(payload[9:13]))
		fmt.Fprintf(&b, "Last Charge: %d", u32le(payload[13:17]))
	case FirmwareVersion:
		fmt.Fprintf(&b, "148 Major Version: %d\n", u16le(payload[0:2]))
		fmt.Fprintf(&b, "148 Minor Version: %d\n", u16le(payload[2:4]))
		fmt.Fprintf(&b, "118 Major Version: %d\n", payload[4])
		fmt.Fprintf(&b, "118 Minor Version: %d", payload[5])
	case AdcVoltage:
		writeAdcVoltage(&b, payload)
	case Bms1:
		writeBms1(&b, payload)
	case Dashboard:
		writeDashboard(&b, payload)
	case PerformanceCharge:
		writePerformanceCharge(&b, payload)
	case Bms2:
		fmt.Fprintf(&b, "Max discharge current: %d\n", u16le(payload[0:2]))
		fmt.Fprintf(&b, "Max regen current: %d\n", u16le(payload[2:4]))
		fmt.Fprintf(&b, "Highest cell voltage: %d\n", u16le(payload[4:6]))
		fmt.Fprintf(&b, "Lowest cell voltage: %d", u16le(payload[6:8]))
	case Bms3:
		fmt.Fprintf(&b, "Max temp: %d\n", payload[0])
		fmt.Fprintf(&b, "Max temp number: %d\n", payload[1])
		fmt.Fprintf(&b, "Min temp: %d\n", payload[2])
		fmt.Fprintf(&b, "Min temp number: %d\n", payload[3])
		fmt.Fprintf(&b, "Charge discharge cycles: %d", u16le(payload[4:6]))
	case PerformanceVehicle2:
		fmt.Fprintf(&b, "Efficiency: %.2f\n", f32le(payload[0:4]))
		fmt.Fprintf(&b, "Power PCT: %.2f\n", f32le(payload[4:8]))
		fmt.Fprintf(&b, "Speed: %.2f\n", f32le(payload[8:12]))
		fmt.Fprintf(&b, "TripID: %d\n", payload[12])
		fmt.Fprintf(&b, "Trip Action: %d\n", payload[13])
		fmt.Fprintf(&b, "Range: %d", payload[14])
	case TempSensors:
		fmt.Fprintf(&b, "Temp1: %.2f\n", f32le(payload[0:4]))
		fmt.Fprintf(&b, "Temp2: %.2f\n", f32le(payload[4:8]))
		fmt.Fprintf(&b, "Temp3: %.2f\n", f32le(payload[8:12]))
		fmt.Fprintf(&b, "Temp4: %.2f", f32le(payload[12:16]))
	case Obc:
		writeObc(&b, payload)
	case DiagState:
		fmt.Fprintf(&b, "Session State: %d\n", payload[0])
		fmt.Fprintf(&b, "Security State: %d", payload[1])
	default:
		fmt.Fprintf(&b, "Unknown DataId: %s", id)
	}
	return b.String(), nil
}

func writeSwitchGear(b *strings.Builder, p []byte) {
	labels := []string{
		"Right Brake Switch", "Left Brake Switch", "Kill Switch", "Power Switch",
		"Reverse Switch", "", "Side Stand Switch", "", "Ride Mode Switch",
		"Hazard Switch", "Horn Switch", "Right Indicator Switch", "Left Indicator Switch",
		"", "High Beam Switch", "Start Switch", "Seat Switch", "Trip Switch", "Down Switch",
	}
	first := true
	for i, label := range labels {
		if label == "" {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(b, "%s: %d", label, p[i])
	}
}

func writeComponentErrors(b *strings.Builder, p []byte) {
	groups := []string{"System", "BMS", "MC", "OBC", "Output", "Feature"}
	for i, g := range groups {
		if i > 0 {
			b.WriteString(", ")
		}
		off := i * 3
		fmt.Fprintf(b, "%s Component: %d, %s Fault Code: %d, %s Level: %d",
			g, p[off], g, p[off+1], g, p[off+2])
	}
}

func writeImu(b *strings.Builder, p []byte) {
	labels := []string{"ACC X", "ACC Y", "ACC Z", "GYR X", "GYR Y", "GYR Z"}
	for i, label := range labels {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "%s: %.2f", label, f32le(p[i*4:i*4+4]))
	}
}

func writeAdcVoltage(b *strings.Builder, p []byte) {
	labels := []string{"Volt 12V", "Volt 5V", "Volt 3V", "Throttle PCT", "Throttle Filt"}
	for i, label := range labels {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "%s: %.2f", label, f32le(p[i*4:i*4+4]))
	}
}

func writeBms1(b *strings.Builder, p []byte) {
	fmt.Fprintf(b, "BMS Status: %d\n", p[0])
	fmt.Fprintf(b, "Pre-discharge relay: %d\n", p[1])
	fmt.Fprintf(b, "Discharge relay: %d\n", p[2])
	fmt.Fprintf(b, "Charging relay: %d\n", p[3])
	fmt.Fprintf(b, "DC-DC enable: %d\n", p[4])
	fmt.Fprintf(b, "Charger: %d\n", p[5])
	fmt.Fprintf(b, "SOC PCT: %d\n", p[6])
	fmt.Fprintf(b, "SOH PCT: %d\n", p[7])
	fmt.Fprintf(b, "BMS Voltage: %.2f\n", f32le(p[8:12]))
	fmt.Fprintf(b, "BMS Current: %.2f\n", f32le(p[12:16]))
	fmt.Fprintf(b, "Alive counter: %d\n", p[16])
	fmt.Fprintf(b, "DC-DC enable status: %d", p[17])
}

func writePerformanceCharge(b *strings.Builder, p []byte) {
	fmt.Fprintf(b, "Target Charge SOC PCT: %d\n", p[0])
	fmt.Fprintf(b, "Target Charge Hours Rem: %d\n", p[1])
	fmt.Fprintf(b, "Target Charge Min Rem: %d\n", p[2])
	fmt.Fprintf(b, "Target Charge Range: %d\n", u16le(p[3:5]))
	fmt.Fprintf(b, "Charge Complete: %d\n", p[5])
	fmt.Fprintf(b, "SOC Limit: %d\n", p[6])
	fmt.Fprintf(b, "SOC Limit Selection Page: %d\n", p[7])
	fmt.Fprintf(b, "VA Limit: %d\n", u16le(p[8:10]))
	fmt.Fprintf(b, "VA Limit Selection Page: %d\n", p[10])
	fmt.Fprintf(b, "Store Cable Noti: %d", p[11])
}

func writeObc(b *strings.Builder, p []byte) {
	fmt.Fprintf(b, "Activation Status: %d\n", p[0])
	fmt.Fprintf(b, "Output DC Volt: %d\n", u16le(p[1:3]))
	fmt.Fprintf(b, "Output DC Current: %d\n", u16le(p[3:5]))
	fmt.Fprintf(b, "Max Temp: %d\n", p[5])
	fmt.Fprintf(b, "AC Input Volt: %d\n", p[6])
	fmt.Fprintf(b, "AC Input Current: %d\n", p[7])
	fmt.Fprintf(b, "Stop tx: %d\n", p[8])
	fmt.Fprintf(b, "Alive counter: %d\n", p[9])
	fmt.Fprintf(b, "Error 1 hardware: %d\n", p[10])
	fmt.Fprintf(b, "Error 2 temp: %d\n", p[11])
	fmt.Fprintf(b, "Error 3 current: %d\n", p[12])
	fmt.Fprintf(b, "Error 4 volt in: %d\n", p[13])
	fmt.Fprintf(b, "Error 5 comn: %d", p[14])
}

// DashboardRecord is the typed decode of the Dashboard DID (0x0109), a
// 201-byte composite snapshot combining switch, fault, IMU, ADC, BMS,
// OBC and odometer telemetry in one response. Its first 140 bytes are
// the switch, fault, IMU, keyfob, ADC, BMS, firmware and temperature
// groups; the OBC (15), vehicle performance (17 + 15), charge (12) and
// diagnostic-state (2) blocks add the remaining 61 bytes.
type DashboardRecord struct {
	BikeState, BikeLock uint8
	Switches            [19]uint8
	ComponentErrors     [6]ComponentErrorEntry
	AccelX, AccelY, AccelZ float32
	GyroX, GyroY, GyroZ    float32
	RKE, PKE, PKEDistance  uint8
	Volt12V, Volt5V, Volt3V, ThrottlePct, ThrottleFilt float32
	BMSStatus, PreDischargeRelay, DischargeRelay, ChargingRelay uint8
	DCDCEnable, Charger, SOCPct, SOHPct                         uint8
	BMSVoltage, BMSCurrent                                      float32
	AliveCounter, DCDCEnableStatus                              uint8
	MaxDischargeCurrent, MaxRegenCurrent                        uint16
	HighestCellVoltage, LowestCellVoltage                       uint16
	MaxTemp, MaxTempNumber, MinTemp, MinTempNumber              uint8
	ChargeDischargeCycles                                       uint16
	Fw148Major, Fw148Minor                                      uint16
	Fw118Major, Fw118Minor                                      uint8
	TempSensors                                                 [4]float32
	Obc                                                         ObcEntry
	Persist                                                     uint8
	Odometer, TripA, TripB, LastCharge                          uint32
	Efficiency, PowerPct, Speed                                 float32
	TripID, TripAction, Range                                   uint8
	TargetChargeSocPct, TargetChargeHoursRem, TargetChargeMinRem uint8
	TargetChargeRange                                            uint16
	ChargeComplete, SocLimit, SocLimitSelectionPage              uint8
	VaLimit                                                      uint16
	VaLimitSelectionPage, StoreCableNotification                 uint8
	SessionState, SecurityState                                  uint8
}

// ComponentErrorEntry is one (component, fault code, level) triple from
// the dashboard's component-error block.
type ComponentErrorEntry struct {
	Component, FaultCode, Level uint8
}

// ObcEntry is the on-board charger status block embedded in Dashboard.
type ObcEntry struct {
	ActivationStatus                 uint8
	OutputDcVolt, OutputDcCurrent     uint16
	MaxTemp, AcInputVolt, AcInputCurr uint8
	StopTx, AliveCounter              uint8
	Error1, Error2, Error3, Error4, Error5 uint8
}

// DecodeDashboard parses a 201-byte Dashboard payload into a typed
// record, for callers that want structured fields rather than the
// text report DecodeDataId(Dashboard, ...) produces.
func DecodeDashboard(payload []byte) (DashboardRecord, error) {
	if len(payload) != Dashboard.ExpectedLength() {
		return DashboardRecord{}, fmt.Errorf("%w: Dashboard wants %d bytes, got %d",
			ErrInvalidResponseLength, Dashboard.ExpectedLength(), len(payload))
	}
	var d DashboardRecord
	i := 0
	d.BikeState, d.BikeLock = payload[0], payload[1]
	i = 2
	copy(d.Switches[:], payload[i:i+19])
	i += 19
	for g := 0; g < 6; g++ {
		d.ComponentErrors[g] = ComponentErrorEntry{payload[i], payload[i+1], payload[i+2]}
		i += 3
	}
	d.AccelX = f32le(payload[i : i+4])
	i += 4
	d.AccelY = f32le(payload[i : i+4])
	i += 4
	d.AccelZ = f32le(payload[i : i+4])
	i += 4
	d.GyroX = f32le(payload[i : i+4])
	i += 4
	d.GyroY = f32le(payload[i : i+4])
	i += 4
	d.GyroZ = f32le(payload[i : i+4])
	i += 4
	d.RKE, d.PKE, d.PKEDistance = payload[i], payload[i+1], payload[i+2]
	i += 3
	d.Volt12V = f32le(payload[i : i+4])
	i += 4
	d.Volt5V = f32le(payload[i : i+4])
	i += 4
	d.Volt3V = f32le(payload[i : i+4])
	i += 4
	d.ThrottlePct = f32le(payload[i : i+4])
	i += 4
	d.ThrottleFilt = f32le(payload[i : i+4])
	i += 4
	d.BMSStatus, d.PreDischargeRelay, d.DischargeRelay, d.ChargingRelay = payload[i], payload[i+1], payload[i+2], payload[i+3]
	i += 4
	d.DCDCEnable, d.Charger, d.SOCPct, d.SOHPct = payload[i], payload[i+1], payload[i+2], payload[i+3]
	i += 4
	d.BMSVoltage = f32le(payload[i : i+4])
	i += 4
	d.BMSCurrent = f32le(payload[i : i+4])
	i += 4
	d.AliveCounter, d.DCDCEnableStatus = payload[i], payload[i+1]
	i += 2
	d.MaxDischargeCurrent = u16le(payload[i : i+2])
	i += 2
	d.MaxRegenCurrent = u16le(payload[i : i+2])
	i += 2
	d.HighestCellVoltage = u16le(payload[i : i+2])
	i += 2
	d.LowestCellVoltage = u16le(payload[i : i+2])
	i += 2
	d.MaxTemp, d.MaxTempNumber, d.MinTemp, d.MinTempNumber = payload[i], payload[i+1], payload[i+2], payload[i+3]
	i += 4
	d.ChargeDischargeCycles = u16le(payload[i : i+2])
	i += 2
	d.Fw148Major = u16le(payload[i : i+2])
	i += 2
	d.Fw148Minor = u16le(payload[i : i+2])
	i += 2
	d.Fw118Major, d.Fw118Minor = payload[i], payload[i+1]
	i += 2
	for t := 0; t < 4; t++ {
		d.TempSensors[t] = f32le(payload[i : i+4])
		i += 4
	}
	d.Obc = ObcEntry{
		ActivationStatus: payload[i],
		OutputDcVolt:     u16le(payload[i+1 : i+3]),
		OutputDcCurrent:  u16le(payload[i+3 : i+5]),
		MaxTemp:          payload[i+5],
		AcInputVolt:      payload[i+6],
		AcInputCurr:      payload[i+7],
		StopTx:           payload[i+8],
		AliveCounter:     payload[i+9],
		Error1:           payload[i+10],
		Error2:           payload[i+11],
		Error3:           payload[i+12],
		Error4:           payload[i+13],
		Error5:           payload[i+14],
	}
	i += 15
	d.Persist = payload[i]
	i++
	d.Odometer = u32le(payload[i : i+4])
	i += 4
	d.TripA = u32le(payload[i : i+4])
	i += 4
	d.TripB = u32le(payload[i : i+4])
	i += 4
	d.LastCharge = u32le(payload[i : i+4])
	i += 4
	d.Efficiency = f32le(payload[i : i+4])
	i += 4
	d.PowerPct = f32le(payload[i : i+4])
	i += 4
	d.Speed = f32le(payload[i : i+4])
	i += 4
	d.TripID, d.TripAction, d.Range = payload[i], payload[i+1], payload[i+2]
	i += 3
	d.TargetChargeSocPct, d.TargetChargeHoursRem, d.TargetChargeMinRem = payload[i], payload[i+1], payload[i+2]
	i += 3
	d.TargetChargeRange = u16le(payload[i : i+2])
	i += 2
	d.ChargeComplete, d.SocLimit, d.SocLimitSelectionPage = payload[i], payload[i+1], payload[i+2]
	i += 3
	d.VaLimit = u16le(payload[i : i+2])
	i += 2
	d.VaLimitSelectionPage, d.StoreCableNotification = payload[i], payload[i+1]
	i += 2
	d.SessionState, d.SecurityState = payload[i], payload[i+1]
	i += 2
	if i != len(payload) {
		return DashboardRecord{}, fmt.Errorf("%w: Dashboard layout consumed %d of %d bytes",
			ErrInvalidResponseLength, i, len(payload))
	}
	return d, nil
}

func writeDashboard(b *strings.Builder, p []byte) {
	d, err := DecodeDashboard(p)
	if err != nil {
		b.WriteString(err.Error())
		return
	}
	fmt.Fprintf(b, "Bike State: %d, Bike Lock: %d\n", d.BikeState, d.BikeLock)
	fmt.Fprintf(b, "Volt 12V: %.2f, Volt 5V: %.2f, Volt 3V: %.2f\n", d.Volt12V, d.Volt5V, d.Volt3V)
	fmt.Fprintf(b, "SOC PCT: %d, SOH PCT: %d\n", d.SOCPct, d.SOHPct)
	fmt.Fprintf(b, "Odometer: %d, Speed: %.2f\n", d.Odometer, d.Speed)
	fmt.Fprintf(b, "Session State: %d, Security State: %d", d.SessionState, d.SecurityState)
}
