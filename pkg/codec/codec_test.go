package codec

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func le32(f float32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, math.Float32bits(f))
	return out
}

func TestAdcVoltageDecode(t *testing.T) {
	payload := append(append(append(append(
		le32(12.34), le32(5.01)...), le32(3.30)...), le32(74.5)...), le32(70.1)...)
	text, err := DecodeDataId(AdcVoltage, payload)
	require.NoError(t, err)
	assert.Contains(t, text, "Volt 12V: 12.34")
	assert.Contains(t, text, "Volt 5V: 5.01")
	assert.Contains(t, text, "Throttle Filt: 70.10")
}

func TestAdcVoltageWrongLength(t *testing.T) {
	_, err := DecodeDataId(AdcVoltage, make([]byte, 19))
	assert.ErrorIs(t, err, ErrInvalidResponseLength)
}

func TestDashboardDecodeAt201Bytes(t *testing.T) {
	payload := make([]byte, Dashboard.ExpectedLength())
	for i := range payload {
		payload[i] = byte(i)
	}
	d, err := DecodeDashboard(payload)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), d.BikeState)
	assert.Equal(t, uint8(1), d.BikeLock)
	assert.Equal(t, uint8(payload[200]), d.SecurityState)

	text, err := DecodeDataId(Dashboard, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestDashboardWrongLength(t *testing.T) {
	_, err := DecodeDashboard(make([]byte, 156))
	assert.ErrorIs(t, err, ErrInvalidResponseLength)
}

func TestDataIdBytesBigEndian(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x07}, AdcVoltage.Bytes())
	assert.Equal(t, []byte{0x01, 0x09}, Dashboard.Bytes())
}

func TestConnectivityRoutineMapping(t *testing.T) {
	domain, cmd, ok := IsConnectivityRoutine(LteGetSignalStrength)
	require.True(t, ok)
	assert.Equal(t, Lte, domain)
	assert.Equal(t, uint8(5), cmd)

	domain, cmd, ok = IsConnectivityRoutine(WifiScan)
	require.True(t, ok)
	assert.Equal(t, Wifi, domain)
	assert.Equal(t, uint8(1), cmd)

	_, _, ok = IsConnectivityRoutine(EnableImxLte)
	assert.False(t, ok)
}

func TestRoutineIdBytes(t *testing.T) {
	assert.Equal(t, []byte{0x02, 0x18}, LteGetSignalStrength.Bytes())
}

func TestDomainFromStringDefaultsToInvalid(t *testing.T) {
	assert.Equal(t, Lte, DomainFromString("Lte"))
	assert.Equal(t, InvalidDomain, DomainFromString("Unknown"))
}

func TestDtcByStatusMaskDecode(t *testing.T) {
	body := []byte{
		0xFF,
		0x01, 0xA3, 0x4F, 0x08,
		0x00, 0x10, 0x20, 0x04,
	}
	mask, dtcs, err := DecodeDtcByStatusMask(body)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xFF), mask)
	require.Len(t, dtcs, 2)
	assert.Equal(t, DtcCode{Code: 0x01A34F, Status: 0x08}, dtcs[0])
	assert.Equal(t, DtcCode{Code: 0x001020, Status: 0x04}, dtcs[1])
	assert.Contains(t, FormatDtcReport(dtcs), "01A34F/08")
}

func TestNumberOfDtcByStatusMask(t *testing.T) {
	avail, format, count, err := DecodeNumberOfDtcByStatusMask([]byte{0xFF, 0x01, 0x00, 0x03})
	require.NoError(t, err)
	assert.Equal(t, uint8(0xFF), avail)
	assert.Equal(t, uint8(0x01), format)
	assert.Equal(t, uint16(3), count)
}
