package codec

import (
	"fmt"
	"strings"
)

// DtcSubfunction selects a ReadDTCInformation (SID 0x19) report.
type DtcSubfunction uint8

const (
	ReportNumberOfDtcByStatusMask DtcSubfunction = 0x01
	ReportDtcByStatusMask         DtcSubfunction = 0x02
	ReportSupportedDtc            DtcSubfunction = 0x0A
)

// DtcCode is a 24-bit ECU-assigned diagnostic trouble code plus its
// 8-bit status mask, the fixed record shape ReportDtcByStatusMask
// returns: three big-endian code bytes followed by one status byte.
type DtcCode struct {
	Code   uint32 // low 24 bits significant
	Status uint8
}

// EncodeNumberOfDtcByStatusMaskRequest builds the request body for the
// ReportNumberOfDTCByStatusMask subfunction.
func EncodeNumberOfDtcByStatusMaskRequest(statusMask uint8) []byte {
	return []byte{byte(ReportNumberOfDtcByStatusMask), statusMask}
}

// EncodeDtcByStatusMaskRequest builds the request body for the
// ReportDTCByStatusMask subfunction.
func EncodeDtcByStatusMaskRequest(statusMask uint8) []byte {
	return []byte{byte(ReportDtcByStatusMask), statusMask}
}

// DecodeNumberOfDtcByStatusMask parses a ReportNumberOfDTCByStatusMask
// positive response body (after the echoed subfunction byte):
// availability mask (1 byte), format identifier (1 byte), count
// (2-byte big-endian).
func DecodeNumberOfDtcByStatusMask(body []byte) (availabilityMask uint8, formatId uint8, count uint16, err error) {
	if len(body) != 4 {
		return 0, 0, 0, fmt.Errorf("%w: number-of-dtc report wants 4 bytes, got %d", ErrInvalidResponseLength, len(body))
	}
	return body[0], body[1], uint16(body[2])<<8 | uint16(body[3]), nil
}

// DecodeDtcByStatusMask parses a ReportDTCByStatusMask positive
// response body (after the echoed subfunction byte): one status
// availability byte followed by 4-byte DTC+status records.
func DecodeDtcByStatusMask(body []byte) (availabilityMask uint8, dtcs []DtcCode, err error) {
	if len(body) < 1 {
		return 0, nil, fmt.Errorf("%w: dtc-by-status report wants at least 1 byte, got 0", ErrInvalidResponseLength)
	}
	availabilityMask = body[0]
	records := body[1:]
	if len(records)%4 != 0 {
		return 0, nil, fmt.Errorf("%w: dtc record block length %d is not a multiple of 4", ErrInvalidResponseLength, len(records))
	}
	dtcs = make([]DtcCode, 0, len(records)/4)
	for i := 0; i+4 <= len(records); i += 4 {
		code := uint32(records[i])<<16 | uint32(records[i+1])<<8 | uint32(records[i+2])
		dtcs = append(dtcs, DtcCode{Code: code, Status: records[i+3]})
	}
	return availabilityMask, dtcs, nil
}

// String renders a DtcCode as six hex code digits and two hex status
// digits, e.g. "01A34F/08".
func (d DtcCode) String() string {
	return fmt.Sprintf("%06X/%02X", d.Code, d.Status)
}

// FormatDtcReport renders a decoded DTC list as a newline-separated
// human report.
func FormatDtcReport(dtcs []DtcCode) string {
	if len(dtcs) == 0 {
		return "no DTCs matched"
	}
	var b strings.Builder
	for i, d := range dtcs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "DTC %s", d)
	}
	return b.String()
}
