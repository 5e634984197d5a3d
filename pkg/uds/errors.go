package uds

import (
	"errors"
	"fmt"
)

// Failure semantics per the 0x78/0x21 handling rules: 0x78 is absorbed
// internally (each one extends the reply deadline) and surfaces as a
// NegativeResponse only once more than MaxPendingCount arrive in a row;
// an elapsed extended deadline surfaces as the transport timeout. 0x21
// triggers exactly one 100 ms retry.
var (
	ErrWrongResponseSid      = errors.New("uds: response SID does not match request")
	ErrInvalidResponseLength = errors.New("uds: response payload has an unexpected length")
	ErrEmptyResponse         = errors.New("uds: ecu returned an empty response")
	ErrParameterInvalid      = errors.New("uds: invalid parameter for request")
	ErrNotSupported          = errors.New("uds: service not supported by this client")
	ErrNotImplemented        = errors.New("uds: service recognised but not implemented")
	ErrBusy                  = errors.New("uds: client already has a transaction in progress")
)

// NRC is a single-byte negative response code, the third byte of a
// 0x7F SID NRC negative reply.
type NRC uint8

const (
	NRCGeneralReject                          NRC = 0x10
	NRCServiceNotSupported                    NRC = 0x11
	NRCSubFunctionNotSupported                NRC = 0x12
	NRCIncorrectMessageLengthOrInvalidFormat  NRC = 0x13
	NRCResponseTooLong                        NRC = 0x14
	NRCBusyRepeatRequest                      NRC = 0x21
	NRCConditionsNotCorrect                   NRC = 0x22
	NRCRequestSequenceError                   NRC = 0x24
	NRCRequestOutOfRange                      NRC = 0x31
	NRCSecurityAccessDenied                   NRC = 0x33
	NRCInvalidKey                             NRC = 0x35
	NRCExceedNumberOfAttempts                 NRC = 0x36
	NRCRequiredTimeDelayNotExpired            NRC = 0x37
	NRCUploadDownloadNotAccepted              NRC = 0x70
	NRCTransferDataSuspended                  NRC = 0x71
	NRCGeneralProgrammingFailure              NRC = 0x72
	NRCWrongBlockSequenceCounter              NRC = 0x73
	NRCRequestCorrectlyReceivedResponsePending NRC = 0x78
	NRCSubFunctionNotSupportedInActiveSession NRC = 0x7E
	NRCServiceNotSupportedInActiveSession     NRC = 0x7F
	NRCRpmTooHigh                             NRC = 0x81
	NRCRpmTooLow                              NRC = 0x82
	NRCEngineIsRunning                        NRC = 0x83
	NRCEngineIsNotRunning                     NRC = 0x84
	NRCEngineRunTimeTooLow                    NRC = 0x85
	NRCTemperatureTooHigh                     NRC = 0x86
	NRCTemperatureTooLow                      NRC = 0x87
	NRCVehicleSpeedTooHigh                    NRC = 0x88
	NRCVehicleSpeedTooLow                     NRC = 0x89
	NRCThrottlePedalTooHigh                   NRC = 0x8A
	NRCThrottlePedalTooLow                    NRC = 0x8B
	NRCTransmissionRangeNotInNeutral          NRC = 0x8C
	NRCTransmissionRangeNotInGear             NRC = 0x8D
	NRCBrakeSwitchNotClosed                   NRC = 0x8F
	NRCShifterLeverNotInPark                  NRC = 0x90
	NRCTorqueConverterClutchLocked            NRC = 0x91
	NRCVoltageTooHigh                         NRC = 0x92
	NRCVoltageTooLow                          NRC = 0x93
)

// nrcExplanations follows the shape of a flat abort-code lookup table:
// a map from wire code to a short human explanation, consulted only
// when building a NegativeResponse error for a caller.
var nrcExplanations = map[NRC]string{
	NRCGeneralReject:                           "general reject",
	NRCServiceNotSupported:                     "service not supported",
	NRCSubFunctionNotSupported:                 "subfunction not supported",
	NRCIncorrectMessageLengthOrInvalidFormat:   "incorrect message length or invalid format",
	NRCResponseTooLong:                         "response too long",
	NRCBusyRepeatRequest:                       "ecu busy, repeat request",
	NRCConditionsNotCorrect:                    "conditions not correct",
	NRCRequestSequenceError:                    "request sequence error",
	NRCRequestOutOfRange:                       "request out of range",
	NRCSecurityAccessDenied:                    "security access denied",
	NRCInvalidKey:                              "invalid key",
	NRCExceedNumberOfAttempts:                  "exceeded number of attempts",
	NRCRequiredTimeDelayNotExpired:             "required time delay not expired",
	NRCUploadDownloadNotAccepted:               "upload/download not accepted",
	NRCTransferDataSuspended:                   "transfer data suspended",
	NRCGeneralProgrammingFailure:               "general programming failure",
	NRCWrongBlockSequenceCounter:               "wrong block sequence counter",
	NRCRequestCorrectlyReceivedResponsePending: "request correctly received, response pending",
	NRCSubFunctionNotSupportedInActiveSession:  "subfunction not supported in active session",
	NRCServiceNotSupportedInActiveSession:      "service not supported in active session",
	NRCRpmTooHigh:                              "rpm too high",
	NRCRpmTooLow:                               "rpm too low",
	NRCEngineIsRunning:                         "engine is running",
	NRCEngineIsNotRunning:                      "engine is not running",
	NRCEngineRunTimeTooLow:                     "engine run time too low",
	NRCTemperatureTooHigh:                      "temperature too high",
	NRCTemperatureTooLow:                       "temperature too low",
	NRCVehicleSpeedTooHigh:                     "vehicle speed too high",
	NRCVehicleSpeedTooLow:                      "vehicle speed too low",
	NRCThrottlePedalTooHigh:                    "throttle pedal too high",
	NRCThrottlePedalTooLow:                     "throttle pedal too low",
	NRCTransmissionRangeNotInNeutral:           "transmission range not in neutral",
	NRCTransmissionRangeNotInGear:              "transmission range not in gear",
	NRCBrakeSwitchNotClosed:                    "brake switch not closed",
	NRCShifterLeverNotInPark:                   "shifter lever not in park",
	NRCTorqueConverterClutchLocked:             "torque converter clutch locked",
	NRCVoltageTooHigh:                          "voltage too high",
	NRCVoltageTooLow:                           "voltage too low",
}

// Explanation returns a short human-readable description of nrc,
// falling back to its numeric form if unrecognised.
func (nrc NRC) Explanation() string {
	if s, ok := nrcExplanations[nrc]; ok {
		return s
	}
	return fmt.Sprintf("unrecognised NRC 0x%02X", uint8(nrc))
}

// NegativeResponse wraps a 0x7F SID NRC reply.
type NegativeResponse struct {
	SID SID
	NRC NRC
}

func (e *NegativeResponse) Error() string {
	return fmt.Sprintf("uds: negative response to SID 0x%02X: %s (0x%02X)", uint8(e.SID), e.NRC.Explanation(), uint8(e.NRC))
}

// Is supports errors.Is(err, &NegativeResponse{}) style matching on NRC
// alone when SID is zero in the target.
func (e *NegativeResponse) Is(target error) bool {
	t, ok := target.(*NegativeResponse)
	if !ok {
		return false
	}
	if t.SID != 0 && t.SID != e.SID {
		return false
	}
	return t.NRC == 0 || t.NRC == e.NRC
}
