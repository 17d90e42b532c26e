package att

import (
	"fmt"

	"github.com/pkg/errors"
)

// ATT error codes carried in an Error Response
// (Bluetooth Core v5.3 Vol 3, Part F, Section 3.4.1.1)
const (
	EcodeSuccess                       = 0x00
	EcodeInvalidHandle                 = 0x01
	EcodeReadNotPermitted              = 0x02
	EcodeWriteNotPermitted             = 0x03
	EcodeInvalidPDU                    = 0x04
	EcodeInsufficientAuthentication    = 0x05
	EcodeRequestNotSupported           = 0x06
	EcodeInvalidOffset                 = 0x07
	EcodeInsufficientAuthorization     = 0x08
	EcodePrepareQueueFull              = 0x09
	EcodeAttributeNotFound             = 0x0A
	EcodeAttributeNotLong              = 0x0B
	EcodeInsufficientEncryptionKeySize = 0x0C
	EcodeInvalidAttributeValueLength   = 0x0D
	EcodeUnlikelyError                 = 0x0E
	EcodeInsufficientEncryption        = 0x0F
	EcodeUnsupportedGroupType          = 0x10
	EcodeInsufficientResources         = 0x11

	// Application error codes (0x80 - 0x9F)
	EcodeApplicationErrorStart = 0x80
	EcodeApplicationErrorEnd   = 0x9F

	// Common profile and service error codes (0xE0 - 0xFF)
	EcodeCommonErrorStart           = 0xE0
	EcodeWriteRequestRejected       = 0xFC
	EcodeCCCDImproperlyConfigured   = 0xFD
	EcodeProcedureAlreadyInProgress = 0xFE
	EcodeOutOfRange                 = 0xFF
	EcodeCommonErrorEnd             = 0xFF
)

// EcodeNames maps error codes to human-readable names
var EcodeNames = map[uint8]string{
	EcodeSuccess:                       "Success",
	EcodeInvalidHandle:                 "Invalid Handle",
	EcodeReadNotPermitted:              "Read Not Permitted",
	EcodeWriteNotPermitted:             "Write Not Permitted",
	EcodeInvalidPDU:                    "Invalid PDU",
	EcodeInsufficientAuthentication:    "Insufficient Authentication",
	EcodeRequestNotSupported:           "Request Not Supported",
	EcodeInvalidOffset:                 "Invalid Offset",
	EcodeInsufficientAuthorization:     "Insufficient Authorization",
	EcodePrepareQueueFull:              "Prepare Queue Full",
	EcodeAttributeNotFound:             "Attribute Not Found",
	EcodeAttributeNotLong:              "Attribute Not Long",
	EcodeInsufficientEncryptionKeySize: "Insufficient Encryption Key Size",
	EcodeInvalidAttributeValueLength:   "Invalid Attribute Value Length",
	EcodeUnlikelyError:                 "Unlikely Error",
	EcodeInsufficientEncryption:        "Insufficient Encryption",
	EcodeUnsupportedGroupType:          "Unsupported Group Type",
	EcodeInsufficientResources:         "Insufficient Resources",
	EcodeWriteRequestRejected:          "Write Request Rejected",
	EcodeCCCDImproperlyConfigured:      "CCCD Improperly Configured",
	EcodeProcedureAlreadyInProgress:    "Procedure Already in Progress",
	EcodeOutOfRange:                    "Out of Range",
}

// EcodeName returns the name of an ATT error code
func EcodeName(code uint8) string {
	if name, ok := EcodeNames[code]; ok {
		return name
	}
	switch {
	case code >= EcodeApplicationErrorStart && code <= EcodeApplicationErrorEnd:
		return fmt.Sprintf("Application Error (0x%02X)", code)
	case code >= EcodeCommonErrorStart:
		return fmt.Sprintf("Common Profile Error (0x%02X)", code)
	default:
		return fmt.Sprintf("Unknown Error (0x%02X)", code)
	}
}

// Error is an Error Response received from the peer for an outstanding request.
type Error struct {
	Code          uint8
	RequestOpcode uint8
	Handle        uint16
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("ATT Error: %s (handle 0x%04X, request %s)",
		EcodeName(e.Code), e.Handle, OpcodeName(e.RequestOpcode))
}

// Status returns the composed result code: ErrATT with the status byte in the low bits.
func (e *Error) Status() Status {
	return ATTStatus(e.Code)
}

// Is matches ErrATT and the composed status of this error.
func (e *Error) Is(target error) bool {
	s, ok := target.(Status)
	if !ok {
		return false
	}
	return s == ErrATT || s == e.Status()
}

// NewError creates a new ATT error
func NewError(code uint8, requestOpcode uint8, handle uint16) *Error {
	return &Error{
		Code:          code,
		RequestOpcode: requestOpcode,
		Handle:        handle,
	}
}

// IsATTError checks if an error (or its cause) is an ATT error with a specific code
func IsATTError(err error, code uint8) bool {
	if attErr, ok := errors.Cause(err).(*Error); ok {
		return attErr.Code == code
	}
	return false
}

// GetErrorCode returns the ATT error code from an error, or 0 if not an ATT error
func GetErrorCode(err error) uint8 {
	if attErr, ok := errors.Cause(err).(*Error); ok {
		return attErr.Code
	}
	return 0
}
