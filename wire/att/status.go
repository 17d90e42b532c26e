package att

import "fmt"

// Status is a result code returned by the codec, the device session and the
// GATT procedures. The numeric values are stable and may be logged or
// exchanged with other tools.
type Status uint32

const (
	ErrNullArgument    Status = 0xC0000001
	ErrInvalidArgument Status = 0xC0000002
	ErrBufferTooSmall  Status = 0xC0000003
	ErrIO              Status = 0xC0000004
	ErrNotImplemented  Status = 0xC0000005
	ErrFull            Status = 0xC0000006
	ErrTimeout         Status = 0xC0000007
	ErrBusy            Status = 0xC0000008
	ErrNotConnected    Status = 0xC0000009

	ErrInvalidUUID        Status = 0xC0010001
	ErrIncorrectPDUSize   Status = 0xC0010002
	ErrInvalidOpcode      Status = 0xC0010003
	ErrIncludeFragments   Status = 0xC0010004
	ErrInvalidFormat      Status = 0xC0010005
	ErrErrorResponse      Status = 0xC0010006
	ErrIncompatibleUUID   Status = 0xC0010007
	ErrUnexpectedResponse Status = 0xC0010008
	ErrIncompleteWrite    Status = 0xC0010009

	// ErrATT is OR'ed with the peer's status byte; see ATTStatus.
	ErrATT Status = 0xC0010100
)

var statusNames = map[Status]string{
	ErrNullArgument:       "null argument",
	ErrInvalidArgument:    "invalid argument",
	ErrBufferTooSmall:     "buffer too small",
	ErrIO:                 "i/o failure",
	ErrNotImplemented:     "not implemented",
	ErrFull:               "table full",
	ErrTimeout:            "timed out waiting for response",
	ErrBusy:               "session busy: request already outstanding",
	ErrNotConnected:       "not connected",
	ErrInvalidUUID:        "invalid uuid",
	ErrIncorrectPDUSize:   "incorrect pdu size",
	ErrInvalidOpcode:      "invalid opcode",
	ErrIncludeFragments:   "list includes fragments",
	ErrInvalidFormat:      "invalid format",
	ErrErrorResponse:      "error response received",
	ErrIncompatibleUUID:   "incompatible uuid",
	ErrUnexpectedResponse: "unexpected response",
	ErrIncompleteWrite:    "incomplete write",
}

// ATTStatus composes the status for a peer Error Response code.
func ATTStatus(code uint8) Status {
	return ErrATT | Status(code)
}

// ATTCode returns the peer status byte when s was composed by ATTStatus.
func (s Status) ATTCode() (uint8, bool) {
	if s&^0xFF != ErrATT {
		return 0, false
	}
	return uint8(s), true
}

func (s Status) Error() string {
	if code, ok := s.ATTCode(); ok {
		return fmt.Sprintf("att: error response (%s)", EcodeName(code))
	}
	if name, ok := statusNames[s]; ok {
		return "att: " + name
	}
	return fmt.Sprintf("att: status 0x%08X", uint32(s))
}
