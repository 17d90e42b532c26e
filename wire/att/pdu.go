package att

import "encoding/binary"

const (
	// MinMTU is the default and minimum ATT_MTU on an LE link
	MinMTU = 23
	// MaxMTU is the largest ATT_MTU this client negotiates
	MaxMTU = 512
	// MaxPDUSize bounds every staging buffer
	MaxPDUSize = 1024
	// SignatureLen is the authentication signature carried by a Signed Write Command
	SignatureLen = 12
)

// Fixed header sizes (opcode plus fixed fields) per PDU kind.
const (
	ErrorResponseSize          = 5
	ExchangeMTUSize            = 3
	FindInformationRequestSize = 5
	FindInformationHeaderSize  = 2
	FindByTypeValueHeaderSize  = 7
	ReadByTypeHeaderSize       = 5
	ReadByTypeRespHeaderSize   = 2
	ReadRequestSize            = 3
	ReadBlobRequestSize        = 5
	ValueResponseHeaderSize    = 1
	HandleValueHeaderSize      = 3
	PrepareWriteHeaderSize     = 5
	ExecuteWriteRequestSize    = 2
	OpcodeOnlySize             = 1
)

// Execute Write flags
const (
	ExecuteWriteCancel = 0x00
	ExecuteWriteCommit = 0x01
)

// Find Information response formats
const (
	FindInfoFormat16  = 0x01
	FindInfoFormat128 = 0x02
)

// FindInfoItemLen returns the handle+UUID pair stride for a Find Information format.
func FindInfoItemLen(format uint8) (int, error) {
	switch format {
	case FindInfoFormat16:
		return 4, nil
	case FindInfoFormat128:
		return 18, nil
	default:
		return 0, ErrInvalidFormat
	}
}

// checkBuild applies the shared build guards.
func checkBuild(pdu []byte, size int) error {
	if pdu == nil {
		return ErrNullArgument
	}
	if size > len(pdu) {
		return ErrBufferTooSmall
	}
	if size > MaxPDUSize {
		return ErrInvalidArgument
	}
	return nil
}

// checkParse applies the shared parse guards for a PDU with a variable tail.
func checkParse(pdu []byte, opcode uint8, header int) error {
	if pdu == nil {
		return ErrNullArgument
	}
	if len(pdu) < header {
		return ErrIncorrectPDUSize
	}
	if pdu[0] != opcode {
		return ErrInvalidOpcode
	}
	return nil
}

// checkParseExact is checkParse for PDUs without a tail.
func checkParseExact(pdu []byte, opcode uint8, size int) error {
	if pdu == nil {
		return ErrNullArgument
	}
	if len(pdu) != size {
		return ErrIncorrectPDUSize
	}
	if pdu[0] != opcode {
		return ErrInvalidOpcode
	}
	return nil
}

// copyTail implements the count-only / copy contract for variable outputs.
// A zero-length out only reports the tail length.
func copyTail(tail, out []byte) (int, error) {
	n := len(tail)
	if len(out) == 0 {
		return n, nil
	}
	if len(out) < n {
		return n, ErrBufferTooSmall
	}
	copy(out, tail)
	return n, nil
}

func putRange(b []byte, r HandleRange) {
	binary.LittleEndian.PutUint16(b[0:2], r.Start)
	binary.LittleEndian.PutUint16(b[2:4], r.End)
}

func getRange(b []byte) HandleRange {
	return HandleRange{
		Start: binary.LittleEndian.Uint16(b[0:2]),
		End:   binary.LittleEndian.Uint16(b[2:4]),
	}
}
