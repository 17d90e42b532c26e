package l2cap

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// LE signaling command codes
const (
	CodeCommandReject                     = 0x01
	CodeConnectionParameterUpdateRequest  = 0x12
	CodeConnectionParameterUpdateResponse = 0x13
)

// Connection parameter update results
const (
	ConnectionParameterAccepted uint16 = 0x0000
	ConnectionParameterRejected uint16 = 0x0001
)

// RejectNotUnderstood is the Command Reject reason for unknown commands
const RejectNotUnderstood uint16 = 0x0000

const signalHeaderLen = 4

// ErrInvalidSignal is returned for malformed signaling commands.
var ErrInvalidSignal = errors.New("l2cap: invalid signaling command")

// Signal is one command on the LE signaling channel.
// Format: [Code: 1] [Identifier: 1] [Length: 2] [Data: Length]
type Signal struct {
	Code       uint8
	Identifier uint8
	Data       []byte
}

// ParseSignal decodes a single LE signaling command.
func ParseSignal(payload []byte) (*Signal, error) {
	if len(payload) < signalHeaderLen {
		return nil, errors.Wrapf(ErrInvalidSignal, "too short: %d bytes", len(payload))
	}
	length := int(binary.LittleEndian.Uint16(payload[2:4]))
	if len(payload) < signalHeaderLen+length {
		return nil, errors.Wrapf(ErrInvalidSignal, "claimed length %d, got %d", length, len(payload)-signalHeaderLen)
	}
	return &Signal{
		Code:       payload[0],
		Identifier: payload[1],
		Data:       payload[signalHeaderLen : signalHeaderLen+length],
	}, nil
}

// Encode serializes the command.
func (s *Signal) Encode() []byte {
	buf := make([]byte, signalHeaderLen+len(s.Data))
	buf[0] = s.Code
	buf[1] = s.Identifier
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(s.Data)))
	copy(buf[signalHeaderLen:], s.Data)
	return buf
}

// ConnectionParameters are the timing values a peripheral may ask the
// central to apply.
type ConnectionParameters struct {
	// Connection interval in units of 1.25ms, 6 (7.5ms) to 3200 (4s)
	IntervalMin uint16
	IntervalMax uint16

	// Number of connection events the peripheral can skip, 0 to 499
	SlaveLatency uint16

	// Supervision timeout in units of 10ms, 10 (100ms) to 3200 (32s)
	SupervisionTimeout uint16
}

// Validate checks the parameters against the LE ranges.
func (p *ConnectionParameters) Validate() error {
	if p.IntervalMin < 6 || p.IntervalMin > 3200 {
		return errors.Errorf("l2cap: IntervalMin out of range (6-3200): %d", p.IntervalMin)
	}
	if p.IntervalMax < 6 || p.IntervalMax > 3200 {
		return errors.Errorf("l2cap: IntervalMax out of range (6-3200): %d", p.IntervalMax)
	}
	if p.IntervalMax < p.IntervalMin {
		return errors.Errorf("l2cap: IntervalMax (%d) must be >= IntervalMin (%d)", p.IntervalMax, p.IntervalMin)
	}
	if p.SlaveLatency > 499 {
		return errors.Errorf("l2cap: SlaveLatency out of range (0-499): %d", p.SlaveLatency)
	}
	if p.SupervisionTimeout < 10 || p.SupervisionTimeout > 3200 {
		return errors.Errorf("l2cap: SupervisionTimeout out of range (10-3200): %d", p.SupervisionTimeout)
	}

	// timeout > (1 + latency) * interval * 2, compared in 10ms units
	minTimeout := (1 + uint32(p.SlaveLatency)) * uint32(p.IntervalMax) * 250 / 1000
	if uint32(p.SupervisionTimeout) <= minTimeout {
		return errors.Errorf("l2cap: SupervisionTimeout (%d * 10ms) must be > (1+latency)*interval*2 (%d * 10ms)",
			p.SupervisionTimeout, minTimeout)
	}
	return nil
}

// IntervalMinMs returns the minimum connection interval in milliseconds
func (p *ConnectionParameters) IntervalMinMs() float64 {
	return float64(p.IntervalMin) * 1.25
}

// IntervalMaxMs returns the maximum connection interval in milliseconds
func (p *ConnectionParameters) IntervalMaxMs() float64 {
	return float64(p.IntervalMax) * 1.25
}

// SupervisionTimeoutMs returns the supervision timeout in milliseconds
func (p *ConnectionParameters) SupervisionTimeoutMs() uint32 {
	return uint32(p.SupervisionTimeout) * 10
}

// ParseConnectionParameterUpdateRequest decodes the data of a
// Connection Parameter Update Request. Range checks are left to Validate.
func ParseConnectionParameterUpdateRequest(s *Signal) (*ConnectionParameters, error) {
	if s.Code != CodeConnectionParameterUpdateRequest {
		return nil, errors.Wrapf(ErrInvalidSignal, "code 0x%02X", s.Code)
	}
	if len(s.Data) != 8 {
		return nil, errors.Wrapf(ErrInvalidSignal, "parameter length %d", len(s.Data))
	}
	return &ConnectionParameters{
		IntervalMin:        binary.LittleEndian.Uint16(s.Data[0:2]),
		IntervalMax:        binary.LittleEndian.Uint16(s.Data[2:4]),
		SlaveLatency:       binary.LittleEndian.Uint16(s.Data[4:6]),
		SupervisionTimeout: binary.LittleEndian.Uint16(s.Data[6:8]),
	}, nil
}

// NewConnectionParameterUpdateRequest builds the request a peripheral sends.
func NewConnectionParameterUpdateRequest(id uint8, p *ConnectionParameters) *Signal {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:2], p.IntervalMin)
	binary.LittleEndian.PutUint16(data[2:4], p.IntervalMax)
	binary.LittleEndian.PutUint16(data[4:6], p.SlaveLatency)
	binary.LittleEndian.PutUint16(data[6:8], p.SupervisionTimeout)
	return &Signal{Code: CodeConnectionParameterUpdateRequest, Identifier: id, Data: data}
}

// NewConnectionParameterUpdateResponse builds the central's answer.
func NewConnectionParameterUpdateResponse(id uint8, result uint16) *Signal {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, result)
	return &Signal{Code: CodeConnectionParameterUpdateResponse, Identifier: id, Data: data}
}

// NewCommandReject builds a Command Reject for an unsupported command.
func NewCommandReject(id uint8, reason uint16) *Signal {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, reason)
	return &Signal{Code: CodeCommandReject, Identifier: id, Data: data}
}

// ParameterPolicy decides whether a peer's requested parameters are accepted.
type ParameterPolicy func(p *ConnectionParameters) bool

// AcceptValid accepts any request that passes Validate.
func AcceptValid(p *ConnectionParameters) bool {
	return p.Validate() == nil
}

// answerSignal returns the reply for an inbound command, or nil when the
// command needs none.
func answerSignal(s *Signal, policy ParameterPolicy) *Signal {
	switch s.Code {
	case CodeConnectionParameterUpdateRequest:
		p, err := ParseConnectionParameterUpdateRequest(s)
		if err != nil {
			return NewCommandReject(s.Identifier, RejectNotUnderstood)
		}
		if policy(p) {
			return NewConnectionParameterUpdateResponse(s.Identifier, ConnectionParameterAccepted)
		}
		return NewConnectionParameterUpdateResponse(s.Identifier, ConnectionParameterRejected)
	case CodeCommandReject, CodeConnectionParameterUpdateResponse:
		return nil
	default:
		return NewCommandReject(s.Identifier, RejectNotUnderstood)
	}
}
