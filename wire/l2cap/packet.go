package l2cap

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// L2CAP fixed channel IDs
const (
	ChannelNULL      uint16 = 0x0000 // Reserved/Null
	ChannelSignaling uint16 = 0x0001 // ACL-U signaling
	ChannelConnless  uint16 = 0x0002 // Connectionless
	ChannelAMP       uint16 = 0x0003 // AMP Manager
	ChannelATT       uint16 = 0x0004 // Attribute Protocol
	ChannelLESignal  uint16 = 0x0005 // LE L2CAP Signaling
	ChannelSMP       uint16 = 0x0006 // Security Manager Protocol
	ChannelBR        uint16 = 0x0007 // BR/EDR Security Manager
)

// HeaderLen is the basic frame header: Length (2 bytes) + Channel ID (2 bytes)
const HeaderLen = 4

var (
	// ErrShortPacket is returned when a frame is shorter than its header claims.
	ErrShortPacket = errors.New("l2cap: short packet")
	// ErrPayloadTooLarge is returned when a payload does not fit the length field.
	ErrPayloadTooLarge = errors.New("l2cap: payload too large")
)

// Packet is an L2CAP basic frame.
// Format: [Length: 2 bytes] [Channel ID: 2 bytes] [Payload: N bytes]
type Packet struct {
	ChannelID uint16
	Payload   []byte
}

// NewATTPacket creates a frame for the ATT fixed channel
func NewATTPacket(payload []byte) *Packet {
	return &Packet{ChannelID: ChannelATT, Payload: payload}
}

// Encode serializes the frame. The length field carries the payload length only.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.Payload) > 0xFFFF {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(p.Payload))
	}
	buf := make([]byte, HeaderLen+len(p.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(p.Payload)))
	binary.LittleEndian.PutUint16(buf[2:4], p.ChannelID)
	copy(buf[HeaderLen:], p.Payload)
	return buf, nil
}

// Decode parses one frame from data. Trailing bytes beyond the claimed
// payload length are ignored.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderLen {
		return nil, errors.Wrapf(ErrShortPacket, "need at least %d bytes, got %d", HeaderLen, len(data))
	}

	length := int(binary.LittleEndian.Uint16(data[0:2]))
	if len(data) < HeaderLen+length {
		return nil, errors.Wrapf(ErrShortPacket, "claimed length %d, got %d", length, len(data)-HeaderLen)
	}

	payload := make([]byte, length)
	copy(payload, data[HeaderLen:HeaderLen+length])
	return &Packet{
		ChannelID: binary.LittleEndian.Uint16(data[2:4]),
		Payload:   payload,
	}, nil
}

// ReadPacket reads exactly one frame from a byte stream.
func ReadPacket(r io.Reader) (*Packet, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	payload := make([]byte, binary.LittleEndian.Uint16(hdr[0:2]))
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "l2cap: reading payload")
	}
	return &Packet{
		ChannelID: binary.LittleEndian.Uint16(hdr[2:4]),
		Payload:   payload,
	}, nil
}

// WritePacket writes one frame to a byte stream in a single Write call.
func WritePacket(w io.Writer, p *Packet) error {
	buf, err := p.Encode()
	if err != nil {
		return err
	}
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

// ChannelName returns the human-readable name for a fixed channel
func ChannelName(channelID uint16) string {
	switch channelID {
	case ChannelNULL:
		return "NULL"
	case ChannelSignaling:
		return "ACL-U Signaling"
	case ChannelConnless:
		return "Connectionless"
	case ChannelAMP:
		return "AMP Manager"
	case ChannelATT:
		return "ATT"
	case ChannelLESignal:
		return "LE L2CAP Signaling"
	case ChannelSMP:
		return "SMP"
	case ChannelBR:
		return "BR/EDR Security Manager"
	default:
		return "Unknown"
	}
}
