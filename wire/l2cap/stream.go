package l2cap

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/user/gattclient/logger"
)

const streamPrefix = "L2CAP"

// StreamOption configures a StreamTransport.
type StreamOption func(*StreamTransport)

// WithParameterPolicy sets how peer Connection Parameter Update Requests are
// answered. The default is AcceptValid.
func WithParameterPolicy(p ParameterPolicy) StreamOption {
	return func(s *StreamTransport) {
		if p != nil {
			s.policy = p
		}
	}
}

// StreamTransport carries ATT PDUs over a byte stream, one L2CAP basic frame
// per PDU. Frames on the LE signaling channel are answered in place; frames
// on any other channel are dropped.
type StreamTransport struct {
	conn   net.Conn
	r      *bufio.Reader
	rmu    sync.Mutex
	wmu    sync.Mutex
	policy ParameterPolicy
}

// NewStreamTransport wraps conn. The returned value satisfies wire.Transport.
func NewStreamTransport(conn net.Conn, opts ...StreamOption) *StreamTransport {
	s := &StreamTransport{
		conn:   conn,
		r:      bufio.NewReader(conn),
		policy: AcceptValid,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the payload of the next ATT frame. A payload larger than b is
// an error; the frame is consumed.
func (s *StreamTransport) Read(b []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	for {
		pkt, err := ReadPacket(s.r)
		if err != nil {
			return 0, err
		}

		switch pkt.ChannelID {
		case ChannelATT:
			if len(pkt.Payload) == 0 {
				logger.Debug(streamPrefix, "dropping empty ATT frame")
				continue
			}
			if len(pkt.Payload) > len(b) {
				return 0, errors.Wrapf(io.ErrShortBuffer, "l2cap: %d byte frame", len(pkt.Payload))
			}
			return copy(b, pkt.Payload), nil
		case ChannelLESignal:
			if err := s.handleSignal(pkt.Payload); err != nil {
				return 0, err
			}
		default:
			logger.Debug(streamPrefix, "dropping %d byte frame on %s channel (0x%04X)",
				len(pkt.Payload), ChannelName(pkt.ChannelID), pkt.ChannelID)
		}
	}
}

func (s *StreamTransport) handleSignal(payload []byte) error {
	sig, err := ParseSignal(payload)
	if err != nil {
		logger.Debug(streamPrefix, "dropping signaling frame: %v", err)
		return nil
	}

	reply := answerSignal(sig, s.policy)
	if reply == nil {
		return nil
	}
	logger.Debug(streamPrefix, "signaling code 0x%02X id %d answered with code 0x%02X",
		sig.Code, sig.Identifier, reply.Code)
	return s.writeFrame(&Packet{ChannelID: ChannelLESignal, Payload: reply.Encode()})
}

// Write sends b as one ATT frame.
func (s *StreamTransport) Write(b []byte) (int, error) {
	if err := s.writeFrame(NewATTPacket(b)); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (s *StreamTransport) writeFrame(p *Packet) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return WritePacket(s.conn, p)
}

// Close closes the underlying connection.
func (s *StreamTransport) Close() error {
	return s.conn.Close()
}
