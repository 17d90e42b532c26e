package wire

import (
	"context"
	"io"
	"sync"
)

// Transport is a duplex packet channel to the peer's ATT bearer. Each Read
// returns exactly one PDU and each Write sends exactly one PDU. A Read of
// zero bytes or an error means the bearer is gone.
type Transport interface {
	io.ReadWriteCloser
}

// DialFunc opens a Transport. Connection setup (addressing, security level)
// belongs to the DialFunc.
type DialFunc func(ctx context.Context) (Transport, error)

// Pipe returns two connected in-memory transports. Closing either end closes
// both, after which Read returns io.EOF and Write io.ErrClosedPipe.
func Pipe() (Transport, Transport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	shared := &pipeState{done: make(chan struct{})}
	return &pipeEnd{rx: ba, tx: ab, state: shared}, &pipeEnd{rx: ab, tx: ba, state: shared}
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

type pipeEnd struct {
	rx    <-chan []byte
	tx    chan<- []byte
	state *pipeState
}

func (p *pipeEnd) Read(b []byte) (int, error) {
	select {
	case <-p.state.done:
		return 0, io.EOF
	default:
	}
	select {
	case pkt := <-p.rx:
		return copy(b, pkt), nil
	case <-p.state.done:
		return 0, io.EOF
	}
}

func (p *pipeEnd) Write(b []byte) (int, error) {
	pkt := append([]byte(nil), b...)
	select {
	case <-p.state.done:
		return 0, io.ErrClosedPipe
	default:
	}
	select {
	case p.tx <- pkt:
		return len(b), nil
	case <-p.state.done:
		return 0, io.ErrClosedPipe
	}
}

func (p *pipeEnd) Close() error {
	p.state.once.Do(func() { close(p.state.done) })
	return nil
}
