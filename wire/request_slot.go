package wire

import (
	"sync"
	"time"

	"github.com/user/gattclient/wire/att"
)

// response is the outcome delivered to a waiting request
type response struct {
	pdu []byte
	err error
}

// pendingRequest is the single outstanding ATT request on a bearer
type pendingRequest struct {
	requested uint8
	expected  uint8
	startedAt time.Time
	done      chan response
}

// requestSlot holds at most one outstanding request. ATT allows a single
// request in flight per bearer, so responses are correlated by order alone.
type requestSlot struct {
	mu      sync.Mutex
	pending *pendingRequest
}

// start claims the slot. A second caller gets att.ErrBusy.
func (s *requestSlot) start(requested, expected uint8) (*pendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return nil, att.ErrBusy
	}
	p := &pendingRequest{
		requested: requested,
		expected:  expected,
		startedAt: time.Now(),
		done:      make(chan response, 1),
	}
	s.pending = p
	return p, nil
}

// complete offers a received PDU to the outstanding request. It returns
// false when the PDU is unrelated and should be dropped.
func (s *requestSlot) complete(pdu []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pending
	if p == nil || len(pdu) == 0 {
		return false
	}

	if pdu[0] == p.expected {
		staged := make([]byte, len(pdu))
		copy(staged, pdu)
		s.pending = nil
		p.done <- response{pdu: staged}
		return true
	}

	if pdu[0] == att.OpErrorResponse {
		reqOp, handle, code, err := att.ParseErrorResponse(pdu)
		if err != nil || reqOp != p.requested {
			return false
		}
		s.pending = nil
		p.done <- response{err: att.NewError(code, reqOp, handle)}
		return true
	}

	return false
}

// abandon releases the slot after a timeout or cancellation. If the receive
// loop completed the request first, that outcome is returned instead.
func (s *requestSlot) abandon(p *pendingRequest) (response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == p {
		s.pending = nil
		return response{}, false
	}
	return <-p.done, true
}

// fail completes any outstanding request with err
func (s *requestSlot) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending.done <- response{err: err}
		s.pending = nil
	}
}
