package wire

import (
	"sync"
	"time"

	"github.com/user/gattclient/wire/att"
)

// Stats is a snapshot of the counters of the current (or last) connection.
type Stats struct {
	ConnectedAt    time.Time `json:"connected_at"`
	LastActivity   time.Time `json:"last_activity"`
	PDUsSent       int       `json:"pdus_sent"`
	PDUsReceived   int       `json:"pdus_received"`
	Requests       int       `json:"requests"`
	Timeouts       int       `json:"timeouts"`
	ErrorResponses int       `json:"error_responses"`
	Notifications  int       `json:"notifications"`
	Indications    int       `json:"indications"`
	Discarded      int       `json:"discarded"`
	Errors         int       `json:"errors"`
	LastError      string    `json:"last_error,omitempty"`
}

// Uptime is the time since the connection was opened
func (s Stats) Uptime() time.Duration {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	return time.Since(s.ConnectedAt)
}

type statsRecorder struct {
	mu sync.Mutex
	s  Stats
}

func (r *statsRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.s = Stats{ConnectedAt: now, LastActivity: now}
}

func (r *statsRecorder) sent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.PDUsSent++
	r.s.LastActivity = time.Now()
}

func (r *statsRecorder) received(opcode uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.PDUsReceived++
	r.s.LastActivity = time.Now()
	switch opcode {
	case att.OpErrorResponse:
		r.s.ErrorResponses++
	case att.OpHandleValueNotification:
		r.s.Notifications++
	case att.OpHandleValueIndication:
		r.s.Indications++
	}
}

func (r *statsRecorder) request() {
	r.mu.Lock()
	r.s.Requests++
	r.mu.Unlock()
}

func (r *statsRecorder) timeout() {
	r.mu.Lock()
	r.s.Timeouts++
	r.mu.Unlock()
}

func (r *statsRecorder) discarded() {
	r.mu.Lock()
	r.s.Discarded++
	r.mu.Unlock()
}

func (r *statsRecorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Errors++
	r.s.LastError = err.Error()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}
