package wire

import "time"

// DefaultTimeout bounds a request/response exchange unless overridden.
// ATT transactions time out after 30 seconds.
const DefaultTimeout = 30 * time.Second

// PacketTracer records every PDU sent or received
type PacketTracer interface {
	TracePDU(direction, peer string, pdu []byte)
}

type options struct {
	timeout          time.Duration
	maxSubscriptions int
	asyncHint        int64
	async            bool
	tracer           PacketTracer
}

func defaultOptions() options {
	return options{
		timeout:          DefaultTimeout,
		maxSubscriptions: DefaultMaxSubscriptions,
	}
}

// Option configures a Device
type Option func(*options)

// WithTimeout sets the default request timeout; 0 waits forever.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMaxSubscriptions sets the subscription table capacity.
func WithMaxSubscriptions(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSubscriptions = n
		}
	}
}

// WithAsyncNotifications runs notification handlers on a worker goroutine
// fed by a queue instead of on the receive goroutine.
func WithAsyncNotifications(hint int64) Option {
	return func(o *options) {
		o.async = true
		o.asyncHint = hint
	}
}

// WithTracer records every PDU to t.
func WithTracer(t PacketTracer) Option {
	return func(o *options) { o.tracer = t }
}
