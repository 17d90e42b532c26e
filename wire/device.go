package wire

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire/att"
)

// Device is a client session with one peer's ATT server. It owns the
// transport, a background receive loop, the single outstanding request and
// the notification subscriptions.
type Device struct {
	peer   string
	prefix string
	opts   options

	mu         sync.Mutex
	transport  Transport
	connected  bool
	connecting bool
	closing    bool
	loopDone   chan struct{}
	loopErr    error
	clientMTU  int
	serverMTU  int

	writeMu sync.Mutex
	slot    requestSlot
	subs    *subscriptionTable
	disp    dispatcher
	stats   statsRecorder
}

// NewDevice creates a disconnected session for peer. peer is only used to
// label logs and traces.
func NewDevice(peer string, opts ...Option) *Device {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Device{
		peer:      peer,
		prefix:    shortName(peer) + " Device",
		opts:      o,
		clientMTU: att.MinMTU,
		serverMTU: att.MinMTU,
		subs:      newSubscriptionTable(o.maxSubscriptions),
	}
}

// Peer returns the label the device was created with
func (d *Device) Peer() string {
	return d.peer
}

// Connect opens the transport with dial and starts the receive loop. On
// failure the device stays disconnected and the dial error is returned as is.
func (d *Device) Connect(ctx context.Context, dial DialFunc) error {
	if dial == nil {
		return att.ErrNullArgument
	}

	d.mu.Lock()
	if d.connected || d.connecting {
		d.mu.Unlock()
		return errors.Wrap(att.ErrInvalidArgument, "already connected")
	}
	d.connecting = true
	d.mu.Unlock()

	t, err := dial(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.connecting = false
	if err != nil {
		logger.Warn(d.prefix, "❌ connect failed: %v", err)
		return err
	}

	var disp dispatcher = syncDispatcher{}
	if d.opts.async {
		disp = newQueueDispatcher(d.prefix, d.opts.asyncHint)
	}

	d.transport = t
	d.disp = disp
	d.clientMTU = att.MinMTU
	d.serverMTU = att.MinMTU
	d.loopErr = nil
	d.closing = false
	d.loopDone = make(chan struct{})
	d.connected = true
	d.stats.reset()

	go d.readLoop(t, disp, d.loopDone)

	logger.WithFields(d.prefix, logrus.Fields{
		"peer":  d.peer,
		"mtu":   att.MinMTU,
		"async": d.opts.async,
	}).Info("✅ connected")
	return nil
}

// Disconnect closes the transport and waits for the receive loop to exit.
// It is a no-op on a disconnected device. It must not be called from a
// synchronous notification handler.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	d.connected = false
	d.closing = true
	t := d.transport
	done := d.loopDone
	disp := d.disp
	d.mu.Unlock()

	err := t.Close()
	<-done
	d.slot.fail(att.ErrNotConnected)
	disp.close()

	logger.Info(d.prefix, "disconnected from %s", d.peer)
	if err != nil {
		return errors.Wrap(err, "close transport")
	}
	return nil
}

// Connected reports whether the device is connected and its receive loop alive
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected && d.loopErr == nil
}

// Done is closed when the receive loop of the current connection exits.
// It returns nil before the first Connect.
func (d *Device) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loopDone
}

// Err returns why the receive loop ended, if it has.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loopErr
}

// ClientMTU returns our receive MTU as last exchanged
func (d *Device) ClientMTU() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clientMTU
}

// ServerMTU returns the peer's receive MTU as last exchanged
func (d *Device) ServerMTU() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serverMTU
}

// MTU returns the effective ATT_MTU, the smaller of both sides.
func (d *Device) MTU() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.clientMTU < d.serverMTU {
		return d.clientMTU
	}
	return d.serverMTU
}

// SetMTU records the outcome of a successful MTU exchange. Values are
// clamped to [att.MinMTU, att.MaxMTU].
func (d *Device) SetMTU(client, server int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clientMTU = clampMTU(client)
	d.serverMTU = clampMTU(server)
	logger.Info(d.prefix, "MTU client=%d server=%d", d.clientMTU, d.serverMTU)
}

func clampMTU(mtu int) int {
	if mtu < att.MinMTU {
		return att.MinMTU
	}
	if mtu > att.MaxMTU {
		return att.MaxMTU
	}
	return mtu
}

// SendPDU writes one PDU without waiting for any response. A short write is
// reported as att.ErrIO.
func (d *Device) SendPDU(pdu []byte) error {
	if pdu == nil {
		return att.ErrNullArgument
	}
	if len(pdu) == 0 {
		return att.ErrBufferTooSmall
	}

	d.mu.Lock()
	t := d.transport
	connected := d.connected
	loopErr := d.loopErr
	mtu := d.clientMTU
	if d.serverMTU < mtu {
		mtu = d.serverMTU
	}
	d.mu.Unlock()

	if !connected {
		return att.ErrNotConnected
	}
	if loopErr != nil {
		return errors.Wrap(att.ErrNotConnected, loopErr.Error())
	}
	if len(pdu) > mtu {
		return errors.Wrapf(att.ErrInvalidArgument, "%s of %d bytes exceeds MTU %d",
			att.OpcodeName(pdu[0]), len(pdu), mtu)
	}

	d.trace("tx", pdu)

	d.writeMu.Lock()
	n, err := t.Write(pdu)
	d.writeMu.Unlock()

	if err != nil {
		logger.Warn(d.prefix, "❌ write %s failed: %v", att.OpcodeName(pdu[0]), err)
		d.stats.fail(err)
		return errors.Wrap(att.ErrIO, err.Error())
	}
	if n != len(pdu) {
		err := errors.Wrapf(att.ErrIO, "short write %d of %d bytes", n, len(pdu))
		d.stats.fail(err)
		return err
	}
	d.stats.sent()
	return nil
}

// SendAndWait sends a request and blocks until a PDU with the expected
// opcode arrives, the peer answers with an Error Response for this request,
// timeout elapses (0 waits forever) or ctx is done. Only one call may be in
// flight; a concurrent call fails with att.ErrBusy. The returned PDU is a
// copy owned by the caller.
func (d *Device) SendAndWait(ctx context.Context, pdu []byte, expected uint8, timeout time.Duration) ([]byte, error) {
	if pdu == nil {
		return nil, att.ErrNullArgument
	}
	if len(pdu) == 0 {
		return nil, att.ErrBufferTooSmall
	}

	p, err := d.slot.start(pdu[0], expected)
	if err != nil {
		return nil, err
	}
	d.stats.request()

	if err := d.SendPDU(pdu); err != nil {
		if r, ok := d.slot.abandon(p); ok {
			return r.pdu, r.err
		}
		return nil, err
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case r := <-p.done:
		if r.err != nil {
			logger.Debug(d.prefix, "%s failed: %v", att.OpcodeName(p.requested), r.err)
		}
		return r.pdu, r.err

	case <-timer:
		if r, ok := d.slot.abandon(p); ok {
			return r.pdu, r.err
		}
		logger.Warn(d.prefix, "⚠️  timeout after %v waiting for %s", timeout, att.OpcodeName(expected))
		d.stats.timeout()
		return nil, errors.Wrapf(att.ErrTimeout, "waiting for %s", att.OpcodeName(expected))

	case <-ctx.Done():
		if r, ok := d.slot.abandon(p); ok {
			return r.pdu, r.err
		}
		return nil, ctx.Err()
	}
}

// Request sends a request PDU and waits for its matching response using the
// default timeout.
func (d *Device) Request(ctx context.Context, pdu []byte) ([]byte, error) {
	if len(pdu) == 0 {
		return nil, att.ErrNullArgument
	}
	expected := att.GetResponseOpcode(pdu[0])
	if expected == 0 || !att.IsRequest(pdu[0]) {
		return nil, errors.Wrapf(att.ErrInvalidOpcode, "%s is not a request", att.OpcodeName(pdu[0]))
	}
	return d.SendAndWait(ctx, pdu, expected, d.opts.timeout)
}

// RegisterNotificationCallback enables notifications by writing the CCCD at
// configHandle with a Write Command and subscribes handler to valueHandle.
// The table holds at most WithMaxSubscriptions entries.
func (d *Device) RegisterNotificationCallback(configHandle, valueHandle att.Handle, handler NotificationHandler) error {
	if handler == nil {
		return att.ErrNullArgument
	}
	if d.subs.full() {
		return att.ErrFull
	}

	var buf [att.HandleValueHeaderSize + 2]byte
	n, err := att.BuildWriteCommand(buf[:], configHandle, cccdValue(0x0001))
	if err != nil {
		return err
	}
	if err := d.SendPDU(buf[:n]); err != nil {
		return err
	}
	return d.subs.add(subscription{valueHandle: valueHandle, handler: handler})
}

// RegisterIndicationCallback enables indications by writing the CCCD at
// configHandle with a Write Request and subscribes handler to valueHandle.
// Indications are confirmed automatically.
func (d *Device) RegisterIndicationCallback(ctx context.Context, configHandle, valueHandle att.Handle, handler NotificationHandler) error {
	if handler == nil {
		return att.ErrNullArgument
	}
	if d.subs.full() {
		return att.ErrFull
	}

	var buf [att.HandleValueHeaderSize + 2]byte
	n, err := att.BuildWriteRequest(buf[:], configHandle, cccdValue(0x0002))
	if err != nil {
		return err
	}
	if _, err := d.Request(ctx, buf[:n]); err != nil {
		return errors.Wrap(err, "enable indications")
	}
	return d.subs.add(subscription{valueHandle: valueHandle, indicate: true, handler: handler})
}

// Stats returns the counters of the current or last connection
func (d *Device) Stats() Stats {
	return d.stats.snapshot()
}

// Subscriptions returns the number of registered handlers
func (d *Device) Subscriptions() int {
	return d.subs.len()
}

func cccdValue(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// readLoop receives PDUs until the transport fails or closes
func (d *Device) readLoop(t Transport, disp dispatcher, done chan struct{}) {
	defer close(done)

	buf := make([]byte, att.MaxPDUSize)
	for {
		n, err := t.Read(buf)
		if err == nil && n == 0 {
			err = io.EOF
		}
		if err != nil {
			d.endLoop(err)
			return
		}
		d.handlePDU(buf[:n], disp)
	}
}

func (d *Device) endLoop(cause error) {
	d.mu.Lock()
	closing := d.closing
	d.loopErr = cause
	d.mu.Unlock()

	if closing {
		logger.Debug(d.prefix, "receive loop stopped")
		return
	}
	logger.Warn(d.prefix, "❌ receive loop ended: %v", cause)
	d.stats.fail(cause)
	d.slot.fail(errors.Wrap(att.ErrIO, cause.Error()))
}

// handlePDU classifies one received PDU
func (d *Device) handlePDU(pdu []byte, disp dispatcher) {
	d.trace("rx", pdu)
	d.stats.received(pdu[0])

	switch pdu[0] {
	case att.OpHandleValueNotification:
		d.deliver(pdu, disp)

	case att.OpHandleValueIndication:
		d.deliver(pdu, disp)
		var cfm [att.OpcodeOnlySize]byte
		n, _ := att.BuildHandleValueConfirmation(cfm[:])
		if err := d.SendPDU(cfm[:n]); err != nil {
			logger.Warn(d.prefix, "❌ indication confirmation failed: %v", err)
		}

	default:
		if !d.slot.complete(pdu) {
			logger.Debug(d.prefix, "discarded unsolicited %s (%d bytes)", att.OpcodeName(pdu[0]), len(pdu))
			d.stats.discarded()
		}
	}
}

// deliver passes a notification or indication value to its subscribers
func (d *Device) deliver(pdu []byte, disp dispatcher) {
	parse := att.ParseHandleValueNotification
	if pdu[0] == att.OpHandleValueIndication {
		parse = att.ParseHandleValueIndication
	}
	handle, n, err := parse(pdu, nil)
	if err != nil {
		logger.Debug(d.prefix, "malformed %s: %v", att.OpcodeName(pdu[0]), err)
		return
	}
	value := pdu[att.HandleValueHeaderSize : att.HandleValueHeaderSize+n]

	handlers := d.subs.lookup(handle)
	if len(handlers) == 0 {
		logger.Debug(d.prefix, "%s for unsubscribed handle 0x%04X", att.OpcodeName(pdu[0]), handle)
		return
	}
	for _, h := range handlers {
		disp.dispatch(h, value)
	}
}

func (d *Device) trace(direction string, pdu []byte) {
	if logger.Enabled(logger.TRACE) {
		arrow := "📤"
		if direction == "rx" {
			arrow = "📥"
		}
		logger.Trace(d.prefix, "%s %s %x", arrow, att.OpcodeName(pdu[0]), pdu)
	}
	if d.opts.tracer != nil {
		d.opts.tracer.TracePDU(direction, d.peer, pdu)
	}
}

func shortName(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[len(s)-8:]
}
