package wire

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gattclient/wire/att"
)

// connectPipe connects a new Device to one end of a pipe and returns the
// other end for the test to play the peer.
func connectPipe(t *testing.T, opts ...Option) (*Device, Transport) {
	t.Helper()
	local, remote := Pipe()
	d := NewDevice("AA:BB:CC:DD:EE:FF", opts...)
	err := d.Connect(context.Background(), func(context.Context) (Transport, error) {
		return local, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Disconnect() })
	return d, remote
}

func readPDU(t *testing.T, tr Transport) []byte {
	t.Helper()
	buf := make([]byte, att.MaxPDUSize)
	n, err := tr.Read(buf)
	require.NoError(t, err)
	return buf[:n]
}

func readRequest(t *testing.T, handle att.Handle) []byte {
	t.Helper()
	buf := make([]byte, att.MinMTU)
	n, err := att.BuildReadRequest(buf, handle)
	require.NoError(t, err)
	return buf[:n]
}

func TestConnectDialError(t *testing.T) {
	d := NewDevice("peer")
	dialErr := errors.New("no route")
	err := d.Connect(context.Background(), func(context.Context) (Transport, error) {
		return nil, dialErr
	})
	assert.Equal(t, dialErr, err)
	assert.False(t, d.Connected())
	assert.Equal(t, att.ErrNotConnected, d.SendPDU([]byte{att.OpHandleValueConfirmation}))
}

func TestConnectInitializesMTU(t *testing.T) {
	d, _ := connectPipe(t)
	assert.True(t, d.Connected())
	assert.Equal(t, att.MinMTU, d.ClientMTU())
	assert.Equal(t, att.MinMTU, d.ServerMTU())

	d.SetMTU(517, 100)
	assert.Equal(t, att.MaxMTU, d.ClientMTU())
	assert.Equal(t, 100, d.MTU())
}

func TestSendPDURejectsOversized(t *testing.T) {
	d, _ := connectPipe(t)
	err := d.SendPDU(make([]byte, att.MinMTU+1))
	assert.True(t, errors.Is(err, att.ErrInvalidArgument), "got %v", err)
}

func TestRequestSkipsUnrelatedPDUs(t *testing.T) {
	d, peer := connectPipe(t)
	req := readRequest(t, 0x0003)

	go func() {
		pdu := readPDU(t, peer)
		if pdu[0] != att.OpReadRequest {
			return
		}
		// Write Response is not what a Read Request expects
		peer.Write([]byte{att.OpWriteResponse})
		// Error Response for some other request
		peer.Write([]byte{att.OpErrorResponse, att.OpWriteRequest, 0x03, 0x00, att.EcodeInvalidHandle})
		peer.Write([]byte{att.OpReadResponse, 'o', 'k'})
	}()

	rsp, err := d.Request(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte{att.OpReadResponse, 'o', 'k'}, rsp)
}

func TestRequestMapsErrorResponse(t *testing.T) {
	d, peer := connectPipe(t)
	req := readRequest(t, 0x0010)

	go func() {
		readPDU(t, peer)
		peer.Write([]byte{att.OpErrorResponse, att.OpReadRequest, 0x10, 0x00, att.EcodeReadNotPermitted})
	}()

	_, err := d.Request(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, att.ErrATT))
	assert.True(t, errors.Is(err, att.ATTStatus(att.EcodeReadNotPermitted)))
	assert.Equal(t, uint8(att.EcodeReadNotPermitted), att.GetErrorCode(err))

	var attErr *att.Error
	require.True(t, errors.As(err, &attErr))
	assert.Equal(t, att.Handle(0x0010), attErr.Handle)
	assert.Equal(t, 1, d.Stats().ErrorResponses)
}

func TestSecondRequestIsBusy(t *testing.T) {
	d, peer := connectPipe(t)

	first := make(chan error, 1)
	go func() {
		_, err := d.Request(context.Background(), readRequest(t, 1))
		first <- err
	}()

	readPDU(t, peer)
	_, err := d.Request(context.Background(), readRequest(t, 2))
	assert.Equal(t, att.ErrBusy, err)

	peer.Write([]byte{att.OpReadResponse})
	assert.NoError(t, <-first)
}

func TestTimeoutReleasesSlot(t *testing.T) {
	d, peer := connectPipe(t)

	_, err := d.SendAndWait(context.Background(), readRequest(t, 1), att.OpReadResponse, 20*time.Millisecond)
	assert.True(t, errors.Is(err, att.ErrTimeout), "got %v", err)
	readPDU(t, peer)

	// The late response has nobody to go to
	peer.Write([]byte{att.OpReadResponse, 0xEE})

	go func() {
		readPDU(t, peer)
		peer.Write([]byte{att.OpReadResponse, 0x01})
	}()
	time.Sleep(10 * time.Millisecond)
	rsp, err := d.SendAndWait(context.Background(), readRequest(t, 1), att.OpReadResponse, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{att.OpReadResponse, 0x01}, rsp)

	st := d.Stats()
	assert.Equal(t, 2, st.Requests)
	assert.Equal(t, 1, st.Timeouts)
	assert.Equal(t, 2, st.PDUsSent)
	assert.Equal(t, 2, st.PDUsReceived)
	assert.Equal(t, 1, st.Discarded)
	assert.False(t, st.ConnectedAt.IsZero())
}

func TestContextCancelReleasesSlot(t *testing.T) {
	d, _ := connectPipe(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.SendAndWait(ctx, readRequest(t, 1), att.OpReadResponse, 0)
	assert.Equal(t, context.Canceled, err)

	// the slot can be claimed again
	p, err := d.slot.start(att.OpReadRequest, att.OpReadResponse)
	require.NoError(t, err)
	d.slot.abandon(p)
}

func TestNotificationFanOut(t *testing.T) {
	d, peer := connectPipe(t)

	var mu sync.Mutex
	got := map[string][]byte{}
	wg := sync.WaitGroup{}
	wg.Add(2)

	require.NoError(t, d.RegisterNotificationCallback(0x0011, 0x0010, func(v []byte) {
		mu.Lock()
		got["a"] = append([]byte(nil), v...)
		mu.Unlock()
		wg.Done()
	}))
	require.NoError(t, d.RegisterNotificationCallback(0x0021, 0x0020, func(v []byte) {
		mu.Lock()
		got["b"] = append([]byte(nil), v...)
		mu.Unlock()
		wg.Done()
	}))

	// CCCD writes go out as Write Commands enabling notifications
	assert.Equal(t, []byte{att.OpWriteCommand, 0x11, 0x00, 0x01, 0x00}, readPDU(t, peer))
	assert.Equal(t, []byte{att.OpWriteCommand, 0x21, 0x00, 0x01, 0x00}, readPDU(t, peer))

	peer.Write([]byte{att.OpHandleValueNotification, 0x30, 0x00, 0xFF})
	peer.Write([]byte{att.OpHandleValueNotification, 0x20, 0x00, 0xBB})
	peer.Write([]byte{att.OpHandleValueNotification, 0x10, 0x00, 0xAA, 0xAB})
	wg.Wait()

	assert.Equal(t, []byte{0xAA, 0xAB}, got["a"])
	assert.Equal(t, []byte{0xBB}, got["b"])
}

func TestSubscriptionTableFull(t *testing.T) {
	d, peer := connectPipe(t)
	go func() {
		buf := make([]byte, att.MaxPDUSize)
		for {
			if _, err := peer.Read(buf); err != nil {
				return
			}
		}
	}()

	noop := func([]byte) {}
	for i := 0; i < DefaultMaxSubscriptions; i++ {
		require.NoError(t, d.RegisterNotificationCallback(att.Handle(2*i+2), att.Handle(2*i+1), noop))
	}
	assert.Equal(t, att.ErrFull, d.RegisterNotificationCallback(0x0100, 0x00FF, noop))
	assert.Equal(t, DefaultMaxSubscriptions, d.Subscriptions())
}

func TestIndicationIsConfirmed(t *testing.T) {
	d, peer := connectPipe(t)

	go func() {
		pdu := readPDU(t, peer)
		if pdu[0] == att.OpWriteRequest {
			peer.Write([]byte{att.OpWriteResponse})
		}
	}()

	received := make(chan []byte, 1)
	err := d.RegisterIndicationCallback(context.Background(), 0x0009, 0x0008, func(v []byte) {
		received <- append([]byte(nil), v...)
	})
	require.NoError(t, err)

	peer.Write([]byte{att.OpHandleValueIndication, 0x08, 0x00, 0x42})
	assert.Equal(t, []byte{0x42}, <-received)
	assert.Equal(t, []byte{att.OpHandleValueConfirmation}, readPDU(t, peer))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	d, _ := connectPipe(t)
	assert.NoError(t, d.Disconnect())
	assert.NoError(t, d.Disconnect())
	assert.False(t, d.Connected())

	select {
	case <-d.Done():
	default:
		t.Fatal("receive loop still running after Disconnect")
	}
}

func TestPeerCloseFailsPendingRequest(t *testing.T) {
	d, peer := connectPipe(t)

	go func() {
		readPDU(t, peer)
		peer.Close()
	}()

	_, err := d.Request(context.Background(), readRequest(t, 1))
	assert.True(t, errors.Is(err, att.ErrIO), "got %v", err)

	<-d.Done()
	assert.False(t, d.Connected())
	assert.Error(t, d.Err())
}

// zeroReadTransport returns (0, nil) from Read once released
type zeroReadTransport struct {
	writes  chan []byte
	release chan struct{}
}

func (z *zeroReadTransport) Read(b []byte) (int, error) {
	<-z.release
	return 0, nil
}

func (z *zeroReadTransport) Write(b []byte) (int, error) {
	z.writes <- append([]byte(nil), b...)
	return len(b), nil
}

func (z *zeroReadTransport) Close() error { return nil }

func TestZeroLengthReadEndsLoop(t *testing.T) {
	z := &zeroReadTransport{writes: make(chan []byte, 1), release: make(chan struct{})}
	d := NewDevice("zero")
	require.NoError(t, d.Connect(context.Background(), func(context.Context) (Transport, error) {
		return z, nil
	}))
	t.Cleanup(func() { d.Disconnect() })

	go func() {
		<-z.writes
		close(z.release)
	}()

	_, err := d.Request(context.Background(), readRequest(t, 1))
	assert.True(t, errors.Is(err, att.ErrIO), "got %v", err)

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("receive loop still running")
	}
	assert.Equal(t, io.EOF, d.Err())
}

func TestConnectDoesNotHoldLockWhileDialing(t *testing.T) {
	d := NewDevice("slow")
	dialing := make(chan struct{})
	proceed := make(chan struct{})
	local, remote := Pipe()
	t.Cleanup(func() { remote.Close() })

	result := make(chan error, 1)
	go func() {
		result <- d.Connect(context.Background(), func(context.Context) (Transport, error) {
			close(dialing)
			<-proceed
			return local, nil
		})
	}()
	<-dialing

	// accessors answer while the dial is in progress
	assert.False(t, d.Connected())
	assert.Equal(t, att.MinMTU, d.MTU())
	assert.Equal(t, 0, d.Stats().PDUsSent)

	err := d.Connect(context.Background(), func(context.Context) (Transport, error) {
		t.Error("second dial started")
		return nil, io.EOF
	})
	assert.True(t, errors.Is(err, att.ErrInvalidArgument), "got %v", err)

	close(proceed)
	require.NoError(t, <-result)
	assert.True(t, d.Connected())
	require.NoError(t, d.Disconnect())
}

func TestAsyncNotifications(t *testing.T) {
	d, peer := connectPipe(t, WithAsyncNotifications(8))

	var count int32
	done := make(chan struct{})
	require.NoError(t, d.RegisterNotificationCallback(0x0002, 0x0001, func(v []byte) {
		if atomic.AddInt32(&count, 1) == 3 {
			close(done)
		}
	}))
	readPDU(t, peer)

	for i := 0; i < 3; i++ {
		peer.Write([]byte{att.OpHandleValueNotification, 0x01, 0x00, byte(i)})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("got %d notifications, want 3", atomic.LoadInt32(&count))
	}
}

type recordingTracer struct {
	mu   sync.Mutex
	dirs []string
}

func (r *recordingTracer) TracePDU(direction, peer string, pdu []byte) {
	r.mu.Lock()
	r.dirs = append(r.dirs, direction)
	r.mu.Unlock()
}

func TestTracerSeesBothDirections(t *testing.T) {
	tr := &recordingTracer{}
	d, peer := connectPipe(t, WithTracer(tr))

	go func() {
		readPDU(t, peer)
		peer.Write([]byte{att.OpReadResponse})
	}()
	_, err := d.Request(context.Background(), readRequest(t, 1))
	require.NoError(t, err)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, []string{"tx", "rx"}, tr.dirs)
}
