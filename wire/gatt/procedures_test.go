package gatt_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/user/gattclient/wire"
	"github.com/user/gattclient/wire/att"
	"github.com/user/gattclient/wire/gatt"
	"github.com/user/gattclient/wire/gatt/gatttest"
)

var (
	customService = att.UUID128(uuid.MustParse("E621E1F8-C36C-495A-93FC-0C247A3E6E5F"))
	customChar    = att.UUID128(uuid.MustParse("E621E1F8-C36C-495A-93FC-0C247A3E6E5D"))
	heartRate     = att.UUID16(0x2A37)
	batteryLevel  = att.UUID16(0x2A19)
)

// Handle layout of testServices:
//
//	0x0001-0x0005 Generic Access: name value 0x0003, appearance 0x0005
//	0x0006-0x0009 Generic Attribute: service changed 0x0008, CCCD 0x0009
//	0x000A-0x0011 custom: include 0x000B, custom char 0x000D,
//	              heart rate 0x000F, user description 0x0010, CCCD 0x0011
//	0x0012-0x0015 battery: include of custom 0x0013, level 0x0015
func testServices() []gatttest.Service {
	return []gatttest.Service{
		gatttest.NewGenericAccessService("gattctl", 0x0341),
		gatttest.NewGenericAttributeService(),
		{
			UUID:     customService,
			Primary:  true,
			Includes: []int{0},
			Characteristics: []gatttest.Characteristic{
				{
					UUID:       customChar,
					Properties: gatt.PropRead | gatt.PropWrite | gatt.PropWriteWithoutResponse | gatt.PropAuthenticatedSignedWrites,
					Value:      pattern(100),
				},
				{
					UUID:       heartRate,
					Properties: gatt.PropNotify,
					Descriptors: []gatttest.Descriptor{
						{UUID: gatt.UUIDCharUserDescription, Value: []byte("bpm")},
					},
				},
			},
		},
		{
			UUID:     att.UUID16(0x180F),
			Primary:  true,
			Includes: []int{2},
			Characteristics: []gatttest.Characteristic{
				{UUID: batteryLevel, Properties: gatt.PropRead, Value: []byte{0x64}},
			},
		},
	}
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

// newSession serves testServices over a pipe and returns a connected device
func newSession(t *testing.T, opts ...gatttest.PeerOption) (*wire.Device, *gatttest.Peer) {
	t.Helper()
	db := gatttest.NewDatabase()
	gatttest.Build(db, testServices())
	peer := gatttest.NewPeer(db, opts...)

	local, remote := wire.Pipe()
	go peer.Serve(remote)

	dev := wire.NewDevice("11:22:33:44:55:66", wire.WithTimeout(2*time.Second))
	require.NoError(t, dev.Connect(context.Background(), func(context.Context) (wire.Transport, error) {
		return local, nil
	}))
	t.Cleanup(func() { dev.Disconnect() })
	return dev, peer
}

func TestExchangeMTU(t *testing.T) {
	dev, peer := newSession(t, gatttest.WithServerMTU(100))

	mtu, err := gatt.ExchangeMTU(context.Background(), dev, 185)
	require.NoError(t, err)
	assert.Equal(t, 100, mtu)
	assert.Equal(t, 185, dev.ClientMTU())
	assert.Equal(t, 100, dev.ServerMTU())
	assert.Equal(t, 100, peer.MTU())

	_, err = gatt.ExchangeMTU(context.Background(), dev, 10)
	assert.True(t, errors.Is(err, att.ErrInvalidArgument))
}

func TestDiscoverAllPrimaryServices(t *testing.T) {
	dev, _ := newSession(t)

	services, err := gatt.DiscoverAllPrimaryServices(context.Background(), dev)
	require.NoError(t, err)
	require.Len(t, services, 4)

	assert.True(t, services[0].UUID.Equal(att.UUID16(0x1800)))
	assert.Equal(t, att.HandleRange{Start: 0x0001, End: 0x0005}, services[0].Range())
	assert.Equal(t, att.HandleRange{Start: 0x0006, End: 0x0009}, services[1].Range())
	assert.True(t, services[2].UUID.Equal(customService))
	assert.Equal(t, att.UUIDFormat128, services[2].UUID.Format)
	assert.Equal(t, att.HandleRange{Start: 0x000A, End: 0x0011}, services[2].Range())
	assert.Equal(t, att.HandleRange{Start: 0x0012, End: 0x0015}, services[3].Range())
}

func TestDiscoverPrimaryServiceByUUID(t *testing.T) {
	dev, _ := newSession(t)

	services, err := gatt.DiscoverPrimaryServiceByUUID(context.Background(), dev, att.UUID16(0x180F))
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, att.HandleRange{Start: 0x0012, End: 0x0015}, services[0].Range())

	services, err = gatt.DiscoverPrimaryServiceByUUID(context.Background(), dev, att.UUID16(0x180D))
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestFindIncludedServices(t *testing.T) {
	dev, _ := newSession(t)
	ctx := context.Background()

	incs, err := gatt.FindIncludedServices(ctx, dev, gatt.Service{StartHandle: 0x000A, EndHandle: 0x0011})
	require.NoError(t, err)
	require.Len(t, incs, 1)
	assert.Equal(t, gatt.IncludedService{Handle: 0x000B, StartHandle: 0x0001, EndHandle: 0x0005, UUID: att.UUID16(0x1800)}, incs[0])

	// a 128-bit included service UUID is fetched with a Read Request
	incs, err = gatt.FindIncludedServices(ctx, dev, gatt.Service{StartHandle: 0x0012, EndHandle: 0x0015})
	require.NoError(t, err)
	require.Len(t, incs, 1)
	assert.Equal(t, att.Handle(0x000A), incs[0].StartHandle)
	assert.True(t, incs[0].UUID.Equal(customService))
}

func TestDiscoverCharacteristicsAndDescriptors(t *testing.T) {
	dev, _ := newSession(t)
	ctx := context.Background()
	svc := gatt.Service{UUID: customService, StartHandle: 0x000A, EndHandle: 0x0011}

	chars, err := gatt.DiscoverAllCharacteristics(ctx, dev, svc)
	require.NoError(t, err)
	require.Len(t, chars, 2)

	assert.True(t, chars[0].UUID.Equal(customChar))
	assert.Equal(t, att.Handle(0x000C), chars[0].Handle)
	assert.Equal(t, att.Handle(0x000D), chars[0].ValueHandle)
	assert.Equal(t, att.Handle(0x000D), chars[0].EndHandle)

	assert.True(t, chars[1].UUID.Equal(heartRate))
	assert.Equal(t, uint8(gatt.PropNotify), chars[1].Properties)
	assert.Equal(t, att.Handle(0x000F), chars[1].ValueHandle)
	assert.Equal(t, att.Handle(0x0011), chars[1].EndHandle)

	descs, err := gatt.DiscoverDescriptors(ctx, dev, chars[1])
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, gatt.Descriptor{UUID: gatt.UUIDCharUserDescription, Handle: 0x0010}, descs[0])
	assert.Equal(t, gatt.Descriptor{UUID: gatt.UUIDClientCharacteristicConfig, Handle: 0x0011}, descs[1])

	descs, err = gatt.DiscoverDescriptors(ctx, dev, chars[0])
	require.NoError(t, err)
	assert.Empty(t, descs)

	byUUID, err := gatt.DiscoverCharacteristicsByUUID(ctx, dev, svc, heartRate.Expand())
	require.NoError(t, err)
	require.Len(t, byUUID, 1)
	assert.Equal(t, att.Handle(0x000F), byUUID[0].ValueHandle)
}

func TestDiscoverAllDescriptorsMixedFormats(t *testing.T) {
	dev, _ := newSession(t)

	// 0x000C..0x0011 mixes 16-bit types with the 128-bit custom value type,
	// so the peer splits the answer across several Find Information responses
	descs, err := gatt.DiscoverAllDescriptors(context.Background(), dev, att.HandleRange{Start: 0x000C, End: 0x0011})
	require.NoError(t, err)
	require.Len(t, descs, 6)
	assert.True(t, descs[1].UUID.Equal(customChar))
	assert.Equal(t, att.Handle(0x0011), descs[5].Handle)

	_, err = gatt.DiscoverAllDescriptors(context.Background(), dev, att.HandleRange{Start: 5, End: 4})
	assert.True(t, errors.Is(err, att.ErrInvalidArgument))
}

func TestDiscoverProfile(t *testing.T) {
	dev, _ := newSession(t)

	p, err := gatt.DiscoverProfile(context.Background(), dev)
	require.NoError(t, err)
	require.Len(t, p.Services, 4)

	hr, ok := p.FindCharacteristic(heartRate)
	require.True(t, ok)
	cccd, ok := hr.CCCD()
	require.True(t, ok)
	assert.Equal(t, att.Handle(0x0011), cccd)

	sc, ok := p.FindCharacteristic(att.UUID16(0x2A05))
	require.True(t, ok)
	assert.True(t, sc.CanIndicate())

	svc, ok := p.FindService(att.UUID16(0x180F))
	require.True(t, ok)
	require.Len(t, svc.Includes, 1)
	assert.True(t, svc.Includes[0].UUID.Equal(customService))
}

func TestReadProcedures(t *testing.T) {
	dev, _ := newSession(t)
	ctx := context.Background()

	name, err := gatt.ReadCharacteristicValue(ctx, dev, 0x0003)
	require.NoError(t, err)
	assert.Equal(t, []byte("gattctl"), name)

	// a plain read stops at MTU-1
	short, err := gatt.ReadCharacteristicValue(ctx, dev, 0x000D)
	require.NoError(t, err)
	assert.Equal(t, pattern(22), short)

	long, err := gatt.ReadLongCharacteristicValue(ctx, dev, 0x000D)
	require.NoError(t, err)
	assert.Equal(t, pattern(100), long)

	h, level, err := gatt.ReadUsingCharacteristicUUID(ctx, dev, att.FullRange, batteryLevel)
	require.NoError(t, err)
	assert.Equal(t, att.Handle(0x0015), h)
	assert.Equal(t, []byte{0x64}, level)

	_, _, err = gatt.ReadUsingCharacteristicUUID(ctx, dev, att.FullRange, gatt.UUIDCharacteristic)
	assert.True(t, errors.Is(err, att.ErrUnexpectedResponse), "got %v", err)

	multi, err := gatt.ReadMultiple(ctx, dev, []att.Handle{0x0003, 0x0005})
	require.NoError(t, err)
	assert.Equal(t, append([]byte("gattctl"), 0x41, 0x03), multi)

	desc, err := gatt.ReadCharacteristicDescriptor(ctx, dev, 0x0010)
	require.NoError(t, err)
	assert.Equal(t, []byte("bpm"), desc)
}

func TestReadLongExactMultiple(t *testing.T) {
	dev, peer := newSession(t)
	peer.DB().Set(0x000D, pattern(44))

	v, err := gatt.ReadLongCharacteristicValue(context.Background(), dev, 0x000D)
	require.NoError(t, err)
	assert.Equal(t, pattern(44), v)
}

func TestReadErrorResponse(t *testing.T) {
	dev, _ := newSession(t)

	_, err := gatt.ReadCharacteristicValue(context.Background(), dev, 0x000F)
	require.Error(t, err)
	assert.True(t, errors.Is(err, att.ErrATT))
	assert.True(t, att.IsATTError(err, att.EcodeReadNotPermitted))

	_, err = gatt.ReadCharacteristicValue(context.Background(), dev, 0x0100)
	assert.Equal(t, uint8(att.EcodeInvalidHandle), att.GetErrorCode(err))
}

func TestWriteProcedures(t *testing.T) {
	dev, peer := newSession(t)
	ctx := context.Background()

	require.NoError(t, gatt.WriteCharacteristicValue(ctx, dev, 0x000D, []byte("hello")))
	assert.Equal(t, []byte("hello"), peer.DB().Value(0x000D))

	require.NoError(t, gatt.WriteWithoutResponse(dev, 0x000D, []byte("cmd")))
	require.Eventually(t, func() bool {
		return bytes.Equal(peer.DB().Value(0x000D), []byte("cmd"))
	}, time.Second, 5*time.Millisecond)

	err := gatt.WriteWithoutResponse(dev, 0x000D, pattern(21))
	assert.True(t, errors.Is(err, att.ErrInvalidArgument))

	err = gatt.WriteCharacteristicValue(ctx, dev, 0x0003, []byte("x"))
	assert.True(t, att.IsATTError(err, att.EcodeWriteNotPermitted))

	require.NoError(t, gatt.WriteCharacteristicDescriptor(ctx, dev, 0x0010, []byte("beats")))
	assert.Equal(t, []byte("beats"), peer.DB().Value(0x0010))
}

func TestWriteLong(t *testing.T) {
	dev, peer := newSession(t)

	value := pattern(60)
	require.NoError(t, gatt.WriteLongCharacteristicValue(context.Background(), dev, 0x000D, value))
	assert.Equal(t, value, peer.DB().Value(0x000D))

	// 60 bytes at MTU 23 go out as 18+18+18+6, then the commit
	reqs := peer.Requests()
	assert.Equal(t, []uint8{
		att.OpPrepareWriteRequest, att.OpPrepareWriteRequest,
		att.OpPrepareWriteRequest, att.OpPrepareWriteRequest,
		att.OpExecuteWriteRequest,
	}, reqs)
}

func TestWriteLongEchoMismatchCancels(t *testing.T) {
	tamper := func(req, rsp []byte) []byte {
		if rsp[0] == att.OpPrepareWriteResponse {
			rsp[len(rsp)-1] ^= 0xFF
		}
		return rsp
	}
	dev, peer := newSession(t, gatttest.WithResponseFilter(tamper))
	before := peer.DB().Value(0x000D)

	err := gatt.WriteLongCharacteristicValue(context.Background(), dev, 0x000D, pattern(40))
	assert.True(t, errors.Is(err, att.ErrIncompleteWrite), "got %v", err)
	assert.Equal(t, before, peer.DB().Value(0x000D))

	reqs := peer.Requests()
	assert.Equal(t, []uint8{att.OpPrepareWriteRequest, att.OpExecuteWriteRequest}, reqs)
}

func TestReliableWrites(t *testing.T) {
	dev, peer := newSession(t)

	err := gatt.ReliableWrites(context.Background(), dev, []att.PrepareWrite{
		{Handle: 0x000D, Value: []byte("one")},
		{Handle: 0x0010, Value: []byte("two")},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), peer.DB().Value(0x000D))
	assert.Equal(t, []byte("two"), peer.DB().Value(0x0010))

	err = gatt.ReliableWrites(context.Background(), dev, []att.PrepareWrite{{Handle: 0x000D, Value: pattern(19)}})
	assert.True(t, errors.Is(err, att.ErrInvalidArgument))

	// a rejected part cancels the whole queue
	err = gatt.ReliableWrites(context.Background(), dev, []att.PrepareWrite{
		{Handle: 0x000D, Value: []byte("three")},
		{Handle: 0x0003, Value: []byte("nope")},
	})
	assert.True(t, att.IsATTError(err, att.EcodeWriteNotPermitted))
	assert.Equal(t, []byte("one"), peer.DB().Value(0x000D))
}

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) Sign(message []byte, counter uint32) (att.Signature, error) {
	args := m.Called(message, counter)
	return args.Get(0).(att.Signature), args.Error(1)
}

func TestSignedWrite(t *testing.T) {
	dev, peer := newSession(t)

	var sig att.Signature
	copy(sig[:], "0123456789ab")
	signer := &mockSigner{}
	signer.On("Sign", []byte{att.OpSignedWriteCommand, 0x0D, 0x00, 's', 'g'}, uint32(7)).Return(sig, nil)

	w := gatt.NewSignedWriter(signer, 7)
	require.NoError(t, w.Write(dev, 0x000D, []byte("sg")))
	assert.Equal(t, uint32(8), w.Counter())

	require.Eventually(t, func() bool {
		return len(peer.Signatures()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, sig, peer.Signatures()[0])
	assert.Equal(t, []byte("sg"), peer.DB().Value(0x000D))
	signer.AssertExpectations(t)

	assert.Equal(t, att.ErrNotImplemented, gatt.NewSignedWriter(nil, 0).Write(dev, 0x000D, nil))
}

func TestNotificationSubscription(t *testing.T) {
	dev, peer := newSession(t)

	got := make(chan []byte, 1)
	require.NoError(t, dev.RegisterNotificationCallback(0x0011, 0x000F, func(v []byte) {
		got <- append([]byte(nil), v...)
	}))
	require.Eventually(t, func() bool {
		return peer.CCCD().IsNotifyEnabled(0x000F)
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, peer.Notify(0x000F, []byte{0x00, 72}))
	select {
	case v := <-got:
		assert.Equal(t, []byte{0x00, 72}, v)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	notify, indicate, err := gatt.ReadCCCD(context.Background(), dev, gatt.Characteristic{
		UUID:        heartRate,
		Descriptors: []gatt.Descriptor{{UUID: gatt.UUIDClientCharacteristicConfig, Handle: 0x0011}},
	})
	require.NoError(t, err)
	assert.True(t, notify)
	assert.False(t, indicate)
}

func TestIndicationSubscription(t *testing.T) {
	dev, peer := newSession(t)

	got := make(chan []byte, 1)
	require.NoError(t, dev.RegisterIndicationCallback(context.Background(), 0x0009, 0x0008, func(v []byte) {
		got <- append([]byte(nil), v...)
	}))
	assert.True(t, peer.CCCD().IsIndicateEnabled(0x0008))

	require.NoError(t, peer.Indicate(0x0008, []byte{0x01, 0x00, 0xFF, 0xFF}, time.Second))
	assert.Equal(t, []byte{0x01, 0x00, 0xFF, 0xFF}, <-got)

	sc := gatt.Characteristic{
		UUID:        att.UUID16(0x2A05),
		Descriptors: []gatt.Descriptor{{UUID: gatt.UUIDClientCharacteristicConfig, Handle: 0x0009}},
	}
	require.NoError(t, gatt.DisableCCCD(context.Background(), dev, sc))
	assert.False(t, peer.CCCD().IsIndicateEnabled(0x0008))
}

func TestRequestTimeout(t *testing.T) {
	drop := func(req, rsp []byte) []byte {
		if req[0] == att.OpReadRequest {
			return nil
		}
		return rsp
	}
	db := gatttest.NewDatabase()
	gatttest.Build(db, testServices())
	peer := gatttest.NewPeer(db, gatttest.WithResponseFilter(drop))
	local, remote := wire.Pipe()
	go peer.Serve(remote)

	dev := wire.NewDevice("timeout", wire.WithTimeout(50*time.Millisecond))
	require.NoError(t, dev.Connect(context.Background(), func(context.Context) (wire.Transport, error) {
		return local, nil
	}))
	defer dev.Disconnect()

	_, err := gatt.ReadCharacteristicValue(context.Background(), dev, 0x0003)
	assert.True(t, errors.Is(err, att.ErrTimeout), "got %v", err)

	// the session stays usable
	require.NoError(t, gatt.WriteCharacteristicValue(context.Background(), dev, 0x000D, []byte("ok")))
}

// replayRequester answers every request with the same response PDU
type replayRequester struct {
	rsp   []byte
	calls int
}

func (r *replayRequester) Request(ctx context.Context, pdu []byte) ([]byte, error) {
	r.calls++
	if r.calls > 10 {
		return nil, att.ErrIO
	}
	return r.rsp, nil
}

func (r *replayRequester) SendPDU(pdu []byte) error  { return nil }
func (r *replayRequester) MTU() int                  { return att.MinMTU }
func (r *replayRequester) SetMTU(client, server int) {}

func TestDiscoveryRejectsHandlesBeforeStart(t *testing.T) {
	svc := gatt.Service{StartHandle: 0x0010, EndHandle: 0x0020}
	ctx := context.Background()

	response := func(build func([]byte) (int, error)) []byte {
		buf := make([]byte, att.MinMTU)
		n, err := build(buf)
		require.NoError(t, err)
		return buf[:n]
	}

	tests := []struct {
		name string
		rsp  []byte
		run  func(r gatt.Requester) error
	}{
		{
			"characteristics",
			response(func(b []byte) (int, error) {
				return att.BuildReadByTypeResponse(b, 7, 1, []byte{0x01, 0x00, gatt.PropRead, 0x02, 0x00, 0x19, 0x2A})
			}),
			func(r gatt.Requester) error {
				_, err := gatt.DiscoverAllCharacteristics(ctx, r, svc)
				return err
			},
		},
		{
			"includes",
			response(func(b []byte) (int, error) {
				return att.BuildReadByTypeResponse(b, 8, 1, []byte{0x01, 0x00, 0x30, 0x00, 0x35, 0x00, 0x0F, 0x18})
			}),
			func(r gatt.Requester) error {
				_, err := gatt.FindIncludedServices(ctx, r, svc)
				return err
			},
		},
		{
			"descriptors",
			response(func(b []byte) (int, error) {
				return att.BuildFindInformationResponse(b, att.FindInfoFormat16, 1, []byte{0x01, 0x00, 0x02, 0x29})
			}),
			func(r gatt.Requester) error {
				_, err := gatt.DiscoverAllDescriptors(ctx, r, svc.Range())
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &replayRequester{rsp: tt.rsp}
			err := tt.run(r)
			assert.True(t, errors.Is(err, att.ErrUnexpectedResponse), "got %v", err)
			assert.Equal(t, 1, r.calls)
		})
	}
}
