//go:build linux

package l2cap

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire"
	"golang.org/x/sys/unix"
)

// btSecurity is BT_SECURITY from <bluetooth/bluetooth.h>; x/sys does not
// export it.
const btSecurity = 4

// socket is an LE L2CAP SEQPACKET socket on the ATT fixed channel. Each
// read returns one PDU.
type socket struct {
	fd        int
	rmu       sync.Mutex
	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the ATT fixed channel of addr. The local side binds to
// the first adapter with a public address. Cancelling ctx aborts the connect.
func Dial(ctx context.Context, addr Address, opts DialOptions) (io.ReadWriteCloser, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, errors.Wrap(err, "l2cap: socket")
	}

	local := &unix.SockaddrL2{CID: ChannelATT, AddrType: AddrLEPublic}
	if err := unix.Bind(fd, local); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "l2cap: bind")
	}

	if opts.Security != SecuritySDP {
		// struct bt_security { uint8_t level; uint8_t key_size; }
		sec := string([]byte{opts.Security, 0})
		if err := unix.SetsockoptString(fd, unix.SOL_BLUETOOTH, btSecurity, sec); err != nil {
			unix.Close(fd)
			return nil, errors.Wrap(err, "l2cap: set security level")
		}
	}

	addrType := opts.AddrType
	if addrType == 0 {
		addrType = AddrLEPublic
	}
	remote := &unix.SockaddrL2{CID: ChannelATT, Addr: [6]uint8(addr), AddrType: addrType}

	res := make(chan error, 1)
	go func() { res <- unix.Connect(fd, remote) }()

	select {
	case err := <-res:
		if err != nil {
			unix.Close(fd)
			return nil, errors.Wrapf(err, "l2cap: connect %s", addr)
		}
	case <-ctx.Done():
		unix.Shutdown(fd, unix.SHUT_RDWR)
		<-res
		unix.Close(fd)
		return nil, ctx.Err()
	}

	logger.Debug(streamPrefix, "socket connected to %s (type %d, security %d)", addr, addrType, opts.Security)
	return &socket{fd: fd}, nil
}

// Dialer returns a DialFunc bound to addr.
func Dialer(addr Address, opts DialOptions) wire.DialFunc {
	return func(ctx context.Context) (wire.Transport, error) {
		return Dial(ctx, addr, opts)
	}
}

func (s *socket) Read(b []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	for {
		n, err := unix.Read(s.fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func (s *socket) Write(b []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := unix.Write(s.fd, b)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Close shuts the socket down first so a blocked Read returns.
func (s *socket) Close() error {
	s.closeOnce.Do(func() {
		unix.Shutdown(s.fd, unix.SHUT_RDWR)
		s.closeErr = unix.Close(s.fd)
	})
	return s.closeErr
}
