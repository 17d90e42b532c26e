package main

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire"
	"github.com/user/gattclient/wire/debug"
	"github.com/user/gattclient/wire/gatt"
	"github.com/user/gattclient/wire/l2cap"
	"github.com/user/gattclient/wire/wsconn"
)

const logPrefix = "gattctl"

var (
	errNoAddr    = errors.New("no peer address; use --addr")
	errNoHandle  = errors.New("no handle; use --handle")
	errNoUUID    = errors.New("no UUID; use --uuid")
	errNoValue   = errors.New("no value; use --value")
	errNotFound  = errors.New("characteristic not found")
	errNoCCCD    = errors.New("characteristic has no configuration descriptor")
	errTransport = errors.New("unknown transport")
)

// session is one connection to the peer named by the global flags.
type session struct {
	dev       *wire.Device
	tracer    *debug.Tracer
	showStats bool
}

func dialer(c *cli.Context) (wire.DialFunc, error) {
	addr := c.GlobalString("addr")
	if addr == "" {
		return nil, errNoAddr
	}

	switch c.GlobalString("transport") {
	case "l2cap":
		bd, err := l2cap.ParseAddress(addr)
		if err != nil {
			return nil, err
		}
		addrType, err := l2cap.ParseAddrType(c.GlobalString("addr-type"))
		if err != nil {
			return nil, err
		}
		return l2cap.Dialer(bd, l2cap.DialOptions{
			AddrType: addrType,
			Security: uint8(c.GlobalInt("security")),
		}), nil
	case "ws":
		return wsconn.Dialer(addr), nil
	case "tcp":
		return func(ctx context.Context) (wire.Transport, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return nil, err
			}
			return l2cap.NewStreamTransport(conn), nil
		}, nil
	}
	return nil, errors.Wrap(errTransport, c.GlobalString("transport"))
}

// connect opens the session and runs the MTU exchange when --mtu is set.
func connect(ctx context.Context, c *cli.Context) (*session, error) {
	dial, err := dialer(c)
	if err != nil {
		return nil, err
	}

	addr := c.GlobalString("addr")
	opts := []wire.Option{wire.WithTimeout(c.GlobalDuration("tmo"))}
	if c.GlobalBool("async") {
		opts = append(opts, wire.WithAsyncNotifications(64))
	}

	s := &session{showStats: c.GlobalBool("stats")}
	if c.GlobalBool("trace") {
		t, err := debug.NewTracer(addr)
		if err != nil {
			return nil, err
		}
		logger.Info(logPrefix, "tracing PDUs to %s", t.Path())
		s.tracer = t
		opts = append(opts, wire.WithTracer(t))
	}

	s.dev = wire.NewDevice(addr, opts...)
	if err := s.dev.Connect(ctx, dial); err != nil {
		s.close()
		return nil, errors.Wrapf(err, "connect %s", addr)
	}

	if mtu := c.GlobalInt("mtu"); mtu > 0 {
		eff, err := gatt.ExchangeMTU(ctx, s.dev, mtu)
		if err != nil {
			s.close()
			return nil, errors.Wrap(err, "exchange MTU")
		}
		logger.Info(logPrefix, "MTU %d", eff)
	}
	return s, nil
}

func (s *session) close() {
	if s.dev != nil {
		s.dev.Disconnect()
		if s.showStats {
			logger.Info(logPrefix, "session stats:\n%s", logger.ToJSON(s.dev.Stats()))
		}
	}
	if s.tracer != nil {
		s.tracer.Close()
	}
}

// withSession connects, runs fn and disconnects.
func withSession(fn func(ctx context.Context, c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := signalContext(context.Background())
		defer cancel()

		s, err := connect(ctx, c)
		if err != nil {
			return err
		}
		defer s.close()
		return chkErr(fn(ctx, c, s))
	}
}

// profile returns the peer's profile, from the cache when --cache is set.
func (s *session) profile(ctx context.Context, c *cli.Context) (*gatt.Profile, error) {
	if !c.Bool("cache") {
		return gatt.DiscoverProfile(ctx, s.dev)
	}

	cache, err := gatt.NewFileCache("")
	if err != nil {
		return nil, err
	}
	peer := s.dev.Peer()
	if c.Bool("refresh") {
		if err := cache.Clear(peer); err != nil {
			return nil, err
		}
	}

	p, err := cache.Load(peer)
	if err == nil {
		logger.Debug(logPrefix, "using cached profile for %s", peer)
		return p, nil
	}
	if errors.Cause(err) != gatt.ErrCacheMiss {
		logger.Warn(logPrefix, "ignoring unreadable cache: %v", err)
	}

	p, err = gatt.DiscoverProfile(ctx, s.dev)
	if err != nil {
		return nil, err
	}
	if err := cache.Store(peer, p); err != nil {
		logger.Warn(logPrefix, "cannot cache profile: %v", err)
	}
	return p, nil
}
