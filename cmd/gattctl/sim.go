package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire"
	"github.com/user/gattclient/wire/att"
	"github.com/user/gattclient/wire/gatt"
	"github.com/user/gattclient/wire/gatt/gatttest"
	"github.com/user/gattclient/wire/l2cap"
	"github.com/user/gattclient/wire/wsconn"
)

const simPrefix = "sim"

var (
	simServiceUUID = att.UUID128(uuid.MustParse("8c5d0001-7f3e-4b1a-9d2e-6f0a3b4c5d6e"))
	simLongUUID    = att.UUID128(uuid.MustParse("8c5d0002-7f3e-4b1a-9d2e-6f0a3b4c5d6e"))
	simEchoUUID    = att.UUID128(uuid.MustParse("8c5d0003-7f3e-4b1a-9d2e-6f0a3b4c5d6e"))
)

const simLongValue = "The quick brown fox jumps over the lazy dog while the GATT client reads it in blobs."

// newSimPeer builds a peer with Generic Access, Generic Attribute, Battery
// and a custom service holding a long value and a writable echo value.
func newSimPeer(name string) (*gatttest.Peer, att.Handle) {
	db := gatttest.NewDatabase()
	built := gatttest.Build(db, []gatttest.Service{
		gatttest.NewGenericAccessService(name, 0x0000),
		gatttest.NewGenericAttributeService(),
		{
			UUID:    att.UUID16(0x180F),
			Primary: true,
			Characteristics: []gatttest.Characteristic{
				{UUID: att.UUID16(0x2A19), Properties: gatt.PropRead | gatt.PropNotify, Value: []byte{100}},
			},
		},
		{
			UUID:     simServiceUUID,
			Primary:  true,
			Includes: []int{2},
			Characteristics: []gatttest.Characteristic{
				{UUID: simLongUUID, Properties: gatt.PropRead, Value: []byte(simLongValue)},
				{UUID: simEchoUUID, Properties: gatt.PropRead | gatt.PropWrite | gatt.PropWriteWithoutResponse | gatt.PropIndicate, Value: []byte{}},
			},
		},
	})
	return gatttest.NewPeer(db), built[2].Values[0]
}

// servePeer answers one client until its transport closes. The battery level
// drops by one every interval and is notified when enabled.
func servePeer(ctx context.Context, t wire.Transport, cfg simConfig) {
	peer, battery := newSimPeer(cfg.name)
	if cfg.link.PacketLossRate > 0 || cfg.link.MaxDelay > 0 {
		t = gatttest.NewLink(t, cfg.link)
	}
	interval := cfg.interval
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		t.Close()
	}()

	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		level := byte(100)
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
			if level > 0 {
				level--
			}
			peer.DB().Set(battery, []byte{level})
			if peer.CCCD().IsNotifyEnabled(battery) {
				if err := peer.Notify(battery, []byte{level}); err != nil {
					logger.Debug(simPrefix, "notify failed: %v", err)
				}
			}
		}
	}()

	if err := peer.Serve(t); err != nil {
		logger.Debug(simPrefix, "client gone: %v", err)
	}
	logger.Info(simPrefix, "client disconnected")
}

type simConfig struct {
	name     string
	interval time.Duration
	link     gatttest.LinkConfig
}

// cmdSim serves simulated peers over WebSocket or framed TCP for trying the
// client without a radio.
func cmdSim(c *cli.Context) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	addr := c.String("listen")
	cfg := simConfig{
		name:     c.String("name"),
		interval: c.Duration("interval"),
		link:     gatttest.LinkConfig{PacketLossRate: c.Float64("loss"), MaxDelay: c.Duration("delay")},
	}
	if cfg.interval <= 0 {
		cfg.interval = time.Second
	}

	switch c.GlobalString("transport") {
	case "ws":
		srv := &http.Server{Addr: addr, Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := wsconn.Accept(w, r)
			if err != nil {
				logger.Warn(simPrefix, "upgrade failed: %v", err)
				return
			}
			logger.Info(simPrefix, "client %s connected", r.RemoteAddr)
			servePeer(ctx, conn, cfg)
		})}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		logger.Info(simPrefix, "serving ws://%s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case "tcp":
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			ln.Close()
		}()
		logger.Info(simPrefix, "serving tcp://%s", ln.Addr())
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			logger.Info(simPrefix, "client %s connected", conn.RemoteAddr())
			go servePeer(ctx, l2cap.NewStreamTransport(conn), cfg)
		}
	}
	return errors.Wrapf(errTransport, "%s cannot be simulated; use --transport ws or tcp", c.GlobalString("transport"))
}
