package main

import (
	"time"

	"github.com/urfave/cli"
)

var (
	flgTransport = cli.StringFlag{Name: "transport, T", Value: "l2cap", Usage: "Transport to the peer (l2cap / ws / tcp)"}
	flgAddr      = cli.StringFlag{Name: "addr, a", Usage: "Peer address, WebSocket URL or host:port", EnvVar: "GATTCTL_ADDR"}
	flgAddrType  = cli.StringFlag{Name: "addr-type", Value: "public", Usage: "LE address type of the peer (public / random)"}
	flgSecurity  = cli.IntFlag{Name: "security", Value: 1, Usage: "L2CAP security level (1 low, 2 medium, 3 high)"}
	flgTimeout   = cli.DurationFlag{Name: "tmo, t", Value: 30 * time.Second, Usage: "Response timeout for each request"}
	flgMTU       = cli.IntFlag{Name: "mtu", Value: 0, Usage: "Exchange MTU with this client receive MTU after connecting"}
	flgLogLevel  = cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level (trace / debug / info / warn / error)", EnvVar: "GATTCLIENT_LOG_LEVEL"}
	flgLogJSON   = cli.BoolFlag{Name: "log-json", Usage: "Log in JSON format"}
	flgTrace     = cli.BoolFlag{Name: "trace", Usage: "Record every PDU to a JSONL trace under the data directory"}
	flgAsync     = cli.BoolFlag{Name: "async", Usage: "Run notification handlers off the receive loop"}
	flgStats     = cli.BoolFlag{Name: "stats", Usage: "Log session counters on disconnect"}

	flgHandle   = cli.StringFlag{Name: "handle, H", Usage: "Attribute handle (0x0003 or 3)"}
	flgHandles  = cli.StringFlag{Name: "handles", Usage: "Comma separated attribute handles"}
	flgUUID     = cli.StringFlag{Name: "uuid, u", Usage: "16-bit or 128-bit UUID"}
	flgSvc      = cli.StringFlag{Name: "svc, s", Usage: "Limit to services with this UUID"}
	flgStart    = cli.StringFlag{Name: "start", Value: "0x0001", Usage: "First handle of the range"}
	flgEnd      = cli.StringFlag{Name: "end", Value: "0xFFFF", Usage: "Last handle of the range"}
	flgValue    = cli.StringFlag{Name: "value, v", Usage: "Value as hex bytes (0a0b0c or 0a:0b:0c)"}
	flgText     = cli.BoolFlag{Name: "text", Usage: "Treat --value as UTF-8 text"}
	flgIncludes = cli.BoolFlag{Name: "includes", Usage: "Also find included services"}
	flgCache    = cli.BoolFlag{Name: "cache", Usage: "Use the cached profile when present and store new discoveries"}
	flgRefresh  = cli.BoolFlag{Name: "refresh", Usage: "Drop the cached profile before discovery"}
	flgInd      = cli.BoolFlag{Name: "ind", Usage: "Subscribe to indications instead of notifications"}
	flgDuration = cli.DurationFlag{Name: "duration, d", Value: 0, Usage: "How long to listen (0 waits for a signal)"}
	flgListen   = cli.StringFlag{Name: "listen, l", Value: "127.0.0.1:8088", Usage: "Listen address"}
	flgName     = cli.StringFlag{Name: "name, n", Value: "gattctl-sim", Usage: "Device name of the simulated peer"}
	flgInterval = cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "Notification interval of the simulated peer"}
	flgLoss     = cli.Float64Flag{Name: "loss", Value: 0, Usage: "Fraction of PDUs the simulated peer drops (0-1)"}
	flgDelay    = cli.DurationFlag{Name: "delay", Value: 0, Usage: "Maximum extra latency of the simulated link"}
)
