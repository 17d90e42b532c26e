package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/user/gattclient/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Error(logPrefix, "%v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()

	app.Name = "gattctl"
	app.Usage = "Talk ATT/GATT to a Bluetooth LE peripheral"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{
		flgTransport, flgAddr, flgAddrType, flgSecurity,
		flgTimeout, flgMTU, flgLogLevel, flgLogJSON, flgTrace, flgAsync, flgStats,
	}
	app.Before = setup

	app.Commands = []cli.Command{
		{
			Name:   "mtu",
			Usage:  "Exchange MTU (the --mtu value, or the maximum)",
			Action: withSession(cmdMTU),
		},
		{
			Name:    "services",
			Aliases: []string{"svcs"},
			Usage:   "Discover primary services",
			Action:  withSession(cmdServices),
			Flags:   []cli.Flag{flgSvc, flgIncludes},
		},
		{
			Name:   "chars",
			Usage:  "Discover characteristics of each service",
			Action: withSession(cmdChars),
			Flags:  []cli.Flag{flgSvc, flgUUID},
		},
		{
			Name:   "descs",
			Usage:  "Discover descriptors in a handle range",
			Action: withSession(cmdDescs),
			Flags:  []cli.Flag{flgStart, flgEnd},
		},
		{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "Discover services, characteristics and descriptors",
			Action:  withSession(cmdProfile),
			Flags:   []cli.Flag{flgCache, flgRefresh},
		},
		{
			Name:    "read",
			Aliases: []string{"r"},
			Usage:   "Read a characteristic value or descriptor",
			Action:  withSession(cmdRead),
			Flags:   []cli.Flag{flgHandle},
		},
		{
			Name:   "read-long",
			Usage:  "Read a long value with blob reads",
			Action: withSession(cmdReadLong),
			Flags:  []cli.Flag{flgHandle},
		},
		{
			Name:   "read-uuid",
			Usage:  "Read the value of a characteristic by UUID",
			Action: withSession(cmdReadUUID),
			Flags:  []cli.Flag{flgUUID, flgStart, flgEnd},
		},
		{
			Name:   "read-multi",
			Usage:  "Read several values in one request",
			Action: withSession(cmdReadMulti),
			Flags:  []cli.Flag{flgHandles},
		},
		{
			Name:    "write",
			Aliases: []string{"w"},
			Usage:   "Write a value and wait for the response",
			Action:  withSession(cmdWrite),
			Flags:   []cli.Flag{flgHandle, flgValue, flgText},
		},
		{
			Name:   "write-cmd",
			Usage:  "Write a value without response",
			Action: withSession(cmdWriteCmd),
			Flags:  []cli.Flag{flgHandle, flgValue, flgText},
		},
		{
			Name:   "write-long",
			Usage:  "Write a long value with prepared writes",
			Action: withSession(cmdWriteLong),
			Flags:  []cli.Flag{flgHandle, flgValue, flgText},
		},
		{
			Name:    "subscribe",
			Aliases: []string{"sub"},
			Usage:   "Print notifications or indications of a characteristic",
			Action:  withSession(cmdSubscribe),
			Flags:   []cli.Flag{flgHandle, flgUUID, flgInd, flgDuration, flgCache, flgRefresh},
		},
		{
			Name:   "sim",
			Usage:  "Serve a simulated peripheral over ws or tcp",
			Action: cmdSim,
			Flags:  []cli.Flag{flgListen, flgName, flgInterval, flgLoss, flgDelay},
		},
	}
	return app
}

func setup(c *cli.Context) error {
	logger.SetLevel(logger.ParseLevel(c.String("log-level")))
	logger.SetJSON(c.Bool("log-json"))
	return nil
}
