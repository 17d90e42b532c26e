package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire/att"
	"github.com/user/gattclient/wire/gatt"
)

func cmdMTU(ctx context.Context, c *cli.Context, s *session) error {
	mtu := c.GlobalInt("mtu")
	if mtu == 0 {
		mtu = att.MaxMTU
		eff, err := gatt.ExchangeMTU(ctx, s.dev, mtu)
		if err != nil {
			return err
		}
		fmt.Printf("MTU %d (client %d, server %d)\n", eff, s.dev.ClientMTU(), s.dev.ServerMTU())
		return nil
	}
	fmt.Printf("MTU %d (client %d, server %d)\n", s.dev.MTU(), s.dev.ClientMTU(), s.dev.ServerMTU())
	return nil
}

func discoverServices(ctx context.Context, c *cli.Context, s *session) ([]gatt.Service, error) {
	if c.String("svc") == "" {
		return gatt.DiscoverAllPrimaryServices(ctx, s.dev)
	}
	u, err := parseUUIDFlag(c, "svc")
	if err != nil {
		return nil, err
	}
	return gatt.DiscoverPrimaryServiceByUUID(ctx, s.dev, u)
}

func cmdServices(ctx context.Context, c *cli.Context, s *session) error {
	services, err := discoverServices(ctx, c, s)
	if err != nil {
		return err
	}
	for _, svc := range services {
		fmt.Println(svc)
		if !c.Bool("includes") {
			continue
		}
		incs, err := gatt.FindIncludedServices(ctx, s.dev, svc)
		if err != nil {
			return err
		}
		for _, inc := range incs {
			fmt.Printf("  include 0x%04X: %s [0x%04X-0x%04X]\n", inc.Handle, inc.UUID, inc.StartHandle, inc.EndHandle)
		}
	}
	return nil
}

func cmdChars(ctx context.Context, c *cli.Context, s *session) error {
	services, err := discoverServices(ctx, c, s)
	if err != nil {
		return err
	}
	for _, svc := range services {
		fmt.Println(svc)
		var chars []gatt.Characteristic
		if c.String("uuid") != "" {
			u, err := parseUUIDFlag(c, "uuid")
			if err != nil {
				return err
			}
			chars, err = gatt.DiscoverCharacteristicsByUUID(ctx, s.dev, svc, u)
			if err != nil {
				return err
			}
		} else {
			chars, err = gatt.DiscoverAllCharacteristics(ctx, s.dev, svc)
			if err != nil {
				return err
			}
		}
		for _, ch := range chars {
			fmt.Printf("  %s\n", ch)
		}
	}
	return nil
}

func cmdDescs(ctx context.Context, c *cli.Context, s *session) error {
	rng, err := parseRange(c)
	if err != nil {
		return err
	}
	descs, err := gatt.DiscoverAllDescriptors(ctx, s.dev, rng)
	if err != nil {
		return err
	}
	for _, d := range descs {
		fmt.Printf("0x%04X: %s\n", d.Handle, d.UUID)
	}
	return nil
}

func cmdProfile(ctx context.Context, c *cli.Context, s *session) error {
	p, err := s.profile(ctx, c)
	if err != nil {
		return err
	}
	printProfile(p)
	return nil
}

func cmdRead(ctx context.Context, c *cli.Context, s *session) error {
	h, err := parseHandle(c.String("handle"))
	if err != nil {
		return err
	}
	v, err := gatt.ReadCharacteristicValue(ctx, s.dev, h)
	if err != nil {
		return err
	}
	fmt.Printf("0x%04X: %s\n", h, formatValue(v))
	return nil
}

func cmdReadLong(ctx context.Context, c *cli.Context, s *session) error {
	h, err := parseHandle(c.String("handle"))
	if err != nil {
		return err
	}
	v, err := gatt.ReadLongCharacteristicValue(ctx, s.dev, h)
	if err != nil {
		return err
	}
	fmt.Printf("0x%04X (%d bytes): %s\n", h, len(v), formatValue(v))
	return nil
}

func cmdReadUUID(ctx context.Context, c *cli.Context, s *session) error {
	u, err := parseUUIDFlag(c, "uuid")
	if err != nil {
		return err
	}
	rng, err := parseRange(c)
	if err != nil {
		return err
	}
	h, v, err := gatt.ReadUsingCharacteristicUUID(ctx, s.dev, rng, u)
	if err != nil {
		return err
	}
	fmt.Printf("0x%04X: %s\n", h, formatValue(v))
	return nil
}

func cmdReadMulti(ctx context.Context, c *cli.Context, s *session) error {
	hs, err := parseHandles(c.String("handles"))
	if err != nil {
		return err
	}
	v, err := gatt.ReadMultiple(ctx, s.dev, hs)
	if err != nil {
		return err
	}
	fmt.Printf("%v: %s\n", hs, formatValue(v))
	return nil
}

func handleAndValue(c *cli.Context) (att.Handle, []byte, error) {
	h, err := parseHandle(c.String("handle"))
	if err != nil {
		return 0, nil, err
	}
	v, err := parseValue(c)
	return h, v, err
}

func cmdWrite(ctx context.Context, c *cli.Context, s *session) error {
	h, v, err := handleAndValue(c)
	if err != nil {
		return err
	}
	write := gatt.WriteCharacteristicValue
	if att.ShouldFragment(s.dev.MTU(), v) {
		logger.Debug(logPrefix, "%d bytes exceed MTU %d, using a long write", len(v), s.dev.MTU())
		write = gatt.WriteLongCharacteristicValue
	}
	if err := write(ctx, s.dev, h, v); err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes to 0x%04X\n", len(v), h)
	return nil
}

func cmdWriteCmd(ctx context.Context, c *cli.Context, s *session) error {
	h, v, err := handleAndValue(c)
	if err != nil {
		return err
	}
	if err := gatt.WriteWithoutResponse(s.dev, h, v); err != nil {
		return err
	}
	fmt.Printf("sent %d bytes to 0x%04X\n", len(v), h)
	return nil
}

func cmdWriteLong(ctx context.Context, c *cli.Context, s *session) error {
	h, v, err := handleAndValue(c)
	if err != nil {
		return err
	}
	if err := gatt.WriteLongCharacteristicValue(ctx, s.dev, h, v); err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes to 0x%04X\n", len(v), h)
	return nil
}

// cmdSubscribe enables notifications or indications on the characteristic
// whose value handle is --handle, or the first one with --uuid, and prints
// values until --duration passes or the session ends.
func cmdSubscribe(ctx context.Context, c *cli.Context, s *session) error {
	p, err := s.profile(ctx, c)
	if err != nil {
		return err
	}
	ch, err := findCharacteristic(c, p)
	if err != nil {
		return err
	}
	cccd, ok := ch.CCCD()
	if !ok {
		return errNoCCCD
	}

	show := func(v []byte) {
		fmt.Printf("%s 0x%04X: %s\n", time.Now().Format("15:04:05.000"), ch.ValueHandle, formatValue(v))
	}
	if c.Bool("ind") {
		err = s.dev.RegisterIndicationCallback(ctx, cccd, ch.ValueHandle, show)
	} else {
		err = s.dev.RegisterNotificationCallback(cccd, ch.ValueHandle, show)
	}
	if err != nil {
		return err
	}
	fmt.Printf("subscribed to %s\n", ch)

	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.dev.Done():
		return s.dev.Err()
	}
}

func findCharacteristic(c *cli.Context, p *gatt.Profile) (*gatt.Characteristic, error) {
	if c.String("uuid") != "" {
		u, err := parseUUIDFlag(c, "uuid")
		if err != nil {
			return nil, err
		}
		ch, ok := p.FindCharacteristic(u)
		if !ok {
			return nil, errNotFound
		}
		return ch, nil
	}

	h, err := parseHandle(c.String("handle"))
	if err != nil {
		return nil, err
	}
	for si := range p.Services {
		for ci := range p.Services[si].Characteristics {
			if ch := &p.Services[si].Characteristics[ci]; ch.ValueHandle == h {
				return ch, nil
			}
		}
	}
	return nil, errNotFound
}
