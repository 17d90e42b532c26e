package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/user/gattclient/wire/att"
	"github.com/user/gattclient/wire/gatt"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func chkErr(err error) error {
	switch errors.Cause(err) {
	case context.DeadlineExceeded:
		return nil
	case context.Canceled:
		fmt.Printf("\n(Canceled)\n")
		return nil
	}
	return err
}

func parseHandle(s string) (att.Handle, error) {
	if s == "" {
		return 0, errNoHandle
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, errors.Errorf("invalid handle %q", s)
	}
	if v == 0 {
		return 0, errors.Errorf("handle 0x0000 is reserved")
	}
	return att.Handle(v), nil
}

func parseHandles(s string) ([]att.Handle, error) {
	if s == "" {
		return nil, errNoHandle
	}
	var out []att.Handle
	for _, f := range strings.Split(s, ",") {
		h, err := parseHandle(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func parseRange(c *cli.Context) (att.HandleRange, error) {
	start, err := parseHandle(c.String("start"))
	if err != nil {
		return att.HandleRange{}, err
	}
	end, err := parseHandle(c.String("end"))
	if err != nil {
		return att.HandleRange{}, err
	}
	r := att.HandleRange{Start: start, End: end}
	if !r.Valid() {
		return r, errors.Errorf("invalid range %s", r)
	}
	return r, nil
}

func parseUUIDFlag(c *cli.Context, name string) (att.UUID, error) {
	s := c.String(name)
	if s == "" {
		return att.UUID{}, errNoUUID
	}
	return att.ParseUUID(s)
}

func parseValue(c *cli.Context) ([]byte, error) {
	s := c.String("value")
	if s == "" {
		return nil, errNoValue
	}
	if c.Bool("text") {
		return []byte(s), nil
	}
	s = strings.NewReplacer(":", "", " ", "", "0x", "").Replace(s)
	v, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hex value")
	}
	return v, nil
}

func formatValue(v []byte) string {
	s := hex.EncodeToString(v)
	if len(v) > 0 && utf8.Valid(v) && isPrintable(string(v)) {
		s += fmt.Sprintf("  %q", string(v))
	}
	return s
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			return false
		}
	}
	return true
}

func printProfile(p *gatt.Profile) {
	for _, s := range p.Services {
		fmt.Println(s)
		for _, inc := range s.Includes {
			fmt.Printf("  include 0x%04X: %s [0x%04X-0x%04X]\n", inc.Handle, inc.UUID, inc.StartHandle, inc.EndHandle)
		}
		for _, ch := range s.Characteristics {
			fmt.Printf("  %s\n", ch)
			for _, d := range ch.Descriptors {
				fmt.Printf("    descriptor 0x%04X: %s\n", d.Handle, d.UUID)
			}
		}
	}
}
