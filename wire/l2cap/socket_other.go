//go:build !linux

package l2cap

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/user/gattclient/wire"
	"github.com/user/gattclient/wire/att"
)

// Dial is only available on Linux.
func Dial(ctx context.Context, addr Address, opts DialOptions) (io.ReadWriteCloser, error) {
	return nil, errors.Wrap(att.ErrNotImplemented, "l2cap: sockets require linux")
}

// Dialer returns a DialFunc bound to addr.
func Dialer(addr Address, opts DialOptions) wire.DialFunc {
	return func(ctx context.Context) (wire.Transport, error) {
		return Dial(ctx, addr, opts)
	}
}
