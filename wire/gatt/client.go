package gatt

import (
	"context"

	"github.com/pkg/errors"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire/att"
)

const logPrefix = "GATT"

// Requester is the session surface the procedures need. *wire.Device
// satisfies it.
type Requester interface {
	// Request sends a request PDU and returns the matching response PDU.
	// A peer Error Response comes back as a *att.Error.
	Request(ctx context.Context, pdu []byte) ([]byte, error)
	// SendPDU sends a command PDU that has no response.
	SendPDU(pdu []byte) error
	// MTU is the effective ATT_MTU.
	MTU() int
	// SetMTU records the outcome of an MTU exchange.
	SetMTU(client, server int)
}

// builder fills an outbound PDU
type builder func(pdu []byte) (int, error)

// request builds a PDU sized to the current MTU and sends it.
func request(ctx context.Context, r Requester, build builder) ([]byte, error) {
	buf := make([]byte, r.MTU())
	n, err := build(buf)
	if err != nil {
		return nil, err
	}
	return r.Request(ctx, buf[:n])
}

// command builds a PDU sized to the current MTU and sends it without waiting.
func command(r Requester, build builder) error {
	buf := make([]byte, r.MTU())
	n, err := build(buf)
	if err != nil {
		return err
	}
	return r.SendPDU(buf[:n])
}

// isNotFound reports whether err is the peer's Attribute Not Found, the
// normal end of a discovery sweep.
func isNotFound(err error) bool {
	return att.IsATTError(err, att.EcodeAttributeNotFound)
}

// ExchangeMTU offers clientMTU to the peer and records both sides on success.
// It returns the effective MTU.
func ExchangeMTU(ctx context.Context, r Requester, clientMTU int) (int, error) {
	if clientMTU < att.MinMTU || clientMTU > att.MaxMTU {
		return 0, errors.Wrapf(att.ErrInvalidArgument, "client MTU %d", clientMTU)
	}

	rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
		return att.BuildExchangeMTURequest(pdu, uint16(clientMTU))
	})
	if err != nil {
		return 0, errors.Wrap(err, "exchange MTU")
	}

	serverMTU, err := att.ParseExchangeMTUResponse(rsp)
	if err != nil {
		return 0, err
	}

	r.SetMTU(clientMTU, int(serverMTU))
	logger.Debug(logPrefix, "MTU exchanged: client=%d server=%d effective=%d", clientMTU, serverMTU, r.MTU())
	return r.MTU(), nil
}
