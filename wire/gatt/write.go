package gatt

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire/att"
)

// WriteWithoutResponse sends a Write Command. The peer gives no
// acknowledgement and value must fit in MTU-3 bytes.
func WriteWithoutResponse(r Requester, handle att.Handle, value []byte) error {
	if len(value) > att.MaxWriteValue(r.MTU()) {
		return errors.Wrapf(att.ErrInvalidArgument, "%d bytes exceed write limit %d", len(value), att.MaxWriteValue(r.MTU()))
	}
	return command(r, func(pdu []byte) (int, error) {
		return att.BuildWriteCommand(pdu, handle, value)
	})
}

// SignedWriter sends Signed Write Commands. It owns the sign counter, which
// increases by one after every command sent.
type SignedWriter struct {
	mu      sync.Mutex
	signer  att.Signer
	counter uint32
}

// NewSignedWriter returns a writer that signs with signer starting at counter
func NewSignedWriter(signer att.Signer, counter uint32) *SignedWriter {
	return &SignedWriter{signer: signer, counter: counter}
}

// Counter returns the sign counter the next command will use
func (w *SignedWriter) Counter() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counter
}

// Write sends value to handle as a Signed Write Command. value must fit in
// MTU-15 bytes.
func (w *SignedWriter) Write(r Requester, handle att.Handle, value []byte) error {
	if w.signer == nil {
		return att.ErrNotImplemented
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	err := command(r, func(pdu []byte) (int, error) {
		return att.BuildSignedWriteCommand(pdu, handle, value, w.signer, w.counter)
	})
	if err != nil {
		return errors.Wrapf(err, "signed write 0x%04X", handle)
	}
	w.counter++
	return nil
}

// WriteCharacteristicValue writes value with a Write Request and waits for
// the Write Response.
func WriteCharacteristicValue(ctx context.Context, r Requester, handle att.Handle, value []byte) error {
	rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
		return att.BuildWriteRequest(pdu, handle, value)
	})
	if err != nil {
		return errors.Wrapf(err, "write 0x%04X", handle)
	}
	return att.ParseWriteResponse(rsp)
}

// WriteLongCharacteristicValue writes value of any length with Prepare Write
// Requests of at most MTU-5 bytes followed by an Execute Write Request. Each
// Prepare Write Response must echo its request; otherwise the queue is
// cancelled and att.ErrIncompleteWrite returned.
func WriteLongCharacteristicValue(ctx context.Context, r Requester, handle att.Handle, value []byte) error {
	parts, err := att.FragmentWrite(handle, value, r.MTU())
	if err != nil {
		return err
	}
	return prepareAndExecute(ctx, r, parts)
}

// ReliableWrites queues every write with Prepare Write Requests, checks each
// echo and commits them together. Each value must fit in MTU-5 bytes.
func ReliableWrites(ctx context.Context, r Requester, writes []att.PrepareWrite) error {
	if len(writes) == 0 {
		return att.ErrNullArgument
	}
	limit := r.MTU() - att.PrepareWriteHeaderSize
	for _, w := range writes {
		if len(w.Value) > limit {
			return errors.Wrapf(att.ErrInvalidArgument, "write to 0x%04X: %d bytes exceed %d", w.Handle, len(w.Value), limit)
		}
	}
	return prepareAndExecute(ctx, r, writes)
}

// WriteCharacteristicDescriptor writes a descriptor value
func WriteCharacteristicDescriptor(ctx context.Context, r Requester, handle att.Handle, value []byte) error {
	return WriteCharacteristicValue(ctx, r, handle, value)
}

// WriteLongCharacteristicDescriptor writes a descriptor value of any length
func WriteLongCharacteristicDescriptor(ctx context.Context, r Requester, handle att.Handle, value []byte) error {
	return WriteLongCharacteristicValue(ctx, r, handle, value)
}

func prepareAndExecute(ctx context.Context, r Requester, parts []att.PrepareWrite) error {
	for _, p := range parts {
		p := p
		rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
			return att.BuildPrepareWriteRequest(pdu, p.Handle, p.Offset, p.Value)
		})
		if err != nil {
			cancelQueue(ctx, r)
			return errors.Wrapf(err, "prepare write 0x%04X at %d", p.Handle, p.Offset)
		}

		handle, offset, _, err := att.ParsePrepareWriteResponse(rsp, nil)
		if err != nil {
			cancelQueue(ctx, r)
			return err
		}
		if !p.Echoes(handle, offset, rsp[att.PrepareWriteHeaderSize:]) {
			logger.Warn(logPrefix, "⚠️  prepare write echo mismatch at 0x%04X offset %d", p.Handle, p.Offset)
			cancelQueue(ctx, r)
			return errors.Wrapf(att.ErrIncompleteWrite, "0x%04X at %d", p.Handle, p.Offset)
		}
	}

	rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
		return att.BuildExecuteWriteRequest(pdu, att.ExecuteWriteCommit)
	})
	if err != nil {
		return errors.Wrap(err, "execute write")
	}
	return att.ParseExecuteWriteResponse(rsp)
}

// cancelQueue discards whatever the peer has queued. Errors are logged only,
// the caller already has one to report.
func cancelQueue(ctx context.Context, r Requester) {
	_, err := request(ctx, r, func(pdu []byte) (int, error) {
		return att.BuildExecuteWriteRequest(pdu, att.ExecuteWriteCancel)
	})
	if err != nil {
		logger.Debug(logPrefix, "cancel prepared writes: %v", err)
	}
}
