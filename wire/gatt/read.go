package gatt

import (
	"context"

	"github.com/pkg/errors"

	"github.com/user/gattclient/wire/att"
)

// ReadCharacteristicValue reads the value at handle with a Read Request. The
// result is at most MTU-1 bytes; use ReadLongCharacteristicValue for more.
func ReadCharacteristicValue(ctx context.Context, r Requester, handle att.Handle) ([]byte, error) {
	rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
		return att.BuildReadRequest(pdu, handle)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read 0x%04X", handle)
	}
	if _, err := att.ParseReadResponse(rsp, nil); err != nil {
		return nil, err
	}
	return rsp[att.ValueResponseHeaderSize:], nil
}

// ReadUsingCharacteristicUUID reads the single attribute of type u in rng
// and returns its handle and value. More than one match is an
// att.ErrUnexpectedResponse.
func ReadUsingCharacteristicUUID(ctx context.Context, r Requester, rng att.HandleRange, u att.UUID) (att.Handle, []byte, error) {
	if u.Len() == 0 {
		return 0, nil, att.ErrInvalidUUID
	}
	rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
		return att.BuildReadByTypeRequest(pdu, rng, u)
	})
	if err != nil {
		return 0, nil, errors.Wrapf(err, "read %s", u)
	}

	it, _, err := attributeList(rsp, att.ParseReadByTypeResponse)
	if err != nil {
		return 0, nil, err
	}
	if it.Remaining() != 1 {
		return 0, nil, errors.Wrapf(att.ErrUnexpectedResponse, "%d attributes of type %s", it.Remaining(), u)
	}
	item, _ := it.Next()
	d, err := att.TypeItem(item)
	if err != nil {
		return 0, nil, err
	}
	return d.Handle, d.Value, nil
}

// ReadLongCharacteristicValue reads a value of any length: a Read Request
// followed by Read Blob Requests at increasing offsets until the peer returns
// a part shorter than MTU-1.
func ReadLongCharacteristicValue(ctx context.Context, r Requester, handle att.Handle) ([]byte, error) {
	value, err := ReadCharacteristicValue(ctx, r, handle)
	if err != nil {
		return nil, err
	}
	full := r.MTU() - att.ValueResponseHeaderSize
	if len(value) < full {
		return value, nil
	}

	out := append([]byte(nil), value...)
	for {
		if len(out) > 0xFFFF {
			return nil, errors.Wrapf(att.ErrInvalidArgument, "value at 0x%04X exceeds 65535 bytes", handle)
		}
		offset := uint16(len(out))
		rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
			return att.BuildReadBlobRequest(pdu, handle, offset)
		})
		if att.IsATTError(err, att.EcodeInvalidOffset) || att.IsATTError(err, att.EcodeAttributeNotLong) {
			// the value was exactly a multiple of the part size
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read blob 0x%04X at %d", handle, offset)
		}
		if _, err := att.ParseReadBlobResponse(rsp, nil); err != nil {
			return nil, err
		}
		part := rsp[att.ValueResponseHeaderSize:]
		out = append(out, part...)
		if len(part) < r.MTU()-att.ValueResponseHeaderSize {
			return out, nil
		}
	}
}

// ReadMultiple reads the values at two or more handles in one Read Multiple
// Request. The peer concatenates the values; only the last may be truncated.
func ReadMultiple(ctx context.Context, r Requester, handles []att.Handle) ([]byte, error) {
	rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
		return att.BuildReadMultipleRequest(pdu, handles)
	})
	if err != nil {
		return nil, errors.Wrap(err, "read multiple")
	}
	if _, err := att.ParseReadMultipleResponse(rsp, nil); err != nil {
		return nil, err
	}
	return rsp[att.ValueResponseHeaderSize:], nil
}

// ReadCharacteristicDescriptor reads a descriptor value
func ReadCharacteristicDescriptor(ctx context.Context, r Requester, handle att.Handle) ([]byte, error) {
	return ReadCharacteristicValue(ctx, r, handle)
}

// ReadLongCharacteristicDescriptor reads a descriptor value of any length
func ReadLongCharacteristicDescriptor(ctx context.Context, r Requester, handle att.Handle) ([]byte, error) {
	return ReadLongCharacteristicValue(ctx, r, handle)
}
