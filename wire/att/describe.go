package att

import (
	"encoding/hex"
	"fmt"
)

func hexHandle(h Handle) string {
	return fmt.Sprintf("0x%04X", h)
}

// Describe decodes a PDU into named fields for logs and packet traces.
// Unknown opcodes yield an empty map and no error.
func Describe(pdu []byte) (map[string]interface{}, error) {
	if len(pdu) == 0 {
		return nil, ErrIncorrectPDUSize
	}
	data := make(map[string]interface{})

	switch pdu[0] {
	case OpErrorResponse:
		op, h, code, err := ParseErrorResponse(pdu)
		if err != nil {
			return nil, err
		}
		data["request_opcode"] = OpcodeName(op)
		data["handle"] = hexHandle(h)
		data["error"] = EcodeName(code)

	case OpExchangeMTURequest, OpExchangeMTUResponse:
		mtu, err := parseMTU(pdu, pdu[0])
		if err != nil {
			return nil, err
		}
		data["mtu"] = mtu

	case OpFindInformationRequest:
		r, err := ParseFindInformationRequest(pdu)
		if err != nil {
			return nil, err
		}
		data["range"] = r.String()

	case OpFindInformationResponse:
		format, count, err := ParseFindInformationResponse(pdu, nil)
		if err != nil && err != ErrIncludeFragments {
			return nil, err
		}
		data["format"] = format
		data["count"] = count

	case OpFindByTypeValueRequest:
		r, t, _, err := ParseFindByTypeValueRequest(pdu, nil)
		if err != nil {
			return nil, err
		}
		data["range"] = r.String()
		data["type"] = UUID16(t).String()
		data["value"] = hex.EncodeToString(pdu[FindByTypeValueHeaderSize:])

	case OpFindByTypeValueResponse:
		count, err := ParseFindByTypeValueResponse(pdu, nil)
		if err != nil && err != ErrIncludeFragments {
			return nil, err
		}
		data["count"] = count

	case OpReadByTypeRequest, OpReadByGroupTypeRequest:
		r, u, err := parseTypeRequest(pdu, pdu[0])
		if err != nil {
			return nil, err
		}
		data["range"] = r.String()
		data["type"] = u.String()

	case OpReadByTypeResponse, OpReadByGroupTypeResponse:
		itemLen, count, err := parseListResponse(pdu, pdu[0], nil)
		if err != nil && err != ErrIncludeFragments {
			return nil, err
		}
		data["item_len"] = itemLen
		data["count"] = count

	case OpReadRequest:
		h, err := ParseReadRequest(pdu)
		if err != nil {
			return nil, err
		}
		data["handle"] = hexHandle(h)

	case OpReadBlobRequest:
		h, off, err := ParseReadBlobRequest(pdu)
		if err != nil {
			return nil, err
		}
		data["handle"] = hexHandle(h)
		data["offset"] = off

	case OpReadResponse, OpReadBlobResponse, OpReadMultipleResponse:
		data["value"] = hex.EncodeToString(pdu[ValueResponseHeaderSize:])

	case OpReadMultipleRequest:
		handles := make([]Handle, (len(pdu)-1)/2)
		n, err := ParseReadMultipleRequest(pdu, handles)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, n)
		for _, h := range handles[:n] {
			names = append(names, hexHandle(h))
		}
		data["handles"] = names

	case OpWriteRequest, OpWriteCommand, OpHandleValueNotification, OpHandleValueIndication:
		h, _, err := parseHandleValue(pdu, pdu[0], nil)
		if err != nil {
			return nil, err
		}
		data["handle"] = hexHandle(h)
		data["value"] = hex.EncodeToString(pdu[HandleValueHeaderSize:])

	case OpPrepareWriteRequest, OpPrepareWriteResponse:
		h, off, _, err := parsePrepareWrite(pdu, pdu[0], nil)
		if err != nil {
			return nil, err
		}
		data["handle"] = hexHandle(h)
		data["offset"] = off
		data["value"] = hex.EncodeToString(pdu[PrepareWriteHeaderSize:])

	case OpExecuteWriteRequest:
		flags, err := ParseExecuteWriteRequest(pdu)
		if err != nil {
			return nil, err
		}
		data["flags"] = flags

	case OpSignedWriteCommand:
		h, n, _, err := ParseSignedWriteCommand(pdu, nil)
		if err != nil {
			return nil, err
		}
		data["handle"] = hexHandle(h)
		data["value"] = hex.EncodeToString(pdu[HandleValueHeaderSize : HandleValueHeaderSize+n])
		data["verified"] = false
	}

	return data, nil
}
