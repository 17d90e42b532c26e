package att

import "encoding/binary"

// Parse functions validate size and opcode before touching fields. Functions
// with a variable-length output take it as out; len(out) is the capacity and
// a zero-length out only counts.

// ParseErrorResponse decodes an Error Response.
func ParseErrorResponse(pdu []byte) (requestOpcode uint8, handle Handle, code uint8, err error) {
	if err = checkParseExact(pdu, OpErrorResponse, ErrorResponseSize); err != nil {
		return
	}
	return pdu[1], binary.LittleEndian.Uint16(pdu[2:4]), pdu[4], nil
}

// ParseExchangeMTURequest decodes an Exchange MTU Request.
func ParseExchangeMTURequest(pdu []byte) (uint16, error) {
	return parseMTU(pdu, OpExchangeMTURequest)
}

// ParseExchangeMTUResponse decodes an Exchange MTU Response.
func ParseExchangeMTUResponse(pdu []byte) (uint16, error) {
	return parseMTU(pdu, OpExchangeMTUResponse)
}

func parseMTU(pdu []byte, opcode uint8) (uint16, error) {
	if err := checkParseExact(pdu, opcode, ExchangeMTUSize); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(pdu[1:3]), nil
}

// ParseFindInformationRequest decodes a Find Information Request.
func ParseFindInformationRequest(pdu []byte) (HandleRange, error) {
	if err := checkParseExact(pdu, OpFindInformationRequest, FindInformationRequestSize); err != nil {
		return HandleRange{}, err
	}
	return getRange(pdu[1:5]), nil
}

// ParseFindInformationResponse decodes the format byte and counts whole
// handle/UUID pairs, copying the list into out.
func ParseFindInformationResponse(pdu []byte, out []byte) (format uint8, count int, err error) {
	if err = checkParse(pdu, OpFindInformationResponse, FindInformationHeaderSize); err != nil {
		return
	}
	format = pdu[1]
	itemLen, err := FindInfoItemLen(format)
	if err != nil {
		return format, 0, err
	}
	count, err = parseList(pdu[FindInformationHeaderSize:], itemLen, out)
	return format, count, err
}

// ParseFindByTypeValueRequest decodes a Find By Type Value Request; the
// attribute value is copied into out and its length returned.
func ParseFindByTypeValueRequest(pdu []byte, out []byte) (r HandleRange, attrType uint16, n int, err error) {
	if err = checkParse(pdu, OpFindByTypeValueRequest, FindByTypeValueHeaderSize); err != nil {
		return
	}
	r = getRange(pdu[1:5])
	attrType = binary.LittleEndian.Uint16(pdu[5:7])
	n, err = copyTail(pdu[FindByTypeValueHeaderSize:], out)
	return
}

// ParseFindByTypeValueResponse decodes the handles information list into out.
func ParseFindByTypeValueResponse(pdu []byte, out []HandleRange) (int, error) {
	if err := checkParse(pdu, OpFindByTypeValueResponse, OpcodeOnlySize); err != nil {
		return 0, err
	}
	tail := pdu[OpcodeOnlySize:]
	count := len(tail) / 4
	var warn error
	if len(tail)%4 != 0 {
		warn = ErrIncludeFragments
	}
	if len(out) == 0 {
		return count, warn
	}
	if len(out) < count {
		return count, ErrBufferTooSmall
	}
	for i := 0; i < count; i++ {
		out[i] = getRange(tail[4*i:])
	}
	return count, warn
}

// ParseReadByTypeRequest decodes a Read By Type Request. The UUID form is
// inferred from the tail length.
func ParseReadByTypeRequest(pdu []byte) (HandleRange, UUID, error) {
	return parseTypeRequest(pdu, OpReadByTypeRequest)
}

// ParseReadByGroupTypeRequest decodes a Read By Group Type Request.
func ParseReadByGroupTypeRequest(pdu []byte) (HandleRange, UUID, error) {
	return parseTypeRequest(pdu, OpReadByGroupTypeRequest)
}

func parseTypeRequest(pdu []byte, opcode uint8) (HandleRange, UUID, error) {
	if err := checkParse(pdu, opcode, ReadByTypeHeaderSize); err != nil {
		return HandleRange{}, UUID{}, err
	}
	u, err := UUIDFromBytes(pdu[ReadByTypeHeaderSize:])
	if err != nil {
		return HandleRange{}, UUID{}, err
	}
	return getRange(pdu[1:5]), u, nil
}

// ParseReadByTypeResponse decodes the item length and whole-item count.
// A trailing partial item yields ErrIncludeFragments alongside the count.
func ParseReadByTypeResponse(pdu []byte, out []byte) (itemLen int, count int, err error) {
	return parseListResponse(pdu, OpReadByTypeResponse, out)
}

// ParseReadByGroupTypeResponse decodes the item length and whole-item count.
func ParseReadByGroupTypeResponse(pdu []byte, out []byte) (itemLen int, count int, err error) {
	return parseListResponse(pdu, OpReadByGroupTypeResponse, out)
}

func parseListResponse(pdu []byte, opcode uint8, out []byte) (int, int, error) {
	if err := checkParse(pdu, opcode, ReadByTypeRespHeaderSize); err != nil {
		return 0, 0, err
	}
	itemLen := int(pdu[1])
	if itemLen == 0 {
		return 0, 0, ErrInvalidFormat
	}
	count, err := parseList(pdu[ReadByTypeRespHeaderSize:], itemLen, out)
	return itemLen, count, err
}

// parseList counts whole items in tail and copies tail into out.
func parseList(tail []byte, itemLen int, out []byte) (int, error) {
	count := len(tail) / itemLen
	var warn error
	if len(tail)%itemLen != 0 {
		warn = ErrIncludeFragments
	}
	if len(out) == 0 {
		return count, warn
	}
	if len(out) < len(tail) {
		return count, ErrBufferTooSmall
	}
	copy(out, tail[:count*itemLen])
	return count, warn
}

// ParseReadRequest decodes a Read Request.
func ParseReadRequest(pdu []byte) (Handle, error) {
	if err := checkParse(pdu, OpReadRequest, ReadRequestSize); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(pdu[1:3]), nil
}

// ParseReadResponse decodes a Read Response, returning the value length.
func ParseReadResponse(pdu []byte, out []byte) (int, error) {
	return parseValue(pdu, OpReadResponse, out)
}

// ParseReadBlobRequest decodes a Read Blob Request.
func ParseReadBlobRequest(pdu []byte) (handle Handle, offset uint16, err error) {
	if err = checkParse(pdu, OpReadBlobRequest, ReadBlobRequestSize); err != nil {
		return
	}
	return binary.LittleEndian.Uint16(pdu[1:3]), binary.LittleEndian.Uint16(pdu[3:5]), nil
}

// ParseReadBlobResponse decodes a Read Blob Response, returning the part length.
func ParseReadBlobResponse(pdu []byte, out []byte) (int, error) {
	return parseValue(pdu, OpReadBlobResponse, out)
}

// ParseReadMultipleRequest decodes the handle set of a Read Multiple Request.
func ParseReadMultipleRequest(pdu []byte, out []Handle) (int, error) {
	if err := checkParse(pdu, OpReadMultipleRequest, OpcodeOnlySize+4); err != nil {
		return 0, err
	}
	tail := pdu[OpcodeOnlySize:]
	if len(tail)%2 != 0 {
		return 0, ErrIncorrectPDUSize
	}
	count := len(tail) / 2
	if len(out) == 0 {
		return count, nil
	}
	if len(out) < count {
		return count, ErrBufferTooSmall
	}
	for i := 0; i < count; i++ {
		out[i] = binary.LittleEndian.Uint16(tail[2*i:])
	}
	return count, nil
}

// ParseReadMultipleResponse decodes the concatenated set of values.
func ParseReadMultipleResponse(pdu []byte, out []byte) (int, error) {
	return parseValue(pdu, OpReadMultipleResponse, out)
}

func parseValue(pdu []byte, opcode uint8, out []byte) (int, error) {
	if err := checkParse(pdu, opcode, ValueResponseHeaderSize); err != nil {
		return 0, err
	}
	return copyTail(pdu[ValueResponseHeaderSize:], out)
}

// ParseWriteRequest decodes a Write Request.
func ParseWriteRequest(pdu []byte, out []byte) (Handle, int, error) {
	return parseHandleValue(pdu, OpWriteRequest, out)
}

// ParseWriteResponse validates a Write Response.
func ParseWriteResponse(pdu []byte) error {
	return checkParse(pdu, OpWriteResponse, OpcodeOnlySize)
}

// ParseWriteCommand decodes a Write Command.
func ParseWriteCommand(pdu []byte, out []byte) (Handle, int, error) {
	return parseHandleValue(pdu, OpWriteCommand, out)
}

// ParsePrepareWriteRequest decodes a Prepare Write Request.
func ParsePrepareWriteRequest(pdu []byte, out []byte) (handle Handle, offset uint16, n int, err error) {
	return parsePrepareWrite(pdu, OpPrepareWriteRequest, out)
}

// ParsePrepareWriteResponse decodes a Prepare Write Response.
func ParsePrepareWriteResponse(pdu []byte, out []byte) (handle Handle, offset uint16, n int, err error) {
	return parsePrepareWrite(pdu, OpPrepareWriteResponse, out)
}

func parsePrepareWrite(pdu []byte, opcode uint8, out []byte) (handle Handle, offset uint16, n int, err error) {
	if err = checkParse(pdu, opcode, PrepareWriteHeaderSize); err != nil {
		return
	}
	handle = binary.LittleEndian.Uint16(pdu[1:3])
	offset = binary.LittleEndian.Uint16(pdu[3:5])
	n, err = copyTail(pdu[PrepareWriteHeaderSize:], out)
	return
}

// ParseExecuteWriteRequest decodes the flags of an Execute Write Request.
func ParseExecuteWriteRequest(pdu []byte) (uint8, error) {
	if err := checkParse(pdu, OpExecuteWriteRequest, ExecuteWriteRequestSize); err != nil {
		return 0, err
	}
	return pdu[1], nil
}

// ParseExecuteWriteResponse validates an Execute Write Response.
func ParseExecuteWriteResponse(pdu []byte) error {
	return checkParse(pdu, OpExecuteWriteResponse, OpcodeOnlySize)
}

// ParseHandleValueNotification decodes a Handle Value Notification.
func ParseHandleValueNotification(pdu []byte, out []byte) (Handle, int, error) {
	return parseHandleValue(pdu, OpHandleValueNotification, out)
}

// ParseHandleValueIndication decodes a Handle Value Indication.
func ParseHandleValueIndication(pdu []byte, out []byte) (Handle, int, error) {
	return parseHandleValue(pdu, OpHandleValueIndication, out)
}

// ParseHandleValueConfirmation validates a Handle Value Confirmation.
func ParseHandleValueConfirmation(pdu []byte) error {
	return checkParse(pdu, OpHandleValueConfirmation, OpcodeOnlySize)
}

// ParseSignedWriteCommand decodes a Signed Write Command. The value length
// excludes the trailing signature. The signature is returned as received and
// is not verified; see VerifySignedWriteCommand.
func ParseSignedWriteCommand(pdu []byte, out []byte) (handle Handle, n int, sig Signature, err error) {
	if err = checkParse(pdu, OpSignedWriteCommand, HandleValueHeaderSize+SignatureLen); err != nil {
		return
	}
	handle = binary.LittleEndian.Uint16(pdu[1:3])
	body := len(pdu) - SignatureLen
	copy(sig[:], pdu[body:])
	n, err = copyTail(pdu[HandleValueHeaderSize:body], out)
	return
}

func parseHandleValue(pdu []byte, opcode uint8, out []byte) (Handle, int, error) {
	if err := checkParse(pdu, opcode, HandleValueHeaderSize); err != nil {
		return 0, 0, err
	}
	handle := binary.LittleEndian.Uint16(pdu[1:3])
	n, err := copyTail(pdu[HandleValueHeaderSize:], out)
	return handle, n, err
}
