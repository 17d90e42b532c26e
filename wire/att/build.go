package att

import "encoding/binary"

// Every Build function writes one PDU into the front of pdu and returns the
// encoded length. len(pdu) is the destination capacity.

// BuildErrorResponse encodes an Error Response.
func BuildErrorResponse(pdu []byte, requestOpcode uint8, handle Handle, code uint8) (int, error) {
	if err := checkBuild(pdu, ErrorResponseSize); err != nil {
		return 0, err
	}
	pdu[0] = OpErrorResponse
	pdu[1] = requestOpcode
	binary.LittleEndian.PutUint16(pdu[2:4], handle)
	pdu[4] = code
	return ErrorResponseSize, nil
}

// BuildExchangeMTURequest encodes an Exchange MTU Request.
func BuildExchangeMTURequest(pdu []byte, clientRxMTU uint16) (int, error) {
	return buildMTU(pdu, OpExchangeMTURequest, clientRxMTU)
}

// BuildExchangeMTUResponse encodes an Exchange MTU Response.
func BuildExchangeMTUResponse(pdu []byte, serverRxMTU uint16) (int, error) {
	return buildMTU(pdu, OpExchangeMTUResponse, serverRxMTU)
}

func buildMTU(pdu []byte, opcode uint8, mtu uint16) (int, error) {
	if err := checkBuild(pdu, ExchangeMTUSize); err != nil {
		return 0, err
	}
	pdu[0] = opcode
	binary.LittleEndian.PutUint16(pdu[1:3], mtu)
	return ExchangeMTUSize, nil
}

// BuildFindInformationRequest encodes a Find Information Request.
func BuildFindInformationRequest(pdu []byte, r HandleRange) (int, error) {
	if err := checkBuild(pdu, FindInformationRequestSize); err != nil {
		return 0, err
	}
	pdu[0] = OpFindInformationRequest
	putRange(pdu[1:5], r)
	return FindInformationRequestSize, nil
}

// BuildFindInformationResponse encodes count handle/UUID pairs taken from list.
func BuildFindInformationResponse(pdu []byte, format uint8, count int, list []byte) (int, error) {
	itemLen, err := FindInfoItemLen(format)
	if err != nil {
		return 0, err
	}
	tail, err := listTail(itemLen, count, list)
	if err != nil {
		return 0, err
	}
	size := FindInformationHeaderSize + len(tail)
	if err := checkBuild(pdu, size); err != nil {
		return 0, err
	}
	pdu[0] = OpFindInformationResponse
	pdu[1] = format
	copy(pdu[FindInformationHeaderSize:], tail)
	return size, nil
}

// BuildFindByTypeValueRequest encodes a Find By Type Value Request.
func BuildFindByTypeValueRequest(pdu []byte, r HandleRange, attrType uint16, value []byte) (int, error) {
	size := FindByTypeValueHeaderSize + len(value)
	if err := checkBuild(pdu, size); err != nil {
		return 0, err
	}
	pdu[0] = OpFindByTypeValueRequest
	putRange(pdu[1:5], r)
	binary.LittleEndian.PutUint16(pdu[5:7], attrType)
	copy(pdu[FindByTypeValueHeaderSize:], value)
	return size, nil
}

// BuildFindByTypeValueResponse encodes a handles information list.
func BuildFindByTypeValueResponse(pdu []byte, ranges []HandleRange) (int, error) {
	size := OpcodeOnlySize + 4*len(ranges)
	if err := checkBuild(pdu, size); err != nil {
		return 0, err
	}
	pdu[0] = OpFindByTypeValueResponse
	for i, r := range ranges {
		putRange(pdu[1+4*i:], r)
	}
	return size, nil
}

// BuildReadByTypeRequest encodes a Read By Type Request.
func BuildReadByTypeRequest(pdu []byte, r HandleRange, attrType UUID) (int, error) {
	return buildTypeRequest(pdu, OpReadByTypeRequest, r, attrType)
}

// BuildReadByGroupTypeRequest encodes a Read By Group Type Request.
func BuildReadByGroupTypeRequest(pdu []byte, r HandleRange, groupType UUID) (int, error) {
	return buildTypeRequest(pdu, OpReadByGroupTypeRequest, r, groupType)
}

func buildTypeRequest(pdu []byte, opcode uint8, r HandleRange, u UUID) (int, error) {
	if u.Len() == 0 {
		return 0, ErrInvalidUUID
	}
	size := ReadByTypeHeaderSize + u.Len()
	if err := checkBuild(pdu, size); err != nil {
		return 0, err
	}
	pdu[0] = opcode
	putRange(pdu[1:5], r)
	u.Put(pdu[ReadByTypeHeaderSize:])
	return size, nil
}

// BuildReadByTypeResponse encodes count items of itemLen bytes taken from list.
func BuildReadByTypeResponse(pdu []byte, itemLen uint8, count int, list []byte) (int, error) {
	return buildListResponse(pdu, OpReadByTypeResponse, itemLen, count, list)
}

// BuildReadByGroupTypeResponse encodes count items of itemLen bytes taken from list.
func BuildReadByGroupTypeResponse(pdu []byte, itemLen uint8, count int, list []byte) (int, error) {
	return buildListResponse(pdu, OpReadByGroupTypeResponse, itemLen, count, list)
}

func buildListResponse(pdu []byte, opcode uint8, itemLen uint8, count int, list []byte) (int, error) {
	if itemLen == 0 {
		return 0, ErrInvalidArgument
	}
	tail, err := listTail(int(itemLen), count, list)
	if err != nil {
		return 0, err
	}
	size := ReadByTypeRespHeaderSize + len(tail)
	if err := checkBuild(pdu, size); err != nil {
		return 0, err
	}
	pdu[0] = opcode
	pdu[1] = itemLen
	copy(pdu[ReadByTypeRespHeaderSize:], tail)
	return size, nil
}

// listTail returns the first count*itemLen bytes of list.
func listTail(itemLen, count int, list []byte) ([]byte, error) {
	if count < 0 {
		return nil, ErrInvalidArgument
	}
	if count > 0 && list == nil {
		return nil, ErrNullArgument
	}
	n := itemLen * count
	if len(list) < n {
		return nil, ErrInvalidArgument
	}
	return list[:n], nil
}

// BuildReadRequest encodes a Read Request.
func BuildReadRequest(pdu []byte, handle Handle) (int, error) {
	if err := checkBuild(pdu, ReadRequestSize); err != nil {
		return 0, err
	}
	pdu[0] = OpReadRequest
	binary.LittleEndian.PutUint16(pdu[1:3], handle)
	return ReadRequestSize, nil
}

// BuildReadResponse encodes a Read Response carrying value.
func BuildReadResponse(pdu []byte, value []byte) (int, error) {
	return buildValue(pdu, OpReadResponse, value)
}

// BuildReadBlobRequest encodes a Read Blob Request.
func BuildReadBlobRequest(pdu []byte, handle Handle, offset uint16) (int, error) {
	if err := checkBuild(pdu, ReadBlobRequestSize); err != nil {
		return 0, err
	}
	pdu[0] = OpReadBlobRequest
	binary.LittleEndian.PutUint16(pdu[1:3], handle)
	binary.LittleEndian.PutUint16(pdu[3:5], offset)
	return ReadBlobRequestSize, nil
}

// BuildReadBlobResponse encodes a Read Blob Response carrying part of a value.
func BuildReadBlobResponse(pdu []byte, value []byte) (int, error) {
	return buildValue(pdu, OpReadBlobResponse, value)
}

// BuildReadMultipleRequest encodes a Read Multiple Request. At least two
// handles are required.
func BuildReadMultipleRequest(pdu []byte, handles []Handle) (int, error) {
	if handles == nil {
		return 0, ErrNullArgument
	}
	if len(handles) < 2 {
		return 0, ErrInvalidArgument
	}
	size := OpcodeOnlySize + 2*len(handles)
	if err := checkBuild(pdu, size); err != nil {
		return 0, err
	}
	pdu[0] = OpReadMultipleRequest
	for i, h := range handles {
		binary.LittleEndian.PutUint16(pdu[1+2*i:], h)
	}
	return size, nil
}

// BuildReadMultipleResponse encodes the concatenated set of values.
func BuildReadMultipleResponse(pdu []byte, values []byte) (int, error) {
	return buildValue(pdu, OpReadMultipleResponse, values)
}

func buildValue(pdu []byte, opcode uint8, value []byte) (int, error) {
	size := ValueResponseHeaderSize + len(value)
	if err := checkBuild(pdu, size); err != nil {
		return 0, err
	}
	pdu[0] = opcode
	copy(pdu[ValueResponseHeaderSize:], value)
	return size, nil
}

// BuildWriteRequest encodes a Write Request.
func BuildWriteRequest(pdu []byte, handle Handle, value []byte) (int, error) {
	return buildHandleValue(pdu, OpWriteRequest, handle, value)
}

// BuildWriteResponse encodes a Write Response.
func BuildWriteResponse(pdu []byte) (int, error) {
	return buildOpcodeOnly(pdu, OpWriteResponse)
}

// BuildWriteCommand encodes a Write Command.
func BuildWriteCommand(pdu []byte, handle Handle, value []byte) (int, error) {
	return buildHandleValue(pdu, OpWriteCommand, handle, value)
}

// BuildPrepareWriteRequest encodes a Prepare Write Request.
func BuildPrepareWriteRequest(pdu []byte, handle Handle, offset uint16, value []byte) (int, error) {
	return buildPrepareWrite(pdu, OpPrepareWriteRequest, handle, offset, value)
}

// BuildPrepareWriteResponse encodes a Prepare Write Response.
func BuildPrepareWriteResponse(pdu []byte, handle Handle, offset uint16, value []byte) (int, error) {
	return buildPrepareWrite(pdu, OpPrepareWriteResponse, handle, offset, value)
}

func buildPrepareWrite(pdu []byte, opcode uint8, handle Handle, offset uint16, value []byte) (int, error) {
	size := PrepareWriteHeaderSize + len(value)
	if err := checkBuild(pdu, size); err != nil {
		return 0, err
	}
	pdu[0] = opcode
	binary.LittleEndian.PutUint16(pdu[1:3], handle)
	binary.LittleEndian.PutUint16(pdu[3:5], offset)
	copy(pdu[PrepareWriteHeaderSize:], value)
	return size, nil
}

// BuildExecuteWriteRequest encodes an Execute Write Request.
// flags is ExecuteWriteCancel or ExecuteWriteCommit.
func BuildExecuteWriteRequest(pdu []byte, flags uint8) (int, error) {
	if flags != ExecuteWriteCancel && flags != ExecuteWriteCommit {
		return 0, ErrInvalidArgument
	}
	if err := checkBuild(pdu, ExecuteWriteRequestSize); err != nil {
		return 0, err
	}
	pdu[0] = OpExecuteWriteRequest
	pdu[1] = flags
	return ExecuteWriteRequestSize, nil
}

// BuildExecuteWriteResponse encodes an Execute Write Response.
func BuildExecuteWriteResponse(pdu []byte) (int, error) {
	return buildOpcodeOnly(pdu, OpExecuteWriteResponse)
}

// BuildHandleValueNotification encodes a Handle Value Notification.
func BuildHandleValueNotification(pdu []byte, handle Handle, value []byte) (int, error) {
	return buildHandleValue(pdu, OpHandleValueNotification, handle, value)
}

// BuildHandleValueIndication encodes a Handle Value Indication.
func BuildHandleValueIndication(pdu []byte, handle Handle, value []byte) (int, error) {
	return buildHandleValue(pdu, OpHandleValueIndication, handle, value)
}

// BuildHandleValueConfirmation encodes a Handle Value Confirmation.
func BuildHandleValueConfirmation(pdu []byte) (int, error) {
	return buildOpcodeOnly(pdu, OpHandleValueConfirmation)
}

// BuildSignedWriteCommand encodes a Signed Write Command. The signer is
// called over the opcode, handle and value with signCounter, and its 12-byte
// signature is appended. A signer error is returned unchanged.
func BuildSignedWriteCommand(pdu []byte, handle Handle, value []byte, signer Signer, signCounter uint32) (int, error) {
	if signer == nil {
		return 0, ErrNullArgument
	}
	body := HandleValueHeaderSize + len(value)
	size := body + SignatureLen
	if err := checkBuild(pdu, size); err != nil {
		return 0, err
	}
	pdu[0] = OpSignedWriteCommand
	binary.LittleEndian.PutUint16(pdu[1:3], handle)
	copy(pdu[HandleValueHeaderSize:], value)
	sig, err := signer.Sign(pdu[:body], signCounter)
	if err != nil {
		return 0, err
	}
	copy(pdu[body:size], sig[:])
	return size, nil
}

func buildHandleValue(pdu []byte, opcode uint8, handle Handle, value []byte) (int, error) {
	size := HandleValueHeaderSize + len(value)
	if err := checkBuild(pdu, size); err != nil {
		return 0, err
	}
	pdu[0] = opcode
	binary.LittleEndian.PutUint16(pdu[1:3], handle)
	copy(pdu[HandleValueHeaderSize:], value)
	return size, nil
}

func buildOpcodeOnly(pdu []byte, opcode uint8) (int, error) {
	if err := checkBuild(pdu, OpcodeOnlySize); err != nil {
		return 0, err
	}
	pdu[0] = opcode
	return OpcodeOnlySize, nil
}
