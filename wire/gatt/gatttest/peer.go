// Package gatttest runs an in-memory ATT server over a wire.Transport so the
// GATT procedures can be exercised end to end.
package gatttest

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire"
	"github.com/user/gattclient/wire/att"
	"github.com/user/gattclient/wire/gatt"
)

const logPrefix = "Peer"

// ResponseFilter may rewrite or drop (return nil) a response before it is sent.
type ResponseFilter func(req, rsp []byte) []byte

// PeerOption configures a Peer
type PeerOption func(*Peer)

// WithServerMTU sets the receive MTU the peer reports
func WithServerMTU(mtu int) PeerOption {
	return func(p *Peer) { p.serverMTU = mtu }
}

// WithResponseFilter installs f on every response
func WithResponseFilter(f ResponseFilter) PeerOption {
	return func(p *Peer) { p.filter = f }
}

// WithVerifier checks Signed Write Commands; failing commands are dropped.
func WithVerifier(v att.Verifier) PeerOption {
	return func(p *Peer) { p.verifier = v }
}

// Peer answers ATT requests from its Database
type Peer struct {
	db        *Database
	cccd      *CCCDManager
	serverMTU int
	filter    ResponseFilter
	verifier  att.Verifier

	mu       sync.Mutex
	t        wire.Transport
	mtu      int
	queue    []att.PrepareWrite
	requests []uint8
	signed   []att.Signature

	confirm chan struct{}
}

// NewPeer creates a peer serving db
func NewPeer(db *Database, opts ...PeerOption) *Peer {
	p := &Peer{
		db:        db,
		cccd:      NewCCCDManager(),
		serverMTU: att.MinMTU,
		mtu:       att.MinMTU,
		confirm:   make(chan struct{}, 16),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DB returns the attribute table
func (p *Peer) DB() *Database {
	return p.db
}

// CCCD returns the client's subscription state
func (p *Peer) CCCD() *CCCDManager {
	return p.cccd
}

// Requests returns the opcodes received so far, in order
func (p *Peer) Requests() []uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint8(nil), p.requests...)
}

// Signatures returns the signatures of the Signed Write Commands applied
func (p *Peer) Signatures() []att.Signature {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]att.Signature(nil), p.signed...)
}

// MTU returns the effective MTU after any exchange
func (p *Peer) MTU() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mtu
}

// Serve answers PDUs from t until it is closed
func (p *Peer) Serve(t wire.Transport) error {
	p.mu.Lock()
	p.t = t
	p.mu.Unlock()

	buf := make([]byte, att.MaxPDUSize)
	for {
		n, err := t.Read(buf)
		if err == io.EOF || (err == nil && n == 0) {
			return nil
		}
		if err != nil {
			return err
		}
		req := append([]byte(nil), buf[:n]...)
		p.mu.Lock()
		p.requests = append(p.requests, req[0])
		p.mu.Unlock()

		rsp := p.handle(req)
		if rsp == nil {
			continue
		}
		if p.filter != nil {
			if rsp = p.filter(req, rsp); rsp == nil {
				continue
			}
		}
		if _, err := t.Write(rsp); err != nil {
			return err
		}
	}
}

// Notify sends a Handle Value Notification if the client enabled it
func (p *Peer) Notify(valueHandle att.Handle, value []byte) error {
	if !p.cccd.IsNotifyEnabled(valueHandle) {
		return errors.Errorf("notifications not enabled for 0x%04X", valueHandle)
	}
	return p.send(valueHandle, value, att.BuildHandleValueNotification)
}

// Indicate sends a Handle Value Indication and waits for the confirmation
func (p *Peer) Indicate(valueHandle att.Handle, value []byte, timeout time.Duration) error {
	if !p.cccd.IsIndicateEnabled(valueHandle) {
		return errors.Errorf("indications not enabled for 0x%04X", valueHandle)
	}
	if err := p.send(valueHandle, value, att.BuildHandleValueIndication); err != nil {
		return err
	}
	select {
	case <-p.confirm:
		return nil
	case <-time.After(timeout):
		return att.ErrTimeout
	}
}

func (p *Peer) send(h att.Handle, value []byte, build func([]byte, att.Handle, []byte) (int, error)) error {
	p.mu.Lock()
	t, mtu := p.t, p.mtu
	p.mu.Unlock()
	if t == nil {
		return att.ErrNotConnected
	}
	if len(value) > mtu-att.HandleValueHeaderSize {
		value = value[:mtu-att.HandleValueHeaderSize]
	}
	buf := make([]byte, mtu)
	n, err := build(buf, h, value)
	if err != nil {
		return err
	}
	_, err = t.Write(buf[:n])
	return err
}

func (p *Peer) currentMTU() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mtu
}

// handle returns the response PDU for req, or nil for commands
func (p *Peer) handle(req []byte) []byte {
	switch req[0] {
	case att.OpExchangeMTURequest:
		return p.exchangeMTU(req)
	case att.OpReadByGroupTypeRequest:
		return p.readByGroupType(req)
	case att.OpFindByTypeValueRequest:
		return p.findByTypeValue(req)
	case att.OpReadByTypeRequest:
		return p.readByType(req)
	case att.OpFindInformationRequest:
		return p.findInformation(req)
	case att.OpReadRequest:
		return p.read(req)
	case att.OpReadBlobRequest:
		return p.readBlob(req)
	case att.OpReadMultipleRequest:
		return p.readMultiple(req)
	case att.OpWriteRequest:
		return p.write(req)
	case att.OpWriteCommand:
		p.writeCommand(req)
		return nil
	case att.OpSignedWriteCommand:
		p.signedWrite(req)
		return nil
	case att.OpPrepareWriteRequest:
		return p.prepareWrite(req)
	case att.OpExecuteWriteRequest:
		return p.executeWrite(req)
	case att.OpHandleValueConfirmation:
		select {
		case p.confirm <- struct{}{}:
		default:
		}
		return nil
	}

	if att.IsRequest(req[0]) {
		return errorResponse(req[0], 0, att.EcodeRequestNotSupported)
	}
	logger.Debug(logPrefix, "ignoring %s", att.OpcodeName(req[0]))
	return nil
}

func errorResponse(op uint8, h att.Handle, code uint8) []byte {
	buf := make([]byte, att.ErrorResponseSize)
	n, _ := att.BuildErrorResponse(buf, op, h, code)
	return buf[:n]
}

// respond builds a response into an MTU-sized buffer
func (p *Peer) respond(build func([]byte) (int, error)) []byte {
	buf := make([]byte, p.currentMTU())
	n, err := build(buf)
	if err != nil {
		logger.Warn(logPrefix, "build response: %v", err)
		return errorResponse(0, 0, att.EcodeUnlikelyError)
	}
	return buf[:n]
}

func (p *Peer) exchangeMTU(req []byte) []byte {
	client, err := att.ParseExchangeMTURequest(req)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}
	mtu := int(client)
	if p.serverMTU < mtu {
		mtu = p.serverMTU
	}
	if mtu < att.MinMTU {
		mtu = att.MinMTU
	}
	// the response itself still goes out at the old MTU
	rsp := p.respond(func(b []byte) (int, error) {
		return att.BuildExchangeMTUResponse(b, uint16(p.serverMTU))
	})
	p.mu.Lock()
	p.mtu = mtu
	p.mu.Unlock()
	return rsp
}

// groupEnd is the handle before the next service declaration
func (p *Peer) groupEnd(start att.Handle) att.Handle {
	for _, a := range p.db.Range(att.HandleRange{Start: start + 1, End: att.MaxHandle}) {
		if isServiceDecl(a.Type) {
			return a.Handle - 1
		}
	}
	return p.db.Last()
}

func isServiceDecl(u att.UUID) bool {
	return u.Equal(gatt.UUIDPrimaryService) || u.Equal(gatt.UUIDSecondaryService)
}

func (p *Peer) readByGroupType(req []byte) []byte {
	rng, groupType, err := att.ParseReadByGroupTypeRequest(req)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}
	if !rng.Valid() {
		return errorResponse(req[0], rng.Start, att.EcodeInvalidHandle)
	}
	if !isServiceDecl(groupType) {
		return errorResponse(req[0], rng.Start, att.EcodeUnsupportedGroupType)
	}

	mtu := p.currentMTU()
	var list []byte
	itemLen, count := 0, 0
	for _, a := range p.db.Range(rng) {
		if !a.Type.Equal(groupType) {
			continue
		}
		item := make([]byte, 4, 4+len(a.Value))
		binary.LittleEndian.PutUint16(item[0:2], a.Handle)
		binary.LittleEndian.PutUint16(item[2:4], p.groupEnd(a.Handle))
		item = append(item, a.Value...)
		if itemLen == 0 {
			itemLen = len(item)
		}
		if len(item) != itemLen || att.ReadByTypeRespHeaderSize+len(list)+itemLen > mtu {
			break
		}
		list = append(list, item...)
		count++
	}
	if count == 0 {
		return errorResponse(req[0], rng.Start, att.EcodeAttributeNotFound)
	}
	return p.respond(func(b []byte) (int, error) {
		return att.BuildReadByGroupTypeResponse(b, uint8(itemLen), count, list)
	})
}

func (p *Peer) findByTypeValue(req []byte) []byte {
	rng, attrType, n, err := att.ParseFindByTypeValueRequest(req, nil)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}
	if !rng.Valid() {
		return errorResponse(req[0], rng.Start, att.EcodeInvalidHandle)
	}
	value := req[att.FindByTypeValueHeaderSize : att.FindByTypeValueHeaderSize+n]

	mtu := p.currentMTU()
	var ranges []att.HandleRange
	for _, a := range p.db.Range(rng) {
		if !a.Type.Equal(att.UUID16(attrType)) || !bytes.Equal(a.Value, value) {
			continue
		}
		if att.OpcodeOnlySize+4*(len(ranges)+1) > mtu {
			break
		}
		end := a.Handle
		if isServiceDecl(a.Type) {
			end = p.groupEnd(a.Handle)
		}
		ranges = append(ranges, att.HandleRange{Start: a.Handle, End: end})
	}
	if len(ranges) == 0 {
		return errorResponse(req[0], rng.Start, att.EcodeAttributeNotFound)
	}
	return p.respond(func(b []byte) (int, error) {
		return att.BuildFindByTypeValueResponse(b, ranges)
	})
}

func (p *Peer) readByType(req []byte) []byte {
	rng, attrType, err := att.ParseReadByTypeRequest(req)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}
	if !rng.Valid() {
		return errorResponse(req[0], rng.Start, att.EcodeInvalidHandle)
	}

	mtu := p.currentMTU()
	maxValue := mtu - 4
	if maxValue > 253 {
		maxValue = 253
	}

	var list []byte
	itemLen, count := 0, 0
	for _, a := range p.db.Range(rng) {
		if !a.Type.Equal(attrType) {
			continue
		}
		if a.Permissions&PermReadable == 0 {
			if count == 0 {
				return errorResponse(req[0], a.Handle, att.EcodeReadNotPermitted)
			}
			break
		}
		v := a.Value
		if len(v) > maxValue {
			v = v[:maxValue]
		}
		item := make([]byte, 2, 2+len(v))
		binary.LittleEndian.PutUint16(item, a.Handle)
		item = append(item, v...)
		if itemLen == 0 {
			itemLen = len(item)
		}
		if len(item) != itemLen || att.ReadByTypeRespHeaderSize+len(list)+itemLen > mtu {
			break
		}
		list = append(list, item...)
		count++
	}
	if count == 0 {
		return errorResponse(req[0], rng.Start, att.EcodeAttributeNotFound)
	}
	return p.respond(func(b []byte) (int, error) {
		return att.BuildReadByTypeResponse(b, uint8(itemLen), count, list)
	})
}

func (p *Peer) findInformation(req []byte) []byte {
	rng, err := att.ParseFindInformationRequest(req)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}
	if !rng.Valid() {
		return errorResponse(req[0], rng.Start, att.EcodeInvalidHandle)
	}

	mtu := p.currentMTU()
	var list []byte
	width, count := 0, 0
	for _, a := range p.db.Range(rng) {
		if width == 0 {
			width = a.Type.Len()
		}
		if a.Type.Len() != width || att.FindInformationHeaderSize+len(list)+2+width > mtu {
			break
		}
		item := make([]byte, 2+width)
		binary.LittleEndian.PutUint16(item, a.Handle)
		a.Type.Put(item[2:])
		list = append(list, item...)
		count++
	}
	if count == 0 {
		return errorResponse(req[0], rng.Start, att.EcodeAttributeNotFound)
	}
	format := uint8(att.FindInfoFormat16)
	if width == 16 {
		format = att.FindInfoFormat128
	}
	return p.respond(func(b []byte) (int, error) {
		return att.BuildFindInformationResponse(b, format, count, list)
	})
}

// readable looks up h and checks its read permission
func (p *Peer) readable(op uint8, h att.Handle) (Attribute, []byte) {
	a, ok := p.db.Get(h)
	if !ok {
		return a, errorResponse(op, h, att.EcodeInvalidHandle)
	}
	if a.Permissions&PermReadable == 0 {
		return a, errorResponse(op, h, att.EcodeReadNotPermitted)
	}
	return a, nil
}

func (p *Peer) truncate(v []byte) []byte {
	if limit := p.currentMTU() - att.ValueResponseHeaderSize; len(v) > limit {
		return v[:limit]
	}
	return v
}

func (p *Peer) read(req []byte) []byte {
	h, err := att.ParseReadRequest(req)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}
	a, errRsp := p.readable(req[0], h)
	if errRsp != nil {
		return errRsp
	}
	return p.respond(func(b []byte) (int, error) {
		return att.BuildReadResponse(b, p.truncate(a.Value))
	})
}

func (p *Peer) readBlob(req []byte) []byte {
	h, offset, err := att.ParseReadBlobRequest(req)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}
	a, errRsp := p.readable(req[0], h)
	if errRsp != nil {
		return errRsp
	}
	if int(offset) > len(a.Value) {
		return errorResponse(req[0], h, att.EcodeInvalidOffset)
	}
	return p.respond(func(b []byte) (int, error) {
		return att.BuildReadBlobResponse(b, p.truncate(a.Value[offset:]))
	})
}

func (p *Peer) readMultiple(req []byte) []byte {
	handles := make([]att.Handle, (len(req)-1)/2)
	n, err := att.ParseReadMultipleRequest(req, handles)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}
	var values []byte
	for _, h := range handles[:n] {
		a, errRsp := p.readable(req[0], h)
		if errRsp != nil {
			return errRsp
		}
		values = append(values, a.Value...)
	}
	return p.respond(func(b []byte) (int, error) {
		return att.BuildReadMultipleResponse(b, p.truncate(values))
	})
}

// store applies a client write, tracking CCCD changes
func (p *Peer) store(op uint8, h att.Handle, value []byte) []byte {
	a, ok := p.db.Get(h)
	if !ok {
		return errorResponse(op, h, att.EcodeInvalidHandle)
	}
	if a.Permissions&PermWritable == 0 {
		return errorResponse(op, h, att.EcodeWriteNotPermitted)
	}
	if a.Type.Equal(gatt.UUIDClientCharacteristicConfig) {
		if err := p.cccd.SetSubscription(p.valueHandleFor(h), value); err != nil {
			return errorResponse(op, h, att.EcodeInvalidAttributeValueLength)
		}
	}
	p.db.Set(h, value)
	return nil
}

// valueHandleFor finds the characteristic a descriptor belongs to
func (p *Peer) valueHandleFor(desc att.Handle) att.Handle {
	for h := desc - 1; h >= att.MinHandle; h-- {
		a, ok := p.db.Get(h)
		if ok && a.Type.Equal(gatt.UUIDCharacteristic) && len(a.Value) >= 3 {
			return binary.LittleEndian.Uint16(a.Value[1:3])
		}
	}
	return 0
}

func (p *Peer) write(req []byte) []byte {
	h, n, err := att.ParseWriteRequest(req, nil)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}
	if errRsp := p.store(req[0], h, req[att.HandleValueHeaderSize:att.HandleValueHeaderSize+n]); errRsp != nil {
		return errRsp
	}
	return p.respond(att.BuildWriteResponse)
}

func (p *Peer) writeCommand(req []byte) {
	h, n, err := att.ParseWriteCommand(req, nil)
	if err != nil {
		return
	}
	p.store(req[0], h, req[att.HandleValueHeaderSize:att.HandleValueHeaderSize+n])
}

func (p *Peer) signedWrite(req []byte) {
	h, n, sig, err := att.ParseSignedWriteCommand(req, nil)
	if err != nil {
		return
	}
	if p.verifier != nil {
		if err := att.VerifySignedWriteCommand(req, p.verifier); err != nil {
			logger.Debug(logPrefix, "dropping signed write to 0x%04X: %v", h, err)
			return
		}
	}
	if p.store(req[0], h, req[att.HandleValueHeaderSize:att.HandleValueHeaderSize+n]) == nil {
		p.mu.Lock()
		p.signed = append(p.signed, sig)
		p.mu.Unlock()
	}
}

func (p *Peer) prepareWrite(req []byte) []byte {
	h, offset, n, err := att.ParsePrepareWriteRequest(req, nil)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}
	a, ok := p.db.Get(h)
	if !ok {
		return errorResponse(req[0], h, att.EcodeInvalidHandle)
	}
	if a.Permissions&PermWritable == 0 {
		return errorResponse(req[0], h, att.EcodeWriteNotPermitted)
	}
	value := append([]byte(nil), req[att.PrepareWriteHeaderSize:att.PrepareWriteHeaderSize+n]...)

	p.mu.Lock()
	p.queue = append(p.queue, att.PrepareWrite{Handle: h, Offset: offset, Value: value})
	p.mu.Unlock()

	return p.respond(func(b []byte) (int, error) {
		return att.BuildPrepareWriteResponse(b, h, offset, value)
	})
}

func (p *Peer) executeWrite(req []byte) []byte {
	flags, err := att.ParseExecuteWriteRequest(req)
	if err != nil {
		return errorResponse(req[0], 0, att.EcodeInvalidPDU)
	}

	p.mu.Lock()
	queue := p.queue
	p.queue = nil
	p.mu.Unlock()

	if flags == att.ExecuteWriteCommit {
		pending := map[att.Handle][]byte{}
		var order []att.Handle
		for _, w := range queue {
			cur, ok := pending[w.Handle]
			if !ok {
				cur = p.db.Value(w.Handle)
				order = append(order, w.Handle)
			}
			if int(w.Offset) > len(cur) {
				return errorResponse(req[0], w.Handle, att.EcodeInvalidOffset)
			}
			pending[w.Handle] = append(cur[:w.Offset:w.Offset], w.Value...)
		}
		for _, h := range order {
			if errRsp := p.store(req[0], h, pending[h]); errRsp != nil {
				return errRsp
			}
		}
	}
	return p.respond(att.BuildExecuteWriteResponse)
}
