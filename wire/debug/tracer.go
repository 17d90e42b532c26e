package debug

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/util"
	"github.com/user/gattclient/wire/att"
)

// TraceFile is the file name used under a peer's debug directory
const TraceFile = "att_packets.jsonl"

// Tracer writes one JSON line per ATT PDU sent or received. The files are
// write-only and never read back by the client.
type Tracer struct {
	path string
	mu   sync.Mutex
	f    *os.File
	enc  protojson.MarshalOptions
	now  func() time.Time

	writeFailed bool
}

// NewTracer opens the trace file under the peer's data directory,
// <data dir>/<peer>/debug/att_packets.jsonl.
func NewTracer(peer string) (*Tracer, error) {
	dir := filepath.Join(util.GetDeviceCacheDir(peer), "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "debug: create trace directory")
	}
	return OpenTracer(filepath.Join(dir, TraceFile))
}

// OpenTracer appends to the trace file at path.
func OpenTracer(path string) (*Tracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "debug: open trace file")
	}
	return &Tracer{
		path: path,
		f:    f,
		enc:  protojson.MarshalOptions{UseProtoNames: true},
		now:  time.Now,
	}, nil
}

// Path returns the trace file location
func (t *Tracer) Path() string {
	return t.path
}

// TracePDU records one PDU. Direction is "tx" or "rx". Tracing is
// best-effort: failures are logged and otherwise ignored.
func (t *Tracer) TracePDU(direction, peer string, pdu []byte) {
	rec, err := t.record(direction, peer, pdu)
	if err != nil {
		logger.Debug("TRACE", "cannot build record: %v", err)
		return
	}
	line, err := t.enc.Marshal(rec)
	if err != nil {
		logger.Debug("TRACE", "cannot encode record: %v", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return
	}
	if _, err := t.f.Write(append(line, '\n')); err != nil && !t.writeFailed {
		t.writeFailed = true
		logger.Debug("TRACE", "cannot write %s: %v", t.path, err)
	}
}

func (t *Tracer) record(direction, peer string, pdu []byte) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"timestamp": formatTimestamp(t.now()),
		"direction": direction,
		"peer":      peer,
		"raw_hex":   hex.EncodeToString(pdu),
	}
	if len(pdu) > 0 {
		fields["opcode"] = "0x" + hex.EncodeToString(pdu[:1])
		fields["opcode_name"] = att.OpcodeName(pdu[0])
	}
	rec, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}

	desc, err := att.Describe(pdu)
	if err != nil {
		rec.Fields["error"] = structpb.NewStringValue(err.Error())
		return rec, nil
	}
	data, err := describedStruct(desc)
	if err != nil {
		return nil, err
	}
	if len(data.Fields) > 0 {
		rec.Fields["data"] = structpb.NewStructValue(data)
	}
	return rec, nil
}

// describedStruct converts decoded fields to a Struct through JSON so that
// every numeric width maps to a number value.
func describedStruct(desc map[string]interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(desc)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}

func formatTimestamp(ts time.Time) string {
	b, err := protojson.Marshal(timestamppb.New(ts))
	if err != nil {
		return ts.UTC().Format(time.RFC3339Nano)
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return string(b)
	}
	return s
}

// Close flushes and closes the trace file. Later TracePDU calls are dropped.
func (t *Tracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}
