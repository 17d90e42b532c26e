package l2cap

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
)

func TestPacketEncodeDecode(t *testing.T) {
	tests := []struct {
		name      string
		packet    *Packet
		wantBytes []byte
	}{
		{
			name:      "empty payload",
			packet:    &Packet{ChannelID: ChannelATT, Payload: []byte{}},
			wantBytes: []byte{0x00, 0x00, 0x04, 0x00},
		},
		{
			name:      "small ATT payload",
			packet:    &Packet{ChannelID: ChannelATT, Payload: []byte{0x01, 0x02, 0x03}},
			wantBytes: []byte{0x03, 0x00, 0x04, 0x00, 0x01, 0x02, 0x03},
		},
		{
			name:      "LE signaling channel",
			packet:    &Packet{ChannelID: ChannelLESignal, Payload: []byte{0xAA, 0xBB}},
			wantBytes: []byte{0x02, 0x00, 0x05, 0x00, 0xAA, 0xBB},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.packet.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !bytes.Equal(encoded, tt.wantBytes) {
				t.Errorf("Encode() = %v, want %v", encoded, tt.wantBytes)
			}

			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if decoded.ChannelID != tt.packet.ChannelID {
				t.Errorf("ChannelID = %d, want %d", decoded.ChannelID, tt.packet.ChannelID)
			}
			if !bytes.Equal(decoded.Payload, tt.packet.Payload) {
				t.Errorf("Payload = %v, want %v", decoded.Payload, tt.packet.Payload)
			}
		})
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	p := &Packet{ChannelID: ChannelATT, Payload: make([]byte, 0x10000)}
	if _, err := p.Encode(); errors.Cause(err) != ErrPayloadTooLarge {
		t.Errorf("Encode() error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{
			name:    "too short",
			data:    []byte{0x01, 0x02},
			wantErr: true,
		},
		{
			name:    "incomplete payload",
			data:    []byte{0x0A, 0x00, 0x04, 0x00, 0x01}, // claims 10 bytes, only 1 present
			wantErr: true,
		},
		{
			name:    "valid minimum packet",
			data:    []byte{0x00, 0x00, 0x04, 0x00},
			wantErr: false,
		},
		{
			name:    "trailing bytes ignored",
			data:    []byte{0x01, 0x00, 0x04, 0x00, 0x0A, 0xFF, 0xFF},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && errors.Cause(err) != ErrShortPacket {
				t.Errorf("Decode() error = %v, want ErrShortPacket", err)
			}
		})
	}
}

func TestReadWritePacketStream(t *testing.T) {
	var buf bytes.Buffer
	frames := []*Packet{
		NewATTPacket([]byte{0x0A, 0x03, 0x00}),
		{ChannelID: ChannelSMP, Payload: []byte{0x01}},
		NewATTPacket(nil),
	}
	for _, f := range frames {
		if err := WritePacket(&buf, f); err != nil {
			t.Fatalf("WritePacket() error = %v", err)
		}
	}

	for i, want := range frames {
		got, err := ReadPacket(&buf)
		if err != nil {
			t.Fatalf("ReadPacket() #%d error = %v", i, err)
		}
		if got.ChannelID != want.ChannelID {
			t.Errorf("#%d ChannelID = %d, want %d", i, got.ChannelID, want.ChannelID)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("#%d Payload = %v, want %v", i, got.Payload, want.Payload)
		}
	}

	if _, err := ReadPacket(&buf); err != io.EOF {
		t.Errorf("ReadPacket() at end = %v, want io.EOF", err)
	}
}

func TestReadPacketTruncatedPayload(t *testing.T) {
	r := bytes.NewReader([]byte{0x05, 0x00, 0x04, 0x00, 0x01, 0x02})
	_, err := ReadPacket(r)
	if errors.Cause(err) != io.ErrUnexpectedEOF {
		t.Errorf("ReadPacket() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestNewATTPacket(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	pkt := NewATTPacket(payload)

	if pkt.ChannelID != ChannelATT {
		t.Errorf("ChannelID = %d, want %d", pkt.ChannelID, ChannelATT)
	}
	if !bytes.Equal(pkt.Payload, payload) {
		t.Errorf("Payload = %v, want %v", pkt.Payload, payload)
	}
}

func TestChannelName(t *testing.T) {
	if got := ChannelName(ChannelATT); got != "ATT" {
		t.Errorf("ChannelName(ATT) = %q, want ATT", got)
	}
	if got := ChannelName(0x0040); got != "Unknown" {
		t.Errorf("ChannelName(0x0040) = %q, want Unknown", got)
	}
}
