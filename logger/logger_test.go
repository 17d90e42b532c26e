package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"trace": TRACE,
		"DEBUG": DEBUG,
		"Info":  INFO,
		"warn":  WARN,
		"ERROR": ERROR,
		"bogus": INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	old := GetLevel()
	defer SetLevel(old)

	SetLevel(WARN)
	Info("Device", "hidden %d", 1)
	Warn("Device", "shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("INFO message logged at WARN level: %s", out)
	}
	if !strings.Contains(out, "shown 2") || !strings.Contains(out, "component=Device") {
		t.Errorf("WARN message missing or without component: %s", out)
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	old := GetLevel()
	defer SetLevel(old)

	SetLevel(WARN)
	WithFields("Device", logrus.Fields{"mtu": 23}).Info("hidden")
	WithFields("Device", logrus.Fields{"mtu": 23}).Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("INFO entry logged at WARN level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "mtu=23") || !strings.Contains(out, "component=Device") {
		t.Errorf("WARN entry missing fields: %s", out)
	}
}

func TestToJSONProto(t *testing.T) {
	s, err := structpb.NewStruct(map[string]interface{}{"opcode": "Read Request"})
	if err != nil {
		t.Fatalf("NewStruct failed: %v", err)
	}
	out := ToJSON(s)
	if !strings.Contains(out, "Read Request") {
		t.Errorf("ToJSON = %s", out)
	}
	if out := ToJSON(map[string]int{"mtu": 23}); !strings.Contains(out, "\"mtu\": 23") {
		t.Errorf("ToJSON = %s", out)
	}
}
