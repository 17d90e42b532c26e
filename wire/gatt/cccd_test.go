package gatt

import (
	"testing"

	"github.com/user/gattclient/wire/att"
)

func TestCCCDEncodeDecode(t *testing.T) {
	tests := []struct {
		name            string
		notifyEnabled   bool
		indicateEnabled bool
		expectedValue   uint16
	}{
		{"both disabled", false, false, CCCDNotificationsDisabled},
		{"notifications enabled", true, false, CCCDNotificationsEnabled},
		{"indications enabled", false, true, CCCDIndicationsEnabled},
		{"both enabled", true, true, CCCDBothEnabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cccdValue := EncodeCCCDValue(tt.notifyEnabled, tt.indicateEnabled)
			if len(cccdValue) != 2 {
				t.Fatalf("Expected CCCD value length 2, got %d", len(cccdValue))
			}

			value := uint16(cccdValue[0]) | (uint16(cccdValue[1]) << 8)
			if value != tt.expectedValue {
				t.Errorf("Expected CCCD value 0x%04X, got 0x%04X", tt.expectedValue, value)
			}

			notify, indicate, err := DecodeCCCDValue(cccdValue)
			if err != nil {
				t.Errorf("DecodeCCCDValue failed: %v", err)
			}
			if notify != tt.notifyEnabled {
				t.Errorf("Expected notify=%v, got %v", tt.notifyEnabled, notify)
			}
			if indicate != tt.indicateEnabled {
				t.Errorf("Expected indicate=%v, got %v", tt.indicateEnabled, indicate)
			}
		})
	}
}

func TestCCCDDecodeInvalidLength(t *testing.T) {
	for _, v := range [][]byte{{}, {0x01}, {0x01, 0x00, 0x00}} {
		if _, _, err := DecodeCCCDValue(v); err == nil {
			t.Errorf("DecodeCCCDValue(%x) succeeded, want error", v)
		}
	}
}

func TestCharacteristicCCCDLookup(t *testing.T) {
	c := Characteristic{
		UUID:        att.UUID16(0x2A37),
		Properties:  PropNotify,
		ValueHandle: 0x0010,
		Descriptors: []Descriptor{
			{UUID: UUIDCharUserDescription, Handle: 0x0011},
			{UUID: UUIDClientCharacteristicConfig, Handle: 0x0012},
		},
	}

	h, ok := c.CCCD()
	if !ok || h != 0x0012 {
		t.Errorf("CCCD() = 0x%04X, %v, want 0x0012, true", h, ok)
	}
	if !c.CanNotify() || c.CanIndicate() {
		t.Errorf("CanNotify/CanIndicate = %v/%v, want true/false", c.CanNotify(), c.CanIndicate())
	}

	c.Descriptors = nil
	if _, ok := c.CCCD(); ok {
		t.Error("CCCD() found a descriptor on a characteristic without any")
	}
}

func TestPropertyNames(t *testing.T) {
	got := PropertyNames(PropRead | PropNotify)
	if len(got) != 2 || got[0] != "read" || got[1] != "notify" {
		t.Errorf("PropertyNames = %v, want [read notify]", got)
	}
}

func TestProfileLookup(t *testing.T) {
	p := Profile{Services: []Service{
		{
			UUID: att.UUID16(0x180F),
			Characteristics: []Characteristic{
				{UUID: att.UUID16(0x2A19), ValueHandle: 3, Descriptors: []Descriptor{
					{UUID: UUIDClientCharacteristicConfig, Handle: 4},
				}},
			},
		},
	}}

	if _, ok := p.FindService(att.UUID16(0x180F).Expand()); !ok {
		t.Error("FindService did not match the 128-bit form of 0x180F")
	}
	c, ok := p.FindCharacteristic(att.UUID16(0x2A19))
	if !ok || c.ValueHandle != 3 {
		t.Errorf("FindCharacteristic = %+v, %v", c, ok)
	}
	d, ok := p.FindDescriptor(UUIDClientCharacteristicConfig)
	if !ok || d.Handle != 4 {
		t.Errorf("FindDescriptor = %+v, %v", d, ok)
	}
	if _, ok := p.FindService(att.UUID16(0x1800)); ok {
		t.Error("FindService matched a missing service")
	}
}
