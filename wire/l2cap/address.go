package l2cap

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// LE address types for the remote device
const (
	AddrLEPublic uint8 = 0x01
	AddrLERandom uint8 = 0x02
)

// Security levels for BT_SECURITY
const (
	SecuritySDP    uint8 = 0
	SecurityLow    uint8 = 1
	SecurityMedium uint8 = 2
	SecurityHigh   uint8 = 3
)

// Address is a Bluetooth device address in display order
// (most significant byte first, as in "AA:BB:CC:DD:EE:FF").
type Address [6]byte

// ParseAddress parses a colon separated device address.
func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.Split(s, ":")
	if len(parts) != len(a) {
		return a, errors.Errorf("l2cap: invalid address %q", s)
	}
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 1 {
			return a, errors.Errorf("l2cap: invalid address %q", s)
		}
		a[i] = b[0]
	}
	return a, nil
}

func (a Address) String() string {
	parts := make([]string, len(a))
	for i, b := range a {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}

// DialOptions selects the remote address type and link security.
type DialOptions struct {
	AddrType uint8
	Security uint8
}

// DefaultDialOptions targets a public address at low security.
func DefaultDialOptions() DialOptions {
	return DialOptions{AddrType: AddrLEPublic, Security: SecurityLow}
}

// ParseAddrType maps "public" or "random" to an address type.
func ParseAddrType(s string) (uint8, error) {
	switch strings.ToLower(s) {
	case "", "public":
		return AddrLEPublic, nil
	case "random":
		return AddrLERandom, nil
	}
	return 0, errors.Errorf("l2cap: unknown address type %q", s)
}
