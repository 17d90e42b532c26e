package att

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// UUIDFormat tags which form a UUID is carried in.
type UUIDFormat uint8

const (
	UUIDFormatInvalid UUIDFormat = iota
	UUIDFormat16
	UUIDFormat128
)

// Bluetooth base UUID 00000000-0000-1000-8000-00805F9B34FB
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// UUID is either a 16-bit short UUID or a 128-bit long UUID.
// Long holds the wire (little-endian) byte order.
type UUID struct {
	Format UUIDFormat
	Short  uint16
	Long   [16]byte
}

// UUID16 returns a short UUID.
func UUID16(v uint16) UUID {
	return UUID{Format: UUIDFormat16, Short: v}
}

// UUID128 returns a long UUID from a google/uuid value.
func UUID128(u uuid.UUID) UUID {
	out := UUID{Format: UUIDFormat128}
	for i := 0; i < 16; i++ {
		out.Long[i] = u[15-i]
	}
	return out
}

// ParseUUID accepts "180F", "0x180F" or a canonical 128-bit string.
func ParseUUID(s string) (UUID, error) {
	t := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(t) == 4 {
		v, err := strconv.ParseUint(t, 16, 16)
		if err != nil {
			return UUID{}, ErrInvalidUUID
		}
		return UUID16(uint16(v)), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, ErrInvalidUUID
	}
	return UUID128(u), nil
}

// UUIDFromBytes decodes a UUID from its wire form. Only 2 and 16 byte
// inputs are valid.
func UUIDFromBytes(b []byte) (UUID, error) {
	switch len(b) {
	case 2:
		return UUID16(binary.LittleEndian.Uint16(b)), nil
	case 16:
		u := UUID{Format: UUIDFormat128}
		copy(u.Long[:], b)
		return u, nil
	default:
		return UUID{}, ErrInvalidUUID
	}
}

// Len returns the encoded length: 2, 16, or 0 for an invalid format tag.
func (u UUID) Len() int {
	switch u.Format {
	case UUIDFormat16:
		return 2
	case UUIDFormat128:
		return 16
	default:
		return 0
	}
}

// Put writes the wire form into b and returns the number of bytes written.
func (u UUID) Put(b []byte) int {
	switch u.Format {
	case UUIDFormat16:
		binary.LittleEndian.PutUint16(b, u.Short)
		return 2
	case UUIDFormat128:
		return copy(b, u.Long[:])
	default:
		return 0
	}
}

// Bytes returns the wire form.
func (u UUID) Bytes() []byte {
	b := make([]byte, u.Len())
	u.Put(b)
	return b
}

// Expand returns the 128-bit form of u, placing short UUIDs into the base UUID.
func (u UUID) Expand() UUID {
	if u.Format != UUIDFormat16 {
		return u
	}
	full := baseUUID
	binary.BigEndian.PutUint16(full[2:4], u.Short)
	return UUID128(full)
}

// Equal compares two UUIDs, treating a short UUID and its base expansion as equal.
func (u UUID) Equal(o UUID) bool {
	if u.Format == UUIDFormat16 && o.Format == UUIDFormat16 {
		return u.Short == o.Short
	}
	a, b := u.Expand(), o.Expand()
	return a.Format == UUIDFormat128 && b.Format == UUIDFormat128 && a.Long == b.Long
}

// Google returns the long form as a google/uuid value.
func (u UUID) Google() uuid.UUID {
	e := u.Expand()
	var out uuid.UUID
	for i := 0; i < 16; i++ {
		out[i] = e.Long[15-i]
	}
	return out
}

func (u UUID) String() string {
	switch u.Format {
	case UUIDFormat16:
		return fmt.Sprintf("0x%04X", u.Short)
	case UUIDFormat128:
		return u.Google().String()
	default:
		return "invalid"
	}
}
