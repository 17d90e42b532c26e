package att

import "bytes"

// PrepareWrite is one queued part of a long or reliable write.
type PrepareWrite struct {
	Handle Handle
	Offset uint16
	Value  []byte
}

// MaxWriteValue returns the largest value a Write Request or Write Command
// can carry at the given MTU.
func MaxWriteValue(mtu int) int {
	if mtu < MinMTU {
		mtu = MinMTU
	}
	return mtu - HandleValueHeaderSize
}

// ShouldFragment returns true if the value does not fit a single Write Request.
func ShouldFragment(mtu int, value []byte) bool {
	return len(value) > MaxWriteValue(mtu)
}

// FragmentWrite splits value into Prepare Write parts of at most mtu-5 bytes.
// An empty value yields a single empty part.
func FragmentWrite(handle Handle, value []byte, mtu int) ([]PrepareWrite, error) {
	if mtu < MinMTU {
		mtu = MinMTU
	}
	chunk := mtu - PrepareWriteHeaderSize
	if len(value) > 0xFFFF {
		return nil, ErrInvalidArgument
	}
	if len(value) == 0 {
		return []PrepareWrite{{Handle: handle}}, nil
	}

	parts := make([]PrepareWrite, 0, (len(value)+chunk-1)/chunk)
	for offset := 0; offset < len(value); offset += chunk {
		end := offset + chunk
		if end > len(value) {
			end = len(value)
		}
		parts = append(parts, PrepareWrite{
			Handle: handle,
			Offset: uint16(offset),
			Value:  value[offset:end],
		})
	}
	return parts, nil
}

// Echoes reports whether a Prepare Write Response echoes p exactly.
func (p PrepareWrite) Echoes(handle Handle, offset uint16, value []byte) bool {
	return p.Handle == handle && p.Offset == offset && bytes.Equal(p.Value, value)
}
