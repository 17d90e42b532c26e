package att

import "fmt"

// Handle identifies a single attribute in the peer's attribute table.
type Handle = uint16

const (
	MinHandle Handle = 0x0001
	MaxHandle Handle = 0xFFFF
)

// HandleRange bounds a search, Start <= End.
type HandleRange struct {
	Start Handle
	End   Handle
}

// FullRange covers every valid handle.
var FullRange = HandleRange{Start: MinHandle, End: MaxHandle}

// Valid reports whether the range is non-empty and does not start at 0.
func (r HandleRange) Valid() bool {
	return r.Start != 0 && r.Start <= r.End
}

func (r HandleRange) String() string {
	return fmt.Sprintf("0x%04X-0x%04X", r.Start, r.End)
}
