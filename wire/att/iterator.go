package att

import "encoding/binary"

// ListIterator walks a list of fixed-stride items such as the attribute data
// list of a Read By Type or Read By Group Type response. It yields at most
// count items and never reads past the declared region.
type ListIterator struct {
	data      []byte
	stride    int
	remaining int
}

// NewListIterator returns an iterator over count items of stride bytes.
// count*stride must fit in data.
func NewListIterator(data []byte, stride, count int) (*ListIterator, error) {
	if stride <= 0 || count < 0 {
		return nil, ErrInvalidArgument
	}
	if count*stride > len(data) {
		return nil, ErrIncorrectPDUSize
	}
	return &ListIterator{data: data, stride: stride, remaining: count}, nil
}

// Next returns the next item, or false when the list is exhausted.
func (it *ListIterator) Next() ([]byte, bool) {
	if it.remaining == 0 {
		return nil, false
	}
	item := it.data[:it.stride:it.stride]
	it.data = it.data[it.stride:]
	it.remaining--
	return item, true
}

// Remaining returns how many items are left.
func (it *ListIterator) Remaining() int {
	return it.remaining
}

// AttributeData is one item of a Read By Type (EndGroup is zero) or Read By
// Group Type response. Value aliases the response buffer.
type AttributeData struct {
	Handle   Handle
	EndGroup Handle
	Value    []byte
}

// GroupItem decodes a Read By Group Type item: handle, end group handle, value.
func GroupItem(item []byte) (AttributeData, error) {
	if len(item) < 4 {
		return AttributeData{}, ErrIncorrectPDUSize
	}
	return AttributeData{
		Handle:   binary.LittleEndian.Uint16(item[0:2]),
		EndGroup: binary.LittleEndian.Uint16(item[2:4]),
		Value:    item[4:],
	}, nil
}

// TypeItem decodes a Read By Type item: handle, value.
func TypeItem(item []byte) (AttributeData, error) {
	if len(item) < 2 {
		return AttributeData{}, ErrIncorrectPDUSize
	}
	return AttributeData{
		Handle: binary.LittleEndian.Uint16(item[0:2]),
		Value:  item[2:],
	}, nil
}

// HandleUUID is one handle/type pair of a Find Information response.
type HandleUUID struct {
	Handle Handle
	Type   UUID
}

// InformationItem decodes a Find Information item.
func InformationItem(item []byte) (HandleUUID, error) {
	if len(item) < 2 {
		return HandleUUID{}, ErrIncorrectPDUSize
	}
	u, err := UUIDFromBytes(item[2:])
	if err != nil {
		return HandleUUID{}, err
	}
	return HandleUUID{Handle: binary.LittleEndian.Uint16(item[0:2]), Type: u}, nil
}
