package gatttest

import (
	"sync"

	"github.com/user/gattclient/wire/att"
)

// Attribute permissions (server-side only, never sent over the air)
const (
	PermReadable = 0x01
	PermWritable = 0x02
)

// Attribute is a single entry of the peer's attribute table
type Attribute struct {
	Handle      att.Handle
	Type        att.UUID
	Value       []byte
	Permissions uint8
}

// Database is the attribute table, handles assigned in insertion order
// starting at 0x0001.
type Database struct {
	mu         sync.RWMutex
	attributes map[att.Handle]*Attribute
	nextHandle att.Handle
}

// NewDatabase creates an empty attribute table
func NewDatabase() *Database {
	return &Database{
		attributes: make(map[att.Handle]*Attribute),
		nextHandle: att.MinHandle,
	}
}

// Add appends an attribute and returns its handle
func (db *Database) Add(attrType att.UUID, value []byte, permissions uint8) att.Handle {
	db.mu.Lock()
	defer db.mu.Unlock()

	handle := db.nextHandle
	db.nextHandle++

	db.attributes[handle] = &Attribute{
		Handle:      handle,
		Type:        attrType,
		Value:       append([]byte{}, value...),
		Permissions: permissions,
	}
	return handle
}

// Next returns the handle the next Add will assign
func (db *Database) Next() att.Handle {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.nextHandle
}

// Get returns a copy of the attribute at handle
func (db *Database) Get(handle att.Handle) (Attribute, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	a, ok := db.attributes[handle]
	if !ok {
		return Attribute{}, false
	}
	out := *a
	out.Value = append([]byte{}, a.Value...)
	return out, true
}

// Set replaces the value at handle
func (db *Database) Set(handle att.Handle, value []byte) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	a, ok := db.attributes[handle]
	if !ok {
		return false
	}
	a.Value = append([]byte{}, value...)
	return true
}

// Value returns the current value at handle
func (db *Database) Value(handle att.Handle) []byte {
	a, _ := db.Get(handle)
	return a.Value
}

// Range returns copies of the attributes in r in handle order
func (db *Database) Range(r att.HandleRange) []Attribute {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []Attribute
	for h := r.Start; h != 0 && h <= r.End && h < db.nextHandle; h++ {
		if a, ok := db.attributes[h]; ok {
			c := *a
			c.Value = append([]byte{}, a.Value...)
			out = append(out, c)
		}
	}
	return out
}

// Last returns the highest assigned handle, 0 when empty
func (db *Database) Last() att.Handle {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.nextHandle - 1
}

// Count returns the number of attributes
func (db *Database) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.attributes)
}
