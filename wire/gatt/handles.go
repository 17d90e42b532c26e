package gatt

import (
	"fmt"

	"github.com/user/gattclient/wire/att"
)

// Well-known GATT attribute types
var (
	// Declarations
	UUIDPrimaryService   = att.UUID16(0x2800)
	UUIDSecondaryService = att.UUID16(0x2801)
	UUIDInclude          = att.UUID16(0x2802)
	UUIDCharacteristic   = att.UUID16(0x2803)

	// Descriptors
	UUIDCharExtProps               = att.UUID16(0x2900)
	UUIDCharUserDescription        = att.UUID16(0x2901)
	UUIDClientCharacteristicConfig = att.UUID16(0x2902) // CCCD
	UUIDServerCharacteristicConfig = att.UUID16(0x2903)
	UUIDCharPresentationFormat     = att.UUID16(0x2904)
	UUIDCharAggregateFormat        = att.UUID16(0x2905)
)

// Characteristic Properties (bitmask)
const (
	PropBroadcast                 = 0x01
	PropRead                      = 0x02
	PropWriteWithoutResponse      = 0x04
	PropWrite                     = 0x08
	PropNotify                    = 0x10
	PropIndicate                  = 0x20
	PropAuthenticatedSignedWrites = 0x40
	PropExtendedProperties        = 0x80
)

var propNames = []struct {
	bit  uint8
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropAuthenticatedSignedWrites, "signed-write"},
	{PropExtendedProperties, "extended"},
}

// PropertyNames lists the names of the bits set in props
func PropertyNames(props uint8) []string {
	var out []string
	for _, p := range propNames {
		if props&p.bit != 0 {
			out = append(out, p.name)
		}
	}
	return out
}

// Service is a discovered primary or included service
type Service struct {
	UUID        att.UUID
	StartHandle att.Handle
	EndHandle   att.Handle

	Includes        []IncludedService
	Characteristics []Characteristic
}

// Range returns the handle range the service occupies
func (s Service) Range() att.HandleRange {
	return att.HandleRange{Start: s.StartHandle, End: s.EndHandle}
}

func (s Service) String() string {
	return fmt.Sprintf("service %s [%s]", s.UUID, s.Range())
}

// IncludedService is an include declaration found inside a service
type IncludedService struct {
	Handle      att.Handle // include declaration
	StartHandle att.Handle
	EndHandle   att.Handle
	UUID        att.UUID
}

// Characteristic is a discovered characteristic declaration
type Characteristic struct {
	UUID        att.UUID
	Properties  uint8
	Handle      att.Handle // declaration
	ValueHandle att.Handle
	EndHandle   att.Handle // last handle before the next declaration or service end

	Descriptors []Descriptor
}

// CCCD returns the client characteristic configuration descriptor handle, if
// one was discovered.
func (c Characteristic) CCCD() (att.Handle, bool) {
	for _, d := range c.Descriptors {
		if d.UUID.Equal(UUIDClientCharacteristicConfig) {
			return d.Handle, true
		}
	}
	return 0, false
}

// CanNotify reports whether the characteristic supports notifications
func (c Characteristic) CanNotify() bool {
	return c.Properties&PropNotify != 0
}

// CanIndicate reports whether the characteristic supports indications
func (c Characteristic) CanIndicate() bool {
	return c.Properties&PropIndicate != 0
}

func (c Characteristic) String() string {
	return fmt.Sprintf("characteristic %s decl=0x%04X value=0x%04X props=%v",
		c.UUID, c.Handle, c.ValueHandle, PropertyNames(c.Properties))
}

// Descriptor is a discovered characteristic descriptor
type Descriptor struct {
	UUID   att.UUID
	Handle att.Handle
}

// Profile is the full attribute layout of a peer
type Profile struct {
	Services []Service
}

// FindService returns the first service with the given UUID
func (p *Profile) FindService(u att.UUID) (*Service, bool) {
	for i := range p.Services {
		if p.Services[i].UUID.Equal(u) {
			return &p.Services[i], true
		}
	}
	return nil, false
}

// FindCharacteristic returns the first characteristic with the given UUID in
// any service.
func (p *Profile) FindCharacteristic(u att.UUID) (*Characteristic, bool) {
	for i := range p.Services {
		chars := p.Services[i].Characteristics
		for j := range chars {
			if chars[j].UUID.Equal(u) {
				return &chars[j], true
			}
		}
	}
	return nil, false
}

// FindDescriptor returns the first descriptor with the given UUID in any
// characteristic.
func (p *Profile) FindDescriptor(u att.UUID) (Descriptor, bool) {
	for _, s := range p.Services {
		for _, c := range s.Characteristics {
			for _, d := range c.Descriptors {
				if d.UUID.Equal(u) {
					return d, true
				}
			}
		}
	}
	return Descriptor{}, false
}
