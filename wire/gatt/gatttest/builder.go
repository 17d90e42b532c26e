package gatttest

import (
	"encoding/binary"

	"github.com/user/gattclient/wire/att"
	"github.com/user/gattclient/wire/gatt"
)

// Service is a service definition for the peer's table
type Service struct {
	UUID            att.UUID
	Primary         bool
	Includes        []int // indexes of earlier services in the same Build call
	Characteristics []Characteristic
}

// Characteristic is a characteristic definition
type Characteristic struct {
	UUID        att.UUID
	Properties  uint8
	Value       []byte
	Descriptors []Descriptor
}

// Descriptor is a descriptor definition
type Descriptor struct {
	UUID  att.UUID
	Value []byte
}

// ServiceHandles records where a built service landed
type ServiceHandles struct {
	Start att.Handle
	End   att.Handle
	// characteristic value handles in definition order
	Values []att.Handle
	// CCCD handles by value handle
	CCCDs map[att.Handle]att.Handle
}

// Build lays out services in db and returns their handles
func Build(db *Database, services []Service) []ServiceHandles {
	out := make([]ServiceHandles, 0, len(services))
	for _, svc := range services {
		out = append(out, buildService(db, svc, out))
	}
	return out
}

func buildService(db *Database, svc Service, built []ServiceHandles) ServiceHandles {
	info := ServiceHandles{CCCDs: make(map[att.Handle]att.Handle)}

	declType := gatt.UUIDSecondaryService
	if svc.Primary {
		declType = gatt.UUIDPrimaryService
	}
	info.Start = db.Add(declType, svc.UUID.Bytes(), PermReadable)

	// Include declaration: [start][end][UUID if 16-bit]
	for _, idx := range svc.Includes {
		inc := built[idx]
		incUUID := declaredUUID(db, inc.Start)
		value := make([]byte, 4, 6)
		binary.LittleEndian.PutUint16(value[0:2], inc.Start)
		binary.LittleEndian.PutUint16(value[2:4], inc.End)
		if incUUID.Format == att.UUIDFormat16 {
			value = append(value, incUUID.Bytes()...)
		}
		db.Add(gatt.UUIDInclude, value, PermReadable)
	}

	for _, c := range svc.Characteristics {
		value, cccd := buildCharacteristic(db, c)
		info.Values = append(info.Values, value)
		if cccd != 0 {
			info.CCCDs[value] = cccd
		}
	}

	info.End = db.Next() - 1
	return info
}

// declaredUUID returns the UUID declared at a service declaration handle
func declaredUUID(db *Database, decl att.Handle) att.UUID {
	u, _ := att.UUIDFromBytes(db.Value(decl))
	return u
}

// buildCharacteristic adds declaration, value and descriptors. A CCCD is
// appended when the characteristic can notify or indicate.
func buildCharacteristic(db *Database, c Characteristic) (value, cccd att.Handle) {
	// Characteristic declaration: [Properties][Value Handle][UUID]
	decl := make([]byte, 3, 3+c.UUID.Len())
	decl[0] = c.Properties
	binary.LittleEndian.PutUint16(decl[1:3], db.Next()+1)
	decl = append(decl, c.UUID.Bytes()...)
	db.Add(gatt.UUIDCharacteristic, decl, PermReadable)

	value = db.Add(c.UUID, c.Value, determinePermissions(c.Properties))

	for _, d := range c.Descriptors {
		db.Add(d.UUID, d.Value, PermReadable|PermWritable)
	}

	if c.Properties&(gatt.PropNotify|gatt.PropIndicate) != 0 {
		cccd = db.Add(gatt.UUIDClientCharacteristicConfig, []byte{0x00, 0x00}, PermReadable|PermWritable)
	}
	return value, cccd
}

// determinePermissions converts characteristic properties to attribute permissions
func determinePermissions(properties uint8) uint8 {
	var perms uint8
	if properties&gatt.PropRead != 0 {
		perms |= PermReadable
	}
	if properties&(gatt.PropWrite|gatt.PropWriteWithoutResponse|gatt.PropAuthenticatedSignedWrites) != 0 {
		perms |= PermWritable
	}
	return perms
}

// NewGenericAccessService creates the mandatory Generic Access service (0x1800)
func NewGenericAccessService(deviceName string, appearance uint16) Service {
	return Service{
		UUID:    att.UUID16(0x1800),
		Primary: true,
		Characteristics: []Characteristic{
			{
				UUID:       att.UUID16(0x2A00), // Device Name
				Properties: gatt.PropRead,
				Value:      []byte(deviceName),
			},
			{
				UUID:       att.UUID16(0x2A01), // Appearance
				Properties: gatt.PropRead,
				Value:      []byte{byte(appearance), byte(appearance >> 8)},
			},
		},
	}
}

// NewGenericAttributeService creates the mandatory Generic Attribute service (0x1801)
func NewGenericAttributeService() Service {
	return Service{
		UUID:    att.UUID16(0x1801),
		Primary: true,
		Characteristics: []Characteristic{
			{
				UUID:       att.UUID16(0x2A05), // Service Changed
				Properties: gatt.PropIndicate,
				Value:      []byte{0x00, 0x00, 0x00, 0x00},
			},
		},
	}
}
