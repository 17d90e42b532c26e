package gatt

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/user/gattclient/wire/att"
)

// CCCD (Client Characteristic Configuration Descriptor) values
const (
	CCCDNotificationsDisabled = 0x0000
	CCCDNotificationsEnabled  = 0x0001
	CCCDIndicationsEnabled    = 0x0002
	CCCDBothEnabled           = 0x0003
)

// EncodeCCCDValue converts subscription state to CCCD value bytes (little-endian)
func EncodeCCCDValue(notifyEnabled, indicateEnabled bool) []byte {
	var value uint16
	if notifyEnabled {
		value |= CCCDNotificationsEnabled
	}
	if indicateEnabled {
		value |= CCCDIndicationsEnabled
	}

	cccdValue := make([]byte, 2)
	binary.LittleEndian.PutUint16(cccdValue, value)
	return cccdValue
}

// DecodeCCCDValue parses CCCD value bytes to notification/indication flags
func DecodeCCCDValue(cccdValue []byte) (notifyEnabled, indicateEnabled bool, err error) {
	if len(cccdValue) != 2 {
		return false, false, errors.Wrapf(att.ErrInvalidArgument, "CCCD value is %d bytes", len(cccdValue))
	}

	value := binary.LittleEndian.Uint16(cccdValue)
	notifyEnabled = (value & CCCDNotificationsEnabled) != 0
	indicateEnabled = (value & CCCDIndicationsEnabled) != 0

	return notifyEnabled, indicateEnabled, nil
}

// ReadCCCD reads a characteristic's configuration descriptor
func ReadCCCD(ctx context.Context, r Requester, c Characteristic) (notify, indicate bool, err error) {
	h, ok := c.CCCD()
	if !ok {
		return false, false, errors.Wrapf(att.ErrInvalidArgument, "%s has no CCCD", c.UUID)
	}
	v, err := ReadCharacteristicDescriptor(ctx, r, h)
	if err != nil {
		return false, false, err
	}
	return DecodeCCCDValue(v)
}

// DisableCCCD writes zero to a characteristic's configuration descriptor so
// the peer stops notifying and indicating.
func DisableCCCD(ctx context.Context, r Requester, c Characteristic) error {
	h, ok := c.CCCD()
	if !ok {
		return errors.Wrapf(att.ErrInvalidArgument, "%s has no CCCD", c.UUID)
	}
	return WriteCharacteristicDescriptor(ctx, r, h, EncodeCCCDValue(false, false))
}
