package gatt

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire/att"
)

// listParser is ParseReadByTypeResponse or ParseReadByGroupTypeResponse
type listParser func(pdu []byte, out []byte) (int, int, error)

// attributeList validates a Read By (Group) Type response and returns an
// iterator over its whole items. A trailing fragment is ignored.
func attributeList(rsp []byte, parse listParser) (*att.ListIterator, int, error) {
	itemLen, count, err := parse(rsp, nil)
	if err == att.ErrIncludeFragments {
		logger.Debug(logPrefix, "%s carries a partial item, using %d whole items", att.OpcodeName(rsp[0]), count)
		err = nil
	}
	if err != nil {
		return nil, 0, err
	}
	it, err := att.NewListIterator(rsp[att.ReadByTypeRespHeaderSize:], itemLen, count)
	return it, itemLen, err
}

// DiscoverAllPrimaryServices pages through the peer's primary services with
// Read By Group Type requests until the peer answers Attribute Not Found or
// a group ends at 0xFFFF.
func DiscoverAllPrimaryServices(ctx context.Context, r Requester) ([]Service, error) {
	var services []Service
	start := att.MinHandle

	for {
		rng := att.HandleRange{Start: start, End: att.MaxHandle}
		rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
			return att.BuildReadByGroupTypeRequest(pdu, rng, UUIDPrimaryService)
		})
		if isNotFound(err) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "discover services from 0x%04X", start)
		}

		it, _, err := attributeList(rsp, att.ParseReadByGroupTypeResponse)
		if err != nil {
			return nil, err
		}
		if it.Remaining() == 0 {
			break
		}

		var last att.Handle
		for item, ok := it.Next(); ok; item, ok = it.Next() {
			d, err := att.GroupItem(item)
			if err != nil {
				return nil, err
			}
			u, err := att.UUIDFromBytes(d.Value)
			if err != nil {
				return nil, err
			}
			services = append(services, Service{UUID: u, StartHandle: d.Handle, EndHandle: d.EndGroup})
			last = d.EndGroup
		}

		if last == att.MaxHandle {
			break
		}
		if last < start {
			return nil, errors.Wrapf(att.ErrUnexpectedResponse, "service group ends at 0x%04X before 0x%04X", last, start)
		}
		start = last + 1
	}

	logger.Debug(logPrefix, "discovered %d primary services", len(services))
	return services, nil
}

// DiscoverPrimaryServiceByUUID returns every primary service with UUID u,
// using Find By Type Value requests.
func DiscoverPrimaryServiceByUUID(ctx context.Context, r Requester, u att.UUID) ([]Service, error) {
	if u.Len() == 0 {
		return nil, att.ErrInvalidUUID
	}

	var services []Service
	start := att.MinHandle
	value := u.Bytes()

	for {
		rng := att.HandleRange{Start: start, End: att.MaxHandle}
		rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
			return att.BuildFindByTypeValueRequest(pdu, rng, UUIDPrimaryService.Short, value)
		})
		if isNotFound(err) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "discover service %s", u)
		}

		count, err := att.ParseFindByTypeValueResponse(rsp, nil)
		if err != nil && err != att.ErrIncludeFragments {
			return nil, err
		}
		if count == 0 {
			break
		}
		ranges := make([]att.HandleRange, count)
		if _, err := att.ParseFindByTypeValueResponse(rsp, ranges); err != nil && err != att.ErrIncludeFragments {
			return nil, err
		}

		for _, hr := range ranges {
			services = append(services, Service{UUID: u, StartHandle: hr.Start, EndHandle: hr.End})
		}

		last := ranges[count-1].End
		if last == att.MaxHandle {
			break
		}
		if last < start {
			return nil, errors.Wrapf(att.ErrUnexpectedResponse, "service group ends at 0x%04X before 0x%04X", last, start)
		}
		start = last + 1
	}

	return services, nil
}

// FindIncludedServices lists the include declarations inside svc. Included
// services with 128-bit UUIDs are resolved with an extra Read Request.
func FindIncludedServices(ctx context.Context, r Requester, svc Service) ([]IncludedService, error) {
	var includes []IncludedService
	start := svc.StartHandle

	for start <= svc.EndHandle && start != 0 {
		rng := att.HandleRange{Start: start, End: svc.EndHandle}
		rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
			return att.BuildReadByTypeRequest(pdu, rng, UUIDInclude)
		})
		if isNotFound(err) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "find included services in %s", svc.Range())
		}

		it, itemLen, err := attributeList(rsp, att.ParseReadByTypeResponse)
		if err != nil {
			return nil, err
		}
		if it.Remaining() == 0 {
			break
		}
		// handle + start + end, then an optional 16-bit UUID
		if itemLen != 6 && itemLen != 8 {
			return nil, errors.Wrapf(att.ErrInvalidFormat, "include item length %d", itemLen)
		}

		var last att.Handle
		for item, ok := it.Next(); ok; item, ok = it.Next() {
			d, err := att.TypeItem(item)
			if err != nil {
				return nil, err
			}
			inc := IncludedService{
				Handle:      d.Handle,
				StartHandle: binary.LittleEndian.Uint16(d.Value[0:2]),
				EndHandle:   binary.LittleEndian.Uint16(d.Value[2:4]),
			}
			if len(d.Value) == 6 {
				inc.UUID = att.UUID16(binary.LittleEndian.Uint16(d.Value[4:6]))
			}
			includes = append(includes, inc)
			last = d.Handle
		}

		if last == att.MaxHandle {
			break
		}
		if last < start {
			return nil, errors.Wrapf(att.ErrUnexpectedResponse, "include at 0x%04X is before 0x%04X", last, start)
		}
		start = last + 1
	}

	for i := range includes {
		if includes[i].UUID.Len() != 0 {
			continue
		}
		v, err := ReadCharacteristicValue(ctx, r, includes[i].StartHandle)
		if err != nil {
			return nil, errors.Wrapf(err, "read included service UUID at 0x%04X", includes[i].StartHandle)
		}
		u, err := att.UUIDFromBytes(v)
		if err != nil {
			return nil, err
		}
		includes[i].UUID = u
	}

	return includes, nil
}

// DiscoverAllCharacteristics lists the characteristic declarations in svc.
// Each characteristic's EndHandle is set to the handle before the next
// declaration, or the service end for the last one.
func DiscoverAllCharacteristics(ctx context.Context, r Requester, svc Service) ([]Characteristic, error) {
	var chars []Characteristic
	start := svc.StartHandle

	for start <= svc.EndHandle && start != 0 {
		rng := att.HandleRange{Start: start, End: svc.EndHandle}
		rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
			return att.BuildReadByTypeRequest(pdu, rng, UUIDCharacteristic)
		})
		if isNotFound(err) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "discover characteristics in %s", svc.Range())
		}

		it, itemLen, err := attributeList(rsp, att.ParseReadByTypeResponse)
		if err != nil {
			return nil, err
		}
		if it.Remaining() == 0 {
			break
		}
		// handle + properties + value handle + 16 or 128-bit UUID
		if itemLen != 7 && itemLen != 21 {
			return nil, errors.Wrapf(att.ErrInvalidFormat, "characteristic item length %d", itemLen)
		}

		var last att.Handle
		for item, ok := it.Next(); ok; item, ok = it.Next() {
			d, err := att.TypeItem(item)
			if err != nil {
				return nil, err
			}
			u, err := att.UUIDFromBytes(d.Value[3:])
			if err != nil {
				return nil, err
			}
			c := Characteristic{
				UUID:        u,
				Properties:  d.Value[0],
				Handle:      d.Handle,
				ValueHandle: binary.LittleEndian.Uint16(d.Value[1:3]),
				EndHandle:   svc.EndHandle,
			}
			if n := len(chars); n > 0 {
				chars[n-1].EndHandle = c.Handle - 1
			}
			chars = append(chars, c)
			last = d.Handle
		}

		if last == att.MaxHandle {
			break
		}
		if last < start {
			return nil, errors.Wrapf(att.ErrUnexpectedResponse, "characteristic at 0x%04X is before 0x%04X", last, start)
		}
		start = last + 1
	}

	return chars, nil
}

// DiscoverCharacteristicsByUUID returns the characteristics in svc whose UUID
// equals u. 16-bit and 128-bit forms of the same UUID compare equal.
func DiscoverCharacteristicsByUUID(ctx context.Context, r Requester, svc Service, u att.UUID) ([]Characteristic, error) {
	if u.Len() == 0 {
		return nil, att.ErrInvalidUUID
	}
	all, err := DiscoverAllCharacteristics(ctx, r, svc)
	if err != nil {
		return nil, err
	}
	var out []Characteristic
	for _, c := range all {
		if c.UUID.Equal(u) {
			out = append(out, c)
		}
	}
	return out, nil
}

// DiscoverAllDescriptors lists the handle/type pairs in rng with Find
// Information requests.
func DiscoverAllDescriptors(ctx context.Context, r Requester, rng att.HandleRange) ([]Descriptor, error) {
	if !rng.Valid() {
		return nil, errors.Wrapf(att.ErrInvalidArgument, "range %s", rng)
	}

	var descs []Descriptor
	start := rng.Start

	for start <= rng.End && start != 0 {
		sub := att.HandleRange{Start: start, End: rng.End}
		rsp, err := request(ctx, r, func(pdu []byte) (int, error) {
			return att.BuildFindInformationRequest(pdu, sub)
		})
		if isNotFound(err) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "discover descriptors in %s", sub)
		}

		format, count, err := att.ParseFindInformationResponse(rsp, nil)
		if err != nil && err != att.ErrIncludeFragments {
			return nil, err
		}
		if count == 0 {
			break
		}
		itemLen, _ := att.FindInfoItemLen(format)
		it, err := att.NewListIterator(rsp[att.FindInformationHeaderSize:], itemLen, count)
		if err != nil {
			return nil, err
		}

		var last att.Handle
		for item, ok := it.Next(); ok; item, ok = it.Next() {
			hu, err := att.InformationItem(item)
			if err != nil {
				return nil, err
			}
			descs = append(descs, Descriptor{UUID: hu.Type, Handle: hu.Handle})
			last = hu.Handle
		}

		if last == att.MaxHandle {
			break
		}
		if last < start {
			return nil, errors.Wrapf(att.ErrUnexpectedResponse, "descriptor at 0x%04X is before 0x%04X", last, start)
		}
		start = last + 1
	}

	return descs, nil
}

// DiscoverDescriptors lists the descriptors of c, the handles after its value
// up to its EndHandle.
func DiscoverDescriptors(ctx context.Context, r Requester, c Characteristic) ([]Descriptor, error) {
	if c.ValueHandle >= c.EndHandle {
		return nil, nil
	}
	return DiscoverAllDescriptors(ctx, r, att.HandleRange{Start: c.ValueHandle + 1, End: c.EndHandle})
}

// DiscoverProfile walks every primary service, its includes,
// characteristics and descriptors.
func DiscoverProfile(ctx context.Context, r Requester) (*Profile, error) {
	services, err := DiscoverAllPrimaryServices(ctx, r)
	if err != nil {
		return nil, err
	}

	for i := range services {
		svc := &services[i]

		svc.Includes, err = FindIncludedServices(ctx, r, *svc)
		if err != nil {
			return nil, err
		}

		svc.Characteristics, err = DiscoverAllCharacteristics(ctx, r, *svc)
		if err != nil {
			return nil, err
		}

		for j := range svc.Characteristics {
			c := &svc.Characteristics[j]
			c.Descriptors, err = DiscoverDescriptors(ctx, r, *c)
			if err != nil {
				return nil, err
			}
		}

		logger.Debug(logPrefix, "%s: %d characteristics, %d includes", svc, len(svc.Characteristics), len(svc.Includes))
	}

	logger.Info(logPrefix, "🔍 profile discovered: %d services", len(services))
	return &Profile{Services: services}, nil
}
