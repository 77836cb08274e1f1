package zcl

import (
	"encoding/binary"
	"fmt"
)

// Header is a decoded ZCL frame header.
type Header struct {
	FrameControl     uint8
	ManufacturerCode uint16 // zero unless the frame is manufacturer specific
	Sequence         uint8
	CommandID        uint8
}

// IsGlobal reports whether the frame carries a foundation (profile-wide) command.
func (h Header) IsGlobal() bool {
	return h.FrameControl&0x03 == FrameTypeGlobal
}

// AttributeRecord is one attribute from a report or read response.
// Value is nil when Status is not success or the type could not be decoded.
type AttributeRecord struct {
	ID     uint16
	Status uint8
	Type   uint8
	Value  any
}

// ParseHeader splits a ZCL frame into header and payload.
func ParseHeader(frame []byte) (Header, []byte, error) {
	var h Header
	if len(frame) < 3 {
		return h, nil, fmt.Errorf("zcl: frame too short: %d bytes", len(frame))
	}
	h.FrameControl = frame[0]
	pos := 1
	if h.FrameControl&FrameManufacturerSpecific != 0 {
		if len(frame) < 5 {
			return h, nil, fmt.Errorf("zcl: manufacturer-specific frame too short: %d bytes", len(frame))
		}
		h.ManufacturerCode = binary.LittleEndian.Uint16(frame[1:3])
		pos = 3
	}
	h.Sequence = frame[pos]
	h.CommandID = frame[pos+1]
	return h, frame[pos+2:], nil
}

// ParseAttributeFrame decodes a complete Report Attributes or Read Attributes
// Response frame.
func ParseAttributeFrame(frame []byte) (Header, []AttributeRecord, error) {
	h, payload, err := ParseHeader(frame)
	if err != nil {
		return h, nil, err
	}
	if !h.IsGlobal() {
		return h, nil, fmt.Errorf("zcl: cluster-specific command 0x%02X is not an attribute frame", h.CommandID)
	}
	switch h.CommandID {
	case FoundationReportAttributes:
		recs, err := ParseReport(payload)
		return h, recs, err
	case FoundationReadAttributesResponse:
		recs, err := ParseReadResponse(payload)
		return h, recs, err
	}
	return h, nil, fmt.Errorf("zcl: foundation command 0x%02X is not an attribute frame", h.CommandID)
}

// ParseReport decodes a Report Attributes payload: repeated attrID(2) + type(1) + value.
// Records decoded before an error are returned alongside it.
func ParseReport(data []byte) ([]AttributeRecord, error) {
	var out []AttributeRecord
	for len(data) > 0 {
		if len(data) < 3 {
			return out, fmt.Errorf("zcl: truncated report record: %d bytes left", len(data))
		}
		rec := AttributeRecord{
			ID:   binary.LittleEndian.Uint16(data[0:2]),
			Type: data[2],
		}
		val, n, err := DecodeValue(rec.Type, data[3:])
		if err != nil {
			// Unknown or truncated type: value boundaries are lost, stop here.
			return out, fmt.Errorf("attribute 0x%04X: %w", rec.ID, err)
		}
		rec.Value = val
		out = append(out, rec)
		data = data[3+n:]
	}
	return out, nil
}

// ParseReadResponse decodes a Read Attributes Response payload:
// repeated attrID(2) + status(1) [+ type(1) + value when status is success].
func ParseReadResponse(data []byte) ([]AttributeRecord, error) {
	var out []AttributeRecord
	for len(data) > 0 {
		if len(data) < 3 {
			return out, fmt.Errorf("zcl: truncated read response record: %d bytes left", len(data))
		}
		rec := AttributeRecord{
			ID:     binary.LittleEndian.Uint16(data[0:2]),
			Status: data[2],
		}
		data = data[3:]
		if rec.Status != ZCLStatusSuccess {
			out = append(out, rec)
			continue
		}
		if len(data) < 1 {
			return out, fmt.Errorf("attribute 0x%04X: missing data type", rec.ID)
		}
		rec.Type = data[0]
		val, n, err := DecodeValue(rec.Type, data[1:])
		if err != nil {
			return out, fmt.Errorf("attribute 0x%04X: %w", rec.ID, err)
		}
		rec.Value = val
		out = append(out, rec)
		data = data[1+n:]
	}
	return out, nil
}
