package zcl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ZCL data type IDs used by the charger clusters.
const (
	TypeNoData   uint8 = 0x00
	TypeBool     uint8 = 0x10
	TypeBitmap8  uint8 = 0x18
	TypeBitmap16 uint8 = 0x19
	TypeBitmap32 uint8 = 0x1B
	TypeUint8    uint8 = 0x20
	TypeUint16   uint8 = 0x21
	TypeUint24   uint8 = 0x22
	TypeUint32   uint8 = 0x23
	TypeInt8     uint8 = 0x28
	TypeInt16    uint8 = 0x29
	TypeInt32    uint8 = 0x2B
	TypeEnum8    uint8 = 0x30
	TypeEnum16   uint8 = 0x31
	TypeOctetStr uint8 = 0x41
	TypeCharStr  uint8 = 0x42
)

// SizeVariable marks a type whose encoding starts with a one byte length prefix.
const SizeVariable = -1

type typeInfo struct {
	name   string
	size   int
	signed bool
}

var typeTable = map[uint8]typeInfo{
	TypeNoData:   {name: "nodata", size: 0},
	TypeBool:     {name: "bool", size: 1},
	TypeBitmap8:  {name: "map8", size: 1},
	TypeBitmap16: {name: "map16", size: 2},
	TypeBitmap32: {name: "map32", size: 4},
	TypeUint8:    {name: "uint8", size: 1},
	TypeUint16:   {name: "uint16", size: 2},
	TypeUint24:   {name: "uint24", size: 3},
	TypeUint32:   {name: "uint32", size: 4},
	TypeInt8:     {name: "int8", size: 1, signed: true},
	TypeInt16:    {name: "int16", size: 2, signed: true},
	TypeInt32:    {name: "int32", size: 4, signed: true},
	TypeEnum8:    {name: "enum8", size: 1},
	TypeEnum16:   {name: "enum16", size: 2},
	TypeOctetStr: {name: "octstr", size: SizeVariable},
	TypeCharStr:  {name: "string", size: SizeVariable},
}

// Known reports whether the type ID is one this package can decode.
func Known(typeID uint8) bool {
	_, ok := typeTable[typeID]
	return ok
}

// IsInteger reports whether the type carries an unsigned or signed integer.
func IsInteger(typeID uint8) bool {
	switch typeID {
	case TypeUint8, TypeUint16, TypeUint24, TypeUint32, TypeInt8, TypeInt16, TypeInt32:
		return true
	}
	return false
}

// TypeSize returns the fixed size in bytes of a ZCL type, SizeVariable for
// length-prefixed strings, or an error for types this package does not handle.
func TypeSize(typeID uint8) (int, error) {
	info, ok := typeTable[typeID]
	if !ok {
		return 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	return info.size, nil
}

// TypeName returns a human-readable name for a ZCL type.
func TypeName(typeID uint8) string {
	if info, ok := typeTable[typeID]; ok {
		return info.name
	}
	return fmt.Sprintf("0x%02X", typeID)
}

// DecodeValue decodes a ZCL typed value from raw bytes, returning the Go value and bytes consumed.
// Unsigned integers, enums and bitmaps decode to the smallest Go unsigned type that holds them
// (uint8, uint16, uint32); signed integers to int8, int16, int32.
func DecodeValue(typeID uint8, data []byte) (any, int, error) {
	info, ok := typeTable[typeID]
	if !ok {
		return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	if info.size == 0 {
		return nil, 0, nil
	}
	if info.size == SizeVariable {
		return decodeString(typeID, data)
	}
	if len(data) < info.size {
		return nil, 0, fmt.Errorf("zcl: not enough data for %s: need %d, have %d", info.name, info.size, len(data))
	}

	if typeID == TypeBool {
		return data[0] != 0, 1, nil
	}

	var u uint32
	for i := info.size - 1; i >= 0; i-- {
		u = u<<8 | uint32(data[i])
	}

	if info.signed {
		switch info.size {
		case 1:
			return int8(u), 1, nil
		case 2:
			return int16(u), 2, nil
		default:
			return int32(u), 4, nil
		}
	}

	switch info.size {
	case 1:
		return uint8(u), 1, nil
	case 2:
		return uint16(u), 2, nil
	default:
		return u, info.size, nil
	}
}

func decodeString(typeID uint8, data []byte) (any, int, error) {
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("zcl: no length byte for %s", TypeName(typeID))
	}
	length := int(data[0])
	if length == 0xFF {
		return nil, 1, nil // invalid value marker
	}
	if len(data) < 1+length {
		return nil, 0, fmt.Errorf("zcl: %s truncated: need %d, have %d", TypeName(typeID), length, len(data)-1)
	}
	if typeID == TypeCharStr {
		return string(data[1 : 1+length]), 1 + length, nil
	}
	b := make([]byte, length)
	copy(b, data[1:1+length])
	return b, 1 + length, nil
}

// EncodeValue encodes a Go value into ZCL wire format.
func EncodeValue(typeID uint8, val any) ([]byte, error) {
	info, ok := typeTable[typeID]
	if !ok {
		return nil, fmt.Errorf("zcl: encode not implemented for type 0x%02X", typeID)
	}

	switch {
	case typeID == TypeNoData:
		return nil, nil

	case typeID == TypeBool:
		v, ok := ToBool(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to bool", val)
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case typeID == TypeCharStr:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to string", val)
		}
		return lengthPrefixed([]byte(s))

	case typeID == TypeOctetStr:
		b, ok := val.([]byte)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to []byte", val)
		}
		return lengthPrefixed(b)

	case info.signed:
		v, ok := ToInt64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, info.name)
		}
		bits := uint(info.size * 8)
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		if v < lo || v > hi {
			return nil, fmt.Errorf("zcl: value %d overflows %s (range %d..%d)", v, info.name, lo, hi)
		}
		return putLittleEndian(uint64(v), info.size), nil
	}

	v, ok := ToUint64(val)
	if !ok {
		return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, info.name)
	}
	limit := uint64(1)<<uint(info.size*8) - 1
	if v > limit {
		return nil, fmt.Errorf("zcl: value %d overflows %s (max %d)", v, info.name, limit)
	}
	return putLittleEndian(v, info.size), nil
}

func lengthPrefixed(b []byte) ([]byte, error) {
	if len(b) > 254 {
		return nil, fmt.Errorf("zcl: data too long for string: %d (max 254)", len(b))
	}
	buf := make([]byte, 1+len(b))
	buf[0] = uint8(len(b))
	copy(buf[1:], b)
	return buf, nil
}

func putLittleEndian(v uint64, size int) []byte {
	var full [8]byte
	binary.LittleEndian.PutUint64(full[:], v)
	out := make([]byte, size)
	copy(out, full[:size])
	return out
}

// ToBool converts JSON-ish and numeric values to bool.
func ToBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	case uint8:
		return val != 0, true
	}
	return false, false
}

// ToUint64 converts any non-negative integral Go number to uint64.
// Floats must be whole numbers; JSON decoding produces float64 for every number.
func ToUint64(v any) (uint64, bool) {
	switch val := v.(type) {
	case uint8:
		return uint64(val), true
	case uint16:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case uint64:
		return val, true
	case uint:
		return uint64(val), true
	case int, int8, int16, int32, int64:
		n, _ := ToInt64(val)
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case float32:
		return ToUint64(float64(val))
	case float64:
		if val < 0 || val != math.Trunc(val) || val > math.MaxUint64 {
			return 0, false
		}
		return uint64(val), true
	}
	return 0, false
}

// ToInt64 converts any integral Go number to int64.
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float32:
		return ToInt64(float64(val))
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt64 || val < math.MinInt64 {
			return 0, false
		}
		return int64(val), true
	}
	return 0, false
}

// ToFloat64 converts any Go number to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	}
	if n, ok := ToInt64(v); ok {
		return float64(n), true
	}
	if n, ok := v.(uint64); ok {
		return float64(n), true
	}
	return 0, false
}
