package abi

import (
	"math"

	"github.com/polybase/polylang-go/diag"
)

// Multi-cell integers are stored and shipped big-end first: [hi, lo].

func splitU64(v uint64) (hi, lo uint64) {
	return v >> 32, v & 0xffffffff
}

func joinU64(hi, lo uint64) uint64 {
	return hi<<32 | lo&0xffffffff
}

// AdviceCells encodes a value for the VM's advice tape. The program
// prologue consumes this encoding deterministically:
//
//	primitives      their cells (1 or 2)
//	string/bytes    [length, byte...]
//	contract ref    [length, id byte...]
//	public key      [kty, crv, alg, use, 64 coordinate bytes]
//	array           [length, element encoding...]
//	map             [entries, key encoding, value encoding, ...]
//	struct          field encodings in declaration order
//	nullable        [1, payload encoding] or [0]
func AdviceCells(t Type, v Value) ([]uint64, error) {
	switch t.Tag {
	case TagBoolean:
		if v.(BooleanValue) {
			return []uint64{1}, nil
		}
		return []uint64{0}, nil
	case TagUInt32:
		return []uint64{uint64(v.(UInt32Value))}, nil
	case TagInt32:
		return []uint64{uint64(uint32(v.(Int32Value)))}, nil
	case TagFloat32:
		return []uint64{uint64(math.Float32bits(float32(v.(Float32Value))))}, nil
	case TagUInt64:
		hi, lo := splitU64(uint64(v.(UInt64Value)))
		return []uint64{hi, lo}, nil
	case TagInt64:
		hi, lo := splitU64(uint64(v.(Int64Value)))
		return []uint64{hi, lo}, nil
	case TagFloat64:
		hi, lo := splitU64(math.Float64bits(float64(v.(Float64Value))))
		return []uint64{hi, lo}, nil
	case TagString:
		return bytesAdvice([]byte(v.(StringValue))), nil
	case TagBytes:
		return bytesAdvice(v.(BytesValue)), nil
	case TagContractReference:
		return bytesAdvice([]byte(v.(ContractReferenceValue))), nil
	case TagPublicKey:
		key := v.(PublicKeyValue).Key
		out := key.envelopeCells()
		for _, b := range key.ToBytes() {
			out = append(out, uint64(b))
		}
		return out, nil
	case TagArray:
		arr := v.(ArrayValue)
		out := []uint64{uint64(len(arr))}
		for _, elem := range arr {
			cells, err := AdviceCells(*t.Element, elem)
			if err != nil {
				return nil, err
			}
			out = append(out, cells...)
		}
		return out, nil
	case TagMap:
		entries := v.(ArrayValue)
		out := []uint64{uint64(len(entries) / 2)}
		for i := 0; i+1 < len(entries); i += 2 {
			key, err := AdviceCells(*t.Key, entries[i])
			if err != nil {
				return nil, err
			}
			value, err := AdviceCells(*t.Value, entries[i+1])
			if err != nil {
				return nil, err
			}
			out = append(out, key...)
			out = append(out, value...)
		}
		return out, nil
	case TagStruct:
		sv := v.(StructValue)
		var out []uint64
		for i, field := range t.Struct.Fields {
			cells, err := AdviceCells(field.Type, sv[i].Value)
			if err != nil {
				return nil, err
			}
			out = append(out, cells...)
		}
		return out, nil
	case TagNullable:
		nv := v.(NullableValue)
		if nv.Value == nil {
			return []uint64{0}, nil
		}
		inner, err := AdviceCells(*t.Element, nv.Value)
		if err != nil {
			return nil, err
		}
		return append([]uint64{1}, inner...), nil
	}
	return nil, diag.NotImplemented("advice encoding for " + string(t.Tag))
}

func bytesAdvice(raw []byte) []uint64 {
	out := make([]uint64, 0, len(raw)+1)
	out = append(out, uint64(len(raw)))
	for _, b := range raw {
		out = append(out, uint64(b))
	}
	return out
}

// MemoryReader exposes a VM memory snapshot to value decoding.
type MemoryReader interface {
	MemRead(addr, n uint32) ([]uint64, error)
}

// FromMemory re-materialises a typed value from a memory snapshot,
// following data pointers for the array-like types.
func FromMemory(t Type, addr uint32, mem MemoryReader) (Value, error) {
	switch t.Tag {
	case TagBoolean, TagUInt32, TagInt32, TagFloat32:
		cells, err := mem.MemRead(addr, 1)
		if err != nil {
			return nil, err
		}
		switch t.Tag {
		case TagBoolean:
			return BooleanValue(cells[0] != 0), nil
		case TagUInt32:
			return UInt32Value(uint32(cells[0])), nil
		case TagInt32:
			return Int32Value(int32(uint32(cells[0]))), nil
		default:
			return Float32Value(math.Float32frombits(uint32(cells[0]))), nil
		}
	case TagUInt64, TagInt64, TagFloat64:
		cells, err := mem.MemRead(addr, 2)
		if err != nil {
			return nil, err
		}
		joined := joinU64(cells[0], cells[1])
		switch t.Tag {
		case TagUInt64:
			return UInt64Value(joined), nil
		case TagInt64:
			return Int64Value(int64(joined)), nil
		default:
			return Float64Value(math.Float64frombits(joined)), nil
		}
	case TagString, TagBytes, TagContractReference:
		raw, err := readBytes(addr, mem)
		if err != nil {
			return nil, err
		}
		switch t.Tag {
		case TagString:
			return StringValue(raw), nil
		case TagBytes:
			return BytesValue(raw), nil
		default:
			return ContractReferenceValue(raw), nil
		}
	case TagPublicKey:
		cells, err := mem.MemRead(addr, 5)
		if err != nil {
			return nil, err
		}
		if cells[0] == 0 && cells[1] == 0 && cells[2] == 0 && cells[3] == 0 && cells[4] == 0 {
			return PublicKeyValue{}, nil
		}
		coords, err := mem.MemRead(uint32(cells[4]), 64)
		if err != nil {
			return nil, err
		}
		raw := make([]byte, 64)
		for i, c := range coords {
			raw[i] = byte(c)
		}
		key, err := KeyFromBytes(raw)
		if err != nil {
			return nil, err
		}
		return PublicKeyValue{Key: key}, nil
	case TagArray:
		header, err := mem.MemRead(addr, 3)
		if err != nil {
			return nil, err
		}
		length, ptr := uint32(header[1]), uint32(header[2])
		width := t.Element.Width()
		out := make(ArrayValue, 0, length)
		for i := uint32(0); i < length; i++ {
			elem, err := FromMemory(*t.Element, ptr+i*width, mem)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case TagMap:
		header, err := mem.MemRead(addr, 3)
		if err != nil {
			return nil, err
		}
		length, ptr := uint32(header[1]), uint32(header[2])
		entryWidth := t.Key.Width() + t.Value.Width()
		out := make(ArrayValue, 0, length*2)
		for i := uint32(0); i < length; i++ {
			key, err := FromMemory(*t.Key, ptr+i*entryWidth, mem)
			if err != nil {
				return nil, err
			}
			value, err := FromMemory(*t.Value, ptr+i*entryWidth+t.Key.Width(), mem)
			if err != nil {
				return nil, err
			}
			out = append(out, key, value)
		}
		return out, nil
	case TagStruct:
		out := make(StructValue, 0, len(t.Struct.Fields))
		offset := addr
		for _, field := range t.Struct.Fields {
			value, err := FromMemory(field.Type, offset, mem)
			if err != nil {
				return nil, err
			}
			out = append(out, FieldValue{Name: field.Name, Value: value})
			offset += field.Type.Width()
		}
		return out, nil
	case TagNullable:
		cells, err := mem.MemRead(addr, 1)
		if err != nil {
			return nil, err
		}
		if cells[0] == 0 {
			return NullableValue{}, nil
		}
		inner, err := FromMemory(*t.Element, addr+1, mem)
		if err != nil {
			return nil, err
		}
		return NullableValue{Value: inner}, nil
	}
	return nil, diag.NotImplemented("memory decoding for " + string(t.Tag))
}

func readBytes(addr uint32, mem MemoryReader) ([]byte, error) {
	header, err := mem.MemRead(addr, 3)
	if err != nil {
		return nil, err
	}
	length, ptr := uint32(header[1]), uint32(header[2])
	cells, err := mem.MemRead(ptr, length)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, length)
	for i, c := range cells {
		raw[i] = byte(c)
	}
	return raw, nil
}

// hashCells flattens a value to the cell sequence its digest covers.
// Strings and bytes hash over their byte contents; arrays and maps over
// their elements' cells. Structs and nullables are handled structurally
// in hash.go and never reach this function directly.
func hashCells(t Type, v Value) ([]uint64, error) {
	switch t.Tag {
	case TagString:
		return byteCells([]byte(v.(StringValue))), nil
	case TagBytes:
		return byteCells(v.(BytesValue)), nil
	case TagContractReference:
		return byteCells([]byte(v.(ContractReferenceValue))), nil
	case TagPublicKey:
		key := v.(PublicKeyValue).Key
		out := key.envelopeCells()
		for _, b := range key.ToBytes() {
			out = append(out, uint64(b))
		}
		return out, nil
	case TagArray:
		arr := v.(ArrayValue)
		var out []uint64
		for _, elem := range arr {
			cells, err := hashCells(*t.Element, elem)
			if err != nil {
				return nil, err
			}
			out = append(out, cells...)
		}
		return out, nil
	case TagMap:
		entries := v.(ArrayValue)
		var out []uint64
		for i := 0; i+1 < len(entries); i += 2 {
			key, err := hashCells(*t.Key, entries[i])
			if err != nil {
				return nil, err
			}
			value, err := hashCells(*t.Value, entries[i+1])
			if err != nil {
				return nil, err
			}
			out = append(out, key...)
			out = append(out, value...)
		}
		return out, nil
	default:
		return AdviceCells(t, v)
	}
}

func byteCells(raw []byte) []uint64 {
	out := make([]uint64, len(raw))
	for i, b := range raw {
		out[i] = uint64(b)
	}
	return out
}
