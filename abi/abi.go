// Package abi is the canonical type and value schema used to marshal
// data between the host and the VM. Types know their on-memory width
// in cells, their default value, their JSON form and their salted
// hashing rules; the compiler and the prover agree on all four.
package abi

import (
	"encoding/json"
	"fmt"

	"github.com/polybase/polylang-go/diag"
)

// TypeTag discriminates the closed set of ABI types.
type TypeTag string

const (
	TagBoolean           TypeTag = "Boolean"
	TagUInt32            TypeTag = "UInt32"
	TagUInt64            TypeTag = "UInt64"
	TagInt32             TypeTag = "Int32"
	TagInt64             TypeTag = "Int64"
	TagFloat32           TypeTag = "Float32"
	TagFloat64           TypeTag = "Float64"
	TagString            TypeTag = "String"
	TagBytes             TypeTag = "Bytes"
	TagPublicKey         TypeTag = "PublicKey"
	TagArray             TypeTag = "Array"
	TagMap               TypeTag = "Map"
	TagStruct            TypeTag = "Struct"
	TagNullable          TypeTag = "Nullable"
	TagContractReference TypeTag = "ContractReference"
)

// Type is a canonical runtime type descriptor. Exactly the fields
// relevant to Tag are set.
type Type struct {
	Tag      TypeTag
	Element  *Type   // Array element / Nullable inner
	Key      *Type   // Map key
	Value    *Type   // Map value
	Struct   *Struct // Struct definition
	Contract string  // ContractReference target
}

// Struct is a named field list. Field order is significant: it is the
// memory layout and the field order of the type's own JSON form. Value
// JSON from EmitJSON writes struct keys in sorted order.
type Struct struct {
	Name   string
	Fields []StructField
}

// StructField is one named field of a struct.
type StructField struct {
	Name string
	Type Type
}

// Constructors for the composite types.

func ArrayOf(element Type) Type { return Type{Tag: TagArray, Element: &element} }

func MapOf(key, value Type) Type { return Type{Tag: TagMap, Key: &key, Value: &value} }

func NullableOf(inner Type) Type { return Type{Tag: TagNullable, Element: &inner} }

func StructOf(s Struct) Type { return Type{Tag: TagStruct, Struct: &s} }

func ContractReferenceTo(contract string) Type {
	return Type{Tag: TagContractReference, Contract: contract}
}

// Primitive singletons.
var (
	Boolean = Type{Tag: TagBoolean}
	UInt32  = Type{Tag: TagUInt32}
	UInt64  = Type{Tag: TagUInt64}
	Int32   = Type{Tag: TagInt32}
	Int64   = Type{Tag: TagInt64}
	Float32 = Type{Tag: TagFloat32}
	Float64 = Type{Tag: TagFloat64}
	String  = Type{Tag: TagString}
	Bytes   = Type{Tag: TagBytes}
	PubKey  = Type{Tag: TagPublicKey}
)

// Width reports the number of VM memory cells a value of this type
// occupies. Array-likes are [capacity, length, data_ptr]; a contract
// reference is string-like (its id).
func (t Type) Width() uint32 {
	switch t.Tag {
	case TagBoolean, TagUInt32, TagInt32, TagFloat32:
		return 1
	case TagUInt64, TagInt64, TagFloat64:
		return 2
	case TagString, TagBytes, TagArray, TagMap, TagContractReference:
		return 3
	case TagPublicKey:
		return 5
	case TagNullable:
		return 1 + t.Element.Width()
	case TagStruct:
		var w uint32
		for _, f := range t.Struct.Fields {
			w += f.Type.Width()
		}
		return w
	}
	return 0
}

// DefaultValue builds the zero value: numeric zero, empty string,
// false, empty array, struct of defaults, null for nullable.
func (t Type) DefaultValue() Value {
	switch t.Tag {
	case TagBoolean:
		return BooleanValue(false)
	case TagUInt32:
		return UInt32Value(0)
	case TagUInt64:
		return UInt64Value(0)
	case TagInt32:
		return Int32Value(0)
	case TagInt64:
		return Int64Value(0)
	case TagFloat32:
		return Float32Value(0)
	case TagFloat64:
		return Float64Value(0)
	case TagString:
		return StringValue("")
	case TagBytes:
		return BytesValue(nil)
	case TagPublicKey:
		return PublicKeyValue{}
	case TagArray, TagMap:
		return ArrayValue(nil)
	case TagStruct:
		sv := make(StructValue, 0, len(t.Struct.Fields))
		for _, f := range t.Struct.Fields {
			sv = append(sv, FieldValue{Name: f.Name, Value: f.Type.DefaultValue()})
		}
		return sv
	case TagNullable:
		return NullableValue{}
	case TagContractReference:
		return ContractReferenceValue("")
	}
	return nil
}

func (t Type) String() string {
	switch t.Tag {
	case TagArray:
		return t.Element.String() + "[]"
	case TagMap:
		return fmt.Sprintf("map<%s, %s>", t.Key, t.Value)
	case TagNullable:
		return t.Element.String() + "?"
	case TagStruct:
		return t.Struct.Name
	case TagContractReference:
		return t.Contract
	}
	return string(t.Tag)
}

// ---------------------------------------------------------------------------
// Type JSON — adjacently tagged: {"tag": "...", "content": ...}
// ---------------------------------------------------------------------------

type taggedType struct {
	Tag     TypeTag         `json:"tag"`
	Content json.RawMessage `json:"content,omitempty"`
}

type structJSON struct {
	Name   string            `json:"name"`
	Fields [][]json.RawMessage `json:"fields"`
}

type contractRefJSON struct {
	Contract string `json:"contract"`
}

// MarshalJSON implements json.Marshaler.
func (t Type) MarshalJSON() ([]byte, error) {
	out := taggedType{Tag: t.Tag}
	switch t.Tag {
	case TagArray, TagNullable:
		content, err := json.Marshal(t.Element)
		if err != nil {
			return nil, err
		}
		out.Content = content
	case TagMap:
		content, err := json.Marshal([]*Type{t.Key, t.Value})
		if err != nil {
			return nil, err
		}
		out.Content = content
	case TagStruct:
		sj := structJSON{Name: t.Struct.Name, Fields: [][]json.RawMessage{}}
		for _, f := range t.Struct.Fields {
			name, err := json.Marshal(f.Name)
			if err != nil {
				return nil, err
			}
			typ, err := json.Marshal(f.Type)
			if err != nil {
				return nil, err
			}
			sj.Fields = append(sj.Fields, []json.RawMessage{name, typ})
		}
		content, err := json.Marshal(sj)
		if err != nil {
			return nil, err
		}
		out.Content = content
	case TagContractReference:
		content, err := json.Marshal(contractRefJSON{Contract: t.Contract})
		if err != nil {
			return nil, err
		}
		out.Content = content
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Type) UnmarshalJSON(data []byte) error {
	var raw taggedType
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Type{Tag: raw.Tag}
	switch raw.Tag {
	case TagArray, TagNullable:
		var element Type
		if err := json.Unmarshal(raw.Content, &element); err != nil {
			return err
		}
		t.Element = &element
	case TagMap:
		var kv []Type
		if err := json.Unmarshal(raw.Content, &kv); err != nil {
			return err
		}
		if len(kv) != 2 {
			return fmt.Errorf("map type expects [key, value], got %d entries", len(kv))
		}
		t.Key, t.Value = &kv[0], &kv[1]
	case TagStruct:
		var sj structJSON
		if err := json.Unmarshal(raw.Content, &sj); err != nil {
			return err
		}
		s := Struct{Name: sj.Name}
		for _, pair := range sj.Fields {
			if len(pair) != 2 {
				return fmt.Errorf("struct field expects [name, type]")
			}
			var field StructField
			if err := json.Unmarshal(pair[0], &field.Name); err != nil {
				return err
			}
			if err := json.Unmarshal(pair[1], &field.Type); err != nil {
				return err
			}
			s.Fields = append(s.Fields, field)
		}
		t.Struct = &s
	case TagContractReference:
		var cr contractRefJSON
		if err := json.Unmarshal(raw.Content, &cr); err != nil {
			return err
		}
		t.Contract = cr.Contract
	case TagBoolean, TagUInt32, TagUInt64, TagInt32, TagInt64,
		TagFloat32, TagFloat64, TagString, TagBytes, TagPublicKey:
	default:
		return fmt.Errorf("unknown type tag %q", raw.Tag)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Abi
// ---------------------------------------------------------------------------

// StdVersion identifies the intrinsic library revision the emitted
// assembly expects.
type StdVersion string

// StdVersionV1 is the current intrinsic set.
const StdVersionV1 StdVersion = "0.1"

// Abi describes a compiled entry point: where `this` and the result
// live in VM memory, their types, and the advice-tape parameter schema.
// It ships alongside the emitted assembly.
type Abi struct {
	ThisAddr       *uint32    `json:"this_addr"`
	ThisType       *Type      `json:"this_type"`
	ParameterTypes []Type     `json:"parameter_types"`
	ResultAddr     *uint32    `json:"result_addr"`
	ResultType     *Type      `json:"result_type"`
	StdVersion     StdVersion `json:"std_version"`
}

// DefaultThisValue builds the default value of the `this` type.
func (a *Abi) DefaultThisValue() (Value, error) {
	if a.ThisType == nil {
		return nil, diag.NotFound("abi", "this_type")
	}
	return a.ThisType.DefaultValue(), nil
}
