package abi

import (
	"encoding/base64"
	"fmt"
	"math"

	simplejson "github.com/bitly/go-simplejson"

	"github.com/polybase/polylang-go/diag"
)

// Value is the closed set of runtime values. Variants mirror the Type
// tags one-to-one.
type Value interface {
	valueNode()
}

type BooleanValue bool
type UInt32Value uint32
type UInt64Value uint64
type Int32Value int32
type Int64Value int64
type Float32Value float32
type Float64Value float64
type StringValue string
type BytesValue []byte

// PublicKeyValue wraps a JWK key.
type PublicKeyValue struct {
	Key Key
}

// ArrayValue holds array elements; it also backs map values, whose
// entries are stored as alternating key/value pairs.
type ArrayValue []Value

// FieldValue is one named field of a StructValue.
type FieldValue struct {
	Name  string
	Value Value
}

// StructValue is an ordered field list.
type StructValue []FieldValue

// NullableValue is null when Value is nil.
type NullableValue struct {
	Value Value
}

// ContractReferenceValue is the id of a record of another contract.
type ContractReferenceValue string

func (BooleanValue) valueNode()           {}
func (UInt32Value) valueNode()            {}
func (UInt64Value) valueNode()            {}
func (Int32Value) valueNode()             {}
func (Int64Value) valueNode()             {}
func (Float32Value) valueNode()           {}
func (Float64Value) valueNode()           {}
func (StringValue) valueNode()            {}
func (BytesValue) valueNode()             {}
func (PublicKeyValue) valueNode()         {}
func (ArrayValue) valueNode()             {}
func (StructValue) valueNode()            {}
func (NullableValue) valueNode()          {}
func (ContractReferenceValue) valueNode() {}

// Get returns the named struct field.
func (v StructValue) Get(name string) (Value, bool) {
	for _, f := range v {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Equality — deep for structured values; nullable is total: both null
// compare equal, both non-null compare by the inner value.
// ---------------------------------------------------------------------------

// Equal reports deep value equality.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case BooleanValue:
		bv, ok := b.(BooleanValue)
		return ok && av == bv
	case UInt32Value:
		bv, ok := b.(UInt32Value)
		return ok && av == bv
	case UInt64Value:
		bv, ok := b.(UInt64Value)
		return ok && av == bv
	case Int32Value:
		bv, ok := b.(Int32Value)
		return ok && av == bv
	case Int64Value:
		bv, ok := b.(Int64Value)
		return ok && av == bv
	case Float32Value:
		bv, ok := b.(Float32Value)
		return ok && av == bv
	case Float64Value:
		bv, ok := b.(Float64Value)
		return ok && av == bv
	case StringValue:
		bv, ok := b.(StringValue)
		return ok && av == bv
	case BytesValue:
		bv, ok := b.(BytesValue)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case PublicKeyValue:
		bv, ok := b.(PublicKeyValue)
		return ok && av.Key.Equal(bv.Key)
	case ArrayValue:
		bv, ok := b.(ArrayValue)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case StructValue:
		bv, ok := b.(StructValue)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i].Name != bv[i].Name || !Equal(av[i].Value, bv[i].Value) {
				return false
			}
		}
		return true
	case NullableValue:
		bv, ok := b.(NullableValue)
		if !ok {
			return false
		}
		if av.Value == nil || bv.Value == nil {
			return av.Value == nil && bv.Value == nil
		}
		return Equal(av.Value, bv.Value)
	case ContractReferenceValue:
		bv, ok := b.(ContractReferenceValue)
		return ok && av == bv
	}
	return false
}

// ---------------------------------------------------------------------------
// JSON parse — host JSON in, typed value out.
// ---------------------------------------------------------------------------

// Parse materialises a JSON value against the given type.
func Parse(t Type, raw []byte) (Value, error) {
	js, err := simplejson.NewJson(raw)
	if err != nil {
		return nil, diag.Wrap(err)
	}
	return ParseJSON(t, js)
}

// ParseJSON materialises an already-decoded JSON document against the
// given type.
func ParseJSON(t Type, js *simplejson.Json) (Value, error) {
	switch t.Tag {
	case TagBoolean:
		b, err := js.Bool()
		if err != nil {
			return nil, parseErr("boolean", err)
		}
		return BooleanValue(b), nil
	case TagUInt32:
		n, err := js.Uint64()
		if err != nil || n > math.MaxUint32 {
			return nil, parseErr("u32", err)
		}
		return UInt32Value(uint32(n)), nil
	case TagUInt64:
		n, err := js.Uint64()
		if err != nil {
			return nil, parseErr("u64", err)
		}
		return UInt64Value(n), nil
	case TagInt32:
		n, err := js.Int64()
		if err != nil || n > math.MaxInt32 || n < math.MinInt32 {
			return nil, parseErr("i32", err)
		}
		return Int32Value(int32(n)), nil
	case TagInt64:
		n, err := js.Int64()
		if err != nil {
			return nil, parseErr("i64", err)
		}
		return Int64Value(n), nil
	case TagFloat32:
		f, err := js.Float64()
		if err != nil {
			return nil, parseErr("f32", err)
		}
		return Float32Value(float32(f)), nil
	case TagFloat64:
		f, err := js.Float64()
		if err != nil {
			return nil, parseErr("f64", err)
		}
		return Float64Value(f), nil
	case TagString:
		s, err := js.String()
		if err != nil {
			return nil, parseErr("string", err)
		}
		return StringValue(s), nil
	case TagBytes:
		s, err := js.String()
		if err != nil {
			return nil, parseErr("bytes", err)
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, parseErr("bytes", err)
		}
		return BytesValue(raw), nil
	case TagPublicKey:
		return parsePublicKey(js)
	case TagArray:
		arr, err := js.Array()
		if err != nil {
			return nil, parseErr("array", err)
		}
		out := make(ArrayValue, 0, len(arr))
		for i := range arr {
			elem, err := ParseJSON(*t.Element, js.GetIndex(i))
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case TagMap:
		m, err := js.Map()
		if err != nil {
			return nil, parseErr("map", err)
		}
		keys := sortedKeys(m)
		out := make(ArrayValue, 0, len(m)*2)
		for _, k := range keys {
			key, err := parseMapKey(*t.Key, k)
			if err != nil {
				return nil, err
			}
			value, err := ParseJSON(*t.Value, js.Get(k))
			if err != nil {
				return nil, err
			}
			out = append(out, key, value)
		}
		return out, nil
	case TagStruct:
		m, err := js.Map()
		if err != nil {
			return nil, parseErr("struct", err)
		}
		// An empty object means "all defaults"; otherwise missing
		// non-nullable fields are an error.
		useDefaults := len(m) == 0
		out := make(StructValue, 0, len(t.Struct.Fields))
		for _, field := range t.Struct.Fields {
			if _, present := js.CheckGet(field.Name); !present {
				if useDefaults || field.Type.Tag == TagNullable {
					out = append(out, FieldValue{Name: field.Name, Value: field.Type.DefaultValue()})
					continue
				}
				return nil, diag.Simplef("missing value for field `%s`", field.Name)
			}
			value, err := ParseJSON(field.Type, js.Get(field.Name))
			if err != nil {
				return nil, err
			}
			out = append(out, FieldValue{Name: field.Name, Value: value})
		}
		return out, nil
	case TagNullable:
		if js.Interface() == nil {
			return NullableValue{}, nil
		}
		inner, err := ParseJSON(*t.Element, js)
		if err != nil {
			return nil, err
		}
		return NullableValue{Value: inner}, nil
	case TagContractReference:
		// Either a plain id string or a record object with an id.
		if s, err := js.String(); err == nil {
			return ContractReferenceValue(s), nil
		}
		id, err := js.Get("id").String()
		if err != nil {
			return nil, parseErr("contract reference", err)
		}
		return ContractReferenceValue(id), nil
	}
	return nil, diag.NotImplemented("parsing type " + string(t.Tag))
}

func parsePublicKey(js *simplejson.Json) (Value, error) {
	if s, err := js.String(); err == nil {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, parseErr("public key", err)
		}
		key, err := KeyFromBytes(raw)
		if err != nil {
			return nil, err
		}
		return PublicKeyValue{Key: key}, nil
	}
	data, err := js.MarshalJSON()
	if err != nil {
		return nil, diag.Wrap(err)
	}
	var key Key
	if err := key.UnmarshalJSON(data); err != nil {
		return nil, parseErr("public key", err)
	}
	return PublicKeyValue{Key: key}, nil
}

func parseMapKey(t Type, key string) (Value, error) {
	if t.Tag == TagString {
		return StringValue(key), nil
	}
	// Non-string map keys arrive as their decimal form.
	return Parse(t, []byte(key))
}

func parseErr(typeName string, cause error) error {
	if cause == nil {
		return diag.Simplef("cannot parse %s: value out of range", typeName)
	}
	return diag.Simplef("cannot parse %s (%s)", typeName, cause)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// ---------------------------------------------------------------------------
// JSON emit — typed value in, plain JSON-marshalable value out.
// ---------------------------------------------------------------------------

// EmitJSON converts a value into a shape encoding/json can marshal,
// mirroring Parse: structs become objects, bytes become base64, public
// keys become JWKs. Structs are emitted as map[string]interface{}, so
// encoding/json writes their keys in sorted order, not in field order.
func EmitJSON(t Type, v Value) (interface{}, error) {
	switch t.Tag {
	case TagBoolean:
		return bool(v.(BooleanValue)), nil
	case TagUInt32:
		return uint32(v.(UInt32Value)), nil
	case TagUInt64:
		return uint64(v.(UInt64Value)), nil
	case TagInt32:
		return int32(v.(Int32Value)), nil
	case TagInt64:
		return int64(v.(Int64Value)), nil
	case TagFloat32:
		return float32(v.(Float32Value)), nil
	case TagFloat64:
		return float64(v.(Float64Value)), nil
	case TagString:
		return string(v.(StringValue)), nil
	case TagBytes:
		return base64.StdEncoding.EncodeToString(v.(BytesValue)), nil
	case TagPublicKey:
		return v.(PublicKeyValue).Key, nil
	case TagArray:
		arr := v.(ArrayValue)
		out := make([]interface{}, 0, len(arr))
		for _, elem := range arr {
			e, err := EmitJSON(*t.Element, elem)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case TagMap:
		arr := v.(ArrayValue)
		out := make(map[string]interface{}, len(arr)/2)
		for i := 0; i+1 < len(arr); i += 2 {
			key, err := emitMapKey(*t.Key, arr[i])
			if err != nil {
				return nil, err
			}
			value, err := EmitJSON(*t.Value, arr[i+1])
			if err != nil {
				return nil, err
			}
			out[key] = value
		}
		return out, nil
	case TagStruct:
		sv := v.(StructValue)
		out := make(map[string]interface{}, len(sv))
		for i, field := range t.Struct.Fields {
			e, err := EmitJSON(field.Type, sv[i].Value)
			if err != nil {
				return nil, err
			}
			out[field.Name] = e
		}
		return out, nil
	case TagNullable:
		nv := v.(NullableValue)
		if nv.Value == nil {
			return nil, nil
		}
		return EmitJSON(*t.Element, nv.Value)
	case TagContractReference:
		return string(v.(ContractReferenceValue)), nil
	}
	return nil, diag.NotImplemented("emitting type " + string(t.Tag))
}

func emitMapKey(t Type, v Value) (string, error) {
	switch kv := v.(type) {
	case StringValue:
		return string(kv), nil
	default:
		e, err := EmitJSON(t, v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v", e), nil
	}
}
