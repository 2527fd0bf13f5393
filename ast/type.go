package ast

import "strings"

// Type is the closed set of source-level static types: *Primitive,
// *Array, *Map, *Object and *ForeignRecord.
type Type interface {
	typeNode()
	String() string
}

// PrimitiveKind enumerates the scalar types.
type PrimitiveKind int

const (
	TString PrimitiveKind = iota
	TNumber
	TF32
	TF64
	TU32
	TU64
	TI32
	TI64
	TBoolean
	TBytes
	TPublicKey
)

var primitiveNames = map[PrimitiveKind]string{
	TString:    "string",
	TNumber:    "number",
	TF32:       "f32",
	TF64:       "f64",
	TU32:       "u32",
	TU64:       "u64",
	TI32:       "i32",
	TI64:       "i64",
	TBoolean:   "boolean",
	TBytes:     "bytes",
	TPublicKey: "PublicKey",
}

// PrimitiveByName resolves a primitive type name; ok is false when the
// name is not a primitive (and therefore a contract reference).
func PrimitiveByName(name string) (PrimitiveKind, bool) {
	for k, n := range primitiveNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Primitive is a scalar type.
type Primitive struct {
	Kind PrimitiveKind
}

// Array is T[].
type Array struct {
	Element Type
}

// Map is map<K, V>.
type Map struct {
	Key   Type
	Value Type
}

// Object is an inline struct type { field: T; ... }.
type Object struct {
	Fields []Field
}

// ForeignRecord references an instance of another contract by id.
type ForeignRecord struct {
	Contract string
}

func (*Primitive) typeNode()     {}
func (*Array) typeNode()         {}
func (*Map) typeNode()           {}
func (*Object) typeNode()        {}
func (*ForeignRecord) typeNode() {}

func (t *Primitive) String() string { return primitiveNames[t.Kind] }
func (t *Array) String() string     { return t.Element.String() + "[]" }
func (t *Map) String() string       { return "map<" + t.Key.String() + ", " + t.Value.String() + ">" }

func (t *Object) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(f.Name)
		if !f.Required {
			b.WriteString("?")
		}
		b.WriteString(": ")
		b.WriteString(f.Type.String())
		b.WriteString(";")
	}
	b.WriteString("}")
	return b.String()
}

func (t *ForeignRecord) String() string { return t.Contract }
