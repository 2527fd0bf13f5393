package compiler

import (
	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

// abiType lowers a source type to its canonical ABI descriptor.
// `number` is f32 at the ABI level; optional object fields become
// nullable; a field typed as another contract is a reference, never an
// owning copy.
func abiType(t ast.Type) (abi.Type, error) {
	switch st := t.(type) {
	case *ast.Primitive:
		switch st.Kind {
		case ast.TString:
			return abi.String, nil
		case ast.TNumber, ast.TF32:
			return abi.Float32, nil
		case ast.TF64:
			return abi.Float64, nil
		case ast.TU32:
			return abi.UInt32, nil
		case ast.TU64:
			return abi.UInt64, nil
		case ast.TI32:
			return abi.Int32, nil
		case ast.TI64:
			return abi.Int64, nil
		case ast.TBoolean:
			return abi.Boolean, nil
		case ast.TBytes:
			return abi.Bytes, nil
		case ast.TPublicKey:
			return abi.PubKey, nil
		}
	case *ast.Array:
		elem, err := abiType(st.Element)
		if err != nil {
			return abi.Type{}, err
		}
		return abi.ArrayOf(elem), nil
	case *ast.Map:
		key, err := abiType(st.Key)
		if err != nil {
			return abi.Type{}, err
		}
		value, err := abiType(st.Value)
		if err != nil {
			return abi.Type{}, err
		}
		return abi.MapOf(key, value), nil
	case *ast.Object:
		s := abi.Struct{}
		for _, f := range st.Fields {
			ft, err := fieldType(f)
			if err != nil {
				return abi.Type{}, err
			}
			s.Fields = append(s.Fields, abi.StructField{Name: f.Name, Type: ft})
		}
		return abi.StructOf(s), nil
	case *ast.ForeignRecord:
		return abi.ContractReferenceTo(st.Contract), nil
	}
	return abi.Type{}, diag.NotImplemented("type " + t.String())
}

// fieldType lowers a field declaration, wrapping optionals in
// Nullable.
func fieldType(f ast.Field) (abi.Type, error) {
	t, err := abiType(f.Type)
	if err != nil {
		return abi.Type{}, err
	}
	if !f.Required {
		return abi.NullableOf(t), nil
	}
	return t, nil
}

// contractStructType builds the `this` struct: the concatenation of
// the contract's fields in declaration order.
func contractStructType(contract *ast.Contract) (abi.Type, error) {
	s := abi.Struct{Name: contract.Name}
	for _, item := range contract.Items {
		field, ok := item.(*ast.Field)
		if !ok {
			continue
		}
		ft, err := fieldType(*field)
		if err != nil {
			return abi.Type{}, err
		}
		s.Fields = append(s.Fields, abi.StructField{Name: field.Name, Type: ft})
	}
	return abi.StructOf(s), nil
}

// typesEqual reports structural type equality. Contract references
// never unify with their struct counterparts.
func typesEqual(a, b abi.Type) bool {
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case abi.TagArray, abi.TagNullable:
		return typesEqual(*a.Element, *b.Element)
	case abi.TagMap:
		return typesEqual(*a.Key, *b.Key) && typesEqual(*a.Value, *b.Value)
	case abi.TagStruct:
		if len(a.Struct.Fields) != len(b.Struct.Fields) {
			return false
		}
		for i := range a.Struct.Fields {
			if a.Struct.Fields[i].Name != b.Struct.Fields[i].Name {
				return false
			}
			if !typesEqual(a.Struct.Fields[i].Type, b.Struct.Fields[i].Type) {
				return false
			}
		}
		return true
	case abi.TagContractReference:
		return a.Contract == b.Contract
	}
	return true
}

// assignable reports whether a value of type src may be stored into
// dst. Struct-to-struct assignment requires the same field names in
// the same order, each field assignable; the struct type names are not
// compared.
func assignable(dst, src abi.Type) bool {
	if dst.Tag == abi.TagNullable && src.Tag != abi.TagNullable {
		return assignable(*dst.Element, src)
	}
	if dst.Tag == abi.TagStruct && src.Tag == abi.TagStruct {
		if len(dst.Struct.Fields) != len(src.Struct.Fields) {
			return false
		}
		for i := range dst.Struct.Fields {
			if dst.Struct.Fields[i].Name != src.Struct.Fields[i].Name {
				return false
			}
			if !assignable(dst.Struct.Fields[i].Type, src.Struct.Fields[i].Type) {
				return false
			}
		}
		return true
	}
	return typesEqual(dst, src)
}

func isNumeric(t abi.Type) bool {
	switch t.Tag {
	case abi.TagUInt32, abi.TagUInt64, abi.TagInt32, abi.TagInt64,
		abi.TagFloat32, abi.TagFloat64:
		return true
	}
	return false
}

func isInteger(t abi.Type) bool {
	switch t.Tag {
	case abi.TagUInt32, abi.TagUInt64, abi.TagInt32, abi.TagInt64:
		return true
	}
	return false
}
