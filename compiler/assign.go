package compiler

import (
	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

// lvalue is an assignment target: either a symbol whose address is
// known at compile time, or an array element addressed at run time.
type lvalue struct {
	sym   *Symbol
	arr   *Symbol
	index *Symbol
}

func (l lvalue) static() (Symbol, bool) {
	if l.sym != nil {
		return *l.sym, true
	}
	return Symbol{}, false
}

func (c *Compiler) resolveLValue(expr ast.Expression) (lvalue, error) {
	switch e := expr.(type) {
	case *ast.Ident:
		sym, err := c.scope.Lookup(e.Name)
		if err != nil {
			return lvalue{}, err
		}
		return lvalue{sym: &sym}, nil
	case *ast.Dot:
		base, err := c.resolveLValue(e.Object)
		if err != nil {
			return lvalue{}, err
		}
		sym, ok := base.static()
		if !ok {
			return lvalue{}, diag.NotImplemented("field access on a computed element")
		}
		if sym.Type.Tag != abi.TagStruct {
			return lvalue{}, diag.TypeMismatchf("%s has no assignable field %s", sym.Type, e.Field)
		}
		field, ok := sym.FieldSymbol(e.Field)
		if !ok {
			return lvalue{}, diag.NotFound("field", e.Field)
		}
		return lvalue{sym: &field}, nil
	case *ast.IndexExpr:
		base, err := c.resolveLValue(e.Object)
		if err != nil {
			return lvalue{}, err
		}
		arr, ok := base.static()
		if !ok {
			return lvalue{}, diag.NotImplemented("indexing a computed element")
		}
		if arr.Type.Tag != abi.TagArray {
			return lvalue{}, diag.TypeMismatchf("%s cannot be indexed", arr.Type)
		}
		index, err := c.compileExpression(e.Subscript, &abi.UInt32)
		if err != nil {
			return lvalue{}, err
		}
		if index.Type.Tag != abi.TagUInt32 {
			return lvalue{}, diag.TypeMismatchf("array index expected to be u32 but found %s", index.Type)
		}
		return lvalue{arr: &arr, index: &index}, nil
	}
	return lvalue{}, diag.TypeMismatchf("expression is not assignable")
}

func (c *Compiler) compileAssign(e *ast.Binary) (Symbol, error) {
	target, err := c.resolveLValue(e.Left)
	if err != nil {
		return Symbol{}, err
	}

	if sym, ok := target.static(); ok {
		hint := sym.Type
		value, err := c.compileExpression(e.Right, &hint)
		if err != nil {
			return Symbol{}, err
		}
		if e.Op != ast.OpAssign {
			op := ast.OpAdd
			if e.Op == ast.OpAssignSub {
				op = ast.OpSubtract
			}
			value, err = c.emitArithmetic(op, sym, value)
			if err != nil {
				return Symbol{}, err
			}
		}
		if !assignable(sym.Type, value.Type) {
			return Symbol{}, diag.TypeMismatchf("cannot assign %s to %s", value.Type, sym.Type)
		}
		if err := c.storeInto(sym, value); err != nil {
			return Symbol{}, err
		}
		return sym, nil
	}

	// Array element store.
	arr, index := *target.arr, *target.index
	elemType := *arr.Type.Element
	value, err := c.compileExpression(e.Right, &elemType)
	if err != nil {
		return Symbol{}, err
	}
	if e.Op != ast.OpAssign {
		op := ast.OpAdd
		if e.Op == ast.OpAssignSub {
			op = ast.OpSubtract
		}
		current := c.emitElementGet(arr, index)
		value, err = c.emitArithmetic(op, current, value)
		if err != nil {
			return Symbol{}, err
		}
	}
	if !typesEqual(elemType, value.Type) {
		return Symbol{}, diag.TypeMismatchf("cannot assign %s to %s element", value.Type, elemType)
	}
	c.emitBoundsCheck(arr, index)
	c.emitElementStore(arr, index, value)
	return value, nil
}

// emitBoundsCheck traps when index >= length; out-of-bounds access is
// a non-recoverable VM trap.
func (c *Compiler) emitBoundsCheck(arr, index Symbol) {
	c.emit(
		MemLoad{Addr: addr(index.Addr)},
		MemLoad{Addr: addr(arr.Addr + 1)},
		Op{Kind: OpU32CheckedLt},
		Assert{},
	)
}

// emitElementAddr leaves data_ptr + index*width + cell on the stack.
func (c *Compiler) emitElementAddr(arr, index Symbol, width, cell uint32) {
	c.emit(
		MemLoad{Addr: addr(arr.Addr + 2)},
		MemLoad{Addr: addr(index.Addr)},
		Push{Value: uint64(width)},
		Op{Kind: OpU32WrappingMul},
		Op{Kind: OpU32WrappingAdd},
	)
	if cell > 0 {
		c.emit(Push{Value: uint64(cell)}, Op{Kind: OpU32WrappingAdd})
	}
}

// emitElementGet copies element [index] into a fresh symbol. The
// caller is responsible for the bounds check when one is needed.
func (c *Compiler) emitElementGet(arr, index Symbol) Symbol {
	elemType := *arr.Type.Element
	w := elemType.Width()
	out := c.memory.AllocateSymbol(elemType)
	for j := uint32(0); j < w; j++ {
		c.emitElementAddr(arr, index, w, j)
		c.emit(MemLoad{}, MemStore{Addr: addr(out.Addr + j)})
	}
	return out
}

func (c *Compiler) emitElementStore(arr, index, value Symbol) {
	w := value.Type.Width()
	for j := uint32(0); j < w; j++ {
		c.emit(MemLoad{Addr: addr(value.Addr + j)})
		c.emitElementAddr(arr, index, w, j)
		c.emit(MemStore{})
	}
}

func (c *Compiler) compileIndexGet(e *ast.IndexExpr) (Symbol, error) {
	obj, err := c.compileExpression(e.Object, nil)
	if err != nil {
		return Symbol{}, err
	}
	switch obj.Type.Tag {
	case abi.TagArray:
		index, err := c.compileExpression(e.Subscript, &abi.UInt32)
		if err != nil {
			return Symbol{}, err
		}
		if index.Type.Tag != abi.TagUInt32 {
			return Symbol{}, diag.TypeMismatchf("array index expected to be u32 but found %s", index.Type)
		}
		// Reads past the end see unallocated (zero) cells; only writes
		// are range-checked.
		return c.emitElementGet(obj, index), nil
	case abi.TagMap:
		return Symbol{}, diag.NotImplemented("map indexing")
	}
	return Symbol{}, diag.TypeMismatchf("%s cannot be indexed", obj.Type)
}

// compileDot resolves member access: struct fields, the length of
// array-likes, the id of a record reference.
func (c *Compiler) compileDot(e *ast.Dot) (Symbol, error) {
	obj, err := c.compileExpression(e.Object, nil)
	if err != nil {
		return Symbol{}, err
	}
	return c.memberSymbol(obj, e.Field)
}

func (c *Compiler) memberSymbol(obj Symbol, field string) (Symbol, error) {
	switch obj.Type.Tag {
	case abi.TagStruct:
		sym, ok := obj.FieldSymbol(field)
		if !ok {
			return Symbol{}, diag.NotFound("field", field)
		}
		return sym, nil
	case abi.TagArray, abi.TagMap, abi.TagString, abi.TagBytes:
		if field == "length" {
			return Symbol{Addr: obj.Addr + 1, Type: abi.UInt32}, nil
		}
		return Symbol{}, diag.NotFound("field", field)
	case abi.TagContractReference:
		// Without an other-records table only the id projects out.
		if field == "id" {
			return Symbol{Addr: obj.Addr, Type: abi.String}, nil
		}
		return Symbol{}, diag.NotFound("foreign record field", field)
	case abi.TagNullable:
		return Symbol{}, diag.TypeMismatchf("cannot access %s on a nullable value without a null check", field)
	}
	return Symbol{}, diag.TypeMismatchf("%s has no field %s", obj.Type, field)
}

// storeInto copies src into dst, wrapping values into nullables where
// the destination expects one.
func (c *Compiler) storeInto(dst Symbol, src Symbol) error {
	if typesEqual(dst.Type, src.Type) {
		if dst.Addr != src.Addr {
			c.memory.Copy(c.ins, src.Addr, dst.Addr, dst.Type.Width())
		}
		return nil
	}
	if dst.Type.Tag == abi.TagNullable && src.Type.Tag != abi.TagNullable {
		c.memory.Write(c.ins, dst.Addr, []ValueSource{Immediate(1)})
		return c.storeInto(Symbol{Addr: dst.Addr + 1, Type: *dst.Type.Element}, src)
	}
	if dst.Type.Tag == abi.TagStruct && src.Type.Tag == abi.TagStruct {
		for _, f := range dst.Type.Struct.Fields {
			dstField, _ := dst.FieldSymbol(f.Name)
			var srcField *Symbol
			offset := src.Addr
			for _, sf := range src.Type.Struct.Fields {
				if sf.Name == f.Name {
					srcField = &Symbol{Addr: offset, Type: sf.Type}
					break
				}
				offset += sf.Type.Width()
			}
			if srcField == nil {
				return diag.TypeMismatchf("cannot assign %s to %s: missing field %s",
					src.Type, dst.Type, f.Name)
			}
			if err := c.storeInto(dstField, *srcField); err != nil {
				return err
			}
		}
		return nil
	}
	return diag.TypeMismatchf("cannot assign %s to %s", src.Type, dst.Type)
}
