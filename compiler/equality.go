package compiler

import (
	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/diag"
)

// emitEquality lowers == to a boolean symbol. Equality is pointwise
// for structured types, byte-wise for strings and bytes, and total for
// nullables: both null compare equal, both non-null compare by the
// payload, mixed compares false.
func (c *Compiler) emitEquality(a, b Symbol) (Symbol, error) {
	if !typesEqual(a.Type, b.Type) {
		return Symbol{}, diag.TypeMismatchf("cannot compare %s with %s", a.Type, b.Type)
	}

	switch a.Type.Tag {
	case abi.TagBoolean, abi.TagUInt32, abi.TagInt32, abi.TagFloat32:
		out := c.memory.AllocateSymbol(abi.Boolean)
		c.emit(MemLoad{Addr: addr(a.Addr)}, MemLoad{Addr: addr(b.Addr)},
			Op{Kind: OpEq}, MemStore{Addr: addr(out.Addr)})
		return out, nil
	case abi.TagUInt64, abi.TagInt64, abi.TagFloat64:
		out := c.memory.AllocateSymbol(abi.Boolean)
		c.loadOperand(a)
		c.loadOperand(b)
		c.emit(Call{Name: c.intrinsic(procU64Eq)}, MemStore{Addr: addr(out.Addr)})
		return out, nil
	case abi.TagString, abi.TagBytes, abi.TagContractReference:
		return c.emitBytesEq(a, b), nil
	case abi.TagPublicKey:
		return c.emitPublicKeyEq(a, b), nil
	case abi.TagStruct:
		return c.emitStructEq(a, b)
	case abi.TagArray:
		return c.emitArrayEq(a, b)
	case abi.TagNullable:
		return c.emitNullableEq(a, b)
	}
	return Symbol{}, diag.NotImplemented("equality on " + a.Type.String())
}

// emitBytesEq compares two byte strings: equal lengths, then a byte
// loop that short-circuits through the accumulator.
func (c *Compiler) emitBytesEq(a, b Symbol) Symbol {
	out := c.memory.AllocateSymbol(abi.Boolean)
	i := c.memory.AllocateSymbol(abi.UInt32)

	loop := []Instruction{
		Push{Value: 1}, MemStore{Addr: addr(out.Addr)},
		Push{Value: 0}, MemStore{Addr: addr(i.Addr)},
		While{
			Cond: []Instruction{
				MemLoad{Addr: addr(i.Addr)}, MemLoad{Addr: addr(a.Addr + 1)},
				Op{Kind: OpU32CheckedLt},
				MemLoad{Addr: addr(out.Addr)}, Op{Kind: OpAnd},
			},
			Body: []Instruction{
				MemLoad{Addr: addr(a.Addr + 2)}, MemLoad{Addr: addr(i.Addr)},
				Op{Kind: OpU32WrappingAdd}, MemLoad{},
				MemLoad{Addr: addr(b.Addr + 2)}, MemLoad{Addr: addr(i.Addr)},
				Op{Kind: OpU32WrappingAdd}, MemLoad{},
				Op{Kind: OpEq},
				MemStore{Addr: addr(out.Addr)},
				MemLoad{Addr: addr(i.Addr)}, Push{Value: 1},
				Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(i.Addr)},
			},
		},
	}
	c.emit(If{
		Cond: []Instruction{
			MemLoad{Addr: addr(a.Addr + 1)}, MemLoad{Addr: addr(b.Addr + 1)}, Op{Kind: OpEq},
		},
		Then: loop,
		Else: []Instruction{Push{Value: 0}, MemStore{Addr: addr(out.Addr)}},
	})
	return out
}

// emitPublicKeyEq compares the envelope cells, then the 64 coordinate
// bytes behind extra_ptr.
func (c *Compiler) emitPublicKeyEq(a, b Symbol) Symbol {
	out := c.memory.AllocateSymbol(abi.Boolean)
	i := c.memory.AllocateSymbol(abi.UInt32)

	// Envelope: 4 direct cells.
	c.emit(MemLoad{Addr: addr(a.Addr)}, MemLoad{Addr: addr(b.Addr)}, Op{Kind: OpEq})
	for j := uint32(1); j < 4; j++ {
		c.emit(MemLoad{Addr: addr(a.Addr + j)}, MemLoad{Addr: addr(b.Addr + j)},
			Op{Kind: OpEq}, Op{Kind: OpAnd})
	}
	c.emit(MemStore{Addr: addr(out.Addr)})

	c.emit(
		Push{Value: 0}, MemStore{Addr: addr(i.Addr)},
		While{
			Cond: []Instruction{
				MemLoad{Addr: addr(i.Addr)}, Push{Value: 64}, Op{Kind: OpU32CheckedLt},
				MemLoad{Addr: addr(out.Addr)}, Op{Kind: OpAnd},
			},
			Body: []Instruction{
				MemLoad{Addr: addr(a.Addr + 4)}, MemLoad{Addr: addr(i.Addr)},
				Op{Kind: OpU32WrappingAdd}, MemLoad{},
				MemLoad{Addr: addr(b.Addr + 4)}, MemLoad{Addr: addr(i.Addr)},
				Op{Kind: OpU32WrappingAdd}, MemLoad{},
				Op{Kind: OpEq},
				MemStore{Addr: addr(out.Addr)},
				MemLoad{Addr: addr(i.Addr)}, Push{Value: 1},
				Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(i.Addr)},
			},
		},
	)
	return out
}

func (c *Compiler) emitStructEq(a, b Symbol) (Symbol, error) {
	out := c.memory.AllocateSymbol(abi.Boolean)
	c.memory.Write(c.ins, out.Addr, []ValueSource{Immediate(1)})
	for _, f := range a.Type.Struct.Fields {
		af, _ := a.FieldSymbol(f.Name)
		bf, _ := b.FieldSymbol(f.Name)
		fieldEq, err := c.emitEquality(af, bf)
		if err != nil {
			return Symbol{}, err
		}
		c.emit(MemLoad{Addr: addr(out.Addr)}, MemLoad{Addr: addr(fieldEq.Addr)},
			Op{Kind: OpAnd}, MemStore{Addr: addr(out.Addr)})
	}
	return out, nil
}

// emitArrayEq compares fixed-width element arrays cell by cell.
func (c *Compiler) emitArrayEq(a, b Symbol) (Symbol, error) {
	elem := *a.Type.Element
	switch elem.Tag {
	case abi.TagBoolean, abi.TagUInt32, abi.TagInt32, abi.TagFloat32,
		abi.TagUInt64, abi.TagInt64, abi.TagFloat64:
	default:
		return Symbol{}, diag.NotImplemented("equality on arrays of " + elem.String())
	}
	w := elem.Width()

	out := c.memory.AllocateSymbol(abi.Boolean)
	i := c.memory.AllocateSymbol(abi.UInt32)
	total := c.memory.AllocateSymbol(abi.UInt32)

	loop := []Instruction{
		Push{Value: 1}, MemStore{Addr: addr(out.Addr)},
		Push{Value: 0}, MemStore{Addr: addr(i.Addr)},
		MemLoad{Addr: addr(a.Addr + 1)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingMul}, MemStore{Addr: addr(total.Addr)},
		While{
			Cond: []Instruction{
				MemLoad{Addr: addr(i.Addr)}, MemLoad{Addr: addr(total.Addr)},
				Op{Kind: OpU32CheckedLt},
				MemLoad{Addr: addr(out.Addr)}, Op{Kind: OpAnd},
			},
			Body: []Instruction{
				MemLoad{Addr: addr(a.Addr + 2)}, MemLoad{Addr: addr(i.Addr)},
				Op{Kind: OpU32WrappingAdd}, MemLoad{},
				MemLoad{Addr: addr(b.Addr + 2)}, MemLoad{Addr: addr(i.Addr)},
				Op{Kind: OpU32WrappingAdd}, MemLoad{},
				Op{Kind: OpEq},
				MemStore{Addr: addr(out.Addr)},
				MemLoad{Addr: addr(i.Addr)}, Push{Value: 1},
				Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(i.Addr)},
			},
		},
	}
	c.emit(If{
		Cond: []Instruction{
			MemLoad{Addr: addr(a.Addr + 1)}, MemLoad{Addr: addr(b.Addr + 1)}, Op{Kind: OpEq},
		},
		Then: loop,
		Else: []Instruction{Push{Value: 0}, MemStore{Addr: addr(out.Addr)}},
	})
	return out, nil
}

// emitNullableEq: both non-null compares the payloads, otherwise the
// flags decide (both null -> equal).
func (c *Compiler) emitNullableEq(a, b Symbol) (Symbol, error) {
	out := c.memory.AllocateSymbol(abi.Boolean)

	av := Symbol{Addr: a.Addr + 1, Type: *a.Type.Element}
	bv := Symbol{Addr: b.Addr + 1, Type: *b.Type.Element}
	var innerEq Symbol
	innerIns, err := c.collect(func() error {
		var err error
		innerEq, err = c.emitEquality(av, bv)
		return err
	})
	if err != nil {
		return Symbol{}, err
	}
	innerIns = append(innerIns,
		MemLoad{Addr: addr(innerEq.Addr)}, MemStore{Addr: addr(out.Addr)})

	c.emit(If{
		Cond: []Instruction{
			MemLoad{Addr: addr(a.Addr)}, MemLoad{Addr: addr(b.Addr)}, Op{Kind: OpAnd},
		},
		Then: innerIns,
		Else: []Instruction{
			MemLoad{Addr: addr(a.Addr)}, MemLoad{Addr: addr(b.Addr)},
			Op{Kind: OpEq}, MemStore{Addr: addr(out.Addr)},
		},
	})
	return out, nil
}
