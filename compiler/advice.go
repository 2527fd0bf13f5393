package compiler

import (
	"sort"

	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

// readAdviceInto emits the prologue code that consumes one value from
// the advice tape and materialises it at the symbol's cells, following
// the abi advice encoding: lengths precede variable data, nullables
// ship their flag first and only carry a payload when set.
func (c *Compiler) readAdviceInto(sym Symbol) error {
	t := sym.Type
	switch t.Tag {
	case abi.TagBoolean, abi.TagUInt32, abi.TagInt32, abi.TagFloat32:
		c.emit(AdvPush{N: 1}, MemStore{Addr: addr(sym.Addr)})
		return nil
	case abi.TagUInt64, abi.TagInt64, abi.TagFloat64:
		// Tape order [hi, lo]; lo ends on top and stores first.
		c.emit(AdvPush{N: 2},
			MemStore{Addr: addr(sym.Addr + 1)},
			MemStore{Addr: addr(sym.Addr)})
		return nil
	case abi.TagString, abi.TagBytes, abi.TagContractReference:
		c.readAdviceBytes(sym)
		return nil
	case abi.TagPublicKey:
		c.emit(AdvPush{N: 4},
			MemStore{Addr: addr(sym.Addr + 3)},
			MemStore{Addr: addr(sym.Addr + 2)},
			MemStore{Addr: addr(sym.Addr + 1)},
			MemStore{Addr: addr(sym.Addr)})
		c.emit(Push{Value: 64}, Call{Name: c.intrinsic(procDynamicAlloc)},
			MemStore{Addr: addr(sym.Addr + 4)})
		i := c.memory.AllocateSymbol(abi.UInt32)
		c.memory.Write(c.ins, i.Addr, []ValueSource{Immediate(0)})
		c.emit(While{
			Cond: []Instruction{
				MemLoad{Addr: addr(i.Addr)}, Push{Value: 64}, Op{Kind: OpU32CheckedLt},
			},
			Body: []Instruction{
				AdvPush{N: 1},
				MemLoad{Addr: addr(sym.Addr + 4)}, MemLoad{Addr: addr(i.Addr)},
				Op{Kind: OpU32WrappingAdd},
				MemStore{},
				MemLoad{Addr: addr(i.Addr)}, Push{Value: 1},
				Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(i.Addr)},
			},
		})
		return nil
	case abi.TagStruct:
		offset := sym.Addr
		for _, f := range t.Struct.Fields {
			if err := c.readAdviceInto(Symbol{Addr: offset, Type: f.Type}); err != nil {
				return err
			}
			offset += f.Type.Width()
		}
		return nil
	case abi.TagNullable:
		c.emit(AdvPush{N: 1}, Dup{}, MemStore{Addr: addr(sym.Addr)})
		payload := Symbol{Addr: sym.Addr + 1, Type: *t.Element}
		then, err := c.collect(func() error { return c.readAdviceInto(payload) })
		if err != nil {
			return err
		}
		zeros := make([]ValueSource, payload.Type.Width())
		for i := range zeros {
			zeros[i] = Immediate(0)
		}
		var elseIns []Instruction
		c.memory.Write(&elseIns, payload.Addr, zeros)
		c.emit(If{Then: then, Else: elseIns})
		return nil
	case abi.TagArray:
		return c.readAdviceSequence(sym, []abi.Type{*t.Element})
	case abi.TagMap:
		return c.readAdviceSequence(sym, []abi.Type{*t.Key, *t.Value})
	}
	return diag.NotImplemented("advice decoding for " + t.String())
}

// readAdviceBytes consumes [length, byte...] into a byte-string
// symbol, allocating the backing store at run time.
func (c *Compiler) readAdviceBytes(sym Symbol) {
	c.emit(AdvPush{N: 1},
		Dup{}, MemStore{Addr: addr(sym.Addr)},
		Dup{}, MemStore{Addr: addr(sym.Addr + 1)},
		Call{Name: c.intrinsic(procDynamicAlloc)},
		MemStore{Addr: addr(sym.Addr + 2)})
	i := c.memory.AllocateSymbol(abi.UInt32)
	c.memory.Write(c.ins, i.Addr, []ValueSource{Immediate(0)})
	c.emit(While{
		Cond: []Instruction{
			MemLoad{Addr: addr(i.Addr)}, MemLoad{Addr: addr(sym.Addr + 1)},
			Op{Kind: OpU32CheckedLt},
		},
		Body: []Instruction{
			AdvPush{N: 1},
			MemLoad{Addr: addr(sym.Addr + 2)}, MemLoad{Addr: addr(i.Addr)},
			Op{Kind: OpU32WrappingAdd},
			MemStore{},
			MemLoad{Addr: addr(i.Addr)}, Push{Value: 1},
			Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(i.Addr)},
		},
	})
}

// readAdviceSequence consumes [count, item...] where each item is the
// concatenation of the given part types (one part for arrays, a
// key/value pair for maps). Items land in the dynamically allocated
// backing store; a static scratch symbol per part is reused across
// iterations for nested dynamic parts.
func (c *Compiler) readAdviceSequence(sym Symbol, parts []abi.Type) error {
	var itemWidth uint32
	for _, p := range parts {
		itemWidth += p.Width()
	}

	c.emit(AdvPush{N: 1},
		Dup{}, MemStore{Addr: addr(sym.Addr)},
		Dup{}, MemStore{Addr: addr(sym.Addr + 1)},
		Push{Value: uint64(itemWidth)}, Op{Kind: OpU32WrappingMul},
		Call{Name: c.intrinsic(procDynamicAlloc)},
		MemStore{Addr: addr(sym.Addr + 2)})

	scratch := make([]Symbol, len(parts))
	for j, p := range parts {
		scratch[j] = c.memory.AllocateSymbol(p)
	}
	i := c.memory.AllocateSymbol(abi.UInt32)
	c.memory.Write(c.ins, i.Addr, []ValueSource{Immediate(0)})

	body, err := c.collect(func() error {
		var itemOffset uint32
		for _, s := range scratch {
			if err := c.readAdviceInto(s); err != nil {
				return err
			}
			w := s.Type.Width()
			for j := uint32(0); j < w; j++ {
				c.emit(MemLoad{Addr: addr(s.Addr + j)})
				c.emit(MemLoad{Addr: addr(sym.Addr + 2)},
					MemLoad{Addr: addr(i.Addr)},
					Push{Value: uint64(itemWidth)}, Op{Kind: OpU32WrappingMul},
					Op{Kind: OpU32WrappingAdd})
				if itemOffset+j > 0 {
					c.emit(Push{Value: uint64(itemOffset + j)}, Op{Kind: OpU32WrappingAdd})
				}
				c.emit(MemStore{})
			}
			itemOffset += w
		}
		c.emit(MemLoad{Addr: addr(i.Addr)}, Push{Value: 1},
			Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(i.Addr)})
		return nil
	})
	if err != nil {
		return err
	}

	c.emit(While{
		Cond: []Instruction{
			MemLoad{Addr: addr(i.Addr)}, MemLoad{Addr: addr(sym.Addr + 1)},
			Op{Kind: OpU32CheckedLt},
		},
		Body: body,
	})
	return nil
}

// ---------------------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------------------

// buildBegin assembles the entry block: seed the heap pointer, load
// ctx, `this` and the parameters from the advice tape (folding
// compile-time arguments as constants), run the selected method, then
// leave the result region's digest on the stack as the run summary
// (the digest of `this` when the method returns nothing).
func (c *Compiler) buildBegin(fn *ast.Function, paramSyms []Symbol, procName string) ([]Instruction, error) {
	rest, err := c.collect(func() error {
		c.emit(Comment{Text: "load ctx"})
		if err := c.readAdviceInto(c.ctxSym); err != nil {
			return err
		}
		c.emit(Comment{Text: "load this"})
		if err := c.readAdviceInto(*c.thisSym); err != nil {
			return err
		}
		for i, p := range paramSyms {
			c.emit(Comment{Text: "load " + fn.Parameters[i].Name})
			if i < len(c.ctArgs) {
				if err := c.foldCompileTimeArg(p, c.ctArgs[i]); err != nil {
					return err
				}
				continue
			}
			if err := c.readAdviceInto(p); err != nil {
				return err
			}
		}
		c.emit(Call{Name: procName})

		summary := *c.thisSym
		if c.resultSym != nil {
			summary = *c.resultSym
		}
		c.emit(Comment{Text: "summary digest"},
			Push{Value: uint64(summary.Addr)},
			Push{Value: uint64(summary.Type.Width())},
			Call{Name: procHashMemory})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The heap starts where static allocation ended; everything the
	// body and prologue allocated is known by now.
	begin := []Instruction{
		Comment{Text: "heap init"},
		Push{Value: uint64(c.memory.StaticEnd())},
		MemStore{Addr: addr(heapPtrAddr)},
	}
	return append(begin, rest...), nil
}

// foldCompileTimeArg writes a compile-time argument into a parameter
// symbol as immediate constants.
func (c *Compiler) foldCompileTimeArg(p Symbol, arg CompileTimeArg) error {
	switch {
	case arg.U32 != nil:
		if p.Type.Tag != abi.TagUInt32 && p.Type.Tag != abi.TagInt32 {
			return diag.TypeMismatchf("compile-time u32 bound to %s parameter", p.Type)
		}
		c.memory.Write(c.ins, p.Addr, []ValueSource{Immediate(uint64(*arg.U32))})
		return nil
	case arg.Record != nil:
		if p.Type.Tag != abi.TagStruct {
			return diag.TypeMismatchf("compile-time record bound to %s parameter", p.Type)
		}
		names := make([]string, 0, len(arg.Record))
		for name := range arg.Record {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			field, ok := p.FieldSymbol(name)
			if !ok {
				return diag.NotFound("field", name)
			}
			if field.Type.Tag != abi.TagUInt32 && field.Type.Tag != abi.TagInt32 {
				return diag.TypeMismatchf("compile-time record field %s bound to %s", name, field.Type)
			}
			c.memory.Write(c.ins, field.Addr, []ValueSource{Immediate(uint64(arg.Record[name]))})
		}
		return nil
	}
	return diag.NotImplemented("compile-time argument kind")
}
