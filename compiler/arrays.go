package compiler

import (
	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

func (c *Compiler) compileArrayMethod(obj Symbol, method string, args []ast.Expression) (Symbol, error) {
	elemType := *obj.Type.Element

	compileElemArgs := func(hint abi.Type) ([]Symbol, error) {
		out := make([]Symbol, 0, len(args))
		for _, argExpr := range args {
			sym, err := c.compileExpression(argExpr, &hint)
			if err != nil {
				return nil, err
			}
			if !typesEqual(hint, sym.Type) {
				return nil, diag.TypeMismatchf("%s expects %s, found %s", method, hint, sym.Type)
			}
			out = append(out, sym)
		}
		return out, nil
	}

	switch method {
	case "push":
		if len(args) != 1 {
			return Symbol{}, diag.ArgumentsCount(len(args), 1)
		}
		elems, err := compileElemArgs(elemType)
		if err != nil {
			return Symbol{}, err
		}
		return c.emitArrayPush(obj, elems[0]), nil
	case "pop":
		if len(args) != 0 {
			return Symbol{}, diag.ArgumentsCount(len(args), 0)
		}
		return c.emitArrayPop(obj), nil
	case "shift":
		if len(args) != 0 {
			return Symbol{}, diag.ArgumentsCount(len(args), 0)
		}
		return c.emitArrayShift(obj), nil
	case "unshift":
		if len(args) == 0 {
			return Symbol{}, diag.ArgumentsCount(0, 1)
		}
		elems, err := compileElemArgs(elemType)
		if err != nil {
			return Symbol{}, err
		}
		return c.emitArrayUnshift(obj, elems), nil
	case "slice":
		if len(args) > 2 {
			return Symbol{}, diag.ArgumentsCount(len(args), 2)
		}
		bounds := make([]Symbol, 0, 2)
		for _, argExpr := range args {
			sym, err := c.compileExpression(argExpr, &abi.UInt32)
			if err != nil {
				return Symbol{}, err
			}
			if sym.Type.Tag != abi.TagUInt32 {
				return Symbol{}, diag.TypeMismatchf("slice expects u32 bounds, found %s", sym.Type)
			}
			bounds = append(bounds, sym)
		}
		return c.emitArraySlice(obj, bounds), nil
	case "splice":
		if len(args) != 2 {
			return Symbol{}, diag.ArgumentsCount(len(args), 2)
		}
		start, err := c.compileExpression(args[0], &abi.UInt32)
		if err != nil {
			return Symbol{}, err
		}
		deleteCount, err := c.compileExpression(args[1], &abi.UInt32)
		if err != nil {
			return Symbol{}, err
		}
		if start.Type.Tag != abi.TagUInt32 || deleteCount.Type.Tag != abi.TagUInt32 {
			return Symbol{}, diag.TypeMismatchf("splice expects u32 arguments")
		}
		return c.emitArraySplice(obj, start, deleteCount), nil
	}
	return Symbol{}, diag.NotFound("method", method)
}

// emitRuntimeCopy copies mem[cnt] cells from base mem[src] to base
// mem[dst], ascending, where src, dst and cnt are cell addresses
// holding runtime values.
func (c *Compiler) emitRuntimeCopy(src, dst, cnt uint32) {
	k := c.memory.AllocateSymbol(abi.UInt32)
	c.memory.Write(c.ins, k.Addr, []ValueSource{Immediate(0)})
	c.emit(While{
		Cond: []Instruction{
			MemLoad{Addr: addr(k.Addr)}, MemLoad{Addr: addr(cnt)},
			Op{Kind: OpU32CheckedLt},
		},
		Body: []Instruction{
			MemLoad{Addr: addr(src)}, MemLoad{Addr: addr(k.Addr)},
			Op{Kind: OpU32WrappingAdd}, MemLoad{},
			MemLoad{Addr: addr(dst)}, MemLoad{Addr: addr(k.Addr)},
			Op{Kind: OpU32WrappingAdd},
			MemStore{},
			MemLoad{Addr: addr(k.Addr)}, Push{Value: 1},
			Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(k.Addr)},
		},
	})
}

// emitArrayPush appends one element, growing the backing store when
// capacity runs out, and returns the new length.
func (c *Compiler) emitArrayPush(arr, value Symbol) Symbol {
	w := value.Type.Width()
	newLen := c.memory.AllocateSymbol(abi.UInt32)
	newCap := c.memory.AllocateSymbol(abi.UInt32)
	src := c.memory.Allocate(1)
	dst := c.memory.Allocate(1)
	cnt := c.memory.Allocate(1)

	c.emit(MemLoad{Addr: addr(arr.Addr + 1)}, Push{Value: 1},
		Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(newLen.Addr)})

	grow, _ := c.collect(func() error {
		// newCap = max(cap * 2, newLen)
		c.emit(MemLoad{Addr: addr(arr.Addr)}, Push{Value: 2},
			Op{Kind: OpU32WrappingMul}, MemStore{Addr: addr(newCap.Addr)})
		c.emit(If{
			Cond: []Instruction{
				MemLoad{Addr: addr(newCap.Addr)}, MemLoad{Addr: addr(newLen.Addr)},
				Op{Kind: OpU32CheckedLt},
			},
			Then: []Instruction{
				MemLoad{Addr: addr(newLen.Addr)}, MemStore{Addr: addr(newCap.Addr)},
			},
		})
		c.emit(MemLoad{Addr: addr(newCap.Addr)}, Push{Value: uint64(w)},
			Op{Kind: OpU32WrappingMul},
			Call{Name: c.intrinsic(procDynamicAlloc)},
			MemStore{Addr: addr(dst)})
		c.emit(MemLoad{Addr: addr(arr.Addr + 2)}, MemStore{Addr: addr(src)})
		c.emit(MemLoad{Addr: addr(arr.Addr + 1)}, Push{Value: uint64(w)},
			Op{Kind: OpU32WrappingMul}, MemStore{Addr: addr(cnt)})
		c.emitRuntimeCopy(src, dst, cnt)
		c.emit(MemLoad{Addr: addr(dst)}, MemStore{Addr: addr(arr.Addr + 2)})
		c.emit(MemLoad{Addr: addr(newCap.Addr)}, MemStore{Addr: addr(arr.Addr)})
		return nil
	})
	c.emit(If{
		Cond: []Instruction{
			MemLoad{Addr: addr(arr.Addr)}, MemLoad{Addr: addr(newLen.Addr)},
			Op{Kind: OpU32CheckedLt},
		},
		Then: grow,
	})

	// Write the element at index len.
	for j := uint32(0); j < w; j++ {
		c.emit(MemLoad{Addr: addr(value.Addr + j)})
		c.emit(MemLoad{Addr: addr(arr.Addr + 2)},
			MemLoad{Addr: addr(arr.Addr + 1)},
			Push{Value: uint64(w)}, Op{Kind: OpU32WrappingMul},
			Op{Kind: OpU32WrappingAdd})
		if j > 0 {
			c.emit(Push{Value: uint64(j)}, Op{Kind: OpU32WrappingAdd})
		}
		c.emit(MemStore{})
	}
	c.emit(MemLoad{Addr: addr(newLen.Addr)}, MemStore{Addr: addr(arr.Addr + 1)})
	return newLen
}

// emitArrayPop removes and returns the last element; popping an empty
// array traps.
func (c *Compiler) emitArrayPop(arr Symbol) Symbol {
	c.emit(Push{Value: 0}, MemLoad{Addr: addr(arr.Addr + 1)},
		Op{Kind: OpU32CheckedLt}, Assert{})
	index := c.memory.AllocateSymbol(abi.UInt32)
	c.emit(MemLoad{Addr: addr(arr.Addr + 1)}, Push{Value: 1},
		Op{Kind: OpU32WrappingSub}, MemStore{Addr: addr(index.Addr)})
	out := c.emitElementGet(arr, index)
	c.emit(MemLoad{Addr: addr(index.Addr)}, MemStore{Addr: addr(arr.Addr + 1)})
	return out
}

// emitArrayShift removes and returns the first element, sliding the
// rest down.
func (c *Compiler) emitArrayShift(arr Symbol) Symbol {
	w := arr.Type.Element.Width()
	c.emit(Push{Value: 0}, MemLoad{Addr: addr(arr.Addr + 1)},
		Op{Kind: OpU32CheckedLt}, Assert{})

	zero := c.memory.AllocateSymbol(abi.UInt32)
	c.memory.Write(c.ins, zero.Addr, []ValueSource{Immediate(0)})
	out := c.emitElementGet(arr, zero)

	src := c.memory.Allocate(1)
	dst := c.memory.Allocate(1)
	cnt := c.memory.Allocate(1)
	c.emit(MemLoad{Addr: addr(arr.Addr + 2)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(src)})
	c.emit(MemLoad{Addr: addr(arr.Addr + 2)}, MemStore{Addr: addr(dst)})
	c.emit(MemLoad{Addr: addr(arr.Addr + 1)}, Push{Value: 1},
		Op{Kind: OpU32WrappingSub},
		Push{Value: uint64(w)}, Op{Kind: OpU32WrappingMul},
		MemStore{Addr: addr(cnt)})
	c.emitRuntimeCopy(src, dst, cnt)

	c.emit(MemLoad{Addr: addr(arr.Addr + 1)}, Push{Value: 1},
		Op{Kind: OpU32WrappingSub}, MemStore{Addr: addr(arr.Addr + 1)})
	return out
}

// emitArrayUnshift prepends the elements into a fresh backing store
// and returns the new length.
func (c *Compiler) emitArrayUnshift(arr Symbol, elems []Symbol) Symbol {
	w := arr.Type.Element.Width()
	n := uint32(len(elems))

	newLen := c.memory.AllocateSymbol(abi.UInt32)
	c.emit(MemLoad{Addr: addr(arr.Addr + 1)}, Push{Value: uint64(n)},
		Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(newLen.Addr)})

	newPtr := c.memory.Allocate(1)
	c.emit(MemLoad{Addr: addr(newLen.Addr)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingMul},
		Call{Name: c.intrinsic(procDynamicAlloc)},
		MemStore{Addr: addr(newPtr)})

	// New elements at the front.
	for i, elem := range elems {
		for j := uint32(0); j < w; j++ {
			offset := uint32(i)*w + j
			c.emit(MemLoad{Addr: addr(elem.Addr + j)})
			c.emit(MemLoad{Addr: addr(newPtr)})
			if offset > 0 {
				c.emit(Push{Value: uint64(offset)}, Op{Kind: OpU32WrappingAdd})
			}
			c.emit(MemStore{})
		}
	}

	// Old contents behind them.
	src := c.memory.Allocate(1)
	dst := c.memory.Allocate(1)
	cnt := c.memory.Allocate(1)
	c.emit(MemLoad{Addr: addr(arr.Addr + 2)}, MemStore{Addr: addr(src)})
	c.emit(MemLoad{Addr: addr(newPtr)}, Push{Value: uint64(n * w)},
		Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(dst)})
	c.emit(MemLoad{Addr: addr(arr.Addr + 1)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingMul}, MemStore{Addr: addr(cnt)})
	c.emitRuntimeCopy(src, dst, cnt)

	c.emit(MemLoad{Addr: addr(newPtr)}, MemStore{Addr: addr(arr.Addr + 2)})
	c.emit(MemLoad{Addr: addr(newLen.Addr)}, MemStore{Addr: addr(arr.Addr)})
	c.emit(MemLoad{Addr: addr(newLen.Addr)}, MemStore{Addr: addr(arr.Addr + 1)})
	return newLen
}

// emitArraySlice builds a freshly allocated copy of [start, end),
// with both bounds defaulted and clamped to [0, length].
func (c *Compiler) emitArraySlice(arr Symbol, bounds []Symbol) Symbol {
	w := arr.Type.Element.Width()

	start := c.memory.AllocateSymbol(abi.UInt32)
	end := c.memory.AllocateSymbol(abi.UInt32)
	if len(bounds) > 0 {
		c.memory.Copy(c.ins, bounds[0].Addr, start.Addr, 1)
	} else {
		c.memory.Write(c.ins, start.Addr, []ValueSource{Immediate(0)})
	}
	if len(bounds) > 1 {
		c.memory.Copy(c.ins, bounds[1].Addr, end.Addr, 1)
	} else {
		c.memory.Copy(c.ins, arr.Addr+1, end.Addr, 1)
	}

	clamp := func(sym Symbol) {
		c.emit(If{
			Cond: []Instruction{
				MemLoad{Addr: addr(arr.Addr + 1)}, MemLoad{Addr: addr(sym.Addr)},
				Op{Kind: OpU32CheckedLt},
			},
			Then: []Instruction{
				MemLoad{Addr: addr(arr.Addr + 1)}, MemStore{Addr: addr(sym.Addr)},
			},
		})
	}
	clamp(start)
	clamp(end)
	c.emit(If{
		Cond: []Instruction{
			MemLoad{Addr: addr(end.Addr)}, MemLoad{Addr: addr(start.Addr)},
			Op{Kind: OpU32CheckedLt},
		},
		Then: []Instruction{
			MemLoad{Addr: addr(start.Addr)}, MemStore{Addr: addr(end.Addr)},
		},
	})

	out := c.memory.AllocateSymbol(arr.Type)
	count := c.memory.AllocateSymbol(abi.UInt32)
	c.emit(MemLoad{Addr: addr(end.Addr)}, MemLoad{Addr: addr(start.Addr)},
		Op{Kind: OpU32WrappingSub}, MemStore{Addr: addr(count.Addr)})
	c.emit(MemLoad{Addr: addr(count.Addr)}, MemStore{Addr: addr(out.Addr)})
	c.emit(MemLoad{Addr: addr(count.Addr)}, MemStore{Addr: addr(out.Addr + 1)})
	c.emit(MemLoad{Addr: addr(count.Addr)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingMul},
		Call{Name: c.intrinsic(procDynamicAlloc)},
		MemStore{Addr: addr(out.Addr + 2)})

	src := c.memory.Allocate(1)
	dst := c.memory.Allocate(1)
	cnt := c.memory.Allocate(1)
	c.emit(MemLoad{Addr: addr(arr.Addr + 2)},
		MemLoad{Addr: addr(start.Addr)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingMul}, Op{Kind: OpU32WrappingAdd},
		MemStore{Addr: addr(src)})
	c.emit(MemLoad{Addr: addr(out.Addr + 2)}, MemStore{Addr: addr(dst)})
	c.emit(MemLoad{Addr: addr(count.Addr)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingMul}, MemStore{Addr: addr(cnt)})
	c.emitRuntimeCopy(src, dst, cnt)
	return out
}

// emitArraySplice removes deleteCount elements at start in place and
// returns them as a new array; start beyond the length traps.
func (c *Compiler) emitArraySplice(arr, start, deleteCount Symbol) Symbol {
	w := arr.Type.Element.Width()

	// start <= length
	c.emit(MemLoad{Addr: addr(start.Addr)}, MemLoad{Addr: addr(arr.Addr + 1)},
		Op{Kind: OpU32CheckedLte}, Assert{})

	// dc = min(deleteCount, length - start)
	dc := c.memory.AllocateSymbol(abi.UInt32)
	c.memory.Copy(c.ins, deleteCount.Addr, dc.Addr, 1)
	remaining := c.memory.AllocateSymbol(abi.UInt32)
	c.emit(MemLoad{Addr: addr(arr.Addr + 1)}, MemLoad{Addr: addr(start.Addr)},
		Op{Kind: OpU32WrappingSub}, MemStore{Addr: addr(remaining.Addr)})
	c.emit(If{
		Cond: []Instruction{
			MemLoad{Addr: addr(remaining.Addr)}, MemLoad{Addr: addr(dc.Addr)},
			Op{Kind: OpU32CheckedLt},
		},
		Then: []Instruction{
			MemLoad{Addr: addr(remaining.Addr)}, MemStore{Addr: addr(dc.Addr)},
		},
	})

	// The removed elements, copied out first.
	out := c.memory.AllocateSymbol(arr.Type)
	c.emit(MemLoad{Addr: addr(dc.Addr)}, MemStore{Addr: addr(out.Addr)})
	c.emit(MemLoad{Addr: addr(dc.Addr)}, MemStore{Addr: addr(out.Addr + 1)})
	c.emit(MemLoad{Addr: addr(dc.Addr)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingMul},
		Call{Name: c.intrinsic(procDynamicAlloc)},
		MemStore{Addr: addr(out.Addr + 2)})

	src := c.memory.Allocate(1)
	dst := c.memory.Allocate(1)
	cnt := c.memory.Allocate(1)
	c.emit(MemLoad{Addr: addr(arr.Addr + 2)},
		MemLoad{Addr: addr(start.Addr)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingMul}, Op{Kind: OpU32WrappingAdd},
		MemStore{Addr: addr(src)})
	c.emit(MemLoad{Addr: addr(out.Addr + 2)}, MemStore{Addr: addr(dst)})
	c.emit(MemLoad{Addr: addr(dc.Addr)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingMul}, MemStore{Addr: addr(cnt)})
	c.emitRuntimeCopy(src, dst, cnt)

	// Slide the tail left over the removed range.
	c.emit(MemLoad{Addr: addr(arr.Addr + 2)},
		MemLoad{Addr: addr(start.Addr)}, MemLoad{Addr: addr(dc.Addr)},
		Op{Kind: OpU32WrappingAdd},
		Push{Value: uint64(w)}, Op{Kind: OpU32WrappingMul},
		Op{Kind: OpU32WrappingAdd},
		MemStore{Addr: addr(src)})
	c.emit(MemLoad{Addr: addr(arr.Addr + 2)},
		MemLoad{Addr: addr(start.Addr)}, Push{Value: uint64(w)},
		Op{Kind: OpU32WrappingMul}, Op{Kind: OpU32WrappingAdd},
		MemStore{Addr: addr(dst)})
	c.emit(MemLoad{Addr: addr(remaining.Addr)}, MemLoad{Addr: addr(dc.Addr)},
		Op{Kind: OpU32WrappingSub},
		Push{Value: uint64(w)}, Op{Kind: OpU32WrappingMul},
		MemStore{Addr: addr(cnt)})
	c.emitRuntimeCopy(src, dst, cnt)

	// New length.
	c.emit(MemLoad{Addr: addr(arr.Addr + 1)}, MemLoad{Addr: addr(dc.Addr)},
		Op{Kind: OpU32WrappingSub}, MemStore{Addr: addr(arr.Addr + 1)})
	return out
}
