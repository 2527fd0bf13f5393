package compiler

import (
	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

// compileForEach lowers for-in (keys: array indexes, map keys in
// storage order) and for-of (values) with an integer cursor and a
// bounds check against the iterable's length.
func (c *Compiler) compileForEach(s *ast.For) error {
	c.scope.Push()
	defer c.scope.Pop()

	iter, err := c.compileExpression(s.Iterable, nil)
	if err != nil {
		return err
	}

	var varType abi.Type
	switch iter.Type.Tag {
	case abi.TagArray:
		if s.Kind == ast.ForIn {
			varType = abi.UInt32
		} else {
			varType = *iter.Type.Element
		}
	case abi.TagMap:
		if s.Kind == ast.ForIn {
			varType = *iter.Type.Key
		} else {
			varType = *iter.Type.Value
		}
	default:
		return diag.TypeMismatchf("%s is not iterable", iter.Type)
	}

	cursor := c.memory.AllocateSymbol(abi.UInt32)
	c.memory.Write(c.ins, cursor.Addr, []ValueSource{Immediate(0)})
	loopVar := c.memory.AllocateSymbol(varType)
	c.scope.Declare(s.Identifier, loopVar)

	needsBreak := containsBreak(s.Body)
	var flag Symbol
	if needsBreak {
		flag = c.memory.AllocateSymbol(abi.Boolean)
		c.memory.Write(c.ins, flag.Addr, []ValueSource{Immediate(0)})
		c.breaks = append(c.breaks, flag)
		defer func() { c.breaks = c.breaks[:len(c.breaks)-1] }()
	}

	cond := []Instruction{
		MemLoad{Addr: addr(cursor.Addr)}, MemLoad{Addr: addr(iter.Addr + 1)},
		Op{Kind: OpU32CheckedLt},
	}
	if needsBreak {
		cond = append(cond, MemLoad{Addr: addr(flag.Addr)}, Op{Kind: OpNot}, Op{Kind: OpAnd})
	}
	if c.returnGuard != nil {
		cond = append(cond, MemLoad{Addr: addr(c.returnGuard.Addr)}, Op{Kind: OpNot}, Op{Kind: OpAnd})
	}

	body, err := c.collect(func() error {
		// Materialise the loop variable for this iteration.
		switch iter.Type.Tag {
		case abi.TagArray:
			if s.Kind == ast.ForIn {
				c.memory.Copy(c.ins, cursor.Addr, loopVar.Addr, 1)
			} else {
				c.emitEntryLoad(iter, cursor, 0, loopVar)
			}
		case abi.TagMap:
			kw := iter.Type.Key.Width()
			if s.Kind == ast.ForIn {
				c.emitEntryLoad(iter, cursor, 0, loopVar)
			} else {
				c.emitEntryLoad(iter, cursor, kw, loopVar)
			}
		}
		return c.compileStatements(s.Body)
	})
	if err != nil {
		return err
	}
	body = append(body,
		MemLoad{Addr: addr(cursor.Addr)}, Push{Value: 1},
		Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(cursor.Addr)})

	c.emit(While{Cond: cond, Body: body})
	return nil
}

// emitEntryLoad copies dst.width cells out of entry [cursor] of an
// array-like, starting at the given offset within the entry.
func (c *Compiler) emitEntryLoad(iter, cursor Symbol, offset uint32, dst Symbol) {
	var entryWidth uint32
	switch iter.Type.Tag {
	case abi.TagArray:
		entryWidth = iter.Type.Element.Width()
	case abi.TagMap:
		entryWidth = iter.Type.Key.Width() + iter.Type.Value.Width()
	}
	w := dst.Type.Width()
	for j := uint32(0); j < w; j++ {
		c.emit(
			MemLoad{Addr: addr(iter.Addr + 2)},
			MemLoad{Addr: addr(cursor.Addr)},
			Push{Value: uint64(entryWidth)},
			Op{Kind: OpU32WrappingMul},
			Op{Kind: OpU32WrappingAdd},
		)
		if offset+j > 0 {
			c.emit(Push{Value: uint64(offset + j)}, Op{Kind: OpU32WrappingAdd})
		}
		c.emit(MemLoad{}, MemStore{Addr: addr(dst.Addr + j)})
	}
}
