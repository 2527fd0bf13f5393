package compiler

import (
	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

// voidType is the zero-width result of statements-as-calls.
func voidType() abi.Type {
	return abi.StructOf(abi.Struct{Name: "Void"})
}

func (c *Compiler) compileCall(e *ast.Call) (Symbol, error) {
	switch callee := e.Callee.(type) {
	case *ast.Ident:
		return c.compileFreeCall(callee.Name, e.Arguments)
	case *ast.Dot:
		obj, err := c.compileExpression(callee.Object, nil)
		if err != nil {
			return Symbol{}, err
		}
		return c.compileMethodCall(obj, callee.Object, callee.Field, e.Arguments)
	}
	return Symbol{}, diag.TypeMismatchf("expression is not callable")
}

func (c *Compiler) compileFreeCall(name string, args []ast.Expression) (Symbol, error) {
	switch name {
	case "error":
		if len(args) != 1 {
			return Symbol{}, diag.ArgumentsCount(len(args), 1)
		}
		msg, err := c.compileExpression(args[0], &abi.String)
		if err != nil {
			return Symbol{}, err
		}
		if msg.Type.Tag == abi.TagString {
			c.emit(Push{Value: uint64(msg.Addr)}, Log{})
		}
		c.emit(Push{Value: 0}, Assert{})
		return c.memory.AllocateSymbol(voidType()), nil
	case "log":
		if len(args) != 1 {
			return Symbol{}, diag.ArgumentsCount(len(args), 1)
		}
		value, err := c.compileExpression(args[0], &abi.String)
		if err != nil {
			return Symbol{}, err
		}
		if value.Type.Tag != abi.TagString {
			return Symbol{}, diag.TypeMismatchf("log expects a string, found %s", value.Type)
		}
		c.emit(Push{Value: uint64(value.Addr)}, Log{})
		return c.memory.AllocateSymbol(voidType()), nil
	case "selfdestruct":
		if len(args) != 0 {
			return Symbol{}, diag.ArgumentsCount(len(args), 0)
		}
		c.memory.Write(c.ins, selfDestructAddr, []ValueSource{Immediate(1)})
		return c.memory.AllocateSymbol(voidType()), nil
	}

	fn, ok := c.functions[name]
	if !ok {
		return Symbol{}, diag.NotFound("function", name)
	}
	return c.compileUserCall("fn."+name, fn, args)
}

func (c *Compiler) compileMethodCall(obj Symbol, objExpr ast.Expression, method string, args []ast.Expression) (Symbol, error) {
	// A call on `this` may target another method of the contract.
	if c.contract != nil && obj.Type.Tag == abi.TagStruct && obj.Type.Struct.Name == c.contract.Name {
		for _, item := range c.contract.Items {
			if fn, ok := item.(*ast.Function); ok && fn.Name == method {
				return c.compileUserCall(procNameFor(c.contract.Name, method), fn, args)
			}
		}
	}

	switch obj.Type.Tag {
	case abi.TagString:
		return c.compileStringMethod(obj, method, args)
	case abi.TagArray:
		return c.compileArrayMethod(obj, method, args)
	case abi.TagUInt32, abi.TagInt32, abi.TagUInt64, abi.TagInt64:
		return c.compileIntMethod(obj, method, args)
	}
	return Symbol{}, diag.NotFound("method", method)
}

// ---------------------------------------------------------------------------
// User functions and methods
// ---------------------------------------------------------------------------

type userFn struct {
	proc       string
	params     []Symbol
	result     *Symbol
	compiling  bool
}

func (c *Compiler) compileUserCall(procName string, fn *ast.Function, args []ast.Expression) (Symbol, error) {
	compiled, ok := c.compiledFns[procName]
	if !ok {
		var err error
		compiled, err = c.compileUserFn(procName, fn)
		if err != nil {
			return Symbol{}, err
		}
	}
	if compiled.compiling {
		return Symbol{}, diag.NotImplemented("recursive function call")
	}
	if len(args) != len(compiled.params) {
		return Symbol{}, diag.ArgumentsCount(len(args), len(compiled.params))
	}

	// Arguments evaluate left to right into the callee's symbols.
	for i, argExpr := range args {
		hint := compiled.params[i].Type
		value, err := c.compileExpression(argExpr, &hint)
		if err != nil {
			return Symbol{}, err
		}
		if !assignable(hint, value.Type) {
			return Symbol{}, diag.TypeMismatchf("argument %d expected to be %s but found %s",
				i+1, hint, value.Type)
		}
		if err := c.storeInto(compiled.params[i], value); err != nil {
			return Symbol{}, err
		}
	}
	c.emit(Call{Name: compiled.proc})

	if compiled.result == nil {
		return c.memory.AllocateSymbol(voidType()), nil
	}
	// Copy the result out so a later call does not clobber it.
	out := c.memory.AllocateSymbol(compiled.result.Type)
	c.memory.Copy(c.ins, compiled.result.Addr, out.Addr, out.Type.Width())
	return out, nil
}

func (c *Compiler) compileUserFn(procName string, fn *ast.Function) (*userFn, error) {
	compiled := &userFn{proc: procName, compiling: true}
	c.compiledFns[procName] = compiled

	for _, p := range fn.Parameters {
		contractName := ""
		if c.contract != nil {
			contractName = c.contract.Name
		}
		pt, err := parameterType(p, contractName)
		if err != nil {
			return nil, err
		}
		compiled.params = append(compiled.params, c.memory.AllocateSymbol(pt))
	}
	if fn.ReturnType != nil {
		rt, err := abiType(fn.ReturnType)
		if err != nil {
			return nil, err
		}
		result := c.memory.AllocateSymbol(rt)
		compiled.result = &result
	}

	body, err := c.compileFunction(fn, compiled.params, compiled.result)
	if err != nil {
		return nil, err
	}
	c.procs = append(c.procs, Procedure{Name: procName, Body: body})
	compiled.compiling = false
	return compiled, nil
}

// ---------------------------------------------------------------------------
// Integer built-ins
// ---------------------------------------------------------------------------

func (c *Compiler) compileIntMethod(obj Symbol, method string, args []ast.Expression) (Symbol, error) {
	var kind OpKind
	switch method {
	case "wrappingAdd":
		kind = OpU32WrappingAdd
	case "wrappingSub":
		kind = OpU32WrappingSub
	case "wrappingMul":
		kind = OpU32WrappingMul
	default:
		return Symbol{}, diag.NotFound("method", method)
	}
	if len(args) != 1 {
		return Symbol{}, diag.ArgumentsCount(len(args), 1)
	}
	arg, err := c.compileExpression(args[0], &obj.Type)
	if err != nil {
		return Symbol{}, err
	}
	if !typesEqual(obj.Type, arg.Type) {
		return Symbol{}, diag.TypeMismatchf("%s expects %s, found %s", method, obj.Type, arg.Type)
	}

	out := c.memory.AllocateSymbol(obj.Type)
	switch obj.Type.Tag {
	case abi.TagUInt32, abi.TagInt32:
		c.emit(MemLoad{Addr: addr(obj.Addr)}, MemLoad{Addr: addr(arg.Addr)},
			Op{Kind: kind}, MemStore{Addr: addr(out.Addr)})
	case abi.TagUInt64, abi.TagInt64:
		var proc string
		switch method {
		case "wrappingAdd":
			proc = c.intrinsic(procU64Add)
		case "wrappingSub":
			proc = c.intrinsic(procU64Sub)
		default:
			return Symbol{}, diag.NotImplemented(method + " on " + obj.Type.String())
		}
		c.loadOperand(obj)
		c.loadOperand(arg)
		c.emit(Call{Name: proc})
		c.storeStacked(out)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// String built-ins
// ---------------------------------------------------------------------------

func (c *Compiler) compileStringMethod(obj Symbol, method string, args []ast.Expression) (Symbol, error) {
	switch method {
	case "startsWith", "includes", "indexOf":
		if len(args) != 1 {
			return Symbol{}, diag.ArgumentsCount(len(args), 1)
		}
		needle, err := c.compileExpression(args[0], &abi.String)
		if err != nil {
			return Symbol{}, err
		}
		if needle.Type.Tag != abi.TagString {
			return Symbol{}, diag.TypeMismatchf("%s expects a string, found %s", method, needle.Type)
		}
		switch method {
		case "startsWith":
			return c.emitStartsWith(obj, needle), nil
		case "includes":
			found, _ := c.emitStringSearch(obj, needle)
			return found, nil
		default:
			found, pos := c.emitStringSearch(obj, needle)
			// indexOf: the position when found, -1 otherwise.
			out := c.memory.AllocateSymbol(abi.Int32)
			c.emit(If{
				Cond: []Instruction{MemLoad{Addr: addr(found.Addr)}},
				Then: []Instruction{MemLoad{Addr: addr(pos.Addr)}, MemStore{Addr: addr(out.Addr)}},
				Else: []Instruction{Push{Value: 0xffffffff}, MemStore{Addr: addr(out.Addr)}},
			})
			return out, nil
		}
	}
	return Symbol{}, diag.NotFound("method", method)
}

// emitStartsWith: needle not longer than the subject and a prefix
// byte loop.
func (c *Compiler) emitStartsWith(obj, needle Symbol) Symbol {
	out := c.memory.AllocateSymbol(abi.Boolean)
	i := c.memory.AllocateSymbol(abi.UInt32)

	loop := []Instruction{
		Push{Value: 1}, MemStore{Addr: addr(out.Addr)},
		Push{Value: 0}, MemStore{Addr: addr(i.Addr)},
		While{
			Cond: []Instruction{
				MemLoad{Addr: addr(i.Addr)}, MemLoad{Addr: addr(needle.Addr + 1)},
				Op{Kind: OpU32CheckedLt},
				MemLoad{Addr: addr(out.Addr)}, Op{Kind: OpAnd},
			},
			Body: []Instruction{
				MemLoad{Addr: addr(obj.Addr + 2)}, MemLoad{Addr: addr(i.Addr)},
				Op{Kind: OpU32WrappingAdd}, MemLoad{},
				MemLoad{Addr: addr(needle.Addr + 2)}, MemLoad{Addr: addr(i.Addr)},
				Op{Kind: OpU32WrappingAdd}, MemLoad{},
				Op{Kind: OpEq}, MemStore{Addr: addr(out.Addr)},
				MemLoad{Addr: addr(i.Addr)}, Push{Value: 1},
				Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(i.Addr)},
			},
		},
	}
	c.emit(If{
		Cond: []Instruction{
			// needle.length <= subject.length
			MemLoad{Addr: addr(needle.Addr + 1)}, MemLoad{Addr: addr(obj.Addr + 1)},
			Op{Kind: OpU32CheckedLte},
		},
		Then: loop,
		Else: []Instruction{Push{Value: 0}, MemStore{Addr: addr(out.Addr)}},
	})
	return out
}

// emitStringSearch scans for the needle, returning a found flag and
// the first match position. The empty needle matches at 0.
func (c *Compiler) emitStringSearch(obj, needle Symbol) (found, pos Symbol) {
	found = c.memory.AllocateSymbol(abi.Boolean)
	pos = c.memory.AllocateSymbol(abi.UInt32)
	i := c.memory.AllocateSymbol(abi.UInt32)
	j := c.memory.AllocateSymbol(abi.UInt32)
	match := c.memory.AllocateSymbol(abi.Boolean)

	c.emit(
		Push{Value: 0}, MemStore{Addr: addr(found.Addr)},
		Push{Value: 0}, MemStore{Addr: addr(pos.Addr)},
		Push{Value: 0}, MemStore{Addr: addr(i.Addr)},
		While{
			// i + needle.length <= subject.length && !found
			Cond: []Instruction{
				MemLoad{Addr: addr(i.Addr)}, MemLoad{Addr: addr(needle.Addr + 1)},
				Op{Kind: OpU32WrappingAdd},
				MemLoad{Addr: addr(obj.Addr + 1)}, Op{Kind: OpU32CheckedLte},
				MemLoad{Addr: addr(found.Addr)}, Op{Kind: OpNot}, Op{Kind: OpAnd},
			},
			Body: []Instruction{
				Push{Value: 1}, MemStore{Addr: addr(match.Addr)},
				Push{Value: 0}, MemStore{Addr: addr(j.Addr)},
				While{
					Cond: []Instruction{
						MemLoad{Addr: addr(j.Addr)}, MemLoad{Addr: addr(needle.Addr + 1)},
						Op{Kind: OpU32CheckedLt},
						MemLoad{Addr: addr(match.Addr)}, Op{Kind: OpAnd},
					},
					Body: []Instruction{
						MemLoad{Addr: addr(obj.Addr + 2)},
						MemLoad{Addr: addr(i.Addr)}, MemLoad{Addr: addr(j.Addr)},
						Op{Kind: OpU32WrappingAdd}, Op{Kind: OpU32WrappingAdd}, MemLoad{},
						MemLoad{Addr: addr(needle.Addr + 2)}, MemLoad{Addr: addr(j.Addr)},
						Op{Kind: OpU32WrappingAdd}, MemLoad{},
						Op{Kind: OpEq}, MemStore{Addr: addr(match.Addr)},
						MemLoad{Addr: addr(j.Addr)}, Push{Value: 1},
						Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(j.Addr)},
					},
				},
				If{
					Cond: []Instruction{MemLoad{Addr: addr(match.Addr)}},
					Then: []Instruction{
						Push{Value: 1}, MemStore{Addr: addr(found.Addr)},
						MemLoad{Addr: addr(i.Addr)}, MemStore{Addr: addr(pos.Addr)},
					},
				},
				MemLoad{Addr: addr(i.Addr)}, Push{Value: 1},
				Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(i.Addr)},
			},
		},
	)
	return found, pos
}
