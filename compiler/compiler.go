package compiler

import (
	"fmt"

	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

// CompileTimeArg is an optional specialization: a named function
// parameter bound at compile time and folded as constants.
type CompileTimeArg struct {
	U32    *uint32
	Record map[string]uint32
}

// Compiler lowers one selected function of a program. It is
// single-threaded and synchronous; all state lives here for the
// duration of one Compile call.
type Compiler struct {
	memory *Memory
	scope  *Scope
	ins    *[]Instruction

	contracts map[string]*ast.Contract
	functions map[string]*ast.Function

	procs       []Procedure
	intrinsics  map[string]bool
	compiledFns map[string]*userFn
	u64scratch  uint32

	contract *ast.Contract
	thisSym  *Symbol
	ctxSym   Symbol

	resultSym   *Symbol
	returnGuard *Symbol
	breaks      []Symbol

	ctArgs []CompileTimeArg
}

// ctxType is the shape of the ambient `ctx` symbol: the caller's
// public key, when one was presented.
func ctxType() abi.Type {
	return abi.StructOf(abi.Struct{
		Name: "Ctx",
		Fields: []abi.StructField{
			{Name: "publicKey", Type: abi.NullableOf(abi.PubKey)},
		},
	})
}

// Compile lowers the named function of the named contract (or a free
// function when contractName is empty) and returns the assembly text
// plus the ABI the host marshals against.
func Compile(program *ast.Program, contractName, functionName string, ctArgs ...CompileTimeArg) (string, *abi.Abi, error) {
	tree, a, err := compileToTree(program, contractName, functionName, ctArgs...)
	if err != nil {
		return "", nil, err
	}
	return Encode(tree), a, nil
}

// compileToTree is Compile before serialization; tests execute the
// instruction tree directly.
func compileToTree(program *ast.Program, contractName, functionName string, ctArgs ...CompileTimeArg) (*Program, *abi.Abi, error) {
	c := &Compiler{
		memory:      NewMemory(),
		scope:       NewScope(),
		contracts:   map[string]*ast.Contract{},
		functions:   map[string]*ast.Function{},
		intrinsics:  map[string]bool{},
		compiledFns: map[string]*userFn{},
		ctArgs:      ctArgs,
	}
	for _, node := range program.Nodes {
		switch n := node.(type) {
		case *ast.Contract:
			c.contracts[n.Name] = n
		case *ast.Function:
			c.functions[n.Name] = n
		}
	}

	var fn *ast.Function
	var thisType abi.Type
	if contractName != "" {
		contract, ok := c.contracts[contractName]
		if !ok {
			return nil, nil, diag.NotFound("contract", contractName)
		}
		c.contract = contract
		var err error
		thisType, err = contractStructType(contract)
		if err != nil {
			return nil, nil, err
		}
		for _, item := range contract.Items {
			if f, ok := item.(*ast.Function); ok && f.Name == functionName {
				fn = f
			}
		}
	} else {
		thisType = abi.StructOf(abi.Struct{Name: "Empty"})
		fn = c.functions[functionName]
	}
	if fn == nil {
		return nil, nil, diag.NotFound("function", functionName)
	}

	// Fixed region layout: ctx, then this, then the result.
	c.ctxSym = c.memory.AllocateSymbol(ctxType())
	thisSym := c.memory.AllocateSymbol(thisType)
	c.thisSym = &thisSym

	a := &abi.Abi{
		ThisAddr:   addr(thisSym.Addr),
		ThisType:   &thisType,
		StdVersion: abi.StdVersionV1,
	}

	if fn.ReturnType != nil {
		rt, err := abiType(fn.ReturnType)
		if err != nil {
			return nil, nil, err
		}
		resultSym := c.memory.AllocateSymbol(rt)
		c.resultSym = &resultSym
		a.ResultAddr = addr(resultSym.Addr)
		a.ResultType = &rt
	}

	// Parameter symbols live below everything the body allocates.
	paramSyms := make([]Symbol, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		pt, err := parameterType(p, contractName)
		if err != nil {
			return nil, nil, err
		}
		paramSyms = append(paramSyms, c.memory.AllocateSymbol(pt))
		a.ParameterTypes = append(a.ParameterTypes, pt)
	}

	procName := procNameFor(contractName, functionName)
	c.compiledFns[procName] = &userFn{proc: procName, params: paramSyms, result: c.resultSym}
	body, err := c.compileFunction(fn, paramSyms, c.resultSym)
	if err != nil {
		return nil, nil, err
	}
	c.procs = append(c.procs, Procedure{Name: procName, Body: body})

	begin, err := c.buildBegin(fn, paramSyms, procName)
	if err != nil {
		return nil, nil, err
	}

	return &Program{Procs: c.procs, Begin: begin}, a, nil
}

func procNameFor(contractName, functionName string) string {
	if contractName == "" {
		return "fn." + functionName
	}
	return fmt.Sprintf("this.%s.%s", contractName, functionName)
}

// parameterType lowers a parameter declaration. A parameter typed as
// the enclosing contract, or as another contract, is carried as a
// record reference.
func parameterType(p ast.Parameter, contractName string) (abi.Type, error) {
	var t abi.Type
	if p.Type.Record {
		t = abi.ContractReferenceTo(contractName)
	} else {
		var err error
		t, err = abiType(p.Type.Type)
		if err != nil {
			return abi.Type{}, err
		}
	}
	if !p.Required {
		t = abi.NullableOf(t)
	}
	return t, nil
}

// compileFunction lowers a function body into a procedure. Parameters
// are assumed populated: the begin block reads the entry function's
// from the advice tape, and call sites copy arguments into the symbols
// of everything else. Per-function state is saved and restored so
// nested compilations (called functions) do not leak into the caller.
func (c *Compiler) compileFunction(fn *ast.Function, paramSyms []Symbol, result *Symbol) ([]Instruction, error) {
	savedResult, savedGuard, savedBreaks := c.resultSym, c.returnGuard, c.breaks
	c.resultSym, c.returnGuard, c.breaks = result, nil, nil
	defer func() {
		c.resultSym, c.returnGuard, c.breaks = savedResult, savedGuard, savedBreaks
	}()

	c.scope.Push()
	defer c.scope.Pop()

	if c.thisSym != nil {
		c.scope.Declare("this", *c.thisSym)
	}
	c.scope.Declare("ctx", c.ctxSym)
	for i, p := range fn.Parameters {
		c.scope.Declare(p.Name, paramSyms[i])
	}

	if hasEarlyReturn(fn.Statements) {
		guard := c.memory.AllocateSymbol(abi.Boolean)
		c.returnGuard = &guard
	}

	return c.collect(func() error {
		if c.returnGuard != nil {
			c.memory.Write(c.ins, c.returnGuard.Addr, []ValueSource{Immediate(0)})
		}
		return c.compileStatements(fn.Statements)
	})
}

// hasEarlyReturn reports whether any return appears anywhere other
// than as the final top-level statement. Such functions need a
// returned-flag so later statements are skipped.
func hasEarlyReturn(stmts []ast.Statement) bool {
	var walk func(stmts []ast.Statement, topLevel bool) bool
	walk = func(stmts []ast.Statement, topLevel bool) bool {
		for i, stmt := range stmts {
			switch s := stmt.(type) {
			case *ast.Return:
				if !topLevel || i != len(stmts)-1 {
					return true
				}
			case *ast.If:
				if walk(s.Then, false) || walk(s.Else, false) {
					return true
				}
			case *ast.While:
				if walk(s.Body, false) {
					return true
				}
			case *ast.For:
				if walk(s.Body, false) {
					return true
				}
			}
		}
		return false
	}
	return walk(stmts, true)
}

// collect redirects emission into a fresh buffer for the duration of f.
func (c *Compiler) collect(f func() error) ([]Instruction, error) {
	saved := c.ins
	var buf []Instruction
	c.ins = &buf
	err := f()
	c.ins = saved
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Compiler) emit(ins ...Instruction) {
	*c.ins = append(*c.ins, ins...)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// guardSymbols reports the flags that must be unset for a statement to
// execute: the function's returned flag and the innermost break flag.
func (c *Compiler) guardSymbols() []Symbol {
	var guards []Symbol
	if c.returnGuard != nil {
		guards = append(guards, *c.returnGuard)
	}
	if len(c.breaks) > 0 {
		guards = append(guards, c.breaks[len(c.breaks)-1])
	}
	return guards
}

func (c *Compiler) compileStatements(stmts []ast.Statement) error {
	guards := c.guardSymbols()
	for _, stmt := range stmts {
		if len(guards) == 0 {
			if err := c.compileStatement(stmt); err != nil {
				return err
			}
			continue
		}
		// Skip the statement once an early return or break fired.
		body, err := c.collect(func() error { return c.compileStatement(stmt) })
		if err != nil {
			return err
		}
		cond := guardCond(guards)
		c.emit(If{Cond: cond, Then: body})
	}
	return nil
}

// guardCond leaves 1 on the stack when none of the flags are set.
func guardCond(guards []Symbol) []Instruction {
	var cond []Instruction
	for i, g := range guards {
		cond = append(cond, MemLoad{Addr: addr(g.Addr)}, Op{Kind: OpNot})
		if i > 0 {
			cond = append(cond, Op{Kind: OpAnd})
		}
	}
	return cond
}

func (c *Compiler) compileStatement(stmt ast.Statement) error {
	guard := diag.StartSpan(stmt.StmtSpan())
	defer guard.Release()

	switch s := stmt.(type) {
	case *ast.Break:
		if len(c.breaks) == 0 {
			return diag.Simplef("break outside of a loop")
		}
		flag := c.breaks[len(c.breaks)-1]
		c.memory.Write(c.ins, flag.Addr, []ValueSource{Immediate(1)})
		return nil
	case *ast.Let:
		return c.compileLet(s)
	case *ast.If:
		return c.compileIf(s)
	case *ast.While:
		return c.compileWhile(s.Condition, s.Body)
	case *ast.For:
		return c.compileFor(s)
	case *ast.Return:
		return c.compileReturn(s)
	case *ast.Throw:
		return c.compileThrow(s)
	case *ast.ExpressionStmt:
		_, err := c.compileExpression(s.Expr, nil)
		return err
	}
	return diag.NotImplemented("statement")
}

func (c *Compiler) compileLet(s *ast.Let) error {
	var hint *abi.Type
	if s.Type != nil {
		t, err := abiType(s.Type)
		if err != nil {
			return err
		}
		hint = &t
	}
	value, err := c.compileExpression(s.Expression, hint)
	if err != nil {
		return err
	}

	declared := value.Type
	if hint != nil {
		if !assignable(*hint, value.Type) {
			return diag.TypeMismatchf("%s expected to be %s but found %s",
				s.Identifier, hint, value.Type)
		}
		declared = *hint
	}
	sym := c.memory.AllocateSymbol(declared)
	if err := c.storeInto(sym, value); err != nil {
		return err
	}
	c.scope.Declare(s.Identifier, sym)
	return nil
}

func (c *Compiler) compileIf(s *ast.If) error {
	cond, err := c.collectCondition(s.Condition)
	if err != nil {
		return err
	}

	c.scope.Push()
	then, err := c.collect(func() error { return c.compileStatements(s.Then) })
	c.scope.Pop()
	if err != nil {
		return err
	}

	c.scope.Push()
	elseIns, err := c.collect(func() error { return c.compileStatements(s.Else) })
	c.scope.Pop()
	if err != nil {
		return err
	}

	c.emit(If{Cond: cond, Then: then, Else: elseIns})
	return nil
}

// collectCondition compiles a boolean expression into instructions
// that leave a single cell on the stack.
func (c *Compiler) collectCondition(expr ast.Expression) ([]Instruction, error) {
	var sym Symbol
	cond, err := c.collect(func() error {
		var err error
		sym, err = c.compileExpression(expr, &abi.Boolean)
		return err
	})
	if err != nil {
		return nil, err
	}
	if sym.Type.Tag != abi.TagBoolean {
		return nil, diag.TypeMismatchf("condition expected to be boolean but found %s", sym.Type)
	}
	return append(cond, MemLoad{Addr: addr(sym.Addr)}), nil
}

// compileWhile lowers a loop. The VM has no arbitrary jumps, so break
// is modelled as a flag cell the loop condition re-checks; nested
// loops get distinct flags on a small stack of break scopes.
func (c *Compiler) compileWhile(condition ast.Expression, body []ast.Statement) error {
	c.scope.Push()
	defer c.scope.Pop()

	needsBreak := containsBreak(body)
	var flag Symbol
	if needsBreak {
		flag = c.memory.AllocateSymbol(abi.Boolean)
		c.memory.Write(c.ins, flag.Addr, []ValueSource{Immediate(0)})
		c.breaks = append(c.breaks, flag)
		defer func() { c.breaks = c.breaks[:len(c.breaks)-1] }()
	}

	cond, err := c.collectCondition(condition)
	if err != nil {
		return err
	}
	if needsBreak {
		cond = append(cond, MemLoad{Addr: addr(flag.Addr)}, Op{Kind: OpNot}, Op{Kind: OpAnd})
	}
	if c.returnGuard != nil {
		cond = append(cond, MemLoad{Addr: addr(c.returnGuard.Addr)}, Op{Kind: OpNot}, Op{Kind: OpAnd})
	}

	bodyIns, err := c.collect(func() error { return c.compileStatements(body) })
	if err != nil {
		return err
	}

	c.emit(While{Cond: cond, Body: bodyIns})
	return nil
}

// containsBreak reports whether the statement list breaks out of THIS
// loop (breaks inside nested loops belong to those loops).
func containsBreak(stmts []ast.Statement) bool {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.Break:
			return true
		case *ast.If:
			if containsBreak(s.Then) || containsBreak(s.Else) {
				return true
			}
		}
	}
	return false
}

func (c *Compiler) compileFor(s *ast.For) error {
	switch s.Kind {
	case ast.ForBasic:
		// { init; while (cond) { body; post } }
		c.scope.Push()
		defer c.scope.Pop()
		if s.InitialLet != nil {
			if err := c.compileLet(s.InitialLet); err != nil {
				return err
			}
		} else if s.InitialExpr != nil {
			if _, err := c.compileExpression(s.InitialExpr, nil); err != nil {
				return err
			}
		}
		body := append([]ast.Statement{}, s.Body...)
		body = append(body, &ast.ExpressionStmt{Expr: s.Post, Span: s.Post.ExprSpan()})
		return c.compileWhile(s.Condition, body)
	case ast.ForIn, ast.ForOf:
		return c.compileForEach(s)
	}
	return diag.NotImplemented("for loop kind")
}

func (c *Compiler) compileReturn(s *ast.Return) error {
	if s.Value != nil {
		if c.resultSym == nil {
			return diag.TypeMismatchf("function has no return type but returns a value")
		}
		value, err := c.compileExpression(s.Value, &c.resultSym.Type)
		if err != nil {
			return err
		}
		if !assignable(c.resultSym.Type, value.Type) {
			return diag.TypeMismatchf("return value expected to be %s but found %s",
				c.resultSym.Type, value.Type)
		}
		if err := c.storeInto(*c.resultSym, value); err != nil {
			return err
		}
	}
	if c.returnGuard != nil {
		c.memory.Write(c.ins, c.returnGuard.Addr, []ValueSource{Immediate(1)})
	}
	return nil
}

func (c *Compiler) compileThrow(s *ast.Throw) error {
	value, err := c.compileExpression(s.Value, &abi.String)
	if err != nil {
		return err
	}
	if value.Type.Tag == abi.TagString {
		c.emit(Push{Value: uint64(value.Addr)}, Log{})
	}
	c.emit(Push{Value: 0}, Assert{})
	return nil
}
