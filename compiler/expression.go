package compiler

import (
	"math"

	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

// compileExpression evaluates an expression into a symbol. Identifiers
// resolve to their existing symbol (no copy); everything else lands in
// freshly allocated cells. The operand stack is left exactly as found:
// all intermediate values live in memory.
//
// hint nudges literal typing: an untyped number literal adopts a
// numeric hint, and defaults to f32 (the `number` type) otherwise.
func (c *Compiler) compileExpression(expr ast.Expression, hint *abi.Type) (Symbol, error) {
	guard := diag.StartSpan(expr.ExprSpan())
	defer guard.Release()

	switch e := expr.(type) {
	case *ast.NumberLiteral:
		return c.compileNumberLiteral(e, hint)
	case *ast.StringLiteral:
		return c.newStaticBytes([]byte(e.Value), abi.String), nil
	case *ast.BooleanLiteral:
		sym := c.memory.AllocateSymbol(abi.Boolean)
		v := uint64(0)
		if e.Value {
			v = 1
		}
		c.memory.Write(c.ins, sym.Addr, []ValueSource{Immediate(v)})
		return sym, nil
	case *ast.Ident:
		return c.scope.Lookup(e.Name)
	case *ast.ArrayLiteral:
		return c.compileArrayLiteral(e, hint)
	case *ast.ObjectLiteral:
		return c.compileObjectLiteral(e, hint)
	case *ast.Binary:
		return c.compileBinary(e, hint)
	case *ast.Unary:
		return c.compileUnary(e, hint)
	case *ast.Increment:
		return c.compileIncrement(e)
	case *ast.Dot:
		return c.compileDot(e)
	case *ast.IndexExpr:
		return c.compileIndexGet(e)
	case *ast.Call:
		return c.compileCall(e)
	}
	return Symbol{}, diag.NotImplemented("expression")
}

func (c *Compiler) compileNumberLiteral(e *ast.NumberLiteral, hint *abi.Type) (Symbol, error) {
	t := abi.Float32
	if hint != nil && hint.Tag == abi.TagNullable && isNumeric(*hint.Element) {
		t = *hint.Element
	} else if hint != nil && isNumeric(*hint) {
		t = *hint
	}
	if e.HasFraction && isInteger(t) {
		return Symbol{}, diag.TypeMismatchf("literal %v has a fraction but %s is an integer type", e.Value, t)
	}
	sym := c.memory.AllocateSymbol(t)
	switch t.Tag {
	case abi.TagUInt32:
		if e.Value < 0 || e.Value > math.MaxUint32 {
			return Symbol{}, diag.TypeMismatchf("literal %v out of range for u32", e.Value)
		}
		c.memory.Write(c.ins, sym.Addr, []ValueSource{Immediate(uint64(e.Value))})
	case abi.TagInt32:
		if e.Value > math.MaxInt32 || e.Value < math.MinInt32 {
			return Symbol{}, diag.TypeMismatchf("literal %v out of range for i32", e.Value)
		}
		c.memory.Write(c.ins, sym.Addr, []ValueSource{Immediate(uint64(uint32(int32(e.Value))))})
	case abi.TagUInt64:
		if e.Value < 0 || e.Value > math.MaxUint64 {
			return Symbol{}, diag.TypeMismatchf("literal %v out of range for u64", e.Value)
		}
		bits := uint64(e.Value)
		c.memory.Write(c.ins, sym.Addr, []ValueSource{Immediate(bits >> 32), Immediate(bits & 0xffffffff)})
	case abi.TagInt64:
		bits := uint64(int64(e.Value))
		c.memory.Write(c.ins, sym.Addr, []ValueSource{Immediate(bits >> 32), Immediate(bits & 0xffffffff)})
	case abi.TagFloat32:
		c.memory.Write(c.ins, sym.Addr, []ValueSource{Immediate(uint64(math.Float32bits(float32(e.Value))))})
	case abi.TagFloat64:
		bits := math.Float64bits(e.Value)
		c.memory.Write(c.ins, sym.Addr, []ValueSource{Immediate(bits >> 32), Immediate(bits & 0xffffffff)})
	default:
		return Symbol{}, diag.TypeMismatchf("literal %v cannot have type %s", e.Value, t)
	}
	return sym, nil
}

// newStaticBytes lays out a byte string in the static region:
// [capacity, length, data_ptr] with the data cells allocated right
// behind the header.
func (c *Compiler) newStaticBytes(raw []byte, t abi.Type) Symbol {
	sym := c.memory.AllocateSymbol(t)
	data := c.memory.Allocate(uint32(len(raw)))
	c.memory.Write(c.ins, sym.Addr, []ValueSource{
		Immediate(uint64(len(raw))),
		Immediate(uint64(len(raw))),
		Immediate(uint64(data)),
	})
	sources := make([]ValueSource, len(raw))
	for i, b := range raw {
		sources[i] = Immediate(uint64(b))
	}
	c.memory.Write(c.ins, data, sources)
	return sym
}

func (c *Compiler) compileArrayLiteral(e *ast.ArrayLiteral, hint *abi.Type) (Symbol, error) {
	var elemType *abi.Type
	if hint != nil && hint.Tag == abi.TagArray {
		elemType = hint.Element
	}

	elems := make([]Symbol, 0, len(e.Elements))
	for _, elemExpr := range e.Elements {
		sym, err := c.compileExpression(elemExpr, elemType)
		if err != nil {
			return Symbol{}, err
		}
		if elemType == nil {
			t := sym.Type
			elemType = &t
		} else if !typesEqual(*elemType, sym.Type) {
			return Symbol{}, diag.TypeMismatchf("array element expected to be %s but found %s",
				elemType, sym.Type)
		}
		elems = append(elems, sym)
	}
	if elemType == nil {
		return Symbol{}, diag.TypeMismatchf("empty array literal needs a declared element type")
	}

	w := elemType.Width()
	sym := c.memory.AllocateSymbol(abi.ArrayOf(*elemType))
	data := c.memory.Allocate(uint32(len(elems)) * w)
	c.memory.Write(c.ins, sym.Addr, []ValueSource{
		Immediate(uint64(len(elems))),
		Immediate(uint64(len(elems))),
		Immediate(uint64(data)),
	})
	for i, elem := range elems {
		c.memory.Copy(c.ins, elem.Addr, data+uint32(i)*w, w)
	}
	return sym, nil
}

func (c *Compiler) compileObjectLiteral(e *ast.ObjectLiteral, hint *abi.Type) (Symbol, error) {
	// An object with a single id field coerces to a contract
	// reference when one is expected: { id: "user1" } stores as the
	// referenced record's id.
	if hint != nil && hint.Tag == abi.TagContractReference {
		if len(e.Fields) >= 1 && e.Fields[0].Name == "id" {
			idSym, err := c.compileExpression(e.Fields[0].Value, &abi.String)
			if err != nil {
				return Symbol{}, err
			}
			if idSym.Type.Tag != abi.TagString {
				return Symbol{}, diag.TypeMismatchf("record id expected to be string but found %s", idSym.Type)
			}
			sym := c.memory.AllocateSymbol(*hint)
			c.memory.Copy(c.ins, idSym.Addr, sym.Addr, 3)
			return sym, nil
		}
		return Symbol{}, diag.TypeMismatchf("object literal assigned to %s must carry an id", hint.Contract)
	}

	var hintFields map[string]abi.Type
	if hint != nil && hint.Tag == abi.TagStruct {
		hintFields = map[string]abi.Type{}
		for _, f := range hint.Struct.Fields {
			hintFields[f.Name] = f.Type
		}
	}

	s := abi.Struct{}
	values := make([]Symbol, 0, len(e.Fields))
	for _, field := range e.Fields {
		var fieldHint *abi.Type
		if t, ok := hintFields[field.Name]; ok {
			fieldHint = &t
		}
		sym, err := c.compileExpression(field.Value, fieldHint)
		if err != nil {
			return Symbol{}, err
		}
		s.Fields = append(s.Fields, abi.StructField{Name: field.Name, Type: sym.Type})
		values = append(values, sym)
	}

	sym := c.memory.AllocateSymbol(abi.StructOf(s))
	offset := sym.Addr
	for i, f := range s.Fields {
		c.memory.Copy(c.ins, values[i].Addr, offset, f.Type.Width())
		offset += f.Type.Width()
	}
	return sym, nil
}

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

func (c *Compiler) compileBinary(e *ast.Binary, hint *abi.Type) (Symbol, error) {
	switch e.Op {
	case ast.OpAssign, ast.OpAssignAdd, ast.OpAssignSub:
		return c.compileAssign(e)
	case ast.OpAnd, ast.OpOr:
		return c.compileLogical(e)
	}

	left, right, err := c.compileOperands(e.Left, e.Right)
	if err != nil {
		return Symbol{}, err
	}

	switch e.Op {
	case ast.OpEqual:
		return c.emitEquality(left, right)
	case ast.OpNotEqual:
		eq, err := c.emitEquality(left, right)
		if err != nil {
			return Symbol{}, err
		}
		out := c.memory.AllocateSymbol(abi.Boolean)
		c.emit(MemLoad{Addr: addr(eq.Addr)}, Op{Kind: OpNot}, MemStore{Addr: addr(out.Addr)})
		return out, nil
	}

	// Equality is total on nullables (handled above); every other
	// operator lifts: null in, null out.
	if left.Type.Tag == abi.TagNullable || right.Type.Tag == abi.TagNullable {
		return c.liftNullableBinary(e.Op, left, right)
	}

	switch e.Op {
	case ast.OpLessThan, ast.OpLessThanOrEqual, ast.OpGreaterThan, ast.OpGreaterThanOrEqual:
		return c.emitComparison(e.Op, left, right)
	default:
		return c.emitArithmetic(e.Op, left, right)
	}
}

// liftNullableBinary applies a binary operator under nullables: when
// every operand is present the inner operation runs and the result is
// present; a null operand makes the result null. The payload of a null
// operand is never read by the emitted code path that produces a
// present result.
func (c *Compiler) liftNullableBinary(op ast.BinaryOp, left, right Symbol) (Symbol, error) {
	unwrap := func(s Symbol) Symbol {
		if s.Type.Tag != abi.TagNullable {
			return s
		}
		return Symbol{Addr: s.Addr + 1, Type: *s.Type.Element}
	}
	a, b := unwrap(left), unwrap(right)

	var innerResult Symbol
	innerIns, err := c.collect(func() error {
		var err error
		switch op {
		case ast.OpLessThan, ast.OpLessThanOrEqual, ast.OpGreaterThan, ast.OpGreaterThanOrEqual:
			innerResult, err = c.emitComparison(op, a, b)
		default:
			innerResult, err = c.emitArithmetic(op, a, b)
		}
		return err
	})
	if err != nil {
		return Symbol{}, err
	}

	out := c.memory.AllocateSymbol(abi.NullableOf(innerResult.Type))
	payload := Symbol{Addr: out.Addr + 1, Type: innerResult.Type}

	cond := []Instruction{}
	first := true
	for _, operand := range []Symbol{left, right} {
		if operand.Type.Tag != abi.TagNullable {
			continue
		}
		cond = append(cond, MemLoad{Addr: addr(operand.Addr)})
		if !first {
			cond = append(cond, Op{Kind: OpAnd})
		}
		first = false
	}

	then := append(innerIns, Push{Value: 1}, MemStore{Addr: addr(out.Addr)})
	var thenCopy []Instruction
	c.memory.Copy(&thenCopy, innerResult.Addr, payload.Addr, payload.Type.Width())
	then = append(then, thenCopy...)

	c.emit(If{
		Cond: cond,
		Then: then,
		Else: []Instruction{Push{Value: 0}, MemStore{Addr: addr(out.Addr)}},
	})
	return out, nil
}

// compileOperands compiles both operands of a binary operator,
// steering literal typing: a bare literal adopts the other side's
// type.
func (c *Compiler) compileOperands(leftExpr, rightExpr ast.Expression) (Symbol, Symbol, error) {
	_, leftLit := leftExpr.(*ast.NumberLiteral)
	_, rightLit := rightExpr.(*ast.NumberLiteral)

	if leftLit && !rightLit {
		right, err := c.compileExpression(rightExpr, nil)
		if err != nil {
			return Symbol{}, Symbol{}, err
		}
		left, err := c.compileExpression(leftExpr, &right.Type)
		if err != nil {
			return Symbol{}, Symbol{}, err
		}
		return left, right, nil
	}
	left, err := c.compileExpression(leftExpr, nil)
	if err != nil {
		return Symbol{}, Symbol{}, err
	}
	right, err := c.compileExpression(rightExpr, &left.Type)
	if err != nil {
		return Symbol{}, Symbol{}, err
	}
	return left, right, nil
}

func (c *Compiler) compileLogical(e *ast.Binary) (Symbol, error) {
	left, err := c.compileExpression(e.Left, &abi.Boolean)
	if err != nil {
		return Symbol{}, err
	}
	if left.Type.Tag != abi.TagBoolean {
		return Symbol{}, diag.TypeMismatchf("operand of %s expected to be boolean but found %s", e.Op, left.Type)
	}
	out := c.memory.AllocateSymbol(abi.Boolean)

	rightIns, rightSym, err := c.collectExpression(e.Right, &abi.Boolean)
	if err != nil {
		return Symbol{}, err
	}
	if rightSym.Type.Tag != abi.TagBoolean {
		return Symbol{}, diag.TypeMismatchf("operand of %s expected to be boolean but found %s", e.Op, rightSym.Type)
	}
	evalRight := append(rightIns,
		MemLoad{Addr: addr(rightSym.Addr)}, MemStore{Addr: addr(out.Addr)})

	// Short-circuit: the right side only evaluates when it can still
	// change the outcome.
	if e.Op == ast.OpAnd {
		c.emit(If{
			Cond: []Instruction{MemLoad{Addr: addr(left.Addr)}},
			Then: evalRight,
			Else: []Instruction{Push{Value: 0}, MemStore{Addr: addr(out.Addr)}},
		})
	} else {
		c.emit(If{
			Cond: []Instruction{MemLoad{Addr: addr(left.Addr)}},
			Then: []Instruction{Push{Value: 1}, MemStore{Addr: addr(out.Addr)}},
			Else: evalRight,
		})
	}
	return out, nil
}

func (c *Compiler) collectExpression(expr ast.Expression, hint *abi.Type) ([]Instruction, Symbol, error) {
	var sym Symbol
	ins, err := c.collect(func() error {
		var err error
		sym, err = c.compileExpression(expr, hint)
		return err
	})
	return ins, sym, err
}

// loadOperand pushes a symbol's cells: [hi, lo] order for two-cell
// values, lo on top.
func (c *Compiler) loadOperand(s Symbol) {
	c.memory.Read(c.ins, s.Addr, s.Type.Width())
}

// loadBiased64 pushes an i64 with its high cell biased by 2^31 so the
// unsigned 64-bit comparison orders signed values.
func (c *Compiler) loadBiased64(s Symbol) {
	c.emit(MemLoad{Addr: addr(s.Addr)}, Push{Value: 0x80000000}, Op{Kind: OpU32WrappingAdd},
		MemLoad{Addr: addr(s.Addr + 1)})
}

func (c *Compiler) emitComparison(op ast.BinaryOp, left, right Symbol) (Symbol, error) {
	if !typesEqual(left.Type, right.Type) {
		return Symbol{}, diag.TypeMismatchf("cannot compare %s with %s", left.Type, right.Type)
	}
	if !isNumeric(left.Type) {
		return Symbol{}, diag.TypeMismatchf("operator %s expects numbers, found %s", op, left.Type)
	}
	out := c.memory.AllocateSymbol(abi.Boolean)

	// Normalize to < / <= by swapping operands for > / >=.
	a, b := left, right
	if op == ast.OpGreaterThan {
		a, b, op = right, left, ast.OpLessThan
	} else if op == ast.OpGreaterThanOrEqual {
		a, b, op = right, left, ast.OpLessThanOrEqual
	}

	switch left.Type.Tag {
	case abi.TagUInt32:
		c.loadOperand(a)
		c.loadOperand(b)
		if op == ast.OpLessThan {
			c.emit(Op{Kind: OpU32CheckedLt})
		} else {
			c.emit(Op{Kind: OpU32CheckedLte})
		}
	case abi.TagInt32:
		// Bias by 2^31; unsigned order then matches signed order.
		c.emit(MemLoad{Addr: addr(a.Addr)}, Push{Value: 0x80000000}, Op{Kind: OpU32WrappingAdd})
		c.emit(MemLoad{Addr: addr(b.Addr)}, Push{Value: 0x80000000}, Op{Kind: OpU32WrappingAdd})
		if op == ast.OpLessThan {
			c.emit(Op{Kind: OpU32CheckedLt})
		} else {
			c.emit(Op{Kind: OpU32CheckedLte})
		}
	case abi.TagUInt64:
		c.loadOperand(a)
		c.loadOperand(b)
		if op == ast.OpLessThan {
			c.emit(Call{Name: c.intrinsic(procU64Lt)})
		} else {
			c.emit(Call{Name: c.intrinsic(procU64Lte)})
		}
	case abi.TagInt64:
		c.loadBiased64(a)
		c.loadBiased64(b)
		if op == ast.OpLessThan {
			c.emit(Call{Name: c.intrinsic(procU64Lt)})
		} else {
			c.emit(Call{Name: c.intrinsic(procU64Lte)})
		}
	case abi.TagFloat32:
		c.loadOperand(a)
		c.loadOperand(b)
		if op == ast.OpLessThan {
			c.emit(Call{Name: procF32Lt})
		} else {
			c.emit(Call{Name: procF32Lte})
		}
	case abi.TagFloat64:
		c.loadOperand(a)
		c.loadOperand(b)
		if op == ast.OpLessThan {
			c.emit(Call{Name: procF64Lt})
		} else {
			c.emit(Call{Name: procF64Lte})
		}
	default:
		return Symbol{}, diag.NotImplemented("comparison on " + left.Type.String())
	}
	c.emit(MemStore{Addr: addr(out.Addr)})
	return out, nil
}

func (c *Compiler) emitArithmetic(op ast.BinaryOp, left, right Symbol) (Symbol, error) {
	if op == ast.OpExponent {
		return c.emitExponent(left, right)
	}
	if !typesEqual(left.Type, right.Type) {
		return Symbol{}, diag.TypeMismatchf("operator %s expects both operands of the same numeric type, found %s and %s",
			op, left.Type, right.Type)
	}

	bitwise := op == ast.OpBitAnd || op == ast.OpBitOr || op == ast.OpBitXor ||
		op == ast.OpShiftLeft || op == ast.OpShiftRight
	if bitwise && !isInteger(left.Type) {
		return Symbol{}, diag.TypeMismatchf("operator %s expects integers, found %s", op, left.Type)
	}
	if !bitwise && !isNumeric(left.Type) {
		return Symbol{}, diag.TypeMismatchf("operator %s expects numbers, found %s", op, left.Type)
	}

	out := c.memory.AllocateSymbol(left.Type)
	switch left.Type.Tag {
	case abi.TagUInt32, abi.TagInt32:
		signed := left.Type.Tag == abi.TagInt32
		c.loadOperand(left)
		c.loadOperand(right)
		switch op {
		case ast.OpAdd:
			c.emit(Op{Kind: OpU32WrappingAdd})
		case ast.OpSubtract:
			c.emit(Op{Kind: OpU32WrappingSub})
		case ast.OpMultiply:
			c.emit(Op{Kind: OpU32WrappingMul})
		case ast.OpDivide:
			if signed {
				c.emit(Call{Name: c.intrinsic(procI32Div)})
			} else {
				c.emit(Op{Kind: OpU32CheckedDiv})
			}
		case ast.OpModulo:
			if signed {
				c.emit(Call{Name: c.intrinsic(procI32Mod)})
			} else {
				c.emit(Op{Kind: OpU32CheckedMod})
			}
		case ast.OpBitAnd:
			c.emit(Op{Kind: OpU32CheckedAnd})
		case ast.OpBitOr:
			c.emit(Op{Kind: OpU32CheckedOr})
		case ast.OpBitXor:
			c.emit(Op{Kind: OpU32CheckedXor})
		case ast.OpShiftLeft:
			c.emit(Op{Kind: OpU32CheckedShl})
		case ast.OpShiftRight:
			c.emit(Op{Kind: OpU32CheckedShr})
		default:
			return Symbol{}, diag.NotImplemented("operator " + op.String())
		}
		c.emit(MemStore{Addr: addr(out.Addr)})
	case abi.TagUInt64, abi.TagInt64:
		var proc string
		switch op {
		case ast.OpAdd:
			proc = c.intrinsic(procU64Add)
		case ast.OpSubtract:
			proc = c.intrinsic(procU64Sub)
		case ast.OpBitAnd:
			proc = c.intrinsic(procU64And)
		case ast.OpBitOr:
			proc = c.intrinsic(procU64Or)
		case ast.OpBitXor:
			proc = c.intrinsic(procU64Xor)
		default:
			return Symbol{}, diag.NotImplemented("operator " + op.String() + " on " + left.Type.String())
		}
		c.loadOperand(left)
		c.loadOperand(right)
		c.emit(Call{Name: proc})
		c.storeStacked(out)
	case abi.TagFloat32, abi.TagFloat64:
		f64 := left.Type.Tag == abi.TagFloat64
		var proc string
		switch op {
		case ast.OpAdd:
			proc = procF32Add
		case ast.OpSubtract:
			proc = procF32Sub
		case ast.OpMultiply:
			proc = procF32Mul
		case ast.OpDivide:
			proc = procF32Div
		default:
			return Symbol{}, diag.NotImplemented("operator " + op.String() + " on " + left.Type.String())
		}
		if f64 {
			switch op {
			case ast.OpAdd:
				proc = procF64Add
			case ast.OpSubtract:
				proc = procF64Sub
			case ast.OpMultiply:
				proc = procF64Mul
			case ast.OpDivide:
				proc = procF64Div
			}
		}
		c.loadOperand(left)
		c.loadOperand(right)
		c.emit(Call{Name: proc})
		c.storeStacked(out)
	default:
		return Symbol{}, diag.NotImplemented("operator " + op.String() + " on " + left.Type.String())
	}
	return out, nil
}

// storeStacked pops a symbol's cells off the stack into its cell
// range; the top of the stack is the last cell.
func (c *Compiler) storeStacked(s Symbol) {
	w := s.Type.Width()
	for i := int(w) - 1; i >= 0; i-- {
		c.emit(MemStore{Addr: addr(s.Addr + uint32(i))})
	}
}

// emitExponent lowers ** as repeated multiplication for integer
// exponents; a negative exponent traps.
func (c *Compiler) emitExponent(base, exp Symbol) (Symbol, error) {
	if !typesEqual(base.Type, exp.Type) {
		return Symbol{}, diag.TypeMismatchf("operator ** expects both operands of the same numeric type, found %s and %s",
			base.Type, exp.Type)
	}
	if base.Type.Tag != abi.TagUInt32 && base.Type.Tag != abi.TagInt32 {
		return Symbol{}, diag.NotImplemented("operator ** on " + base.Type.String())
	}
	if base.Type.Tag == abi.TagInt32 {
		// exp >= 0: the sign bit must be clear.
		c.emit(MemLoad{Addr: addr(exp.Addr)}, Push{Value: 31}, Op{Kind: OpU32CheckedShr},
			Op{Kind: OpNot}, Assert{})
	}

	out := c.memory.AllocateSymbol(base.Type)
	i := c.memory.AllocateSymbol(abi.UInt32)
	c.memory.Write(c.ins, out.Addr, []ValueSource{Immediate(1)})
	c.memory.Write(c.ins, i.Addr, []ValueSource{Immediate(0)})
	c.emit(While{
		Cond: []Instruction{
			MemLoad{Addr: addr(i.Addr)}, MemLoad{Addr: addr(exp.Addr)}, Op{Kind: OpU32CheckedLt},
		},
		Body: []Instruction{
			MemLoad{Addr: addr(out.Addr)}, MemLoad{Addr: addr(base.Addr)},
			Op{Kind: OpU32WrappingMul}, MemStore{Addr: addr(out.Addr)},
			MemLoad{Addr: addr(i.Addr)}, Push{Value: 1},
			Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(i.Addr)},
		},
	})
	return out, nil
}

// ---------------------------------------------------------------------------
// Unary operators and post-increment
// ---------------------------------------------------------------------------

func (c *Compiler) compileUnary(e *ast.Unary, hint *abi.Type) (Symbol, error) {
	// Fold -literal into a literal so "-1" adopts a hint the way "1"
	// does. Without a hint a negated integer literal is i32 and a
	// negated fraction is f32.
	if lit, ok := e.Operand.(*ast.NumberLiteral); ok && e.Op == ast.OpNegate {
		neg := &ast.NumberLiteral{Value: -lit.Value, HasFraction: lit.HasFraction, Span: e.Span}
		hintOrSigned := hint
		if hintOrSigned == nil {
			if lit.HasFraction {
				hintOrSigned = &abi.Float32
			} else {
				hintOrSigned = &abi.Int32
			}
		}
		return c.compileNumberLiteral(neg, hintOrSigned)
	}

	operand, err := c.compileExpression(e.Operand, hint)
	if err != nil {
		return Symbol{}, err
	}
	switch e.Op {
	case ast.OpNot:
		if operand.Type.Tag != abi.TagBoolean {
			return Symbol{}, diag.TypeMismatchf("operator ! expects a boolean, found %s", operand.Type)
		}
		out := c.memory.AllocateSymbol(abi.Boolean)
		c.emit(MemLoad{Addr: addr(operand.Addr)}, Op{Kind: OpNot}, MemStore{Addr: addr(out.Addr)})
		return out, nil
	case ast.OpBitNot:
		switch operand.Type.Tag {
		case abi.TagUInt32, abi.TagInt32:
			out := c.memory.AllocateSymbol(operand.Type)
			c.emit(MemLoad{Addr: addr(operand.Addr)}, Push{Value: 0xffffffff},
				Op{Kind: OpU32CheckedXor}, MemStore{Addr: addr(out.Addr)})
			return out, nil
		}
		return Symbol{}, diag.NotImplemented("operator ~ on " + operand.Type.String())
	case ast.OpNegate:
		switch operand.Type.Tag {
		case abi.TagInt32:
			out := c.memory.AllocateSymbol(operand.Type)
			c.emit(Push{Value: 0}, MemLoad{Addr: addr(operand.Addr)},
				Op{Kind: OpU32WrappingSub}, MemStore{Addr: addr(out.Addr)})
			return out, nil
		case abi.TagFloat32:
			out := c.memory.AllocateSymbol(operand.Type)
			c.emit(MemLoad{Addr: addr(operand.Addr)}, Push{Value: 0x80000000},
				Op{Kind: OpU32CheckedXor}, MemStore{Addr: addr(out.Addr)})
			return out, nil
		case abi.TagFloat64:
			out := c.memory.AllocateSymbol(operand.Type)
			c.emit(MemLoad{Addr: addr(operand.Addr)}, Push{Value: 0x80000000},
				Op{Kind: OpU32CheckedXor}, MemStore{Addr: addr(out.Addr)})
			c.memory.Copy(c.ins, operand.Addr+1, out.Addr+1, 1)
			return out, nil
		}
		return Symbol{}, diag.TypeMismatchf("operator - expects a signed number, found %s", operand.Type)
	}
	return Symbol{}, diag.NotImplemented("unary operator")
}

// compileIncrement lowers post-increment: the expression value is the
// operand before the increment.
func (c *Compiler) compileIncrement(e *ast.Increment) (Symbol, error) {
	target, err := c.resolveLValue(e.Operand)
	if err != nil {
		return Symbol{}, err
	}
	sym, ok := target.static()
	if !ok {
		return Symbol{}, diag.NotImplemented("++ on a computed element")
	}
	switch sym.Type.Tag {
	case abi.TagUInt32, abi.TagInt32:
		old := c.memory.AllocateSymbol(sym.Type)
		c.memory.Copy(c.ins, sym.Addr, old.Addr, 1)
		c.emit(MemLoad{Addr: addr(sym.Addr)}, Push{Value: 1},
			Op{Kind: OpU32WrappingAdd}, MemStore{Addr: addr(sym.Addr)})
		return old, nil
	case abi.TagUInt64, abi.TagInt64:
		old := c.memory.AllocateSymbol(sym.Type)
		c.memory.Copy(c.ins, sym.Addr, old.Addr, 2)
		c.loadOperand(sym)
		c.emit(Push{Value: 0}, Push{Value: 1}, Call{Name: c.intrinsic(procU64Add)})
		c.storeStacked(sym)
		return old, nil
	}
	return Symbol{}, diag.TypeMismatchf("operator ++ expects an integer lvalue, found %s", sym.Type)
}
