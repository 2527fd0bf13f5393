package parser

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

// folder rewrites the participle CST into the ast package's closed
// shape. It keeps the source text around so function bodies can be
// preserved verbatim and spans can be checked against it.
type folder struct {
	src string
}

func span(pos, end lexer.Position) diag.Span {
	return diag.NewSpan(pos.Offset, end.Offset)
}

func (f *folder) program(cst *cstProgram) (*ast.Program, error) {
	prog := &ast.Program{}
	for _, node := range cst.Nodes {
		decorators, err := f.decorators(node.Decorators)
		if err != nil {
			return nil, err
		}
		switch {
		case node.Contract != nil:
			contract, err := f.contract(node.Contract, decorators)
			if err != nil {
				return nil, err
			}
			prog.Nodes = append(prog.Nodes, contract)
		case node.Function != nil:
			fn, err := f.function(node.Function, decorators, "")
			if err != nil {
				return nil, err
			}
			prog.Nodes = append(prog.Nodes, fn)
		}
	}
	return prog, nil
}

func (f *folder) contract(cst *cstContract, decorators []ast.Decorator) (*ast.Contract, error) {
	contract := &ast.Contract{
		Name:       cst.Name,
		Decorators: decorators,
		Span:       span(cst.Pos, cst.EndPos),
	}
	for _, item := range cst.Items {
		itemDecorators, err := f.decorators(item.Decorators)
		if err != nil {
			return nil, err
		}
		switch {
		case item.IndexSemi:
			// "@index(...);" parses as decorators followed by a bare
			// semicolon; each index decorator becomes an Index item.
			for i, d := range item.Decorators {
				if d.Name != "index" {
					return nil, diag.Parsef(itemDecorators[i].Span,
						"decorator @%s is not attached to a field or function", d.Name)
				}
				index, err := f.index(d)
				if err != nil {
					return nil, err
				}
				contract.Items = append(contract.Items, index)
			}
		case item.Function != nil:
			fn, err := f.function(item.Function, itemDecorators, cst.Name)
			if err != nil {
				return nil, err
			}
			contract.Items = append(contract.Items, fn)
		case item.Field != nil:
			typ, err := f.typ(item.Field.Type)
			if err != nil {
				return nil, err
			}
			contract.Items = append(contract.Items, &ast.Field{
				Name:       item.Field.Name,
				Type:       typ,
				Required:   !item.Field.Optional,
				Decorators: itemDecorators,
				Span:       span(item.Field.Pos, item.Field.EndPos),
			})
		}
	}
	return contract, nil
}

func (f *folder) index(d *cstDecorator) (*ast.Index, error) {
	index := &ast.Index{Span: span(d.Pos, d.EndPos)}
	for _, arg := range d.Args {
		switch {
		case arg.Path != nil:
			index.Fields = append(index.Fields, ast.IndexField{Path: arg.Path.Parts, Order: ast.Asc})
		case arg.Group != nil:
			if len(arg.Group) == 0 || len(arg.Group) > 2 {
				return nil, diag.Parsef(span(d.Pos, d.EndPos), "index group must be [path] or [path, asc|desc]")
			}
			field := ast.IndexField{Path: arg.Group[0].Parts, Order: ast.Asc}
			if len(arg.Group) == 2 {
				switch strings.Join(arg.Group[1].Parts, ".") {
				case "asc":
				case "desc":
					field.Order = ast.Desc
				default:
					return nil, diag.Parsef(span(d.Pos, d.EndPos), "index order must be asc or desc")
				}
			}
			index.Fields = append(index.Fields, field)
		default:
			return nil, diag.Parsef(span(d.Pos, d.EndPos), "invalid @index argument")
		}
	}
	return index, nil
}

func (f *folder) decorators(cst []*cstDecorator) ([]ast.Decorator, error) {
	var out []ast.Decorator
	for _, d := range cst {
		dec := ast.Decorator{Name: d.Name, Span: span(d.Pos, d.EndPos)}
		for _, arg := range d.Args {
			switch {
			case arg.Str != nil:
				dec.Arguments = append(dec.Arguments, *arg.Str)
			case arg.Path != nil:
				dec.Arguments = append(dec.Arguments, strings.Join(arg.Path.Parts, "."))
			case arg.Group != nil:
				for _, p := range arg.Group {
					dec.Arguments = append(dec.Arguments, strings.Join(p.Parts, "."))
				}
			}
		}
		out = append(out, dec)
	}
	return out, nil
}

func (f *folder) function(cst *cstFunction, decorators []ast.Decorator, contractName string) (*ast.Function, error) {
	fn := &ast.Function{
		Name:       cst.Name,
		Decorators: decorators,
		Span:       span(cst.Pos, cst.EndPos),
	}
	for _, p := range cst.Parameters {
		param := ast.Parameter{
			Name:     p.Name,
			Required: !p.Optional,
			Span:     span(p.Pos, p.EndPos),
		}
		if p.Type.Name != nil && contractName != "" && *p.Type.Name == contractName && len(p.Type.Arrays) == 0 {
			param.Type = ast.ParameterType{Record: true}
		} else {
			typ, err := f.typ(p.Type)
			if err != nil {
				return nil, err
			}
			param.Type = ast.ParameterType{Type: typ}
		}
		fn.Parameters = append(fn.Parameters, param)
	}
	if cst.ReturnType != nil {
		typ, err := f.typ(cst.ReturnType)
		if err != nil {
			return nil, err
		}
		fn.ReturnType = typ
	}
	stmts, err := f.statements(cst.Body.Statements)
	if err != nil {
		return nil, err
	}
	fn.Statements = stmts

	// Preserve the raw body text between (not including) the braces.
	// EndPos is where the next token starts, so the closing brace is the
	// last '}' before it; the function's span ends right after that brace.
	start, next := cst.Body.Pos.Offset+1, cst.Body.EndPos.Offset
	if next > len(f.src) {
		next = len(f.src)
	}
	if end := strings.LastIndexByte(f.src[:next], '}'); start >= 0 && end >= start {
		fn.StatementsCode = f.src[start:end]
		fn.Span = diag.NewSpan(cst.Pos.Offset, end+1)
	}
	return fn, nil
}

func (f *folder) typ(cst *cstType) (ast.Type, error) {
	var t ast.Type
	switch {
	case cst.Map != nil:
		key, err := f.typ(cst.Map.Key)
		if err != nil {
			return nil, err
		}
		value, err := f.typ(cst.Map.Value)
		if err != nil {
			return nil, err
		}
		t = &ast.Map{Key: key, Value: value}
	case cst.Object != nil:
		obj := &ast.Object{}
		for _, field := range cst.Object.Fields {
			ft, err := f.typ(field.Type)
			if err != nil {
				return nil, err
			}
			obj.Fields = append(obj.Fields, ast.Field{
				Name:     field.Name,
				Type:     ft,
				Required: !field.Optional,
				Span:     span(field.Pos, field.EndPos),
			})
		}
		t = obj
	case cst.Name != nil:
		if kind, ok := ast.PrimitiveByName(*cst.Name); ok {
			t = &ast.Primitive{Kind: kind}
		} else {
			t = &ast.ForeignRecord{Contract: *cst.Name}
		}
	default:
		return nil, diag.Parsef(span(cst.Pos, cst.EndPos), "invalid type")
	}
	for range cst.Arrays {
		t = &ast.Array{Element: t}
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (f *folder) statements(cst []*cstStatement) ([]ast.Statement, error) {
	var out []ast.Statement
	for _, s := range cst {
		stmt, err := f.statement(s)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

func (f *folder) statement(cst *cstStatement) (ast.Statement, error) {
	sp := span(cst.Pos, cst.EndPos)
	switch {
	case cst.Break:
		return &ast.Break{Span: sp}, nil
	case cst.If != nil:
		return f.ifStmt(cst.If)
	case cst.While != nil:
		cond, err := f.expr(cst.While.Cond)
		if err != nil {
			return nil, err
		}
		body, err := f.statements(cst.While.Body.Statements)
		if err != nil {
			return nil, err
		}
		return &ast.While{Condition: cond, Body: body, Span: span(cst.While.Pos, cst.While.EndPos)}, nil
	case cst.For != nil:
		return f.forStmt(cst.For)
	case cst.Return != nil:
		var value ast.Expression
		if cst.Return.Value != nil {
			var err error
			value, err = f.expr(cst.Return.Value)
			if err != nil {
				return nil, err
			}
		}
		return &ast.Return{Value: value, Span: sp}, nil
	case cst.Throw != nil:
		value, err := f.expr(cst.Throw.Value)
		if err != nil {
			return nil, err
		}
		return &ast.Throw{Value: value, Span: sp}, nil
	case cst.Let != nil:
		let, err := f.let(cst.Let)
		if err != nil {
			return nil, err
		}
		return let, nil
	case cst.Expr != nil:
		expr, err := f.expr(cst.Expr)
		if err != nil {
			return nil, err
		}
		return &ast.ExpressionStmt{Expr: expr, Span: sp}, nil
	}
	return nil, diag.Parsef(sp, "invalid statement")
}

func (f *folder) let(cst *cstLet) (*ast.Let, error) {
	let := &ast.Let{
		Identifier: cst.Identifier,
		Span:       span(cst.Pos, cst.EndPos),
	}
	if cst.Type != nil {
		typ, err := f.typ(cst.Type)
		if err != nil {
			return nil, err
		}
		let.Type = typ
	}
	expr, err := f.expr(cst.Expression)
	if err != nil {
		return nil, err
	}
	let.Expression = expr
	return let, nil
}

func (f *folder) ifStmt(cst *cstIf) (*ast.If, error) {
	cond, err := f.expr(cst.Cond)
	if err != nil {
		return nil, err
	}
	then, err := f.statements(cst.Then.Statements)
	if err != nil {
		return nil, err
	}
	node := &ast.If{Condition: cond, Then: then, Span: span(cst.Pos, cst.EndPos)}
	switch {
	case cst.ElseIf != nil:
		elseIf, err := f.ifStmt(cst.ElseIf)
		if err != nil {
			return nil, err
		}
		node.Else = []ast.Statement{elseIf}
	case cst.Else != nil:
		elseStmts, err := f.statements(cst.Else.Statements)
		if err != nil {
			return nil, err
		}
		node.Else = elseStmts
	}
	return node, nil
}

func (f *folder) forStmt(cst *cstFor) (*ast.For, error) {
	body, err := f.statements(cst.Body.Statements)
	if err != nil {
		return nil, err
	}
	node := &ast.For{Body: body, Span: span(cst.Pos, cst.EndPos)}
	switch {
	case cst.Each != nil:
		if cst.Each.Kind == "in" {
			node.Kind = ast.ForIn
		} else {
			node.Kind = ast.ForOf
		}
		node.Identifier = cst.Each.Ident
		iter, err := f.expr(cst.Each.Iterable)
		if err != nil {
			return nil, err
		}
		node.Iterable = iter
	case cst.Basic != nil:
		node.Kind = ast.ForBasic
		if cst.Basic.InitLet != nil {
			let, err := f.let(cst.Basic.InitLet)
			if err != nil {
				return nil, err
			}
			node.InitialLet = let
		} else {
			init, err := f.expr(cst.Basic.InitExpr)
			if err != nil {
				return nil, err
			}
			node.InitialExpr = init
		}
		cond, err := f.expr(cst.Basic.Cond)
		if err != nil {
			return nil, err
		}
		node.Condition = cond
		post, err := f.expr(cst.Basic.Post)
		if err != nil {
			return nil, err
		}
		node.Post = post
	}
	return node, nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOps = map[string]ast.BinaryOp{
	"=":  ast.OpAssign,
	"+=": ast.OpAssignAdd,
	"-=": ast.OpAssignSub,
	"||": ast.OpOr,
	"&&": ast.OpAnd,
	"==": ast.OpEqual,
	"!=": ast.OpNotEqual,
	"<":  ast.OpLessThan,
	"<=": ast.OpLessThanOrEqual,
	">":  ast.OpGreaterThan,
	">=": ast.OpGreaterThanOrEqual,
	"|":  ast.OpBitOr,
	"^":  ast.OpBitXor,
	"&":  ast.OpBitAnd,
	"<<": ast.OpShiftLeft,
	">>": ast.OpShiftRight,
	"+":  ast.OpAdd,
	"-":  ast.OpSubtract,
	"*":  ast.OpMultiply,
	"/":  ast.OpDivide,
	"%":  ast.OpModulo,
	"**": ast.OpExponent,
}

func (f *folder) expr(cst *cstExpr) (ast.Expression, error) {
	return f.assign(cst.Assign)
}

func (f *folder) assign(cst *cstAssign) (ast.Expression, error) {
	left, err := f.or(cst.Left)
	if err != nil {
		return nil, err
	}
	if cst.Right == nil {
		return left, nil
	}
	right, err := f.assign(cst.Right)
	if err != nil {
		return nil, err
	}
	return &ast.Binary{
		Op:    binaryOps[cst.Op],
		Left:  left,
		Right: right,
		Span:  span(cst.Pos, cst.EndPos),
	}, nil
}

// foldChain left-folds a parsed operator chain into nested Binary nodes.
func foldChain(left ast.Expression, ops []string, rights []ast.Expression) ast.Expression {
	for i, right := range rights {
		sp := diag.NewSpan(left.ExprSpan().Start, right.ExprSpan().End)
		left = &ast.Binary{Op: binaryOps[ops[i]], Left: left, Right: right, Span: sp}
	}
	return left
}

func (f *folder) or(cst *cstOr) (ast.Expression, error) {
	left, err := f.and(cst.Left)
	if err != nil {
		return nil, err
	}
	ops := make([]string, 0, len(cst.Rest))
	rights := make([]ast.Expression, 0, len(cst.Rest))
	for _, rhs := range cst.Rest {
		right, err := f.and(rhs.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs.Op)
		rights = append(rights, right)
	}
	return foldChain(left, ops, rights), nil
}

func (f *folder) and(cst *cstAnd) (ast.Expression, error) {
	left, err := f.equality(cst.Left)
	if err != nil {
		return nil, err
	}
	ops := make([]string, 0, len(cst.Rest))
	rights := make([]ast.Expression, 0, len(cst.Rest))
	for _, rhs := range cst.Rest {
		right, err := f.equality(rhs.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs.Op)
		rights = append(rights, right)
	}
	return foldChain(left, ops, rights), nil
}

func (f *folder) equality(cst *cstEquality) (ast.Expression, error) {
	left, err := f.comparison(cst.Left)
	if err != nil {
		return nil, err
	}
	ops := make([]string, 0, len(cst.Rest))
	rights := make([]ast.Expression, 0, len(cst.Rest))
	for _, rhs := range cst.Rest {
		right, err := f.comparison(rhs.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs.Op)
		rights = append(rights, right)
	}
	return foldChain(left, ops, rights), nil
}

func (f *folder) comparison(cst *cstComparison) (ast.Expression, error) {
	left, err := f.bitOr(cst.Left)
	if err != nil {
		return nil, err
	}
	ops := make([]string, 0, len(cst.Rest))
	rights := make([]ast.Expression, 0, len(cst.Rest))
	for _, rhs := range cst.Rest {
		right, err := f.bitOr(rhs.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs.Op)
		rights = append(rights, right)
	}
	return foldChain(left, ops, rights), nil
}

func (f *folder) bitOr(cst *cstBitOr) (ast.Expression, error) {
	left, err := f.bitXor(cst.Left)
	if err != nil {
		return nil, err
	}
	ops := make([]string, 0, len(cst.Rest))
	rights := make([]ast.Expression, 0, len(cst.Rest))
	for _, rhs := range cst.Rest {
		right, err := f.bitXor(rhs.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs.Op)
		rights = append(rights, right)
	}
	return foldChain(left, ops, rights), nil
}

func (f *folder) bitXor(cst *cstBitXor) (ast.Expression, error) {
	left, err := f.bitAnd(cst.Left)
	if err != nil {
		return nil, err
	}
	ops := make([]string, 0, len(cst.Rest))
	rights := make([]ast.Expression, 0, len(cst.Rest))
	for _, rhs := range cst.Rest {
		right, err := f.bitAnd(rhs.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs.Op)
		rights = append(rights, right)
	}
	return foldChain(left, ops, rights), nil
}

func (f *folder) bitAnd(cst *cstBitAnd) (ast.Expression, error) {
	left, err := f.shift(cst.Left)
	if err != nil {
		return nil, err
	}
	ops := make([]string, 0, len(cst.Rest))
	rights := make([]ast.Expression, 0, len(cst.Rest))
	for _, rhs := range cst.Rest {
		right, err := f.shift(rhs.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs.Op)
		rights = append(rights, right)
	}
	return foldChain(left, ops, rights), nil
}

func (f *folder) shift(cst *cstShift) (ast.Expression, error) {
	left, err := f.additive(cst.Left)
	if err != nil {
		return nil, err
	}
	ops := make([]string, 0, len(cst.Rest))
	rights := make([]ast.Expression, 0, len(cst.Rest))
	for _, rhs := range cst.Rest {
		right, err := f.additive(rhs.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs.Op)
		rights = append(rights, right)
	}
	return foldChain(left, ops, rights), nil
}

func (f *folder) additive(cst *cstAdditive) (ast.Expression, error) {
	left, err := f.mul(cst.Left)
	if err != nil {
		return nil, err
	}
	ops := make([]string, 0, len(cst.Rest))
	rights := make([]ast.Expression, 0, len(cst.Rest))
	for _, rhs := range cst.Rest {
		right, err := f.mul(rhs.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs.Op)
		rights = append(rights, right)
	}
	return foldChain(left, ops, rights), nil
}

func (f *folder) mul(cst *cstMul) (ast.Expression, error) {
	left, err := f.exponent(cst.Left)
	if err != nil {
		return nil, err
	}
	ops := make([]string, 0, len(cst.Rest))
	rights := make([]ast.Expression, 0, len(cst.Rest))
	for _, rhs := range cst.Rest {
		right, err := f.exponent(rhs.Right)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rhs.Op)
		rights = append(rights, right)
	}
	return foldChain(left, ops, rights), nil
}

func (f *folder) exponent(cst *cstExponent) (ast.Expression, error) {
	left, err := f.unary(cst.Left)
	if err != nil {
		return nil, err
	}
	if cst.Right == nil {
		return left, nil
	}
	right, err := f.exponent(cst.Right)
	if err != nil {
		return nil, err
	}
	return &ast.Binary{
		Op:    ast.OpExponent,
		Left:  left,
		Right: right,
		Span:  span(cst.Pos, cst.EndPos),
	}, nil
}

func (f *folder) unary(cst *cstUnary) (ast.Expression, error) {
	if cst.Op != nil {
		operand, err := f.unary(cst.Operand)
		if err != nil {
			return nil, err
		}
		var op ast.UnaryOp
		switch *cst.Op {
		case "!":
			op = ast.OpNot
		case "~":
			op = ast.OpBitNot
		case "-":
			op = ast.OpNegate
		}
		return &ast.Unary{Op: op, Operand: operand, Span: span(cst.Pos, cst.EndPos)}, nil
	}
	return f.postfix(cst.Postfix)
}

func (f *folder) postfix(cst *cstPostfix) (ast.Expression, error) {
	expr, err := f.primary(cst.Primary)
	if err != nil {
		return nil, err
	}
	for _, op := range cst.Ops {
		sp := diag.NewSpan(expr.ExprSpan().Start, op.EndPos.Offset)
		switch {
		case op.Dot != nil:
			expr = &ast.Dot{Object: expr, Field: *op.Dot, Span: sp}
		case op.Index != nil:
			index, err := f.expr(op.Index)
			if err != nil {
				return nil, err
			}
			expr = &ast.IndexExpr{Object: expr, Subscript: index, Span: sp}
		case op.Call != nil:
			call := &ast.Call{Callee: expr, Span: sp}
			for _, arg := range op.Call.Args {
				a, err := f.expr(arg)
				if err != nil {
					return nil, err
				}
				call.Arguments = append(call.Arguments, a)
			}
			expr = call
		case op.Inc:
			expr = &ast.Increment{Operand: expr, Span: sp}
		}
	}
	return expr, nil
}

func (f *folder) primary(cst *cstPrimary) (ast.Expression, error) {
	sp := span(cst.Pos, cst.EndPos)
	switch {
	case cst.Float != nil:
		value, err := strconv.ParseFloat(*cst.Float, 64)
		if err != nil {
			return nil, diag.Parsef(sp, "invalid number literal %q", *cst.Float)
		}
		return &ast.NumberLiteral{Value: value, HasFraction: true, Span: sp}, nil
	case cst.Int != nil:
		value, err := strconv.ParseFloat(*cst.Int, 64)
		if err != nil {
			return nil, diag.Parsef(sp, "invalid number literal %q", *cst.Int)
		}
		return &ast.NumberLiteral{Value: value, Span: sp}, nil
	case cst.Str != nil:
		return &ast.StringLiteral{Value: *cst.Str, Span: sp}, nil
	case cst.True:
		return &ast.BooleanLiteral{Value: true, Span: sp}, nil
	case cst.False:
		return &ast.BooleanLiteral{Value: false, Span: sp}, nil
	case cst.Object != nil:
		obj := &ast.ObjectLiteral{Span: sp}
		for _, field := range cst.Object.Fields {
			value, err := f.expr(field.Value)
			if err != nil {
				return nil, err
			}
			obj.Fields = append(obj.Fields, ast.ObjectField{Name: field.Name, Value: value})
		}
		return obj, nil
	case cst.Array != nil:
		arr := &ast.ArrayLiteral{Span: sp}
		for _, elem := range cst.Array.Elements {
			value, err := f.expr(elem)
			if err != nil {
				return nil, err
			}
			arr.Elements = append(arr.Elements, value)
		}
		return arr, nil
	case cst.Ident != nil:
		return &ast.Ident{Name: *cst.Ident, Span: sp}, nil
	case cst.Sub != nil:
		return f.expr(cst.Sub)
	}
	return nil, diag.Parsef(sp, "invalid expression")
}
