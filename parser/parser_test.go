package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

// ignoreSpans strips spans when comparing trees structurally.
var ignoreSpans = cmpopts.IgnoreTypes(diag.Span{})

func parseOne(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	return prog
}

func firstContract(t *testing.T, prog *ast.Program) *ast.Contract {
	t.Helper()
	for _, node := range prog.Nodes {
		if c, ok := node.(*ast.Contract); ok {
			return c
		}
	}
	t.Fatal("no contract in program")
	return nil
}

func TestParseContract(t *testing.T) {
	prog := parseOne(t, `
		@public
		contract Account {
			id: string;
			balance: u32;
			note?: string;

			@call(owner)
			function transfer(to: string, amount: u32) {
				this.balance = this.balance - amount;
			}

			constructor (id: string) {
				this.id = id;
			}
		}
	`)
	contract := firstContract(t, prog)
	require.Equal(t, "Account", contract.Name)
	require.Len(t, contract.Decorators, 1)
	require.Equal(t, "public", contract.Decorators[0].Name)
	require.Len(t, contract.Items, 5)

	id := contract.Items[0].(*ast.Field)
	require.Equal(t, "id", id.Name)
	require.True(t, id.Required)
	if diff := cmp.Diff(&ast.Primitive{Kind: ast.TString}, id.Type); diff != "" {
		t.Fatal(diff)
	}

	note := contract.Items[2].(*ast.Field)
	require.False(t, note.Required)

	transfer := contract.Items[3].(*ast.Function)
	require.Equal(t, "transfer", transfer.Name)
	require.Equal(t, []string{"owner"}, transfer.Decorators[0].Arguments)
	require.Len(t, transfer.Parameters, 2)

	ctor := contract.Items[4].(*ast.Function)
	require.Equal(t, "constructor", ctor.Name)
}

func TestParseMethodWithoutFunctionKeyword(t *testing.T) {
	prog := parseOne(t, `
		contract Account {
			arr: number[];
			sliced: number[];

			slice2(start: u32, end: u32) {
				this.sliced = this.arr.slice(start, end);
			}
		}
	`)
	contract := firstContract(t, prog)
	fn := contract.Items[2].(*ast.Function)
	require.Equal(t, "slice2", fn.Name)
	require.Len(t, fn.Statements, 1)
}

func TestParseRecordParameter(t *testing.T) {
	prog := parseOne(t, `
		contract User {
			id: string;
		}

		contract Account {
			user: User;

			constructor (user: User, self: Account) {
				this.user = user;
			}
		}
	`)
	account := prog.Nodes[1].(*ast.Contract)
	ctor := account.Items[1].(*ast.Function)

	// A parameter typed as another contract is a foreign record...
	require.False(t, ctor.Parameters[0].Type.Record)
	if diff := cmp.Diff(&ast.ForeignRecord{Contract: "User"}, ctor.Parameters[0].Type.Type); diff != "" {
		t.Fatal(diff)
	}
	// ...while the enclosing contract's own name is the record type.
	require.True(t, ctor.Parameters[1].Type.Record)
}

func TestParseTypes(t *testing.T) {
	prog := parseOne(t, `
		contract T {
			a: i64[];
			b: map<string, number>;
			c: map<string, map<string, number>>;
			d: { x: f64; y?: boolean; };
			e: PublicKey;
			f: bytes;
			g: u32[][];
		}
	`)
	contract := firstContract(t, prog)
	types := make(map[string]ast.Type)
	for _, item := range contract.Items {
		f := item.(*ast.Field)
		types[f.Name] = f.Type
	}

	for name, want := range map[string]ast.Type{
		"a": &ast.Array{Element: &ast.Primitive{Kind: ast.TI64}},
		"b": &ast.Map{Key: &ast.Primitive{Kind: ast.TString}, Value: &ast.Primitive{Kind: ast.TNumber}},
		"c": &ast.Map{
			Key:   &ast.Primitive{Kind: ast.TString},
			Value: &ast.Map{Key: &ast.Primitive{Kind: ast.TString}, Value: &ast.Primitive{Kind: ast.TNumber}},
		},
		"e": &ast.Primitive{Kind: ast.TPublicKey},
		"f": &ast.Primitive{Kind: ast.TBytes},
		"g": &ast.Array{Element: &ast.Array{Element: &ast.Primitive{Kind: ast.TU32}}},
	} {
		if diff := cmp.Diff(want, types[name], ignoreSpans); diff != "" {
			t.Fatalf("%s: %s", name, diff)
		}
	}

	obj := types["d"].(*ast.Object)
	require.Len(t, obj.Fields, 2)
	require.True(t, obj.Fields[0].Required)
	require.False(t, obj.Fields[1].Required)
}

func TestParseIndexItems(t *testing.T) {
	prog := parseOne(t, `
		contract City {
			name: string;
			country: string;

			@index(name);
			@index([country, desc], name);
		}
	`)
	contract := firstContract(t, prog)
	var indexes []*ast.Index
	for _, item := range contract.Items {
		if idx, ok := item.(*ast.Index); ok {
			indexes = append(indexes, idx)
		}
	}
	require.Len(t, indexes, 2)
	if diff := cmp.Diff([]ast.IndexField{{Path: []string{"name"}, Order: ast.Asc}}, indexes[0].Fields, ignoreSpans); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff([]ast.IndexField{
		{Path: []string{"country"}, Order: ast.Desc},
		{Path: []string{"name"}, Order: ast.Asc},
	}, indexes[1].Fields, ignoreSpans); diff != "" {
		t.Fatal(diff)
	}
}

func TestParsePrecedence(t *testing.T) {
	prog := parseOne(t, `function f() { let x = 1 + 2 * 3; }`)
	fn := prog.Nodes[0].(*ast.Function)
	let := fn.Statements[0].(*ast.Let)

	add := let.Expression.(*ast.Binary)
	require.Equal(t, ast.OpAdd, add.Op)
	mul := add.Right.(*ast.Binary)
	require.Equal(t, ast.OpMultiply, mul.Op)
}

func TestParseExponentRightAssociative(t *testing.T) {
	prog := parseOne(t, `function f() { let x = 2 ** 3 ** 2; }`)
	fn := prog.Nodes[0].(*ast.Function)
	let := fn.Statements[0].(*ast.Let)

	outer := let.Expression.(*ast.Binary)
	require.Equal(t, ast.OpExponent, outer.Op)
	_, leftIsLiteral := outer.Left.(*ast.NumberLiteral)
	require.True(t, leftIsLiteral)
	inner := outer.Right.(*ast.Binary)
	require.Equal(t, ast.OpExponent, inner.Op)
}

func TestParseShiftFromSplitTokens(t *testing.T) {
	prog := parseOne(t, `function f() { let x = a >> 2; }`)
	fn := prog.Nodes[0].(*ast.Function)
	let := fn.Statements[0].(*ast.Let)

	shift := let.Expression.(*ast.Binary)
	require.Equal(t, ast.OpShiftRight, shift.Op)
}

func TestParsePostfixChain(t *testing.T) {
	prog := parseOne(t, `function f() { this.arr[0].push(1, 2); }`)
	fn := prog.Nodes[0].(*ast.Function)
	stmt := fn.Statements[0].(*ast.ExpressionStmt)

	call := stmt.Expr.(*ast.Call)
	require.Len(t, call.Arguments, 2)
	dot := call.Callee.(*ast.Dot)
	require.Equal(t, "push", dot.Field)
	index := dot.Object.(*ast.IndexExpr)
	inner := index.Object.(*ast.Dot)
	require.Equal(t, "arr", inner.Field)
	this := inner.Object.(*ast.Ident)
	require.Equal(t, "this", this.Name)
}

func TestParseIncrement(t *testing.T) {
	prog := parseOne(t, `function f() { i++; }`)
	fn := prog.Nodes[0].(*ast.Function)
	stmt := fn.Statements[0].(*ast.ExpressionStmt)
	inc := stmt.Expr.(*ast.Increment)
	require.Equal(t, "i", inc.Operand.(*ast.Ident).Name)
}

func TestParseForLoops(t *testing.T) {
	prog := parseOne(t, `
		function f() {
			for (let i: u32 = 0; i < p; i++) {
				a = b;
			}
			for (let k in m) { a = k; }
			for (let v of arr) { a = v; }
		}
	`)
	fn := prog.Nodes[0].(*ast.Function)
	require.Len(t, fn.Statements, 3)

	basic := fn.Statements[0].(*ast.For)
	require.Equal(t, ast.ForBasic, basic.Kind)
	require.NotNil(t, basic.InitialLet)
	require.NotNil(t, basic.Condition)
	_, isInc := basic.Post.(*ast.Increment)
	require.True(t, isInc)

	forIn := fn.Statements[1].(*ast.For)
	require.Equal(t, ast.ForIn, forIn.Kind)
	require.Equal(t, "k", forIn.Identifier)

	forOf := fn.Statements[2].(*ast.For)
	require.Equal(t, ast.ForOf, forOf.Kind)
}

func TestParseIfElseChain(t *testing.T) {
	prog := parseOne(t, `
		function f() {
			if (a < b) { x = 1; } else if (a == b) { x = 2; } else { x = 3; }
		}
	`)
	fn := prog.Nodes[0].(*ast.Function)
	outer := fn.Statements[0].(*ast.If)
	require.Len(t, outer.Else, 1)
	inner := outer.Else[0].(*ast.If)
	require.Len(t, inner.Then, 1)
	require.Len(t, inner.Else, 1)
}

func TestParseStatements(t *testing.T) {
	prog := parseOne(t, `
		function f() {
			let a = [1, 2.5, x];
			let o = { id: "user1", n: 3 };
			while (a) { break; }
			throw "bad";
			return o;
		}
	`)
	fn := prog.Nodes[0].(*ast.Function)
	require.Len(t, fn.Statements, 5)

	arr := fn.Statements[0].(*ast.Let).Expression.(*ast.ArrayLiteral)
	require.Len(t, arr.Elements, 3)
	require.False(t, arr.Elements[0].(*ast.NumberLiteral).HasFraction)
	require.True(t, arr.Elements[1].(*ast.NumberLiteral).HasFraction)

	obj := fn.Statements[1].(*ast.Let).Expression.(*ast.ObjectLiteral)
	require.Equal(t, "id", obj.Fields[0].Name)
	require.Equal(t, "user1", obj.Fields[0].Value.(*ast.StringLiteral).Value)

	while := fn.Statements[2].(*ast.While)
	_, isBreak := while.Body[0].(*ast.Break)
	require.True(t, isBreak)

	_, isThrow := fn.Statements[3].(*ast.Throw)
	require.True(t, isThrow)
}

func TestParseSpansAndBodyText(t *testing.T) {
	src := `contract C { f(a: u32) { a = a; } }`
	prog := parseOne(t, src)
	contract := firstContract(t, prog)
	fn := contract.Items[0].(*ast.Function)

	require.Equal(t, " a = a; ", fn.StatementsCode)
	require.Equal(t, src[fn.Span.Start:fn.Span.End], `f(a: u32) { a = a; }`)

	stmt := fn.Statements[0].(*ast.ExpressionStmt)
	require.Equal(t, "a = a", src[stmt.Expr.ExprSpan().Start:stmt.Expr.ExprSpan().End])
}

func TestParseErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		src  string
	}{
		{"missing brace", `contract C { f() {`},
		{"missing semicolon", `contract C { a: u32 }`},
		{"bad decorator placement", `contract C { @what; }`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			var de *diag.Error
			require.ErrorAs(t, err, &de)
			require.Equal(t, diag.KindParse, de.Kind)
		})
	}
}

func TestParseDeterministic(t *testing.T) {
	src := `
		contract Fibonacci {
			fibVal: u32;

			function main(p: u32, a: u32, b: u32) {
				for (let i: u32 = 0; i < p; i++) {
					let c = a.wrappingAdd(b);
					a = b;
					b = c;
				}
				this.fibVal = a;
			}
		}
	`
	first := parseOne(t, src)
	second := parseOne(t, src)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatal(diff)
	}
}
