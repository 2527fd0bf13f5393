package parser

import (
	"testing"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/stretchr/testify/require"

	"github.com/polybase/polylang-go/diag"
)

func lexAll(t *testing.T, src string) []lexer.Token {
	t.Helper()
	l, err := Def.LexString("", src)
	require.NoError(t, err)
	var tokens []lexer.Token
	for {
		tok, err := l.Next()
		require.NoError(t, err)
		if tok.Type == lexer.EOF {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

func lexErr(t *testing.T, src string) *diag.Error {
	t.Helper()
	l, err := Def.LexString("", src)
	require.NoError(t, err)
	for {
		tok, err := l.Next()
		if err != nil {
			var de *diag.Error
			require.ErrorAs(t, err, &de)
			return de
		}
		require.NotEqual(t, lexer.EOF, tok.Type, "expected a lex error, got EOF")
	}
}

func TestLexTokenKinds(t *testing.T) {
	tokens := lexAll(t, `let x: u32 = 42;`)
	types := make([]lexer.TokenType, len(tokens))
	values := make([]string, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
		values[i] = tok.Value
	}
	require.Equal(t, []string{"let", "x", ":", "u32", "=", "42", ";"}, values)
	require.Equal(t, []lexer.TokenType{
		TokenIdent, TokenIdent, TokenPunct, TokenIdent, TokenPunct, TokenInt, TokenPunct,
	}, types)
}

func TestLexNumberFraction(t *testing.T) {
	tokens := lexAll(t, "1 2.5 0.0 3")
	require.Equal(t, TokenInt, tokens[0].Type)
	require.Equal(t, TokenFloat, tokens[1].Type)
	require.Equal(t, "2.5", tokens[1].Value)
	require.Equal(t, TokenFloat, tokens[2].Type)
	require.Equal(t, TokenInt, tokens[3].Type)
}

func TestLexMethodCallOnNumber(t *testing.T) {
	// The '.' belongs to the call, not the literal.
	tokens := lexAll(t, "3.wrappingAdd(b)")
	require.Equal(t, []string{"3", ".", "wrappingAdd", "(", "b", ")"},
		tokenValues(tokens))
}

func TestLexOperators(t *testing.T) {
	tokens := lexAll(t, "a ** b ++ <= >= == != && || << += -=")
	require.Equal(t, []string{"a", "**", "b", "++", "<=", ">=", "==", "!=", "&&", "||", "<<", "+=", "-="},
		tokenValues(tokens))
}

func TestLexShiftRightIsTwoTokens(t *testing.T) {
	// ">>" stays split so nested map types can close.
	tokens := lexAll(t, "map<string, map<string, number>>")
	values := tokenValues(tokens)
	require.Equal(t, ">", values[len(values)-1])
	require.Equal(t, ">", values[len(values)-2])
}

func TestLexNestedComments(t *testing.T) {
	tokens := lexAll(t, "a /* outer /* inner */ still outer */ b // line\nc")
	require.Equal(t, []string{"a", "b", "c"}, tokenValues(tokens))
}

func TestLexStringEscapes(t *testing.T) {
	tokens := lexAll(t, `"a\nb\t\"q\"" 'x'`)
	require.Equal(t, TokenString, tokens[0].Type)
	require.Equal(t, "a\nb\t\"q\"", tokens[0].Value)
	require.Equal(t, "x", tokens[1].Value)
}

func TestLexUnicodeStringPassthrough(t *testing.T) {
	src := `"ğ”Ğšğ“› ÅŸehir"`
	tokens := lexAll(t, src)
	require.Equal(t, "ğ”Ğšğ“› ÅŸehir", tokens[0].Value)
}

func TestLexErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		src  string
	}{
		{"unterminated string", `"abc`},
		{"unterminated comment", "/* nope"},
		{"nested unterminated comment", "/* a /* b */"},
		{"invalid escape", `"\q"`},
		{"unexpected byte", "a # b"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := lexErr(t, tt.src)
			require.Equal(t, diag.KindLex, err.Kind)
			require.NotNil(t, err.Span)
		})
	}
}

func TestLexPositions(t *testing.T) {
	tokens := lexAll(t, "a\n  bb")
	require.Equal(t, 1, tokens[0].Pos.Line)
	require.Equal(t, 1, tokens[0].Pos.Column)
	require.Equal(t, 0, tokens[0].Pos.Offset)
	require.Equal(t, 2, tokens[1].Pos.Line)
	require.Equal(t, 3, tokens[1].Pos.Column)
	require.Equal(t, 4, tokens[1].Pos.Offset)
}

func tokenValues(tokens []lexer.Token) []string {
	values := make([]string, len(tokens))
	for i, tok := range tokens {
		values[i] = tok.Value
	}
	return values
}
