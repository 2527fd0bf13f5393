package parser

import (
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/polybase/polylang-go/diag"
)

// Token types produced by the lexer. Values below lexer.EOF per the
// participle convention for custom definitions.
const (
	TokenIdent lexer.TokenType = -(iota + 2)
	TokenInt
	TokenFloat
	TokenString
	TokenOperator
	TokenPunct
)

// twoCharOps are the multi-character operators lexed as single tokens.
// ">>" is deliberately absent: emitting two ">" tokens lets nested
// map types close (map<string, map<string, number>>), and the grammar
// reassembles the shift operator from the pair.
var twoCharOps = []string{"&&", "||", "==", "!=", "<=", ">=", "+=", "-=", "++", "**", "<<"}

const singleCharOps = "=<>+-*/%!~^&|.,;:()[]{}@?"

// Definition is a hand-written lexer for contract source, plugged into
// participle as a custom lexer.Definition. Handwriting it (rather than
// using lexer.MustSimple) buys nestable block comments, resolved string
// escapes with byte-faithful Unicode contents, and the int/float token
// split that later drives number-vs-integer typing.
type Definition struct{}

// Def is the shared lexer definition.
var Def = Definition{}

// Symbols implements lexer.Definition.
func (Definition) Symbols() map[string]lexer.TokenType {
	return map[string]lexer.TokenType{
		"EOF":      lexer.EOF,
		"Ident":    TokenIdent,
		"Int":      TokenInt,
		"Float":    TokenFloat,
		"String":   TokenString,
		"Operator": TokenOperator,
		"Punct":    TokenPunct,
	}
}

// Lex implements lexer.Definition.
func (d Definition) Lex(filename string, r io.Reader) (lexer.Lexer, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, diag.IO(err)
	}
	return d.LexString(filename, string(src))
}

// LexString implements lexer.StringDefinition.
func (Definition) LexString(filename, input string) (lexer.Lexer, error) {
	return &srcLexer{name: filename, src: input, line: 1, col: 1}, nil
}

type srcLexer struct {
	name string
	src  string
	pos  int
	line int
	col  int
}

func (l *srcLexer) position() lexer.Position {
	return lexer.Position{Filename: l.name, Offset: l.pos, Line: l.line, Column: l.col}
}

// advance consumes one rune, keeping line/column in sync.
func (l *srcLexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *srcLexer) peek() rune {
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return r
}

func (l *srcLexer) eof() bool { return l.pos >= len(l.src) }

// Next implements lexer.Lexer.
func (l *srcLexer) Next() (lexer.Token, error) {
	if err := l.skipTrivia(); err != nil {
		return lexer.Token{}, err
	}
	pos := l.position()
	if l.eof() {
		return lexer.Token{Type: lexer.EOF, Pos: pos}, nil
	}

	r := l.peek()
	switch {
	case r == '_' || unicode.IsLetter(r) && r < utf8.RuneSelf:
		return l.lexIdent(pos), nil
	case r >= '0' && r <= '9':
		return l.lexNumber(pos), nil
	case r == '"' || r == '\'':
		return l.lexString(pos)
	}

	if l.pos+1 < len(l.src) {
		two := l.src[l.pos : l.pos+2]
		for _, op := range twoCharOps {
			if two == op {
				l.advance()
				l.advance()
				return lexer.Token{Type: TokenOperator, Value: op, Pos: pos}, nil
			}
		}
	}
	if strings.ContainsRune(singleCharOps, r) {
		l.advance()
		return lexer.Token{Type: TokenPunct, Value: string(r), Pos: pos}, nil
	}

	return lexer.Token{}, diag.Lexf(l.pos, "unexpected character %q", r)
}

// skipTrivia consumes whitespace and comments. Block comments nest.
func (l *srcLexer) skipTrivia() error {
	for !l.eof() {
		r := l.peek()
		switch {
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			l.advance()
		case strings.HasPrefix(l.src[l.pos:], "//"):
			for !l.eof() && l.peek() != '\n' {
				l.advance()
			}
		case strings.HasPrefix(l.src[l.pos:], "/*"):
			start := l.pos
			l.advance()
			l.advance()
			depth := 1
			for depth > 0 {
				if l.eof() {
					return diag.Lexf(start, "unterminated block comment")
				}
				if strings.HasPrefix(l.src[l.pos:], "/*") {
					depth++
					l.advance()
					l.advance()
				} else if strings.HasPrefix(l.src[l.pos:], "*/") {
					depth--
					l.advance()
					l.advance()
				} else {
					l.advance()
				}
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *srcLexer) lexIdent(pos lexer.Position) lexer.Token {
	start := l.pos
	for !l.eof() {
		r := l.peek()
		if r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			l.advance()
		} else {
			break
		}
	}
	return lexer.Token{Type: TokenIdent, Value: l.src[start:l.pos], Pos: pos}
}

func (l *srcLexer) lexNumber(pos lexer.Position) lexer.Token {
	start := l.pos
	for !l.eof() && l.peek() >= '0' && l.peek() <= '9' {
		l.advance()
	}
	typ := TokenInt
	// A '.' is part of the number only when a digit follows; otherwise
	// it is a method call like 3.toString().
	if !l.eof() && l.peek() == '.' && l.pos+1 < len(l.src) &&
		l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
		typ = TokenFloat
		l.advance()
		for !l.eof() && l.peek() >= '0' && l.peek() <= '9' {
			l.advance()
		}
	}
	return lexer.Token{Type: typ, Value: l.src[start:l.pos], Pos: pos}
}

// lexString consumes a quoted literal, resolving escapes. Contents are
// passed through byte-faithfully, so any Unicode survives unchanged.
func (l *srcLexer) lexString(pos lexer.Position) (lexer.Token, error) {
	quote := l.advance()
	var b strings.Builder
	for {
		if l.eof() {
			return lexer.Token{}, diag.Lexf(pos.Offset, "unterminated string literal")
		}
		r := l.advance()
		switch {
		case r == quote:
			return lexer.Token{Type: TokenString, Value: b.String(), Pos: pos}, nil
		case r == '\\':
			if l.eof() {
				return lexer.Token{}, diag.Lexf(pos.Offset, "unterminated string literal")
			}
			esc := l.advance()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '\\', '"', '\'':
				b.WriteRune(esc)
			default:
				return lexer.Token{}, diag.Lexf(l.pos-utf8.RuneLen(esc), "invalid escape sequence \\%c", esc)
			}
		default:
			b.WriteRune(r)
		}
	}
}
