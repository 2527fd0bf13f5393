package parser

import (
	stderrors "errors"

	"github.com/alecthomas/participle/v2"

	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/diag"
)

// Parse turns contract source text into a program tree. Errors are
// *diag.Error values (KindLex or KindParse) carrying byte spans into
// source.
func Parse(source string) (*ast.Program, error) {
	cst, err := cstParser.ParseString("", source)
	if err != nil {
		return nil, convertError(err)
	}
	return (&folder{src: source}).program(cst)
}

// convertError maps participle failures onto the diag taxonomy. Lexer
// errors pass through unchanged (the lexer already raises diag values).
func convertError(err error) error {
	var de *diag.Error
	if stderrors.As(err, &de) {
		return de
	}
	var pe participle.Error
	if stderrors.As(err, &pe) {
		pos := pe.Position()
		return diag.Parsef(diag.NewSpan(pos.Offset, pos.Offset+1), "%s", pe.Message())
	}
	return diag.Wrap(err)
}
