// Package diag carries the error taxonomy shared by the lexer, parser,
// ABI and compiler, together with source spans and the current-span
// scope used to enrich messages raised deep inside code generation.
package diag

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind discriminates the closed set of failure classes.
type Kind int

const (
	// KindWrapped carries a foreign error unchanged.
	KindWrapped Kind = iota
	// KindLex is an unrecoverable tokenizer failure.
	KindLex
	// KindParse is a grammar failure.
	KindParse
	// KindTypeMismatch is a static typing failure.
	KindTypeMismatch
	// KindNotFound reports a missing contract, function, field or symbol.
	KindNotFound
	// KindArgumentsCount reports a call arity mismatch.
	KindArgumentsCount
	// KindInvalidAddress reports a memory address outside the VM's space.
	KindInvalidAddress
	// KindStack reports operand-stack underflow during emission.
	KindStack
	// KindIO wraps an I/O failure.
	KindIO
	// KindNotImplemented marks behaviour the compiler does not support.
	KindNotImplemented
	// KindNested adds compilation context around an inner Error.
	KindNested
)

// Error is the one terminal error type surfaced by every phase. It
// captures the span that was current when it was raised; attaching the
// source text later (AddSource) enables the line:col excerpt.
type Error struct {
	Kind   Kind
	msg    string
	cause  error
	Span   *Span
	source string
}

func newError(kind Kind, msg string) *Error {
	e := &Error{Kind: kind, msg: msg}
	if span, ok := CurrentSpan(); ok {
		e.Span = &span
	}
	return e
}

// Lexf builds a KindLex error at the given byte position.
func Lexf(pos int, format string, args ...interface{}) *Error {
	e := newError(KindLex, fmt.Sprintf(format, args...))
	span := NewSpan(pos, pos+1)
	e.Span = &span
	return e
}

// Parsef builds a KindParse error.
func Parsef(span Span, format string, args ...interface{}) *Error {
	e := newError(KindParse, fmt.Sprintf(format, args...))
	e.Span = &span
	return e
}

// TypeMismatch builds a KindTypeMismatch error from context.
func TypeMismatch(context string) *Error {
	return newError(KindTypeMismatch, "type mismatch: "+context)
}

// TypeMismatchf is TypeMismatch with formatting.
func TypeMismatchf(format string, args ...interface{}) *Error {
	return TypeMismatch(fmt.Sprintf(format, args...))
}

// NotFound reports a missing item of the given kind.
func NotFound(typeName, item string) *Error {
	return newError(KindNotFound, fmt.Sprintf("%s %s not found", typeName, item))
}

// ArgumentsCount reports an arity mismatch.
func ArgumentsCount(found, expected int) *Error {
	return newError(KindArgumentsCount,
		fmt.Sprintf("incorrect number of arguments %d but expected %d", found, expected))
}

// InvalidAddress reports an address outside the addressable range.
func InvalidAddress(addr uint64, typeName string) *Error {
	return newError(KindInvalidAddress,
		fmt.Sprintf("invalid address 0x%x for %s", addr, typeName))
}

// StackUnderflow reports an operand stack that is too shallow.
func StackUnderflow(stackLen int, expected int) *Error {
	msg := fmt.Sprintf("stack depth is too small found %d", stackLen)
	if expected >= 0 {
		msg += fmt.Sprintf(" but expected %d", expected)
	}
	return newError(KindStack, msg)
}

// NotImplemented marks behaviour outside the supported subset.
func NotImplemented(context string) *Error {
	return newError(KindNotImplemented, context+" is not implemented yet")
}

// Wrap adopts a foreign error, keeping it as the cause.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	e := newError(KindWrapped, err.Error())
	e.cause = errors.WithStack(err)
	return e
}

// IO adopts an I/O error.
func IO(err error) *Error {
	e := newError(KindIO, fmt.Sprintf("i/o error: %s", err))
	e.cause = errors.WithStack(err)
	return e
}

// Nest wraps err with compilation context ("context >> inner").
func Nest(err error, context string) *Error {
	inner := Wrap(err)
	e := newError(KindNested, fmt.Sprintf("%s >> %s", context, inner.msg))
	e.cause = inner
	if e.Span == nil {
		e.Span = inner.Span
	}
	return e
}

// Simplef builds a KindWrapped error from a plain message.
func Simplef(format string, args ...interface{}) *Error {
	return newError(KindWrapped, fmt.Sprintf(format, args...))
}

// AddSource attaches the source text the span points into, enabling the
// excerpt in the formatted message. Returns the receiver for chaining.
func (e *Error) AddSource(source string) *Error {
	e.source = source
	return e
}

// Unwrap exposes the cause chain to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Error() string {
	return e.msg + e.printSource()
}

// printSource renders the one-line (or multi-line) excerpt with
// line:col coordinates, or nothing when span/source are absent.
func (e *Error) printSource() string {
	if e.source == "" || e.Span == nil {
		return ""
	}
	span := *e.Span
	if span.End > len(e.source) || span.Start >= span.End {
		return ""
	}

	startLine, startCol := lineCol(e.source, span.Start)
	// The end coordinate names the last byte the span covers.
	endLine, endCol := lineCol(e.source, span.End-1)

	var lineFmt string
	if startLine == endLine {
		lineFmt = fmt.Sprintf("%d:%d..%d", startLine, startCol, endCol)
	} else {
		lineFmt = fmt.Sprintf("%d:%d..%d:%d", startLine, startCol, endLine, endCol)
	}

	end := span.End
	if end >= len(e.source) {
		end = len(e.source)
	}
	return fmt.Sprintf("\n\tsource `%s` at line %s", e.source[span.Start:end], lineFmt)
}

// lineCol converts a byte offset into 1-based line and column numbers.
func lineCol(source string, offset int) (line, col int) {
	if offset > len(source) {
		offset = len(source)
	}
	before := source[:offset]
	line = strings.Count(before, "\n") + 1
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		col = offset - i
	} else {
		col = offset + 1
	}
	return line, col
}
