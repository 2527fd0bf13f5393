package diag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpanGuardRestores(t *testing.T) {
	outer := NewSpan(1, 5)
	inner := NewSpan(7, 9)

	g := StartSpan(outer)
	func() {
		g2 := StartSpan(inner)
		defer g2.Release()

		span, ok := CurrentSpan()
		require.True(t, ok)
		require.Equal(t, inner, span)
	}()

	span, ok := CurrentSpan()
	require.True(t, ok)
	require.Equal(t, outer, span)

	g.Release()
	g.Release() // double release is a no-op

	_, ok = CurrentSpan()
	require.False(t, ok)
}

func TestErrorCapturesCurrentSpan(t *testing.T) {
	g := StartSpan(NewSpan(3, 8))
	defer g.Release()

	err := TypeMismatch("a expected to be u32 but found string")
	require.NotNil(t, err.Span)
	require.Equal(t, NewSpan(3, 8), *err.Span)
	require.Equal(t, KindTypeMismatch, err.Kind)
}

func TestFormatSourceExcerpt(t *testing.T) {
	for _, tt := range []struct {
		name   string
		source string
		span   Span
		msg    string
		want   string
	}{
		{
			name:   "single line",
			source: "function f(a: number) {assert(a);}",
			span:   NewSpan(23, 33),
			msg:    "incorrect number of arguments 1 but expected 2",
			want:   "incorrect number of arguments 1 but expected 2\n\tsource `assert(a);` at line 1:24..33",
		},
		{
			name:   "single line at start",
			source: "function f(a: number) {\nassert(a);\n}",
			span:   NewSpan(24, 34),
			msg:    "incorrect number of arguments 1 but expected 2",
			want:   "incorrect number of arguments 1 but expected 2\n\tsource `assert(a);` at line 2:1..10",
		},
		{
			name:   "two lines",
			source: "function f(a: number) {\nassert(\na)\n;}",
			span:   NewSpan(24, 34),
			msg:    "incorrect number of arguments 1 but expected 2",
			want:   "incorrect number of arguments 1 but expected 2\n\tsource `assert(\na)` at line 2:1..3:2",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := Simplef("%s", tt.msg)
			e.Span = &tt.span
			e.AddSource(tt.source)
			require.Equal(t, tt.want, e.Error())
		})
	}
}

func TestArgumentsCountMessage(t *testing.T) {
	err := ArgumentsCount(1, 2)
	require.Equal(t, "incorrect number of arguments 1 but expected 2", err.Error())
}

func TestNestKeepsInnerSpan(t *testing.T) {
	g := StartSpan(NewSpan(2, 4))
	inner := NotFound("function", "frobnicate")
	g.Release()

	outer := Nest(inner, "compiling contract Account")
	require.Equal(t, KindNested, outer.Kind)
	require.Contains(t, outer.Error(), "compiling contract Account >> function frobnicate not found")
	require.NotNil(t, outer.Span)
}
