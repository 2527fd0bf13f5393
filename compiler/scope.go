package compiler

import (
	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/diag"
)

// Symbol binds a name to a contiguous cell range. A live symbol
// exclusively owns [Addr, Addr+Type.Width()).
type Symbol struct {
	Addr uint32
	Type abi.Type
}

// FieldSymbol projects a struct field as a symbol at its offset.
func (s Symbol) FieldSymbol(name string) (Symbol, bool) {
	if s.Type.Tag != abi.TagStruct {
		return Symbol{}, false
	}
	offset := s.Addr
	for _, f := range s.Type.Struct.Fields {
		if f.Name == name {
			return Symbol{Addr: offset, Type: f.Type}, true
		}
		offset += f.Type.Width()
	}
	return Symbol{}, false
}

// Scope is a stack of name -> symbol frames. Lookup walks outward;
// each lexical block pushes a frame.
type Scope struct {
	frames []map[string]Symbol
}

// NewScope returns a scope with one root frame.
func NewScope() *Scope {
	return &Scope{frames: []map[string]Symbol{{}}}
}

// Push opens a lexical block.
func (s *Scope) Push() {
	s.frames = append(s.frames, map[string]Symbol{})
}

// Pop closes the innermost block. Symbol addresses are not reclaimed.
func (s *Scope) Pop() {
	s.frames = s.frames[:len(s.frames)-1]
}

// Declare binds name in the innermost frame.
func (s *Scope) Declare(name string, sym Symbol) {
	s.frames[len(s.frames)-1][name] = sym
}

// Lookup resolves name, walking frames outward.
func (s *Scope) Lookup(name string) (Symbol, error) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if sym, ok := s.frames[i][name]; ok {
			return sym, nil
		}
	}
	return Symbol{}, diag.NotFound("symbol", name)
}
