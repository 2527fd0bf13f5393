package compiler

import (
	"github.com/polybase/polylang-go/abi"
)

// Reserved cells at the bottom of the address space.
const (
	// heapPtrAddr holds the dynamic allocation cursor. The program
	// prologue initializes it to the end of the static region.
	heapPtrAddr uint32 = 0
	// SelfDestructAddr is the reserved cell selfdestruct() sets to 1;
	// the host reads it back out of the final memory image.
	SelfDestructAddr uint32 = 1

	reservedCells uint32 = 4
)

const selfDestructAddr = SelfDestructAddr

// Memory is the compiler's bump allocator over the VM's cell-indexed
// address space. Addresses are never reclaimed while a compilation is
// alive; the VM's address space is large relative to program sizes.
type Memory struct {
	next uint32
}

// NewMemory returns an allocator whose cursor starts above the
// reserved cells.
func NewMemory() *Memory {
	return &Memory{next: reservedCells}
}

// Allocate reserves width contiguous cells and returns the first
// address.
func (m *Memory) Allocate(width uint32) uint32 {
	addr := m.next
	m.next += width
	return addr
}

// AllocateSymbol reserves cells for a value of the given type.
func (m *Memory) AllocateSymbol(t abi.Type) Symbol {
	return Symbol{Addr: m.Allocate(t.Width()), Type: t}
}

// StaticEnd reports the first address above everything allocated so
// far; the prologue seeds the heap pointer with it.
func (m *Memory) StaticEnd() uint32 {
	return m.next
}

// ValueSource names where a cell value comes from when writing memory.
type ValueSource interface {
	valueSource()
}

// Immediate is a compile-time constant cell.
type Immediate uint64

// FromMemory copies the cell at another address.
type FromMemory uint32

// FromStack consumes the cell currently on top of the operand stack.
type FromStack struct{}

func (Immediate) valueSource()  {}
func (FromMemory) valueSource() {}
func (FromStack) valueSource()  {}

// Write emits instructions storing the given sources at consecutive
// cells starting at addr, in field order.
func (m *Memory) Write(instructions *[]Instruction, a uint32, sources []ValueSource) {
	for i, src := range sources {
		cell := a + uint32(i)
		switch s := src.(type) {
		case Immediate:
			*instructions = append(*instructions, Push{Value: uint64(s)}, MemStore{Addr: addr(cell)})
		case FromMemory:
			*instructions = append(*instructions, MemLoad{Addr: addr(uint32(s))}, MemStore{Addr: addr(cell)})
		case FromStack:
			*instructions = append(*instructions, MemStore{Addr: addr(cell)})
		}
	}
}

// Read emits instructions pushing n cells starting at addr onto the
// stack, first cell pushed first.
func (m *Memory) Read(instructions *[]Instruction, a uint32, n uint32) {
	for i := uint32(0); i < n; i++ {
		*instructions = append(*instructions, MemLoad{Addr: addr(a + i)})
	}
}

// Copy emits a cell-by-cell copy of n cells from src to dst.
func (m *Memory) Copy(instructions *[]Instruction, src, dst, n uint32) {
	for i := uint32(0); i < n; i++ {
		*instructions = append(*instructions,
			MemLoad{Addr: addr(src + i)}, MemStore{Addr: addr(dst + i)})
	}
}
