package compiler

// A small interpreter over the instruction tree, used by the tests to
// execute compiled programs against an advice tape. It implements the
// dialect documented in encoder.go, including the VM stdlib
// procedures, so lowering decisions can be validated end to end
// without the external VM.

import (
	"fmt"
	"math"

	"github.com/polybase/polylang-go/abi"
)

const maxSteps = 50_000_000

type trapError struct {
	msg string
}

func (e trapError) Error() string { return e.msg }

type testVM struct {
	mem    map[uint32]uint64
	stack  []uint64
	advice []uint64
	logs   []string
	procs  map[string][]Instruction
	steps  int
}

func runProgram(p *Program, advice []uint64) (*testVM, error) {
	vm := &testVM{
		mem:    map[uint32]uint64{},
		advice: append([]uint64{}, advice...),
		procs:  map[string][]Instruction{},
	}
	for _, proc := range p.Procs {
		vm.procs[proc.Name] = proc.Body
	}
	if err := vm.exec(p.Begin); err != nil {
		return vm, err
	}
	return vm, nil
}

// MemRead implements abi.MemoryReader over the final memory image.
func (vm *testVM) MemRead(a, n uint32) ([]uint64, error) {
	out := make([]uint64, n)
	for i := uint32(0); i < n; i++ {
		out[i] = vm.mem[a+i]
	}
	return out, nil
}

func (vm *testVM) push(v uint64) { vm.stack = append(vm.stack, v) }

func (vm *testVM) pop() (uint64, error) {
	if len(vm.stack) == 0 {
		return 0, trapError{"stack underflow"}
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *testVM) pop2() (b, a uint64, err error) {
	if b, err = vm.pop(); err != nil {
		return
	}
	a, err = vm.pop()
	return
}

func (vm *testVM) exec(instrs []Instruction) error {
	for _, instr := range instrs {
		vm.steps++
		if vm.steps > maxSteps {
			return trapError{"step limit exceeded"}
		}
		switch in := instr.(type) {
		case Comment:
		case Push:
			vm.push(in.Value)
		case Drop:
			if _, err := vm.pop(); err != nil {
				return err
			}
		case Dup:
			idx := len(vm.stack) - 1 - int(in.N)
			if idx < 0 {
				return trapError{"dup underflow"}
			}
			vm.push(vm.stack[idx])
		case Swap:
			n := int(in.N)
			if n == 0 {
				n = 1
			}
			idx := len(vm.stack) - 1 - n
			if idx < 0 {
				return trapError{"swap underflow"}
			}
			top := len(vm.stack) - 1
			vm.stack[idx], vm.stack[top] = vm.stack[top], vm.stack[idx]
		case MemLoad:
			var a uint32
			if in.Addr != nil {
				a = *in.Addr
			} else {
				v, err := vm.pop()
				if err != nil {
					return err
				}
				a = uint32(v)
			}
			vm.push(vm.mem[a])
		case MemStore:
			var a uint32
			if in.Addr != nil {
				a = *in.Addr
			} else {
				v, err := vm.pop()
				if err != nil {
					return err
				}
				a = uint32(v)
			}
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.mem[a] = v
		case AdvPush:
			for i := uint32(0); i < in.N; i++ {
				if len(vm.advice) == 0 {
					return trapError{"advice tape exhausted"}
				}
				vm.push(vm.advice[0])
				vm.advice = vm.advice[1:]
			}
		case Assert:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			if v != 1 {
				return trapError{"assertion failed"}
			}
		case Log:
			a, err := vm.pop()
			if err != nil {
				return err
			}
			vm.logs = append(vm.logs, vm.readString(uint32(a)))
		case Call:
			if err := vm.call(in.Name); err != nil {
				return err
			}
		case If:
			if err := vm.exec(in.Cond); err != nil {
				return err
			}
			v, err := vm.pop()
			if err != nil {
				return err
			}
			if v != 0 {
				if err := vm.exec(in.Then); err != nil {
					return err
				}
			} else if err := vm.exec(in.Else); err != nil {
				return err
			}
		case While:
			if err := vm.exec(in.Cond); err != nil {
				return err
			}
			for {
				v, err := vm.pop()
				if err != nil {
					return err
				}
				if v == 0 {
					break
				}
				if err := vm.exec(in.Body); err != nil {
					return err
				}
				if err := vm.exec(in.Cond); err != nil {
					return err
				}
			}
		case Op:
			if err := vm.op(in.Kind); err != nil {
				return err
			}
		default:
			return trapError{fmt.Sprintf("unknown instruction %T", instr)}
		}
	}
	return nil
}

func boolCell(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (vm *testVM) op(kind OpKind) error {
	if kind == OpNot {
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.push(boolCell(v == 0))
		return nil
	}
	b, a, err := vm.pop2()
	if err != nil {
		return err
	}
	switch kind {
	case OpEq:
		vm.push(boolCell(a == b))
	case OpNeq:
		vm.push(boolCell(a != b))
	case OpAnd:
		vm.push(boolCell(a != 0 && b != 0))
	case OpOr:
		vm.push(boolCell(a != 0 || b != 0))
	case OpAdd:
		vm.push(a + b)
	case OpSub:
		vm.push(a - b)
	case OpMul:
		vm.push(a * b)
	case OpU32WrappingAdd:
		vm.push(uint64(uint32(a) + uint32(b)))
	case OpU32WrappingSub:
		vm.push(uint64(uint32(a) - uint32(b)))
	case OpU32WrappingMul:
		vm.push(uint64(uint32(a) * uint32(b)))
	case OpU32OverflowingAdd:
		sum := uint64(uint32(a)) + uint64(uint32(b))
		vm.push(sum & 0xffffffff)
		vm.push(sum >> 32)
	case OpU32CheckedDiv:
		if uint32(b) == 0 {
			return trapError{"division by zero"}
		}
		vm.push(uint64(uint32(a) / uint32(b)))
	case OpU32CheckedMod:
		if uint32(b) == 0 {
			return trapError{"division by zero"}
		}
		vm.push(uint64(uint32(a) % uint32(b)))
	case OpU32CheckedLt:
		vm.push(boolCell(uint32(a) < uint32(b)))
	case OpU32CheckedLte:
		vm.push(boolCell(uint32(a) <= uint32(b)))
	case OpU32CheckedGt:
		vm.push(boolCell(uint32(a) > uint32(b)))
	case OpU32CheckedGte:
		vm.push(boolCell(uint32(a) >= uint32(b)))
	case OpU32CheckedAnd:
		vm.push(uint64(uint32(a) & uint32(b)))
	case OpU32CheckedOr:
		vm.push(uint64(uint32(a) | uint32(b)))
	case OpU32CheckedXor:
		vm.push(uint64(uint32(a) ^ uint32(b)))
	case OpU32CheckedShl:
		vm.push(uint64(uint32(a) << (uint32(b) & 31)))
	case OpU32CheckedShr:
		vm.push(uint64(uint32(a) >> (uint32(b) & 31)))
	default:
		return trapError{fmt.Sprintf("unknown op %d", kind)}
	}
	return nil
}

func (vm *testVM) call(name string) error {
	if body, ok := vm.procs[name]; ok {
		return vm.exec(body)
	}
	switch name {
	case procF32Add, procF32Sub, procF32Mul, procF32Div, procF32Lt, procF32Lte:
		b, a, err := vm.pop2()
		if err != nil {
			return err
		}
		fa := math.Float32frombits(uint32(a))
		fb := math.Float32frombits(uint32(b))
		switch name {
		case procF32Add:
			vm.push(uint64(math.Float32bits(fa + fb)))
		case procF32Sub:
			vm.push(uint64(math.Float32bits(fa - fb)))
		case procF32Mul:
			vm.push(uint64(math.Float32bits(fa * fb)))
		case procF32Div:
			vm.push(uint64(math.Float32bits(fa / fb)))
		case procF32Lt:
			vm.push(boolCell(fa < fb))
		case procF32Lte:
			vm.push(boolCell(fa <= fb))
		}
		return nil
	case procF64Add, procF64Sub, procF64Mul, procF64Div, procF64Lt, procF64Lte:
		blo, bhi, err := vm.pop2()
		if err != nil {
			return err
		}
		alo, ahi, err := vm.pop2()
		if err != nil {
			return err
		}
		fa := math.Float64frombits(ahi<<32 | alo&0xffffffff)
		fb := math.Float64frombits(bhi<<32 | blo&0xffffffff)
		pushF64 := func(f float64) {
			bits := math.Float64bits(f)
			vm.push(bits >> 32)
			vm.push(bits & 0xffffffff)
		}
		switch name {
		case procF64Add:
			pushF64(fa + fb)
		case procF64Sub:
			pushF64(fa - fb)
		case procF64Mul:
			pushF64(fa * fb)
		case procF64Div:
			pushF64(fa / fb)
		case procF64Lt:
			vm.push(boolCell(fa < fb))
		case procF64Lte:
			vm.push(boolCell(fa <= fb))
		}
		return nil
	case procHashMemory:
		width, a, err := vm.pop2()
		if err != nil {
			return err
		}
		cells, _ := vm.MemRead(uint32(a), uint32(width))
		digest := abi.HashCells(cells, 0)
		for _, d := range digest {
			vm.push(d)
		}
		return nil
	}
	return trapError{"unknown procedure " + name}
}

// readString decodes a [capacity, length, data_ptr] header.
func (vm *testVM) readString(a uint32) string {
	length := uint32(vm.mem[a+1])
	ptr := uint32(vm.mem[a+2])
	raw := make([]byte, length)
	for i := uint32(0); i < length; i++ {
		raw[i] = byte(vm.mem[ptr+i])
	}
	return string(raw)
}
