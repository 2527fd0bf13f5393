package prover

import (
	"context"

	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/compiler"
)

// selfDestructAddr mirrors the code generator's reserved cell.
const selfDestructAddr = compiler.SelfDestructAddr

// MemorySnapshot is a sparse image of the VM's memory after a run.
type MemorySnapshot map[uint32]uint64

// MemRead implements abi.MemoryReader.
func (m MemorySnapshot) MemRead(addr, n uint32) ([]uint64, error) {
	out := make([]uint64, n)
	for i := uint32(0); i < n; i++ {
		out[i] = m[addr+i]
	}
	return out, nil
}

// Trace is what the external VM hands back after executing a program.
type Trace struct {
	InputStack    []uint64
	Stack         []uint64
	OverflowAddrs []uint64
	Memory        MemorySnapshot
	Logs          []string
	CycleCount    uint64
}

// VM executes emitted assembly against an advice tape. The execution
// engine lives outside this module; tests plug in a stub.
type VM interface {
	Run(ctx context.Context, assembly string, advice []uint64) (*Trace, error)
}

// Prover produces a zero-knowledge proof for an executed program. The
// call is CPU-bound, long-running and not cancellable from inside; the
// host may drop the result.
type Prover interface {
	Prove(ctx context.Context, assembly string, advice []uint64) (proof, programInfo []byte, err error)
}

// Run executes the program on the given VM and wraps the trace for
// ABI-shaped access. Run-phase failures surface once, with no retry.
func Run(ctx context.Context, vm VM, assembly string, inputs *Inputs) (*RunOutput, error) {
	advice, err := inputs.AdviceTape()
	if err != nil {
		return nil, err
	}
	trace, err := vm.Run(ctx, assembly, advice)
	if err != nil {
		return nil, err
	}
	return &RunOutput{abi: inputs.Abi, trace: trace}, nil
}

// RunOutput exposes a finished run through the ABI.
type RunOutput struct {
	abi   *abi.Abi
	trace *Trace
}

// Trace returns the raw VM trace.
func (o *RunOutput) Trace() *Trace { return o.trace }

// This re-materialises the updated contract state.
func (o *RunOutput) This(a *abi.Abi) (abi.Value, error) {
	return abi.FromMemory(*a.ThisType, *a.ThisAddr, o.trace.Memory)
}

// Result re-materialises the function result, when the ABI declares
// one.
func (o *RunOutput) Result(a *abi.Abi) (abi.Value, error) {
	if a.ResultType == nil || a.ResultAddr == nil {
		return nil, nil
	}
	return abi.FromMemory(*a.ResultType, *a.ResultAddr, o.trace.Memory)
}

// ResultHash is the digest of the result value, nil without a result.
func (o *RunOutput) ResultHash(a *abi.Abi) (*abi.Digest, error) {
	if a.ResultType == nil {
		return nil, nil
	}
	value, err := o.Result(a)
	if err != nil {
		return nil, err
	}
	digest, err := abi.HashValue(*a.ResultType, value, nil)
	if err != nil {
		return nil, err
	}
	return &digest, nil
}

// SelfDestructed reports whether the program called selfdestruct().
func (o *RunOutput) SelfDestructed() (bool, error) {
	cells, err := o.trace.Memory.MemRead(selfDestructAddr, 1)
	if err != nil {
		return false, err
	}
	return cells[0] != 0, nil
}

// Logs returns the log lines the program emitted.
func (o *RunOutput) Logs() []string { return o.trace.Logs }

// CycleCount reports how many VM cycles the run took.
func (o *RunOutput) CycleCount() uint64 { return o.trace.CycleCount }
