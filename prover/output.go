package prover

import (
	"context"
	"encoding/base64"

	"github.com/polybase/polylang-go/abi"
)

// Output is the JSON shape hosts receive from a prove request.
type Output struct {
	Old         OutputState  `json:"old"`
	New         OutputState  `json:"new"`
	Stack       OutputStack  `json:"stack"`
	Result      *OutputValue `json:"result,omitempty"`
	ProgramInfo string       `json:"programInfo"`
	Proof       string       `json:"proof,omitempty"`
	Logs        []string     `json:"logs"`
	CycleCount  uint64       `json:"cycleCount"`
	ProofLength int          `json:"proofLength"`
	ReadAuth    bool         `json:"readAuth"`
}

// OutputState is a contract state image with its field hashes.
type OutputState struct {
	SelfDestructed bool         `json:"selfDestructed,omitempty"`
	This           interface{}  `json:"this"`
	Hashes         []abi.Digest `json:"hashes"`
}

// OutputStack echoes the operand stack around the run.
type OutputStack struct {
	Input         []uint64 `json:"input"`
	Output        []uint64 `json:"output"`
	OverflowAddrs []uint64 `json:"overflowAddrs"`
}

// OutputValue is the function result with its digest.
type OutputValue struct {
	Value interface{} `json:"value"`
	Hash  *abi.Digest `json:"hash"`
}

// BuildOutput assembles the host-facing response: the old and new
// `this` with their salted hashes, the stack, the result, and the
// proof artifacts. prover may be nil when no proof was requested.
func BuildOutput(ctx context.Context, inputs *Inputs, run *RunOutput, assembly string,
	prover Prover, readAuth bool) (*Output, error) {

	a := inputs.Abi

	oldThis, err := abi.EmitJSON(*a.ThisType, inputs.This)
	if err != nil {
		return nil, err
	}

	newThisValue, err := run.This(a)
	if err != nil {
		return nil, err
	}
	newThis, err := abi.EmitJSON(*a.ThisType, newThisValue)
	if err != nil {
		return nil, err
	}
	newHashes, err := abi.FieldDigests(*a.ThisType, newThisValue.(abi.StructValue), inputs.ThisSalts)
	if err != nil {
		return nil, err
	}
	selfDestructed, err := run.SelfDestructed()
	if err != nil {
		return nil, err
	}

	out := &Output{
		Old: OutputState{This: oldThis, Hashes: inputs.ThisFieldHashes},
		New: OutputState{SelfDestructed: selfDestructed, This: newThis, Hashes: newHashes},
		Stack: OutputStack{
			Input:         run.trace.InputStack,
			Output:        run.trace.Stack,
			OverflowAddrs: run.trace.OverflowAddrs,
		},
		Logs:       run.Logs(),
		CycleCount: run.CycleCount(),
		ReadAuth:   readAuth,
	}

	if a.ResultType != nil {
		value, err := run.Result(a)
		if err != nil {
			return nil, err
		}
		emitted, err := abi.EmitJSON(*a.ResultType, value)
		if err != nil {
			return nil, err
		}
		hash, err := run.ResultHash(a)
		if err != nil {
			return nil, err
		}
		out.Result = &OutputValue{Value: emitted, Hash: hash}
	}

	if prover != nil {
		advice, err := inputs.AdviceTape()
		if err != nil {
			return nil, err
		}
		proof, programInfo, err := prover.Prove(ctx, assembly, advice)
		if err != nil {
			return nil, err
		}
		out.Proof = base64.StdEncoding.EncodeToString(proof)
		out.ProgramInfo = base64.StdEncoding.EncodeToString(programInfo)
		out.ProofLength = len(proof)
	}
	return out, nil
}
