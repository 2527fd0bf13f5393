// Package prover marshals host inputs into the VM's advice tape,
// drives the external VM and zk-prover through narrow interfaces, and
// re-materialises the outputs through the ABI. The VM run is CPU-bound
// and long-running; callers may push it onto a worker goroutine, but
// nothing here retries or cancels it.
package prover

import (
	"encoding/json"

	simplejson "github.com/bitly/go-simplejson"

	"github.com/polybase/polylang-go/abi"
	"github.com/polybase/polylang-go/diag"
)

// OtherRecord is one pre-materialised record of another contract,
// with the salts its field hashes were built with. Inputs keeps these
// records as given; AdviceTape does not place them on the tape, and
// nothing in this package reads them.
type OtherRecord struct {
	Record json.RawMessage `json:"record"`
	Salts  []uint32        `json:"salts"`
}

// Inputs is everything a run needs besides the assembly itself.
type Inputs struct {
	Abi             *abi.Abi
	CtxPublicKey    *abi.Key
	ThisSalts       []uint32
	This            abi.Value
	ThisFieldHashes []abi.Digest
	Args            []abi.Value
	OtherRecords    map[string][]OtherRecord
}

// NewInputs parses the host JSON for `this` and the arguments against
// the ABI and precomputes the salted field hashes. An empty `this`
// object means defaults throughout.
func NewInputs(a *abi.Abi, ctxPublicKey *abi.Key, thisSalts []uint32, thisJSON []byte,
	args []json.RawMessage, otherRecords map[string][]OtherRecord) (*Inputs, error) {

	if a.ThisType == nil {
		return nil, diag.NotFound("abi", "this_type")
	}
	if a.ThisType.Tag != abi.TagStruct {
		return nil, diag.TypeMismatchf("this type expected to be a struct but found %s", a.ThisType)
	}

	if len(thisJSON) == 0 {
		thisJSON = []byte("{}")
	}
	this, err := abi.Parse(*a.ThisType, thisJSON)
	if err != nil {
		return nil, err
	}

	sv := this.(abi.StructValue)
	salts := thisSalts
	if len(salts) == 0 {
		salts = make([]uint32, len(sv))
	}
	hashes, err := abi.FieldDigests(*a.ThisType, sv, salts)
	if err != nil {
		return nil, err
	}

	if len(args) != len(a.ParameterTypes) {
		return nil, diag.ArgumentsCount(len(args), len(a.ParameterTypes))
	}
	values := make([]abi.Value, 0, len(args))
	for i, raw := range args {
		v, err := abi.Parse(a.ParameterTypes[i], raw)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return &Inputs{
		Abi:             a,
		CtxPublicKey:    ctxPublicKey,
		ThisSalts:       salts,
		This:            this,
		ThisFieldHashes: hashes,
		Args:            values,
		OtherRecords:    otherRecords,
	}, nil
}

// ParseArgsJSON splits a JSON array of arguments into raw messages.
func ParseArgsJSON(raw []byte) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	js, err := simplejson.NewJson(raw)
	if err != nil {
		return nil, diag.Wrap(err)
	}
	arr, err := js.Array()
	if err != nil {
		return nil, diag.Wrap(err)
	}
	out := make([]json.RawMessage, 0, len(arr))
	for i := range arr {
		data, err := js.GetIndex(i).MarshalJSON()
		if err != nil {
			return nil, diag.Wrap(err)
		}
		out = append(out, data)
	}
	return out, nil
}

// AdviceTape lays out the full advice stream the program prologue
// consumes: the caller context, `this`, then the arguments in
// declaration order.
func (in *Inputs) AdviceTape() ([]uint64, error) {
	var tape []uint64

	// ctx: {publicKey: PublicKey?}
	if in.CtxPublicKey == nil {
		tape = append(tape, 0)
	} else {
		cells, err := abi.AdviceCells(abi.NullableOf(abi.PubKey),
			abi.NullableValue{Value: abi.PublicKeyValue{Key: *in.CtxPublicKey}})
		if err != nil {
			return nil, err
		}
		tape = append(tape, cells...)
	}

	thisCells, err := abi.AdviceCells(*in.Abi.ThisType, in.This)
	if err != nil {
		return nil, err
	}
	tape = append(tape, thisCells...)

	for i, arg := range in.Args {
		cells, err := abi.AdviceCells(in.Abi.ParameterTypes[i], arg)
		if err != nil {
			return nil, err
		}
		tape = append(tape, cells...)
	}
	return tape, nil
}
