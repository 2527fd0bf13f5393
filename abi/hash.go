package abi

import (
	"math/bits"

	"github.com/polybase/polylang-go/diag"
)

// Digest is the 4-word hash the VM's permutation squeezes out.
type Digest [4]uint64

// FieldPrime is the VM's 64-bit prime field modulus, 2^64 - 2^32 + 1.
const FieldPrime uint64 = 0xffffffff00000001

const phi = 0xffffffff // 2^64 mod FieldPrime

func modAdd(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		s, carry = bits.Add64(s, phi, 0)
		if carry != 0 {
			s += phi
		}
	}
	if s >= FieldPrime {
		s -= FieldPrime
	}
	return s
}

func modMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return reduce128(hi, lo)
}

// reduce128 folds a 128-bit product into the field using
// 2^64 ≡ 2^32 - 1 and 2^96 ≡ -1 (mod p).
func reduce128(hi, lo uint64) uint64 {
	hiHi := hi >> 32
	hiLo := hi & 0xffffffff
	t1 := hiLo<<32 - hiLo
	t2, borrow := bits.Sub64(lo, hiHi, 0)
	if borrow != 0 {
		t2 -= phi // the wrap added 2^64 ≡ 2^32 - 1; take it back out
	}
	return modAdd(t1, t2)
}

// stateWidth and rate follow the VM's sponge: 12-cell state, 8-cell
// absorption rate, 4-cell digest.
const (
	stateWidth = 12
	spongeRate = 8
	rounds     = 7
)

var roundConstants = [stateWidth]uint64{
	0x90d6e0257a2d0f5b, 0x4a3f2b6c8e9d1a07, 0xc1e5a9034f7b6d28, 0x2f8c4d71b0a39e56,
	0x7b19f3ae52c86044, 0xe8d02c5f9a41b773, 0x35a7e8109dc4f2bb, 0x6c90b12d84fe5a39,
	0xaf45d6e2713c908d, 0x1d82f94b06a5c7e0, 0x58be03a7c2d94f16, 0xd3067c48e15b2a9f,
}

// permute is the hash permutation used to compose digests. It stands in
// for the VM's native permutation on the host side; the prover backend
// runs the same function when rebuilding field hashes.
func permute(state *[stateWidth]uint64) {
	for r := 0; r < rounds; r++ {
		for i := 0; i < stateWidth; i++ {
			state[i] = modAdd(state[i], modMul(roundConstants[i], uint64(r+1)))
			// x^7 S-box.
			x2 := modMul(state[i], state[i])
			x4 := modMul(x2, x2)
			state[i] = modMul(modMul(x4, x2), state[i])
		}
		var mixed [stateWidth]uint64
		for i := 0; i < stateWidth; i++ {
			mixed[i] = modAdd(modAdd(modMul(state[i], 2), modMul(state[(i+1)%stateWidth], 3)),
				state[(i+7)%stateWidth])
		}
		*state = mixed
	}
}

// hashCellsWithSalt absorbs [salt, len(cells), cells...] and squeezes a
// digest.
func hashCellsWithSalt(cells []uint64, salt uint32) Digest {
	var state [stateWidth]uint64
	state[spongeRate] = uint64(salt)
	state[spongeRate+1] = uint64(len(cells))
	for start := 0; start < len(cells) || start == 0; start += spongeRate {
		for i := 0; i < spongeRate; i++ {
			if start+i < len(cells) {
				state[i] = modAdd(state[i], cells[start+i]%FieldPrime)
			}
		}
		permute(&state)
		if len(cells) == 0 {
			break
		}
	}
	return Digest{state[0], state[1], state[2], state[3]}
}

// HashCells hashes a raw cell sequence with a salt. The VM's summary
// digest of a memory region uses the same function with a zero salt.
func HashCells(cells []uint64, salt uint32) Digest {
	return hashCellsWithSalt(cells, salt)
}

// HashValue computes the salted digest of a value. For structs, salts
// supplies one u32 per field and the result is the composition of the
// per-field digests; other types consume at most one salt.
func HashValue(t Type, v Value, salts []uint32) (Digest, error) {
	switch t.Tag {
	case TagStruct:
		digests, err := FieldDigests(t, v.(StructValue), salts)
		if err != nil {
			return Digest{}, err
		}
		return CombineDigests(digests), nil
	case TagNullable:
		nv := v.(NullableValue)
		cells := []uint64{0}
		var inner Digest
		if nv.Value != nil {
			cells[0] = 1
			var err error
			inner, err = HashValue(*t.Element, nv.Value, salts)
			if err != nil {
				return Digest{}, err
			}
		}
		cells = append(cells, inner[:]...)
		return hashCellsWithSalt(cells, firstSalt(salts)), nil
	default:
		cells, err := hashCells(t, v)
		if err != nil {
			return Digest{}, err
		}
		return hashCellsWithSalt(cells, firstSalt(salts)), nil
	}
}

// FieldDigests hashes each struct field independently with its salt.
// Salting fields separately lets a host reveal a field hash without
// revealing sibling values.
func FieldDigests(t Type, v StructValue, salts []uint32) ([]Digest, error) {
	if t.Tag != TagStruct {
		return nil, diag.TypeMismatchf("expected a struct type, found %s", t.Tag)
	}
	if len(salts) != 0 && len(salts) != len(t.Struct.Fields) {
		return nil, diag.ArgumentsCount(len(salts), len(t.Struct.Fields))
	}
	digests := make([]Digest, 0, len(t.Struct.Fields))
	for i, field := range t.Struct.Fields {
		var salt []uint32
		if len(salts) > 0 {
			salt = []uint32{salts[i]}
		}
		d, err := HashValue(field.Type, v[i].Value, salt)
		if err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	return digests, nil
}

// CombineDigests folds per-field digests into one digest by absorbing
// them in order.
func CombineDigests(digests []Digest) Digest {
	var state [stateWidth]uint64
	state[spongeRate] = uint64(len(digests))
	for _, d := range digests {
		for i := 0; i < 4; i++ {
			state[i] = modAdd(state[i], d[i])
		}
		permute(&state)
	}
	if len(digests) == 0 {
		permute(&state)
	}
	return Digest{state[0], state[1], state[2], state[3]}
}

func firstSalt(salts []uint32) uint32 {
	if len(salts) > 0 {
		return salts[0]
	}
	return 0
}
