package abi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/polybase/polylang-go/diag"
)

// Key is a secp256k1 public key in JWK form.
//
// Memory layout: [kty, crv, alg, use, extra_ptr]; extra_ptr points to
// 64 cells holding the x and y coordinate bytes.
type Key struct {
	Kty string   `json:"kty"`
	Crv string   `json:"crv"`
	Alg string   `json:"alg"`
	Use string   `json:"use"`
	X   [32]byte `json:"-"`
	Y   [32]byte `json:"-"`
}

// KeyWidth is the number of cells a public key occupies.
const KeyWidth uint32 = 5

// NewKey returns a key with the standard ES256K envelope around the
// given coordinates.
func NewKey(x, y [32]byte) Key {
	return Key{Kty: "EC", Crv: "secp256k1", Alg: "ES256K", Use: "sig", X: x, Y: y}
}

type keyJSON struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// MarshalJSON emits the JWK form with URL-safe base64 coordinates.
func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(keyJSON{
		Kty: k.Kty,
		Crv: k.Crv,
		Alg: k.Alg,
		Use: k.Use,
		X:   base64.URLEncoding.EncodeToString(k.X[:]),
		Y:   base64.URLEncoding.EncodeToString(k.Y[:]),
	})
}

// UnmarshalJSON parses the JWK form.
func (k *Key) UnmarshalJSON(data []byte) error {
	var raw keyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	x, err := base64.URLEncoding.DecodeString(raw.X)
	if err != nil {
		return fmt.Errorf("invalid x coordinate: %w", err)
	}
	y, err := base64.URLEncoding.DecodeString(raw.Y)
	if err != nil {
		return fmt.Errorf("invalid y coordinate: %w", err)
	}
	if len(x) != 32 || len(y) != 32 {
		return fmt.Errorf("coordinates must be 32 bytes, got %d and %d", len(x), len(y))
	}
	k.Kty, k.Crv, k.Alg, k.Use = raw.Kty, raw.Crv, raw.Alg, raw.Use
	copy(k.X[:], x)
	copy(k.Y[:], y)
	return nil
}

// secp256k1 field prime: 2^256 - 2^32 - 977.
var secpP, _ = new(big.Int).SetString(
	"fffffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f", 16)

// KeyFromBytes accepts the raw encodings a host may supply: 65 bytes
// (0x04 || x || y), 64 bytes (x || y) or 33 bytes (compressed).
func KeyFromBytes(raw []byte) (Key, error) {
	var x, y [32]byte
	switch len(raw) {
	case 65:
		copy(x[:], raw[1:33])
		copy(y[:], raw[33:])
	case 64:
		copy(x[:], raw[:32])
		copy(y[:], raw[32:])
	case 33:
		if raw[0] != 0x02 && raw[0] != 0x03 {
			return Key{}, diag.Simplef("invalid compressed public key prefix 0x%02x", raw[0])
		}
		copy(x[:], raw[1:])
		yc, err := decompressY(x, raw[0] == 0x03)
		if err != nil {
			return Key{}, err
		}
		y = yc
	case 20:
		return Key{}, diag.Simplef("you provided an address, where a public key is expected")
	default:
		return Key{}, diag.Simplef(
			"invalid secp256k1 xy bytes length: %d. A key should be 65, 64 or 33 bytes long.", len(raw))
	}
	return NewKey(x, y), nil
}

// decompressY recovers y from x on y^2 = x^3 + 7 over the secp256k1
// field, picking the root with the requested parity.
func decompressY(xb [32]byte, odd bool) ([32]byte, error) {
	x := new(big.Int).SetBytes(xb[:])
	if x.Cmp(secpP) >= 0 {
		return [32]byte{}, diag.Simplef("public key x coordinate out of range")
	}
	// y^2 = x^3 + 7 (mod p)
	y2 := new(big.Int).Exp(x, big.NewInt(3), secpP)
	y2.Add(y2, big.NewInt(7))
	y2.Mod(y2, secpP)
	// p % 4 == 3, so y = y2^((p+1)/4).
	exp := new(big.Int).Add(secpP, big.NewInt(1))
	exp.Rsh(exp, 2)
	y := new(big.Int).Exp(y2, exp, secpP)
	// Verify the root; a mismatch means x is not on the curve.
	check := new(big.Int).Mul(y, y)
	check.Mod(check, secpP)
	if check.Cmp(y2) != 0 {
		return [32]byte{}, diag.Simplef("invalid secp256k1 public key: x is not on the curve")
	}
	if y.Bit(0) == 1 != odd {
		y.Sub(secpP, y)
	}
	var out [32]byte
	y.FillBytes(out[:])
	return out, nil
}

// ToBytes emits the uncompressed 64-byte x||y form.
func (k Key) ToBytes() []byte {
	out := make([]byte, 64)
	copy(out[:32], k.X[:])
	copy(out[32:], k.Y[:])
	return out
}

// Equal reports coordinate equality.
func (k Key) Equal(other Key) bool {
	return bytes.Equal(k.X[:], other.X[:]) && bytes.Equal(k.Y[:], other.Y[:]) &&
		k.Kty == other.Kty && k.Crv == other.Crv && k.Alg == other.Alg && k.Use == other.Use
}

// IsZero reports whether the key is the all-zero placeholder.
func (k Key) IsZero() bool {
	return k == Key{}
}

// envelopeCells encodes the four envelope fields as single cells. The
// coordinate bytes live behind extra_ptr and are encoded separately.
func (k Key) envelopeCells() []uint64 {
	enc := func(set bool) uint64 {
		if set {
			return 1
		}
		return 0
	}
	return []uint64{enc(k.Kty != ""), enc(k.Crv != ""), enc(k.Alg != ""), enc(k.Use != "")}
}
