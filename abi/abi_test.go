package abi

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func accountType() Type {
	return StructOf(Struct{
		Name: "Account",
		Fields: []StructField{
			{Name: "id", Type: String},
			{Name: "balance", Type: UInt32},
			{Name: "tags", Type: ArrayOf(Float32)},
			{Name: "note", Type: NullableOf(String)},
		},
	})
}

func TestWidths(t *testing.T) {
	for _, tt := range []struct {
		typ   Type
		width uint32
	}{
		{Boolean, 1},
		{UInt32, 1},
		{Int32, 1},
		{Float32, 1},
		{UInt64, 2},
		{Int64, 2},
		{Float64, 2},
		{String, 3},
		{Bytes, 3},
		{ArrayOf(UInt32), 3},
		{MapOf(String, UInt32), 3},
		{ContractReferenceTo("User"), 3},
		{PubKey, 5},
		{NullableOf(UInt64), 3},
		{NullableOf(String), 4},
		{accountType(), 11},
	} {
		require.Equal(t, tt.width, tt.typ.Width(), tt.typ.String())
	}
}

func TestStructWidthIsSumOfFieldWidths(t *testing.T) {
	typ := accountType()
	var sum uint32
	for _, f := range typ.Struct.Fields {
		sum += f.Type.Width()
	}
	require.Equal(t, sum, typ.Width())
}

func TestDefaultValues(t *testing.T) {
	require.Equal(t, UInt32Value(0), UInt32.DefaultValue())
	require.Equal(t, StringValue(""), String.DefaultValue())
	require.Equal(t, BooleanValue(false), Boolean.DefaultValue())
	require.Equal(t, ArrayValue(nil), ArrayOf(UInt32).DefaultValue())
	require.Equal(t, NullableValue{}, NullableOf(String).DefaultValue())

	sv := accountType().DefaultValue().(StructValue)
	require.Equal(t, "id", sv[0].Name)
	require.Equal(t, StringValue(""), sv[0].Value)
	require.Equal(t, NullableValue{}, sv[3].Value)
}

func TestTypeJSONRoundTrip(t *testing.T) {
	for _, typ := range []Type{
		Boolean, UInt32, UInt64, Int32, Int64, Float32, Float64,
		String, Bytes, PubKey,
		ArrayOf(NullableOf(UInt32)),
		MapOf(String, ArrayOf(Float64)),
		ContractReferenceTo("User"),
		accountType(),
	} {
		data, err := json.Marshal(typ)
		require.NoError(t, err)

		var back Type
		require.NoError(t, json.Unmarshal(data, &back))
		require.Equal(t, typ, back, string(data))
	}
}

func TestTypeJSONTagShape(t *testing.T) {
	data, err := json.Marshal(ArrayOf(UInt32))
	require.NoError(t, err)
	require.JSONEq(t, `{"tag":"Array","content":{"tag":"UInt32"}}`, string(data))
}

func TestValueJSONRoundTrip(t *testing.T) {
	typ := accountType()
	src := `{"id":"user1","balance":7,"tags":[1.5,2],"note":"hi"}`

	v, err := Parse(typ, []byte(src))
	require.NoError(t, err)

	sv := v.(StructValue)
	require.Equal(t, StringValue("user1"), sv[0].Value)
	require.Equal(t, UInt32Value(7), sv[1].Value)
	require.Equal(t, ArrayValue{Float32Value(1.5), Float32Value(2)}, sv[2].Value)
	require.Equal(t, NullableValue{Value: StringValue("hi")}, sv[3].Value)

	emitted, err := EmitJSON(typ, v)
	require.NoError(t, err)
	data, err := json.Marshal(emitted)
	require.NoError(t, err)
	require.JSONEq(t, src, string(data))
}

func TestParseMissingFields(t *testing.T) {
	typ := accountType()

	// Missing nullable fields default to null.
	v, err := Parse(typ, []byte(`{"id":"a","balance":1,"tags":[]}`))
	require.NoError(t, err)
	require.Equal(t, NullableValue{}, v.(StructValue)[3].Value)

	// Missing required fields fail.
	_, err = Parse(typ, []byte(`{"id":"a"}`))
	require.Error(t, err)
}

func TestParseBytesBase64(t *testing.T) {
	raw := []byte{1, 2, 3, 255}
	encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)

	v, err := Parse(Bytes, encoded)
	require.NoError(t, err)
	require.Equal(t, BytesValue(raw), v)

	emitted, err := EmitJSON(Bytes, v)
	require.NoError(t, err)
	require.Equal(t, base64.StdEncoding.EncodeToString(raw), emitted)
}

func TestParseBoundsChecks(t *testing.T) {
	_, err := Parse(UInt32, []byte(`4294967296`))
	require.Error(t, err)
	_, err = Parse(Int32, []byte(`-2147483649`))
	require.Error(t, err)
	_, err = Parse(Int32, []byte(`-2147483648`))
	require.NoError(t, err)
}

func TestEquality(t *testing.T) {
	require.True(t, Equal(UInt32Value(1), UInt32Value(1)))
	require.False(t, Equal(UInt32Value(1), UInt32Value(2)))
	require.False(t, Equal(UInt32Value(1), Int32Value(1)))

	a := ArrayValue{StringValue("x"), StringValue("y")}
	b := ArrayValue{StringValue("x"), StringValue("y")}
	require.True(t, Equal(a, b))
	require.False(t, Equal(a, ArrayValue{StringValue("x")}))
}

func TestNullableEqualityRules(t *testing.T) {
	null := NullableValue{}
	some := NullableValue{Value: UInt32Value(4)}
	other := NullableValue{Value: UInt32Value(5)}

	require.True(t, Equal(null, NullableValue{}))
	require.False(t, Equal(null, some))
	require.False(t, Equal(some, null))
	require.True(t, Equal(some, NullableValue{Value: UInt32Value(4)}))
	require.False(t, Equal(some, other))

	// Symmetry.
	require.Equal(t, Equal(null, some), Equal(some, null))
	require.Equal(t, Equal(some, other), Equal(other, some))
}

func TestMemoryDecode(t *testing.T) {
	// Hand-built snapshot: a struct { n: u32; s: string } at 10 with
	// "hi" stored at 100.
	mem := snapshot{
		10: 7,
		11: 2, 12: 2, 13: 100,
		100: 'h', 101: 'i',
	}
	typ := StructOf(Struct{Name: "T", Fields: []StructField{
		{Name: "n", Type: UInt32},
		{Name: "s", Type: String},
	}})

	v, err := FromMemory(typ, 10, mem)
	require.NoError(t, err)
	sv := v.(StructValue)
	require.Equal(t, UInt32Value(7), sv[0].Value)
	require.Equal(t, StringValue("hi"), sv[1].Value)
}

type snapshot map[uint32]uint64

func (s snapshot) MemRead(addr, n uint32) ([]uint64, error) {
	out := make([]uint64, n)
	for i := uint32(0); i < n; i++ {
		out[i] = s[addr+i]
	}
	return out, nil
}
