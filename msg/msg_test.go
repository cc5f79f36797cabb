package msg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		typ, err := Lookup(name)
		require.NoError(t, err)
		require.Equal(t, name, typ.Name())
		require.Equal(t, name, typ.New().TypeName())
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("pointcloud")
	var unknown *UnknownTypeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "pointcloud", unknown.Name)
	assert.Contains(t, err.Error(), "pointcloud")
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, 9)
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, PrimitivesName)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Message
		equal bool
	}{
		{"empty", &Empty{}, &Empty{}, true},
		{"empty vs primitives", &Empty{}, &Primitives{}, false},
		{"primitives same", &Primitives{Int8Value: 3, StringValue: "x"}, &Primitives{Int8Value: 3, StringValue: "x"}, true},
		{"primitives differ in one field", &Primitives{Uint64Value: 1}, &Primitives{Uint64Value: 2}, false},
		{"nested", &Nested{PrimitiveValues: Primitives{BoolValue: true}}, &Nested{PrimitiveValues: Primitives{BoolValue: true}}, true},
		{"fields with same type swapped",
			&FieldsWithSameType{PrimitiveValues1: Primitives{Int8Value: 1}},
			&FieldsWithSameType{PrimitiveValues2: Primitives{Int8Value: 1}}, false},
		{"static array", &StaticArrayPrimitives{StringValues: [3]string{"a", "b", "c"}}, &StaticArrayPrimitives{StringValues: [3]string{"a", "b", "c"}}, true},
		{"static array nested differs",
			&StaticArrayNested{PrimitiveValues: [4]Primitives{{Int16Value: 1}}},
			&StaticArrayNested{PrimitiveValues: [4]Primitives{{}, {Int16Value: 1}}}, false},
		{"dynamic nil vs empty", &DynamicArrayPrimitives{BoolValues: nil}, &DynamicArrayPrimitives{BoolValues: []bool{}}, true},
		{"dynamic differ in length", &DynamicArrayPrimitives{Int32Values: []int32{1}}, &DynamicArrayPrimitives{Int32Values: []int32{1, 1}}, false},
		{"dynamic nested", &DynamicArrayNested{PrimitiveValues: []Primitives{{StringValue: "s"}}}, &DynamicArrayNested{PrimitiveValues: []Primitives{{StringValue: "s"}}}, true},
		{"builtins", &Builtins{TimeValue: Time{Sec: 1}}, &Builtins{DurationValue: Duration{Sec: 1}}, false},
		{"typed nil", &Primitives{}, (*Primitives)(nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
		})
	}
}

func TestCodec(t *testing.T) {
	typ, err := Lookup(DynamicArrayPrimitivesName)
	require.NoError(t, err)
	in := &DynamicArrayPrimitives{
		ByteValues:   []uint8{0, 255},
		Uint64Values: []uint64{18446744073709551615},
		StringValues: []string{"", "two\nlines"},
	}
	payload, err := Marshal(in)
	require.NoError(t, err)
	out, err := typ.Unmarshal(payload)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
}

func TestCodecTypeMismatch(t *testing.T) {
	payload, err := Marshal(&Empty{})
	require.NoError(t, err)
	typ, err := Lookup(PrimitivesName)
	require.NoError(t, err)
	_, err = typ.Unmarshal(payload)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCodecGarbage(t *testing.T) {
	typ, err := Lookup(EmptyName)
	require.NoError(t, err)
	_, err = typ.Unmarshal([]byte("not json"))
	assert.Error(t, err)
}
