// Package fixtures generates the expected message sets used by the talker and the listener.
// Both sides call ForType so they agree on the content without sharing state.
package fixtures

import (
	"math"

	"github.com/celerway/commtest/msg"
)

// ForType returns the ordered fixture messages for a schema name. Every call builds new values.
func ForType(name string) ([]msg.Message, error) {
	gen, ok := generators[name]
	if !ok {
		return nil, &msg.UnknownTypeError{Name: name}
	}
	return gen(), nil
}

var generators = map[string]func() []msg.Message{
	msg.EmptyName:                  empty,
	msg.PrimitivesName:             primitivesMessages,
	msg.NestedName:                 nested,
	msg.FieldsWithSameTypeName:     fieldsWithSameType,
	msg.StaticArrayPrimitivesName:  staticArrayPrimitives,
	msg.StaticArrayNestedName:      staticArrayNested,
	msg.DynamicArrayPrimitivesName: dynamicArrayPrimitives,
	msg.DynamicArrayNestedName:     dynamicArrayNested,
	msg.BuiltinsName:               builtins,
}

func empty() []msg.Message {
	return []msg.Message{&msg.Empty{}}
}

// primitives returns four distinct values: zero, maximum, minimum and one with a
// multi-line string.
func primitives() []msg.Primitives {
	return []msg.Primitives{
		{},
		{
			BoolValue:    true,
			ByteValue:    math.MaxUint8,
			CharValue:    math.MaxUint8,
			Float32Value: 1.125,
			Float64Value: 1.125,
			Int8Value:    math.MaxInt8,
			Uint8Value:   math.MaxUint8,
			Int16Value:   math.MaxInt16,
			Uint16Value:  math.MaxUint16,
			Int32Value:   math.MaxInt32,
			Uint32Value:  math.MaxUint32,
			Int64Value:   math.MaxInt64,
			Uint64Value:  math.MaxUint64,
			StringValue:  "max value",
		},
		{
			BoolValue:    false,
			Float32Value: -2.125,
			Float64Value: -2.125,
			Int8Value:    math.MinInt8,
			Int16Value:   math.MinInt16,
			Int32Value:   math.MinInt32,
			Int64Value:   math.MinInt64,
			StringValue:  "min value",
		},
		{
			BoolValue:   true,
			ByteValue:   1,
			CharValue:   1,
			Int8Value:   1,
			Uint8Value:  1,
			StringValue: "line one\nline two",
		},
	}
}

func primitivesMessages() []msg.Message {
	p := primitives()
	out := make([]msg.Message, 0, len(p))
	for i := range p {
		out = append(out, &p[i])
	}
	return out
}

func nested() []msg.Message {
	p := primitives()
	out := make([]msg.Message, 0, len(p))
	for _, v := range p {
		out = append(out, &msg.Nested{PrimitiveValues: v})
	}
	return out
}

func fieldsWithSameType() []msg.Message {
	p := primitives()
	out := make([]msg.Message, 0, len(p))
	for i, v := range p {
		out = append(out, &msg.FieldsWithSameType{
			PrimitiveValues1: v,
			PrimitiveValues2: p[(i+1)%len(p)],
		})
	}
	return out
}

func staticArrayPrimitives() []msg.Message {
	return []msg.Message{
		&msg.StaticArrayPrimitives{
			BoolValues:    [3]bool{false, true, false},
			ByteValues:    [3]uint8{0, math.MaxUint8, 0},
			CharValues:    [3]uint8{0, math.MaxUint8, 0},
			Float32Values: [3]float32{-2.125, 0, 1.125},
			Float64Values: [3]float64{-2.125, 0, 1.125},
			Int8Values:    [3]int8{0, math.MaxInt8, math.MinInt8},
			Uint8Values:   [3]uint8{0, math.MaxUint8, 0},
			Int16Values:   [3]int16{0, math.MaxInt16, math.MinInt16},
			Uint16Values:  [3]uint16{0, math.MaxUint16, 0},
			Int32Values:   [3]int32{0, math.MaxInt32, math.MinInt32},
			Uint32Values:  [3]uint32{0, math.MaxUint32, 0},
			Int64Values:   [3]int64{0, math.MaxInt64, math.MinInt64},
			Uint64Values:  [3]uint64{0, math.MaxUint64, 0},
			StringValues:  [3]string{"", "max value", "optional min value"},
		},
	}
}

func staticArrayNested() []msg.Message {
	var m msg.StaticArrayNested
	copy(m.PrimitiveValues[:], primitives())
	return []msg.Message{&m}
}

func dynamicArrayPrimitives() []msg.Message {
	return []msg.Message{
		&msg.DynamicArrayPrimitives{},
		&msg.DynamicArrayPrimitives{
			BoolValues:    []bool{true},
			ByteValues:    []uint8{math.MaxUint8},
			CharValues:    []uint8{math.MaxUint8},
			Float32Values: []float32{1.125},
			Float64Values: []float64{1.125},
			Int8Values:    []int8{math.MaxInt8},
			Uint8Values:   []uint8{math.MaxUint8},
			Int16Values:   []int16{math.MaxInt16},
			Uint16Values:  []uint16{math.MaxUint16},
			Int32Values:   []int32{math.MaxInt32},
			Uint32Values:  []uint32{math.MaxUint32},
			Int64Values:   []int64{math.MaxInt64},
			Uint64Values:  []uint64{math.MaxUint64},
			StringValues:  []string{"max value"},
		},
		&msg.DynamicArrayPrimitives{
			BoolValues:    []bool{false, true},
			ByteValues:    []uint8{0, math.MaxUint8},
			CharValues:    []uint8{0, math.MaxUint8},
			Float32Values: []float32{-2.125, 1.125},
			Float64Values: []float64{-2.125, 1.125},
			Int8Values:    []int8{math.MinInt8, math.MaxInt8},
			Uint8Values:   []uint8{0, math.MaxUint8},
			Int16Values:   []int16{math.MinInt16, math.MaxInt16},
			Uint16Values:  []uint16{0, math.MaxUint16},
			Int32Values:   []int32{math.MinInt32, math.MaxInt32},
			Uint32Values:  []uint32{0, math.MaxUint32},
			Int64Values:   []int64{math.MinInt64, math.MaxInt64},
			Uint64Values:  []uint64{0, math.MaxUint64},
			StringValues:  []string{"", "max value"},
		},
	}
}

func dynamicArrayNested() []msg.Message {
	p := primitives()
	return []msg.Message{
		&msg.DynamicArrayNested{},
		&msg.DynamicArrayNested{PrimitiveValues: p[:1]},
		&msg.DynamicArrayNested{PrimitiveValues: p},
	}
}

func builtins() []msg.Message {
	return []msg.Message{
		&msg.Builtins{
			DurationValue: msg.Duration{Sec: -1234567890, Nanosec: 123456789},
			TimeValue:     msg.Time{Sec: -1234567890, Nanosec: 987654321},
		},
		&msg.Builtins{
			DurationValue: msg.Duration{Sec: 0, Nanosec: 0},
			TimeValue:     msg.Time{Sec: 1460000000, Nanosec: 500000000},
		},
	}
}
