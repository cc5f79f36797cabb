package msg

import "slices"

const (
	EmptyName                  = "empty"
	PrimitivesName             = "primitives"
	NestedName                 = "nested"
	FieldsWithSameTypeName     = "fieldswithsametype"
	StaticArrayPrimitivesName  = "staticarrayprimitives"
	StaticArrayNestedName      = "staticarraynested"
	DynamicArrayPrimitivesName = "dynamicarrayprimitives"
	DynamicArrayNestedName     = "dynamicarraynested"
	BuiltinsName               = "builtins"
)

type Empty struct{}

func (m *Empty) TypeName() string { return EmptyName }

func (m *Empty) Equal(other Message) bool {
	o, ok := other.(*Empty)
	return ok && o != nil
}

type Primitives struct {
	BoolValue    bool    `json:"bool_value"`
	ByteValue    uint8   `json:"byte_value"`
	CharValue    uint8   `json:"char_value"`
	Float32Value float32 `json:"float32_value"`
	Float64Value float64 `json:"float64_value"`
	Int8Value    int8    `json:"int8_value"`
	Uint8Value   uint8   `json:"uint8_value"`
	Int16Value   int16   `json:"int16_value"`
	Uint16Value  uint16  `json:"uint16_value"`
	Int32Value   int32   `json:"int32_value"`
	Uint32Value  uint32  `json:"uint32_value"`
	Int64Value   int64   `json:"int64_value"`
	Uint64Value  uint64  `json:"uint64_value"`
	StringValue  string  `json:"string_value"`
}

func (m *Primitives) TypeName() string { return PrimitivesName }

func (m *Primitives) Equal(other Message) bool {
	o, ok := other.(*Primitives)
	return ok && o != nil && *m == *o
}

type Nested struct {
	PrimitiveValues Primitives `json:"primitive_values"`
}

func (m *Nested) TypeName() string { return NestedName }

func (m *Nested) Equal(other Message) bool {
	o, ok := other.(*Nested)
	return ok && o != nil && m.PrimitiveValues == o.PrimitiveValues
}

type FieldsWithSameType struct {
	PrimitiveValues1 Primitives `json:"primitive_values1"`
	PrimitiveValues2 Primitives `json:"primitive_values2"`
}

func (m *FieldsWithSameType) TypeName() string { return FieldsWithSameTypeName }

func (m *FieldsWithSameType) Equal(other Message) bool {
	o, ok := other.(*FieldsWithSameType)
	return ok && o != nil &&
		m.PrimitiveValues1 == o.PrimitiveValues1 &&
		m.PrimitiveValues2 == o.PrimitiveValues2
}

type StaticArrayPrimitives struct {
	BoolValues    [3]bool    `json:"bool_values"`
	ByteValues    [3]uint8   `json:"byte_values"`
	CharValues    [3]uint8   `json:"char_values"`
	Float32Values [3]float32 `json:"float32_values"`
	Float64Values [3]float64 `json:"float64_values"`
	Int8Values    [3]int8    `json:"int8_values"`
	Uint8Values   [3]uint8   `json:"uint8_values"`
	Int16Values   [3]int16   `json:"int16_values"`
	Uint16Values  [3]uint16  `json:"uint16_values"`
	Int32Values   [3]int32   `json:"int32_values"`
	Uint32Values  [3]uint32  `json:"uint32_values"`
	Int64Values   [3]int64   `json:"int64_values"`
	Uint64Values  [3]uint64  `json:"uint64_values"`
	StringValues  [3]string  `json:"string_values"`
}

func (m *StaticArrayPrimitives) TypeName() string { return StaticArrayPrimitivesName }

func (m *StaticArrayPrimitives) Equal(other Message) bool {
	o, ok := other.(*StaticArrayPrimitives)
	return ok && o != nil && *m == *o
}

type StaticArrayNested struct {
	PrimitiveValues [4]Primitives `json:"primitive_values"`
}

func (m *StaticArrayNested) TypeName() string { return StaticArrayNestedName }

func (m *StaticArrayNested) Equal(other Message) bool {
	o, ok := other.(*StaticArrayNested)
	return ok && o != nil && m.PrimitiveValues == o.PrimitiveValues
}

// DynamicArrayPrimitives treats a nil slice and an empty slice as equal; the JSON codec
// does not preserve the difference.
type DynamicArrayPrimitives struct {
	BoolValues    []bool    `json:"bool_values"`
	ByteValues    []uint8   `json:"byte_values"`
	CharValues    []uint8   `json:"char_values"`
	Float32Values []float32 `json:"float32_values"`
	Float64Values []float64 `json:"float64_values"`
	Int8Values    []int8    `json:"int8_values"`
	Uint8Values   []uint8   `json:"uint8_values"`
	Int16Values   []int16   `json:"int16_values"`
	Uint16Values  []uint16  `json:"uint16_values"`
	Int32Values   []int32   `json:"int32_values"`
	Uint32Values  []uint32  `json:"uint32_values"`
	Int64Values   []int64   `json:"int64_values"`
	Uint64Values  []uint64  `json:"uint64_values"`
	StringValues  []string  `json:"string_values"`
}

func (m *DynamicArrayPrimitives) TypeName() string { return DynamicArrayPrimitivesName }

func (m *DynamicArrayPrimitives) Equal(other Message) bool {
	o, ok := other.(*DynamicArrayPrimitives)
	if !ok || o == nil {
		return false
	}
	return slices.Equal(m.BoolValues, o.BoolValues) &&
		slices.Equal(m.ByteValues, o.ByteValues) &&
		slices.Equal(m.CharValues, o.CharValues) &&
		slices.Equal(m.Float32Values, o.Float32Values) &&
		slices.Equal(m.Float64Values, o.Float64Values) &&
		slices.Equal(m.Int8Values, o.Int8Values) &&
		slices.Equal(m.Uint8Values, o.Uint8Values) &&
		slices.Equal(m.Int16Values, o.Int16Values) &&
		slices.Equal(m.Uint16Values, o.Uint16Values) &&
		slices.Equal(m.Int32Values, o.Int32Values) &&
		slices.Equal(m.Uint32Values, o.Uint32Values) &&
		slices.Equal(m.Int64Values, o.Int64Values) &&
		slices.Equal(m.Uint64Values, o.Uint64Values) &&
		slices.Equal(m.StringValues, o.StringValues)
}

type DynamicArrayNested struct {
	PrimitiveValues []Primitives `json:"primitive_values"`
}

func (m *DynamicArrayNested) TypeName() string { return DynamicArrayNestedName }

func (m *DynamicArrayNested) Equal(other Message) bool {
	o, ok := other.(*DynamicArrayNested)
	return ok && o != nil && slices.Equal(m.PrimitiveValues, o.PrimitiveValues)
}

type Duration struct {
	Sec     int32  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

type Time struct {
	Sec     int32  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

type Builtins struct {
	DurationValue Duration `json:"duration_value"`
	TimeValue     Time     `json:"time_value"`
}

func (m *Builtins) TypeName() string { return BuiltinsName }

func (m *Builtins) Equal(other Message) bool {
	o, ok := other.(*Builtins)
	return ok && o != nil && m.DurationValue == o.DurationValue && m.TimeValue == o.TimeValue
}
