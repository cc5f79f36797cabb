// Package msg holds the message schemas exchanged by the communication tests,
// a registry that maps a schema name to its type and the JSON wire codec.
package msg

import (
	"fmt"
	"sort"
)

// Message is implemented by every schema. Equal compares field by field and is false
// for messages of a different schema.
type Message interface {
	TypeName() string
	Equal(other Message) bool
}

// Type is a handle to one registered schema.
type Type struct {
	name  string
	newFn func() Message
}

func (t Type) Name() string {
	return t.name
}

// New returns a zero value message of this type.
func (t Type) New() Message {
	return t.newFn()
}

type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type '%s'", e.Name)
}

var registry = map[string]Type{
	EmptyName:                  {EmptyName, func() Message { return &Empty{} }},
	PrimitivesName:             {PrimitivesName, func() Message { return &Primitives{} }},
	NestedName:                 {NestedName, func() Message { return &Nested{} }},
	FieldsWithSameTypeName:     {FieldsWithSameTypeName, func() Message { return &FieldsWithSameType{} }},
	StaticArrayPrimitivesName:  {StaticArrayPrimitivesName, func() Message { return &StaticArrayPrimitives{} }},
	StaticArrayNestedName:      {StaticArrayNestedName, func() Message { return &StaticArrayNested{} }},
	DynamicArrayPrimitivesName: {DynamicArrayPrimitivesName, func() Message { return &DynamicArrayPrimitives{} }},
	DynamicArrayNestedName:     {DynamicArrayNestedName, func() Message { return &DynamicArrayNested{} }},
	BuiltinsName:               {BuiltinsName, func() Message { return &Builtins{} }},
}

// Lookup resolves a schema by name.
func Lookup(name string) (Type, error) {
	t, ok := registry[name]
	if !ok {
		return Type{}, &UnknownTypeError{Name: name}
	}
	return t, nil
}

// Names lists the registered schema names in lexical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
