package typeinfo

import (
	"reflect"
)

// Kind classifies how the value of a field is stored in a column.
type Kind int

const (
	// Scalar values are bound to statements as they are.
	Scalar Kind = iota
	// Structured values are stored in their JSON encoding.
	Structured
	// Bytes values are binary and bound as they are.
	Bytes
)

// Field represents a single tagged field from a struct type.
type Field struct {
	Type reflect.Type

	// Name is the name of the struct field.
	Name string

	// Tag is the column name from the field's "db" tag.
	Tag string

	// Index of this field in the structure.
	Index int

	// OmitEmpty is true when "omitempty" is
	// a property of the field's "db" tag.
	OmitEmpty bool

	// Kind is the storage kind of the field's values.
	Kind Kind
}

// Info represents reflected information about a struct type.
type Info struct {
	Type reflect.Type

	// Fields holds the tagged fields in declaration order.
	Fields []Field

	// Relate tag names to fields.
	TagToField map[string]Field
}
