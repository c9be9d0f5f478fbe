// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/canonical/sqlrecord/internal/typeinfo"
)

// Kind is the storage kind of a body value.
type Kind = typeinfo.Kind

const (
	// KindScalar values are bound to statements as they are.
	KindScalar = typeinfo.Scalar
	// KindStructured values are bound as their JSON encoding and decoded
	// again when read back.
	KindStructured = typeinfo.Structured
	// KindBytes values are binary. They are bound as they are and read back
	// as []byte.
	KindBytes = typeinfo.Bytes
)

// Value is a body value tagged with its storage kind.
type Value struct {
	kind Kind
	v    any
}

// Scalar returns a value that is stored as it is, e.g. a string, a number,
// a time or anything implementing driver.Valuer.
func Scalar(v any) Value {
	return Value{kind: KindScalar, v: v}
}

// Structured returns a value that is stored in its JSON encoding, e.g. a
// slice, a map or a struct.
func Structured(v any) Value {
	return Value{kind: KindStructured, v: v}
}

// Bytes returns a binary value, stored in a BLOB or BYTEA column.
func Bytes(v []byte) Value {
	return Value{kind: KindBytes, v: v}
}

// Kind returns the storage kind of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// Interface returns the Go value held.
func (v Value) Interface() any {
	return v.v
}

// bindValue returns the value to bind to a statement parameter.
func (v Value) bindValue() (any, error) {
	switch v.kind {
	case KindScalar, KindBytes:
		return v.v, nil
	case KindStructured:
		if v.v == nil {
			return nil, nil
		}
		b, err := json.Marshal(v.v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("internal error: unknown value kind %d", v.kind)
}

// decodeValue turns a value read from column of the given kind back into a
// body value. Text that does not hold JSON is kept as a scalar.
func decodeValue(kind Kind, raw any) Value {
	if kind == KindBytes {
		switch b := raw.(type) {
		case []byte:
			return Bytes(append([]byte(nil), b...))
		case string:
			return Bytes([]byte(b))
		}
		return Value{kind: KindBytes, v: raw}
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if kind != KindStructured {
		return Scalar(raw)
	}
	s, ok := raw.(string)
	if !ok {
		return Structured(raw)
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return Scalar(s)
	}
	return Structured(decoded)
}

// Body maps column names to values in insertion order. Columns can be
// declared structured before they hold a value, so that values read from
// the database are decoded. The zero Body is empty and ready to use.
type Body struct {
	keys     []string
	values   map[string]Value
	declared map[string]Kind
}

// NewBody returns an empty body.
func NewBody() *Body {
	return &Body{values: map[string]Value{}, declared: map[string]Kind{}}
}

// BodyFromStruct returns a body holding the "db" tagged fields of the
// struct value, in declaration order. Slices, maps and structs are
// structured, fields tagged omitempty holding their zero value are left
// out.
func BodyFromStruct(value any) (*Body, error) {
	info, err := typeinfo.GetTypeInfo(value)
	if err != nil {
		return nil, err
	}
	members, err := typeinfo.Members(value)
	if err != nil {
		return nil, err
	}
	b := NewBody()
	for _, f := range info.Fields {
		b.Declare(f.Tag, f.Kind)
	}
	for _, m := range members {
		b.Set(m.Tag, Value{kind: m.Kind, v: m.Value})
	}
	return b, nil
}

// Set sets the value of a column. A new column is added at the end of the
// body, an existing column keeps its position.
func (b *Body) Set(key string, v Value) *Body {
	if b.values == nil {
		b.values = map[string]Value{}
	}
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = v
	return b
}

// Declare records the kind of a column, used when a value for it is read
// from the database.
func (b *Body) Declare(key string, kind Kind) *Body {
	if b.declared == nil {
		b.declared = map[string]Kind{}
	}
	b.declared[key] = kind
	return b
}

// Get returns the value of a column.
func (b *Body) Get(key string) (Value, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Value returns the Go value of a column, or nil.
func (b *Body) Value(key string) any {
	return b.values[key].v
}

// Delete removes a column.
func (b *Body) Delete(key string) {
	if _, ok := b.values[key]; !ok {
		return
	}
	delete(b.values, key)
	for i, k := range b.keys {
		if k == key {
			b.keys = append(b.keys[:i:i], b.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the columns in insertion order.
func (b *Body) Keys() []string {
	return append([]string(nil), b.keys...)
}

// Len returns the number of columns.
func (b *Body) Len() int {
	return len(b.keys)
}

// ID returns the identity of the body, held in the "id" column. It reports
// false when there is no identity.
func (b *Body) ID() (any, bool) {
	v, ok := b.values["id"]
	if !ok || v.v == nil {
		return nil, false
	}
	return v.v, true
}

// Map returns the Go values of the body.
func (b *Body) Map() map[string]any {
	m := make(map[string]any, len(b.keys))
	for k, v := range b.values {
		m[k] = v.v
	}
	return m
}

// kindOf returns the kind of values of a column. Scalar byte slices are
// taken as binary.
func (b *Body) kindOf(key string) Kind {
	if v, ok := b.values[key]; ok {
		if _, isBytes := v.v.([]byte); isBytes && v.kind == KindScalar {
			return KindBytes
		}
		if v.v != nil || v.kind != KindScalar {
			return v.kind
		}
	}
	if kind, ok := b.declared[key]; ok {
		return kind
	}
	return KindScalar
}

// Merge overwrites the body with the columns of a row read from the
// database. Existing columns keep their position, new columns are added in
// name order.
func (b *Body) Merge(row map[string]any) {
	var added []string
	for col := range row {
		if _, ok := b.values[col]; !ok {
			added = append(added, col)
		}
	}
	sort.Strings(added)
	for _, col := range b.keys {
		if raw, ok := row[col]; ok {
			b.values[col] = decodeValue(b.kindOf(col), raw)
		}
	}
	for _, col := range added {
		b.Set(col, decodeValue(b.kindOf(col), row[col]))
	}
}

// Decode sets the "db" tagged fields of the struct pointed to by ptr from
// the body. Fields without a column in the body are left untouched.
func (b *Body) Decode(ptr any) error {
	return typeinfo.Assign(ptr, func(tag string) (any, bool) {
		v, ok := b.values[tag]
		return v.v, ok
	})
}

// columns returns the columns of the body and the values to bind for them,
// in insertion order. Structured values are JSON encoded. The identity is
// left out when skipID is set or when it is nil.
func (b *Body) columns(skipID bool) ([]string, []any, error) {
	columns := make([]string, 0, len(b.keys))
	values := make([]any, 0, len(b.keys))
	for _, k := range b.keys {
		v := b.values[k]
		if k == "id" && (skipID || v.v == nil) {
			continue
		}
		bv, err := v.bindValue()
		if err != nil {
			return nil, nil, fmt.Errorf("cannot encode column %q: %s", k, err)
		}
		columns = append(columns, k)
		values = append(values, bv)
	}
	return columns, values, nil
}
