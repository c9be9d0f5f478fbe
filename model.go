// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"errors"
)

// Model is an application entity persisted by a Store. The Store never
// keeps a reference to a model beyond the call it serves.
type Model interface {
	// Type names the kind of entity, e.g. "user".
	Type() string
	// Table names the table the entity is stored in. An empty table means
	// the type name followed by "s".
	Table() string
	// Valid reports whether the model may be saved.
	Valid() bool
	// Validate returns the reason the model is not valid, or nil.
	Validate() error
	// Body returns the columns of the model. The identity is held in the
	// "id" column.
	Body() *Body
}

// Validator checks the body of a record.
type Validator func(*Body) error

// Record is a ready-made Model.
type Record struct {
	typ        string
	table      string
	body       *Body
	validators []Validator
}

// RecordOption configures a Record.
type RecordOption func(*Record)

// WithTable stores the record in the named table instead of the default.
func WithTable(table string) RecordOption {
	return func(r *Record) {
		r.table = table
	}
}

// WithValidator adds a check run by Validate.
func WithValidator(v Validator) RecordOption {
	return func(r *Record) {
		r.validators = append(r.validators, v)
	}
}

// WithStructured declares columns holding structured values.
func WithStructured(columns ...string) RecordOption {
	return func(r *Record) {
		for _, c := range columns {
			r.body.Declare(c, KindStructured)
		}
	}
}

// WithBytes declares columns holding binary values.
func WithBytes(columns ...string) RecordOption {
	return func(r *Record) {
		for _, c := range columns {
			r.body.Declare(c, KindBytes)
		}
	}
}

// WithBody sets the initial body of the record. Column kinds declared on
// body are kept.
func WithBody(body *Body) RecordOption {
	return func(r *Record) {
		for k, kind := range r.body.declared {
			if _, ok := body.declared[k]; !ok {
				body.Declare(k, kind)
			}
		}
		r.body = body
	}
}

// NewRecord returns a record of the given type with an empty body.
func NewRecord(typ string, options ...RecordOption) *Record {
	r := &Record{typ: typ, body: NewBody()}
	for _, option := range options {
		option(r)
	}
	return r
}

// Type implements Model.
func (r *Record) Type() string {
	return r.typ
}

// Table implements Model.
func (r *Record) Table() string {
	return r.table
}

// Body implements Model.
func (r *Record) Body() *Body {
	return r.body
}

// Set sets a column of the record body.
func (r *Record) Set(key string, v Value) *Record {
	r.body.Set(key, v)
	return r
}

// Validate runs the validators of the record in order and returns the first
// error.
func (r *Record) Validate() error {
	if r.typ == "" && r.table == "" {
		return errors.New("record has neither a type nor a table")
	}
	for _, v := range r.validators {
		if err := v(r.body); err != nil {
			return err
		}
	}
	return nil
}

// Valid implements Model.
func (r *Record) Valid() bool {
	return r.Validate() == nil
}

// Required returns a validator checking that the given columns hold a
// non-nil value.
func Required(columns ...string) Validator {
	return func(b *Body) error {
		for _, c := range columns {
			if b.Value(c) == nil {
				return &MissingColumnError{Column: c}
			}
		}
		return nil
	}
}

// MissingColumnError is returned by the Required validator.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return "column \"" + e.Column + "\" is required"
}
