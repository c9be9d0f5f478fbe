// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/shestakovda/errx"

	"github.com/canonical/sqlrecord/config"
	"github.com/canonical/sqlrecord/internal/pool"
	"github.com/canonical/sqlrecord/internal/stmt"
)

// Row maps column names to values as returned by the database driver.
type Row = pool.Row

// Result is the outcome of a statement: the rows it returned, or the
// inserted identity and number of affected rows.
type Result = pool.Result

// Dialect describes how statements are written for a database driver.
type Dialect = stmt.Dialect

// The supported dialects.
var (
	MySQL    = stmt.MySQL
	Postgres = stmt.Postgres
	SQLite   = stmt.SQLite
	Dqlite   = stmt.Dqlite
)

// Executor runs a parameterized statement on a pooled connection. Every call
// checks out exactly one connection and releases it before returning.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) (*Result, error)
}

// Store translates model operations into statements run by an Executor.
// A Store holds no state between calls and is safe for concurrent use.
type Store struct {
	exec    Executor
	dialect Dialect
	logger  Logger
	// closer is set when the Store owns the executor.
	closer io.Closer
}

// NewStore returns a Store running statements written for dialect on exec.
func NewStore(exec Executor, dialect Dialect, logger Logger) *Store {
	if logger == nil {
		logger = DefaultLogger
	}
	return &Store{exec: exec, dialect: dialect, logger: logger}
}

// New returns a Store running statements on a pool over db. The driver name
// selects the dialect.
func New(db *sql.DB, driverName string, logger Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("cannot create store: nil database")
	}
	dialect, err := stmt.ForDriver(driverName)
	if err != nil {
		return nil, fmt.Errorf("cannot create store: %s", err)
	}
	if logger == nil {
		logger = DefaultLogger
	}
	p := pool.New(db, driverName, logger)
	s := NewStore(p, dialect, logger)
	s.closer = p
	return s, nil
}

// Open opens a connection pool from the configuration and returns a Store
// using it. Without a valid configuration the problem is logged and
// ErrDisabled returned, so that callers can carry on without a store.
func Open(ctx context.Context, cfg *config.Config, logger Logger) (*Store, error) {
	if logger == nil {
		logger = DefaultLogger
	}
	if cfg == nil {
		logger.Error("store", config.ErrNotConfigured)
		return nil, ErrDisabled.WithReason(config.ErrNotConfigured)
	}
	driverName, dataSourceName, err := cfg.DataSource()
	if err != nil {
		logger.Error("store", err)
		return nil, ErrDisabled.WithReason(err)
	}
	dialect, err := stmt.ForDriver(driverName)
	if err != nil {
		logger.Error("store", err)
		return nil, ErrDisabled.WithReason(err)
	}
	p, err := pool.Open(ctx, driverName, dataSourceName, cfg.PoolSize(), logger)
	if err != nil {
		return nil, err
	}
	s := NewStore(p, dialect, logger)
	s.closer = p
	return s, nil
}

// Close closes the connection pool if the Store opened it.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Dialect returns the dialect statements are written in.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Save inserts the model body as a new row, sets the generated identity on
// the body and returns the model as read back from the database. A model
// that is not valid is rejected before any statement is sent. When the new
// row cannot be read back by its identity Save fails with ErrQuery.
func (s *Store) Save(ctx context.Context, m Model) (Model, error) {
	if m == nil {
		return nil, ErrValidation.WithReason(errors.New("nil model"))
	}
	if !m.Valid() {
		reason := m.Validate()
		if reason == nil {
			reason = errors.New("model is not valid")
		}
		return nil, ErrValidation.WithReason(reason).WithDebug(errx.Debug{"type": m.Type()})
	}
	table, err := tableName(m)
	if err != nil {
		return nil, err
	}
	columns, values, err := m.Body().columns(false)
	if err != nil {
		return nil, ErrValidation.WithReason(err)
	}
	st, err := stmt.Insert(s.dialect, table, columns, values)
	if err != nil {
		return nil, ErrValidation.WithReason(err)
	}
	res, err := s.exec.Execute(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	if _, ok := m.Body().ID(); !ok {
		id, err := s.insertedID(res)
		if err != nil {
			return nil, err
		}
		m.Body().Set("id", Scalar(id))
	}
	id, _ := m.Body().ID()
	saved, err := s.Read(ctx, m)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, ErrQuery.WithReason(errors.New("inserted row not found")).WithDebug(errx.Debug{"id": id})
	}
	return saved, nil
}

// insertedID returns the identity generated by an INSERT statement.
func (s *Store) insertedID(res *Result) (any, error) {
	if !s.dialect.InsertReturnsID() {
		return res.LastInsertID, nil
	}
	if len(res.Rows) == 0 {
		return nil, ErrQuery.WithReason(errors.New("insert returned no id"))
	}
	id, ok := res.Rows[0]["id"]
	if !ok || id == nil {
		return nil, ErrQuery.WithReason(errors.New("insert returned no id"))
	}
	return id, nil
}

// Read reads the row with the model identity into the model body. When no
// such row exists Read returns a nil model and no error.
func (s *Store) Read(ctx context.Context, m Model) (Model, error) {
	table, id, err := target(m, "read")
	if err != nil {
		return nil, err
	}
	st, err := stmt.SelectByID(s.dialect, table, id)
	if err != nil {
		return nil, ErrValidation.WithReason(err)
	}
	res, err := s.exec.Execute(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	m.Body().Merge(res.Rows[0])
	return m, nil
}

// Update writes the columns of the model body to the row with the model
// identity, leaving other columns untouched, and returns the model as read
// back from the database. A body holding only the identity is just read.
func (s *Store) Update(ctx context.Context, m Model) (Model, error) {
	table, id, err := target(m, "update")
	if err != nil {
		return nil, err
	}
	columns, values, err := m.Body().columns(true)
	if err != nil {
		return nil, ErrValidation.WithReason(err)
	}
	if len(columns) > 0 {
		st, err := stmt.Update(s.dialect, table, columns, values, id)
		if err != nil {
			return nil, ErrValidation.WithReason(err)
		}
		if _, err := s.exec.Execute(ctx, st.SQL, st.Args...); err != nil {
			return nil, err
		}
	}
	return s.Read(ctx, m)
}

// Delete removes the row with the model identity. It reports whether a row
// was removed; removing nothing is not an error.
func (s *Store) Delete(ctx context.Context, m Model) (bool, error) {
	table, id, err := target(m, "delete")
	if err != nil {
		return false, err
	}
	st, err := stmt.DeleteByID(s.dialect, table, id)
	if err != nil {
		return false, ErrValidation.WithReason(err)
	}
	res, err := s.exec.Execute(ctx, st.SQL, st.Args...)
	if err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

// ArrayAppend appends value to the array column of the row with the model
// identity, unless the array already holds it, and merges the updated row
// into the model body. Only dialects with native array columns support it.
//
// Experimental.
func (s *Store) ArrayAppend(ctx context.Context, m Model, column string, value any) (Model, error) {
	return s.arrayUpdate(ctx, m, "array append", stmt.ArrayAppend, column, value)
}

// ArrayRemove removes every occurrence of value from the array column of
// the row with the model identity and merges the updated row into the model
// body. Only dialects with native array columns support it.
//
// Experimental.
func (s *Store) ArrayRemove(ctx context.Context, m Model, column string, value any) (Model, error) {
	return s.arrayUpdate(ctx, m, "array remove", stmt.ArrayRemove, column, value)
}

type arrayBuilder func(d stmt.Dialect, table, column string, value, id any) (stmt.Statement, error)

func (s *Store) arrayUpdate(ctx context.Context, m Model, op string, build arrayBuilder, column string, value any) (Model, error) {
	if !s.dialect.SupportsArrays() {
		return nil, ErrUnsupported.WithDebug(errx.Debug{"op": op, "dialect": s.dialect.Name()})
	}
	table, id, err := target(m, op)
	if err != nil {
		return nil, err
	}
	st, err := build(s.dialect, table, column, value, id)
	if err != nil {
		return nil, ErrValidation.WithReason(err)
	}
	res, err := s.exec.Execute(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) > 0 {
		m.Body().Merge(res.Rows[0])
	}
	return m, nil
}

// Execute runs a raw statement written with "?" placeholders, rebound for
// the dialect. The result is returned as it is.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	return s.exec.Execute(ctx, s.dialect.Rebind(query), args...)
}

// tableName returns the table of a model: its own, or its type name
// followed by "s".
func tableName(m Model) (string, error) {
	table := m.Table()
	if table == "" {
		if m.Type() == "" {
			return "", ErrValidation.WithReason(errors.New("model has neither a type nor a table"))
		}
		table = m.Type() + "s"
	}
	if !stmt.ValidName(table) {
		return "", ErrValidation.WithReason(fmt.Errorf("invalid table name %q", table))
	}
	return table, nil
}

// target returns the table and identity an operation on m works on.
func target(m Model, op string) (string, any, error) {
	if m == nil {
		return "", nil, ErrValidation.WithReason(errors.New("nil model"))
	}
	id, ok := m.Body().ID()
	if !ok {
		return "", nil, ErrPrecondition.WithReason(fmt.Errorf("cannot %s without an id", op))
	}
	table, err := tableName(m)
	if err != nil {
		return "", nil, err
	}
	return table, id, nil
}
