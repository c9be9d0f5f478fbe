// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pool

import (
	"context"
	"database/sql"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/shestakovda/errx"

	// Drivers selectable by configuration.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlrecord/internal/stmt"
)

var (
	// ErrConnection is returned when no connection could be checked out of
	// the pool.
	ErrConnection = errx.New("cannot get connection")
	// ErrQuery is returned when the database rejects a statement.
	ErrQuery = errx.New("cannot run statement")
)

// DefaultMaxConnections is the capacity of a pool opened without an explicit
// limit.
const DefaultMaxConnections = 1000

// Row maps column names to values as returned by the driver.
type Row = map[string]any

// Result holds the outcome of a statement. Rows is filled for statements that
// return rows. LastInsertID and RowsAffected are filled for the others, when
// the driver reports them.
type Result struct {
	Rows         []Row
	LastInsertID int64
	RowsAffected int64
}

// Logger reports errors with a component tag.
type Logger interface {
	Error(tag string, err error)
}

// Pool runs statements on connections checked out of a bounded pool. Every
// call to Execute checks out exactly one connection and releases it before
// returning.
type Pool struct {
	db     *sqlx.DB
	logger Logger
	// closers are closed after the database, e.g. an embedded dqlite node.
	closers []io.Closer
}

// New returns a Pool running statements on db.
func New(db *sql.DB, driverName string, logger Logger) *Pool {
	return &Pool{db: sqlx.NewDb(db, driverName), logger: logger}
}

// Open opens a pool of at most maxConns connections on the named driver and
// checks that the database can be reached.
func Open(ctx context.Context, driverName, dataSourceName string, maxConns int, logger Logger) (_ *Pool, err error) {
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	var p *Pool
	if driverName == stmt.Dqlite.Name() {
		p, err = openDqlite(ctx, dataSourceName, logger)
	} else {
		var db *sqlx.DB
		db, err = sqlx.Open(driverName, dataSourceName)
		if err == nil {
			p = &Pool{db: db, logger: logger}
		}
	}
	if err != nil {
		logger.Error("pool", err)
		return nil, ErrConnection.WithReason(err).WithDebug(errx.Debug{"driver": driverName})
	}
	p.db.SetMaxOpenConns(maxConns)
	if err := p.db.PingContext(ctx); err != nil {
		logger.Error("pool", err)
		p.Close()
		return nil, ErrConnection.WithReason(err).WithDebug(errx.Debug{"driver": driverName})
	}
	return p, nil
}

// Execute checks out a connection and runs query with args on it.
// Statements returning rows are fully read before the connection is
// released.
func (p *Pool) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := p.db.Connx(ctx)
	if err != nil {
		p.logger.Error("pool", err)
		return nil, ErrConnection.WithReason(err)
	}
	defer conn.Close()

	if stmt.ReturnsRows(query) {
		rows, err := p.queryRows(ctx, conn, query, args)
		if err != nil {
			return nil, ErrQuery.WithReason(err).WithDebug(errx.Debug{"query": query})
		}
		return &Result{Rows: rows}, nil
	}

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, ErrQuery.WithReason(err).WithDebug(errx.Debug{"query": query})
	}
	result := &Result{}
	// Not every driver reports both figures; postgres has no last insert ID.
	if id, err := res.LastInsertId(); err == nil {
		result.LastInsertID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	return result, nil
}

func (p *Pool) queryRows(ctx context.Context, conn *sqlx.Conn, query string, args []any) (_ []Row, err error) {
	rows, err := conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
	}()
	result := []Row{}
	for rows.Next() {
		row := Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Stats returns the statistics of the underlying connection pool.
func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

// Close closes the pool and every connection in it.
func (p *Pool) Close() error {
	err := p.db.Close()
	for _, c := range p.closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
