// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package stmt

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Dialect describes how statements are written for a particular database
// driver. Statements are always built with "?" placeholders and rebound once
// for the dialect, so a single placeholder style is used per dialect.
type Dialect struct {
	name     string
	bindType int
	// insertReturnsID is true when the driver cannot report the last insert
	// ID and INSERT statements must carry a "RETURNING id" clause instead.
	insertReturnsID bool
	// arrays is true for databases with native array columns.
	arrays bool
	// emptyInsert is the tail of an INSERT statement with no columns.
	emptyInsert string
}

var (
	MySQL = Dialect{
		name:        "mysql",
		bindType:    sqlx.QUESTION,
		emptyInsert: " () VALUES ()",
	}
	Postgres = Dialect{
		name:            "postgres",
		bindType:        sqlx.DOLLAR,
		insertReturnsID: true,
		arrays:          true,
		emptyInsert:     " DEFAULT VALUES",
	}
	SQLite = Dialect{
		name:        "sqlite3",
		bindType:    sqlx.QUESTION,
		emptyInsert: " DEFAULT VALUES",
	}
	// Dqlite speaks the SQLite dialect over the dqlite driver.
	Dqlite = Dialect{
		name:        "dqlite",
		bindType:    sqlx.QUESTION,
		emptyInsert: " DEFAULT VALUES",
	}
)

// ForDriver returns the dialect used with the named database/sql driver.
func ForDriver(driverName string) (Dialect, error) {
	switch driverName {
	case "mysql":
		return MySQL, nil
	case "postgres", "pgx":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "dqlite":
		return Dqlite, nil
	}
	// Fall back on sqlx's knowledge of the driver placeholder style.
	switch bt := sqlx.BindType(driverName); bt {
	case sqlx.QUESTION:
		return Dialect{name: driverName, bindType: bt, emptyInsert: " DEFAULT VALUES"}, nil
	case sqlx.DOLLAR:
		return Dialect{name: driverName, bindType: bt, insertReturnsID: true, emptyInsert: " DEFAULT VALUES"}, nil
	}
	return Dialect{}, fmt.Errorf("unsupported driver %q", driverName)
}

// Name returns the driver name of the dialect.
func (d Dialect) Name() string {
	return d.name
}

// SupportsArrays reports whether the dialect has native array columns.
func (d Dialect) SupportsArrays() bool {
	return d.arrays
}

// InsertReturnsID reports whether inserted identities are read from a
// RETURNING clause rather than from the driver result.
func (d Dialect) InsertReturnsID() bool {
	return d.insertReturnsID
}

// Rebind rewrites the "?" placeholders of query into the placeholder style
// of the dialect.
func (d Dialect) Rebind(query string) string {
	return sqlx.Rebind(d.bindType, query)
}
