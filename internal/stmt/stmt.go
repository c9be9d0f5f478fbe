// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package stmt

import (
	"bytes"
	"fmt"
	"regexp"
)

// Statement is a parameterized SQL statement together with its ordered bind
// values. The number of placeholders in SQL always equals len(Args).
type Statement struct {
	SQL  string
	Args []any
}

// validNameRx matches the table and column names that may be written into a
// statement. Values are always bound, names never are.
var validNameRx = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*$`)

// ValidName reports whether name can be used as a table or column name.
func ValidName(name string) bool {
	return validNameRx.MatchString(name)
}

func checkNames(table string, columns []string) error {
	if !ValidName(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	for _, c := range columns {
		if !ValidName(c) {
			return fmt.Errorf("invalid column name %q", c)
		}
	}
	return nil
}

// Insert builds an INSERT statement for the given columns and values. When
// the dialect cannot report inserted identities the statement returns the id
// column.
func Insert(d Dialect, table string, columns []string, values []any) (Statement, error) {
	if err := checkNames(table, columns); err != nil {
		return Statement{}, err
	}
	if len(columns) != len(values) {
		return Statement{}, fmt.Errorf("cannot build insert: %d columns and %d values", len(columns), len(values))
	}
	var b sqlBuilder
	b.write("INSERT INTO " + table)
	if len(columns) == 0 {
		b.write(d.emptyInsert)
	} else {
		b.writeInsert(columns)
	}
	if d.insertReturnsID {
		b.write(" RETURNING id")
	}
	return b.statement(d, values), nil
}

// SelectByID builds a statement reading every column of the row with the
// given id.
func SelectByID(d Dialect, table string, id any) (Statement, error) {
	if err := checkNames(table, nil); err != nil {
		return Statement{}, err
	}
	var b sqlBuilder
	b.write("SELECT * FROM " + table + " WHERE id = ?")
	return b.statement(d, []any{id}), nil
}

// Update builds an UPDATE statement assigning values to columns on the row
// with the given id. The id is bound last.
func Update(d Dialect, table string, columns []string, values []any, id any) (Statement, error) {
	if err := checkNames(table, columns); err != nil {
		return Statement{}, err
	}
	if len(columns) != len(values) {
		return Statement{}, fmt.Errorf("cannot build update: %d columns and %d values", len(columns), len(values))
	}
	if len(columns) == 0 {
		return Statement{}, fmt.Errorf("cannot build update: no columns")
	}
	var b sqlBuilder
	b.write("UPDATE " + table + " SET ")
	b.writeAssignments(columns)
	b.write(" WHERE id = ?")
	args := make([]any, 0, len(values)+1)
	args = append(args, values...)
	args = append(args, id)
	return b.statement(d, args), nil
}

// DeleteByID builds a statement removing the row with the given id.
func DeleteByID(d Dialect, table string, id any) (Statement, error) {
	if err := checkNames(table, nil); err != nil {
		return Statement{}, err
	}
	var b sqlBuilder
	b.write("DELETE FROM " + table + " WHERE id = ?")
	return b.statement(d, []any{id}), nil
}

// ArrayAppend builds a statement appending value to the array column of the
// row with the given id, unless the array already holds it. The updated row
// is returned.
func ArrayAppend(d Dialect, table, column string, value, id any) (Statement, error) {
	if err := checkArrays(d, table, column); err != nil {
		return Statement{}, err
	}
	var b sqlBuilder
	b.write("UPDATE " + table + " SET " + column + " = array_append(" + column + ", ?)")
	b.write(" WHERE id = ? AND NOT (? = ANY(" + column + ")) RETURNING *")
	return b.statement(d, []any{value, id, value}), nil
}

// ArrayRemove builds a statement removing every occurrence of value from the
// array column of the row with the given id. The updated row is returned.
func ArrayRemove(d Dialect, table, column string, value, id any) (Statement, error) {
	if err := checkArrays(d, table, column); err != nil {
		return Statement{}, err
	}
	var b sqlBuilder
	b.write("UPDATE " + table + " SET " + column + " = array_remove(" + column + ", ?)")
	b.write(" WHERE id = ? RETURNING *")
	return b.statement(d, []any{value, id}), nil
}

func checkArrays(d Dialect, table, column string) error {
	if !d.arrays {
		return fmt.Errorf("dialect %q has no array columns", d.name)
	}
	return checkNames(table, []string{column})
}

// sqlBuilder accumulates the SQL of a statement.
type sqlBuilder struct {
	buf bytes.Buffer
}

// writeInsert writes the column list and the matching placeholders of an
// INSERT statement.
func (b *sqlBuilder) writeInsert(columns []string) {
	b.buf.WriteString(" (")
	b.writeCommaSeparatedList(columns, func(_ int, column string) string {
		return column
	})
	b.buf.WriteString(") VALUES (")
	b.writeCommaSeparatedList(columns, func(_ int, _ string) string {
		return "?"
	})
	b.buf.WriteString(")")
}

// writeAssignments writes the "column = ?" list of an UPDATE statement.
func (b *sqlBuilder) writeAssignments(columns []string) {
	b.writeCommaSeparatedList(columns, func(_ int, column string) string {
		return column + " = ?"
	})
}

// writeCommaSeparatedList writes out the provided list using the writer to
// write each element into the SQL.
func (b *sqlBuilder) writeCommaSeparatedList(list []string, writer func(i int, s string) string) {
	for i, s := range list {
		if i != 0 {
			b.buf.WriteString(", ")
		}
		b.buf.WriteString(writer(i, s))
	}
}

func (b *sqlBuilder) write(sql string) {
	b.buf.WriteString(sql)
}

// statement rebinds the accumulated SQL for the dialect.
func (b *sqlBuilder) statement(d Dialect, args []any) Statement {
	return Statement{SQL: d.Rebind(b.buf.String()), Args: args}
}
