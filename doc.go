/*
Package sqlrecord persists application models to relational tables without the caller writing SQL for the common operations.

A model names its type, optionally its table, says whether it is valid and exposes its columns through a Body.
The Store turns Save, Read, Update and Delete calls on a model into parameterized statements, runs each of them on a pooled connection and merges the row it gets back into the model body.

# Basics

Given a table:

	CREATE TABLE users (
		id integer PRIMARY KEY AUTOINCREMENT,
		firstname text,
		lastname text,
		favorites text
	)

a user is saved with:

	user := sqlrecord.NewRecord("user",
		sqlrecord.WithStructured("favorites"),
		sqlrecord.WithValidator(sqlrecord.Required("firstname")),
	)
	user.Set("firstname", sqlrecord.Scalar("toto"))
	user.Set("favorites", sqlrecord.Structured([]any{1, 34}))
	saved, err := store.Save(ctx, user)

The table defaults to the type name followed by "s".
Save sends

	INSERT INTO users (firstname, favorites) VALUES (?, ?)

sets the generated identity in the "id" column of the body and reads the row back.

# Values

Body values are scalar, structured or binary.
Scalar values are bound to statements as they are.
Structured values (slices, maps, structs) are stored as JSON text and decoded again when read back, as long as the column is known to be structured.
Columns may be declared structured before they hold a value so that a model carrying only an id decodes them on Read.
Binary values ([]byte) are stored as they are and read back as []byte; declare the column with WithBytes when the model does not hold a value for it yet.

Structs with `db` tags convert to and from bodies with BodyFromStruct and Body.Decode.

# Operations

Read, Update and Delete need the model to carry an id.
Read of a missing row returns a nil model and no error.
Update writes only the columns present in the body; other columns are left untouched.
Delete reports whether a row was removed.
ArrayAppend and ArrayRemove change native array columns and are only available on PostgreSQL.

Statements are written with "?" placeholders and rebound for the dialect of the driver, e.g. "$1" for PostgreSQL.

# Errors

Failures match one of ErrValidation, ErrPrecondition, ErrConnection, ErrQuery, ErrUnsupported or ErrDisabled with errx.Is.
Invalid models are rejected before a connection is taken from the pool.
*/
package sqlrecord
