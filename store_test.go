// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord_test

import (
	"context"
	"errors"

	"github.com/shestakovda/errx"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlrecord"
)

type StoreSuite struct{}

var _ = Suite(&StoreSuite{})

func (s *StoreSuite) TestSaveInvalidModelSendsNothing(c *C) {
	exec := &recordingExecutor{}
	store := sqlrecord.NewStore(exec, sqlrecord.MySQL, &recordLogger{})

	m := newUser().Set("lastname", sqlrecord.Scalar("robert"))
	_, err := store.Save(context.Background(), m)
	c.Assert(errx.Is(err, sqlrecord.ErrValidation), Equals, true)
	c.Check(errx.Is(err, sqlrecord.ErrQuery), Equals, false)
	c.Check(exec.calls, HasLen, 0)
	c.Check(m.Body().Keys(), DeepEquals, []string{"lastname"})

	var missing *sqlrecord.MissingColumnError
	c.Assert(errors.As(m.Validate(), &missing), Equals, true)
	c.Check(missing.Column, Equals, "firstname")
}

func (s *StoreSuite) TestSaveWithoutTypeOrTable(c *C) {
	exec := &recordingExecutor{}
	store := sqlrecord.NewStore(exec, sqlrecord.MySQL, nil)
	_, err := store.Save(context.Background(), sqlrecord.NewRecord(""))
	c.Assert(errx.Is(err, sqlrecord.ErrValidation), Equals, true)
	c.Check(exec.calls, HasLen, 0)
}

func (s *StoreSuite) TestSaveInvalidTableName(c *C) {
	exec := &recordingExecutor{}
	store := sqlrecord.NewStore(exec, sqlrecord.MySQL, nil)
	m := sqlrecord.NewRecord("user", sqlrecord.WithTable("users; DROP TABLE users")).
		Set("firstname", sqlrecord.Scalar("toto"))
	_, err := store.Save(context.Background(), m)
	c.Assert(errx.Is(err, sqlrecord.ErrValidation), Equals, true)
	c.Check(exec.calls, HasLen, 0)
}

func (s *StoreSuite) TestSaveInvalidColumnName(c *C) {
	exec := &recordingExecutor{}
	store := sqlrecord.NewStore(exec, sqlrecord.MySQL, nil)
	m := sqlrecord.NewRecord("user").Set("first name", sqlrecord.Scalar("toto"))
	_, err := store.Save(context.Background(), m)
	c.Assert(errx.Is(err, sqlrecord.ErrValidation), Equals, true)
	c.Check(exec.calls, HasLen, 0)
}

func (s *StoreSuite) TestSaveMySQL(c *C) {
	exec := &recordingExecutor{results: []*sqlrecord.Result{
		{LastInsertID: 12, RowsAffected: 1},
		{Rows: []sqlrecord.Row{{"id": int64(12), "firstname": []byte("toto"), "favorites": []byte(`[1,34]`)}}},
	}}
	store := sqlrecord.NewStore(exec, sqlrecord.MySQL, nil)

	m := newUser().
		Set("firstname", sqlrecord.Scalar("toto")).
		Set("favorites", sqlrecord.Structured([]int{1, 34}))
	got, err := store.Save(context.Background(), m)
	c.Assert(err, IsNil)
	c.Assert(got, Equals, sqlrecord.Model(m))

	c.Assert(exec.calls, HasLen, 2)
	c.Check(exec.calls[0].query, Equals, "INSERT INTO users (firstname, favorites) VALUES (?, ?)")
	c.Check(exec.calls[0].args, DeepEquals, []any{"toto", "[1,34]"})
	c.Check(exec.calls[1].query, Equals, "SELECT * FROM users WHERE id = ?")
	c.Check(exec.calls[1].args, DeepEquals, []any{int64(12)})

	id, ok := m.Body().ID()
	c.Assert(ok, Equals, true)
	c.Check(id, Equals, int64(12))
	c.Check(m.Body().Value("firstname"), Equals, "toto")
	c.Check(m.Body().Value("favorites"), DeepEquals, []any{float64(1), float64(34)})
}

func (s *StoreSuite) TestSavePostgresReturnsID(c *C) {
	exec := &recordingExecutor{results: []*sqlrecord.Result{
		{Rows: []sqlrecord.Row{{"id": int64(5)}}},
		{Rows: []sqlrecord.Row{{"id": int64(5), "firstname": "toto"}}},
	}}
	store := sqlrecord.NewStore(exec, sqlrecord.Postgres, nil)

	m := newUser().Set("firstname", sqlrecord.Scalar("toto"))
	_, err := store.Save(context.Background(), m)
	c.Assert(err, IsNil)
	c.Check(exec.queries(), DeepEquals, []string{
		"INSERT INTO users (firstname) VALUES ($1) RETURNING id",
		"SELECT * FROM users WHERE id = $1",
	})
	c.Check(m.Body().Value("id"), Equals, int64(5))
}

func (s *StoreSuite) TestSavePostgresNoID(c *C) {
	exec := &recordingExecutor{results: []*sqlrecord.Result{{}}}
	store := sqlrecord.NewStore(exec, sqlrecord.Postgres, nil)

	m := newUser().Set("firstname", sqlrecord.Scalar("toto"))
	_, err := store.Save(context.Background(), m)
	c.Assert(errx.Is(err, sqlrecord.ErrQuery), Equals, true)
	_, ok := m.Body().ID()
	c.Check(ok, Equals, false)
}

func (s *StoreSuite) TestSaveKeepsGivenID(c *C) {
	exec := &recordingExecutor{results: []*sqlrecord.Result{
		{LastInsertID: 99},
		{Rows: []sqlrecord.Row{{"id": int64(3), "firstname": "toto"}}},
	}}
	store := sqlrecord.NewStore(exec, sqlrecord.SQLite, nil)

	m := newUser().
		Set("id", sqlrecord.Scalar(int64(3))).
		Set("firstname", sqlrecord.Scalar("toto"))
	_, err := store.Save(context.Background(), m)
	c.Assert(err, IsNil)
	c.Check(exec.calls[0].query, Equals, "INSERT INTO users (id, firstname) VALUES (?, ?)")
	c.Check(exec.calls[1].args, DeepEquals, []any{int64(3)})
}

func (s *StoreSuite) TestSaveEmptyBody(c *C) {
	exec := &recordingExecutor{results: []*sqlrecord.Result{
		{LastInsertID: 1},
		{Rows: []sqlrecord.Row{{"id": int64(1)}}},
	}}
	store := sqlrecord.NewStore(exec, sqlrecord.SQLite, nil)
	_, err := store.Save(context.Background(), sqlrecord.NewRecord("event"))
	c.Assert(err, IsNil)
	c.Check(exec.queries(), DeepEquals, []string{
		"INSERT INTO events DEFAULT VALUES",
		"SELECT * FROM events WHERE id = ?",
	})
}

func (s *StoreSuite) TestSaveInsertedRowNotFound(c *C) {
	// The reported identity is not the id column of the row, e.g. a TEXT
	// primary key on SQLite.
	exec := &recordingExecutor{results: []*sqlrecord.Result{
		{LastInsertID: 7, RowsAffected: 1},
		{Rows: []sqlrecord.Row{}},
	}}
	store := sqlrecord.NewStore(exec, sqlrecord.SQLite, nil)

	saved, err := store.Save(context.Background(), sqlrecord.NewRecord("token").Set("name", sqlrecord.Scalar("x")))
	c.Assert(errx.Is(err, sqlrecord.ErrQuery), Equals, true)
	c.Check(saved, IsNil)
	c.Check(exec.queries(), DeepEquals, []string{
		"INSERT INTO tokens (name) VALUES (?)",
		"SELECT * FROM tokens WHERE id = ?",
	})
}

func (s *StoreSuite) TestSaveExecuteErrorPropagates(c *C) {
	cause := sqlrecord.ErrConnection.WithReason(errors.New("pool exhausted"))
	exec := &recordingExecutor{err: cause}
	store := sqlrecord.NewStore(exec, sqlrecord.MySQL, nil)

	m := newUser().Set("firstname", sqlrecord.Scalar("toto"))
	_, err := store.Save(context.Background(), m)
	c.Assert(errx.Is(err, sqlrecord.ErrConnection), Equals, true)
	c.Check(m.Body().Keys(), DeepEquals, []string{"firstname"})
}

func (s *StoreSuite) TestOperationsNeedID(c *C) {
	exec := &recordingExecutor{}
	store := sqlrecord.NewStore(exec, sqlrecord.Postgres, nil)
	ctx := context.Background()
	m := newUser().Set("firstname", sqlrecord.Scalar("toto"))

	_, err := store.Read(ctx, m)
	c.Check(errx.Is(err, sqlrecord.ErrPrecondition), Equals, true)
	_, err = store.Update(ctx, m)
	c.Check(errx.Is(err, sqlrecord.ErrPrecondition), Equals, true)
	ok, err := store.Delete(ctx, m)
	c.Check(errx.Is(err, sqlrecord.ErrPrecondition), Equals, true)
	c.Check(ok, Equals, false)
	_, err = store.ArrayAppend(ctx, m, "tags", "a")
	c.Check(errx.Is(err, sqlrecord.ErrPrecondition), Equals, true)
	_, err = store.ArrayRemove(ctx, m, "tags", "a")
	c.Check(errx.Is(err, sqlrecord.ErrPrecondition), Equals, true)

	c.Check(exec.calls, HasLen, 0)
}

func (s *StoreSuite) TestReadNotFound(c *C) {
	exec := &recordingExecutor{}
	store := sqlrecord.NewStore(exec, sqlrecord.MySQL, nil)
	m := newUser().Set("id", sqlrecord.Scalar(int64(404)))
	got, err := store.Read(context.Background(), m)
	c.Assert(err, IsNil)
	c.Check(got, IsNil)
	c.Check(m.Body().Keys(), DeepEquals, []string{"id"})
}

func (s *StoreSuite) TestReadTableOverride(c *C) {
	exec := &recordingExecutor{}
	store := sqlrecord.NewStore(exec, sqlrecord.MySQL, nil)
	m := sqlrecord.NewRecord("person", sqlrecord.WithTable("people")).
		Set("id", sqlrecord.Scalar(1))
	_, err := store.Read(context.Background(), m)
	c.Assert(err, IsNil)
	c.Check(exec.queries(), DeepEquals, []string{"SELECT * FROM people WHERE id = ?"})
}

func (s *StoreSuite) TestUpdate(c *C) {
	exec := &recordingExecutor{results: []*sqlrecord.Result{
		{RowsAffected: 1},
		{Rows: []sqlrecord.Row{{"id": int64(1), "firstname": "toto2", "lastname": "robert", "favorites": `[1,2,{"a":2}]`}}},
	}}
	store := sqlrecord.NewStore(exec, sqlrecord.Postgres, nil)

	m := newUser().
		Set("id", sqlrecord.Scalar(int64(1))).
		Set("firstname", sqlrecord.Scalar("toto2")).
		Set("favorites", sqlrecord.Structured([]any{1, 2, map[string]any{"a": 2}}))
	got, err := store.Update(context.Background(), m)
	c.Assert(err, IsNil)
	c.Assert(got, NotNil)

	c.Assert(exec.calls, HasLen, 2)
	c.Check(exec.calls[0].query, Equals, "UPDATE users SET firstname = $1, favorites = $2 WHERE id = $3")
	c.Check(exec.calls[0].args, DeepEquals, []any{"toto2", `[1,2,{"a":2}]`, int64(1)})
	c.Check(exec.calls[1].query, Equals, "SELECT * FROM users WHERE id = $1")

	c.Check(m.Body().Value("lastname"), Equals, "robert")
	c.Check(m.Body().Value("favorites"), DeepEquals, []any{float64(1), float64(2), map[string]any{"a": float64(2)}})
}

func (s *StoreSuite) TestUpdateOnlyID(c *C) {
	exec := &recordingExecutor{}
	store := sqlrecord.NewStore(exec, sqlrecord.MySQL, nil)
	m := newUser().Set("id", sqlrecord.Scalar(int64(1)))
	_, err := store.Update(context.Background(), m)
	c.Assert(err, IsNil)
	c.Check(exec.queries(), DeepEquals, []string{"SELECT * FROM users WHERE id = ?"})
}

func (s *StoreSuite) TestDelete(c *C) {
	exec := &recordingExecutor{results: []*sqlrecord.Result{
		{RowsAffected: 1},
		{RowsAffected: 0},
	}}
	store := sqlrecord.NewStore(exec, sqlrecord.MySQL, nil)
	m := newUser().Set("id", sqlrecord.Scalar(int64(1)))

	deleted, err := store.Delete(context.Background(), m)
	c.Assert(err, IsNil)
	c.Check(deleted, Equals, true)
	deleted, err = store.Delete(context.Background(), m)
	c.Assert(err, IsNil)
	c.Check(deleted, Equals, false)
	c.Check(exec.calls[0].query, Equals, "DELETE FROM users WHERE id = ?")
	c.Check(exec.calls[0].args, DeepEquals, []any{int64(1)})
}

func (s *StoreSuite) TestArrayOpsUnsupported(c *C) {
	for _, d := range []sqlrecord.Dialect{sqlrecord.MySQL, sqlrecord.SQLite, sqlrecord.Dqlite} {
		exec := &recordingExecutor{}
		store := sqlrecord.NewStore(exec, d, nil)
		m := newUser().Set("id", sqlrecord.Scalar(int64(1)))

		_, err := store.ArrayAppend(context.Background(), m, "tags", "a")
		c.Check(errx.Is(err, sqlrecord.ErrUnsupported), Equals, true, Commentf("dialect %s", d.Name()))
		_, err = store.ArrayRemove(context.Background(), m, "tags", "a")
		c.Check(errx.Is(err, sqlrecord.ErrUnsupported), Equals, true, Commentf("dialect %s", d.Name()))
		c.Check(exec.calls, HasLen, 0)
	}
}

func (s *StoreSuite) TestArrayAppend(c *C) {
	exec := &recordingExecutor{results: []*sqlrecord.Result{
		{Rows: []sqlrecord.Row{{"id": int64(1), "tags": "{a,b}"}}},
		{},
	}}
	store := sqlrecord.NewStore(exec, sqlrecord.Postgres, nil)
	m := newUser().Set("id", sqlrecord.Scalar(int64(1)))

	got, err := store.ArrayAppend(context.Background(), m, "tags", "b")
	c.Assert(err, IsNil)
	c.Assert(got, NotNil)
	c.Check(exec.calls[0].query, Equals,
		"UPDATE users SET tags = array_append(tags, $1) WHERE id = $2 AND NOT ($3 = ANY(tags)) RETURNING *")
	c.Check(exec.calls[0].args, DeepEquals, []any{"b", int64(1), "b"})
	c.Check(m.Body().Value("tags"), Equals, "{a,b}")

	// Already present: no row comes back and the model is left alone.
	m.Body().Set("tags", sqlrecord.Scalar("unchanged"))
	_, err = store.ArrayAppend(context.Background(), m, "tags", "b")
	c.Assert(err, IsNil)
	c.Check(m.Body().Value("tags"), Equals, "unchanged")
}

func (s *StoreSuite) TestArrayRemove(c *C) {
	exec := &recordingExecutor{results: []*sqlrecord.Result{
		{Rows: []sqlrecord.Row{{"id": int64(1), "tags": "{a}"}}},
	}}
	store := sqlrecord.NewStore(exec, sqlrecord.Postgres, nil)
	m := newUser().Set("id", sqlrecord.Scalar(int64(1)))

	_, err := store.ArrayRemove(context.Background(), m, "tags", "b")
	c.Assert(err, IsNil)
	c.Check(exec.calls[0].query, Equals, "UPDATE users SET tags = array_remove(tags, $1) WHERE id = $2 RETURNING *")
	c.Check(exec.calls[0].args, DeepEquals, []any{"b", int64(1)})
	c.Check(m.Body().Value("tags"), Equals, "{a}")
}

func (s *StoreSuite) TestExecuteRebinds(c *C) {
	exec := &recordingExecutor{}
	store := sqlrecord.NewStore(exec, sqlrecord.Postgres, nil)
	_, err := store.Execute(context.Background(), "SELECT * FROM users WHERE firstname = ? AND lastname = ?", "toto", "robert")
	c.Assert(err, IsNil)
	c.Check(exec.calls[0].query, Equals, "SELECT * FROM users WHERE firstname = $1 AND lastname = $2")
	c.Check(exec.calls[0].args, DeepEquals, []any{"toto", "robert"})
}

func (s *StoreSuite) TestOpenWithoutConfig(c *C) {
	logger := &recordLogger{}
	store, err := sqlrecord.Open(context.Background(), nil, logger)
	c.Assert(errx.Is(err, sqlrecord.ErrDisabled), Equals, true)
	c.Check(store, IsNil)
	c.Check(logger.tags(), DeepEquals, []string{"store"})
}

func (s *StoreSuite) TestNewUnknownDriver(c *C) {
	_, err := sqlrecord.New(openSQLite(c), "oracle", nil)
	c.Assert(err, ErrorMatches, `cannot create store: unsupported driver "oracle"`)
}
