// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Demo saves, reads, updates and deletes a user in the configured database.
//
//	SQLRECORD_DRIVER=sqlite3 SQLRECORD_DATABASE=demo.db go run ./demo
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/canonical/sqlrecord"
	"github.com/canonical/sqlrecord/config"
)

var configPath = flag.String("config", "sqlrecord.yaml", "path of the configuration file")

var schema = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{{
		Id: "1-users",
		Up: []string{`
CREATE TABLE IF NOT EXISTS users (
	id integer PRIMARY KEY AUTOINCREMENT,
	firstname text,
	lastname text,
	favorites text
)`},
		Down: []string{"DROP TABLE users"},
	}},
}

// postgresSchema generates identities with serial and adds an array column.
var postgresSchema = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{{
		Id: "1-users",
		Up: []string{`
CREATE TABLE IF NOT EXISTS users (
	id serial PRIMARY KEY,
	firstname text,
	lastname text,
	favorites text,
	tags text[] NOT NULL DEFAULT '{}'
)`},
		Down: []string{"DROP TABLE users"},
	}},
}

var mysqlSchema = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{{
		Id: "1-users",
		Up: []string{`
CREATE TABLE IF NOT EXISTS users (
	id integer PRIMARY KEY AUTO_INCREMENT,
	firstname text,
	lastname text,
	favorites text
)`},
		Down: []string{"DROP TABLE users"},
	}},
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	driverName, dataSourceName, err := cfg.DataSource()
	if err != nil {
		return nil, err
	}
	var source migrate.MigrationSource
	switch driverName {
	case "sqlite3":
		source = schema
	case "postgres":
		source = postgresSchema
	case "mysql":
		source = mysqlSchema
	default:
		return nil, fmt.Errorf("demo cannot migrate a %s database", driverName)
	}
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.PoolSize())
	n, err := migrate.Exec(db, driverName, source, migrate.Up)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot migrate: %s", err)
	}
	glog.Infof("applied %d migrations", n)
	return db, nil
}

func newUser() *sqlrecord.Record {
	return sqlrecord.NewRecord("user",
		sqlrecord.WithStructured("favorites"),
		sqlrecord.WithValidator(sqlrecord.Required("firstname")),
	)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	store, err := sqlrecord.New(db, cfg.Driver, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	saved, err := store.Save(ctx, newUser().
		Set("firstname", sqlrecord.Scalar("toto")).
		Set("lastname", sqlrecord.Scalar("robert")).
		Set("favorites", sqlrecord.Structured([]any{1, 34, map[string]any{"a": 2}})))
	if err != nil {
		return err
	}
	id, _ := saved.Body().ID()
	fmt.Printf("saved user %v: %v\n", id, saved.Body().Map())

	updated, err := store.Update(ctx, newUser().
		Set("id", sqlrecord.Scalar(id)).
		Set("firstname", sqlrecord.Scalar("toto2")).
		Set("lastname", sqlrecord.Scalar("robert2")))
	if err != nil {
		return err
	}
	fmt.Printf("updated user %v: %v\n", id, updated.Body().Map())

	if store.Dialect().SupportsArrays() {
		tagged, err := store.ArrayAppend(ctx, newUser().Set("id", sqlrecord.Scalar(id)), "tags", "demo")
		if err != nil {
			return err
		}
		fmt.Printf("tagged user %v: %v\n", id, tagged.Body().Value("tags"))
	}

	deleted, err := store.Delete(ctx, newUser().Set("id", sqlrecord.Scalar(id)))
	if err != nil {
		return err
	}
	fmt.Printf("deleted user %v: %t\n", id, deleted)

	read, err := store.Read(ctx, newUser().Set("id", sqlrecord.Scalar(id)))
	if err != nil {
		return err
	}
	fmt.Printf("user %v found after delete: %t\n", id, read != nil)
	return nil
}

func main() {
	flag.Parse()
	defer glog.Flush()
	if err := run(context.Background()); err != nil {
		glog.Errorf("demo: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}
