// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build dqlite

package pool

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/canonical/go-dqlite/app"
	"github.com/jmoiron/sqlx"
)

// openDqlite starts an embedded dqlite node and opens a database on it. The
// data source name has the form "<data dir>/<database>?address=<host:port>
// &cluster=<host:port>,<host:port>".
func openDqlite(ctx context.Context, dataSourceName string, logger Logger) (*Pool, error) {
	dir, database, options, err := parseDqliteSource(dataSourceName)
	if err != nil {
		return nil, err
	}
	node, err := app.New(dir, options...)
	if err != nil {
		return nil, err
	}
	if err := node.Ready(ctx); err != nil {
		node.Close()
		return nil, err
	}
	db, err := node.Open(ctx, database)
	if err != nil {
		node.Close()
		return nil, err
	}
	return &Pool{db: sqlx.NewDb(db, "dqlite"), logger: logger, closers: []io.Closer{node}}, nil
}

func parseDqliteSource(dataSourceName string) (dir, database string, options []app.Option, err error) {
	u, err := url.Parse(dataSourceName)
	if err != nil {
		return "", "", nil, err
	}
	dir, database = u.Path, "sqlrecord"
	if i := strings.LastIndexByte(u.Path, '/'); i >= 0 {
		dir, database = u.Path[:i], u.Path[i+1:]
	}
	q := u.Query()
	if address := q.Get("address"); address != "" {
		options = append(options, app.WithAddress(address))
	}
	if cluster := q.Get("cluster"); cluster != "" {
		options = append(options, app.WithCluster(strings.Split(cluster, ",")))
	}
	return dir, database, options, nil
}
