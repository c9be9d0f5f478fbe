// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build !dqlite

package pool

import (
	"context"
	"fmt"
)

func openDqlite(context.Context, string, Logger) (*Pool, error) {
	return nil, fmt.Errorf("dqlite support not built in, rebuild with -tags dqlite")
}
