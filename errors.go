// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"github.com/shestakovda/errx"

	"github.com/canonical/sqlrecord/internal/pool"
)

// Errors returned by a Store. They are matched with errx.Is; the underlying
// cause, when there is one, is attached as the reason.
var (
	// ErrValidation is returned when a model fails its own validity check,
	// or holds names or values that cannot be written to a statement. No
	// statement is sent.
	ErrValidation = errx.New("invalid model")
	// ErrPrecondition is returned when an operation needs a model identity
	// that is missing. No statement is sent.
	ErrPrecondition = errx.New("precondition failed")
	// ErrConnection is returned when no connection could be checked out.
	ErrConnection = pool.ErrConnection
	// ErrQuery is returned when the database rejects a statement.
	ErrQuery = pool.ErrQuery
	// ErrUnsupported is returned for operations the dialect cannot express.
	ErrUnsupported = errx.New("unsupported operation")
	// ErrDisabled is returned by Open when there is no valid configuration.
	ErrDisabled = errx.New("record store disabled")
)
