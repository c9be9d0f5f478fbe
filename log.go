// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlrecord

import (
	"github.com/golang/glog"
)

// Logger reports errors on a single line tagged with the component they
// come from.
type Logger interface {
	Error(tag string, err error)
}

// DefaultLogger writes errors to glog.
var DefaultLogger Logger = glogLogger{}

type glogLogger struct{}

func (glogLogger) Error(tag string, err error) {
	glog.ErrorDepth(1, tag+": "+err.Error())
}
