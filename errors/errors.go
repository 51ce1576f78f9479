// Package errors provides gridcache's error handling: a thin layer over
// github.com/cockroachdb/errors for stack traces and wrapping, plus the Kind
// taxonomy in kinds.go that callers use to classify a failure without
// knowing which constructor produced it.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Wrap annotates err with a message and a stack trace, the way config
// loading and other ambient callers report a lower-layer failure.
var Wrap = crdb.Wrap
