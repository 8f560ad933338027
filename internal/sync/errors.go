package sync

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories double as metric label values.
const (
	CategoryPrecondition = "precondition"
	CategoryConnectivity = "connectivity"
	CategorySchema       = "schema"
	CategoryApply        = "apply"
	CategoryInternal     = "internal"
)

// PreconditionError signals a missing prerequisite (credentials, tool
// dependency, or the local store when a skip-download run requires it).
// Nothing has been attempted yet when one of these is returned.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precondition failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// ConnectivityError signals that the remote columnar source was unreachable
// or rejected the configured credentials.
type ConnectivityError struct {
	Endpoint string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("remote source %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// SchemaError signals that an expected object or table is missing or
// malformed, either in the remote source or the local store.
type SchemaError struct {
	Object string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error for %s: %v", e.Object, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ApplyError signals that the remote execution target returned a failure for
// one unit-of-work file. Output carries the target's stdout/stderr verbatim;
// files after the failing one were never invoked.
type ApplyError struct {
	File     string
	ExitCode int
	Output   string
	Err      error
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("apply failed for %s (exit code %d)", e.File, e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Categorize maps an error to its taxonomy label for metrics and summaries.
func Categorize(err error) string {
	var pre *PreconditionError
	var conn *ConnectivityError
	var schema *SchemaError
	var apply *ApplyError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pre):
		return CategoryPrecondition
	case errors.As(err, &conn):
		return CategoryConnectivity
	case errors.As(err, &schema):
		return CategorySchema
	case errors.As(err, &apply):
		return CategoryApply
	default:
		return CategoryInternal
	}
}
