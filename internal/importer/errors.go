package importer

import (
	"errors"
	"fmt"
)

// UnknownResourceCodeError reports a space code absent from the code map.
type UnknownResourceCodeError struct {
	Code string
}

func (e *UnknownResourceCodeError) Error() string {
	return fmt.Sprintf("unknown space code %q", e.Code)
}

// UnresolvedResourceError reports a mapped lab name with no matching lab.
type UnresolvedResourceError struct {
	Code    string
	LabName string
}

func (e *UnresolvedResourceError) Error() string {
	return fmt.Sprintf("lab %q (code %q) does not exist", e.LabName, e.Code)
}

// MalformedRowError reports a row missing or carrying an unreadable field.
type MalformedRowError struct {
	Field  string
	Reason string
	Err    error
}

func (e *MalformedRowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// RowFailure records why a sheet row produced no drafts.
type RowFailure struct {
	Row  int
	Code string
	Err  error
}

// Kind returns a stable label for the failure.
func (f RowFailure) Kind() string {
	var (
		unknown    *UnknownResourceCodeError
		unresolved *UnresolvedResourceError
		malformed  *MalformedRowError
	)
	switch {
	case errors.As(f.Err, &unknown):
		return "unknown_code"
	case errors.As(f.Err, &unresolved):
		return "unresolved_lab"
	case errors.As(f.Err, &malformed):
		return "malformed_row"
	default:
		return "unexpected"
	}
}

func (f RowFailure) Error() string {
	return fmt.Sprintf("row %d: %v", f.Row, f.Err)
}
