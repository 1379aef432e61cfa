package cluster

import (
	"errors"
	"fmt"
)

// PermissionDeniedError reports that the cluster refused an operation.
type PermissionDeniedError struct {
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for %s: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *PermissionDeniedError) Unwrap() error {
	return e.Cause
}

// IsPermissionDenied reports whether err contains a PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var pd *PermissionDeniedError
	return errors.As(err, &pd)
}

// ExhaustedError reports that a one-time operation kept failing until its
// attempts ran out. The unit needs operator intervention.
type ExhaustedError struct {
	Unit      string
	Operation string
	Attempts  int
	Cause     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s for %s failed after %d attempts: %v", e.Operation, e.Unit, e.Attempts, e.Cause)
}

// Unwrap returns the last failure.
func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// IsExhausted reports whether err contains an ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
