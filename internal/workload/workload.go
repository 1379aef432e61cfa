// Package workload drives a unit's process through the runtime that
// supervises it: applying configuration layers, starting, stopping and
// reading its output.
package workload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Override selects how a layer combines with existing configuration.
type Override string

const (
	// OverrideMerge overwrites the values it sets and keeps the rest.
	OverrideMerge Override = "merge"
	// OverrideReplace discards the existing service definition.
	OverrideReplace Override = "replace"
)

// Startup values for ServiceSpec.
const (
	StartupEnabled  = "enabled"
	StartupDisabled = "disabled"
)

// ServiceSpec is the service definition carried by a layer.
type ServiceSpec struct {
	Name        string
	Summary     string
	Command     string
	Startup     string
	Environment map[string]string
}

// Status is the runtime view of a service.
type Status struct {
	Exists  bool
	Running bool
}

// Runtime is the process supervisor for one execution context.
type Runtime interface {
	ApplyLayer(ctx context.Context, label string, override Override, spec ServiceSpec) error
	Start(ctx context.Context, service string) error
	Stop(ctx context.Context, service string) error
	ServiceStatus(ctx context.Context, service string) (Status, error)
	// StreamLogs returns the service output. With follow set the stream
	// starts at the current end and stays open until closed or ctx is done.
	StreamLogs(ctx context.Context, service string, follow bool) (io.ReadCloser, error)
}

// FilePusher is implemented by runtimes that can place files inside the
// workload's filesystem.
type FilePusher interface {
	Push(ctx context.Context, path string, content []byte) error
}

// Factory returns the runtime serving a named container.
type Factory interface {
	RuntimeFor(container string) (Runtime, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(container string) (Runtime, error)

// RuntimeFor calls f.
func (f FactoryFunc) RuntimeFor(container string) (Runtime, error) {
	return f(container)
}

// Snapshot is the configuration a workload is launched with.
type Snapshot struct {
	Command     string            `json:"command"`
	Environment map[string]string `json:"environment"`
}

// Hash returns a stable digest of the snapshot content.
func (s Snapshot) Hash() string {
	keys := make([]string, 0, len(s.Environment))
	for k := range s.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	_, _ = fmt.Fprintf(h, "command=%q\n", s.Command)
	for _, k := range keys {
		_, _ = fmt.Fprintf(h, "%q=%q\n", k, s.Environment[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RuntimeUnavailableError means the runtime could not be reached. The
// operation may succeed later without any change on the caller's side.
type RuntimeUnavailableError struct {
	Operation string
	Service   string
	Cause     error
}

// Error implements the error interface.
func (e *RuntimeUnavailableError) Error() string {
	return fmt.Sprintf("runtime unavailable during %s of %s: %v", e.Operation, e.Service, e.Cause)
}

// Unwrap returns the underlying error.
func (e *RuntimeUnavailableError) Unwrap() error {
	return e.Cause
}

// NewRuntimeUnavailableError creates a RuntimeUnavailableError.
func NewRuntimeUnavailableError(operation, service string, cause error) *RuntimeUnavailableError {
	return &RuntimeUnavailableError{Operation: operation, Service: service, Cause: cause}
}

// IsRuntimeUnavailable reports whether err contains a RuntimeUnavailableError.
func IsRuntimeUnavailable(err error) bool {
	var e *RuntimeUnavailableError
	return errors.As(err, &e)
}

// ServiceError means the runtime was reached but the service operation failed.
type ServiceError struct {
	Operation string
	Service   string
	Cause     error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s failed during %s: %v", e.Service, e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a ServiceError.
func NewServiceError(operation, service string, cause error) *ServiceError {
	return &ServiceError{Operation: operation, Service: service, Cause: cause}
}

// IsServiceError reports whether err contains a ServiceError.
func IsServiceError(err error) bool {
	var e *ServiceError
	return errors.As(err, &e)
}
