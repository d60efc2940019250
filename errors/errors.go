// Package errors provides error handling for opsexec.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle missing execution
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Sentinel errors for the execution engine taxonomy.
// Use these with errors.Is() for type-safe error checking and wrap
// them with errors.Wrap() to add context while preserving the type.
var (
	// ErrValidation indicates a malformed or unsatisfiable request.
	// Detected before any process is spawned; never causes partial side effects.
	ErrValidation = New("validation failed")

	// ErrNotFound indicates the referenced execution identifier is not
	// present in the record store.
	ErrNotFound = New("execution not found")

	// ErrSpawnFailure indicates the OS refused to create the process
	// (missing executable, permission denied).
	ErrSpawnFailure = New("process spawn failed")

	// ErrTimeout indicates a process exceeded its allotted duration and
	// was forcibly terminated.
	ErrTimeout = New("execution timed out")

	// ErrCancelled indicates a process was terminated due to an explicit
	// cancellation request.
	ErrCancelled = New("execution cancelled")

	// ErrIOFailure indicates an error while reading output streams or
	// writing the execution log.
	ErrIOFailure = New("stream io failure")

	// ErrTerminal indicates an operation attempted a transition out of a
	// terminal execution status.
	ErrTerminal = New("execution already terminal")
)

// IsValidation checks if an error is or wraps ErrValidation.
func IsValidation(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewValidationError creates a validation error with a formatted message.
func NewValidationError(format string, args ...interface{}) error {
	return Wrap(ErrValidation, Newf(format, args...).Error())
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
