// Package errors provides structured error types for the Cookery application.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the build pipeline
//   - Machine-readable error codes for programmatic handling
//   - Explicit recoverability classification consumed by the orchestrator
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Every failure the pipeline can produce carries one of the codes below.
// The codes split into three recoverability classes:
//
//   - Run-fatal: INVALID_CONSTRAINT, RESOLVER_UNAVAILABLE, GRAPH_CLOSURE,
//     GRAPH_CYCLE — nothing has been built yet or the resolved data is
//     untrustworthy, so the whole run aborts.
//   - Actionable: DEPENDENCY_CONFLICT — a legitimate solver outcome, reported
//     to the user verbatim so they can add a disambiguating constraint.
//   - Node-local: BUILD_FAILURE, INSTALL_ERROR — fail a single plan node and
//     skip its transitive dependents, while independent work keeps running.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidConstraint, "bad range %q", raw)
//	if errors.Is(err, errors.ErrCodeInvalidConstraint) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeInstall, origErr, "publish %s", dest)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidConstraint Code = "INVALID_CONSTRAINT"
	ErrCodeInvalidRecipe     Code = "INVALID_RECIPE"
	ErrCodeInvalidPath       Code = "INVALID_PATH"

	// Resolution errors
	ErrCodeRecipeNotFound      Code = "RECIPE_NOT_FOUND"
	ErrCodeResolverUnavailable Code = "RESOLVER_UNAVAILABLE"
	ErrCodeConflict            Code = "DEPENDENCY_CONFLICT"

	// Resolver contract violations (always a bug upstream, never recoverable)
	ErrCodeClosure Code = "GRAPH_CLOSURE"
	ErrCodeCycle   Code = "GRAPH_CYCLE"

	// Node-local execution errors
	ErrCodeBuildFailure Code = "BUILD_FAILURE"
	ErrCodeInstall      Code = "INSTALL_ERROR"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// RunFatal reports whether an error must abort the entire run.
// Conflicts are deliberately excluded: they end resolution but are a
// legitimate solver outcome, not an internal failure.
func RunFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidConstraint, ErrCodeInvalidRecipe, ErrCodeInvalidPath,
		ErrCodeRecipeNotFound, ErrCodeResolverUnavailable,
		ErrCodeClosure, ErrCodeCycle:
		return true
	}
	return false
}

// NodeLocal reports whether an error fails a single plan node without
// aborting independent work already scheduled.
func NodeLocal(err error) bool {
	switch GetCode(err) {
	case ErrCodeBuildFailure, ErrCodeInstall:
		return true
	}
	return false
}
