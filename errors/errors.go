// Package errors provides error handling for typegraph.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Sentinel errors for every typed failure the graph core can produce
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
//	if errors.Is(err, errors.ErrSchemaViolation) {
//	    // handle rejected mutation
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
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions and panics
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the graph core.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrSchemaViolation indicates a rejected mutation: overriding a final
	// attribute, a cyclic or redundant isa edge, or a covariance failure.
	// The more specific sentinels below all wrap into this one conceptually;
	// check the specific sentinel when the cause matters.
	ErrSchemaViolation = New("schema violation")

	// ErrNotEditable indicates an attempt to change the value of a
	// non-editable attribute
	ErrNotEditable = New("attribute not editable")

	// ErrValidation indicates a validator declined a proposed attribute value
	ErrValidation = New("value rejected by validator")

	// ErrCyclicIsa indicates an isa edge that would make the type hierarchy circular
	ErrCyclicIsa = New("cyclic isa edge")

	// ErrRedundantIsa indicates an isa edge whose target is already a
	// transitive ancestor of the source
	ErrRedundantIsa = New("redundant isa edge")

	// ErrCovariance indicates a relation endpoint that is not a subtype of
	// the corresponding endpoint of a parent relation type
	ErrCovariance = New("endpoint covariance violation")

	// ErrEntityDead indicates an operation on an entity that is deleting or deleted
	ErrEntityDead = New("entity is deleted")

	// ErrUnresolvedRef indicates an endpoint reference that could not be
	// resolved to a live entity during restore
	ErrUnresolvedRef = New("unresolved entity reference")

	// ErrNotFound indicates the requested entity or attribute does not exist
	ErrNotFound = New("not found")
)

// IsSchemaViolation checks if an error is any of the synchronous rejection
// sentinels: final-attribute override, non-editable mutation, cyclic or
// redundant isa edge, or covariance failure.
func IsSchemaViolation(err error) bool {
	return err != nil && IsAny(err,
		ErrSchemaViolation, ErrNotEditable, ErrCyclicIsa, ErrRedundantIsa, ErrCovariance)
}

// IsValidationError checks if an error is or wraps ErrValidation
func IsValidationError(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewSchemaViolation creates a schema-violation error with a formatted message
func NewSchemaViolation(format string, args ...interface{}) error {
	return Wrap(ErrSchemaViolation, Newf(format, args...).Error())
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
