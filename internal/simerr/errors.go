// Package simerr defines the structured error kinds shared by the simulation
// core. Each kind unwraps to a sentinel so callers can branch with errors.Is
// and still extract the offending field, formula, or lever with errors.As.
package simerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or out-of-range input parameters.
	ErrValidation = errors.New("validation failed")

	// ErrCalculation marks violated formula preconditions.
	ErrCalculation = errors.New("calculation failed")

	// ErrPersistence marks key-value store read or write failures.
	ErrPersistence = errors.New("persistence failed")

	// ErrPrecondition marks operations attempted out of order.
	ErrPrecondition = errors.New("precondition not met")
)

// ValidationError identifies the input field that was rejected.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidation builds a ValidationError.
func NewValidation(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// CalculationError identifies the formula, and the lever when inside the
// mitigation search, whose preconditions failed.
type CalculationError struct {
	Formula string
	Lever   string
	Reason  string
	Err     error
}

func (e *CalculationError) Error() string {
	msg := e.Formula
	if e.Lever != "" {
		msg = e.Lever + "/" + e.Formula
	}
	if e.Err != nil {
		return fmt.Sprintf("calculation %s: %s: %v", msg, e.Reason, e.Err)
	}
	return fmt.Sprintf("calculation %s: %s", msg, e.Reason)
}

// Is reports ErrCalculation for every CalculationError.
func (e *CalculationError) Is(target error) bool {
	return target == ErrCalculation
}

func (e *CalculationError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failure of the key-value collaborator.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %q: %v", e.Op, e.Key, e.Err)
}

// Is reports ErrPersistence for every PersistenceError.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PreconditionError reports an operation attempted before its requirement held.
type PreconditionError struct {
	Operation   string
	Requirement string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s requires %s", e.Operation, e.Requirement)
}

func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}

// IsClientError returns true if the error is due to invalid caller input or ordering.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrPrecondition)
}
