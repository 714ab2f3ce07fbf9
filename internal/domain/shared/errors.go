// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNegativeValue = errors.New("value cannot be negative")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrNotEligible     = errors.New("not eligible")
	ErrExpired         = errors.New("expired")

	// Invariant errors - always a bug, never expected control flow.
	ErrInvariantViolation = errors.New("invariant violation")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTransactionFailed  = errors.New("transaction failed")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "streak", "milestone", "protection"
	Op      string // Operation that failed, e.g., "RecordActivity", "ApplyRepair"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Streak domain errors
var (
	ErrLedgerNotFound     = NewDomainError("streak", "Find", ErrNotFound, "streak ledger not found")
	ErrInvalidUserID      = NewDomainError("streak", "Validate", ErrInvalidID, "invalid user ID")
	ErrNegativeCounter    = NewDomainError("streak", "Validate", ErrInvariantViolation, "streak counter below zero")
	ErrCounterOrdering    = NewDomainError("streak", "Validate", ErrInvariantViolation, "current streak exceeds max streak")
	ErrLostFieldsDangling = NewDomainError("streak", "Validate", ErrInvariantViolation, "lost-streak fields set outside LOST/RECOVERABLE")
)

// Milestone domain errors
var (
	ErrMilestoneExists  = NewDomainError("milestone", "Grant", ErrAlreadyExists, "milestone already granted")
	ErrUnknownMilestone = NewDomainError("milestone", "Check", ErrInvalidInput, "value is not a configured milestone")
)

// Protection domain errors
var (
	ErrNoLostStreak      = NewDomainError("protection", "Repair", ErrNotEligible, "no lost streak to repair")
	ErrRepairWindowOver  = NewDomainError("protection", "Repair", ErrNotEligible, "repair window has expired")
	ErrInvalidItemKind   = NewDomainError("protection", "Grant", ErrInvalidInput, "unknown protection item kind")
	ErrInvalidQuantity   = NewDomainError("protection", "Grant", ErrInvalidInput, "quantity must be positive")
	ErrInsufficientItems = NewDomainError("protection", "Consume", ErrInvariantViolation, "consuming more items than owned")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotEligible checks if the error is a user-visible eligibility rejection.
func IsNotEligible(err error) bool {
	return errors.Is(err, ErrNotEligible)
}

// IsInvariantViolation checks if the error is an internal invariant breach.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsRetryable checks if the operation can be retried from scratch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrConcurrentModification)
}
