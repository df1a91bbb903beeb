// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Data / configuration errors. These point at bad reference data,
	// not at something the user did.
	ErrConfiguration = errors.New("configuration error")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// Engine error kinds. Each one wraps a base kind so generic helpers
// (IsNotFound, IsValidation, ...) keep working.
var (
	ErrNoLivesRemaining = fmt.Errorf("no lives remaining: %w", ErrInvalidState)
	ErrLivesAtCapacity  = fmt.Errorf("lives at capacity: %w", ErrInvalidState)
	ErrInsufficientXP   = fmt.Errorf("insufficient xp: %w", ErrInvalidState)
	ErrInvalidAmount    = fmt.Errorf("invalid amount: %w", ErrValidation)
	ErrUserNotFound     = fmt.Errorf("user not found: %w", ErrNotFound)
	ErrUserExists       = fmt.Errorf("user already exists: %w", ErrAlreadyExists)
	ErrBadgeNotFound    = fmt.Errorf("badge not found: %w", ErrNotFound)
	ErrInvalidMetric    = fmt.Errorf("invalid metric: %w", ErrValidation)
	ErrInvalidCriterion = fmt.Errorf("invalid badge criterion: %w", ErrConfiguration)
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string         // e.g., "progression", "badge", "leaderboard"
	Op      string         // Operation that failed, e.g., "LoseLife", "Debit"
	Kind    error          // Base error type for errors.Is() checking
	Message string         // Human-readable message
	Fields  map[string]any // Caller-visible context: balance, lives, requested...
	Err     error          // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s: %s", e.Domain, e.Op, e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
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

// With returns a copy of the error carrying an extra context field.
func (e *DomainError) With(key string, value any) *DomainError {
	cp := *e
	cp.Fields = make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[key] = value
	return &cp
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

// UserNotFound builds the error stores return for an unknown user id.
func UserNotFound(domain, op, userID string) *DomainError {
	return NewDomainError(domain, op, ErrUserNotFound, "user not found").With("user_id", userID)
}

// FieldsOf extracts context fields from the first DomainError in the chain.
func FieldsOf(err error) map[string]any {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Fields
	}
	return nil
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsStateConflict checks if the error rejects an operation because of the
// user's current state (no lives, not enough XP, ...).
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsConfiguration checks if the error comes from bad reference data.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
