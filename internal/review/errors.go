package review

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a clause, finding or referenced decision does
// not exist.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a malformed or incomplete decision request before
// anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AuthorizationError is returned by the gate when a user may not act on a
// finding in its current state.
type AuthorizationError struct {
	UserID    string
	FindingID string
	Reason    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s may not decide on finding %s: %s", e.UserID, e.FindingID, e.Reason)
}

// IntegrityError marks stored decision data that cannot be replayed. The
// projection for the clause fails as a whole rather than skipping the row.
type IntegrityError struct {
	ClauseID   string
	DecisionID string
	Err        error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("decision log integrity: clause %s decision %s: %v", e.ClauseID, e.DecisionID, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// StoreError wraps a persistence failure. The operation can be retried; an
// append is a single atomic write so nothing partial is left behind.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
