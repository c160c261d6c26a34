package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"redline/api/internal/auth"
	"redline/api/internal/review"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// asDomainError translates service and review errors into the response the
// API returns. Unknown errors become an opaque SERVER_ERROR.
func asDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	// Checked before validation: a stored row that fails to decode wraps the
	// decoder's ValidationError.
	var integrity *review.IntegrityError
	if errors.As(err, &integrity) {
		return domainError(http.StatusInternalServerError, "DATA_INTEGRITY", "Stored decision log cannot be replayed", map[string]any{
			"decisionId": integrity.DecisionID,
		})
	}
	var validation *review.ValidationError
	if errors.As(err, &validation) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Error(), map[string]any{"field": validation.Field})
	}
	var denied *review.AuthorizationError
	if errors.As(err, &denied) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Not allowed to decide on this finding", map[string]any{
			"findingId": denied.FindingID,
			"reason":    denied.Reason,
		})
	}
	if errors.Is(err, review.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	var storeErr *review.StoreError
	if errors.As(err, &storeErr) {
		return domainError(http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Storage temporarily unavailable, retry the request", map[string]any{"retryable": true})
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
}
