package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"redline/api/internal/auth"
	"redline/api/internal/review"
)

func TestAsDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "domain error passes through", err: domainError(http.StatusForbidden, "FORBIDDEN", "no", nil), wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "validation", err: &review.ValidationError{Field: "payload.reason", Message: "is required"}, wantStatus: http.StatusUnprocessableEntity, wantCode: "VALIDATION_ERROR"},
		{name: "authorization", err: &review.AuthorizationError{UserID: "u1", FindingID: "f1", Reason: "review capability required"}, wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "integrity", err: &review.IntegrityError{ClauseID: "c1", DecisionID: "d1", Err: errors.New("bad json")}, wantStatus: http.StatusInternalServerError, wantCode: "DATA_INTEGRITY"},
		{name: "integrity wrapping a validation error", err: &review.IntegrityError{ClauseID: "c1", DecisionID: "d1", Err: &review.ValidationError{Field: "payload.reason"}}, wantStatus: http.StatusInternalServerError, wantCode: "DATA_INTEGRITY"},
		{name: "wrapped not found", err: fmt.Errorf("finding f1: %w", review.ErrNotFound), wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "no rows", err: sql.ErrNoRows, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "store", err: &review.StoreError{Op: "list decisions", Err: errors.New("conn reset")}, wantStatus: http.StatusServiceUnavailable, wantCode: "STORE_UNAVAILABLE"},
		{name: "expired token", err: auth.ErrExpiredToken, wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "SERVER_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := asDomainError(tt.err)
			if got.Status != tt.wantStatus || got.Code != tt.wantCode {
				t.Fatalf("asDomainError(%v) = %d %s, want %d %s", tt.err, got.Status, got.Code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestAsDomainErrorHidesInternalDetail(t *testing.T) {
	got := asDomainError(errors.New("pq: password authentication failed for user redline"))
	if got.Message != "Server error" || got.Details != nil {
		t.Fatalf("expected opaque server error, got %+v", got)
	}
}
