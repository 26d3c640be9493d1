package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"invalid credentials", ErrInvalidCredentials, http.StatusUnauthorized},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"invalid refresh token", ErrInvalidRefreshToken, http.StatusUnauthorized},
		{"account disabled", ErrAccountDisabled, http.StatusForbidden},
		{"user not found", ErrUserNotFound, http.StatusNotFound},
		{"email exists", ErrEmailExists, http.StatusConflict},
		{"internal", ErrInternal, http.StatusInternalServerError},
		{"service unavailable", ErrServiceUnavailable, http.StatusServiceUnavailable},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("ToHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := WrapError(ErrInternal, cause)

	if !errors.Is(wrapped, ErrInternal) {
		t.Error("wrapped error should match its sentinel")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should expose the underlying cause")
	}
	if ToHTTPStatus(wrapped) != http.StatusInternalServerError {
		t.Error("wrapping must not change the HTTP mapping")
	}
}

func TestGetErrorMessage_HidesWrappedDetail(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	wrapped := WrapError(ErrInternal, cause)

	msg := GetErrorMessage(wrapped)
	if msg != ErrInternal.Message {
		t.Errorf("GetErrorMessage leaked wrapped detail: %q", msg)
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(ErrEmailExists); got != "EMAIL_EXISTS" {
		t.Errorf("GetErrorCode = %q, want EMAIL_EXISTS", got)
	}
	if got := GetErrorCode(errors.New("boom")); got != "INTERNAL_ERROR" {
		t.Errorf("GetErrorCode for plain error = %q, want INTERNAL_ERROR", got)
	}
}

func TestDomainError_IsMatchesByCode(t *testing.T) {
	same := NewDomainError("EMAIL_EXISTS", "different wording")
	if !errors.Is(same, ErrEmailExists) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(ErrEmailExists, ErrUserNotFound) {
		t.Error("errors with different codes should not match")
	}
}
