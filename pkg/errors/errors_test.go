package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Sentinel error identity ---

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrAlreadyExists, ErrInvalidInput, ErrUnauthorized,
		ErrForbidden, ErrInternal, ErrTimeout,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

// --- AppError behavior ---

func TestAppError_ErrorString_WithWrappedError(t *testing.T) {
	inner := fmt.Errorf("db connection lost")
	appErr := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: inner}
	assert.Contains(t, appErr.Error(), "INTERNAL_ERROR")
	assert.Contains(t, appErr.Error(), "something broke")
	assert.Contains(t, appErr.Error(), "db connection lost")
}

func TestAppError_ErrorString_WithoutWrappedError(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "user not found"}
	assert.Equal(t, "NOT_FOUND: user not found", appErr.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "nope", Err: ErrNotFound}
	assert.True(t, errors.Is(appErr, ErrNotFound))
}

// --- Constructors ---

func TestConstructors_StatusAndSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		status   int
		code     string
		sentinel error
	}{
		{"not found", NotFound("user", "u-1"), http.StatusNotFound, "NOT_FOUND", ErrNotFound},
		{"already exists", AlreadyExists("user", "email", "a@b.c"), http.StatusConflict, "ALREADY_EXISTS", ErrAlreadyExists},
		{"conflict", Conflict("EMAIL_EXISTS", "email already exists"), http.StatusBadRequest, "EMAIL_EXISTS", ErrAlreadyExists},
		{"invalid input", InvalidInput("bad"), http.StatusBadRequest, "INVALID_INPUT", ErrInvalidInput},
		{"validation", Validation("role invariant", errors.New("caregiverID missing")), http.StatusBadRequest, "VALIDATION_ERROR", ErrInvalidInput},
		{"unauthorized", Unauthorized("no"), http.StatusUnauthorized, "UNAUTHORIZED", ErrUnauthorized},
		{"credentials", InvalidCredentials(), http.StatusUnauthorized, "INVALID_CREDENTIALS", ErrUnauthorized},
		{"forbidden", Forbidden("no"), http.StatusForbidden, "FORBIDDEN", ErrForbidden},
		{"timeout", Timeout("credential store", context.DeadlineExceeded), http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestTimeout_KeepsCause(t *testing.T) {
	err := Timeout("credential store", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Message, "credential store")
}

func TestInternal_HidesCauseFromMessage(t *testing.T) {
	err := Internal(fmt.Errorf("pq: password authentication failed"))
	assert.Equal(t, "an internal error occurred", err.Message)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

// --- HTTPStatus on plain errors ---

func TestHTTPStatus_WrappedSentinels(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("get user: %w", ErrNotFound)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Wrap(ErrAlreadyExists, "insert")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Wrap(ErrInvalidInput, "parse")))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Wrap(ErrUnauthorized, "verify")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(Wrap(ErrForbidden, "authorize")))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(Wrap(context.DeadlineExceeded, "find user")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestWrap_PreservesChain(t *testing.T) {
	err := Wrap(ErrNotFound, "lookup")
	require.Error(t, err)
	assert.Equal(t, "lookup: resource not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
}
