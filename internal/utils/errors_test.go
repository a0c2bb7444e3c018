package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorToHTTPStatus(t *testing.T) {
	cases := map[string]int{
		ErrInvalidArgument: http.StatusBadRequest,
		ErrUnauthenticated: http.StatusUnauthorized,
		ErrForbidden:       http.StatusForbidden,
		ErrNotFound:        http.StatusNotFound,
		ErrConflict:        http.StatusConflict,
		ErrTooManyRequests: http.StatusTooManyRequests,
		ErrUnavailable:     http.StatusServiceUnavailable,
		ErrInternal:        http.StatusInternalServerError,
		"SOMETHING_ELSE":   http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, AppErrorToHTTPStatus(code), code)
	}
}

func TestAsAppErrorKeepsClassifiedErrors(t *testing.T) {
	orig := NewConflictError("already voted")
	wrapped := fmt.Errorf("apply vote: %w", orig)

	got := AsAppError(wrapped)
	require.NotNil(t, got)
	assert.Same(t, orig, got)
	assert.True(t, IsErrorCode(wrapped, ErrConflict))
}

func TestAsAppErrorClassifiesTransientFailures(t *testing.T) {
	assert.Equal(t, ErrUnavailable, AsAppError(context.DeadlineExceeded).Code)
	assert.Equal(t, ErrUnavailable, AsAppError(fmt.Errorf("find: %w", gobreaker.ErrOpenState)).Code)
	assert.Equal(t, ErrInternal, AsAppError(errors.New("boom")).Code)
	assert.Nil(t, AsAppError(nil))
}

func TestAppErrorMessageIncludesOrigin(t *testing.T) {
	err := NewUnavailableError("get content", errors.New("connection reset"))
	assert.Contains(t, err.Error(), "connection reset")
	assert.ErrorIs(t, err, err.Origin)
	assert.True(t, IsAuthError(NewForbiddenError("locked")))
	assert.False(t, IsAuthError(NewNotFoundError("missing")))
}
