package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestParseResponseError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		code     string
		contains string
	}{
		{"not found", http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"srv-9"}}`, apperrors.ErrNotFound, "NOT_FOUND", "srv-9"},
		{"bad request", http.StatusBadRequest, `{"error":{"code":"INVALID_INPUT","message":"quantity must be positive"}}`, apperrors.ErrInvalidInput, "INVALID_INPUT", "quantity must be positive"},
		{"unprocessable", http.StatusUnprocessableEntity, `plain text`, apperrors.ErrInvalidInput, "INVALID_INPUT", "plain text"},
		{"conflict", http.StatusConflict, `{"error":{"code":"CONFLICT","message":"duplicate"}}`, apperrors.ErrConflict, "CONFLICT", "duplicate"},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":"UNAUTHORIZED","message":"token expired"}}`, apperrors.ErrUnauthorized, "UNAUTHORIZED", "token expired"},
		{"forbidden", http.StatusForbidden, ``, apperrors.ErrForbidden, "FORBIDDEN", "cart-service"},
		{"rate limited", http.StatusTooManyRequests, ``, apperrors.ErrTransientRemote, "TRANSIENT_REMOTE_FAILURE", "429"},
		{"server error", http.StatusInternalServerError, `{"error":{"code":"INTERNAL_ERROR","message":"db down"}}`, apperrors.ErrTransientRemote, "TRANSIENT_REMOTE_FAILURE", "db down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseResponseError(response(tt.status, tt.body), "cart-service")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.code, appErr.Code)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParseResponseError_UnmappedStatus(t *testing.T) {
	err := ParseResponseError(response(http.StatusGone, ``), "product-catalog")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusGone, appErr.Status)
	assert.Equal(t, "Gone", appErr.Code)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient remote", apperrors.TransientRemote("offline", nil), true},
		{"service unavailable", apperrors.ServiceUnavailable("closing"), true},
		{"open breaker", fmt.Errorf("remote: %w", gobreaker.ErrOpenState), true},
		{"half-open limit", gobreaker.ErrTooManyRequests, true},
		{"network", &net.OpError{Op: "dial", Err: timeoutErr{}}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"unauthorized", apperrors.Unauthorized("token expired"), false},
		{"invalid input", apperrors.InvalidInput("bad"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
