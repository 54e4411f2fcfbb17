package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeInvalidToken, "test message", http.StatusUnauthorized),
			want: "[INVALID_TOKEN] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[INTERNAL_ERROR] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)

	assert.Equal(t, underlying, err.Unwrap())
	assert.True(t, errors.Is(err, underlying))
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeValidation, "bad input", http.StatusBadRequest).
		WithDetails("field", "email").
		WithDetails("reason", "required")

	assert.Equal(t, "email", err.Details["field"])
	assert.Equal(t, "required", err.Details["reason"])
}

func TestGetServiceError(t *testing.T) {
	svcErr := RateLimitExceeded("token_bucket", 3, 0)
	wrapped := errors.New("context: " + svcErr.Error())

	assert.True(t, IsServiceError(svcErr))
	assert.False(t, IsServiceError(wrapped))
	assert.Equal(t, svcErr, GetServiceError(svcErr))
	assert.Equal(t, http.StatusTooManyRequests, GetHTTPStatus(svcErr))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(wrapped))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err    *ServiceError
		status int
		class  string
	}{
		{MissingCredentials(), http.StatusUnauthorized, "authentication"},
		{InvalidToken(nil), http.StatusUnauthorized, "authentication"},
		{TokenExpired(), http.StatusUnauthorized, "authentication"},
		{TokenRevoked(), http.StatusUnauthorized, "authentication"},
		{TokenVersionMismatch(), http.StatusUnauthorized, "authentication"},
		{InvalidAPIKey(), http.StatusUnauthorized, "authentication"},
		{APIKeyExpired(), http.StatusUnauthorized, "authentication"},
		{InsufficientScope("admin:write"), http.StatusForbidden, "authorization"},
		{IPBlocked("203.0.113.7"), http.StatusForbidden, "authorization"},
		{IPNotAllowed("203.0.113.7"), http.StatusForbidden, "authorization"},
		{APIDisabled("payments"), http.StatusForbidden, "authorization"},
		{RouteNotFound("GET", "/nope"), http.StatusNotFound, "not_found"},
		{RateLimitExceeded("fixed_window", 5, 0), http.StatusTooManyRequests, "rate_limit"},
		{RateLimiterError(errors.New("redis down")), http.StatusServiceUnavailable, "rate_limit"},
		{UpstreamError("payments", errors.New("dial tcp")), http.StatusBadGateway, "server"},
		{UpstreamTimeout("payments"), http.StatusGatewayTimeout, "server"},
		{Validation("email", "required"), http.StatusBadRequest, "validation"},
		{Internal("boom", errors.New("x")), http.StatusInternalServerError, "server"},
	}

	for _, tc := range cases {
		t.Run(string(tc.err.Code), func(t *testing.T) {
			assert.Equal(t, tc.status, tc.err.HTTPStatus)
			assert.Equal(t, tc.class, Classify(tc.err.Code))
		})
	}
}
