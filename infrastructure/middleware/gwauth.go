// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"net/http"
	"strings"

	gwerrors "github.com/R3E-Network/api-gateway/infrastructure/errors"
	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/infrastructure/logging"
	"github.com/R3E-Network/api-gateway/internal/auth"
	"github.com/R3E-Network/api-gateway/internal/autoblock"
)

// AuthMiddleware is pipeline stage 4 (§4.2): resolve identity via bearer
// token or API key, recording a violation and rejecting on failure.
type AuthMiddleware struct {
	authenticator *auth.Authenticator
	blocker       *autoblock.Blocker
	logger        *logging.Logger
}

// NewAuthMiddleware creates the authentication stage.
func NewAuthMiddleware(authenticator *auth.Authenticator, blocker *autoblock.Blocker, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator, blocker: blocker, logger: logger}
}

// Handler returns the authentication middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := ClientIPFrom(ctx)

		result, svcErr := m.authenticate(r)
		if svcErr != nil {
			if kind, ok := violationKindFor(svcErr.Code); ok {
				if err := m.blocker.RecordViolation(ctx, kind, ip); err != nil {
					m.logger.WithError(err).Warn("auth: record violation")
				}
			}
			httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
			return
		}

		if err := m.blocker.ClearViolations(ctx, ip); err != nil {
			m.logger.WithError(err).Warn("auth: clear violations")
		}

		ctx = withAuthResult(ctx, result)
		ctx = logging.WithUserID(ctx, result.UserID)
		ctx = logging.WithRole(ctx, result.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate tries the bearer token surface first, then the API key
// surface, per §4.2's ordering.
func (m *AuthMiddleware) authenticate(r *http.Request) (*auth.Result, *gwerrors.ServiceError) {
	if bearer := bearerToken(r); bearer != "" {
		result, err := m.authenticator.ValidateAccessToken(r.Context(), bearer)
		if err != nil {
			return nil, asServiceError(err)
		}
		return result, nil
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		result, err := m.authenticator.AuthenticateAPIKey(r.Context(), key)
		if err != nil {
			return nil, asServiceError(err)
		}
		return result, nil
	}

	return nil, gwerrors.MissingCredentials()
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

func asServiceError(err error) *gwerrors.ServiceError {
	if svcErr := gwerrors.GetServiceError(err); svcErr != nil {
		return svcErr
	}
	return gwerrors.Internal("authentication failed", err)
}

// violationKindFor maps a failed-authentication error code to the
// auto-blocker violation kind it should count against, per §4.2: expired
// credentials are benign and count toward nothing.
func violationKindFor(code gwerrors.ErrorCode) (autoblock.Kind, bool) {
	switch code {
	case gwerrors.ErrCodeTokenExpired, gwerrors.ErrCodeAPIKeyExpired:
		return "", false
	case gwerrors.ErrCodeInvalidToken:
		return autoblock.KindInvalidToken, true
	case gwerrors.ErrCodeInvalidAPIKey:
		return autoblock.KindInvalidAPIKey, true
	case gwerrors.ErrCodeMissingCredentials, gwerrors.ErrCodeTokenRevoked, gwerrors.ErrCodeTokenVersionMismatch:
		return autoblock.KindAuthFailure, true
	default:
		return autoblock.KindAuthFailure, true
	}
}
