// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"net/http"

	gwerrors "github.com/R3E-Network/api-gateway/infrastructure/errors"
	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/infrastructure/logging"
	"github.com/R3E-Network/api-gateway/internal/repository"
)

// IPGuardMiddleware is pipeline stage 3 (§4.1, §4.5): reject if the client
// IP is on the active block list, or — when allowlist mode is active —
// reject unless it carries an active allow rule.
type IPGuardMiddleware struct {
	ipRules       *repository.IPRuleStore
	allowlistMode bool
	logger        *logging.Logger
}

// NewIPGuardMiddleware creates the IP rules stage.
func NewIPGuardMiddleware(ipRules *repository.IPRuleStore, allowlistMode bool, logger *logging.Logger) *IPGuardMiddleware {
	return &IPGuardMiddleware{ipRules: ipRules, allowlistMode: allowlistMode, logger: logger}
}

// Handler returns the IP guard middleware handler.
func (m *IPGuardMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := ClientIPFrom(ctx)

		block, err := m.ipRules.ActiveBlockForIP(ctx, ip)
		if err != nil && err != repository.ErrNotFound {
			m.logger.WithError(err).Warn("ip guard: lookup active block")
		} else if block != nil {
			m.writeBlocked(w, r, gwerrors.IPBlocked(ip))
			return
		}

		if m.allowlistMode {
			allow, err := m.ipRules.ActiveAllowForIP(ctx, ip)
			if err != nil && err != repository.ErrNotFound {
				m.logger.WithError(err).Warn("ip guard: lookup active allow")
			}
			if allow == nil {
				m.writeBlocked(w, r, gwerrors.IPNotAllowed(ip))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *IPGuardMiddleware) writeBlocked(w http.ResponseWriter, r *http.Request, svcErr *gwerrors.ServiceError) {
	m.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"ip":   ClientIPFrom(r.Context()),
		"code": svcErr.Code,
	}).Warn("ip guard: request rejected")
	httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
}
