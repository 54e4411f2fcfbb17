// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	gwerrors "github.com/R3E-Network/api-gateway/infrastructure/errors"
	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/infrastructure/logging"
	"github.com/R3E-Network/api-gateway/infrastructure/metrics"
	"github.com/R3E-Network/api-gateway/internal/auth"
	"github.com/R3E-Network/api-gateway/internal/autoblock"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/ratelimiter"
	"github.com/R3E-Network/api-gateway/internal/repository"
	"github.com/R3E-Network/api-gateway/internal/routing"
)

// RateLimitMiddleware is pipeline stage 5 (§4.1, §4.3): resolve the route
// and its policy for the caller's tier, run the strategy atomically, attach
// rate headers, and reject with 429 on denial.
type RateLimitMiddleware struct {
	router   *routing.Router
	policies *repository.PolicyStore
	limiter  *ratelimiter.Limiter
	blocker  *autoblock.Blocker
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewRateLimitMiddleware creates the rate-limit stage. m may be nil, in
// which case rejection counts go unrecorded.
func NewRateLimitMiddleware(router *routing.Router, policies *repository.PolicyStore, limiter *ratelimiter.Limiter, blocker *autoblock.Blocker, logger *logging.Logger, m *metrics.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{router: router, policies: policies, limiter: limiter, blocker: blocker, logger: logger, metrics: m}
}

// Handler returns the rate-limit middleware handler.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		match, err := m.router.Resolve(ctx, r.Method, r.URL.Path)
		if err != nil {
			m.writeError(w, r, err)
			return
		}
		ctx = withRouteMatch(ctx, match)

		policy, err := m.selectPolicy(ctx, match.Route.ID)
		if err != nil {
			m.writeError(w, r, err)
			return
		}
		if policy == nil {
			// No policy configured for this route: nothing to enforce.
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		id := ratelimiter.Identifier{
			UserID:   authUserID(ctx),
			ClientIP: ClientIPFrom(ctx),
		}
		if res, ok := AuthResultFrom(ctx); ok && res.Method == auth.MethodAPIKey {
			id.KeyID = res.KeyID
		}

		result, err := m.limiter.Check(ctx, policy, id)
		if err != nil {
			m.writeError(w, r, err)
			return
		}

		m.setHeaders(w, policy, result)

		if !result.Allowed {
			if err := m.blocker.RecordViolation(ctx, autoblock.KindRateLimitAbuse, ClientIPFrom(ctx)); err != nil {
				m.logger.WithError(err).Warn("rate limit: record violation")
			}
			if m.metrics != nil {
				m.metrics.RecordRateLimitRejection("gateway", match.Route.Name, string(policy.Strategy))
			}
			svcErr := gwerrors.RateLimitExceeded(string(policy.Strategy), int(math.Ceil(float64(result.RetryAfterMs)/1000)), result.Remaining)
			m.writeError(w, r, svcErr)
			return
		}

		if policy.Strategy == domain.StrategyConcurrency {
			defer func() {
				if err := m.limiter.Release(context.Background(), policy, id); err != nil {
					m.logger.WithError(err).Warn("rate limit: release concurrency slot")
				}
			}()
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// selectPolicy implements §4.3's policy selection: the caller's tier policy
// if one exists, else the default (nil-tier) policy, else no policy.
func (m *RateLimitMiddleware) selectPolicy(ctx context.Context, routeID string) (*domain.RateLimitPolicy, error) {
	policies, err := m.policies.ListByRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	tier := domain.Tier(authTier(ctx))
	var def *domain.RateLimitPolicy
	for _, p := range policies {
		if p.Tier != nil && *p.Tier == tier {
			return p, nil
		}
		if p.Tier == nil {
			def = p
		}
	}
	return def, nil
}

func (m *RateLimitMiddleware) setHeaders(w http.ResponseWriter, policy *domain.RateLimitPolicy, result ratelimiter.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.Capacity))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	resetSeconds := int(math.Ceil(float64(result.RetryAfterMs) / 1000))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSeconds))
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(resetSeconds))
	}
}

func (m *RateLimitMiddleware) writeError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := asServiceError(err)
	httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
}

func authUserID(ctx context.Context) string {
	if res, ok := AuthResultFrom(ctx); ok {
		return res.UserID
	}
	return ""
}

func authTier(ctx context.Context) string {
	if res, ok := AuthResultFrom(ctx); ok {
		return res.Tier
	}
	return ""
}
