package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/R3E-Network/api-gateway/infrastructure/logging"
	"github.com/R3E-Network/api-gateway/internal/autoblock"
	"github.com/R3E-Network/api-gateway/internal/cache"
	"github.com/R3E-Network/api-gateway/internal/localcache"
	"github.com/R3E-Network/api-gateway/internal/ratelimiter"
	"github.com/R3E-Network/api-gateway/internal/repository"
	"github.com/R3E-Network/api-gateway/internal/routing"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "route_pattern", "backend_url", "allowed_methods", "enabled"})
}

func policyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "api_definition_id", "tier", "strategy", "capacity", "refill_rate", "window_seconds", "failure_mode"})
}

func newTestRateLimit(t *testing.T) (*RateLimitMiddleware, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	c := cache.NewFromRedis(rdb)

	router := routing.New(repository.NewRouteStore(db), localcache.New(time.Minute))
	policies := repository.NewPolicyStore(db)
	limiter := ratelimiter.New(c)
	blocker := autoblock.New(c, repository.NewIPRuleStore(db), repository.NewAuditLogStore(db), nil)
	logger := logging.New("test", "error", "json")

	return NewRateLimitMiddleware(router, policies, limiter, blocker, logger, nil), mock
}

func TestRateLimit_UnresolvedRouteIs404(t *testing.T) {
	m, mock := newTestRateLimit(t)
	mock.ExpectQuery("SELECT id, name, route_pattern").WillReturnRows(routeRows())

	called := false
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithIP("198.51.100.9"))

	assert.False(t, called)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRateLimit_NoPolicyConfiguredPassesThrough(t *testing.T) {
	m, mock := newTestRateLimit(t)
	mock.ExpectQuery("SELECT id, name, route_pattern").WillReturnRows(
		routeRows().AddRow("route-1", "widgets", "/widgets", "http://backend-a", "{GET}", true),
	)
	mock.ExpectQuery("SELECT id, api_definition_id, tier").WillReturnRows(policyRows())

	called := false
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req = req.WithContext(withClientIP(req.Context(), "198.51.100.9"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_FailClosedDeniesAndRecordsViolation(t *testing.T) {
	m, mock := newTestRateLimit(t)
	mock.ExpectQuery("SELECT id, name, route_pattern").WillReturnRows(
		routeRows().AddRow("route-1", "widgets", "/widgets", "http://backend-a", "{GET}", true),
	)
	mock.ExpectQuery("SELECT id, api_definition_id, tier").WillReturnRows(
		policyRows().AddRow("policy-1", "route-1", nil, "concurrency", 10, nil, nil, "closed"),
	)
	mock.ExpectQuery("SELECT id, ip_address").WillReturnRows(emptyIPRuleRows())

	called := false
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req = req.WithContext(withClientIP(req.Context(), "198.51.100.9"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestRateLimit_FailOpenAllowsAndSetsHeaders(t *testing.T) {
	m, mock := newTestRateLimit(t)
	mock.ExpectQuery("SELECT id, name, route_pattern").WillReturnRows(
		routeRows().AddRow("route-1", "widgets", "/widgets", "http://backend-a", "{GET}", true),
	)
	refill := 5
	mock.ExpectQuery("SELECT id, api_definition_id, tier").WillReturnRows(
		policyRows().AddRow("policy-1", "route-1", nil, "token_bucket", 10, &refill, nil, "open"),
	)

	called := false
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req = req.WithContext(withClientIP(req.Context(), "198.51.100.9"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"), "X-RateLimit-Reset must be set on allow, not just on deny")
}
