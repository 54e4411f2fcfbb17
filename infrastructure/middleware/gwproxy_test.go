package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/api-gateway/infrastructure/logging"
	"github.com/R3E-Network/api-gateway/internal/breaker"
	"github.com/R3E-Network/api-gateway/internal/cache"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/proxy"
	"github.com/R3E-Network/api-gateway/internal/routing"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func newTestProxyMiddleware(backendURL string) *ProxyMiddleware {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	b := breaker.New(cache.NewFromRedis(rdb))
	p := proxy.New(b, time.Second, nil)
	transformer := NewResponseTransformer(nil)
	return NewProxyMiddleware(p, transformer, logging.New("test", "error", "json"))
}

func TestProxy_ForwardsAndWritesUpstreamResponse(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend", "yes")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer backend.Close()

	m := newTestProxyMiddleware(backend.URL)
	route := &domain.ApiDefinition{ID: "route-1", Name: "widgets", BackendURL: backend.URL, AllowedMethods: []string{"GET"}}
	match := &routing.Match{Route: route}

	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req = req.WithContext(withRouteMatch(req.Context(), match))
	req = req.WithContext(withStartTime(req.Context(), time.Now()))

	rr := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "yes", rr.Header().Get("X-Backend"))
	assert.Equal(t, "api-gateway", rr.Header().Get("X-Gateway"))
	assert.Equal(t, `{"ok":true}`, rr.Body.String())
}

func TestProxy_MissingRouteMatchIs404(t *testing.T) {
	m := newTestProxyMiddleware("http://unused")
	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	rr := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
