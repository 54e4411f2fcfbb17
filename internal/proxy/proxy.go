// Package proxy forwards consumer requests to a route's backend (§4.4),
// retrying retryable failures and reporting outcomes to the per-route
// circuit breaker.
package proxy

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gwerrors "github.com/R3E-Network/api-gateway/infrastructure/errors"
	"github.com/R3E-Network/api-gateway/infrastructure/metrics"
	"github.com/R3E-Network/api-gateway/internal/breaker"
	"github.com/R3E-Network/api-gateway/internal/domain"
)

const metricsService = "gateway"

// hopByHop headers are stripped from both the outbound request and the
// inbound response (§4.4).
var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// forwardedRequestHeaders are copied verbatim from the inbound request onto
// every outbound attempt (§4.4).
var forwardedRequestHeaders = []string{"Content-Type", "Accept", "Accept-Language", "User-Agent"}

// retryBackoffs are the fixed delays between the up-to-2 additional attempts
// (§4.4): 1s then 2s.
var retryBackoffs = []time.Duration{time.Second, 2 * time.Second}

// Identity carries the authenticated caller's identity, when present, for
// the X-User-* forwarded headers.
type Identity struct {
	UserID string
	Tier   string
}

// Proxy forwards one logical request to a route's backend, applying the
// circuit breaker and retry policy.
type Proxy struct {
	client  *http.Client
	breaker *breaker.Breaker
	metrics *metrics.Metrics
}

// New builds a Proxy. timeout bounds a single upstream attempt. m may be
// nil, in which case upstream latency and circuit state go unrecorded.
func New(b *breaker.Breaker, timeout time.Duration, m *metrics.Metrics) *Proxy {
	return &Proxy{
		client:  &http.Client{Timeout: timeout},
		breaker: b,
		metrics: m,
	}
}

// Forward sends body to route.BackendURL+path, retrying on 502/503/504 up
// to twice with fixed backoff, and reports each attempt's outcome to the
// circuit breaker. Every upstream 5xx counts as a breaker failure (§4.4);
// only 502/503/504 are retried, other 5xx statuses are returned to the
// caller as-is on the first attempt. It returns a *gwerrors.ServiceError on
// any failure path the caller should translate directly into a response.
func (p *Proxy) Forward(r *http.Request, route *domain.ApiDefinition, requestID string, id Identity) (*http.Response, error) {
	decision, err := p.breaker.BeforeRequest(r.Context(), route.ID)
	if p.metrics != nil {
		p.metrics.RecordCircuitBreakerState(metricsService, route.Name, string(decision.State))
	}
	if err == nil && !decision.Allowed {
		return nil, gwerrors.CircuitOpen(route.Name)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= len(retryBackoffs); attempt++ {
		if attempt > 0 {
			select {
			case <-r.Context().Done():
				return nil, gwerrors.UpstreamTimeout(route.Name)
			case <-time.After(retryBackoffs[attempt-1]):
			}
		}

		resp, attemptErr := p.attempt(r, route, requestID, id)
		if attemptErr != nil {
			lastErr = attemptErr
			_ = p.breaker.RecordFailure(r.Context(), route.ID)
			if !isTimeoutOrConnErr(attemptErr) {
				break
			}
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = gwerrors.UpstreamError(route.Name, nil)
			_ = p.breaker.RecordFailure(r.Context(), route.ID)
			if isRetryableStatus(resp.StatusCode) {
				resp.Body.Close()
				continue
			}
			// Non-retryable 5xx (e.g. 500, 501): still a breaker failure, but
			// returned to the caller as-is rather than retried.
			if p.metrics != nil {
				p.metrics.RecordProxyUpstream(metricsService, route.Name, strconv.Itoa(resp.StatusCode), time.Since(start))
			}
			return resp, nil
		}

		_ = p.breaker.RecordSuccess(r.Context(), route.ID)
		if p.metrics != nil {
			p.metrics.RecordProxyUpstream(metricsService, route.Name, strconv.Itoa(resp.StatusCode), time.Since(start))
		}
		return resp, nil
	}

	if p.metrics != nil {
		p.metrics.RecordProxyUpstream(metricsService, route.Name, "error", time.Since(start))
	}

	if lastErr == nil {
		lastErr = gwerrors.UpstreamError(route.Name, nil)
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}

func isTimeoutOrConnErr(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok {
		return t.Timeout()
	}
	return true
}

func (p *Proxy) attempt(r *http.Request, route *domain.ApiDefinition, requestID string, id Identity) (*http.Response, error) {
	target := strings.TrimRight(route.BackendURL, "/") + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Body != nil {
		body = r.Body
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, err
	}

	for _, h := range forwardedRequestHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("X-Forwarded-For", clientIP(r))
	req.Header.Set("X-Forwarded-Proto", forwardedProto(r))
	req.Header.Set("X-Forwarded-Host", r.Host)
	if id.UserID != "" {
		req.Header.Set("X-User-Id", id.UserID)
		req.Header.Set("X-User-Tier", id.Tier)
	}
	stripHopByHop(req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	stripHopByHop(resp.Header)
	return resp, nil
}

func stripHopByHop(h http.Header) {
	for name := range h {
		canon := http.CanonicalHeaderKey(name)
		if hopByHop[canon] || strings.HasPrefix(canon, "Proxy-") {
			h.Del(name)
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	host, _, err := splitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedProto(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func splitHostPort(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "", nil
	}
	return addr[:idx], addr[idx+1:], nil
}
