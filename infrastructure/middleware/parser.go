// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/R3E-Network/api-gateway/infrastructure/logging"
)

// ParserMiddleware is pipeline stage 1 (§4.1): it assigns a request id,
// resolves the client IP honoring forwarded headers, and records the start
// time every later stage measures latency against.
type ParserMiddleware struct {
	trustForwardedHeaders bool
}

// NewParserMiddleware creates the request-parsing stage. trustForwarded
// should be true only when the gateway sits behind a configured reverse
// proxy that sets X-Forwarded-For/X-Real-Ip itself.
func NewParserMiddleware(trustForwarded bool) *ParserMiddleware {
	return &ParserMiddleware{trustForwardedHeaders: trustForwarded}
}

// Handler returns the parser middleware handler.
func (m *ParserMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = logging.NewTraceID()
		}
		r.Header.Set("X-Request-Id", requestID)
		w.Header().Set("X-Request-Id", requestID)

		ctx := logging.WithTraceID(r.Context(), requestID)
		ctx = withClientIP(ctx, m.resolveClientIP(r))
		ctx = withStartTime(ctx, time.Now())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveClientIP prefers the first entry of the forwarded-for chain, then
// X-Real-Ip, falling back to the socket peer (§4.1).
func (m *ParserMiddleware) resolveClientIP(r *http.Request) string {
	if m.trustForwardedHeaders {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
				return first
			}
		}
		if real := r.Header.Get("X-Real-Ip"); real != "" {
			return strings.TrimSpace(real)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
