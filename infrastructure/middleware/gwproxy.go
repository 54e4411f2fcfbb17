// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"net/http"

	gwerrors "github.com/R3E-Network/api-gateway/infrastructure/errors"
	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/infrastructure/logging"
	"github.com/R3E-Network/api-gateway/internal/proxy"
)

// ProxyMiddleware is pipeline stage 7 (§4.1, §4.4): consult the circuit
// breaker for the matched route, forward the request with retry-on-5xx,
// and hand the upstream response to the response-transform stage. It is
// the innermost stage of the consumer-facing chain — there is no further
// "next" handler, only the transformer that writes the client response.
type ProxyMiddleware struct {
	proxy       *proxy.Proxy
	transformer *ResponseTransformer
	logger      *logging.Logger
}

// NewProxyMiddleware creates the proxy stage.
func NewProxyMiddleware(p *proxy.Proxy, transformer *ResponseTransformer, logger *logging.Logger) *ProxyMiddleware {
	return &ProxyMiddleware{proxy: p, transformer: transformer, logger: logger}
}

// Handler returns the proxy middleware handler. It ignores next: it is
// registered as the terminal handler of the consumer-facing route.
func (m *ProxyMiddleware) Handler(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		match, ok := RouteMatchFrom(ctx)
		if !ok {
			// Stage 5 always resolves a route before reaching this stage
			// in the wired pipeline; defend anyway for direct registration.
			m.writeError(w, r, gwerrors.RouteNotFound(r.Method, r.URL.Path))
			return
		}

		start, _ := StartTimeFrom(ctx)
		requestID := logging.GetTraceID(ctx)

		resp, err := m.proxy.Forward(r, match.Route, requestID, proxyIdentity(ctx))
		if err != nil {
			m.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"route": match.Route.Name,
			}).WithError(err).Warn("proxy: upstream request failed")
			m.writeError(w, r, err)
			return
		}

		m.transformer.WriteUpstreamResponse(w, r, resp, start)
	})
}

func (m *ProxyMiddleware) writeError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := asServiceError(err)
	httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
}
