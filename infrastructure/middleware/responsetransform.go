// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/R3E-Network/api-gateway/infrastructure/logging"
)

// gatewayIdentity is the value of the X-Gateway response header (§6.1).
const gatewayIdentity = "api-gateway"

// ResponseTransformer is pipeline stage 8 (§4.1, §6.1): the terminal step
// that copies a proxied upstream response onto the client connection,
// stripping anything the proxy stage missed and adding the identification
// and security headers every consumer-facing response carries.
type ResponseTransformer struct {
	securityHeaders map[string]string
}

// NewResponseTransformer creates the response-transform stage. headers
// defaults to DefaultSecurityHeaders when nil.
func NewResponseTransformer(headers map[string]string) *ResponseTransformer {
	if headers == nil {
		headers = DefaultSecurityHeaders()
	}
	return &ResponseTransformer{securityHeaders: headers}
}

// WriteUpstreamResponse copies resp onto w byte-for-byte (§7: "Proxied
// responses are passed through byte-for-byte"), adding the gateway's own
// identification and security headers without disturbing the backend's.
func (t *ResponseTransformer) WriteUpstreamResponse(w http.ResponseWriter, r *http.Request, resp *http.Response, start time.Time) {
	defer resp.Body.Close()

	dst := w.Header()
	for key, values := range resp.Header {
		for _, v := range values {
			dst.Add(key, v)
		}
	}

	for key, value := range t.securityHeaders {
		if dst.Get(key) == "" {
			dst.Set(key, value)
		}
	}
	dst.Set("X-Gateway", gatewayIdentity)
	dst.Set("X-Request-Id", logging.GetTraceID(r.Context()))
	dst.Set("X-Response-Time", strconv.FormatInt(time.Since(start).Milliseconds(), 10)+"ms")

	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
