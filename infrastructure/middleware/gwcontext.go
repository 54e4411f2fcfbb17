// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"context"
	"time"

	"github.com/R3E-Network/api-gateway/internal/auth"
	"github.com/R3E-Network/api-gateway/internal/proxy"
	"github.com/R3E-Network/api-gateway/internal/routing"
)

// gwCtxKey namespaces the pipeline's own context values, separate from the
// trace/user-id keys in infrastructure/logging.
type gwCtxKey string

const (
	ctxKeyClientIP   gwCtxKey = "gw_client_ip"
	ctxKeyStartTime  gwCtxKey = "gw_start_time"
	ctxKeyAuthResult gwCtxKey = "gw_auth_result"
	ctxKeyMatch      gwCtxKey = "gw_route_match"
)

func withClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// ClientIPFrom returns the client IP resolved at stage 1, if present.
func ClientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKeyClientIP).(string)
	return ip
}

func withStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFrom returns the time stage 1 began processing the request.
func StartTimeFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(ctxKeyStartTime).(time.Time)
	return t, ok
}

func withAuthResult(ctx context.Context, res *auth.Result) context.Context {
	return context.WithValue(ctx, ctxKeyAuthResult, res)
}

// AuthResultFrom returns the identity resolved at stage 4, if the caller
// authenticated.
func AuthResultFrom(ctx context.Context) (*auth.Result, bool) {
	res, ok := ctx.Value(ctxKeyAuthResult).(*auth.Result)
	return res, ok && res != nil
}

func withRouteMatch(ctx context.Context, m *routing.Match) context.Context {
	return context.WithValue(ctx, ctxKeyMatch, m)
}

// RouteMatchFrom returns the route resolved at stage 5, if any.
func RouteMatchFrom(ctx context.Context) (*routing.Match, bool) {
	m, ok := ctx.Value(ctxKeyMatch).(*routing.Match)
	return m, ok && m != nil
}

// proxyIdentity builds the identity the proxy stage forwards as
// X-User-Id/X-User-Tier, empty when the request reached the proxy
// unauthenticated (a route with no applicable policy or auth requirement).
func proxyIdentity(ctx context.Context) proxy.Identity {
	res, ok := AuthResultFrom(ctx)
	if !ok {
		return proxy.Identity{}
	}
	return proxy.Identity{UserID: res.UserID, Tier: res.Tier}
}
