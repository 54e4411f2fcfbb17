// Package routing resolves an inbound (method, path) to a route,
// preferring the in-process cache over the durable store within the
// staleness window the specification accepts (§5).
package routing

import (
	"context"

	gwerrors "github.com/R3E-Network/api-gateway/infrastructure/errors"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/localcache"
	"github.com/R3E-Network/api-gateway/internal/repository"
)

const routesCacheKey = "routes:enabled"

// Match is a resolved route plus the params its pattern bound.
type Match struct {
	Route  *domain.ApiDefinition
	Params map[string]string
}

// Router resolves requests to routes. All reads go through a short-lived
// local cache of the enabled-routes list; writes to the admin surface call
// Invalidate so the next read re-populates it rather than waiting out the
// TTL.
type Router struct {
	routes *repository.RouteStore
	cache  *localcache.Cache
}

func New(routes *repository.RouteStore, c *localcache.Cache) *Router {
	return &Router{routes: routes, cache: c}
}

// Invalidate drops the cached route list, used by the admin surface after
// any route mutation so readers don't wait out the cache's TTL.
func (rt *Router) Invalidate() {
	rt.cache.Invalidate(routesCacheKey)
}

func (rt *Router) enabledRoutes(ctx context.Context) ([]*domain.ApiDefinition, error) {
	if cached, ok := rt.cache.Get(routesCacheKey); ok {
		return cached.([]*domain.ApiDefinition), nil
	}
	routes, err := rt.routes.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	rt.cache.Set(routesCacheKey, routes)
	return routes, nil
}

// Resolve finds the route matching path. ListEnabled preserves registration
// order, so the first pattern match among enabled routes wins when more
// than one would otherwise match (§3). A method mismatch on that route is
// not a fallthrough to the next candidate — it is a 404, per §6.1.
func (rt *Router) Resolve(ctx context.Context, method, path string) (*Match, error) {
	routes, err := rt.enabledRoutes(ctx)
	if err != nil {
		return nil, err
	}

	for _, route := range routes {
		params, ok := domain.MatchPattern(route.RoutePattern, path)
		if !ok {
			continue
		}
		if !route.AllowsMethod(method) {
			return nil, gwerrors.RouteNotFound(method, path)
		}
		return &Match{Route: route, Params: params}, nil
	}

	return nil, gwerrors.RouteNotFound(method, path)
}
