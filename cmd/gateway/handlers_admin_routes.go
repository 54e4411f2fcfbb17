package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/repository"
	"github.com/R3E-Network/api-gateway/internal/routing"
)

// =============================================================================
// Admin: routes (§6.2) — mutating a route invalidates the router's cached
// route table so a subsequent consumer-facing request sees the change
// without waiting for the janitor's periodic refresh.
// =============================================================================

type routeRequest struct {
	Name           string   `json:"name" validate:"required"`
	RoutePattern   string   `json:"route_pattern" validate:"required"`
	BackendURL     string   `json:"backend_url" validate:"required,url"`
	AllowedMethods []string `json:"allowed_methods" validate:"required,min=1"`
	Enabled        bool     `json:"enabled"`
}

func listRoutesHandler(routes *repository.RouteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := routes.List(r.Context())
		if err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, list)
	}
}

func createRouteHandler(routes *repository.RouteStore, router *routing.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req routeRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		route := &domain.ApiDefinition{
			ID:             uuid.NewString(),
			Name:           req.Name,
			RoutePattern:   req.RoutePattern,
			BackendURL:     req.BackendURL,
			AllowedMethods: req.AllowedMethods,
			Enabled:        req.Enabled,
		}
		if err := routes.Create(r.Context(), route); err != nil {
			httputil.InternalError(w, "")
			return
		}
		router.Invalidate()
		httputil.WriteJSON(w, http.StatusCreated, route)
	}
}

func getRouteHandler(routes *repository.RouteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		route, err := routes.GetByID(r.Context(), id)
		if err != nil {
			httputil.NotFound(w, "route not found")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, route)
	}
}

func patchRouteHandler(routes *repository.RouteStore, router *routing.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		route, err := routes.GetByID(r.Context(), id)
		if err != nil {
			httputil.NotFound(w, "route not found")
			return
		}

		var req struct {
			Name           *string   `json:"name"`
			RoutePattern   *string   `json:"route_pattern"`
			BackendURL     *string   `json:"backend_url" validate:"omitempty,url"`
			AllowedMethods *[]string `json:"allowed_methods"`
			Enabled        *bool     `json:"enabled"`
		}
		if !httputil.DecodeJSONOptional(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		if req.Name != nil {
			route.Name = *req.Name
		}
		if req.RoutePattern != nil {
			route.RoutePattern = *req.RoutePattern
		}
		if req.BackendURL != nil {
			route.BackendURL = *req.BackendURL
		}
		if req.AllowedMethods != nil {
			route.AllowedMethods = *req.AllowedMethods
		}
		if req.Enabled != nil {
			route.Enabled = *req.Enabled
		}

		if err := routes.Update(r.Context(), route); err != nil {
			httputil.InternalError(w, "")
			return
		}
		router.Invalidate()
		httputil.WriteJSON(w, http.StatusOK, route)
	}
}

func deleteRouteHandler(routes *repository.RouteStore, router *routing.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := routes.Delete(r.Context(), id); err != nil {
			httputil.InternalError(w, "")
			return
		}
		router.Invalidate()
		w.WriteHeader(http.StatusNoContent)
	}
}

// =============================================================================
// Admin: rate limit policies (§6.2), scoped to a route.
// =============================================================================

type policyRequest struct {
	Tier          *string `json:"tier" validate:"omitempty,oneof=free pro enterprise"`
	Strategy      string  `json:"strategy" validate:"required,oneof=token_bucket leaky_bucket fixed_window sliding_window concurrency"`
	Capacity      int     `json:"capacity" validate:"required,gt=0"`
	RefillRate    *int    `json:"refill_rate"`
	WindowSeconds *int    `json:"window_seconds"`
	FailureMode   string  `json:"failure_mode" validate:"required,oneof=open closed"`
}

func listPoliciesHandler(policies *repository.PolicyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID := mux.Vars(r)["id"]
		list, err := policies.ListByRoute(r.Context(), routeID)
		if err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, list)
	}
}

func createPolicyHandler(policies *repository.PolicyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID := mux.Vars(r)["id"]

		var req policyRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		var tier *domain.Tier
		if req.Tier != nil {
			t := domain.Tier(*req.Tier)
			tier = &t
		}

		policy := &domain.RateLimitPolicy{
			ID:              uuid.NewString(),
			ApiDefinitionID: routeID,
			Tier:            tier,
			Strategy:        domain.RateLimitStrategy(req.Strategy),
			Capacity:        req.Capacity,
			RefillRate:      req.RefillRate,
			WindowSeconds:   req.WindowSeconds,
			FailureMode:     domain.FailureMode(req.FailureMode),
		}
		if err := policy.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := policies.Create(r.Context(), policy); err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, policy)
	}
}

func patchPolicyHandler(policies *repository.PolicyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		policy, err := policies.GetByID(r.Context(), id)
		if err != nil {
			httputil.NotFound(w, "policy not found")
			return
		}

		var req struct {
			Strategy      *string `json:"strategy" validate:"omitempty,oneof=token_bucket leaky_bucket fixed_window sliding_window concurrency"`
			Capacity      *int    `json:"capacity" validate:"omitempty,gt=0"`
			RefillRate    *int    `json:"refill_rate"`
			WindowSeconds *int    `json:"window_seconds"`
			FailureMode   *string `json:"failure_mode" validate:"omitempty,oneof=open closed"`
		}
		if !httputil.DecodeJSONOptional(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		if req.Strategy != nil {
			policy.Strategy = domain.RateLimitStrategy(*req.Strategy)
		}
		if req.Capacity != nil {
			policy.Capacity = *req.Capacity
		}
		if req.RefillRate != nil {
			policy.RefillRate = req.RefillRate
		}
		if req.WindowSeconds != nil {
			policy.WindowSeconds = req.WindowSeconds
		}
		if req.FailureMode != nil {
			policy.FailureMode = domain.FailureMode(*req.FailureMode)
		}

		if err := policy.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := policies.Update(r.Context(), policy); err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, policy)
	}
}

func deletePolicyHandler(policies *repository.PolicyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := policies.Delete(r.Context(), id); err != nil {
			httputil.InternalError(w, "")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
