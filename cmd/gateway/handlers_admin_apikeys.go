package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/internal/auth"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/repository"
)

// =============================================================================
// Admin: API keys (§6.2) — create returns the plaintext key exactly once.
// =============================================================================

func listAPIKeysHandler(apiKeys *repository.APIKeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := httputil.QueryString(r, "user_id", "")
		if userID == "" {
			httputil.BadRequest(w, "user_id query parameter is required")
			return
		}
		keys, err := apiKeys.ListByUser(r.Context(), userID)
		if err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, keys)
	}
}

type createAPIKeyRequest struct {
	UserID      string   `json:"user_id" validate:"required"`
	DisplayName string   `json:"display_name" validate:"required"`
	Scopes      []string `json:"scopes"`
}

func createAPIKeyHandler(apiKeys *repository.APIKeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAPIKeyRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		raw, prefix, digest, err := auth.GenerateAPIKey()
		if err != nil {
			httputil.InternalError(w, "")
			return
		}

		key := &domain.APIKey{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			KeyDigest:   digest,
			Prefix:      prefix,
			DisplayName: req.DisplayName,
			Scopes:      req.Scopes,
			Status:      domain.APIKeyActive,
		}
		if err := apiKeys.Create(r.Context(), key); err != nil {
			httputil.InternalError(w, "")
			return
		}

		httputil.WriteJSON(w, http.StatusCreated, map[string]any{
			"id":           key.ID,
			"key":          raw,
			"prefix":       key.Prefix,
			"display_name": key.DisplayName,
			"scopes":       key.Scopes,
			"status":       key.Status,
		})
	}
}

func revokeAPIKeyHandler(apiKeys *repository.APIKeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := apiKeys.Revoke(r.Context(), id); err != nil {
			httputil.InternalError(w, "")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
