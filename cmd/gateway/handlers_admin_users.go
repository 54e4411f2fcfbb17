package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/internal/auth"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/repository"

	"github.com/google/uuid"
)

// =============================================================================
// Admin: users (§6.2)
// =============================================================================

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
	Tier     string `json:"tier" validate:"omitempty,oneof=free pro enterprise"`
}

func listUsersHandler(users *repository.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := httputil.PaginationParams(r, 50, 200)
		list, err := users.List(r.Context(), limit, offset)
		if err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, list)
	}
}

func createUserHandler(users *repository.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		role := domain.Role(req.Role)
		if role == "" {
			role = domain.RoleUser
		}
		tier := domain.Tier(req.Tier)
		if tier == "" {
			tier = domain.TierFree
		}

		digest, err := auth.HashPassword(req.Password)
		if err != nil {
			httputil.InternalError(w, "")
			return
		}

		user := &domain.User{
			ID:             uuid.NewString(),
			Email:          req.Email,
			PasswordDigest: digest,
			Role:           role,
			Tier:           tier,
			TokenVersion:   1,
		}
		if err := users.Create(r.Context(), user); err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, user)
	}
}

func getUserHandler(users *repository.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		user, err := users.GetByID(r.Context(), id)
		if err != nil {
			httputil.NotFound(w, "user not found")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, user)
	}
}

type patchUserRequest struct {
	Role *string `json:"role" validate:"omitempty,oneof=user admin"`
	Tier *string `json:"tier" validate:"omitempty,oneof=free pro enterprise"`
}

func patchUserHandler(users *repository.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		user, err := users.GetByID(r.Context(), id)
		if err != nil {
			httputil.NotFound(w, "user not found")
			return
		}

		var req patchUserRequest
		if !httputil.DecodeJSONOptional(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		if req.Role != nil {
			user.Role = domain.Role(*req.Role)
		}
		if req.Tier != nil {
			user.Tier = domain.Tier(*req.Tier)
		}

		if err := users.Update(r.Context(), user); err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, user)
	}
}

func deleteUserHandler(users *repository.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := users.Delete(r.Context(), id); err != nil {
			httputil.InternalError(w, "")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// revokeUserHandler bumps token_version, invalidating every access/refresh
// token issued under the prior version (§3, §4.2).
func revokeUserHandler(users *repository.UserStore, auditLogs *repository.AuditLogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		newVersion, err := users.BumpTokenVersion(r.Context(), id)
		if err != nil {
			httputil.InternalError(w, "")
			return
		}

		actorID := httputil.GetUserID(r)
		_ = auditLogs.Write(r.Context(), &domain.AuditLog{
			EventType:    domain.EventTokenVersionBumped,
			ActorUserID:  &actorID,
			ResourceType: strPtr("user"),
			ResourceID:   &id,
			Changes:      map[string]any{"token_version": newVersion},
		})

		httputil.WriteJSON(w, http.StatusOK, map[string]any{"token_version": newVersion})
	}
}

func strPtr(s string) *string { return &s }
