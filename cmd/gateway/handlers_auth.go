package main

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	gwerrors "github.com/R3E-Network/api-gateway/infrastructure/errors"
	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/internal/auth"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/repository"
)

var requestValidator = validator.New()

// =============================================================================
// Auth surface (§6.1): signup, login, refresh, logout
// =============================================================================

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func signupHandler(users *repository.UserStore, authenticator *auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		if _, err := users.GetByEmail(r.Context(), email); err == nil {
			httputil.WriteErrorWithCode(w, http.StatusConflict, "ALREADY_EXISTS", "an account with this email already exists")
			return
		}

		digest, err := auth.HashPassword(req.Password)
		if err != nil {
			httputil.InternalError(w, "")
			return
		}

		user := &domain.User{
			ID:             uuid.NewString(),
			Email:          email,
			PasswordDigest: digest,
			Role:           domain.RoleUser,
			Tier:           domain.TierFree,
			TokenVersion:   1,
		}
		if err := users.Create(r.Context(), user); err != nil {
			httputil.InternalError(w, "")
			return
		}

		pair, err := authenticator.IssueTokenPair(user)
		if err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, pair)
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func loginHandler(users *repository.UserStore, authenticator *auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		user, err := users.GetByEmail(r.Context(), email)
		if err != nil || !auth.VerifyPassword(user.PasswordDigest, req.Password) {
			httputil.Unauthorized(w, "invalid email or password")
			return
		}

		pair, err := authenticator.IssueTokenPair(user)
		if err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, pair)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func refreshHandler(authenticator *auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		pair, err := authenticator.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, pair)
	}
}

func logoutHandler(authenticator *auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerTokenFromHeader(r)
		if token == "" {
			httputil.Unauthorized(w, "")
			return
		}
		if err := authenticator.Logout(r.Context(), token); err != nil {
			writeAuthError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func bearerTokenFromHeader(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

func writeValidationError(w http.ResponseWriter, err error) {
	httputil.WriteErrorResponse(w, nil, http.StatusBadRequest, "VALIDATION_ERROR", "request validation failed", map[string]any{
		"details": err.Error(),
	})
}

func writeAuthError(w http.ResponseWriter, err error) {
	if svcErr, ok := err.(*gwerrors.ServiceError); ok {
		httputil.WriteErrorResponse(w, nil, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
		return
	}
	httputil.InternalError(w, "")
}
