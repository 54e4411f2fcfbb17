// Package auth implements the two credential surfaces (§4.2): bearer JWTs
// with O(1) mass revocation via token_version and per-token revocation via
// a jti blacklist, and API keys looked up by digest.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	gwerrors "github.com/R3E-Network/api-gateway/infrastructure/errors"
	"github.com/R3E-Network/api-gateway/internal/cache"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/repository"
	"github.com/golang-jwt/jwt/v5"
)

// Method identifies which credential surface authenticated a request.
type Method string

const (
	MethodBearer Method = "bearer"
	MethodAPIKey Method = "api_key"
)

// Result is what a successful authentication attaches to the request
// context.
type Result struct {
	UserID string
	Role   string
	Tier   string
	Method Method
	KeyID  string // set only for MethodAPIKey
}

// TokenPair is what signup/login/refresh return to the caller.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

func blacklistKey(jti string) string { return "blacklist:" + jti }

// Authenticator ties token signing/parsing to the durable user/API-key
// stores and the shared cache's blacklist.
type Authenticator struct {
	signer  *Signer
	cache   *cache.Client
	users   *repository.UserStore
	apiKeys *repository.APIKeyStore
}

func New(signer *Signer, c *cache.Client, users *repository.UserStore, apiKeys *repository.APIKeyStore) *Authenticator {
	return &Authenticator{signer: signer, cache: c, users: users, apiKeys: apiKeys}
}

// IssueTokenPair mints a fresh access/refresh pair for user, used on
// signup and login.
func (a *Authenticator) IssueTokenPair(user *domain.User) (*TokenPair, error) {
	access, _, accessExp, err := a.signer.Issue(user.ID, user.TokenVersion, string(user.Role), string(user.Tier), TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, _, refreshExp, err := a.signer.Issue(user.ID, user.TokenVersion, string(user.Role), string(user.Tier), TokenRefresh)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccessToken verifies signature, expiry, type, blacklist status,
// and token_version for tokenString, in that order (§4.2).
func (a *Authenticator) ValidateAccessToken(ctx context.Context, tokenString string) (*Result, error) {
	claims, err := a.signer.Parse(tokenString)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if claims.Type != TokenAccess {
		return nil, gwerrors.InvalidToken(fmt.Errorf("auth: expected access token, got %s", claims.Type))
	}

	if err := a.checkBlacklist(ctx, claims.ID); err != nil {
		return nil, err
	}

	user, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, gwerrors.InvalidToken(err)
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, gwerrors.TokenVersionMismatch()
	}

	return &Result{UserID: user.ID, Role: string(user.Role), Tier: string(user.Tier), Method: MethodBearer}, nil
}

// AuthenticateAPIKey validates a raw API key and touches its last-used
// timestamp best-effort (§4.2).
func (a *Authenticator) AuthenticateAPIKey(ctx context.Context, raw string) (*Result, error) {
	digest := DigestAPIKey(raw)
	key, err := a.apiKeys.GetByDigest(ctx, digest)
	if err != nil {
		return nil, gwerrors.InvalidAPIKey()
	}
	if !key.Active(time.Now()) {
		if key.Status == domain.APIKeyActive {
			return nil, gwerrors.APIKeyExpired()
		}
		return nil, gwerrors.InvalidAPIKey()
	}

	_ = a.apiKeys.TouchLastUsed(ctx, key.ID)

	user, err := a.users.GetByID(ctx, key.UserID)
	if err != nil {
		return nil, gwerrors.InvalidAPIKey()
	}

	return &Result{UserID: user.ID, Role: string(user.Role), Tier: string(user.Tier), Method: MethodAPIKey, KeyID: key.ID}, nil
}

// Refresh validates refreshToken and rotates it: the presented token's jti
// is blacklisted for its remaining lifetime via a SetNX so a concurrent
// replay of the same refresh token loses the race and is rejected, and a
// fresh pair is issued (§4.2, §9).
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := a.signer.Parse(refreshToken)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if claims.Type != TokenRefresh {
		return nil, gwerrors.InvalidToken(fmt.Errorf("auth: expected refresh token, got %s", claims.Type))
	}

	if err := a.checkBlacklist(ctx, claims.ID); err != nil {
		return nil, err
	}

	user, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, gwerrors.InvalidToken(err)
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, gwerrors.TokenVersionMismatch()
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		remaining = time.Second
	}
	rotated, err := a.cache.SetNX(ctx, blacklistKey(claims.ID), "1", remaining)
	if err != nil {
		return nil, gwerrors.RateLimiterError(err)
	}
	if !rotated {
		return nil, gwerrors.TokenRevoked()
	}

	return a.IssueTokenPair(user)
}

// Logout blacklists the current access token's jti for its remaining
// lifetime.
func (a *Authenticator) Logout(ctx context.Context, accessToken string) error {
	claims, err := a.signer.Parse(accessToken)
	if err != nil {
		return classifyParseError(err)
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	_, err = a.cache.SetNX(ctx, blacklistKey(claims.ID), "1", remaining)
	return err
}

func (a *Authenticator) checkBlacklist(ctx context.Context, jti string) error {
	_, err := a.cache.Get(ctx, blacklistKey(jti))
	if err == nil {
		return gwerrors.TokenRevoked()
	}
	if err == cache.ErrNil {
		return nil
	}
	return gwerrors.RateLimiterError(err)
}

func classifyParseError(err error) *gwerrors.ServiceError {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return gwerrors.TokenExpired()
	}
	return gwerrors.InvalidToken(err)
}
