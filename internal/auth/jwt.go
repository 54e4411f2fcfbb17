package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens (§4.2): a refresh
// token must never be accepted where an access token is required.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the signed payload of every token this gateway issues.
type Claims struct {
	TokenVersion int       `json:"token_version"`
	Role         string    `json:"role"`
	Tier         string    `json:"tier"`
	Type         TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Signer issues and parses tokens with a single HMAC secret.
type Signer struct {
	secret          []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewSigner(secret string, accessTTL, refreshTTL time.Duration) *Signer {
	return &Signer{secret: []byte(secret), accessTokenTTL: accessTTL, refreshTokenTTL: refreshTTL}
}

// Issue mints a signed token of the given type for userID. Returns the
// signed string, its jti (nonce), and its expiry.
func (s *Signer) Issue(userID string, tokenVersion int, role, tier string, tokenType TokenType) (signed, jti string, expiresAt time.Time, err error) {
	ttl := s.accessTokenTTL
	if tokenType == TokenRefresh {
		ttl = s.refreshTokenTTL
	}

	now := time.Now()
	expiresAt = now.Add(ttl)
	jti = uuid.NewString()

	claims := Claims{
		TokenVersion: tokenVersion,
		Role:         role,
		Tier:         tier,
		Type:         tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err = token.SignedString(s.secret)
	return signed, jti, expiresAt, err
}

var errUnexpectedSigningMethod = errors.New("auth: unexpected signing method")

// Parse verifies the signature and standard expiry of tokenString and
// returns its claims. It does not consult the blacklist or token_version —
// callers (Authenticator) perform those checks against current state.
func (s *Signer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", errUnexpectedSigningMethod, t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: invalid token")
	}
	return claims, nil
}
