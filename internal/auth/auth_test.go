package auth

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gwerrors "github.com/R3E-Network/api-gateway/infrastructure/errors"
	"github.com/R3E-Network/api-gateway/internal/cache"
	"github.com/R3E-Network/api-gateway/internal/repository"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	digest, err := HashPassword("correct-horse-battery-staple")
	require.NoError(t, err)

	assert.True(t, VerifyPassword(digest, "correct-horse-battery-staple"))
	assert.False(t, VerifyPassword(digest, "wrong-password"))
}

func TestGenerateAPIKey_DigestIsDeterministic(t *testing.T) {
	raw, prefix, digest, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.NotEmpty(t, prefix)
	assert.Equal(t, digest, DigestAPIKey(raw))
}

func TestConstantTimeEqualDigest(t *testing.T) {
	assert.True(t, ConstantTimeEqualDigest("abc", "abc"))
	assert.False(t, ConstantTimeEqualDigest("abc", "abd"))
	assert.False(t, ConstantTimeEqualDigest("abc", "abcd"))
}

func TestSigner_IssueAndParseRoundTrip(t *testing.T) {
	s := NewSigner("a-test-secret-32-bytes-long-enough", 15*time.Minute, 168*time.Hour)

	signed, jti, exp, err := s.Issue("user-1", 3, "user", "pro", TokenAccess)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
	assert.True(t, exp.After(time.Now()))

	claims, err := s.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, 3, claims.TokenVersion)
	assert.Equal(t, TokenAccess, claims.Type)
}

func TestSigner_ParseRejectsTamperedSignature(t *testing.T) {
	s := NewSigner("a-test-secret-32-bytes-long-enough", 15*time.Minute, 168*time.Hour)
	other := NewSigner("a-completely-different-secret-value", 15*time.Minute, 168*time.Hour)

	signed, _, _, err := other.Issue("user-1", 1, "user", "free", TokenAccess)
	require.NoError(t, err)

	_, err = s.Parse(signed)
	assert.Error(t, err)
}

func unreachableCache() *cache.Client {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	return cache.NewFromRedis(rdb)
}

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	signer := NewSigner("a-test-secret-32-bytes-long-enough", 15*time.Minute, 168*time.Hour)
	return New(signer, unreachableCache(), repository.NewUserStore(db), repository.NewAPIKeyStore(db))
}

func TestValidateAccessToken_RejectsRefreshTokenType(t *testing.T) {
	a := newTestAuthenticator(t)
	signed, _, _, err := a.signer.Issue("user-1", 1, "user", "free", TokenRefresh)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = a.ValidateAccessToken(ctx, signed)
	require.Error(t, err)
	svcErr, ok := err.(*gwerrors.ServiceError)
	require.True(t, ok)
	assert.Equal(t, gwerrors.ErrCodeInvalidToken, svcErr.Code)
}

func TestRefresh_RejectsAccessTokenType(t *testing.T) {
	a := newTestAuthenticator(t)
	signed, _, _, err := a.signer.Issue("user-1", 1, "user", "free", TokenAccess)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = a.Refresh(ctx, signed)
	require.Error(t, err)
	svcErr, ok := err.(*gwerrors.ServiceError)
	require.True(t, ok)
	assert.Equal(t, gwerrors.ErrCodeInvalidToken, svcErr.Code)
}

func TestValidateAccessToken_PropagatesCacheErrorAsRateLimiterError(t *testing.T) {
	a := newTestAuthenticator(t)
	signed, _, _, err := a.signer.Issue("user-1", 1, "user", "free", TokenAccess)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = a.ValidateAccessToken(ctx, signed)
	require.Error(t, err)
	svcErr, ok := err.(*gwerrors.ServiceError)
	require.True(t, ok)
	assert.Equal(t, gwerrors.ErrCodeRateLimiterError, svcErr.Code)
}
