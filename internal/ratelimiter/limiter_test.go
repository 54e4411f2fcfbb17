package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/api-gateway/internal/cache"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier_KeyPriority(t *testing.T) {
	assert.Equal(t, "user:u1", Identifier{UserID: "u1", KeyID: "k1", ClientIP: "1.2.3.4"}.key())
	assert.Equal(t, "key:k1", Identifier{KeyID: "k1", ClientIP: "1.2.3.4"}.key())
	assert.Equal(t, "ip:1.2.3.4", Identifier{ClientIP: "1.2.3.4"}.key())
}

func newUnreachableLimiter() *Limiter {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	return New(cache.NewFromRedis(rdb))
}

func TestCheck_FallsOpenWhenCacheUnreachable(t *testing.T) {
	l := newUnreachableLimiter()
	refill := 1
	policy := &domain.RateLimitPolicy{
		ApiDefinitionID: "route-1",
		Strategy:        domain.StrategyTokenBucket,
		Capacity:        10,
		RefillRate:      &refill,
		FailureMode:     domain.FailureOpen,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res, err := l.Check(ctx, policy, Identifier{ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheck_FallsClosedWhenCacheUnreachable(t *testing.T) {
	l := newUnreachableLimiter()
	policy := &domain.RateLimitPolicy{
		ApiDefinitionID: "route-1",
		Strategy:        domain.StrategyConcurrency,
		Capacity:        10,
		FailureMode:     domain.FailureClosed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res, err := l.Check(ctx, policy, Identifier{ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRelease_NoopForNonConcurrencyStrategy(t *testing.T) {
	l := newUnreachableLimiter()
	policy := &domain.RateLimitPolicy{
		ApiDefinitionID: "route-1",
		Strategy:        domain.StrategyFixedWindow,
	}
	err := l.Release(context.Background(), policy, Identifier{ClientIP: "10.0.0.1"})
	assert.NoError(t, err)
}
