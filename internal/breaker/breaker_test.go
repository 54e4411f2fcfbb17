package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/api-gateway/internal/cache"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestDecodeDecision_DefaultsToAllowedClosed(t *testing.T) {
	d := decodeDecision("not-a-valid-shape")
	assert.True(t, d.Allowed)
	assert.Equal(t, Closed, d.State)
}

func TestDecodeDecision_ParsesOpenDenied(t *testing.T) {
	d := decodeDecision([]interface{}{int64(0), "open"})
	assert.False(t, d.Allowed)
	assert.Equal(t, Open, d.State)
}

func TestBeforeRequest_FailsOpenWhenCacheUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	b := New(cache.NewFromRedis(rdb))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	d, err := b.BeforeRequest(ctx, "payments")
	assert.Error(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, Closed, d.State)
}
