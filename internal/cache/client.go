// Package cache wraps the shared Redis cache that is the single source of
// truth for all cross-instance state: rate-limit counters, circuit-breaker
// state, the IP block cache, and the token blacklist (§5). Every mutation
// used by this package's consumers (internal/ratelimiter, internal/breaker,
// internal/autoblock, internal/auth) is a single atomic server-side script;
// no application-layer locking is used.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client is the shared-cache handle. It is a thin wrapper over *redis.Client
// so call sites can depend on a narrower interface (Client) in tests.
type Client struct {
	rdb *redis.Client
}

// New parses rawURL (e.g. "redis://localhost:6379/0") and opens a
// connection, verifying reachability with a ping.
func New(ctx context.Context, rawURL string) (*Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewFromRedis wraps an already-constructed *redis.Client, used by tests
// against miniredis/mock servers.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Close() error { return c.rdb.Close() }

// Raw exposes the underlying *redis.Client for packages that need
// operations this wrapper does not narrow (e.g. EVAL with bespoke scripts).
func (c *Client) Raw() *redis.Client { return c.rdb }

// Ping checks reachability, used by the health endpoint (§6.1).
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetNX sets key to value with ttl only if key does not already exist,
// returning whether the set happened. This is the compare-and-set primitive
// the refresh-rotation race (§9) and the auto-blocker's first-violation TTL
// both need.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Eval runs a Lua script atomically, the mechanism every strategy in
// internal/ratelimiter and internal/breaker uses to keep its read-modify-
// write in one round trip.
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return c.rdb.Eval(ctx, script, keys, args...).Result()
}

// ErrNil is returned by callers translating redis.Nil into a
// package-neutral sentinel.
var ErrNil = redis.Nil
