package ratelimiter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/R3E-Network/api-gateway/internal/cache"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/infrastructure/ratelimit"
)

// Result is what callers of Check act on: whether the request proceeds, and
// the headers/response fields a denial carries (§4.3, §6.1).
type Result struct {
	Allowed      bool
	Remaining    int
	RetryAfterMs int64
}

// Identifier carries the three candidate keys Check chooses between, in
// priority order: user id, then API key id, then client IP (§4.3).
type Identifier struct {
	UserID  string
	KeyID   string
	ClientIP string
}

func (id Identifier) key() string {
	switch {
	case id.UserID != "":
		return "user:" + id.UserID
	case id.KeyID != "":
		return "key:" + id.KeyID
	default:
		return "ip:" + id.ClientIP
	}
}

// Limiter dispatches a rate-limit check to the strategy named by a policy,
// running the matching Lua script against the shared cache. If the cache is
// unreachable, it falls back to a local in-process limiter whose behavior
// (allow vs. deny) is governed by the policy's FailureMode.
type Limiter struct {
	cache    *cache.Client
	fallback *ratelimit.RateLimiter
}

// New builds a Limiter. The fallback limiter is deliberately permissive
// relative to any single policy's capacity — its only job is to keep a
// cache outage from either wedging every request open or rejecting every
// request, depending on the route's configured failure mode.
func New(c *cache.Client) *Limiter {
	return &Limiter{
		cache:    c,
		fallback: ratelimit.New(ratelimit.DefaultConfig()),
	}
}

// Check evaluates policy for identifier at the current time, returning
// whether the request is allowed under it.
func (l *Limiter) Check(ctx context.Context, policy *domain.RateLimitPolicy, id Identifier) (Result, error) {
	key := fmt.Sprintf("ratelimit:{%s}:%s:%s", policy.ApiDefinitionID, policy.Strategy, id.key())
	now := time.Now()

	res, err := l.checkStrategy(ctx, policy, key, now)
	if err != nil {
		return l.checkFallback(policy), nil
	}
	return res, nil
}

func (l *Limiter) checkStrategy(ctx context.Context, policy *domain.RateLimitPolicy, key string, now time.Time) (Result, error) {
	nowMs := now.UnixMilli()

	switch policy.Strategy {
	case domain.StrategyTokenBucket:
		ttlMs := int64(float64(policy.Capacity) / float64(*policy.RefillRate) * 1000 * 2)
		raw, err := l.cache.Eval(ctx, tokenBucketScript, []string{key}, policy.Capacity, *policy.RefillRate, nowMs, ttlMs)
		if err != nil {
			return Result{}, err
		}
		return decodeTriple(raw), nil

	case domain.StrategyLeakyBucket:
		ttlMs := int64(float64(policy.Capacity) / float64(*policy.RefillRate) * 1000 * 2)
		raw, err := l.cache.Eval(ctx, leakyBucketScript, []string{key}, policy.Capacity, *policy.RefillRate, nowMs, ttlMs)
		if err != nil {
			return Result{}, err
		}
		return decodeTriple(raw), nil

	case domain.StrategyFixedWindow:
		windowSec := int64(*policy.WindowSeconds)
		windowIdx := nowMs / 1000 / windowSec
		windowEndMs := (windowIdx + 1) * windowSec * 1000
		windowKey := fmt.Sprintf("%s:%d", key, windowIdx)
		raw, err := l.cache.Eval(ctx, fixedWindowScript, []string{windowKey}, policy.Capacity, windowEndMs, nowMs, *policy.WindowSeconds)
		if err != nil {
			return Result{}, err
		}
		return decodeTriple(raw), nil

	case domain.StrategySlidingWindow:
		windowSec := int64(*policy.WindowSeconds)
		windowIdx := nowMs / 1000 / windowSec
		windowStartMs := windowIdx * windowSec * 1000
		windowEndMs := windowStartMs + windowSec*1000
		progress := float64(nowMs-windowStartMs) / float64(windowSec*1000)
		currentKey := fmt.Sprintf("%s:%d", key, windowIdx)
		previousKey := fmt.Sprintf("%s:%d", key, windowIdx-1)
		raw, err := l.cache.Eval(ctx, slidingWindowScript, []string{currentKey, previousKey},
			policy.Capacity, progress, windowEndMs, nowMs, *policy.WindowSeconds)
		if err != nil {
			return Result{}, err
		}
		return decodeTriple(raw), nil

	case domain.StrategyConcurrency:
		raw, err := l.cache.Eval(ctx, concurrencyAcquireScript, []string{key}, policy.Capacity, int64(30*time.Second/time.Millisecond))
		if err != nil {
			return Result{}, err
		}
		return decodeTriple(raw), nil

	default:
		return Result{}, fmt.Errorf("ratelimiter: unknown strategy %q", policy.Strategy)
	}
}

// Release decrements the concurrency counter for identifier. It is a no-op
// for every other strategy, since only concurrency holds a slot open across
// the lifetime of a request (§4.3).
func (l *Limiter) Release(ctx context.Context, policy *domain.RateLimitPolicy, id Identifier) error {
	if policy.Strategy != domain.StrategyConcurrency {
		return nil
	}
	key := fmt.Sprintf("ratelimit:{%s}:%s:%s", policy.ApiDefinitionID, policy.Strategy, id.key())
	_, err := l.cache.Eval(ctx, concurrencyReleaseScript, []string{key})
	return err
}

// checkFallback applies the policy's failure mode when the shared cache is
// unreachable: fail-open lets the local limiter gate traffic loosely so a
// single gateway instance doesn't become a bottleneck-free pass-through;
// fail-closed denies outright.
func (l *Limiter) checkFallback(policy *domain.RateLimitPolicy) Result {
	if policy.FailureMode == domain.FailureClosed {
		return Result{Allowed: false, Remaining: 0, RetryAfterMs: 1000}
	}
	if l.fallback.Allow() {
		return Result{Allowed: true, Remaining: policy.Capacity}
	}
	return Result{Allowed: false, Remaining: 0, RetryAfterMs: 1000}
}

func decodeTriple(raw interface{}) Result {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 3 {
		return Result{Allowed: false}
	}
	return Result{
		Allowed:      toInt64(arr[0]) == 1,
		Remaining:    int(math.Max(0, float64(toInt64(arr[1])))),
		RetryAfterMs: toInt64(arr[2]),
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
