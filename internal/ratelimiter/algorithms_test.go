package ratelimiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyTokenBucket_DeniesAtBoundaryThenAllowsAfterRefill(t *testing.T) {
	state := TokenBucketState{Tokens: 0.999, LastRefill: 1000}

	state, d := ApplyTokenBucket(state, 10, 1, 1000)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfterMs, int64(0))

	// refillRate = 1 token/sec, need 0.001 more tokens -> 1ms.
	state, d = ApplyTokenBucket(state, 10, 1, 1001)
	assert.True(t, d.Allowed)
	_ = state
}

func TestApplyTokenBucket_RefillCapsAtCapacity(t *testing.T) {
	state := TokenBucketState{Tokens: 10, LastRefill: 1000}
	// Huge elapsed time shouldn't overflow capacity.
	state, d := ApplyTokenBucket(state, 10, 5, 1000+60_000)
	assert.True(t, d.Allowed)
	assert.LessOrEqual(t, state.Tokens, 10.0)
}

func TestApplyTokenBucket_FirstCallInitializesFull(t *testing.T) {
	state, d := ApplyTokenBucket(TokenBucketState{}, 5, 1, 2000)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4.0, state.Tokens)
}

func TestApplyTokenBucket_ReportsTimeToFullOnAllow(t *testing.T) {
	// capacity=10, refillRate=5/sec, starting with 0 tokens spent -> after
	// consuming one the bucket is at 9/10, so reset is 1/5 sec = 200ms.
	state := TokenBucketState{Tokens: 10, LastRefill: 1000}
	state, d := ApplyTokenBucket(state, 10, 5, 1000)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(200), d.RetryAfterMs)
	_ = state
}

func TestApplyLeakyBucket_DeniesWhenFull(t *testing.T) {
	state := LeakyBucketState{QueueSize: 3, LastLeak: 1000}
	state, d := ApplyLeakyBucket(state, 3, 1, 1000)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfterMs, int64(0))
	_ = state
}

func TestApplyLeakyBucket_LeaksOverTime(t *testing.T) {
	state := LeakyBucketState{QueueSize: 3, LastLeak: 1000}
	// 1 unit/sec leak rate, 1 second elapsed -> queue drains to 2, room for 1 more.
	state, d := ApplyLeakyBucket(state, 3, 1, 2000)
	assert.True(t, d.Allowed)
	assert.InDelta(t, 3.0, state.QueueSize, 0.001)
}

func TestApplyLeakyBucket_ReportsDrainTimeOnAllow(t *testing.T) {
	// capacity=3, refillRate=1/sec, queue starts empty; after adding one unit
	// the reset is the time to drain that unit: 1/1 sec = 1000ms.
	state := LeakyBucketState{QueueSize: 0, LastLeak: 1000}
	state, d := ApplyLeakyBucket(state, 3, 1, 1000)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1000), d.RetryAfterMs)
	_ = state
}

func TestApplyFixedWindow_OnlyIncrementsOnAllow(t *testing.T) {
	count, d := ApplyFixedWindow(5, 5, 10_000, 5000)
	assert.False(t, d.Allowed)
	assert.Equal(t, 5, count, "denied requests must not increment the counter")

	count, d = ApplyFixedWindow(4, 5, 10_000, 5000)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, count)
	assert.Equal(t, 0, d.Remaining)
}

func TestApplyFixedWindow_ReportsWindowBoundaryOnAllow(t *testing.T) {
	_, d := ApplyFixedWindow(0, 5, 10_000, 6000)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(4000), d.RetryAfterMs)
}

func TestApplyFixedWindow_BoundaryInstantBelongsToNextWindow(t *testing.T) {
	// Caller is responsible for keying the counter by window index derived
	// from now; at now == window_end the caller has already rolled to a
	// fresh (zero) counter for the next window.
	count, d := ApplyFixedWindow(0, 5, 10_000, 10_000)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, count)
}

func TestApplySlidingWindow_ZeroProgressUsesFullPreviousWindow(t *testing.T) {
	// progress = 0 means effective count equals the previous window's count.
	_, d := ApplySlidingWindow(0, 5, 5, 0, 10_000, 0)
	assert.False(t, d.Allowed, "effective count 5 should be at capacity")
}

func TestApplySlidingWindow_FullProgressIgnoresPreviousWindow(t *testing.T) {
	current, d := ApplySlidingWindow(0, 100, 5, 1.0, 10_000, 10_000)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, current)
}

func TestApplySlidingWindow_HalfProgressWeightsPreviousHalf(t *testing.T) {
	// previous=4, progress=0.5 -> weighted contribution floor(0.5*4)=2, plus
	// current=2 -> effective=4, capacity=5 -> allowed.
	current, d := ApplySlidingWindow(2, 4, 5, 0.5, 10_000, 5000)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, current)
}

func TestApplySlidingWindow_ReportsWindowBoundaryOnAllow(t *testing.T) {
	_, d := ApplySlidingWindow(0, 100, 5, 1.0, 10_000, 7000)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(3000), d.RetryAfterMs)
}

func TestApplyConcurrencyAcquireRelease(t *testing.T) {
	count, d := ApplyConcurrencyAcquire(0, 2)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(defaultConcurrencyRetryMs), d.RetryAfterMs)

	count, d = ApplyConcurrencyAcquire(count, 2)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, count)

	count, d = ApplyConcurrencyAcquire(count, 2)
	assert.False(t, d.Allowed)
	assert.Equal(t, 2, count)

	count = ApplyConcurrencyRelease(count)
	assert.Equal(t, 1, count)
}

func TestApplyConcurrencyRelease_NeverGoesNegative(t *testing.T) {
	assert.Equal(t, 0, ApplyConcurrencyRelease(0))
}
