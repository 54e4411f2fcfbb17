// Package ratelimiter implements the five atomic rate-limiting strategies
// (§4.3). Each strategy's decision logic is a pure function of its current
// state and the clock, so it can be unit tested without a cache round trip;
// the corresponding Lua script in scripts.go is the atomic server-side
// mirror of the same arithmetic, run via EVAL so the check-and-update is a
// single round trip against the shared cache in production.
package ratelimiter

import "math"

// Decision is the outcome of a single rate-limit check, independent of
// which strategy produced it.
type Decision struct {
	Allowed      bool
	Remaining    int
	RetryAfterMs int64
}

// TokenBucketState is the persisted state for the token_bucket strategy.
type TokenBucketState struct {
	Tokens     float64
	LastRefill int64 // unix millis
}

// ApplyTokenBucket refills tokens for elapsed time, then attempts to spend
// one. capacity and refillRate (tokens/sec) come from the policy.
func ApplyTokenBucket(state TokenBucketState, capacity, refillRate int, nowMs int64) (TokenBucketState, Decision) {
	if state.LastRefill == 0 {
		state = TokenBucketState{Tokens: float64(capacity), LastRefill: nowMs}
	}

	elapsedSec := float64(nowMs-state.LastRefill) / 1000.0
	tokens := math.Min(float64(capacity), state.Tokens+elapsedSec*float64(refillRate))

	var d Decision
	if tokens >= 1 {
		tokens--
		d = Decision{Allowed: true, Remaining: int(tokens)}
	} else {
		d = Decision{Allowed: false, Remaining: 0}
	}
	// Reset reports time-to-full regardless of outcome (§4.3/§6.1), not just
	// time until the next single token is available.
	retrySec := (float64(capacity) - tokens) / float64(refillRate)
	d.RetryAfterMs = int64(math.Ceil(retrySec * 1000))

	return TokenBucketState{Tokens: tokens, LastRefill: nowMs}, d
}

// LeakyBucketState is the persisted state for the leaky_bucket strategy.
type LeakyBucketState struct {
	QueueSize float64
	LastLeak  int64 // unix millis
}

// ApplyLeakyBucket drains the queue for elapsed time, then attempts to add
// one unit of work. capacity and refillRate (leak rate/sec) come from the
// policy.
func ApplyLeakyBucket(state LeakyBucketState, capacity, refillRate int, nowMs int64) (LeakyBucketState, Decision) {
	if state.LastLeak == 0 {
		state = LeakyBucketState{QueueSize: 0, LastLeak: nowMs}
	}

	elapsedSec := float64(nowMs-state.LastLeak) / 1000.0
	queue := math.Max(0, state.QueueSize-elapsedSec*float64(refillRate))

	var d Decision
	if queue < float64(capacity) {
		queue++
		d = Decision{Allowed: true, Remaining: int(float64(capacity) - queue)}
	} else {
		d = Decision{Allowed: false, Remaining: 0}
	}
	// Reset reports time until the queue fully drains, regardless of outcome.
	retrySec := queue / float64(refillRate)
	d.RetryAfterMs = int64(math.Ceil(retrySec * 1000))

	return LeakyBucketState{QueueSize: queue, LastLeak: nowMs}, d
}

// ApplyFixedWindow evaluates the fixed_window strategy. count is the
// counter's current value for the window identified by windowEndMs (the
// caller is responsible for keying state per window, per §4.3: "the first
// increment sets TTL = window_seconds"). Only an allowed request increments
// the counter.
func ApplyFixedWindow(count, capacity int, windowEndMs, nowMs int64) (newCount int, d Decision) {
	retryMs := windowEndMs - nowMs
	if retryMs < 0 {
		retryMs = 0
	}
	if count < capacity {
		count++
		return count, Decision{Allowed: true, Remaining: capacity - count, RetryAfterMs: retryMs}
	}
	return count, Decision{Allowed: false, Remaining: 0, RetryAfterMs: retryMs}
}

// ApplySlidingWindow evaluates the weighted sliding-window strategy.
// current/previous are the two adjacent fixed-window counters; progress is
// (now - windowStart) / windowSeconds, in [0, 1).
func ApplySlidingWindow(current, previous, capacity int, progress float64, windowEndMs, nowMs int64) (newCurrent int, d Decision) {
	effective := int(math.Floor((1-progress)*float64(previous))) + current
	retryMs := windowEndMs - nowMs
	if retryMs < 0 {
		retryMs = 0
	}
	if effective < capacity {
		current++
		return current, Decision{Allowed: true, Remaining: capacity - effective - 1, RetryAfterMs: retryMs}
	}
	return current, Decision{Allowed: false, Remaining: 0, RetryAfterMs: retryMs}
}

// defaultConcurrencyRetryMs is the fixed reset hint the concurrency
// strategy carries on both allow and deny, since slot-release time is
// unpredictable (§4.3) — it reports the worst case: the lease's own TTL.
const defaultConcurrencyRetryMs = 1000

// ApplyConcurrencyAcquire evaluates the concurrency strategy's acquire
// operation.
func ApplyConcurrencyAcquire(count, capacity int) (newCount int, d Decision) {
	if count < capacity {
		count++
		return count, Decision{Allowed: true, Remaining: capacity - count, RetryAfterMs: defaultConcurrencyRetryMs}
	}
	return count, Decision{Allowed: false, Remaining: 0, RetryAfterMs: defaultConcurrencyRetryMs}
}

// ApplyConcurrencyRelease evaluates the concurrency strategy's release
// operation. The counter never goes below zero.
func ApplyConcurrencyRelease(count int) int {
	if count <= 0 {
		return 0
	}
	return count - 1
}
