// Package breaker implements the per-route circuit breaker (§4.4). State
// lives only in the shared cache — never in process memory — so every
// gateway instance sees the same breaker state for a route; the state
// machine shape (closed/open/half_open, consecutive-failure counting,
// cooldown-gated recovery) mirrors the in-process breaker the rest of this
// codebase already used for single-process fault tolerance, generalized
// here to a cache-backed record so it holds across instances.
package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/api-gateway/internal/cache"
)

// State is a route's circuit breaker state.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Default threshold/cooldown from §4.4.
const (
	DefaultThreshold      = 5
	DefaultFailureWindow  = 60 * time.Second
	DefaultCooldown       = 30 * time.Second
)

// Decision is what BeforeRequest returns: whether the request may proceed,
// and which state produced that answer (for metrics/logging).
type Decision struct {
	Allowed bool
	State   State
}

// Breaker evaluates and updates per-route circuit state in the shared
// cache.
type Breaker struct {
	cache     *cache.Client
	threshold int
	cooldown  time.Duration
}

// New builds a Breaker using the default threshold (5 failures within 60s)
// and cooldown (30s) from §4.4.
func New(c *cache.Client) *Breaker {
	return &Breaker{cache: c, threshold: DefaultThreshold, cooldown: DefaultCooldown}
}

func stateKey(route string) string { return fmt.Sprintf("circuit:%s:state", route) }

// BeforeRequest checks whether route may be called, transitioning open ->
// half_open once the cooldown has elapsed. It must be called once per
// attempt, before dispatching to the backend.
func (b *Breaker) BeforeRequest(ctx context.Context, route string) (Decision, error) {
	nowMs := time.Now().UnixMilli()
	raw, err := b.cache.Eval(ctx, beforeRequestScript, []string{stateKey(route)},
		nowMs, b.cooldown.Milliseconds(), int64((b.cooldown*2)/time.Second))
	if err != nil {
		// Cache unreachable: fail open so a cache outage doesn't also take
		// down every route behind a breaker.
		return Decision{Allowed: true, State: Closed}, err
	}
	return decodeDecision(raw), nil
}

// RecordSuccess reports a successful attempt against route, closing the
// breaker if it was half_open.
func (b *Breaker) RecordSuccess(ctx context.Context, route string) error {
	_, err := b.cache.Eval(ctx, recordSuccessScript, []string{stateKey(route)},
		int64((b.cooldown*2)/time.Second))
	return err
}

// RecordFailure reports a failed attempt (connection error, read timeout,
// or upstream 5xx — never a 4xx) against route, opening the breaker once
// the consecutive-failure threshold is reached.
func (b *Breaker) RecordFailure(ctx context.Context, route string) error {
	nowMs := time.Now().UnixMilli()
	_, err := b.cache.Eval(ctx, recordFailureScript, []string{stateKey(route)},
		b.threshold, nowMs, int64((b.cooldown*2)/time.Second))
	return err
}

func decodeDecision(raw interface{}) Decision {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 2 {
		return Decision{Allowed: true, State: Closed}
	}
	allowed, _ := arr[0].(int64)
	state, _ := arr[1].(string)
	return Decision{Allowed: allowed == 1, State: State(state)}
}
