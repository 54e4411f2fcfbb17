package domain

import "fmt"

// RateLimitStrategy selects which atomic algorithm governs a policy.
type RateLimitStrategy string

const (
	StrategyTokenBucket    RateLimitStrategy = "token_bucket"
	StrategyLeakyBucket    RateLimitStrategy = "leaky_bucket"
	StrategyFixedWindow    RateLimitStrategy = "fixed_window"
	StrategySlidingWindow  RateLimitStrategy = "sliding_window"
	StrategyConcurrency    RateLimitStrategy = "concurrency"
)

// FailureMode governs behavior when the shared cache backing rate limiting
// is unreachable.
type FailureMode string

const (
	FailureOpen   FailureMode = "open"
	FailureClosed FailureMode = "closed"
)

// RateLimitPolicy binds a strategy and its parameters to a route, optionally
// scoped to a caller tier. A nil Tier is the default policy applied when no
// tier-specific policy exists for the route.
type RateLimitPolicy struct {
	ID              string
	ApiDefinitionID string
	Tier            *Tier
	Strategy        RateLimitStrategy
	Capacity        int
	RefillRate      *int
	WindowSeconds   *int
	FailureMode     FailureMode
}

// Validate enforces the strategy-specific parameter requirements from §3:
// bucket strategies require RefillRate, window strategies require
// WindowSeconds, and Capacity must be positive in all cases.
func (p *RateLimitPolicy) Validate() error {
	if p.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	switch p.Strategy {
	case StrategyTokenBucket, StrategyLeakyBucket:
		if p.RefillRate == nil || *p.RefillRate <= 0 {
			return fmt.Errorf("%s requires a positive refill_rate", p.Strategy)
		}
	case StrategyFixedWindow, StrategySlidingWindow:
		if p.WindowSeconds == nil || *p.WindowSeconds <= 0 {
			return fmt.Errorf("%s requires a positive window_seconds", p.Strategy)
		}
	case StrategyConcurrency:
		// Capacity alone is sufficient.
	default:
		return fmt.Errorf("unknown strategy %q", p.Strategy)
	}
	switch p.FailureMode {
	case FailureOpen, FailureClosed:
	default:
		return fmt.Errorf("unknown failure_mode %q", p.FailureMode)
	}
	return nil
}
