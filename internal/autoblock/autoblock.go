// Package autoblock implements the violation-counting auto-blocker (§4.5):
// repeated auth/rate-limit abuse from one IP escalates to a block IpRule
// without operator intervention.
package autoblock

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/R3E-Network/api-gateway/infrastructure/metrics"
	"github.com/R3E-Network/api-gateway/internal/cache"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/repository"
)

const metricsService = "gateway"

// Kind identifies a category of violation, each with its own threshold,
// observation window, and resulting block duration (§4.5).
type Kind string

const (
	KindInvalidAPIKey  Kind = "invalid_api_key"
	KindInvalidToken   Kind = "invalid_token"
	KindRateLimitAbuse Kind = "rate_limit_abuse"
	KindAuthFailure    Kind = "auth_failure"
)

type rule struct {
	threshold int
	window    time.Duration
	block     time.Duration
}

var rules = map[Kind]rule{
	KindInvalidAPIKey:  {threshold: 10, window: 60 * time.Second, block: time.Hour},
	KindInvalidToken:   {threshold: 20, window: 60 * time.Second, block: time.Hour},
	KindRateLimitAbuse: {threshold: 50, window: 300 * time.Second, block: 30 * time.Minute},
	KindAuthFailure:    {threshold: 30, window: 300 * time.Second, block: 2 * time.Hour},
}

var allKinds = []Kind{KindInvalidAPIKey, KindInvalidToken, KindRateLimitAbuse, KindAuthFailure}

// Blocker counts violations per (kind, ip) in the shared cache and escalates
// to a block IpRule once a kind's threshold is met within its window.
type Blocker struct {
	cache     *cache.Client
	ipRules   *repository.IPRuleStore
	auditLogs *repository.AuditLogStore
	metrics   *metrics.Metrics
}

// New builds a Blocker. m may be nil, in which case auto-block events go
// unrecorded.
func New(c *cache.Client, ipRules *repository.IPRuleStore, auditLogs *repository.AuditLogStore, m *metrics.Metrics) *Blocker {
	return &Blocker{cache: c, ipRules: ipRules, auditLogs: auditLogs, metrics: m}
}

func violationKey(kind Kind, ip string) string {
	return fmt.Sprintf("violations:%s:%s", kind, ip)
}

// IsExempt reports whether ip is never eligible for auto-blocking: loopback
// addresses and IPs with an active allow rule (§4.5).
func (b *Blocker) IsExempt(ctx context.Context, ip string) (bool, error) {
	if parsed := net.ParseIP(ip); parsed != nil && parsed.IsLoopback() {
		return true, nil
	}
	rule, err := b.ipRules.ActiveAllowForIP(ctx, ip)
	if err != nil && err != repository.ErrNotFound {
		return false, err
	}
	return rule != nil, nil
}

// RecordViolation increments the (kind, ip) counter and, if the kind's
// threshold is met, creates a block IpRule and writes a synchronous audit
// event, then resets the counter. Exempt IPs are silently ignored.
func (b *Blocker) RecordViolation(ctx context.Context, kind Kind, ip string) error {
	exempt, err := b.IsExempt(ctx, ip)
	if err != nil {
		return err
	}
	if exempt {
		return nil
	}

	r, ok := rules[kind]
	if !ok {
		return fmt.Errorf("autoblock: unknown violation kind %q", kind)
	}

	key := violationKey(kind, ip)
	raw, err := b.cache.Eval(ctx, incrementScript, []string{key}, int64(r.window/time.Second))
	if err != nil {
		return err
	}
	count := toInt64(raw)
	if count < int64(r.threshold) {
		return nil
	}

	if err := b.cache.Del(ctx, key); err != nil {
		return err
	}

	expiresAt := time.Now().UTC().Add(r.block)
	ipRule := &domain.IpRule{
		IPAddress:   ip,
		RuleType:    domain.IpRuleBlock,
		Reason:      fmt.Sprintf("auto-blocked: %s threshold (%d) reached within %s", kind, r.threshold, r.window),
		AutoBlocked: true,
		ExpiresAt:   &expiresAt,
	}
	if err := b.ipRules.Create(ctx, ipRule); err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.RecordAutoBlockEvent(metricsService, string(kind))
	}

	return b.auditLogs.Write(ctx, &domain.AuditLog{
		EventType:    domain.EventAutoBlockTriggered,
		ActorIP:      &ip,
		ResourceType: strPtr("ip_rule"),
		ResourceID:   &ipRule.ID,
		Metadata: map[string]interface{}{
			"kind":      string(kind),
			"threshold": r.threshold,
			"window":    r.window.String(),
		},
	})
}

// ClearViolations resets every kind's counter for ip, called on successful
// authentication (§4.2, §4.5).
func (b *Blocker) ClearViolations(ctx context.Context, ip string) error {
	keys := make([]string, len(allKinds))
	for i, k := range allKinds {
		keys[i] = violationKey(k, ip)
	}
	return b.cache.Del(ctx, keys...)
}

func strPtr(s string) *string { return &s }

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
