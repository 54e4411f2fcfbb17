package domain

import (
	"strings"
	"time"
)

// APIKeyStatus controls whether a key may still authenticate.
type APIKeyStatus string

const (
	APIKeyActive     APIKeyStatus = "active"
	APIKeyRevoked    APIKeyStatus = "revoked"
	APIKeyDeprecated APIKeyStatus = "deprecated"
)

// APIKey is a long-lived credential owned by a User. Only KeyDigest (a
// one-way hash of the original key) is persisted; the plaintext is shown to
// the caller exactly once, at creation.
type APIKey struct {
	ID          string
	UserID      string
	KeyDigest   string
	Prefix      string
	DisplayName string
	Scopes      []string
	Status      APIKeyStatus
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// Active reports whether the key can currently authenticate a request.
func (k *APIKey) Active(now time.Time) bool {
	if k.Status != APIKeyActive {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}
	return true
}

// HasScope reports whether the key's granted scopes satisfy required,
// supporting a `*` wildcard on either side of the `resource:action` pair
// (e.g. a granted scope of "routes:*" satisfies a required "routes:write",
// and a granted "*:read" satisfies any required "<anything>:read").
//
// This is stored and available to callers (notably the admin surface and its
// tests) but is not invoked from the hot path; see the scope-enforcement
// open question.
func (k *APIKey) HasScope(required string) bool {
	for _, granted := range k.Scopes {
		if scopeMatches(granted, required) {
			return true
		}
	}
	return false
}

func scopeMatches(granted, required string) bool {
	if granted == required {
		return true
	}
	gResource, gAction, ok1 := splitScope(granted)
	rResource, rAction, ok2 := splitScope(required)
	if !ok1 || !ok2 {
		return false
	}
	return matchesSegment(gResource, rResource) && matchesSegment(gAction, rAction)
}

func splitScope(scope string) (resource, action string, ok bool) {
	parts := strings.SplitN(scope, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func matchesSegment(pattern, value string) bool {
	return pattern == "*" || pattern == value
}
