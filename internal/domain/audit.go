package domain

import "time"

// AuditLog is an append-only security/administrative event record.
// Immutable once written; deletion is forbidden.
type AuditLog struct {
	ID           string
	Timestamp    time.Time
	EventType    string
	ActorUserID  *string
	ActorIP      *string
	ResourceType *string
	ResourceID   *string
	Changes      map[string]interface{}
	Metadata     map[string]interface{}
}

// Well-known event types recorded by the pipeline and auto-blocker.
const (
	EventAutoBlockTriggered = "auto_block_triggered"
	EventIPRuleCreated      = "ip_rule_created"
	EventIPRuleDeleted      = "ip_rule_deleted"
	EventTokenVersionBumped = "token_version_bumped"
	EventAPIKeyRevoked      = "api_key_revoked"
	EventCircuitOpened      = "circuit_opened"
	EventCircuitClosed      = "circuit_closed"
)
