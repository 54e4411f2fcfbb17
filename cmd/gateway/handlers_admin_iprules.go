package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/R3E-Network/api-gateway/internal/repository"
)

// =============================================================================
// Admin: IP rules (§6.2) — manual block/allow entries. Deleting a rule is
// the manual-unblock path for both operator-created and auto-blocker-created
// rows (§4.5).
// =============================================================================

type ipRuleRequest struct {
	IPAddress       string `json:"ip_address" validate:"required,ip"`
	RuleType        string `json:"rule_type" validate:"required,oneof=block allow"`
	Reason          string `json:"reason"`
	ExpiresInSecond *int   `json:"expires_in_seconds" validate:"omitempty,gt=0"`
}

func listIPRulesHandler(ipRules *repository.IPRuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := ipRules.List(r.Context())
		if err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, list)
	}
}

func createIPRuleHandler(ipRules *repository.IPRuleStore, auditLogs *repository.AuditLogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ipRuleRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		var expiresAt *time.Time
		if req.ExpiresInSecond != nil {
			t := time.Now().UTC().Add(time.Duration(*req.ExpiresInSecond) * time.Second)
			expiresAt = &t
		}

		rule := &domain.IpRule{
			ID:        uuid.NewString(),
			IPAddress: req.IPAddress,
			RuleType:  domain.IpRuleType(req.RuleType),
			Reason:    req.Reason,
			ExpiresAt: expiresAt,
		}
		if err := ipRules.Create(r.Context(), rule); err != nil {
			httputil.InternalError(w, "")
			return
		}

		actorID := httputil.GetUserID(r)
		_ = auditLogs.Write(r.Context(), &domain.AuditLog{
			EventType:    domain.EventIPRuleCreated,
			ActorUserID:  &actorID,
			ResourceType: strPtr("ip_rule"),
			ResourceID:   &rule.ID,
			Changes:      map[string]any{"ip_address": rule.IPAddress, "rule_type": rule.RuleType},
		})

		httputil.WriteJSON(w, http.StatusCreated, rule)
	}
}

func deleteIPRuleHandler(ipRules *repository.IPRuleStore, auditLogs *repository.AuditLogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		rule, lookupErr := ipRules.GetByID(r.Context(), id)
		if err := ipRules.Delete(r.Context(), id); err != nil {
			httputil.InternalError(w, "")
			return
		}

		if lookupErr == nil {
			actorID := httputil.GetUserID(r)
			_ = auditLogs.Write(r.Context(), &domain.AuditLog{
				EventType:    domain.EventIPRuleDeleted,
				ActorUserID:  &actorID,
				ResourceType: strPtr("ip_rule"),
				ResourceID:   &id,
				Changes:      map[string]any{"ip_address": rule.IPAddress},
			})
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// =============================================================================
// Admin: audit logs (§6.2) — read-only, paginated, filterable.
// =============================================================================

func listAuditLogsHandler(auditLogs *repository.AuditLogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := httputil.PaginationParams(r, 50, 200)
		logs, err := auditLogs.List(r.Context(), repository.ListFilter{
			EventType: httputil.QueryString(r, "event_type", ""),
			ActorID:   httputil.QueryString(r, "actor", ""),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			httputil.InternalError(w, "")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, logs)
	}
}
