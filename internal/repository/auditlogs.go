package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/google/uuid"
)

// AuditLogStore persists domain.AuditLog rows. Append-only: there is no
// Update or Delete — audit records are immutable once written (§3).
type AuditLogStore struct {
	db *sql.DB
}

func NewAuditLogStore(db *sql.DB) *AuditLogStore {
	return &AuditLogStore{db: db}
}

// Write is called synchronously from the hot path (§5: audit writes are
// synchronous, unlike best-effort logging).
func (s *AuditLogStore) Write(ctx context.Context, a *domain.AuditLog) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	changesJSON, err := json.Marshal(a.Changes)
	if err != nil {
		return err
	}
	metadataJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, "timestamp", event_type, actor_user_id, actor_ip, resource_type, resource_id, changes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.Timestamp, a.EventType, a.ActorUserID, a.ActorIP, a.ResourceType, a.ResourceID, changesJSON, metadataJSON)
	return err
}

// ListFilter restricts List to a subset, both fields optional.
type ListFilter struct {
	EventType string
	ActorID   string
	Limit     int
	Offset    int
}

func (s *AuditLogStore) List(ctx context.Context, f ListFilter) ([]*domain.AuditLog, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, "timestamp", event_type, actor_user_id, actor_ip, resource_type, resource_id, changes, metadata
		FROM audit_logs
		WHERE ($1 = '' OR event_type = $1) AND ($2 = '' OR actor_user_id::text = $2)
		ORDER BY "timestamp" DESC
		LIMIT $3 OFFSET $4
	`, f.EventType, f.ActorID, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		a := &domain.AuditLog{}
		var changesRaw, metadataRaw []byte
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.EventType, &a.ActorUserID, &a.ActorIP, &a.ResourceType, &a.ResourceID, &changesRaw, &metadataRaw); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(changesRaw, &a.Changes)
		_ = json.Unmarshal(metadataRaw, &a.Metadata)
		out = append(out, a)
	}
	return out, rows.Err()
}
