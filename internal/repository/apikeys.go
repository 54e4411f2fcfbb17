package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// APIKeyStore persists domain.APIKey rows.
type APIKeyStore struct {
	db *sql.DB
}

func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

func (s *APIKeyStore) Create(ctx context.Context, k *domain.APIKey) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	k.CreatedAt = time.Now().UTC()
	if k.Status == "" {
		k.Status = domain.APIKeyActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, key_digest, prefix, display_name, scopes, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, k.ID, k.UserID, k.KeyDigest, k.Prefix, k.DisplayName, pq.Array(k.Scopes), k.Status, k.ExpiresAt, k.CreatedAt)
	return err
}

func (s *APIKeyStore) GetByDigest(ctx context.Context, digest string) (*domain.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, key_digest, prefix, display_name, scopes, status, expires_at, last_used_at, created_at
		FROM api_keys WHERE key_digest = $1
	`, digest)
	return scanAPIKey(row)
}

func (s *APIKeyStore) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, key_digest, prefix, display_name, scopes, status, expires_at, last_used_at, created_at
		FROM api_keys WHERE id = $1
	`, id)
	return scanAPIKey(row)
}

func (s *APIKeyStore) ListByUser(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, key_digest, prefix, display_name, scopes, status, expires_at, last_used_at, created_at
		FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.APIKey
	for rows.Next() {
		k := &domain.APIKey{}
		var scopes []string
		if err := rows.Scan(&k.ID, &k.UserID, &k.KeyDigest, &k.Prefix, &k.DisplayName, pq.Array(&scopes), &k.Status, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, err
		}
		k.Scopes = scopes
		out = append(out, k)
	}
	return out, rows.Err()
}

// TouchLastUsed records key usage. Best-effort, not transactionally
// consistent with the authentication decision that triggered it (§4.2).
func (s *APIKeyStore) TouchLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	return err
}

func (s *APIKeyStore) Revoke(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET status = $2 WHERE id = $1
	`, id, domain.APIKeyRevoked)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

func scanAPIKey(row *sql.Row) (*domain.APIKey, error) {
	k := &domain.APIKey{}
	var scopes []string
	if err := row.Scan(&k.ID, &k.UserID, &k.KeyDigest, &k.Prefix, &k.DisplayName, pq.Array(&scopes), &k.Status, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	k.Scopes = scopes
	return k, nil
}
