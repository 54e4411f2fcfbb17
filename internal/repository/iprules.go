package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/google/uuid"
)

// IPRuleStore persists domain.IpRule rows.
type IPRuleStore struct {
	db *sql.DB
}

func NewIPRuleStore(db *sql.DB) *IPRuleStore {
	return &IPRuleStore{db: db}
}

func (s *IPRuleStore) Create(ctx context.Context, r *domain.IpRule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ip_rules (id, ip_address, rule_type, reason, auto_blocked, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.IPAddress, r.RuleType, r.Reason, r.AutoBlocked, r.ExpiresAt, r.CreatedAt)
	return err
}

func (s *IPRuleStore) GetByID(ctx context.Context, id string) (*domain.IpRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ip_address, rule_type, reason, auto_blocked, expires_at, created_at
		FROM ip_rules WHERE id = $1
	`, id)
	return scanIPRule(row)
}

// ActiveBlockForIP returns the active block rule for ip, if any.
func (s *IPRuleStore) ActiveBlockForIP(ctx context.Context, ip string) (*domain.IpRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ip_address, rule_type, reason, auto_blocked, expires_at, created_at
		FROM ip_rules
		WHERE ip_address = $1 AND rule_type = 'block' AND (expires_at IS NULL OR expires_at > now())
		ORDER BY created_at DESC LIMIT 1
	`, ip)
	return scanIPRule(row)
}

// ActiveAllowForIP returns the active allow rule for ip, if any.
func (s *IPRuleStore) ActiveAllowForIP(ctx context.Context, ip string) (*domain.IpRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ip_address, rule_type, reason, auto_blocked, expires_at, created_at
		FROM ip_rules
		WHERE ip_address = $1 AND rule_type = 'allow' AND (expires_at IS NULL OR expires_at > now())
		ORDER BY created_at DESC LIMIT 1
	`, ip)
	return scanIPRule(row)
}

func (s *IPRuleStore) List(ctx context.Context) ([]*domain.IpRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ip_address, rule_type, reason, auto_blocked, expires_at, created_at
		FROM ip_rules ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.IpRule
	for rows.Next() {
		r := &domain.IpRule{}
		if err := rows.Scan(&r.ID, &r.IPAddress, &r.RuleType, &r.Reason, &r.AutoBlocked, &r.ExpiresAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *IPRuleStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ip_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

// DeleteExpiredAutoBlocks sweeps expired auto-blocked rules, run
// periodically by the janitor (janitor.go). Returns the number removed.
func (s *IPRuleStore) DeleteExpiredAutoBlocks(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM ip_rules WHERE auto_blocked = true AND expires_at IS NOT NULL AND expires_at <= now()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanIPRule(row *sql.Row) (*domain.IpRule, error) {
	r := &domain.IpRule{}
	if err := row.Scan(&r.ID, &r.IPAddress, &r.RuleType, &r.Reason, &r.AutoBlocked, &r.ExpiresAt, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}
