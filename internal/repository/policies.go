package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/google/uuid"
)

// PolicyStore persists domain.RateLimitPolicy rows.
type PolicyStore struct {
	db *sql.DB
}

func NewPolicyStore(db *sql.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

func (s *PolicyStore) Create(ctx context.Context, p *domain.RateLimitPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_policies (id, api_definition_id, tier, strategy, capacity, refill_rate, window_seconds, failure_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.ApiDefinitionID, tierValue(p.Tier), p.Strategy, p.Capacity, p.RefillRate, p.WindowSeconds, p.FailureMode)
	return err
}

func (s *PolicyStore) GetByID(ctx context.Context, id string) (*domain.RateLimitPolicy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, api_definition_id, tier, strategy, capacity, refill_rate, window_seconds, failure_mode
		FROM rate_limit_policies WHERE id = $1
	`, id)
	return scanPolicy(row)
}

// ListByRoute returns every policy for a route, default (nil tier) and
// tier-specific alike. Policy selection (§4.3) happens at the call site.
func (s *PolicyStore) ListByRoute(ctx context.Context, routeID string) ([]*domain.RateLimitPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, api_definition_id, tier, strategy, capacity, refill_rate, window_seconds, failure_mode
		FROM rate_limit_policies WHERE api_definition_id = $1
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RateLimitPolicy
	for rows.Next() {
		p, err := scanPolicyRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PolicyStore) Update(ctx context.Context, p *domain.RateLimitPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE rate_limit_policies
		SET tier = $2, strategy = $3, capacity = $4, refill_rate = $5, window_seconds = $6, failure_mode = $7
		WHERE id = $1
	`, p.ID, tierValue(p.Tier), p.Strategy, p.Capacity, p.RefillRate, p.WindowSeconds, p.FailureMode)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

func (s *PolicyStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_policies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

func tierValue(t *domain.Tier) interface{} {
	if t == nil {
		return nil
	}
	return string(*t)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(row *sql.Row) (*domain.RateLimitPolicy, error) {
	p, err := scanPolicyRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func scanPolicyRow(row rowScanner) (*domain.RateLimitPolicy, error) {
	p := &domain.RateLimitPolicy{}
	var tier *string
	if err := row.Scan(&p.ID, &p.ApiDefinitionID, &tier, &p.Strategy, &p.Capacity, &p.RefillRate, &p.WindowSeconds, &p.FailureMode); err != nil {
		return nil, err
	}
	if tier != nil {
		t := domain.Tier(*tier)
		p.Tier = &t
	}
	return p, nil
}
