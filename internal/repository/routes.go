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

// RouteStore persists domain.ApiDefinition rows. Routes own their policies
// (ON DELETE CASCADE in the migration).
type RouteStore struct {
	db *sql.DB
}

func NewRouteStore(db *sql.DB) *RouteStore {
	return &RouteStore{db: db}
}

func (s *RouteStore) Create(ctx context.Context, r *domain.ApiDefinition) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_definitions (id, name, route_pattern, backend_url, allowed_methods, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, r.ID, r.Name, r.RoutePattern, r.BackendURL, pq.Array(r.AllowedMethods), r.Enabled, now)
	return err
}

func (s *RouteStore) GetByID(ctx context.Context, id string) (*domain.ApiDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, route_pattern, backend_url, allowed_methods, enabled
		FROM api_definitions WHERE id = $1
	`, id)
	return scanRoute(row)
}

// ListEnabled returns every enabled route in registration order, the order
// §9's first-registered-wins matching decision requires.
func (s *RouteStore) ListEnabled(ctx context.Context) ([]*domain.ApiDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, route_pattern, backend_url, allowed_methods, enabled
		FROM api_definitions WHERE enabled = true ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoutes(rows)
}

func (s *RouteStore) List(ctx context.Context) ([]*domain.ApiDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, route_pattern, backend_url, allowed_methods, enabled
		FROM api_definitions ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoutes(rows)
}

func (s *RouteStore) Update(ctx context.Context, r *domain.ApiDefinition) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_definitions
		SET name = $2, route_pattern = $3, backend_url = $4, allowed_methods = $5, enabled = $6, updated_at = now()
		WHERE id = $1
	`, r.ID, r.Name, r.RoutePattern, r.BackendURL, pq.Array(r.AllowedMethods), r.Enabled)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

func (s *RouteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_definitions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

func scanRoute(row *sql.Row) (*domain.ApiDefinition, error) {
	r := &domain.ApiDefinition{}
	var methods []string
	if err := row.Scan(&r.ID, &r.Name, &r.RoutePattern, &r.BackendURL, pq.Array(&methods), &r.Enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.AllowedMethods = methods
	return r, nil
}

func scanRoutes(rows *sql.Rows) ([]*domain.ApiDefinition, error) {
	var out []*domain.ApiDefinition
	for rows.Next() {
		r := &domain.ApiDefinition{}
		var methods []string
		if err := rows.Scan(&r.ID, &r.Name, &r.RoutePattern, &r.BackendURL, pq.Array(&methods), &r.Enabled); err != nil {
			return nil, err
		}
		r.AllowedMethods = methods
		out = append(out, r)
	}
	return out, rows.Err()
}
