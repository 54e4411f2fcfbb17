// Package repository implements the durable data model (§3) against
// PostgreSQL via database/sql, one file per aggregate.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/R3E-Network/api-gateway/internal/domain"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("repository: not found")

// UserStore persists domain.User rows.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.TokenVersion == 0 {
		u.TokenVersion = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_digest, role, tier, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.PasswordDigest, u.Role, u.Tier, u.TokenVersion, u.CreatedAt, u.UpdatedAt)
	return err
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_digest, role, tier, token_version, created_at, updated_at
		FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_digest, role, tier, token_version, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email))
	return scanUser(row)
}

func (s *UserStore) List(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, password_digest, role, tier, token_version, created_at, updated_at
		FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		u := &domain.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordDigest, &u.Role, &u.Tier, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Update persists mutable fields (email, role, tier). Password and
// token_version changes go through dedicated methods to keep their
// invariants explicit at the call site.
func (s *UserStore) Update(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $2, role = $3, tier = $4, updated_at = $5
		WHERE id = $1
	`, u.ID, u.Email, u.Role, u.Tier, u.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

// BumpTokenVersion increments token_version, invalidating every outstanding
// token for the user in O(1) without per-token tracking.
func (s *UserStore) BumpTokenVersion(ctx context.Context, id string) (newVersion int, err error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET token_version = token_version + 1, updated_at = now()
		WHERE id = $1
		RETURNING token_version
	`, id)
	if err := row.Scan(&newVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return newVersion, nil
}

func (s *UserStore) SetPasswordDigest(ctx context.Context, id, digest string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_digest = $2, updated_at = now() WHERE id = $1
	`, id, digest)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	u := &domain.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordDigest, &u.Role, &u.Tier, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func requireRowsAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
