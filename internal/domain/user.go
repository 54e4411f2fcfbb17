// Package domain defines the gateway's durable entities and their invariants.
package domain

import "time"

// Role is the access level granted to a User.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Tier selects which RateLimitPolicy applies to a caller.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// User is an account holder. Email is case-insensitive and unique;
// PasswordDigest is a bcrypt hash, never the plaintext password.
//
// TokenVersion is bumped on password change, forced revocation, or an
// explicit "log out everywhere" action. Every access/refresh token embeds the
// TokenVersion it was issued under; a mismatch at validation time means the
// token predates a mass revocation.
type User struct {
	ID             string
	Email          string
	PasswordDigest string
	Role           Role
	Tier           Tier
	TokenVersion   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
