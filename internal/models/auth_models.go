package models

import "time"

// Role names carried in tokens and checked by the router.
const (
	RoleAdmin        = "Admin"
	RoleTechnician   = "Technician"
	RoleReceptionist = "Receptionist"
)

// User represents a user in the system
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Email        *string   `json:"email,omitempty" db:"email"`
	FullName     *string   `json:"full_name,omitempty" db:"full_name"`
	Role         string    `json:"role" db:"role"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// RefreshToken is a stored long-lived token. Only the SHA-256 of the value
// handed to the client is kept.
type RefreshToken struct {
	ID        int64      `db:"id"`
	UserID    int64      `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Usable reports whether the token can still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// IsTechnician reports whether the user may be assigned to repair tickets.
func (u *User) IsTechnician() bool {
	return u.Role == RoleTechnician
}

// ValidRole reports whether name is one of the known roles.
func ValidRole(name string) bool {
	switch name {
	case RoleAdmin, RoleTechnician, RoleReceptionist:
		return true
	}
	return false
}
