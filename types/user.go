package types

import "time"

// Roles a user can hold. Admin is only ever set by the first-run
// bootstrap rule or by an explicit admin action.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account statuses. A pending account has authenticated but is waiting
// for operator approval; a suspended account is locked out of active-only
// routes. Once an account leaves pending it never returns to it.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Auth providers.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// User represents an account in the system.
// It contains identity, role, status, and reset-token metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's email address, stored lower-cased and unique.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// PasswordHash stores the bcrypt hash of the user's password. Nil
	// means the account signs in through an external identity provider
	// only. This field is never exposed in API responses.
	PasswordHash *string `json:"-" db:"password_hash"`

	// Provider records which identity provider created the account
	// (e.g., "email", "google").
	Provider string `json:"provider" db:"provider"`

	// Role indicates the user's authorization level within the system
	// (e.g., "admin", "user").
	Role string `json:"role" db:"role"`

	// Status is the account lifecycle state: "pending", "active", or
	// "suspended".
	Status string `json:"status" db:"status"`

	// ResetTokenHash is the SHA-256 digest of the outstanding
	// password-reset token, if any. The plaintext token is never stored.
	ResetTokenHash *string `json:"-" db:"reset_token_hash"`

	// ResetTokenExpiresAt bounds the lifetime of the outstanding reset
	// token. Expiry is enforced by comparison at validation time.
	ResetTokenExpiresAt *time.Time `json:"-" db:"reset_token_expires_at"`

	// LastLoginAt is the timestamp of the most recent successful login.
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasPassword reports whether the account can authenticate with
// credentials, as opposed to an external identity provider only.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ValidStatusTransition reports whether an account may move from one
// status to another. No transition reverts an account to pending once
// it has left that state.
func ValidStatusTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusActive || to == StatusSuspended
	case StatusActive:
		return to == StatusSuspended
	case StatusSuspended:
		return to == StatusActive
	default:
		return false
	}
}
