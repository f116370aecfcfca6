package services

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password
	// so a caller cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExternalAccount marks an account that signs in through an
	// external identity provider and has no password to verify.
	ErrExternalAccount = errors.New("account uses an external identity provider")

	// ErrEmailTaken is a true duplicate on signup, surfaced as 409.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidToken covers unknown, consumed, and expired reset tokens
	// identically so a caller cannot tell which failure occurred.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrPasswordUnchanged rejects a password change to the same value.
	ErrPasswordUnchanged = errors.New("new password must differ from the current password")

	// ErrForbidden means the resource exists but the requester is neither
	// its owner nor an admin.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidStatusTransition rejects illegal account status moves,
	// including any attempt to return an account to pending.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrInvalidRole rejects a role outside user/admin.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidStatus rejects a status outside pending/active/suspended.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidDiagramType rejects a type outside the fixed whitelist.
	ErrInvalidDiagramType = errors.New("invalid diagram type")

	// ErrNameRequired rejects a diagram without a name.
	ErrNameRequired = errors.New("name is required")
)

// PasswordPolicyError aggregates every violated password rule so the
// caller can render all of them at once.
type PasswordPolicyError struct {
	Violations []string
}

func (e *PasswordPolicyError) Error() string {
	return "password policy: " + strings.Join(e.Violations, "; ")
}
