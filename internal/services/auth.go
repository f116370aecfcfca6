package services

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/diagramlab/apiserver/internal/notify"
	"github.com/diagramlab/apiserver/internal/password"
	"github.com/diagramlab/apiserver/internal/store"
	"github.com/diagramlab/apiserver/internal/tokens"
	"github.com/diagramlab/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id int, at time.Time) error
	SetResetToken(ctx context.Context, id int, digest string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, digest, passwordHash string, now time.Time) (types.User, error)
}

// AuthService encapsulates signup, login, and the password lifecycle.
type AuthService struct {
	users      UserRepository
	notifier   notify.Notifier
	adminEmail string
	baseURL    string
	now        func() time.Time
}

// NewAuthService constructs an AuthService. adminEmail is the operator
// bootstrap identity; baseURL is the web app origin used in reset links.
func NewAuthService(users UserRepository, notifier notify.Notifier, adminEmail, baseURL string) *AuthService {
	return &AuthService{
		users:      users,
		notifier:   notifier,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
	}
}

type SignupParams struct {
	Email    string
	Name     string
	Password string
}

// Signup creates a credentials-based account. The operator-configured
// admin email is provisioned active with the admin role; every other new
// identity starts as a pending regular user.
func (s *AuthService) Signup(ctx context.Context, params SignupParams) (types.User, error) {
	email := normalizeEmail(params.Email)

	if violations := password.Validate(params.Password); len(violations) > 0 {
		return types.User{}, &PasswordPolicyError{Violations: violations}
	}

	hash, err := password.Hash(params.Password)
	if err != nil {
		return types.User{}, err
	}

	role, status := s.provision(email)
	user, err := s.users.Create(ctx, types.User{
		Email:        email,
		Name:         strings.TrimSpace(params.Name),
		PasswordHash: &hash,
		Provider:     types.ProviderEmail,
		Role:         role,
		Status:       status,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}
	return user, nil
}

// Login verifies credentials and records the login time on success.
func (s *AuthService) Login(ctx context.Context, email, plaintext string) (types.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if !user.HasPassword() {
		return types.User{}, ErrExternalAccount
	}
	if err := password.Compare(*user.PasswordHash, plaintext); err != nil {
		return types.User{}, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Printf("auth: last-login update failed for user %d: %v", user.ID, err)
	}
	user.LastLoginAt = &now
	return user, nil
}

// ExternalSignIn resolves a verified external identity to a local
// account, provisioning one on first sight under the bootstrap rule.
//
// Profile sync fails closed: if the synced name cannot be persisted the
// sign-in is rejected rather than proceeding with stale data.
func (s *AuthService) ExternalSignIn(ctx context.Context, provider, email, name string) (types.User, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		role, status := s.provision(email)
		user, err = s.users.Create(ctx, types.User{
			Email:    email,
			Name:     strings.TrimSpace(name),
			Provider: provider,
			Role:     role,
			Status:   status,
		})
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with a concurrent first sign-in; use that row.
			user, err = s.users.GetByEmail(ctx, email)
		}
	}
	if err != nil {
		return types.User{}, err
	}

	if name = strings.TrimSpace(name); name != "" && name != user.Name {
		user.Name = name
		if user, err = s.users.Update(ctx, user); err != nil {
			return types.User{}, err
		}
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Printf("auth: last-login update failed for user %d: %v", user.ID, err)
	}
	user.LastLoginAt = &now
	return user, nil
}

// ForgotPassword issues a reset token for the address if it belongs to a
// credentials-based account. It returns nil for unknown addresses and
// external-only accounts so the endpoint's observable behavior is
// identical in every non-infrastructure case.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.HasPassword() {
		return nil
	}

	plaintext, digest, err := tokens.NewResetToken()
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, user.ID, digest, s.now().Add(tokens.ResetTokenTTL)); err != nil {
		return err
	}

	link := s.baseURL + "/reset-password?token=" + url.QueryEscape(plaintext)
	if err := s.notifier.SendPasswordReset(ctx, user.Email, link); err != nil {
		// Delivery is fire-and-forget; the response stays uniform.
		log.Printf("auth: reset mail dispatch failed for user %d: %v", user.ID, err)
	}
	return nil
}

// ResetPassword consumes a reset token and stores the new password. The
// token digest lookup, expiry check, credential update, and token
// clearing happen in one statement, so a consumed token cannot be
// replayed.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if violations := password.Validate(newPassword); len(violations) > 0 {
		return &PasswordPolicyError{Violations: violations}
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}

	if _, err := s.users.ConsumeResetToken(ctx, tokens.Digest(token), hash, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return nil
}

// ChangePassword replaces the password of an authenticated user after
// verifying the current one. A new password equal to the current one is
// rejected.
func (s *AuthService) ChangePassword(ctx context.Context, userID int, current, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return ErrExternalAccount
	}
	if err := password.Compare(*user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	if password.Compare(*user.PasswordHash, newPassword) == nil {
		return ErrPasswordUnchanged
	}
	if violations := password.Validate(newPassword); len(violations) > 0 {
		return &PasswordPolicyError{Violations: violations}
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

// GetByID loads a user by ID (used by the auth middleware to resolve the
// session subject to a live account).
func (s *AuthService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *AuthService) provision(email string) (role, status string) {
	if s.adminEmail != "" && email == s.adminEmail {
		return types.RoleAdmin, types.StatusActive
	}
	return types.RoleUser, types.StatusPending
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
