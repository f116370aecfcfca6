package services

import (
	"context"
	"errors"
	"strings"

	"github.com/diagramlab/apiserver/internal/password"
	"github.com/diagramlab/apiserver/internal/store"
	"github.com/diagramlab/apiserver/types"
)

// UserService encapsulates the admin-facing user management use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

type AdminCreateParams struct {
	Email    string
	Name     string
	Password string
	Role     string
	Status   string
}

// Create provisions an account on behalf of an admin, bypassing the
// pending step.
func (s *UserService) Create(ctx context.Context, params AdminCreateParams) (types.User, error) {
	if params.Role == "" {
		params.Role = types.RoleUser
	}
	if params.Status == "" {
		params.Status = types.StatusActive
	}
	if params.Role != types.RoleUser && params.Role != types.RoleAdmin {
		return types.User{}, ErrInvalidRole
	}
	if params.Status != types.StatusPending && params.Status != types.StatusActive && params.Status != types.StatusSuspended {
		return types.User{}, ErrInvalidStatus
	}
	if violations := password.Validate(params.Password); len(violations) > 0 {
		return types.User{}, &PasswordPolicyError{Violations: violations}
	}

	hash, err := password.Hash(params.Password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        strings.ToLower(strings.TrimSpace(params.Email)),
		Name:         strings.TrimSpace(params.Name),
		PasswordHash: &hash,
		Provider:     types.ProviderEmail,
		Role:         params.Role,
		Status:       params.Status,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}
	return user, nil
}

// ResetPassword force-sets a user's password, clearing any outstanding
// reset token.
func (s *UserService) ResetPassword(ctx context.Context, id int, newPassword string) error {
	if violations := password.Validate(newPassword); len(violations) > 0 {
		return &PasswordPolicyError{Violations: violations}
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, id, hash)
}

// SetStatus moves an account through the legal status transitions.
// Anything outside pending->active, pending->suspended, active->suspended,
// suspended->active is rejected.
func (s *UserService) SetStatus(ctx context.Context, id int, status string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if !types.ValidStatusTransition(user.Status, status) {
		return types.User{}, ErrInvalidStatusTransition
	}
	user.Status = status
	return s.repo.Update(ctx, user)
}

// SetRole changes a user's role.
func (s *UserService) SetRole(ctx context.Context, id int, role string) (types.User, error) {
	if role != types.RoleUser && role != types.RoleAdmin {
		return types.User{}, ErrInvalidRole
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	user.Role = role
	return s.repo.Update(ctx, user)
}
