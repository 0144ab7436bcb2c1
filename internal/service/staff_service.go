package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"go.uber.org/zap"
)

// UpsertHandlerInput creates or updates a staff user. A nil Active keeps the
// current flag, or activates a new user. A nil Capacity clears any override.
type UpsertHandlerInput struct {
	ID       string
	FullName string
	Role     domain.Role
	Active   *bool
	Capacity *int
}

// StaffService maintains staff users and their capacity.
type StaffService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

func NewStaffService(users repository.UserRepository, logger *zap.Logger) (*StaffService, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{users: users, logger: logger}, nil
}

// Upsert is restricted to administrators. An administrator cannot demote or
// deactivate themselves.
func (s *StaffService) Upsert(ctx context.Context, in UpsertHandlerInput, actor domain.Actor) (*domain.Handler, error) {
	if actor.Role != domain.RoleAdministrator {
		return nil, fmt.Errorf("%w: role %s cannot manage staff", domain.ErrForbidden, actor.Role)
	}

	in.ID = strings.TrimSpace(in.ID)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.ID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if !in.Role.IsValid() || in.Role == domain.RoleSystem {
		return nil, fmt.Errorf("%w: invalid role %q", domain.ErrValidation, in.Role)
	}
	if in.Capacity != nil && *in.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be > 0", domain.ErrValidation)
	}

	current, err := s.users.GetByID(ctx, in.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	h := domain.Handler{ID: in.ID, FullName: in.FullName, Role: in.Role, Active: true, Capacity: in.Capacity}
	if current != nil {
		if h.FullName == "" {
			h.FullName = current.FullName
		}
		h.Active = current.Active
	}
	if in.Active != nil {
		h.Active = *in.Active
	}
	if h.FullName == "" {
		h.FullName = h.ID
	}

	if in.ID == actor.UserID && (!h.Active || h.Role != domain.RoleAdministrator) {
		return nil, fmt.Errorf("%w: administrators cannot demote or deactivate themselves", domain.ErrConflict)
	}

	if err := s.users.Upsert(ctx, &h); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	observability.WithContextLogger(s.logger, ctx).Info("staff user saved",
		zap.String("userId", h.ID),
		zap.String("role", h.Role.String()),
		zap.Bool("active", h.Active),
		zap.Bool("created", current == nil),
	)
	return &h, nil
}
