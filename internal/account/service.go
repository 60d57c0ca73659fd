package account

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/hotwellkz/app122/internal/shared"
)

// RepositoryPort defines the account store operations the service needs.
type RepositoryPort interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	Delete(ctx context.Context, id string) error
	UpdateDisplayName(ctx context.Context, id, displayName string) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// ChangePublisher signals roster-visible account changes to the live feed.
type ChangePublisher interface {
	PublishChange(ctx context.Context) error
}

// Service implements the account mutations behind the console. It never
// touches the roster mirror directly: after a commit it publishes a change
// event and lets subscribers observe the result.
type Service struct {
	logger  *slog.Logger
	repo    RepositoryPort
	changes ChangePublisher
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, repo RepositoryPort, changes ChangePublisher) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, changes: changes}
}

// Account loads one account by ID.
func (s *Service) Account(ctx context.Context, id string) (*Account, error) {
	return s.repo.FindByID(ctx, id)
}

// DeleteAccount removes the account and its sessions. The roster mirror is
// not updated here; the published change event triggers a fresh snapshot.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("account: delete %s: %w", id, err)
	}
	s.publish(ctx)
	return nil
}

// UpdateProfile sets the display name.
func (s *Service) UpdateProfile(ctx context.Context, id, displayName string) error {
	if err := s.repo.UpdateDisplayName(ctx, id, displayName); err != nil {
		return fmt.Errorf("account: update profile %s: %w", id, err)
	}
	s.publish(ctx)
	return nil
}

// ChangePassword verifies the current password and stores a hash of the new
// one. A wrong current password fails with shared.ErrInvalidCredentials,
// distinct from store errors.
func (s *Service) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	acct, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("account: change password %s: %w", id, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(currentPassword)); err != nil {
		return shared.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("account: hash password: %w", err)
	}
	if err := s.repo.UpdatePasswordHash(ctx, id, string(hash)); err != nil {
		return fmt.Errorf("account: store password %s: %w", id, err)
	}
	return nil
}

// publish emits a roster change event. A failed publish is logged, not
// surfaced: the mutation already committed and the reconcile job heals
// missed events.
func (s *Service) publish(ctx context.Context) {
	if s.changes == nil {
		return
	}
	if err := s.changes.PublishChange(ctx); err != nil {
		s.logger.Warn("publish roster change", slog.Any("error", err))
	}
}
