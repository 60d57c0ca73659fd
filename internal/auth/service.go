package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hotwellkz/app122/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// VerifyPassword re-proves the identity of an already signed-in operator.
// Used as the gate in front of destructive mutations.
func (s *Service) VerifyPassword(ctx context.Context, accountID, password string) error {
	user, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return shared.ErrInvalidCredentials
	}
	return nil
}

// Register creates a new account with a hashed password.
func (s *Service) Register(ctx context.Context, email, displayName, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id, accountID string, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, accountID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
