package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/storage"
)

// UserService provisions users. There is no self-service registration;
// operators create users from the command line.
type UserService struct {
	repo storage.UserRepository
}

// NewUserService creates the user service.
func NewUserService(repo storage.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Create stores a new active user.
func (s *UserService) Create(ctx context.Context, email, displayName string) (*domain.User, error) {
	now := time.Now().UTC()
	user := &domain.User{
		ID:          uuid.NewString(),
		Email:       strings.ToLower(strings.TrimSpace(email)),
		DisplayName: strings.TrimSpace(displayName),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := user.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetOrCreate returns the user with email, creating it when missing.
func (s *UserService) GetOrCreate(ctx context.Context, email, displayName string) (*domain.User, bool, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}
	user, err = s.Create(ctx, email, displayName)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Active returns the user when it exists and is active.
func (s *UserService) Active(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, storage.ErrNotFound
	}
	return user, nil
}
