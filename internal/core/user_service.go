package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/models"
)

// userService implements the UserService interface.
type userService struct {
	userRepo db.UserRepository
}

// NewUserService creates a new UserService instance.
func NewUserService(userRepo db.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

// GetOrCreate retrieves a user by ID. If the user doesn't exist, it creates one from the
// identity claims. The boolean reports whether the user was created.
func (s *userService) GetOrCreate(ctx context.Context, userID, email, displayName string) (*models.User, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, false, validationError("user id is required")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err == nil {
		return s.refreshClaims(ctx, user, email, displayName)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to get user by ID '%s' from repository: %w", userID, err)
	}

	now := time.Now().UTC()
	newUser := &models.User{
		ID:          userID,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			// Lost a race with a concurrent first login of the same user.
			existing, getErr := s.userRepo.GetByID(ctx, userID)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to get user by ID '%s' from repository: %w", userID, getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create user (id: %s) after not found: %w", userID, err)
	}
	return newUser, true, nil
}

// refreshClaims keeps the stored email and display name in line with the identity provider.
func (s *userService) refreshClaims(ctx context.Context, user *models.User, email, displayName string) (*models.User, bool, error) {
	changed := false
	if email != "" && email != user.Email {
		user.Email = email
		changed = true
	}
	if displayName != "" && displayName != user.DisplayName {
		user.DisplayName = displayName
		changed = true
	}
	if !changed {
		return user, false, nil
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, false, fmt.Errorf("failed to update user '%s': %w", user.ID, err)
	}
	return user, false, nil
}

// GetByID retrieves a user by their ID.
func (s *userService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get user by ID '%s' from repository: %w", userID, err)
	}
	return user, nil
}
