package db

import (
	"context"
	"errors"
	"fmt"

	"repohub-backend-go/internal/models"
)

// fsUserRepository implements UserRepository with a single users.json document keyed by id.
type fsUserRepository struct {
	path  string
	store *JSONStore
}

// NewUserRepository creates a new file-backed UserRepository.
func NewUserRepository(layout Layout, store *JSONStore) UserRepository {
	return &fsUserRepository{path: layout.UsersPath(), store: store}
}

func (r *fsUserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, errors.New("userID cannot be empty for GetByID operation")
	}
	users, err := ReadJSON(r.store, r.path, map[string]models.User{})
	if err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	user, ok := users[userID]
	if !ok {
		return nil, fmt.Errorf("user with ID '%s' not found: %w", userID, ErrNotFound)
	}
	return &user, nil
}

func (r *fsUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return errors.New("user ID cannot be empty for Create operation")
	}
	_, err := UpdateJSON(r.store, r.path, map[string]models.User{}, func(users map[string]models.User) (map[string]models.User, error) {
		if users == nil {
			users = map[string]models.User{}
		}
		if _, exists := users[user.ID]; exists {
			return nil, fmt.Errorf("user with ID '%s': %w", user.ID, ErrAlreadyExists)
		}
		users[user.ID] = *user
		return users, nil
	})
	return err
}

func (r *fsUserRepository) Update(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return errors.New("user ID cannot be empty for Update operation")
	}
	_, err := UpdateJSON(r.store, r.path, map[string]models.User{}, func(users map[string]models.User) (map[string]models.User, error) {
		if _, exists := users[user.ID]; !exists {
			return nil, fmt.Errorf("user with ID '%s' not found: %w", user.ID, ErrNotFound)
		}
		users[user.ID] = *user
		return users, nil
	})
	return err
}
