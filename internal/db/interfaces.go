package db

import (
	"context"
	"time"

	"repohub-backend-go/internal/models"
)

// UserRepository defines the interface for user profile storage operations.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error // ErrAlreadyExists if the id is taken
	Update(ctx context.Context, user *models.User) error
}

// RepoRepository defines the interface for repository metadata storage operations.
// Repositories are addressed by directory once loaded; GetByID scans all of them.
type RepoRepository interface {
	// Claim reserves the directory of a new repository. ErrAlreadyExists if it is taken.
	Claim(ctx context.Context, ownerID, slug string) (*RepoRecord, error)
	Save(ctx context.Context, record *RepoRecord) error
	Update(ctx context.Context, record *RepoRecord, mutate func(*models.Repository) error) (*models.Repository, error)
	Remove(ctx context.Context, record *RepoRecord) error
	GetByID(ctx context.Context, repoID string) (*RepoRecord, error)
	List(ctx context.Context) ([]RepoRecord, error)
}

// TokenRepository stores token pools. A pool is identified by the path of its document,
// so the account-scoped pool and every repository-scoped pool share one implementation.
type TokenRepository interface {
	List(ctx context.Context, pool string) ([]models.TokenRecord, error)
	Add(ctx context.Context, pool string, record models.TokenRecord) error
	// Remove deletes the records matching match and reports whether any were removed.
	Remove(ctx context.Context, pool string, match func(models.TokenRecord) bool) (bool, error)
	// Touch stamps LastUsedAt on a token. ErrNotFound if it no longer exists.
	Touch(ctx context.Context, pool, tokenID string, at time.Time) (*models.TokenRecord, error)
}

// AuditRepository defines the interface for audit event storage operations.
type AuditRepository interface {
	Create(ctx context.Context, event models.AuditEvent) error
}
