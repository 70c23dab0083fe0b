package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"repohub-backend-go/internal/models"
)

// fsRepoRepository implements RepoRepository on top of the JSON store. Each repository
// lives in DATA_ROOT/repos/<owner>/<slug>.
type fsRepoRepository struct {
	layout Layout
	store  *JSONStore
	logger *zap.Logger
}

// NewRepoRepository creates a new file-backed RepoRepository.
func NewRepoRepository(layout Layout, store *JSONStore, logger *zap.Logger) RepoRepository {
	return &fsRepoRepository{layout: layout, store: store, logger: logger}
}

// Claim creates the repository directory. os.Mkdir is atomic, so of two concurrent
// creators of the same owner/slug exactly one wins.
func (r *fsRepoRepository) Claim(ctx context.Context, ownerID, slug string) (*RepoRecord, error) {
	if err := validSegment(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner id: %w", err)
	}
	if err := validSegment(slug); err != nil {
		return nil, fmt.Errorf("invalid slug: %w", err)
	}
	dir := r.layout.RepoDir(ownerID, slug)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create owner directory: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("repository '%s/%s': %w", ownerID, slug, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create repository directory: %w", err)
	}
	return &RepoRecord{Dir: dir}, nil
}

// Save writes the full metadata document of record.
func (r *fsRepoRepository) Save(ctx context.Context, record *RepoRecord) error {
	if err := WriteJSON(r.store, record.MetadataPath(), record.Repository); err != nil {
		return fmt.Errorf("failed to save repository '%s': %w", record.Repository.ID, err)
	}
	return nil
}

// Update applies mutate to the stored document under its file lock and refreshes record.
func (r *fsRepoRepository) Update(ctx context.Context, record *RepoRecord, mutate func(*models.Repository) error) (*models.Repository, error) {
	updated, err := ModifyJSON(r.store, record.MetadataPath(), func(current models.Repository) (models.Repository, error) {
		if err := mutate(&current); err != nil {
			return current, err
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	record.Repository = updated
	return &updated, nil
}

// Remove deletes the repository directory recursively.
func (r *fsRepoRepository) Remove(ctx context.Context, record *RepoRecord) error {
	if record.Dir == "" || !strings.HasPrefix(record.Dir, r.layout.ReposRoot()+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove '%s' outside of the repositories root", record.Dir)
	}
	if err := os.RemoveAll(record.Dir); err != nil {
		return fmt.Errorf("failed to remove repository directory: %w", err)
	}
	// Drop the owner directory once its last repository is gone; fails harmlessly otherwise.
	_ = os.Remove(filepath.Dir(record.Dir))
	return nil
}

// GetByID scans all repository documents for repoID.
func (r *fsRepoRepository) GetByID(ctx context.Context, repoID string) (*RepoRecord, error) {
	if repoID == "" {
		return nil, errors.New("repoID cannot be empty for GetByID operation")
	}
	records, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Repository.ID == repoID {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("repository with ID '%s' not found: %w", repoID, ErrNotFound)
}

// List loads every repository document, newest first. Directories without a readable
// document (a creation in progress, a concurrent delete) are skipped.
func (r *fsRepoRepository) List(ctx context.Context) ([]RepoRecord, error) {
	matches, err := filepath.Glob(filepath.Join(r.layout.ReposRoot(), "*", "*", repoMetadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to scan repositories: %w", err)
	}
	records := make([]RepoRecord, 0, len(matches))
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		repo, err := LoadJSON[models.Repository](r.store, path)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				r.logger.Warn("Skipping unreadable repository document", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		if repo.ID == "" {
			continue
		}
		records = append(records, RepoRecord{Dir: filepath.Dir(path), Repository: repo})
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Repository, records[j].Repository
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return records, nil
}

func validSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("'%s' is not a valid path segment", s)
	}
	return nil
}
