package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repohub-backend-go/internal/models"
)

// fsTokenRepository implements TokenRepository with one JSON array document per pool.
type fsTokenRepository struct {
	store *JSONStore
}

// NewTokenRepository creates a new file-backed TokenRepository.
func NewTokenRepository(store *JSONStore) TokenRepository {
	return &fsTokenRepository{store: store}
}

// List never creates the pool: a missing document, or a missing repository directory,
// is an empty pool.
func (r *fsTokenRepository) List(ctx context.Context, pool string) ([]models.TokenRecord, error) {
	records, err := LoadJSON[[]models.TokenRecord](r.store, pool)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []models.TokenRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read token pool: %w", err)
	}
	if records == nil {
		records = []models.TokenRecord{}
	}
	return records, nil
}

func (r *fsTokenRepository) Add(ctx context.Context, pool string, record models.TokenRecord) error {
	_, err := UpdateJSON(r.store, pool, []models.TokenRecord{}, func(records []models.TokenRecord) ([]models.TokenRecord, error) {
		for _, existing := range records {
			if existing.ID == record.ID {
				return nil, fmt.Errorf("token '%s': %w", record.ID, ErrAlreadyExists)
			}
		}
		return append(records, record), nil
	})
	return err
}

func (r *fsTokenRepository) Remove(ctx context.Context, pool string, match func(models.TokenRecord) bool) (bool, error) {
	removed := false
	_, err := UpdateJSON(r.store, pool, []models.TokenRecord{}, func(records []models.TokenRecord) ([]models.TokenRecord, error) {
		kept := make([]models.TokenRecord, 0, len(records))
		for _, record := range records {
			if match(record) {
				removed = true
				continue
			}
			kept = append(kept, record)
		}
		return kept, nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Touch requires the pool document to exist, so stamping a token of a deleted
// repository never recreates its directory.
func (r *fsTokenRepository) Touch(ctx context.Context, pool, tokenID string, at time.Time) (*models.TokenRecord, error) {
	var touched *models.TokenRecord
	_, err := ModifyJSON(r.store, pool, func(records []models.TokenRecord) ([]models.TokenRecord, error) {
		for i := range records {
			if records[i].ID == tokenID {
				stamp := at.UTC()
				records[i].LastUsedAt = &stamp
				rec := records[i]
				touched = &rec
				return records, nil
			}
		}
		return nil, fmt.Errorf("token '%s': %w", tokenID, ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return touched, nil
}
