package core

import (
	"context"
	"errors"
	"fmt"

	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/models"
)

// repoLoader loads repository records and authorizes callers against them.
// Shared by every service that addresses a repository by id.
type repoLoader struct {
	repos db.RepoRepository
}

func (l repoLoader) load(ctx context.Context, repoID string) (*db.RepoRecord, error) {
	if repoID == "" {
		return nil, validationError("repository id is required")
	}
	rec, err := l.repos.GetByID(ctx, repoID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, repoID)
		}
		return nil, fmt.Errorf("failed to load repository '%s': %w", repoID, err)
	}
	return rec, nil
}

// authorize loads repoID and checks that requester reaches floor on it. Any shortfall,
// including no access at all to a private repository, is ErrInsufficientPermission.
func (l repoLoader) authorize(ctx context.Context, requester access.Requester, repoID string, floor access.Permission, requireUser bool) (*db.RepoRecord, access.Decision, error) {
	rec, err := l.load(ctx, repoID)
	if err != nil {
		return nil, access.Decision{}, err
	}
	decision, err := access.Check(requester, &rec.Repository, floor, requireUser)
	if err != nil {
		return nil, access.Decision{}, accessError(err)
	}
	return rec, decision, nil
}

// signatureOf is the commit identity of an actor.
func signatureOf(actor access.Actor) models.Signature {
	return models.Signature{Name: actor.DisplayName(), Email: actor.Email()}
}

func auditKey(actor access.Actor) string {
	if actor == nil {
		return ""
	}
	return actor.AuditKey()
}
