package core

import (
	"context"
	"errors"
	"fmt"
	"os"

	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/gitengine"
	"repohub-backend-go/internal/models"
	"repohub-backend-go/internal/repolock"
)

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionCheckedOut
	sessionMutated
	sessionCommitted
)

var errSessionOrder = errors.New("repository session step out of order")

// repoSession walks one mutation through Idle -> CheckedOut -> Mutated -> Committed.
// It only exists inside the repository lock and is never returned to callers.
type repoSession struct {
	repo   *gitengine.Repo
	state  sessionState
	branch string
}

// checkout moves the working tree to branch. Only valid from Idle.
func (s *repoSession) checkout(branch string) error {
	if s.state != sessionIdle {
		return fmt.Errorf("%w: checkout in state %d", errSessionOrder, s.state)
	}
	if !s.repo.HasBranch(branch) {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	if err := s.repo.Checkout(branch); err != nil {
		return engineError(err)
	}
	s.state = sessionCheckedOut
	s.branch = branch
	return nil
}

// mutate changes the working tree and index of the checked-out branch.
func (s *repoSession) mutate(fn func(repo *gitengine.Repo) error) error {
	if s.state != sessionCheckedOut && s.state != sessionMutated {
		return fmt.Errorf("%w: mutate in state %d", errSessionOrder, s.state)
	}
	if err := fn(s.repo); err != nil {
		return err
	}
	s.state = sessionMutated
	return nil
}

// commit records the mutations on the checked-out branch and ends the session.
func (s *repoSession) commit(message string, author models.Signature) (string, error) {
	if s.state != sessionMutated {
		return "", fmt.Errorf("%w: commit in state %d", errSessionOrder, s.state)
	}
	oid, err := s.repo.Commit(message, author)
	if err != nil {
		return "", engineError(err)
	}
	s.state = sessionCommitted
	return oid, nil
}

// sessionRunner opens repositories under their lock.
type sessionRunner struct {
	locks *repolock.Registry
}

// lock holds the lock of rec for the whole of fn. A repository deleted while the caller
// waited for the lock is reported as not found.
func (r sessionRunner) lock(ctx context.Context, rec *db.RepoRecord, fn func() error) error {
	return r.locks.WithRepoLock(ctx, rec.Repository.ID, func() error {
		if _, err := os.Stat(rec.MetadataPath()); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", ErrRepoNotFound, rec.Repository.ID)
			}
			return fmt.Errorf("failed to stat repository '%s': %w", rec.Repository.ID, err)
		}
		return fn()
	})
}

// run is lock with a fresh session on the working tree of rec.
func (r sessionRunner) run(ctx context.Context, rec *db.RepoRecord, fn func(s *repoSession) error) error {
	return r.lock(ctx, rec, func() error {
		repo, err := gitengine.Open(rec.WorkDir())
		if err != nil {
			return engineError(err)
		}
		return fn(&repoSession{repo: repo})
	})
}
