package core

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/config"
	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/gitengine"
	"repohub-backend-go/internal/models"
	"repohub-backend-go/internal/repolock"
)

const (
	maxRepoNameLength = 100
	inviteCodeLength  = 12

	defaultPageSize = 20
	maxPageSize     = 100

	readmeFile           = "README.md"
	initialCommitMessage = "Initial commit"
)

// repoService implements the RepoService interface.
type repoService struct {
	repoLoader
	runner       sessionRunner
	userRepo     db.UserRepository
	auditService AuditService
	config       *config.Config
	logger       *zap.Logger
}

// NewRepoService creates a new RepoService instance.
func NewRepoService(
	repos db.RepoRepository,
	users db.UserRepository,
	locks *repolock.Registry,
	as AuditService,
	cfg *config.Config,
	logger *zap.Logger,
) RepoService {
	return &repoService{
		repoLoader:   repoLoader{repos: repos},
		runner:       sessionRunner{locks: locks},
		userRepo:     users,
		auditService: as,
		config:       cfg,
		logger:       logger,
	}
}

func newInviteCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:inviteCodeLength]
}

func validateRepoName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationError("repository name is required")
	}
	if len(name) > maxRepoNameLength {
		return "", validationError("repository name must be at most %d characters", maxRepoNameLength)
	}
	return name, nil
}

// CreateRepository creates a repository owned by the requesting user.
//
// Initializing the working tree, committing the README and writing the metadata document
// happen under the lock of the new repository. The metadata document is written last, so
// the repository only becomes visible once it is complete; any failure removes the directory.
func (s *repoService) CreateRepository(ctx context.Context, requester access.Requester, req models.CreateRepositoryRequest) (*RepositoryView, error) {
	if !requester.Authenticated() {
		return nil, ErrUnauthenticated
	}
	name, err := validateRepoName(req.Name)
	if err != nil {
		return nil, err
	}
	slug := Slugify(name)

	// --- Reserve <owner>/<slug> on disk; a concurrent create of the same name loses here ---
	rec, err := s.repos.Claim(ctx, requester.UserID, slug)
	if err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s/%s", ErrRepoExists, requester.UserID, slug)
		}
		return nil, fmt.Errorf("failed to reserve repository '%s': %w", slug, err)
	}

	rec.Repository = models.Repository{
		ID:            uuid.NewString(),
		OwnerID:       requester.UserID,
		Name:          name,
		Slug:          slug,
		Description:   strings.TrimSpace(req.Description),
		Private:       req.Private,
		CreatedAt:     time.Now().UTC(),
		DefaultBranch: s.config.DefaultBranch,
		Collaborators: []models.Collaborator{},
		InviteCode:    newInviteCode(),
	}
	author := signatureOf(access.UserActor{UserID: requester.UserID, UserEmail: requester.Email})

	// --- Init working tree, initial commit and metadata under the new repo's lock ---
	err = s.runner.locks.WithRepoLock(ctx, rec.Repository.ID, func() error {
		return s.initRepository(ctx, rec, author)
	})
	if err != nil {
		// Release the name again; a half-initialized repository must not stay claimed.
		if rmErr := s.repos.Remove(ctx, rec); rmErr != nil {
			s.logger.Error("Failed to roll back repository directory",
				zap.String("dir", rec.Dir), zap.Error(rmErr))
		}
		return nil, err
	}

	s.logger.Info("Repository created",
		zap.String("repoId", rec.Repository.ID),
		zap.String("key", rec.Repository.Key()))
	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:     AuditRepoCreated,
		ActorID:  requester.UserID,
		RepoID:   rec.Repository.ID,
		Metadata: map[string]interface{}{"name": name, "slug": slug},
	})

	// The creator is the owner, so the response includes the invite code.
	view := newRepositoryView(rec.Repository, access.Owner)
	return &view, nil
}

func (s *repoService) initRepository(ctx context.Context, rec *db.RepoRecord, author models.Signature) error {
	repo, err := gitengine.Init(rec.WorkDir(), rec.Repository.DefaultBranch)
	if err != nil {
		return engineError(err)
	}
	readme := fmt.Sprintf("# %s\n\nCreated with repohub.\n", rec.Repository.Name)
	if err := os.WriteFile(filepath.Join(repo.Dir(), readmeFile), []byte(readme), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", readmeFile, err)
	}
	if err := repo.Stage(readmeFile); err != nil {
		return engineError(err)
	}
	if _, err := repo.Commit(initialCommitMessage, author); err != nil {
		return engineError(err)
	}
	// Metadata last: repo.json only exists for a repository that has its first commit.
	return s.repos.Save(ctx, rec)
}

// ListRepositories lists the repositories visible to the viewer, newest first.
func (s *repoService) ListRepositories(ctx context.Context, params models.ListRepositoriesParams) (*RepositoryList, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	switch {
	case pageSize < 1:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}

	records, err := s.repos.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	term := strings.ToLower(strings.TrimSpace(params.Search))

	var visible []RepositoryView
	for _, rec := range records {
		repo := rec.Repository
		if params.OwnerID != "" && repo.OwnerID != params.OwnerID {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(repo.Name), term) {
			continue
		}
		perm := access.IdentityPermission(params.ViewerID, &repo)
		if perm == access.None {
			continue
		}
		visible = append(visible, newRepositoryView(repo, perm))
	}

	list := &RepositoryList{Items: []RepositoryView{}, Total: len(visible)}
	start := (page - 1) * pageSize
	if start < len(visible) {
		end := min(start+pageSize, len(visible))
		list.Items = visible[start:end]
	}
	return list, nil
}

// GetRepository returns a repository the requester can read.
func (s *repoService) GetRepository(ctx context.Context, requester access.Requester, repoID string) (*RepositoryView, error) {
	rec, decision, err := s.authorize(ctx, requester, repoID, access.Read, false)
	if err != nil {
		return nil, err
	}
	view := newRepositoryView(rec.Repository, decision.Effective)
	return &view, nil
}

// UpdateRepository changes the name, description or visibility of a repository and can
// rotate its invite code. The slug never changes.
func (s *repoService) UpdateRepository(ctx context.Context, requester access.Requester, repoID string, req models.UpdateRepositoryRequest) (*RepositoryView, error) {
	var name string
	if req.Name != nil {
		var err error
		if name, err = validateRepoName(*req.Name); err != nil {
			return nil, err
		}
	}
	rec, decision, err := s.authorize(ctx, requester, repoID, access.Owner, true)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	err = s.runner.lock(ctx, rec, func() error {
		_, err := s.repos.Update(ctx, rec, func(repo *models.Repository) error {
			if req.Name != nil {
				repo.Name = name
				changes["name"] = name
			}
			if req.Description != nil {
				repo.Description = strings.TrimSpace(*req.Description)
				changes["description"] = repo.Description
			}
			if req.Private != nil {
				repo.Private = *req.Private
				changes["private"] = repo.Private
			}
			if req.RotateInviteCode {
				repo.InviteCode = newInviteCode()
				changes["inviteCodeRotated"] = true
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, s.storeError(repoID, err)
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:     AuditRepoUpdated,
		ActorID:  auditKey(decision.Actor),
		RepoID:   repoID,
		Metadata: changes,
	})
	view := newRepositoryView(rec.Repository, access.Owner)
	return &view, nil
}

// DeleteRepository removes a repository with its working tree, history and tokens.
func (s *repoService) DeleteRepository(ctx context.Context, requester access.Requester, repoID string) error {
	rec, decision, err := s.authorize(ctx, requester, repoID, access.Owner, true)
	if err != nil {
		return err
	}
	err = s.runner.lock(ctx, rec, func() error {
		return s.repos.Remove(ctx, rec)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Repository deleted", zap.String("repoId", repoID), zap.String("key", rec.Repository.Key()))
	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:    AuditRepoDeleted,
		ActorID: auditKey(decision.Actor),
		RepoID:  repoID,
	})
	return nil
}

// AddCollaborator either lets the owner add a user with a role, or lets any signed-in user
// join with the invite code of the repository.
func (s *repoService) AddCollaborator(ctx context.Context, requester access.Requester, repoID string, req models.CollaboratorRequest) (*RepositoryView, error) {
	if !requester.Authenticated() {
		return nil, ErrUnauthenticated
	}
	switch {
	case req.UserID != "":
		return s.addByOwner(ctx, requester, repoID, req)
	case req.InviteCode != "":
		return s.joinWithInvite(ctx, requester, repoID, req.InviteCode)
	default:
		return nil, validationError("either userId or inviteCode is required")
	}
}

func (s *repoService) addByOwner(ctx context.Context, requester access.Requester, repoID string, req models.CollaboratorRequest) (*RepositoryView, error) {
	role := req.Role
	if role == "" {
		role = models.RoleRead
	}
	if !role.Valid() {
		return nil, validationError("invalid role %q", role)
	}
	rec, _, err := s.authorize(ctx, requester, repoID, access.Owner, true)
	if err != nil {
		return nil, err
	}
	if req.UserID == rec.Repository.OwnerID {
		return nil, validationError("the owner cannot be added as a collaborator")
	}
	if _, err := s.userRepo.GetByID(ctx, req.UserID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, req.UserID)
		}
		return nil, fmt.Errorf("failed to look up user '%s': %w", req.UserID, err)
	}

	err = s.runner.lock(ctx, rec, func() error {
		_, err := s.repos.Update(ctx, rec, func(repo *models.Repository) error {
			if _, exists := repo.Collaborator(req.UserID); exists {
				return nil
			}
			repo.Collaborators = append(repo.Collaborators, models.Collaborator{
				UserID:    req.UserID,
				Role:      role,
				InvitedAt: time.Now().UTC(),
			})
			return nil
		})
		return err
	})
	if err != nil {
		return nil, s.storeError(repoID, err)
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:     AuditCollaboratorAdded,
		ActorID:  requester.UserID,
		RepoID:   repoID,
		Metadata: map[string]interface{}{"userId": req.UserID, "role": string(role)},
	})
	view := newRepositoryView(rec.Repository, access.Owner)
	return &view, nil
}

// joinWithInvite adds the requester with role write. An existing read collaborator is
// upgraded; nobody is ever downgraded by joining.
func (s *repoService) joinWithInvite(ctx context.Context, requester access.Requester, repoID, code string) (*RepositoryView, error) {
	rec, err := s.load(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if rec.Repository.OwnerID == requester.UserID {
		view := newRepositoryView(rec.Repository, access.Owner)
		return &view, nil
	}
	if !inviteMatches(rec.Repository.InviteCode, code) {
		return nil, ErrInvalidInviteCode
	}

	err = s.runner.lock(ctx, rec, func() error {
		_, err := s.repos.Update(ctx, rec, func(repo *models.Repository) error {
			// The code may have been rotated while we waited for the lock.
			if !inviteMatches(repo.InviteCode, code) {
				return ErrInvalidInviteCode
			}
			for i := range repo.Collaborators {
				if repo.Collaborators[i].UserID == requester.UserID {
					repo.Collaborators[i].Role = models.RoleWrite
					return nil
				}
			}
			repo.Collaborators = append(repo.Collaborators, models.Collaborator{
				UserID:    requester.UserID,
				Role:      models.RoleWrite,
				InvitedAt: time.Now().UTC(),
			})
			return nil
		})
		return err
	})
	if err != nil {
		return nil, s.storeError(repoID, err)
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:    AuditCollaboratorJoined,
		ActorID: requester.UserID,
		RepoID:  repoID,
	})
	view := newRepositoryView(rec.Repository, access.IdentityPermission(requester.UserID, &rec.Repository))
	return &view, nil
}

func inviteMatches(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// RemoveCollaborator revokes the access of a collaborator.
func (s *repoService) RemoveCollaborator(ctx context.Context, requester access.Requester, repoID, userID string) (*RepositoryView, error) {
	rec, _, err := s.authorize(ctx, requester, repoID, access.Owner, true)
	if err != nil {
		return nil, err
	}
	err = s.runner.lock(ctx, rec, func() error {
		_, err := s.repos.Update(ctx, rec, func(repo *models.Repository) error {
			kept := repo.Collaborators[:0]
			for _, c := range repo.Collaborators {
				if c.UserID != userID {
					kept = append(kept, c)
				}
			}
			if len(kept) == len(repo.Collaborators) {
				return fmt.Errorf("%w: %s", ErrCollaboratorNotFound, userID)
			}
			repo.Collaborators = kept
			return nil
		})
		return err
	})
	if err != nil {
		return nil, s.storeError(repoID, err)
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:     AuditCollaboratorRemoved,
		ActorID:  requester.UserID,
		RepoID:   repoID,
		Metadata: map[string]interface{}{"userId": userID},
	})
	view := newRepositoryView(rec.Repository, access.Owner)
	return &view, nil
}

// CheckAccess is the permission check used by the boundary before it touches a repository.
func (s *repoService) CheckAccess(ctx context.Context, requester access.Requester, repoID string, floor access.Permission, requireUser bool) (access.Decision, error) {
	_, decision, err := s.authorize(ctx, requester, repoID, floor, requireUser)
	return decision, err
}

// storeError maps a metadata document that vanished under us to a missing repository.
func (s *repoService) storeError(repoID string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, repoID)
	}
	return err
}
