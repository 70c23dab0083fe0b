package core

import (
	"context"
	"io"

	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/models"
)

// UserService defines the interface for user profile operations.
type UserService interface {
	// GetOrCreate retrieves a user by ID, creating the profile from identity claims on first use.
	GetOrCreate(ctx context.Context, userID, email, displayName string) (*models.User, bool, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
}

// RepoService defines the interface for repository metadata, collaborator and access operations.
type RepoService interface {
	CreateRepository(ctx context.Context, requester access.Requester, req models.CreateRepositoryRequest) (*RepositoryView, error)
	ListRepositories(ctx context.Context, params models.ListRepositoriesParams) (*RepositoryList, error)
	GetRepository(ctx context.Context, requester access.Requester, repoID string) (*RepositoryView, error)
	UpdateRepository(ctx context.Context, requester access.Requester, repoID string, req models.UpdateRepositoryRequest) (*RepositoryView, error)
	DeleteRepository(ctx context.Context, requester access.Requester, repoID string) error
	AddCollaborator(ctx context.Context, requester access.Requester, repoID string, req models.CollaboratorRequest) (*RepositoryView, error)
	RemoveCollaborator(ctx context.Context, requester access.Requester, repoID, userID string) (*RepositoryView, error)
	// CheckAccess is the permission-check entry point: the effective permission and the
	// actor the operation would be attributed to.
	CheckAccess(ctx context.Context, requester access.Requester, repoID string, floor access.Permission, requireUser bool) (access.Decision, error)
}

// GitService defines the interface for version-control operations on a repository.
type GitService interface {
	ListBranches(ctx context.Context, requester access.Requester, repoID string) ([]models.BranchInfo, error)
	CreateBranch(ctx context.Context, requester access.Requester, repoID string, req models.CreateBranchRequest) (*models.BranchInfo, error)
	DeleteBranch(ctx context.Context, requester access.Requester, repoID, name string) error
	Checkout(ctx context.Context, requester access.Requester, repoID, branch string) error
	ListCommits(ctx context.Context, requester access.Requester, repoID, ref string, limit int) ([]models.CommitInfo, error)
	GetTree(ctx context.Context, requester access.Requester, repoID, ref, path string) ([]*models.TreeNode, error)
	GetFile(ctx context.Context, requester access.Requester, repoID, ref, path string) (*FileContent, error)
	WriteFile(ctx context.Context, requester access.Requester, repoID string, req models.WriteFileRequest) (*CommitResult, error)
	DeleteFile(ctx context.Context, requester access.Requester, repoID string, req models.DeleteFileRequest) (*CommitResult, error)
	CreateFolder(ctx context.Context, requester access.Requester, repoID string, req models.CreateFolderRequest) error
	DiffRefs(ctx context.Context, requester access.Requester, repoID, from, to string) (string, error)
	DiffWorking(ctx context.Context, requester access.Requester, repoID, ref string) (string, error)
	DiffCommit(ctx context.Context, requester access.Requester, repoID, oid string) (string, error)
	// StreamArchive checks out ref and writes a zip of the working tree to w.
	// prepare runs once access is granted, before the first byte is written.
	StreamArchive(ctx context.Context, requester access.Requester, repoID, ref string, prepare func(name string), w io.Writer) error
}

// TokenService defines the interface for account- and repository-scoped API tokens.
type TokenService interface {
	ListAccountTokens(ctx context.Context, requester access.Requester) ([]models.AccessToken, error)
	CreateAccountToken(ctx context.Context, requester access.Requester, req models.CreateTokenRequest) (*models.IssuedToken, error)
	DeleteAccountToken(ctx context.Context, requester access.Requester, tokenID string) error
	ListRepoTokens(ctx context.Context, requester access.Requester, repoID string) ([]models.AccessToken, error)
	CreateRepoToken(ctx context.Context, requester access.Requester, repoID string, req models.CreateTokenRequest) (*models.IssuedToken, error)
	DeleteRepoToken(ctx context.Context, requester access.Requester, repoID, tokenID string) error
	// Verify checks a presented secret against the pool of repoID (when set) and then the
	// account pool. ErrInvalidToken if neither accepts it.
	Verify(ctx context.Context, repoID, secret string) (*access.Credential, error)
}

// AuditService defines the interface for audit logging operations.
type AuditService interface {
	CreateAuditLog(ctx context.Context, event models.AuditEvent) error
}
