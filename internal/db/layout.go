package db

import (
	"path/filepath"

	"repohub-backend-go/internal/models"
)

const (
	repoMetadataFile = "repo.json"
	repoTokensFile   = "tokens.json"
	repoWorkDir      = "work"
)

// Layout resolves the on-disk locations of every persisted document below DATA_ROOT.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at dataRoot.
func NewLayout(dataRoot string) Layout {
	return Layout{Root: filepath.Clean(dataRoot)}
}

func (l Layout) ReposRoot() string         { return filepath.Join(l.Root, "repos") }
func (l Layout) UsersPath() string         { return filepath.Join(l.Root, "users", "users.json") }
func (l Layout) AccountTokensPath() string { return filepath.Join(l.Root, "users", "api-tokens.json") }
func (l Layout) AuditLogPath() string      { return filepath.Join(l.Root, "audit", "log.ndjson") }
func (l Layout) JWTSecretPath() string     { return filepath.Join(l.Root, "auth", "jwt-secret") }

// RepoDir is the directory holding one repository's metadata, tokens, backups and work tree.
func (l Layout) RepoDir(ownerID, slug string) string {
	return filepath.Join(l.ReposRoot(), ownerID, slug)
}

// RepoRecord pairs a repository document with the directory it was loaded from.
type RepoRecord struct {
	Dir        string
	Repository models.Repository
}

// WorkDir is the git working tree of the repository.
func (r RepoRecord) WorkDir() string { return filepath.Join(r.Dir, repoWorkDir) }

// MetadataPath is the location of repo.json.
func (r RepoRecord) MetadataPath() string { return filepath.Join(r.Dir, repoMetadataFile) }

// TokensPath is the location of the repository-scoped token pool.
func (r RepoRecord) TokensPath() string { return filepath.Join(r.Dir, repoTokensFile) }
