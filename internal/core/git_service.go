package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/archive"
	"repohub-backend-go/internal/config"
	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/diff"
	"repohub-backend-go/internal/gitengine"
	"repohub-backend-go/internal/models"
	"repohub-backend-go/internal/repolock"
	"repohub-backend-go/internal/tree"
)

const (
	DefaultCommitLimit = 50
	MaxCommitLimit     = 500

	EncodingUTF8   = "utf-8"
	EncodingBase64 = "base64"
)

// gitService implements the GitService interface.
type gitService struct {
	repoLoader
	runner       sessionRunner
	auditService AuditService
	config       *config.Config
	logger       *zap.Logger
}

// NewGitService creates a new GitService instance. locks must be the registry shared with
// the RepoService so that metadata and working-tree mutations of a repository serialize.
func NewGitService(
	repos db.RepoRepository,
	locks *repolock.Registry,
	as AuditService,
	cfg *config.Config,
	logger *zap.Logger,
) GitService {
	return &gitService{
		repoLoader:   repoLoader{repos: repos},
		runner:       sessionRunner{locks: locks},
		auditService: as,
		config:       cfg,
		logger:       logger,
	}
}

func (s *gitService) open(rec *db.RepoRecord) (*gitengine.Repo, error) {
	repo, err := gitengine.Open(rec.WorkDir())
	if err != nil {
		return nil, engineError(err)
	}
	return repo, nil
}

func refOrDefault(ref string, repo *models.Repository) string {
	if ref = strings.TrimSpace(ref); ref != "" {
		return ref
	}
	return repo.DefaultBranch
}

// ListBranches lists the branches of a repository with their default/current flags.
func (s *gitService) ListBranches(ctx context.Context, requester access.Requester, repoID string) ([]models.BranchInfo, error) {
	rec, _, err := s.authorize(ctx, requester, repoID, access.Read, false)
	if err != nil {
		return nil, err
	}
	repo, err := s.open(rec)
	if err != nil {
		return nil, err
	}
	names, err := repo.Branches()
	if err != nil {
		return nil, engineError(err)
	}
	current, err := repo.CurrentBranch()
	if err != nil {
		return nil, engineError(err)
	}
	branches := make([]models.BranchInfo, 0, len(names))
	for _, name := range names {
		branches = append(branches, models.BranchInfo{
			Name:      name,
			IsDefault: name == rec.Repository.DefaultBranch,
			IsCurrent: name == current,
		})
	}
	return branches, nil
}

// CreateBranch creates a branch at from (default branch when empty). When from is a
// branch it is checked out first.
func (s *gitService) CreateBranch(ctx context.Context, requester access.Requester, repoID string, req models.CreateBranchRequest) (*models.BranchInfo, error) {
	name := strings.TrimSpace(req.Name)
	if err := gitengine.ValidateBranchName(name); err != nil {
		return nil, engineError(err)
	}
	rec, _, err := s.authorize(ctx, requester, repoID, access.Write, false)
	if err != nil {
		return nil, err
	}
	from := refOrDefault(req.From, &rec.Repository)

	err = s.runner.run(ctx, rec, func(sess *repoSession) error {
		if sess.repo.HasBranch(from) {
			if err := sess.checkout(from); err != nil {
				return err
			}
		}
		return engineError(sess.repo.CreateBranch(name, from))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Branch created", zap.String("repoId", repoID), zap.String("branch", name), zap.String("from", from))
	return &models.BranchInfo{Name: name, IsDefault: name == rec.Repository.DefaultBranch}, nil
}

// DeleteBranch deletes a branch other than the default branch. When the branch is the
// current one the default branch is checked out first.
func (s *gitService) DeleteBranch(ctx context.Context, requester access.Requester, repoID, name string) error {
	rec, _, err := s.authorize(ctx, requester, repoID, access.Write, false)
	if err != nil {
		return err
	}
	if name == rec.Repository.DefaultBranch {
		return fmt.Errorf("%w: %s", ErrDefaultBranchDeletion, name)
	}
	return s.runner.run(ctx, rec, func(sess *repoSession) error {
		if !sess.repo.HasBranch(name) {
			return fmt.Errorf("%w: %s", ErrBranchNotFound, name)
		}
		current, err := sess.repo.CurrentBranch()
		if err != nil {
			return engineError(err)
		}
		if current == name {
			if err := sess.checkout(rec.Repository.DefaultBranch); err != nil {
				return err
			}
		}
		return engineError(sess.repo.DeleteBranch(name))
	})
}

// Checkout makes branch the current branch of the working tree.
func (s *gitService) Checkout(ctx context.Context, requester access.Requester, repoID, branch string) error {
	rec, _, err := s.authorize(ctx, requester, repoID, access.Write, false)
	if err != nil {
		return err
	}
	return s.runner.run(ctx, rec, func(sess *repoSession) error {
		return sess.checkout(branch)
	})
}

// ListCommits returns the history of ref, newest first.
func (s *gitService) ListCommits(ctx context.Context, requester access.Requester, repoID, ref string, limit int) ([]models.CommitInfo, error) {
	rec, _, err := s.authorize(ctx, requester, repoID, access.Read, false)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultCommitLimit
	case limit > MaxCommitLimit:
		limit = MaxCommitLimit
	}
	repo, err := s.open(rec)
	if err != nil {
		return nil, err
	}
	commits, err := repo.Log(refOrDefault(ref, &rec.Repository), limit)
	if err != nil {
		return nil, engineError(err)
	}
	if commits == nil {
		commits = []models.CommitInfo{}
	}
	return commits, nil
}

// GetTree returns the tracked files of ref below path as a nested tree.
func (s *gitService) GetTree(ctx context.Context, requester access.Requester, repoID, ref, path string) ([]*models.TreeNode, error) {
	rec, _, err := s.authorize(ctx, requester, repoID, access.Read, false)
	if err != nil {
		return nil, err
	}
	repo, err := s.open(rec)
	if err != nil {
		return nil, err
	}
	files, err := repo.ListFiles(refOrDefault(ref, &rec.Repository))
	if err != nil {
		return nil, engineError(err)
	}
	return tree.Build(files, strings.ReplaceAll(path, "\\", "/")), nil
}

// GetFile reads one file at ref. Content that is not valid UTF-8 is returned base64 encoded.
func (s *gitService) GetFile(ctx context.Context, requester access.Requester, repoID, ref, path string) (*FileContent, error) {
	rel, err := gitengine.CleanPath(path)
	if err != nil {
		return nil, engineError(err)
	}
	rec, _, err := s.authorize(ctx, requester, repoID, access.Read, false)
	if err != nil {
		return nil, err
	}
	repo, err := s.open(rec)
	if err != nil {
		return nil, err
	}
	ref = refOrDefault(ref, &rec.Repository)
	data, err := repo.ReadFile(ref, rel)
	if err != nil {
		return nil, engineError(err)
	}
	file := &FileContent{Path: rel, Ref: ref, Size: len(data)}
	if utf8.Valid(data) {
		file.Encoding = EncodingUTF8
		file.Content = string(data)
	} else {
		file.Encoding = EncodingBase64
		file.Content = base64.StdEncoding.EncodeToString(data)
	}
	return file, nil
}

// WriteFile writes content to path on branch and commits it as the calling actor.
//
// The file ceiling is checked before taking the lock; the repository ceiling is checked
// under it, against a fresh walk of the working tree.
func (s *gitService) WriteFile(ctx context.Context, requester access.Requester, repoID string, req models.WriteFileRequest) (*CommitResult, error) {
	rel, err := gitengine.CleanPath(req.Path)
	if err != nil {
		return nil, engineError(err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, validationError("commit message is required")
	}
	if strings.TrimSpace(req.Branch) == "" {
		return nil, validationError("branch is required")
	}
	content := []byte(req.Content)
	if int64(len(content)) > s.config.MaxFileSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(content), s.config.MaxFileSizeBytes)
	}
	rec, decision, err := s.authorize(ctx, requester, repoID, access.Write, false)
	if err != nil {
		return nil, err
	}

	var oid string
	err = s.runner.run(ctx, rec, func(sess *repoSession) error {
		if err := sess.checkout(req.Branch); err != nil {
			return err
		}
		err := sess.mutate(func(repo *gitengine.Repo) error {
			return s.writeWithinCeiling(repo, rel, content)
		})
		if err != nil {
			return err
		}
		oid, err = sess.commit(req.Message, signatureOf(decision.Actor))
		return err
	})
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:     AuditFileWrite,
		ActorID:  auditKey(decision.Actor),
		RepoID:   repoID,
		Metadata: map[string]interface{}{"path": rel, "branch": req.Branch, "oid": oid},
	})
	return &CommitResult{OID: oid, Branch: req.Branch}, nil
}

func (s *gitService) writeWithinCeiling(repo *gitengine.Repo, rel string, content []byte) error {
	target, err := repo.AbsPath(rel)
	if err != nil {
		return engineError(err)
	}
	if err := checkParents(repo, rel); err != nil {
		return err
	}
	var previous int64
	info, err := os.Stat(target)
	switch {
	case err == nil && info.IsDir():
		return validationError("%s is a directory", rel)
	case err == nil:
		previous = info.Size()
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	current, err := repo.WorkTreeSize()
	if err != nil {
		return err
	}
	total := current - previous + int64(len(content))
	if total > s.config.MaxRepoSizeBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrRepoTooLarge, total, s.config.MaxRepoSizeBytes)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directories of %s: %w", rel, err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return engineError(repo.Stage(rel))
}

// checkParents rejects a path below an existing file, e.g. "README.md/x.txt".
// Ancestors are checked from the top, so the first blocking file is the one reported.
func checkParents(repo *gitengine.Repo, rel string) error {
	var dirs []string
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		dirs = append(dirs, dir)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		abs, err := repo.AbsPath(dirs[i])
		if err != nil {
			return engineError(err)
		}
		info, err := os.Stat(abs)
		switch {
		case os.IsNotExist(err):
			// Nothing below a missing directory can exist; MkdirAll creates the rest.
			return nil
		case err != nil:
			return fmt.Errorf("failed to stat %s: %w", dirs[i], err)
		case !info.IsDir():
			return validationError("%s is a file, cannot create %s below it", dirs[i], rel)
		}
	}
	return nil
}

// DeleteFile removes path from branch and commits the removal.
func (s *gitService) DeleteFile(ctx context.Context, requester access.Requester, repoID string, req models.DeleteFileRequest) (*CommitResult, error) {
	rel, err := gitengine.CleanPath(req.Path)
	if err != nil {
		return nil, engineError(err)
	}
	if strings.TrimSpace(req.Branch) == "" {
		return nil, validationError("branch is required")
	}
	message := req.Message
	if strings.TrimSpace(message) == "" {
		message = "Delete " + rel
	}
	rec, decision, err := s.authorize(ctx, requester, repoID, access.Write, false)
	if err != nil {
		return nil, err
	}

	var oid string
	err = s.runner.run(ctx, rec, func(sess *repoSession) error {
		if err := sess.checkout(req.Branch); err != nil {
			return err
		}
		err := sess.mutate(func(repo *gitengine.Repo) error {
			return engineError(repo.Remove(rel))
		})
		if err != nil {
			return err
		}
		oid, err = sess.commit(message, signatureOf(decision.Actor))
		return err
	})
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:     AuditFileDeleted,
		ActorID:  auditKey(decision.Actor),
		RepoID:   repoID,
		Metadata: map[string]interface{}{"path": rel, "branch": req.Branch, "oid": oid},
	})
	return &CommitResult{OID: oid, Branch: req.Branch}, nil
}

// CreateFolder makes sure a directory exists in the working tree. Nothing is committed:
// an empty directory is not something version control tracks.
func (s *gitService) CreateFolder(ctx context.Context, requester access.Requester, repoID string, req models.CreateFolderRequest) error {
	rel, err := gitengine.CleanPath(req.Path)
	if err != nil {
		return engineError(err)
	}
	rec, _, err := s.authorize(ctx, requester, repoID, access.Write, false)
	if err != nil {
		return err
	}
	return s.runner.run(ctx, rec, func(sess *repoSession) error {
		target, err := sess.repo.AbsPath(rel)
		if err != nil {
			return engineError(err)
		}
		if err := checkParents(sess.repo, rel); err != nil {
			return err
		}
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			return validationError("%s is a file", rel)
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", rel, err)
		}
		return nil
	})
}

// DiffRefs is the unified diff between two refs.
func (s *gitService) DiffRefs(ctx context.Context, requester access.Requester, repoID, from, to string) (string, error) {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return "", validationError("from and to are required")
	}
	rec, _, err := s.authorize(ctx, requester, repoID, access.Read, false)
	if err != nil {
		return "", err
	}
	repo, err := s.open(rec)
	if err != nil {
		return "", err
	}
	fromSrc, err := repo.Source(from)
	if err != nil {
		return "", engineError(err)
	}
	toSrc, err := repo.Source(to)
	if err != nil {
		return "", engineError(err)
	}
	return s.unified(fromSrc, toSrc)
}

// DiffWorking is the unified diff between ref and the live working tree. It runs under
// the repository lock so it never observes a half-applied mutation.
func (s *gitService) DiffWorking(ctx context.Context, requester access.Requester, repoID, ref string) (string, error) {
	rec, _, err := s.authorize(ctx, requester, repoID, access.Read, false)
	if err != nil {
		return "", err
	}
	ref = refOrDefault(ref, &rec.Repository)
	var patch string
	err = s.runner.run(ctx, rec, func(sess *repoSession) error {
		src, err := sess.repo.Source(ref)
		if err != nil {
			return engineError(err)
		}
		patch, err = s.unified(src, sess.repo.WorkdirSource())
		return err
	})
	return patch, err
}

// DiffCommit is the unified diff a single commit introduced over its first parent.
func (s *gitService) DiffCommit(ctx context.Context, requester access.Requester, repoID, oid string) (string, error) {
	if strings.TrimSpace(oid) == "" {
		return "", validationError("commit id is required")
	}
	rec, _, err := s.authorize(ctx, requester, repoID, access.Read, false)
	if err != nil {
		return "", err
	}
	repo, err := s.open(rec)
	if err != nil {
		return "", err
	}
	parent, commit, err := repo.CommitSources(oid)
	if err != nil {
		return "", engineError(err)
	}
	return s.unified(parent, commit)
}

func (s *gitService) unified(from, to diff.Source) (string, error) {
	patch, err := diff.Unified(from, to)
	if err != nil {
		return "", engineError(err)
	}
	return patch, nil
}

// StreamArchive checks out branch ref and streams the working tree as a zip to w while
// holding the repository lock.
func (s *gitService) StreamArchive(ctx context.Context, requester access.Requester, repoID, ref string, prepare func(name string), w io.Writer) error {
	rec, _, err := s.authorize(ctx, requester, repoID, access.Read, false)
	if err != nil {
		return err
	}
	branch := refOrDefault(ref, &rec.Repository)
	return s.runner.run(ctx, rec, func(sess *repoSession) error {
		if err := sess.checkout(branch); err != nil {
			return err
		}
		if prepare != nil {
			prepare(ArchiveName(&rec.Repository, branch))
		}
		if err := archive.WriteZip(ctx, w, sess.repo.Dir(), archive.ExcludeGit); err != nil {
			s.logger.Error("Archive stream aborted", zap.String("repoId", repoID), zap.String("branch", branch), zap.Error(err))
			return err
		}
		return nil
	})
}

// ArchiveName is the download file name of an archive of branch.
func ArchiveName(repo *models.Repository, branch string) string {
	return fmt.Sprintf("%s-%s.zip", repo.Slug, strings.ReplaceAll(branch, "/", "-"))
}
