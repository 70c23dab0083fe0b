// Package gitengine wraps go-git for the operations the repository services need.
//
// A Repo is not safe for concurrent mutation; callers serialize mutations per repository.
// Read operations open their own handle and may run concurrently with them.
package gitengine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"repohub-backend-go/internal/models"
)

var (
	ErrRefNotFound       = errors.New("reference not found")
	ErrBranchExists      = errors.New("branch already exists")
	ErrFileNotFound      = errors.New("file not found")
	ErrInvalidBranchName = errors.New("invalid branch name")
	ErrInvalidPath       = errors.New("invalid path")
)

// Repo is a non-bare repository whose working tree is Dir.
type Repo struct {
	dir  string
	repo *git.Repository
}

// Init creates a repository in dir with defaultBranch as its unborn HEAD.
func Init(dir, defaultBranch string) (*Repo, error) {
	if err := ValidateBranchName(defaultBranch); err != nil {
		return nil, err
	}
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(defaultBranch)},
	})
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}
	return &Repo{dir: dir, repo: repo}, nil
}

// Open opens the repository whose working tree is dir.
func Open(dir string) (*Repo, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return &Repo{dir: dir, repo: repo}, nil
}

// Dir is the working tree root.
func (r *Repo) Dir() string { return r.dir }

// Branches lists local branch names in sorted order.
func (r *Repo) Branches() ([]string, error) {
	iter, err := r.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// CurrentBranch is the branch HEAD points at, or "" when HEAD is detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if head.Type() != plumbing.SymbolicReference {
		return "", nil
	}
	return head.Target().Short(), nil
}

// HasBranch reports whether a local branch exists.
func (r *Repo) HasBranch(name string) bool {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), false)
	return err == nil
}

// CreateBranch points a new branch at the commit from resolves to.
func (r *Repo) CreateBranch(name, from string) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	if r.HasBranch(name) {
		return fmt.Errorf("%w: %s", ErrBranchExists, name)
	}
	hash, err := r.resolve(from)
	if err != nil {
		return err
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), hash)
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

// DeleteBranch removes a local branch.
func (r *Repo) DeleteBranch(name string) error {
	if !r.HasBranch(name) {
		return fmt.Errorf("%w: branch %s", ErrRefNotFound, name)
	}
	if err := r.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(name)); err != nil {
		return fmt.Errorf("delete branch %s: %w", name, err)
	}
	return nil
}

// Checkout makes ref the current state of the working tree, discarding tracked changes.
// A branch name moves HEAD to that branch; anything else detaches HEAD at its commit.
func (r *Repo) Checkout(ref string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	opts := &git.CheckoutOptions{Force: true}
	if r.HasBranch(ref) {
		opts.Branch = plumbing.NewBranchReferenceName(ref)
	} else {
		hash, err := r.resolve(ref)
		if err != nil {
			return err
		}
		opts.Hash = hash
	}
	if err := wt.Checkout(opts); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

// Stage adds the working tree version of path to the index.
func (r *Repo) Stage(path string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if _, err := wt.Add(path); err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	return nil
}

// Remove deletes path from the index and the working tree.
func (r *Repo) Remove(path string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if _, err := wt.Remove(path); err != nil {
		if errors.Is(err, index.ErrEntryNotFound) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("remove %s: %w", path, err)
	}
	// The index entry is gone; make sure no stray copy stays on disk.
	if err := os.Remove(r.abs(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s from disk: %w", path, err)
	}
	return nil
}

// Commit records the index as a new commit on the current branch and returns its id.
// Commits without changes are allowed.
func (r *Repo) Commit(message string, author models.Signature) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	sig := &object.Signature{Name: author.Name, Email: author.Email, When: time.Now()}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return hash.String(), nil
}

// Log returns up to depth commits reachable from ref, newest first. depth <= 0 means all.
func (r *Repo) Log(ref string, depth int) ([]models.CommitInfo, error) {
	hash, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	iter, err := r.repo.Log(&git.LogOptions{From: hash})
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", ref, err)
	}
	defer iter.Close()

	var commits []models.CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if depth > 0 && len(commits) >= depth {
			return storer.ErrStop
		}
		commits = append(commits, commitInfo(c))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", ref, err)
	}
	return commits, nil
}

// ListFiles returns every tracked file path at ref.
func (r *Repo) ListFiles(ref string) ([]string, error) {
	tree, err := r.tree(ref)
	if err != nil {
		return nil, err
	}
	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files at %s: %w", ref, err)
	}
	return paths, nil
}

// ReadFile returns the content of path at ref.
func (r *Repo) ReadFile(ref, path string) ([]byte, error) {
	tree, err := r.tree(ref)
	if err != nil {
		return nil, err
	}
	f, err := tree.File(strings.Trim(path, "/"))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, object.ErrEntryNotFound) {
			return nil, fmt.Errorf("%w: %s at %s", ErrFileNotFound, path, ref)
		}
		return nil, fmt.Errorf("read %s at %s: %w", path, ref, err)
	}
	rd, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", path, ref, err)
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

// ResolveCommit returns the full id of the commit ref points at.
func (r *Repo) ResolveCommit(ref string) (string, error) {
	hash, err := r.resolve(ref)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

func (r *Repo) resolve(ref string) (plumbing.Hash, error) {
	if strings.TrimSpace(ref) == "" {
		return plumbing.ZeroHash, fmt.Errorf("%w: empty ref", ErrRefNotFound)
	}
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrRefNotFound, ref)
	}
	if _, err := r.repo.CommitObject(*hash); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrRefNotFound, ref)
	}
	return *hash, nil
}

func (r *Repo) tree(ref string) (*object.Tree, error) {
	hash, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	return r.treeOf(hash)
}

func (r *Repo) treeOf(hash plumbing.Hash) (*object.Tree, error) {
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRefNotFound, hash)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("read tree of %s: %w", hash, err)
	}
	return tree, nil
}

func commitInfo(c *object.Commit) models.CommitInfo {
	info := models.CommitInfo{
		OID:         c.Hash.String(),
		Message:     c.Message,
		Author:      models.Signature{Name: c.Author.Name, Email: c.Author.Email},
		Committer:   models.Signature{Name: c.Committer.Name, Email: c.Committer.Email},
		CommittedAt: c.Author.When.UTC(),
	}
	if len(c.ParentHashes) > 0 {
		info.Parent = c.ParentHashes[0].String()
	}
	return info
}

// ValidateBranchName applies a conservative subset of git's ref name rules.
func ValidateBranchName(name string) error {
	invalid := name == "" ||
		name == "HEAD" ||
		strings.HasPrefix(name, "-") ||
		strings.HasPrefix(name, "/") ||
		strings.HasSuffix(name, "/") ||
		strings.HasSuffix(name, ".") ||
		strings.HasSuffix(name, ".lock") ||
		strings.Contains(name, "..") ||
		strings.Contains(name, "//") ||
		strings.Contains(name, "@{") ||
		strings.ContainsAny(name, " ~^:?*[\\\t\n")
	if invalid {
		return fmt.Errorf("%w: %q", ErrInvalidBranchName, name)
	}
	return nil
}
