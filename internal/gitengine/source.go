package gitengine

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"repohub-backend-go/internal/diff"
)

// refSource exposes the tree of one commit to the diff walker.
type refSource struct {
	repo  *Repo
	label string
	hash  plumbing.Hash
	empty bool
}

// Source resolves ref and returns its tree as a diff.Source labeled with ref.
func (r *Repo) Source(ref string) (diff.Source, error) {
	hash, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	return &refSource{repo: r, label: ref, hash: hash}, nil
}

// CommitSources returns the first parent of commit oid and the commit itself. A root
// commit is compared against an empty tree.
func (r *Repo) CommitSources(oid string) (parent diff.Source, commit diff.Source, err error) {
	hash, err := r.resolve(oid)
	if err != nil {
		return nil, nil, err
	}
	c, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrRefNotFound, oid)
	}
	commit = &refSource{repo: r, label: hash.String(), hash: hash}
	if len(c.ParentHashes) == 0 {
		return &refSource{repo: r, label: diff.DevNull, empty: true}, commit, nil
	}
	p := c.ParentHashes[0]
	return &refSource{repo: r, label: p.String(), hash: p}, commit, nil
}

func (s *refSource) Label() string { return s.label }

func (s *refSource) Entries() ([]diff.Entry, error) {
	if s.empty {
		return nil, nil
	}
	tree, err := s.repo.treeOf(s.hash)
	if err != nil {
		return nil, err
	}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	var entries []diff.Entry
	for {
		name, entry, err := walker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", s.label, err)
		}
		blobHash := entry.Hash
		entries = append(entries, diff.Entry{
			Path:    name,
			IsFile:  regularFile(entry.Mode),
			Content: func() ([]byte, error) { return s.repo.readBlob(blobHash) },
		})
	}
	return entries, nil
}

// regularFile matches what the working-directory source treats as a file. Symlinks and
// submodules are walked but never diffed, on either side.
func regularFile(mode filemode.FileMode) bool {
	return mode == filemode.Regular || mode == filemode.Executable
}

func (r *Repo) readBlob(hash plumbing.Hash) ([]byte, error) {
	blob, err := r.repo.BlobObject(hash)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", hash, err)
	}
	rd, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", hash, err)
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

// WorkdirSource exposes the live working tree, labeled WORKDIR.
func (r *Repo) WorkdirSource() diff.Source {
	return diff.DirSource(r.dir, diff.WorkdirLabel)
}
