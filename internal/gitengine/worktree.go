package gitengine

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

const gitDir = ".git"

// CleanPath normalizes a repository-relative path to slash form and rejects paths that
// are empty, escape the working tree, or point into the .git directory.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes the repository", ErrInvalidPath, p)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	first, _, _ := strings.Cut(cleaned, "/")
	if first == gitDir {
		return "", fmt.Errorf("%w: %q is inside %s", ErrInvalidPath, p, gitDir)
	}
	return cleaned, nil
}

// AbsPath resolves a cleaned relative path inside the working tree, following symlinks
// without ever leaving it.
func (r *Repo) AbsPath(rel string) (string, error) {
	abs, err := securejoin.SecureJoin(r.dir, filepath.FromSlash(rel))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return abs, nil
}

func (r *Repo) abs(rel string) string {
	return filepath.Join(r.dir, filepath.FromSlash(rel))
}

// WorkTreeSize is the total size of regular files in the working tree, .git excluded.
func (r *Repo) WorkTreeSize() (int64, error) {
	var total int64
	err := filepath.WalkDir(r.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == gitDir && p != r.dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure working tree: %w", err)
	}
	return total, nil
}
