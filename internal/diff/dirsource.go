package diff

import (
	"io/fs"
	"os"
	"path/filepath"
)

// WorkdirLabel is the label of the live working directory in diff headers.
const WorkdirLabel = "WORKDIR"

type dirSource struct {
	root  string
	label string
}

// DirSource exposes a directory on disk as a Source. The .git directory is skipped.
func DirSource(root, label string) Source {
	return &dirSource{root: root, label: label}
}

func (d *dirSource) Label() string { return d.label }

func (d *dirSource) Entries() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(d.root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == d.root {
			return nil
		}
		if de.IsDir() && de.Name() == ".git" {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		abs := path
		entries = append(entries, Entry{
			Path:    rel,
			IsFile:  de.Type().IsRegular(), // symlinks are not files, same as ref sources
			Content: func() ([]byte, error) { return os.ReadFile(abs) },
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
