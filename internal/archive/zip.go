// Package archive streams a directory as a zip file.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Exclude reports whether a path, relative to the archived root in slash form, is left out.
// Excluding a directory skips everything below it.
type Exclude func(rel string, d fs.DirEntry) bool

// ExcludeGit leaves out the .git directory.
func ExcludeGit(rel string, d fs.DirEntry) bool {
	return d.IsDir() && d.Name() == ".git"
}

// WriteZip writes root as a zip archive to w. Entries are stored relative to root and
// compressed at the best compression level. The first error aborts the stream; the
// partial output is left for the caller to discard.
func WriteZip(ctx context.Context, w io.Writer, root string, exclude Exclude) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if exclude != nil && exclude(rel, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return addEntry(zw, path, rel, info)
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", root, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func addEntry(zw *zip.Writer, path, rel string, info fs.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", rel, err)
	}
	header.Name = rel
	if info.IsDir() {
		header.Name += "/"
		header.Method = zip.Store
		_, err := zw.CreateHeader(header)
		return err
	}
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", rel, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()
	if _, err := io.Copy(entry, f); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}
