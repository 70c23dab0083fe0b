// Package diff compares two tree-like sources path by path and renders unified diffs.
package diff

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ContextLines is the number of unchanged lines shown around each change.
const ContextLines = 3

// DevNull labels the absent side of an added or deleted file.
const DevNull = "/dev/null"

// NoNewlineMarker follows a final line that has no terminator, as in git's output.
const NoNewlineMarker = "\\ No newline at end of file\n"

// Entry is one path of a source. Content is only called for files.
type Entry struct {
	Path    string
	IsFile  bool
	Content func() ([]byte, error)
}

// Source is a tree of paths that can be walked in lock-step with another one.
type Source interface {
	// Label names the source in diff headers, e.g. a ref or "WORKDIR".
	Label() string
	// Entries lists every path of the source, directories included.
	Entries() ([]Entry, error)
}

// Walk visits the union of all paths of sources in sorted order. fn receives one entry
// per source; a nil entry means the path is absent from that source.
func Walk(sources []Source, fn func(path string, entries []*Entry) error) error {
	byPath := make(map[string][]*Entry)
	for i, src := range sources {
		entries, err := src.Entries()
		if err != nil {
			return fmt.Errorf("list %s: %w", src.Label(), err)
		}
		for j := range entries {
			e := &entries[j]
			slot, ok := byPath[e.Path]
			if !ok {
				slot = make([]*Entry, len(sources))
				byPath[e.Path] = slot
			}
			slot[i] = e
		}
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := fn(p, byPath[p]); err != nil {
			return err
		}
	}
	return nil
}

// Unified renders the changes from one source to the other as a sequence of unified diff
// patches, one per changed file, joined by newlines. Identical sources yield "".
func Unified(from, to Source) (string, error) {
	var patches []string
	err := Walk([]Source{from, to}, func(path string, entries []*Entry) error {
		a, b := fileEntry(entries[0]), fileEntry(entries[1])
		if a == nil && b == nil {
			return nil
		}
		before, err := read(a)
		if err != nil {
			return fmt.Errorf("read %s at %s: %w", path, from.Label(), err)
		}
		after, err := read(b)
		if err != nil {
			return fmt.Errorf("read %s at %s: %w", path, to.Label(), err)
		}
		if bytes.Equal(before, after) {
			return nil
		}
		patch, err := Patch(path, from.Label(), to.Label(), a != nil, b != nil, before, after)
		if err != nil {
			return err
		}
		if patch != "" {
			patches = append(patches, patch)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(patches, "\n"), nil
}

// Patch renders one file's unified diff. A missing side is labeled DevNull.
func Patch(path, fromLabel, toLabel string, fromExists, toExists bool, before, after []byte) (string, error) {
	fromFile, toFile := "a/"+path, "b/"+path
	if !fromExists {
		fromFile = DevNull
	}
	if !toExists {
		toFile = DevNull
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(string(before)),
		B:        splitLines(string(after)),
		FromFile: fromFile,
		FromDate: fromLabel,
		ToFile:   toFile,
		ToDate:   toLabel,
		Context:  ContextLines,
	})
	if err != nil {
		return "", fmt.Errorf("render diff of %s: %w", path, err)
	}
	return text, nil
}

func fileEntry(e *Entry) *Entry {
	if e == nil || !e.IsFile {
		return nil
	}
	return e
}

func read(e *Entry) ([]byte, error) {
	if e == nil || e.Content == nil {
		return nil, nil
	}
	return e.Content()
}

// splitLines keeps line terminators, as difflib expects. A final line without one gets
// NoNewlineMarker appended, so "x" and "x\n" compare as different lines and the hunk still
// ends every line with a newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n" + NoNewlineMarker
	}
	return lines
}
