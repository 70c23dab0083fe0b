package db

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/danjacques/gofslock/fslock"
	"go.uber.org/zap"
)

const (
	lockSuffix = ".lock"
	backupDir  = "backups"
)

// StoreOptions tunes lock retries and backup retention of a JSONStore.
type StoreOptions struct {
	Retries         int           // lock attempts after the first one
	MinBackoff      time.Duration // delay before the first retry
	BackoffFactor   float64       // multiplier applied to each further retry
	MaxBackoff      time.Duration // upper bound for a single delay
	BackupRetention int           // snapshots kept per document
}

// DefaultStoreOptions mirrors the production defaults: 5 retries starting at 50ms,
// doubling each time, and 5 backups per document.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		Retries:         5,
		MinBackoff:      50 * time.Millisecond,
		BackoffFactor:   2,
		MaxBackoff:      time.Second,
		BackupRetention: 5,
	}
}

// JSONStore persists small JSON documents on the local filesystem.
//
// Every access to a document holds an advisory lock on a sidecar "<doc>.lock" file.
// The lock is an flock(2)-style lock, so it excludes other goroutines of this process
// as well as other processes sharing the same data directory. Writes go to a temporary
// file that is renamed over the document, so readers never see a partial document.
type JSONStore struct {
	opts   StoreOptions
	logger *zap.Logger
}

// NewJSONStore creates a JSONStore. A nil logger is replaced by a no-op logger.
func NewJSONStore(opts StoreOptions, logger *zap.Logger) *JSONStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BackoffFactor < 1 {
		opts.BackoffFactor = 1
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = opts.MinBackoff
	}
	if opts.BackupRetention < 0 {
		opts.BackupRetention = 0
	}
	return &JSONStore{opts: opts, logger: logger}
}

// ReadJSON returns the document at path, seeding it with fallback if it does not exist yet.
func ReadJSON[T any](s *JSONStore, path string, fallback T) (T, error) {
	var out T
	err := s.withLock(path, func() error {
		if err := s.seed(path, fallback); err != nil {
			return err
		}
		doc, err := readDocument(path, fallback)
		if err != nil {
			return err
		}
		out = doc
		return nil
	})
	return out, err
}

// WriteJSON replaces the document at path with data. The previous version is kept as a
// backup snapshot.
func WriteJSON[T any](s *JSONStore, path string, data T) error {
	return s.withLock(path, func() error {
		return s.replace(path, data)
	})
}

// UpdateJSON runs mutate on the current document and persists its result, all while the
// document lock is held, so concurrent updaters never lose each other's changes.
// If mutate returns an error nothing is written and the error is returned as is.
func UpdateJSON[T any](s *JSONStore, path string, fallback T, mutate func(T) (T, error)) (T, error) {
	var out T
	err := s.withLock(path, func() error {
		if err := s.seed(path, fallback); err != nil {
			return err
		}
		current, err := readDocument(path, fallback)
		if err != nil {
			return err
		}
		next, err := mutate(current)
		if err != nil {
			return err
		}
		if err := s.replace(path, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// LoadJSON returns the document at path without seeding it. A missing document yields
// ErrNotFound.
func LoadJSON[T any](s *JSONStore, path string) (T, error) {
	var out T
	err := s.withExistingLock(path, func() error {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		doc, err := readDocument(path, out)
		if err != nil {
			return err
		}
		out = doc
		return nil
	})
	return out, err
}

// ModifyJSON is UpdateJSON for documents that must already exist. A missing document
// yields ErrNotFound and nothing is created.
func ModifyJSON[T any](s *JSONStore, path string, mutate func(T) (T, error)) (T, error) {
	var out T
	err := s.withExistingLock(path, func() error {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		var zero T
		current, err := readDocument(path, zero)
		if err != nil {
			return err
		}
		next, err := mutate(current)
		if err != nil {
			return err
		}
		if err := s.replace(path, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// AppendLine appends one newline-terminated record to the file at path under its lock.
func (s *JSONStore) AppendLine(path string, line []byte) error {
	return s.withLock(path, func() error {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open %s for append: %w", path, err)
		}
		buf := make([]byte, 0, len(line)+1)
		buf = append(buf, line...)
		buf = append(buf, '\n')
		if _, err := f.Write(buf); err != nil {
			f.Close()
			return fmt.Errorf("append to %s: %w", path, err)
		}
		return f.Close()
	})
}

// withLock runs fn while holding the advisory lock of path. Contention is retried with
// exponential backoff; running out of retries yields ErrLockTimeout.
func (s *JSONStore) withLock(path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	return s.lock(path, fn)
}

// withExistingLock locks a document whose directory must already exist. A missing
// directory means the document is gone and yields ErrNotFound.
func (s *JSONStore) withExistingLock(path string, fn func() error) error {
	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	err := s.lock(path, fn)
	if err != nil && os.IsNotExist(err) {
		// The directory was removed between the check and the lock.
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return err
}

func (s *JSONStore) lock(path string, fn func() error) error {
	attempt := 0
	blocker := func() error {
		if attempt >= s.opts.Retries {
			return fmt.Errorf("%w: %s after %d attempts", ErrLockTimeout, path, attempt+1)
		}
		delay := s.backoff(attempt)
		attempt++
		s.logger.Debug("Document lock busy, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		time.Sleep(delay)
		return nil
	}
	return fslock.WithBlocking(path+lockSuffix, blocker, fn)
}

func (s *JSONStore) backoff(attempt int) time.Duration {
	delay := float64(s.opts.MinBackoff) * math.Pow(s.opts.BackoffFactor, float64(attempt))
	if delay > float64(s.opts.MaxBackoff) {
		return s.opts.MaxBackoff
	}
	return time.Duration(delay)
}

// seed writes fallback to path if no document exists yet. Caller holds the lock.
func (s *JSONStore) seed(path string, fallback any) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return writeAtomic(path, fallback)
}

// replace snapshots the current document and atomically writes data. Caller holds the lock.
func (s *JSONStore) replace(path string, data any) error {
	if err := s.backup(path); err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func readDocument[T any](path string, fallback T) (T, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return fallback, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return fallback, nil
	}
	var doc T
	if err := json.Unmarshal(content, &doc); err != nil {
		return fallback, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

// writeAtomic encodes data into a temporary file in the same directory, syncs it and
// renames it over path.
func writeAtomic(path string, data any) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file over %s: %w", path, err)
	}
	return nil
}

// backup copies the current document into the sibling backups directory and prunes
// all but the newest BackupRetention snapshots of that document.
func (s *JSONStore) backup(path string) error {
	if s.opts.BackupRetention == 0 {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	dir := filepath.Join(filepath.Dir(path), backupDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory %s: %w", dir, err)
	}
	base := filepath.Base(path)
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(time.Now().UTC().Format(time.RFC3339Nano))
	target := filepath.Join(dir, base+"."+stamp+".bak")
	if err := copyFile(path, target); err != nil {
		return fmt.Errorf("backup %s: %w", path, err)
	}
	return s.pruneBackups(dir, base)
}

func (s *JSONStore) pruneBackups(dir, base string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list backups in %s: %w", dir, err)
	}
	type snapshot struct {
		name    string
		modTime time.Time
	}
	var snapshots []snapshot
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, base+".") || !strings.HasSuffix(name, ".bak") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed concurrently
		}
		snapshots = append(snapshots, snapshot{name: name, modTime: info.ModTime()})
	}
	if len(snapshots) <= s.opts.BackupRetention {
		return nil
	}
	// Newest first; names embed the timestamp so they break mtime ties.
	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].modTime.Equal(snapshots[j].modTime) {
			return snapshots[i].modTime.After(snapshots[j].modTime)
		}
		return snapshots[i].name > snapshots[j].name
	})
	for _, old := range snapshots[s.opts.BackupRetention:] {
		if err := os.Remove(filepath.Join(dir, old.name)); err != nil && !os.IsNotExist(err) {
			s.logger.Error("Failed to prune backup", zap.String("backup", old.name), zap.Error(err))
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
