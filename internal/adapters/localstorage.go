// Package adapters provides the storage backends and the process-facing
// collaborators (scratch directory, logging, ownership adjustment, command
// execution) behind the core's ports.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tarnhelm/internal/config"
	"tarnhelm/internal/core/domain"
	"tarnhelm/internal/core/ports"
)

// LocalStorage error constants
var (
	ErrLocalStorageRootEmpty = errors.New("storage root cannot be empty")
)

// LocalStorage implements the storage backend contract on one filesystem
// root. Identifiers are absolute paths beneath the root; bare filenames are
// tolerated and resolved against the root.
type LocalStorage struct {
	root string
}

// Compile-time check to ensure LocalStorage implements ports.StorageBackend
var _ ports.StorageBackend = (*LocalStorage)(nil)

// NewLocalStorage creates a local backend rooted at the given directory,
// creating it when missing.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		return nil, ErrLocalStorageRootEmpty
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, config.DirPermission); err != nil {
		return nil, ports.NewStorageError(ports.StorageUnreachable, abs, err)
	}

	return &LocalStorage{root: abs}, nil
}

// Root returns the backend's root directory.
func (l *LocalStorage) Root() string {
	return l.root
}

// resolve maps an identifier onto a path inside the root.
func (l *LocalStorage) resolve(id string) string {
	if filepath.IsAbs(id) {
		return id
	}
	return filepath.Join(l.root, id)
}

// List walks the root non-recursively and returns the absolute path of every
// file matching *<prefix>*.<extension>.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, ports.NewStorageError(ports.StorageTransport, l.root, err)
	}

	var ids []string
	suffix := "." + domain.BackupExtension
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		if prefix != "" && !strings.Contains(name, prefix) {
			continue
		}
		ids = append(ids, filepath.Join(l.root, name))
	}

	sort.Strings(ids)
	return ids, nil
}

// Exists reports whether the identifier names an existing file.
func (l *LocalStorage) Exists(ctx context.Context, id string) (bool, error) {
	_, err := os.Stat(l.resolve(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, ports.NewStorageError(ports.StorageTransport, id, err)
}

// Put copies the staged archive into the root. Publication is a copy, never
// a rename, so the staged file stays usable for other locations.
func (l *LocalStorage) Put(ctx context.Context, localPath string, id string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return ports.NewStorageError(ports.StorageTransport, id, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(l.resolve(id), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, config.FilePermission)
	if err != nil {
		return ports.NewStorageError(ports.StorageTransport, id, err)
	}

	_, err = io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return ports.NewStorageError(ports.StorageTransport, id, err)
	}

	return nil
}

// Get short-circuits: the archive already lives on this filesystem, so the
// existing path is returned without copying.
func (l *LocalStorage) Get(ctx context.Context, id string, localPath string) (string, error) {
	path := l.resolve(id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ports.NewStorageError(ports.StorageNotFound, id, err)
		}
		return "", ports.NewStorageError(ports.StorageTransport, id, err)
	}
	return path, nil
}

// Rename moves oldID to newID atomically within the root.
func (l *LocalStorage) Rename(ctx context.Context, oldID string, newID string) error {
	if err := os.Rename(l.resolve(oldID), l.resolve(newID)); err != nil {
		if os.IsNotExist(err) {
			return ports.NewStorageError(ports.StorageNotFound, oldID, err)
		}
		return ports.NewStorageError(ports.StorageTransport, oldID, err)
	}
	return nil
}

// Delete removes a single archive.
func (l *LocalStorage) Delete(ctx context.Context, id string) error {
	if err := os.Remove(l.resolve(id)); err != nil {
		if os.IsNotExist(err) {
			return ports.NewStorageError(ports.StorageNotFound, id, err)
		}
		return ports.NewStorageError(ports.StorageTransport, id, err)
	}
	return nil
}

// DeleteMany removes archives one by one; the local filesystem has no batch
// primitive.
func (l *LocalStorage) DeleteMany(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := l.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
