// Package services implements the backup engine: the archive builder, the
// retention engine, the rename planner, and the BackupManager orchestrator
// that wires them over the storage backends.
package services

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"tarnhelm/internal/config"
	"tarnhelm/internal/core/domain"
	"tarnhelm/internal/core/ports"
)

// Archive builder error constants
var (
	ErrArchive        = errors.New("archive operation failed")
	ErrInvalidSource  = errors.New("source is neither a file nor a directory")
	ErrBuilderConfig  = errors.New("settings cannot be nil")
	ErrBuilderLogger  = errors.New("logger cannot be nil")
	ErrBuilderScratch = errors.New("scratch directory cannot be empty")
)

// archiveEntry pairs a file on disk with its logical path inside the archive.
// Entries exist only during construction and are never persisted.
type archiveEntry struct {
	fullPath string
	relPath  string
}

// ArchiveBuilder produces one gzip-compressed tar artifact per run in the
// scratch directory, applying the configured include/exclude filters. Sources
// are never mutated.
type ArchiveBuilder struct {
	settings *config.Settings
	scratch  string
	logger   ports.Logger
}

// NewArchiveBuilder creates a new archive builder
func NewArchiveBuilder(settings *config.Settings, scratch string, logger ports.Logger) (*ArchiveBuilder, error) {
	if settings == nil {
		return nil, ErrBuilderConfig
	}
	if scratch == "" {
		return nil, ErrBuilderScratch
	}
	if logger == nil {
		return nil, ErrBuilderLogger
	}

	return &ArchiveBuilder{
		settings: settings,
		scratch:  scratch,
		logger:   logger,
	}, nil
}

// Build walks the given sources, filters candidate files, and streams them
// into a compressed tar in the scratch directory. It returns the staged
// artifact path. Any I/O or tar failure aborts the build and discards the
// partial artifact.
func (b *ArchiveBuilder) Build(ctx context.Context, sources []string) (string, error) {
	entries, err := b.enumerate(sources)
	if err != nil {
		return "", err
	}

	staged := filepath.Join(b.scratch, uuid.NewString()+"."+domain.BackupExtension)
	b.logger.Trace("staging archive", "path", staged)

	if err := b.writeTarball(ctx, staged, entries); err != nil {
		_ = os.Remove(staged)
		return "", err
	}

	return staged, nil
}

func (b *ArchiveBuilder) enumerate(sources []string) ([]archiveEntry, error) {
	var entries []archiveEntry

	for _, source := range sources {
		info, err := os.Lstat(source)
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %v", ErrArchive, source, err)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			b.logger.Warn("skip backup of symlink", "path", source)

		case info.Mode().IsRegular():
			if b.admit(source) {
				entries = append(entries, archiveEntry{
					fullPath: source,
					relPath:  filepath.Base(source),
				})
			}

		case info.IsDir():
			dirEntries, err := b.enumerateDir(source)
			if err != nil {
				return nil, err
			}
			entries = append(entries, dirEntries...)

		default:
			return nil, fmt.Errorf("%w: %s", ErrInvalidSource, source)
		}
	}

	return entries, nil
}

func (b *ArchiveBuilder) enumerateDir(source string) ([]archiveEntry, error) {
	var entries []archiveEntry

	err := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink != 0 {
			b.logger.Warn("skip backup of symlink", "path", path)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !b.admit(path) {
			return nil
		}

		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if !b.settings.StripSourcePaths {
			rel = filepath.Join(filepath.Base(source), rel)
		}

		entries = append(entries, archiveEntry{
			fullPath: path,
			relPath:  rel,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %v", ErrArchive, source, err)
	}

	return entries, nil
}

// admit applies the filter chain: the always-exclude basenames first, then
// the include regex, then the exclude regex, both against the full path
// string.
func (b *ArchiveBuilder) admit(path string) bool {
	if config.AlwaysExcludeFilenames[filepath.Base(path)] {
		b.logger.Trace("excluded file", "path", path)
		return false
	}

	if b.settings.IncludeRegex != nil && !b.settings.IncludeRegex.MatchString(path) {
		b.logger.Trace("exclude by include regex", "path", path)
		return false
	}

	if b.settings.ExcludeRegex != nil && b.settings.ExcludeRegex.MatchString(path) {
		b.logger.Trace("exclude by regex", "path", path)
		return false
	}

	return true
}

func (b *ArchiveBuilder) writeTarball(ctx context.Context, staged string, entries []archiveEntry) error {
	file, err := os.OpenFile(staged, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, config.FilePermission)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrArchive, staged, err)
	}
	defer file.Close()

	gz, err := gzip.NewWriterLevel(file, b.settings.CompressionLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}

	tw := tar.NewWriter(gz)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrArchive, err)
		}
		if err := b.addFile(tw, entry); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: finalize tar: %v", ErrArchive, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("%w: finalize gzip: %v", ErrArchive, err)
	}

	return nil
}

func (b *ArchiveBuilder) addFile(tw *tar.Writer, entry archiveEntry) error {
	info, err := os.Stat(entry.fullPath)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrArchive, entry.fullPath, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("%w: header for %s: %v", ErrArchive, entry.fullPath, err)
	}
	header.Name = filepath.ToSlash(entry.relPath)

	b.logger.Trace("add to tar", "path", header.Name)

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("%w: write header %s: %v", ErrArchive, header.Name, err)
	}

	file, err := os.Open(entry.fullPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrArchive, entry.fullPath, err)
	}

	_, err = io.Copy(tw, file)
	file.Close()
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrArchive, header.Name, err)
	}

	return nil
}

// Extract unpacks a tarball into destination with a data-only filter:
// absolute paths, parent-relative paths, and device or fifo entries are
// rejected; symlink entries are skipped with a warning.
func (b *ArchiveBuilder) Extract(ctx context.Context, tarPath string, destination string) error {
	file, err := os.Open(tarPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrArchive, tarPath, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrArchive, err)
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrArchive, tarPath, err)
		}

		if err := b.extractEntry(tr, header, destination); err != nil {
			return err
		}
	}
}

func (b *ArchiveBuilder) extractEntry(tr *tar.Reader, header *tar.Header, destination string) error {
	name := header.Name
	if err := validateEntryPath(name); err != nil {
		return err
	}
	target := filepath.Join(destination, filepath.FromSlash(name))

	switch header.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", ErrArchive, name, err)
		}

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), config.DirPermission); err != nil {
			return fmt.Errorf("%w: mkdir for %s: %v", ErrArchive, name, err)
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, header.FileInfo().Mode().Perm())
		if err != nil {
			return fmt.Errorf("%w: create %s: %v", ErrArchive, name, err)
		}
		_, err = io.Copy(out, tr)
		out.Close()
		if err != nil {
			return fmt.Errorf("%w: extract %s: %v", ErrArchive, name, err)
		}

	case tar.TypeSymlink, tar.TypeLink:
		b.logger.Warn("skip link entry in archive", "path", name)

	default:
		return fmt.Errorf("%w: refusing special entry in archive: %s", ErrArchive, name)
	}

	return nil
}

func validateEntryPath(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return fmt.Errorf("%w: absolute path in archive: %s", ErrArchive, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return fmt.Errorf("%w: parent-relative path in archive: %s", ErrArchive, name)
		}
	}
	return nil
}
