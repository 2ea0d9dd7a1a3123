package ports

import (
	"context"
	"time"
)

// StorageBackend defines the uniform contract over backup storage.
// Identifiers are absolute paths for the local backend and object keys
// without the bucket-path prefix for the object-store backend.
type StorageBackend interface {
	// List returns the identifiers of the backend's inventory that match
	// prefix. The local backend matches filenames of the form
	// *<prefix>*.<extension>; the object-store backend matches object keys
	// that begin with prefix, without filtering on the extension.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether an identifier is present.
	Exists(ctx context.Context, id string) (bool, error)

	// Put transfers a staged archive into the backend under id.
	Put(ctx context.Context, localPath string, id string) error

	// Get materializes the identified archive at localPath and returns the
	// path holding the data. Backends that already hold the data locally may
	// short-circuit and return the existing path.
	Get(ctx context.Context, id string, localPath string) (string, error)

	// Rename moves oldID to newID. Atomic on the local backend; the
	// object-store backend copies, verifies the copy, then deletes the
	// source.
	Rename(ctx context.Context, oldID string, newID string) error

	// Delete removes a single identifier.
	Delete(ctx context.Context, id string) error

	// DeleteMany removes a batch of identifiers. An empty batch is a no-op;
	// batches beyond the backend's documented maximum are rejected.
	DeleteMany(ctx context.Context, ids []string) error
}

// Logger is the structured logging collaborator. The core emits messages and
// treats the logger as fire-and-forget.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock abstracts the current time so filename timestamps are testable.
type Clock interface {
	Now() time.Time
}

// OwnershipAdjuster changes ownership of restored files. Implementations are
// a no-op when the process lacks the privilege to chown.
type OwnershipAdjuster interface {
	Apply(dir string, uid int, gid int) error
}

// CommandExecutor abstracts external command execution for testability.
type CommandExecutor interface {
	Execute(ctx context.Context, command string, args []string, workingDir string) error
}

// DatabaseDumper is the optional pre-step that produces a single dump file.
// When enabled, the dump becomes the sole source for the run.
type DatabaseDumper interface {
	Dump(ctx context.Context) (string, error)
}
