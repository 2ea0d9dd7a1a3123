package ports

import (
	"errors"
	"fmt"
)

// StorageErrorKind classifies backend failures.
type StorageErrorKind string

const (
	// StorageUnreachable means the backend could not be reached or validated
	// at construction. Fatal for the run.
	StorageUnreachable StorageErrorKind = "unreachable"
	// StorageNotFound means the identifier does not exist.
	StorageNotFound StorageErrorKind = "not_found"
	// StorageCopyNotVerified means a rename's copied object could not be read
	// back before the source delete; the source is retained.
	StorageCopyNotVerified StorageErrorKind = "copy_not_verified"
	// StorageBatchTooLarge means a batch delete exceeded the backend maximum.
	StorageBatchTooLarge StorageErrorKind = "batch_too_large"
	// StorageTransport covers all other I/O and API failures.
	StorageTransport StorageErrorKind = "transport"
)

// StorageError is the per-operation failure surfaced by storage backends.
type StorageError struct {
	Kind StorageErrorKind
	Key  string
	Err  error
}

// NewStorageError wraps an underlying failure with its kind and the
// identifier it concerns.
func NewStorageError(kind StorageErrorKind, key string, err error) *StorageError {
	return &StorageError{Kind: kind, Key: key, Err: err}
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage %s: %s", e.Kind, e.Key)
	}
	return fmt.Sprintf("storage %s: %s: %v", e.Kind, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// StorageErrorKindOf extracts the kind from an error chain, or empty when the
// error is not a StorageError.
func StorageErrorKindOf(err error) StorageErrorKind {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
