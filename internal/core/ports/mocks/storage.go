package mocks

import (
	"context"

	"tarnhelm/internal/core/ports"
)

// MockStorageBackend is a mock implementation of StorageBackend for testing
type MockStorageBackend struct {
	ListFunc       func(ctx context.Context, prefix string) ([]string, error)
	ExistsFunc     func(ctx context.Context, id string) (bool, error)
	PutFunc        func(ctx context.Context, localPath string, id string) error
	GetFunc        func(ctx context.Context, id string, localPath string) (string, error)
	RenameFunc     func(ctx context.Context, oldID string, newID string) error
	DeleteFunc     func(ctx context.Context, id string) error
	DeleteManyFunc func(ctx context.Context, ids []string) error
}

// Compile-time check to ensure MockStorageBackend implements ports.StorageBackend
var _ ports.StorageBackend = (*MockStorageBackend)(nil)

// NewMockStorageBackend creates a new mock storage backend
func NewMockStorageBackend() *MockStorageBackend {
	return &MockStorageBackend{}
}

// List returns all identifiers matching the prefix
func (m *MockStorageBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, prefix)
	}
	return []string{}, nil
}

// Exists reports whether an identifier is present
func (m *MockStorageBackend) Exists(ctx context.Context, id string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, id)
	}
	return false, nil
}

// Put transfers a staged archive into the backend
func (m *MockStorageBackend) Put(ctx context.Context, localPath string, id string) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, localPath, id)
	}
	return nil
}

// Get materializes the identified archive at localPath
func (m *MockStorageBackend) Get(ctx context.Context, id string, localPath string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id, localPath)
	}
	return localPath, nil
}

// Rename moves oldID to newID
func (m *MockStorageBackend) Rename(ctx context.Context, oldID string, newID string) error {
	if m.RenameFunc != nil {
		return m.RenameFunc(ctx, oldID, newID)
	}
	return nil
}

// Delete removes a single identifier
func (m *MockStorageBackend) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// DeleteMany removes a batch of identifiers
func (m *MockStorageBackend) DeleteMany(ctx context.Context, ids []string) error {
	if m.DeleteManyFunc != nil {
		return m.DeleteManyFunc(ctx, ids)
	}
	return nil
}

// MockCommandExecutor is a mock implementation of CommandExecutor for testing
type MockCommandExecutor struct {
	ExecuteFunc func(ctx context.Context, command string, args []string, workingDir string) error
}

// Compile-time check to ensure MockCommandExecutor implements ports.CommandExecutor
var _ ports.CommandExecutor = (*MockCommandExecutor)(nil)

// Execute runs a command with the given arguments and working directory
func (m *MockCommandExecutor) Execute(ctx context.Context, command string, args []string, workingDir string) error {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, command, args, workingDir)
	}
	return nil
}
