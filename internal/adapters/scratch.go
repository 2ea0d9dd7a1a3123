package adapters

import (
	"fmt"
	"os"
	"sync"
	"time"

	"tarnhelm/internal/core/ports"
)

// ScratchDir is the process-lifetime staging area for archives and restore
// downloads. One orchestrator instance owns it for its lifetime; Release is
// registered at startup and safe to call more than once.
type ScratchDir struct {
	path    string
	once    sync.Once
	cleanup error
}

// NewScratchDir creates a fresh scratch directory.
func NewScratchDir() (*ScratchDir, error) {
	path, err := os.MkdirTemp("", "tarnhelm-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &ScratchDir{path: path}, nil
}

// Path returns the scratch directory path.
func (s *ScratchDir) Path() string {
	return s.path
}

// Release removes the scratch directory and everything staged in it.
func (s *ScratchDir) Release() error {
	s.once.Do(func() {
		s.cleanup = os.RemoveAll(s.path)
	})
	return s.cleanup
}

// SystemClock implements ports.Clock with the wall clock.
type SystemClock struct{}

// Compile-time check to ensure SystemClock implements ports.Clock
var _ ports.Clock = (*SystemClock)(nil)

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
