package adapters

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"tarnhelm/internal/core/ports"
)

// ChownAdjuster recursively changes ownership of restored files. It is a
// warning no-op when the process is not running as root.
type ChownAdjuster struct {
	logger ports.Logger
}

// Compile-time check to ensure ChownAdjuster implements ports.OwnershipAdjuster
var _ ports.OwnershipAdjuster = (*ChownAdjuster)(nil)

// NewChownAdjuster creates a new ownership adjuster
func NewChownAdjuster(logger ports.Logger) *ChownAdjuster {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &ChownAdjuster{logger: logger}
}

// Apply changes ownership of every file and directory beneath dir. The dir
// itself is left untouched.
func (c *ChownAdjuster) Apply(dir string, uid int, gid int) error {
	if os.Getuid() != 0 {
		c.logger.Warn("not running as root, skip chown operations")
		return nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if err := os.Chown(path, uid, gid); err != nil {
			return fmt.Errorf("failed to chown %s: %w", path, err)
		}
		c.logger.Trace("chown", "path", path)
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("chown all restored files", "uid", uid, "gid", gid)
	return nil
}
