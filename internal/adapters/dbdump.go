package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"tarnhelm/internal/core/ports"
)

// OutputPlaceholder marks where the dump target path is substituted into the
// configured command arguments.
const OutputPlaceholder = "{output}"

// CommandDumper error constants
var (
	ErrDumperCommandEmpty = errors.New("dump command cannot be empty")
	ErrDumperExecNil      = errors.New("command executor cannot be nil")
	ErrDumperScratchEmpty = errors.New("scratch directory cannot be empty")
)

// CommandDumper runs the configured dump command as the optional pre-step.
// The command writes one file to the substituted output path; that file
// becomes the sole backup source for the run.
type CommandDumper struct {
	executor ports.CommandExecutor
	command  []string
	scratch  string
	logger   ports.Logger
}

// Compile-time check to ensure CommandDumper implements ports.DatabaseDumper
var _ ports.DatabaseDumper = (*CommandDumper)(nil)

// NewCommandDumper creates a dumper that executes the given argv. Arguments
// containing {output} are replaced with the dump target path.
func NewCommandDumper(executor ports.CommandExecutor, command []string, scratch string, logger ports.Logger) (*CommandDumper, error) {
	if executor == nil {
		return nil, ErrDumperExecNil
	}
	if len(command) == 0 {
		return nil, ErrDumperCommandEmpty
	}
	if scratch == "" {
		return nil, ErrDumperScratchEmpty
	}
	if logger == nil {
		logger = NewNopLogger()
	}

	return &CommandDumper{
		executor: executor,
		command:  command,
		scratch:  scratch,
		logger:   logger,
	}, nil
}

// Dump runs the configured command and returns the produced dump file.
func (d *CommandDumper) Dump(ctx context.Context) (string, error) {
	output := filepath.Join(d.scratch, "dump-"+uuid.NewString())

	args := make([]string, 0, len(d.command)-1)
	for _, arg := range d.command[1:] {
		args = append(args, strings.ReplaceAll(arg, OutputPlaceholder, output))
	}

	d.logger.Info("running database dump", "command", d.command[0])
	if err := d.executor.Execute(ctx, d.command[0], args, d.scratch); err != nil {
		return "", fmt.Errorf("dump command failed: %w", err)
	}

	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("dump command produced no output at %s: %w", output, err)
	}

	return output, nil
}
