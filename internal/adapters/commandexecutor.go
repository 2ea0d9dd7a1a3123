package adapters

import (
	"context"
	"fmt"
	"os/exec"

	"tarnhelm/internal/core/ports"
)

// CommandExecutorAdapter implements the CommandExecutor interface
type CommandExecutorAdapter struct{}

// Compile-time check to ensure CommandExecutorAdapter implements ports.CommandExecutor
var _ ports.CommandExecutor = (*CommandExecutorAdapter)(nil)

// NewCommandExecutorAdapter creates a new CommandExecutorAdapter instance
func NewCommandExecutorAdapter() *CommandExecutorAdapter {
	return &CommandExecutorAdapter{}
}

// Execute runs a command with the given arguments and working directory
func (c *CommandExecutorAdapter) Execute(ctx context.Context, command string, args []string, workingDir string) error {
	if command == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if workingDir == "" {
		return fmt.Errorf("working directory cannot be empty")
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = workingDir

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to execute command: %w", err)
	}

	return nil
}
