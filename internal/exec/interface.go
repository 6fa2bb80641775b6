// Package exec provides an interface for command execution.
package exec

import (
	"context"
)

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is appended to the parent environment.
	Env []string
}

// Result is what a finished process produced. A non-zero ExitCode is not an
// error; errors are reserved for processes that could not run to completion.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and collects stdout and stderr separately.
	Run(ctx context.Context, cmd Command) (Result, error)

	// LookPath reports where name would be found on PATH.
	LookPath(name string) (string, error)
}
