package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/helloagents/rlm/internal/exec"
	"github.com/helloagents/rlm/pkg/models"
)

// CLIExecutor runs sub-agents through an agent CLI such as codex.
type CLIExecutor struct {
	backend models.Backend
	spec    BackendSpec
	model   string
	workDir string
	runner  exec.CommandRunner
	log     *slog.Logger
}

// CLIOption configures a CLIExecutor.
type CLIOption func(*CLIExecutor)

// WithModel overrides the backend's default model.
func WithModel(model string) CLIOption {
	return func(e *CLIExecutor) {
		if model != "" {
			e.model = model
		}
	}
}

// WithWorkDir sets the directory the CLI runs in.
func WithWorkDir(dir string) CLIOption {
	return func(e *CLIExecutor) { e.workDir = dir }
}

// WithRunner replaces the process runner. Used by tests.
func WithRunner(r exec.CommandRunner) CLIOption {
	return func(e *CLIExecutor) { e.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CLIOption {
	return func(e *CLIExecutor) { e.log = l }
}

// NewCLIExecutor creates an executor for a CLI backend.
func NewCLIExecutor(backend models.Backend, opts ...CLIOption) (*CLIExecutor, error) {
	spec, ok := Backends[backend]
	if !ok {
		return nil, fmt.Errorf("backend %q has no command line", backend)
	}
	e := &CLIExecutor{
		backend: backend,
		spec:    spec,
		model:   spec.DefaultModel,
		runner:  exec.NewRunner(),
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Backend returns the backend name.
func (e *CLIExecutor) Backend() models.Backend {
	return e.backend
}

// Model returns the model passed to the CLI.
func (e *CLIExecutor) Model() string {
	return e.model
}

// Args builds the argument vector for a request, excluding the binary.
func (e *CLIExecutor) Args(req Request) []string {
	args := append([]string(nil), e.spec.Command[1:]...)
	if e.spec.JSONFlag != "" {
		args = append(args, e.spec.JSONFlag)
	}
	if e.spec.SkipGitFlag != "" {
		args = append(args, e.spec.SkipGitFlag)
	}
	if e.spec.SandboxFlag != "" && req.Sandbox != "" {
		args = append(args, e.spec.SandboxFlag, string(req.Sandbox))
	}
	if e.spec.ModelFlag != "" && e.model != "" {
		args = append(args, e.spec.ModelFlag, e.model)
	}
	return append(args, req.Prompt)
}

// Execute runs the CLI and returns its raw output. A missing binary is
// reported as ErrBackendNotInstalled.
func (e *CLIExecutor) Execute(ctx context.Context, req Request) (*Response, error) {
	env := []string{EnvDepth + "=" + strconv.Itoa(req.Depth)}
	if req.SessionID != "" {
		env = append(env, EnvSessionID+"="+req.SessionID)
	}

	e.log.Debug("spawning cli agent",
		"backend", e.backend,
		"role", req.Role,
		"depth", req.Depth,
		"sandbox", req.Sandbox,
	)

	res, err := e.runner.Run(ctx, exec.Command{
		Name: e.spec.Command[0],
		Args: e.Args(req),
		Dir:  e.workDir,
		Env:  env,
	})
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", e.spec.Command[0], ErrBackendNotInstalled)
		}
		return nil, err
	}

	return &Response{
		Output:   string(res.Stdout),
		Stderr:   string(res.Stderr),
		ExitCode: res.ExitCode,
	}, nil
}

var _ Executor = (*CLIExecutor)(nil)
