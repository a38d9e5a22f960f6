// Package shell runs an external binary the way a terminal user would: the
// binary and its arguments are quoted into one command line and handed to
// the host shell, which is the integration boundary for driving vim
// through its client-server flags.
//
// The [Runner] interface is the narrow capability the rest of vimbot depends
// on. [ExecRunner] is the real implementation; tests substitute fakes.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after cancellation.
const waitDelay = time.Second

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner invokes a binary with arguments.
type Runner interface {
	// Run executes binary with args, blocks until it exits, and captures
	// its output. A non-zero exit status is reported in Result.ExitCode,
	// not as an error; an error means the command could not be run at all
	// or ctx ended first.
	Run(ctx context.Context, binary string, args ...string) (Result, error)

	// Start launches binary with args and returns without waiting for it.
	// The launched process outlives ctx.
	Start(ctx context.Context, binary string, args ...string) error
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	// Dialect controls argument quoting. Zero value is Posix.
	Dialect Dialect

	// Env is appended to the current environment of every command.
	Env []string
}

// NewExecRunner returns an ExecRunner using the host's dialect.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Dialect: DefaultDialect()}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, binary string, args ...string) (Result, error) {
	line := r.Dialect.CommandLine(binary, args...)

	cmd := shellCommand(ctx, line)
	cmd.Env = r.environ()
	// Grandchildren can keep the output pipes open after ctx kills the shell.
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	if errors.Is(err, exec.ErrWaitDelay) {
		// Exited cleanly; something it spawned still holds the pipes.
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("failed to run %s: %w", binary, err)
}

// Start implements Runner.
func (r *ExecRunner) Start(ctx context.Context, binary string, args ...string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := r.startDetached(binary, args...); err != nil {
		return fmt.Errorf("failed to launch %s: %w", binary, err)
	}
	return nil
}

func (r *ExecRunner) environ() []string {
	if len(r.Env) == 0 {
		return nil
	}
	return append(os.Environ(), r.Env...)
}

// Verify interface implementation at compile time.
var _ Runner = (*ExecRunner)(nil)
