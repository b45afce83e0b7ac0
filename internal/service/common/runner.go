//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Result is what a finished command left behind.
type Result struct {
	// Output is the combined stdout and stderr.
	Output string
	// ExitCode is the process exit status.
	ExitCode int
	// Duration is the wall time of the command.
	Duration time.Duration
}

// Runner executes external tools.
type Runner interface {
	// LookPath resolves an executable name on PATH.
	LookPath(name string) (string, error)
	// Run executes the command and waits for it. A non-zero exit is reported
	// through Result.ExitCode, not as an error.
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct {
	// env is appended to the inherited environment.
	env []string
	// stream receives output while the command runs.
	stream io.Writer
	// commandTimeout bounds each command when positive.
	commandTimeout time.Duration
}

// Option configures runner behaviour.
type Option func(*ExecRunner)

// WithCommandTimeout sets a default timeout for every command.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(r *ExecRunner) {
		if timeout > 0 {
			r.commandTimeout = timeout
		}
	}
}

// WithStream copies command output to w as it is produced.
func WithStream(w io.Writer) Option {
	return func(r *ExecRunner) {
		r.stream = w
	}
}

// WithEnv adds KEY=VALUE pairs to the environment of every command.
func WithEnv(kvs ...string) Option {
	return func(r *ExecRunner) {
		r.env = append(r.env, kvs...)
	}
}

// ErrCommandTimeout is returned when a command exceeds its timeout.
var ErrCommandTimeout = errors.New("command timed out")

// NewExecRunner creates a runner whose commands see a C locale and a
// non-interactive debconf frontend, so tool output stays predictable.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		env: []string{
			"LC_ALL=C",
			"LANG=C",
			"DEBIAN_FRONTEND=noninteractive",
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// LookPath resolves an executable name on PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes the command and captures its combined output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	cmdCtx, cancel := r.commandContext(ctx)
	defer cancel()

	var output bytes.Buffer

	sink := io.Writer(&output)
	if r.stream != nil {
		sink = io.MultiWriter(&output, r.stream)
	}

	cmd := exec.CommandContext(cmdCtx, name, args...)
	cmd.Env = append(os.Environ(), r.env...)
	cmd.Stdout = sink
	cmd.Stderr = sink

	started := time.Now()
	err := cmd.Run()

	result := &Result{
		Output:   output.String(),
		Duration: time.Since(started),
	}

	if err == nil {
		return result, nil
	}

	result.ExitCode = -1

	switch {
	case ctx.Err() != nil:
		return result, ctx.Err()
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded):
		return result, fmt.Errorf("%s after %s: %w", name, r.commandTimeout, ErrCommandTimeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()

		return result, nil
	}

	return result, fmt.Errorf("run %s: %w", name, err)
}

// commandContext returns a context with the runner's timeout if configured,
// otherwise a cancellable child context without a deadline.
func (r *ExecRunner) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.commandTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, r.commandTimeout)
}
