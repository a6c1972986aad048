// Package solver drives the external finite-element solver. One
// invocation per case, executed in the case's artifact directory with an
// enforced wall-clock timeout.
package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes the solver for one case directory. Implementations
// must respect ctx cancellation.
type Runner interface {
	Run(ctx context.Context, workDir string) error
}

// Error classifies a failed solver invocation. StartFailed marks a
// process that never ran (missing binary, unreadable working dir); a
// process that started and was then killed by a signal carries
// ExitCode -1 with StartFailed false and is an ordinary case failure.
type Error struct {
	Timeout     bool
	StartFailed bool
	ExitCode    int // -1 when the process did not run to completion
	Stderr      string
	Err         error
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("solver timed out: %v", e.Err)
	case e.StartFailed:
		return fmt.Sprintf("solver failed to start: %v", e.Err)
	case e.ExitCode >= 0:
		return fmt.Sprintf("solver exited with code %d: %s", e.ExitCode, e.Stderr)
	default:
		return fmt.Sprintf("solver terminated abnormally: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// stderrTail limits how much solver stderr is carried into errors.
const stderrTail = 2048

// Exec runs a configured external command per case.
type Exec struct {
	Command string
	Args    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewExec creates an Exec runner. A nil logger discards output.
func NewExec(command string, args []string, timeout time.Duration, logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exec{Command: command, Args: args, Timeout: timeout, Logger: logger}
}

// Run invokes the solver in workDir and waits for completion. Failures
// are returned as *Error so the pipeline can classify them.
func (e *Exec) Run(ctx context.Context, workDir string) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if e.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, e.Command, e.Args...)
	cmd.Dir = workDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.Logger.Debug("invoking solver",
		"command", e.Command,
		"args", strings.Join(e.Args, " "),
		"dir", workDir,
		"timeout", e.Timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &Error{StartFailed: true, ExitCode: -1, Err: err}
	}
	err := cmd.Wait()
	elapsed := time.Since(start)

	if err == nil {
		e.Logger.Debug("solver completed", "dir", workDir, "elapsed", elapsed)
		return nil
	}

	solverErr := &Error{ExitCode: -1, Stderr: tail(stderr.String()), Err: err}

	if runCtx.Err() == context.DeadlineExceeded {
		solverErr.Timeout = true
		solverErr.Err = runCtx.Err()
		return solverErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		solverErr.ExitCode = exitErr.ExitCode()
	}
	return solverErr
}

// tail keeps the last stderrTail bytes of s.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}
	return s[len(s)-stderrTail:]
}
