// Package runner executes external commands with a hard wall-clock
// timeout and mixed-encoding output decoding. It is the only
// concurrency-aware part of the engine: the watchdog is the context
// deadline plus a bounded kill escalation.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// killGracePeriod is how long a process gets between the graceful
// termination signal and the forced kill.
const killGracePeriod = 5 * time.Second

// Result holds the outcome of one command execution. When TimedOut is
// true the exit code is not meaningful to the caller.
type Result struct {
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// CommandRunner abstracts real vs fake command execution.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, timeout time.Duration) (*Result, error)
}

// Real runs commands via os/exec.
type Real struct{}

// Run executes argv[0] with the remaining arguments. If the process
// has not exited when the timeout fires it receives SIGTERM; a process
// that ignores the signal is killed outright after killGracePeriod, so
// the caller is never blocked past timeout plus grace.
func (r *Real) Run(ctx context.Context, argv []string, timeout time.Duration) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("run command: empty argv")
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Cancel = func() error {
		// Graceful first; WaitDelay escalates to SIGKILL.
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGracePeriod

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode() // -1 when killed by signal
		} else if !timedOut {
			return nil, fmt.Errorf("run command %q: %w", argv[0], err)
		}
	}

	outText, err := decodeStream(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("decode stdout of %q: %w", argv[0], err)
	}
	errText, err := decodeStream(stderr.Bytes())
	if err != nil {
		return nil, fmt.Errorf("decode stderr of %q: %w", argv[0], err)
	}

	return &Result{
		ExitCode: exitCode,
		TimedOut: timedOut,
		Stdout:   outText,
		Stderr:   errText,
		Duration: duration,
	}, nil
}

// decodeStream decodes process output, preferring UTF-8 and falling
// back to latin-1 (some tools emit locale-encoded diagnostics on
// stderr). If both decodings fail the error is surfaced — bytes are
// never silently substituted.
func decodeStream(b []byte) (string, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("output is neither valid utf-8 nor latin-1: %w", err)
	}
	return string(decoded), nil
}
