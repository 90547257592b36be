package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single external command invocation.
const DefaultTimeout = 5 * time.Second

// waitDelay caps how long Output waits for pipes after the process is killed.
const waitDelay = 500 * time.Millisecond

// Runner invokes the external OS tooling the scanner depends on.
// Implementations return raw command output; parsing happens elsewhere
// so heuristics can be tested with canned text.
type Runner interface {
	// ListProcesses runs the process-table command with the given ps -o format.
	ListProcesses(ctx context.Context, format string) (string, error)
	// OpenFiles returns lsof -F style field output describing the cwd of pid.
	OpenFiles(ctx context.Context, pid int) (string, error)
}

// Exec runs ps and lsof through os/exec.
type Exec struct {
	// Timeout applies per invocation. Zero means DefaultTimeout; negative disables it.
	Timeout time.Duration
	// PS and Lsof override the binaries (useful for tests and odd installs).
	PS   string
	Lsof string
}

func (e Exec) timeout() time.Duration {
	if e.Timeout == 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

func (e Exec) ListProcesses(ctx context.Context, format string) (string, error) {
	ps := e.PS
	if ps == "" {
		ps = "ps"
	}
	return e.run(ctx, ps, "-axww", "-o", format)
}

func (e Exec) OpenFiles(ctx context.Context, pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	lsof := e.Lsof
	if lsof == "" {
		lsof = "lsof"
	}
	return e.run(ctx, lsof, "-a", "-p", strconv.Itoa(pid), "-d", "cwd", "-Fn")
}

func (e Exec) run(ctx context.Context, name string, args ...string) (string, error) {
	if t := e.timeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	// #nosec G204
	cmd := exec.CommandContext(ctx, name, args...)
	configureCommand(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", name, ctxErr)
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return "", fmt.Errorf("%s exited with %d: %s", name, ee.ExitCode(), msg)
			}
			return "", fmt.Errorf("%s exited with %d", name, ee.ExitCode())
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(out), nil
}
