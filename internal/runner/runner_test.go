package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestExecListProcessesPassesFormat(t *testing.T) {
	requireUnix(t)
	e := Exec{PS: "echo"}
	out, err := e.ListProcesses(context.Background(), "pid=,ppid=,args=")
	if err != nil {
		t.Fatalf("echo should succeed: %v", err)
	}
	if !strings.Contains(out, "-o pid=,ppid=,args=") {
		t.Fatalf("format not forwarded, got %q", out)
	}
}

func TestExecNonZeroExit(t *testing.T) {
	requireUnix(t)
	e := Exec{PS: "false"}
	_, err := e.ListProcesses(context.Background(), "pid=")
	if err == nil || !strings.Contains(err.Error(), "exited with 1") {
		t.Fatalf("expected exit error, got %v", err)
	}
}

func TestExecMissingBinary(t *testing.T) {
	e := Exec{Lsof: "__definitely_not_exists__"}
	if _, err := e.OpenFiles(context.Background(), 1); err == nil {
		t.Fatalf("expected error for missing binary")
	}
}

func TestExecRejectsInvalidPID(t *testing.T) {
	if _, err := (Exec{}).OpenFiles(context.Background(), 0); err == nil {
		t.Fatalf("expected error for pid 0")
	}
}

func TestExecTimeout(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "slow-ps")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	e := Exec{PS: script, Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := e.ListProcesses(context.Background(), "pid=")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout did not abort the command")
	}
}

func TestExecTimeoutKillsDescendants(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "slow-lsof")
	// the backgrounded sleep inherits stdout and outlives its parent shell
	body := "#!/bin/sh\nsleep 3 &\nwait\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	e := Exec{Lsof: script, Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := e.OpenFiles(context.Background(), 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("lookup took %v, descendants kept the pipe open", elapsed)
	}
}

type stubRunner struct{ out string }

func (s stubRunner) ListProcesses(context.Context, string) (string, error) { return s.out, nil }
func (s stubRunner) OpenFiles(context.Context, int) (string, error)        { return "", nil }

func TestNativeCwdDelegatesListing(t *testing.T) {
	n := NativeCwd{Base: stubRunner{out: "1 0 init"}}
	out, err := n.ListProcesses(context.Background(), "pid=")
	if err != nil || out != "1 0 init" {
		t.Fatalf("unexpected delegate result %q %v", out, err)
	}
	if _, err := (NativeCwd{}).ListProcesses(context.Background(), "pid="); err == nil {
		t.Fatalf("expected error without base runner")
	}
}

func TestNativeCwdOwnProcess(t *testing.T) {
	requireUnix(t)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	out, err := NativeCwd{}.OpenFiles(context.Background(), os.Getpid())
	if err != nil {
		t.Skipf("cwd lookup unsupported here: %v", err)
	}
	if !strings.Contains(out, "fcwd\n") {
		t.Fatalf("missing fd marker in %q", out)
	}
	resolved, _ := filepath.EvalSymlinks(wd)
	if !strings.Contains(out, "n"+wd) && !strings.Contains(out, "n"+resolved) {
		t.Fatalf("expected cwd %q in %q", wd, out)
	}
}
