package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/agentwatch"
	"github.com/loykin/agentwatch/internal/config"
	"github.com/loykin/agentwatch/internal/proctable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct{}

func (stubRunner) ListProcesses(_ context.Context, format string) (string, error) {
	if format != proctable.DefaultSchemas()[0].Format() {
		return "", errors.New("unsupported")
	}
	return strings.Join([]string{
		"    1     0 ?      9999  0.0 1000 1 /sbin/init",
		"  100     1 pts/0   600  4.2 2048 8 claude --resume",
		"  101   100 pts/0   599  0.0 1024 2 claude --resume --child",
		"  200     1 pts/1  3600  0.0 4096 4 /usr/local/bin/codex exec --sandbox read-only",
		"  300     1 pts/2    30  9.0  512 1 /bin/zsh -c claude",
	}, "\n"), nil
}

func (stubRunner) OpenFiles(_ context.Context, pid int) (string, error) {
	if pid == 100 {
		return "p100\nfcwd\nn/home/dev/src/app\n", nil
	}
	return "", errors.New("permission denied")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "agentwatch.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func testCommand(out *bytes.Buffer) *command {
	c := newCommand(out)
	c.runner = stubRunner{}
	c.now = func() time.Time { return time.Now() }
	return c
}

const repoConfig = `
[repos]
roots = ["/home/dev/src/app"]

[log]
level = "error"
`

func TestScanTable(t *testing.T) {
	var out bytes.Buffer
	c := testCommand(&out)
	err := c.Scan(context.Background(), GlobalFlags{ConfigPath: writeConfig(t, repoConfig)}, ScanFlags{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3, out.String())
	assert.True(t, strings.HasPrefix(lines[0], "PID"))
	assert.Contains(t, lines[1], "100")
	assert.Contains(t, lines[1], "claude")
	assert.Contains(t, lines[1], "WORKING")
	assert.Contains(t, lines[1], "/home/dev/src/app")
	assert.Contains(t, lines[2], "codex")
	assert.Contains(t, lines[2], "STALLED")
	assert.Contains(t, lines[2], "flag")
}

func TestScanJSON(t *testing.T) {
	var out bytes.Buffer
	c := testCommand(&out)
	err := c.Scan(context.Background(), GlobalFlags{ConfigPath: writeConfig(t, repoConfig)}, ScanFlags{JSON: true, NoCwd: true})
	require.NoError(t, err)

	var agents []agentwatch.AgentProcess
	require.NoError(t, json.Unmarshal(out.Bytes(), &agents))
	require.Len(t, agents, 2)
	assert.Equal(t, 100, agents[0].PID)
	assert.Empty(t, agents[0].Cwd, "cwd disabled")
	assert.Equal(t, 200, agents[1].PID)
	assert.True(t, agents[1].Sandboxed)
}

func TestScanNoAgents(t *testing.T) {
	var out bytes.Buffer
	c := testCommand(&out)
	cfg := writeConfig(t, "[[matchers]]\nlabel = \"nope\"\ntype = \"exe_prefix\"\npattern = \"/opt/nope\"\n[log]\nlevel = \"error\"\n")
	require.NoError(t, c.Scan(context.Background(), GlobalFlags{ConfigPath: cfg}, ScanFlags{}))
	assert.Equal(t, "No agents found\n", out.String())
}

func TestScanInvalidConfig(t *testing.T) {
	var out bytes.Buffer
	c := testCommand(&out)
	err := c.Scan(context.Background(), GlobalFlags{ConfigPath: writeConfig(t, "refresh_seconds = -2\n")}, ScanFlags{})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestMatchersOutput(t *testing.T) {
	var out bytes.Buffer
	c := testCommand(&out)
	require.NoError(t, c.Matchers(GlobalFlags{}, MatchersFlags{}))
	s := out.String()
	assert.True(t, strings.HasPrefix(s, "LABEL"))
	assert.Contains(t, s, "claude")
	assert.Contains(t, s, "cursor-agent")

	out.Reset()
	require.NoError(t, c.Matchers(GlobalFlags{}, MatchersFlags{JSON: true}))
	var ms []agentwatch.Matcher
	require.NoError(t, json.Unmarshal(out.Bytes(), &ms))
	assert.Equal(t, agentwatch.DefaultMatchers(), ms)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := buildRoot(testCommand(&out))
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "agentwatch dev\n", out.String())
}

func TestRootHelpListsCommands(t *testing.T) {
	var out bytes.Buffer
	root := buildRoot(testCommand(&out))
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	for _, name := range []string{"scan", "serve", "matchers", "version"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	var out bytes.Buffer
	c := testCommand(&out)
	pid := filepath.Join(t.TempDir(), "agentwatch.pid")
	cfg := writeConfig(t, `
refresh_seconds = 0.05
[server]
listen = "127.0.0.1:0"
[log]
level = "error"
`)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, GlobalFlags{ConfigPath: cfg}, ServeFlags{PidFile: pid}) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(pid)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
	_, err := os.Stat(pid)
	assert.True(t, os.IsNotExist(err), "pid file removed on exit")
}

func TestServeWatchConfigRequiresPath(t *testing.T) {
	var out bytes.Buffer
	c := testCommand(&out)
	err := c.Serve(context.Background(), GlobalFlags{LogLevel: "error"}, ServeFlags{WatchConfig: true})
	require.Error(t, err)
}

func TestShortDuration(t *testing.T) {
	cases := map[time.Duration]string{
		-time.Second:                   "0s",
		45 * time.Second:               "45s",
		12*time.Minute + 3*time.Second: "12m",
		3*time.Hour + 5*time.Minute:    "3h05m",
		50 * time.Hour:                 "2d02h",
	}
	for in, want := range cases {
		assert.Equal(t, want, shortDuration(in), in.String())
	}
}
