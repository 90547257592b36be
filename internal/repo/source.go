package repo

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Source supplies the current set of known repository roots. The scanner
// reads it once at the start of every tick.
type Source interface {
	Roots() []string
}

// Static is a fixed list of roots.
type Static []string

func (s Static) Roots() []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// DirScan reports every configured directory that is a git checkout plus
// its immediate subdirectories that are.
type DirScan struct {
	Dirs []string
}

func (d DirScan) Roots() []string {
	var out []string
	for _, dir := range d.Dirs {
		dir = filepath.Clean(dir)
		if isRepo(dir) {
			out = append(out, dir)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			slog.Debug("repo scan failed", "dir", dir, "error", err)
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			p := filepath.Join(dir, e.Name())
			if isRepo(p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// isRepo accepts both a .git directory and a .git file (worktrees, submodules).
func isRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// Multi merges sources, dropping duplicate roots while keeping first-seen order.
type Multi []Source

func (m Multi) Roots() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range m {
		if s == nil {
			continue
		}
		for _, r := range s.Roots() {
			r = filepath.Clean(r)
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
