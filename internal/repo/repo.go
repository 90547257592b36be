package repo

import (
	"path/filepath"
	"strings"
)

// Correlate returns the most specific root that equals cwd or contains it.
func Correlate(cwd string, roots []string) (string, bool) {
	if cwd == "" {
		return "", false
	}
	cwd = filepath.Clean(cwd)
	sep := string(filepath.Separator)
	best := ""
	for _, root := range roots {
		if root == "" {
			continue
		}
		r := filepath.Clean(root)
		prefix := r
		if !strings.HasSuffix(prefix, sep) {
			prefix += sep
		}
		if cwd == r || strings.HasPrefix(cwd, prefix) {
			if len(r) > len(best) {
				best = r
			}
		}
	}
	return best, best != ""
}
