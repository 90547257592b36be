package detector

import "github.com/loykin/agentwatch/internal/proctable"

// Match is a process that a matcher accepted.
type Match struct {
	Process proctable.RawProcess
	Label   string
}

// Dedup keeps only the top-most process of each same-label process tree:
// a match whose parent is also matched under the same label is dropped.
// It needs the complete matched set of a tick. Input order is preserved.
func Dedup(matches []Match) []Match {
	byLabel := make(map[string]map[int]struct{})
	for _, m := range matches {
		set, ok := byLabel[m.Label]
		if !ok {
			set = make(map[int]struct{})
			byLabel[m.Label] = set
		}
		set[m.Process.PID] = struct{}{}
	}
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if _, parentMatched := byLabel[m.Label][m.Process.PPID]; parentMatched && m.Process.PPID != m.Process.PID {
			continue
		}
		out = append(out, m)
	}
	return out
}
