package proctable

import (
	"fmt"
	"strings"
)

// Column is one ps output column the parser understands.
type Column int

const (
	ColPID Column = iota
	ColPPID
	ColTTY
	// ColElapsedSeconds is procps "etimes": elapsed seconds as an integer.
	ColElapsedSeconds
	// ColElapsed is "etime": [[dd-]hh:]mm:ss.
	ColElapsed
	ColCPU
	ColRSS
	// ColThreads is procps "nlwp".
	ColThreads
	// ColArgs is the full command line. It consumes the rest of the line
	// and therefore must be the last column of a schema.
	ColArgs
)

var columnKeywords = map[Column]string{
	ColPID:            "pid",
	ColPPID:           "ppid",
	ColTTY:            "tty",
	ColElapsedSeconds: "etimes",
	ColElapsed:        "etime",
	ColCPU:            "pcpu",
	ColRSS:            "rss",
	ColThreads:        "nlwp",
	ColArgs:           "args",
}

func (c Column) String() string {
	if k, ok := columnKeywords[c]; ok {
		return k
	}
	return "unknown"
}

// Schema is an ordered list of ps columns. Platforms disagree about which
// keywords exist, so the lister tries several schemas in turn.
type Schema struct {
	Name    string
	Columns []Column
}

// Format renders the ps -o argument with empty headers, e.g. "pid=,ppid=,args=".
func (s Schema) Format() string {
	parts := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		parts = append(parts, c.String()+"=")
	}
	return strings.Join(parts, ",")
}

// DefaultSchemas returns the fallback order used when none is configured:
// procps (Linux) first, then BSD/macOS, then a minimal portable set.
func DefaultSchemas() []Schema {
	return []Schema{
		{Name: "procps", Columns: []Column{ColPID, ColPPID, ColTTY, ColElapsedSeconds, ColCPU, ColRSS, ColThreads, ColArgs}},
		{Name: "bsd", Columns: []Column{ColPID, ColPPID, ColTTY, ColElapsed, ColCPU, ColRSS, ColArgs}},
		{Name: "minimal", Columns: []Column{ColPID, ColPPID, ColElapsed, ColCPU, ColArgs}},
	}
}

// SchemasByName selects default schemas by name, keeping the given order.
func SchemasByName(names []string) ([]Schema, error) {
	if len(names) == 0 {
		return DefaultSchemas(), nil
	}
	byName := make(map[string]Schema)
	for _, s := range DefaultSchemas() {
		byName[s.Name] = s
	}
	out := make([]Schema, 0, len(names))
	for _, n := range names {
		s, ok := byName[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("unknown ps schema %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}
