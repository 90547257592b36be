package proctable

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSkipLine marks a line that cannot describe a process (for example a
// header or a row whose pid is not numeric). Such lines are dropped.
var ErrSkipLine = errors.New("skip line")

// RawProcess is one row of the process table. It only lives for one tick.
type RawProcess struct {
	PID            int
	PPID           int
	TTY            string
	Exe            string
	Cmdline        string
	ElapsedSeconds int64
	CPUPercent     float64
	RSSKB          *int64
	Threads        *int
}

// Parse converts ps output produced with schema into records. Lines with a
// non-numeric pid are skipped; any other malformed column rejects the whole
// schema so the caller can try the next one.
func Parse(text string, schema Schema) ([]RawProcess, error) {
	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("schema %q has no columns", schema.Name)
	}
	for i, c := range schema.Columns {
		if c == ColArgs && i != len(schema.Columns)-1 {
			return nil, fmt.Errorf("schema %q: args must be the last column", schema.Name)
		}
	}
	out := make([]RawProcess, 0, 64)
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := parseLine(line, schema)
		if errors.Is(err, ErrSkipLine) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("schema %q line %d: %w", schema.Name, n+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseLine(line string, schema Schema) (RawProcess, error) {
	var rec RawProcess
	rest := line
	for _, col := range schema.Columns {
		if col == ColArgs {
			rec.Cmdline = strings.TrimSpace(rest)
			rest = ""
			break
		}
		var field string
		field, rest = nextField(rest)
		if field == "" {
			if col == ColPID {
				return rec, ErrSkipLine
			}
			return rec, fmt.Errorf("missing %s column", col)
		}
		if err := assign(&rec, col, field); err != nil {
			return rec, err
		}
	}
	if first, _ := nextField(rec.Cmdline); first != "" {
		rec.Exe = first
	}
	return rec, nil
}

func assign(rec *RawProcess, col Column, field string) error {
	switch col {
	case ColPID:
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 {
			return ErrSkipLine
		}
		rec.PID = pid
	case ColPPID:
		ppid, err := strconv.Atoi(field)
		if err != nil {
			return fmt.Errorf("bad ppid %q", field)
		}
		rec.PPID = ppid
	case ColTTY:
		switch field {
		case "?", "??", "-":
		default:
			rec.TTY = field
		}
	case ColElapsedSeconds:
		secs, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return fmt.Errorf("bad etimes %q", field)
		}
		rec.ElapsedSeconds = secs
	case ColElapsed:
		secs, err := ParseElapsed(field)
		if err != nil {
			return err
		}
		rec.ElapsedSeconds = secs
	case ColCPU:
		// some locales print a decimal comma
		cpu, err := strconv.ParseFloat(strings.ReplaceAll(field, ",", "."), 64)
		if err != nil {
			return fmt.Errorf("bad pcpu %q", field)
		}
		rec.CPUPercent = cpu
	case ColRSS:
		kb, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return fmt.Errorf("bad rss %q", field)
		}
		rec.RSSKB = &kb
	case ColThreads:
		n, err := strconv.Atoi(field)
		if err != nil {
			return fmt.Errorf("bad nlwp %q", field)
		}
		rec.Threads = &n
	default:
		return fmt.Errorf("unsupported column %d", col)
	}
	return nil
}

// ParseElapsed parses the ps etime format [[dd-]hh:]mm:ss into seconds.
func ParseElapsed(s string) (int64, error) {
	var days int64
	if i := strings.IndexByte(s, '-'); i >= 0 {
		d, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil || d < 0 {
			return 0, fmt.Errorf("bad etime %q", s)
		}
		days = d
		s = s[i+1:]
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad etime %q", s)
	}
	var total int64
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad etime %q", s)
		}
		total = total*60 + v
	}
	return days*86400 + total, nil
}

func nextField(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return "", ""
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}
