package detector

import (
	"regexp"
	"strings"

	"github.com/loykin/agentwatch/internal/proctable"
)

// Detector classifies raw processes against an ordered matcher list.
// It owns a lazily populated regex cache keyed by pattern string and is
// not safe for concurrent use; the scanner serializes access.
type Detector struct {
	matchers []Matcher
	cache    map[string]*regexp.Regexp
}

func New(ms []Matcher) *Detector {
	d := &Detector{cache: make(map[string]*regexp.Regexp)}
	d.SetMatchers(ms)
	return d
}

// SetMatchers replaces the matcher list. Compiled patterns stay cached.
func (d *Detector) SetMatchers(ms []Matcher) {
	cp := make([]Matcher, len(ms))
	copy(cp, ms)
	d.matchers = cp
}

func (d *Detector) Matchers() []Matcher {
	out := make([]Matcher, len(d.matchers))
	copy(out, d.matchers)
	return out
}

// Match returns the label of the first matcher that accepts p. Wrapper
// processes are rejected before any matcher runs.
func (d *Detector) Match(p proctable.RawProcess) (string, bool) {
	if IsWrapper(p.Cmdline, p.Exe) {
		return "", false
	}
	for _, m := range d.matchers {
		if d.matches(m, p) {
			return m.Label, true
		}
	}
	return "", false
}

func (d *Detector) matches(m Matcher, p proctable.RawProcess) bool {
	switch m.Kind {
	case KindCmdRegex:
		re := d.regex(m.Pattern)
		if re == nil {
			return false
		}
		target := p.Cmdline
		if target == "" {
			target = p.Exe
		}
		return target != "" && re.MatchString(target)
	case KindExePrefix:
		return p.Exe != "" && strings.HasPrefix(p.Exe, m.Pattern)
	case KindExeSuffix:
		return p.Exe != "" && strings.HasSuffix(p.Exe, m.Pattern)
	default:
		return false
	}
}

// regex compiles on first use. A pattern that fails to compile is cached
// as nil so it is not recompiled every tick.
func (d *Detector) regex(pattern string) *regexp.Regexp {
	if re, ok := d.cache[pattern]; ok {
		return re
	}
	re, err := compile(pattern)
	if err != nil {
		re = nil
	}
	d.cache[pattern] = re
	return re
}

// CachedPatterns is the number of patterns compiled so far.
func (d *Detector) CachedPatterns() int { return len(d.cache) }
