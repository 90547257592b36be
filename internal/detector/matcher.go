package detector

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind selects how a Matcher's pattern is applied.
type Kind string

const (
	// KindCmdRegex tests a case-insensitive regex against the command line,
	// or the executable when the command line is empty.
	KindCmdRegex Kind = "cmd_regex"
	// KindExePrefix tests the executable path for a prefix.
	KindExePrefix Kind = "exe_prefix"
	// KindExeSuffix tests the executable path for a suffix.
	KindExeSuffix Kind = "exe_suffix"
)

// Matcher maps processes to an agent label.
type Matcher struct {
	Label   string `json:"label" mapstructure:"label"`
	Kind    Kind   `json:"type" mapstructure:"type"`
	Pattern string `json:"pattern" mapstructure:"pattern"`
}

var ErrInvalidMatcher = errors.New("invalid matcher")

// ValidateMatchers checks labels, kinds and that every regex compiles.
func ValidateMatchers(ms []Matcher) error {
	for i, m := range ms {
		if strings.TrimSpace(m.Label) == "" {
			return fmt.Errorf("%w: matchers[%d] requires label", ErrInvalidMatcher, i)
		}
		if m.Pattern == "" {
			return fmt.Errorf("%w: matcher %s requires pattern", ErrInvalidMatcher, m.Label)
		}
		switch m.Kind {
		case KindCmdRegex:
			if _, err := compile(m.Pattern); err != nil {
				return fmt.Errorf("%w: matcher %s: %v", ErrInvalidMatcher, m.Label, err)
			}
		case KindExePrefix, KindExeSuffix:
		default:
			return fmt.Errorf("%w: matcher %s has unknown type %q", ErrInvalidMatcher, m.Label, m.Kind)
		}
	}
	return nil
}

// DefaultMatchers covers the agent CLIs we know about.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{Label: "claude", Kind: KindCmdRegex, Pattern: `\bclaude\b`},
		{Label: "codex", Kind: KindCmdRegex, Pattern: `\bcodex\b`},
		{Label: "aider", Kind: KindCmdRegex, Pattern: `\baider\b`},
		{Label: "gemini", Kind: KindCmdRegex, Pattern: `\bgemini\b`},
		{Label: "opencode", Kind: KindCmdRegex, Pattern: `\bopencode\b`},
		{Label: "cursor-agent", Kind: KindExeSuffix, Pattern: "/cursor-agent"},
	}
}

func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
