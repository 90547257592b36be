// Package sandbox recognises agents running inside containers or OS sandboxes.
package sandbox

import (
	"regexp"
	"strings"
)

// Result reports whether a command runs sandboxed and by what.
type Result struct {
	Sandboxed bool   `json:"sandboxed"`
	Type      string `json:"type,omitempty"`
}

var (
	containerLaunch = regexp.MustCompile(`(?i)(?:^|[\s/])(docker|podman|nerdctl)\s+(?:container\s+)?(?:run|exec)\b`)
	agentName       = regexp.MustCompile(`(?i)\b(?:claude|codex|aider|gemini|opencode|cursor-agent|goose)\b`)
	sandboxFlag     = regexp.MustCompile(`(?i)(?:^|\s)--sandbox(?:(?:=|\s+)(\S+))?(?:\s|$)`)

	osSandboxes = []struct {
		re   *regexp.Regexp
		kind string
	}{
		{regexp.MustCompile(`(?i)(?:^|[\s/])sandbox-exec(?:\s|$)`), "seatbelt"},
		{regexp.MustCompile(`(?i)(?:^|[\s/])(?:bwrap|bubblewrap)(?:\s|$)`), "bubblewrap"},
		{regexp.MustCompile(`(?i)(?:^|[\s/])firejail(?:\s|$)`), "firejail"},
		{regexp.MustCompile(`(?i)(?:^|[\s/])nsjail(?:\s|$)`), "nsjail"},
	}
)

// Classify inspects cmdline. The first matching rule decides the type:
// container launch of an agent, then OS sandbox wrappers, then an explicit
// --sandbox flag.
func Classify(cmdline, label string) Result {
	if cmdline == "" {
		return Result{}
	}
	if m := containerLaunch.FindStringSubmatch(cmdline); m != nil && mentionsAgent(cmdline, label) {
		return Result{Sandboxed: true, Type: strings.ToLower(m[1])}
	}
	for _, s := range osSandboxes {
		if s.re.MatchString(cmdline) {
			return Result{Sandboxed: true, Type: s.kind}
		}
	}
	if m := sandboxFlag.FindStringSubmatch(cmdline); m != nil {
		switch strings.ToLower(m[1]) {
		case "danger-full-access", "off", "none", "false":
		default:
			return Result{Sandboxed: true, Type: "flag"}
		}
	}
	return Result{}
}

func mentionsAgent(cmdline, label string) bool {
	if agentName.MatchString(cmdline) {
		return true
	}
	return label != "" && strings.Contains(strings.ToLower(cmdline), strings.ToLower(label))
}
