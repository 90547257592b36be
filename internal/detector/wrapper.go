package detector

import "regexp"

// wrapperPatterns recognise shells and launchers by the basename of their
// first argument. A wrapper is never reported as an agent even when its
// arguments mention one ("bash -c claude").
var wrapperPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:\S*/)?-?(?:ba|z|k|c|tc|da|fi|a)?sh(?:\s|$)`),
	regexp.MustCompile(`(?i)^(?:\S*/)?(?:nu|pwsh|xonsh|elvish)(?:\s|$)`),
	regexp.MustCompile(`(?i)^(?:\S*/)?tmux(?::|\s|$)`),
	regexp.MustCompile(`(?i)^(?:\S*/)?screen(?:\s|$)`),
	regexp.MustCompile(`(?i)^(?:\S*/)?sudo(?:\s|$)`),
	regexp.MustCompile(`(?i)^(?:\S*/)?su(?:\s|$)`),
	regexp.MustCompile(`(?i)^(?:\S*/)?env(?:\s|$)`),
	regexp.MustCompile(`(?i)^(?:\S*/)?nohup(?:\s|$)`),
	regexp.MustCompile(`(?i)^(?:\S*/)?login(?:\s|$)`),
}

// IsWrapper reports whether the command line or executable is a shell or
// launcher process.
func IsWrapper(cmdline, exe string) bool {
	for _, re := range wrapperPatterns {
		if (cmdline != "" && re.MatchString(cmdline)) || (exe != "" && re.MatchString(exe)) {
			return true
		}
	}
	return false
}
