package common

import (
	"regexp"
	"strings"
)

// ansiRegex matches ANSI escape sequences (colors, cursor movement, etc.)
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// StripANSI removes ANSI escape codes from a string.
// Controllers colour alarm lines and redraw the prompt with cursor moves.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// Lines splits CLI output into lines with escape codes, carriage returns
// and trailing blanks removed. Empty lines are dropped.
func Lines(s string) []string {
	raw := strings.Split(StripANSI(s), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ContainsFold reports whether substr occurs in s, ignoring case
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToUpper(s), strings.ToUpper(substr))
}
