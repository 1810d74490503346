// Package compare decides whether program output matches the expected answer.
package compare

import (
	"strings"
	"unicode"

	"github.com/programme-lv/sandbox/internal"
)

// Normalize converts CRLF and CR line endings to LF, strips trailing
// whitespace from every line, drops trailing blank lines and trims the
// whole text. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Equal reports whether actual and expected are equal after normalization.
func Equal(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}

// Verdict returns AC when the outputs match and WA otherwise.
func Verdict(actual, expected string) internal.Verdict {
	if Equal(actual, expected) {
		return internal.Accepted
	}
	return internal.WrongAnswer
}
