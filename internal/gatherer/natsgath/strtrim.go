package natsgath

import (
	"strings"
)

// trimStrToRect keeps at most maxHeight lines of at most maxWidth bytes.
func trimStrToRect(s string, maxHeight int, maxWidth int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
		lines = append(lines, "[...]")
	}
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if len(line) > maxWidth {
			sb.WriteString(line[:maxWidth])
			sb.WriteString("[...]")
		} else {
			sb.WriteString(line)
		}
	}
	return sb.String()
}
