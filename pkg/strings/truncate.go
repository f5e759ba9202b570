package strings

import (
	"strings"
)

// DefaultCellMaxLen is the widest value the status table prints before
// truncating.
const DefaultCellMaxLen = 72

// MinTruncateLen is the smallest maxLen Truncate honours; one character
// plus "..." must fit.
const MinTruncateLen = 4

// Truncate collapses all whitespace in s to single spaces and cuts the
// result to at most maxLen runes, ending in "..." when anything was cut.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// Cell prepares s for a table cell: an empty value becomes "-" and
// anything else is truncated to DefaultCellMaxLen.
func Cell(s string) string {
	if s == "" {
		return "-"
	}
	return Truncate(s, DefaultCellMaxLen)
}
