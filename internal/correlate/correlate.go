package correlate

import (
	"regexp"
	"strings"
)

// branchMarkerPattern matches a trailing "(#token)" marker and the
// whitespace before it.
var branchMarkerPattern = regexp.MustCompile(`\s*\(#[^)]+\)\s*$`)

// tokenPattern matches a bracket-delimited correlation token. The span
// runs from the first "[" to the next "]", so a stray "[" inside it is
// part of the token.
var tokenPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// NormalizeSubject removes trailing "(#token)" branch markers from a
// subject and trims surrounding whitespace. Subjects without a marker are
// only trimmed.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		loc := branchMarkerPattern.FindStringIndex(s)
		if loc == nil {
			return s
		}
		s = strings.TrimSpace(s[:loc[0]])
	}
}

// MarkSubject appends marker to subject unless the subject already ends
// with it. An empty marker leaves the subject trimmed but otherwise as is.
func MarkSubject(subject, marker string) string {
	s := strings.TrimSpace(subject)
	marker = strings.TrimSpace(marker)
	if marker == "" || strings.HasSuffix(s, marker) {
		return s
	}
	if s == "" {
		return marker
	}
	return s + " " + marker
}

// ExtractToken returns the inner text of the first [..] span in body, or
// an empty string when there is none. Later spans are never considered.
func ExtractToken(body string) string {
	m := tokenPattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}
