package mirror

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxSegmentBytes is NAME_MAX on common filesystems.
	MaxSegmentBytes = 255

	// Placeholder replaces names that sanitize to nothing.
	Placeholder = "untitled"

	replacement = '-'
)

// Sanitize maps a Drive item name to a single local path segment.
//
// Each of < > : " / \ | ? * and every non-whitespace control character is
// replaced by '-'. Runs of whitespace collapse to one space, surrounding
// whitespace and trailing dots are trimmed, and the result is cut to
// MaxSegmentBytes on a rune boundary. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(name string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return replacement
		case r == utf8.RuneError:
			return replacement
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return replacement
		}
		return r
	}, name)
	s = strings.Join(strings.Fields(s), " ")
	s = trimSegment(truncate(trimSegment(s), MaxSegmentBytes))
	if s == "" {
		return Placeholder
	}
	return s
}

// FileName appends ext to a sanitized name unless the name already ends with
// ext or one of the accepted aliases (compared case-insensitively). The stem
// is shortened so the whole segment stays within MaxSegmentBytes.
func FileName(name, ext string, accepted ...string) string {
	if ext == "" || hasExtension(name, ext) {
		return name
	}
	for _, a := range accepted {
		if hasExtension(name, a) {
			return name
		}
	}
	stem := trimSegment(truncate(name, MaxSegmentBytes-len(ext)))
	if stem == "" {
		stem = Placeholder
	}
	return stem + ext
}

func hasExtension(name, ext string) bool {
	return ext != "" && len(name) > len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext)
}

// trimSegment drops surrounding spaces and trailing dots.
func trimSegment(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ". ")
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
