package mirror

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxPathLength bounds a local path, in characters.
	DefaultMaxPathLength = 250

	// DefaultSegmentLength is what a new segment is cut to first once the
	// path would be too long.
	DefaultSegmentLength = 30
)

// PathBuilder composes local paths below Root and keeps them under MaxLength
// characters by shortening the segment being added. Root is never changed.
type PathBuilder struct {
	Root          string
	MaxLength     int
	SegmentLength int
}

// NewPathBuilder returns a PathBuilder with the default limits.
func NewPathBuilder(root string) PathBuilder {
	return PathBuilder{
		Root:          filepath.Clean(root),
		MaxLength:     DefaultMaxPathLength,
		SegmentLength: DefaultSegmentLength,
	}
}

// Join places a sanitized name inside dir. dir is kept as given, so a
// directory that already exists stays the prefix of everything below it.
// When the result is longer than MaxLength characters, name is cut to
// SegmentLength characters, keeping a short extension, and the limit keeps
// dropping until the path fits. A dir that leaves no room still gets a
// one-character name. Joining the returned base name again is a no-op.
func (b PathBuilder) Join(dir, name string) string {
	p := filepath.Join(dir, name)
	if b.MaxLength <= 0 || utf8.RuneCountInString(p) <= b.MaxLength {
		return p
	}
	limit := b.SegmentLength
	if limit <= 0 {
		limit = DefaultSegmentLength
	}
	for ; limit > 1; limit-- {
		p = filepath.Join(dir, shortenSegment(name, limit, true))
		if utf8.RuneCountInString(p) <= b.MaxLength {
			return p
		}
	}
	return filepath.Join(dir, shortenSegment(name, 1, true))
}

// shortenSegment cuts s to limit characters. With keepExt a short extension
// survives when there is room for it.
func shortenSegment(s string, limit int, keepExt bool) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	ext := ""
	if keepExt {
		ext = shortExt(s)
		if utf8.RuneCountInString(ext) >= limit {
			ext = ""
		}
	}
	stem := []rune(strings.TrimSuffix(s, ext))
	keep := limit - utf8.RuneCountInString(ext)
	if keep > len(stem) {
		keep = len(stem)
	}
	cut := trimSegment(string(stem[:keep]))
	if cut == "" {
		cut = "_"
	}
	return cut + ext
}

func shortExt(s string) string {
	ext := filepath.Ext(s)
	if len(ext) < 2 || len(ext) > 8 || strings.ContainsRune(ext, ' ') {
		return ""
	}
	return ext
}
