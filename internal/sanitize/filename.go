// Package sanitize turns producer-supplied titles into safe file base names.
package sanitize

import (
	"regexp"
	"strings"
)

const (
	// MaxBaseLength is the maximum allowed length for a base name, in bytes.
	MaxBaseLength = 120
	// DefaultName is the replacement name when the title is empty.
	DefaultName = "video"
)

var (
	// dots are replaced too so a title can never smuggle in an extension or "..".
	unsafeChars = regexp.MustCompile(`[\\/:*?"<>|.\x00-\x1f]+`)
	spaces      = regexp.MustCompile(`\s+`)
)

// BaseName builds a cross-platform safe file base name (no extension) from a
// title. Path separators, dots and reserved characters become "-".
func BaseName(title string) string {
	name := spaces.ReplaceAllString(strings.TrimSpace(title), " ")
	name = unsafeChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, " -")
	if len(name) > MaxBaseLength {
		name = truncate(name, MaxBaseLength)
	}
	if name == "" {
		return DefaultName
	}
	return name
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return strings.TrimRight(s[:n], " -")
}

// WithExt joins a base name and an extension given with or without a dot.
func WithExt(base, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return base
	}
	return base + "." + ext
}
