package extractor

import (
	"regexp"
	"strings"
)

var (
	symbolFactoryRe = regexp.MustCompile("(?s)^Symbol(?:\\s*\\.\\s*for)?\\s*\\(\\s*(\"[^\"]*\"|'[^']*'|`[^`]*`)\\s*\\)$")
	dottedPathRe    = regexp.MustCompile(`^[\w$]+(?:\s*\??\.\s*[\w$]+)+$`)
	spaceRe         = regexp.MustCompile(`\s+`)
	identRe         = regexp.MustCompile(`^[\w$]+$`)
	// a trailing ["entry"] subscript; the prefix may carry more of them
	subscriptRe = regexp.MustCompile("(?s)^(.+?)\\s*\\[\\s*(?:\"([\\w$]+)\"|'([\\w$]+)'|`([\\w$]+)`)\\s*\\]$")
)

// Normalize turns raw token or implementation text into its canonical key.
// Quoted literals lose their quotes, Symbol("x") and Symbol.for("x") become x,
// REGISTRY["entry"] becomes REGISTRY.entry, and anything else passes
// through (dotted paths lose inner whitespace).
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if inner, ok := unquote(s); ok {
		return inner
	}
	if m := symbolFactoryRe.FindStringSubmatch(s); m != nil {
		inner, _ := unquote(m[1])
		return inner
	}
	if path, ok := subscriptPath(s); ok {
		return path
	}
	if dottedPathRe.MatchString(s) {
		return spaceRe.ReplaceAllString(s, "")
	}
	return s
}

// subscriptPath rewrites identifier paths that use string subscripts into
// the dotted form.
func subscriptPath(s string) (string, bool) {
	m := subscriptRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	entry := m[2] + m[3] + m[4]
	base := strings.TrimSpace(m[1])
	if inner, ok := subscriptPath(base); ok {
		return inner + "." + entry, true
	}
	if identRe.MatchString(base) || dottedPathRe.MatchString(base) {
		return spaceRe.ReplaceAllString(base, "") + "." + entry, true
	}
	return "", false
}

func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if (q == '"' || q == '\'' || q == '`') && s[len(s)-1] == q {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// StripNamespace returns the last segment of a dotted key, or "" when the key
// has no namespace.
func StripNamespace(key string) string {
	idx := strings.LastIndex(key, ".")
	if idx <= 0 || idx == len(key)-1 {
		return ""
	}
	return key[idx+1:]
}
