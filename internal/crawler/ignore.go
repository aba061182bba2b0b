package crawler

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultIgnorePatterns excludes build output, dependency directories, tests
// and type declaration files.
var DefaultIgnorePatterns = []string{
	"node_modules",
	"bower_components",
	"dist",
	"build",
	"out",
	"coverage",
	".git",
	".next",
	"**/*.test.*",
	"**/*.spec.*",
	"**/*.d.ts",
	"**/*.d.mts",
	"**/*.d.cts",
}

type matcher struct {
	pattern glob.Glob
	raw     string
	// bare names (no '/' or '*') match any path segment, gitignore style
	bareName bool
	dirOnly  bool
}

// IgnoreSet decides which workspace paths are excluded from scanning.
// Patterns are gitignore-flavoured globs relative to the workspace root.
type IgnoreSet struct {
	matchers []matcher
}

// NewIgnoreSet compiles DefaultIgnorePatterns followed by extra.
func NewIgnoreSet(extra ...string) (*IgnoreSet, error) {
	s := &IgnoreSet{}
	if err := s.Add(DefaultIgnorePatterns...); err != nil {
		return nil, err
	}
	if err := s.Add(extra...); err != nil {
		return nil, err
	}
	return s, nil
}

// Add compiles and appends patterns. Blank lines, # comments and !negations
// are skipped.
func (s *IgnoreSet) Add(patterns ...string) error {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") || strings.HasPrefix(p, "!") {
			continue
		}
		ms, err := compilePattern(p)
		if err != nil {
			return fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		s.matchers = append(s.matchers, ms...)
	}
	return nil
}

// LoadFile appends the patterns of a gitignore-style file. A missing file
// is not an error.
func (s *IgnoreSet) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}
	return s.Add(lines...)
}

func compilePattern(p string) ([]matcher, error) {
	dirOnly := strings.HasSuffix(p, "/")
	p = strings.TrimSuffix(p, "/")
	// a leading slash anchors to the root; everything is root-relative anyway
	p = strings.TrimPrefix(filepath.ToSlash(p), "/")

	bare := !strings.ContainsAny(p, "/*?[{")
	g, err := glob.Compile(p, '/')
	if err != nil {
		return nil, err
	}
	out := []matcher{{pattern: g, raw: p, bareName: bare, dirOnly: dirOnly}}

	// "**/x" must also match "x" at the root, which gobwas/glob does not do
	if strings.HasPrefix(p, "**/") {
		rest := strings.TrimPrefix(p, "**/")
		g, err := glob.Compile(rest, '/')
		if err != nil {
			return nil, err
		}
		out = append(out, matcher{pattern: g, raw: rest, dirOnly: dirOnly})
	}
	return out, nil
}

// Match reports whether rel (slash separated, relative to the root) is
// excluded. isDir enables directory-only patterns.
func (s *IgnoreSet) Match(rel string, isDir bool) bool {
	if s == nil {
		return false
	}
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	segments := strings.Split(rel, "/")
	for _, m := range s.matchers {
		if m.bareName {
			segs := segments
			if m.dirOnly && !isDir {
				segs = segs[:len(segs)-1]
			}
			for _, seg := range segs {
				if seg == m.raw {
					return true
				}
			}
			continue
		}
		if m.dirOnly && !isDir {
			continue
		}
		if m.pattern.Match(rel) {
			return true
		}
	}
	return false
}

// PathPatterns matches the configured "always scan" globs.
type PathPatterns struct {
	globs []glob.Glob
}

func NewPathPatterns(patterns []string) (*PathPatterns, error) {
	pp := &PathPatterns{}
	for _, p := range patterns {
		ms, err := compilePattern(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", p, err)
		}
		for _, m := range ms {
			pp.globs = append(pp.globs, m.pattern)
		}
	}
	return pp, nil
}

func (pp *PathPatterns) Match(rel string) bool {
	if pp == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range pp.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (pp *PathPatterns) Empty() bool {
	return pp == nil || len(pp.globs) == 0
}
