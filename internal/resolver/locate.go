package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"inverigator/internal/analysis"
	"inverigator/internal/extractor"
)

var ErrDeclarationNotFound = errors.New("declaration not found")

// Location is a cursor position inside a file. Line and Column are 0-based;
// Offset is a byte offset.
type Location struct {
	File   string
	Line   int
	Column int
	Offset int
}

// FileLister enumerates workspace source files.
type FileLister interface {
	Files(ctx context.Context) ([]string, error)
}

// Locator finds the declaration of a binding's implementation.
type Locator struct {
	services *analysis.ServiceMap
	files    FileLister
}

func NewLocator(services *analysis.ServiceMap, files FileLister) *Locator {
	return &Locator{services: services, files: files}
}

// Locate prefers the recorded service, then searches files whose names
// resemble the implementation, then the binding's own file, then the rest
// of the workspace.
func (l *Locator) Locate(ctx context.Context, b extractor.Binding) (Location, error) {
	name := declarationName(b.Implementation)
	if name == "" {
		return Location{}, fmt.Errorf("%w: %q is not a class name", ErrDeclarationNotFound, b.Implementation)
	}

	// 1. Known service
	if svc, ok := l.services.Get(name); ok {
		if loc, ok := findDeclaration(svc.SourceFile, name); ok {
			return loc, nil
		}
		return Location{File: svc.SourceFile, Line: svc.SourceLine}, nil
	}

	// 2. File search
	var files []string
	if l.files != nil {
		var err error
		if files, err = l.files.Files(ctx); err != nil {
			return Location{}, err
		}
	}
	for _, path := range searchOrder(name, b.SourceFile, files) {
		if err := ctx.Err(); err != nil {
			return Location{}, err
		}
		if loc, ok := findDeclaration(path, name); ok {
			return loc, nil
		}
	}
	return Location{}, fmt.Errorf("%w: %s", ErrDeclarationNotFound, name)
}

// declarationName reduces an implementation expression to a class name:
// TYPES.Cache gives Cache; string literals give "".
func declarationName(impl string) string {
	if short := extractor.StripNamespace(impl); short != "" {
		impl = short
	}
	if impl == "" {
		return ""
	}
	for i, r := range impl {
		if r == '_' || r == '$' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return ""
	}
	return impl
}

func searchOrder(name, bindingFile string, files []string) []string {
	want := squash(name)
	var likely, rest []string
	seen := map[string]bool{}
	for _, f := range files {
		if seen[f] {
			continue
		}
		seen[f] = true
		base := squash(strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)))
		if base != "" && (strings.Contains(base, want) || (len(base) >= minContainment && strings.Contains(want, base))) {
			likely = append(likely, f)
		} else if f != bindingFile {
			rest = append(rest, f)
		}
	}
	out := likely
	if bindingFile != "" && !containsString(likely, bindingFile) {
		out = append(out, bindingFile)
	}
	return append(out, rest...)
}

// squash lowercases and drops separators: user-service -> userservice.
func squash(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func findDeclaration(path, name string) (Location, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Location{}, false
	}
	re := regexp.MustCompile(`\b(?:class|interface)\s+(` + regexp.QuoteMeta(name) + `)\b`)
	m := re.FindSubmatchIndex(content)
	if m == nil {
		return Location{}, false
	}
	offset := m[2]
	line := bytes.Count(content[:offset], []byte("\n"))
	col := offset - (bytes.LastIndexByte(content[:offset], '\n') + 1)
	return Location{File: path, Line: line, Column: col, Offset: offset}, true
}
