package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

type alias struct {
	pattern  string
	prefix   string
	suffix   string
	wildcard bool
	// absolute target templates; '*' is replaced by the captured part
	targets []string
}

func (a alias) match(spec string) (string, bool) {
	if !a.wildcard {
		return "", spec == a.pattern
	}
	if len(spec) < len(a.prefix)+len(a.suffix) {
		return "", false
	}
	if !strings.HasPrefix(spec, a.prefix) || !strings.HasSuffix(spec, a.suffix) {
		return "", false
	}
	return spec[len(a.prefix) : len(spec)-len(a.suffix)], true
}

// Aliases is a tsconfig-style `paths` table. Entries are tried longest
// literal prefix first, exact patterns before wildcards of the same prefix.
type Aliases struct {
	entries []alias
}

// NewAliases builds a table whose targets are relative to baseDir.
func NewAliases(baseDir string, paths map[string][]string) *Aliases {
	a := &Aliases{}
	a.add(baseDir, paths)
	return a
}

func (a *Aliases) add(baseDir string, paths map[string][]string) {
	// map order is random; sort keys so equal-priority entries are stable
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, pattern := range keys {
		targets := paths[pattern]
		if len(targets) == 0 {
			continue
		}
		e := alias{pattern: pattern}
		if i := strings.Index(pattern, "*"); i >= 0 {
			e.wildcard = true
			e.prefix, e.suffix = pattern[:i], pattern[i+1:]
		} else {
			e.prefix = pattern
		}
		for _, t := range targets {
			if !filepath.IsAbs(t) {
				t = filepath.Join(baseDir, filepath.FromSlash(t))
			}
			e.targets = append(e.targets, t)
		}
		a.entries = append(a.entries, e)
	}
	a.reorder()
}

func (a *Aliases) reorder() {
	sort.SliceStable(a.entries, func(i, j int) bool {
		ei, ej := a.entries[i], a.entries[j]
		if len(ei.prefix) != len(ej.prefix) {
			return len(ei.prefix) > len(ej.prefix)
		}
		return !ei.wildcard && ej.wildcard
	})
}

// Extend appends other's entries; entries already present win ties.
func (a *Aliases) Extend(other *Aliases) {
	if other == nil {
		return
	}
	a.entries = append(a.entries, other.entries...)
	a.reorder()
}

// Targets returns the candidate base paths for spec from the first matching
// alias, or nil when no alias matches.
func (a *Aliases) Targets(spec string) []string {
	if a == nil {
		return nil
	}
	for _, e := range a.entries {
		captured, ok := e.match(spec)
		if !ok {
			continue
		}
		out := make([]string, 0, len(e.targets))
		for _, t := range e.targets {
			out = append(out, strings.Replace(t, "*", captured, 1))
		}
		return out
	}
	return nil
}

func (a *Aliases) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

type tsconfigFile struct {
	CompilerOptions struct {
		BaseURL string              `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// LoadTsconfig reads compilerOptions.paths and baseUrl from a tsconfig file
// (comments and trailing commas allowed). A missing file yields an empty
// table. baseUrl on its own acts as a lowest-priority "*" alias.
func LoadTsconfig(path string) (*Aliases, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Aliases{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tsconfig: %w", err)
	}

	var cfg tsconfigFile
	if err := json.Unmarshal(jsonc.ToJSON(content), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tsconfig %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	if cfg.CompilerOptions.BaseURL != "" {
		baseDir = filepath.Join(baseDir, filepath.FromSlash(cfg.CompilerOptions.BaseURL))
	}
	a := NewAliases(baseDir, cfg.CompilerOptions.Paths)
	if cfg.CompilerOptions.BaseURL != "" {
		if _, taken := cfg.CompilerOptions.Paths["*"]; !taken {
			a.add(baseDir, map[string][]string{"*": {"*"}})
		}
	}
	return a, nil
}
