package graph

import (
	"os"
	"path/filepath"
	"strings"
)

// probeExtensions are tried, in order, after the exact path.
var probeExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mts", ".cts"}

// ESM-style TypeScript imports name the emitted .js file.
var emittedToSource = map[string][]string{
	".js":  {".ts", ".tsx"},
	".jsx": {".tsx"},
	".mjs": {".mts"},
	".cjs": {".cts"},
}

// ModuleResolver maps an import specifier to a workspace file.
type ModuleResolver struct {
	aliases *Aliases
}

func NewModuleResolver(aliases *Aliases) *ModuleResolver {
	return &ModuleResolver{aliases: aliases}
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// Resolve returns the file spec refers to from fromFile. Relative
// specifiers resolve against fromFile's directory; anything else goes
// through the alias table. Unaliased bare specifiers are external packages
// and never resolve.
func (r *ModuleResolver) Resolve(fromFile, spec string) (string, bool) {
	if spec == "" {
		return "", false
	}
	if isRelative(spec) {
		return probe(filepath.Join(filepath.Dir(fromFile), filepath.FromSlash(spec)))
	}
	for _, target := range r.aliases.Targets(spec) {
		if path, ok := probe(target); ok {
			return path, true
		}
	}
	return "", false
}

// probe tries base as a file, then with each extension, then as a
// directory holding an index file.
func probe(base string) (string, bool) {
	if isFile(base) {
		return base, true
	}
	ext := filepath.Ext(base)
	for _, alt := range emittedToSource[ext] {
		if candidate := strings.TrimSuffix(base, ext) + alt; isFile(candidate) {
			return candidate, true
		}
	}
	for _, ext := range probeExtensions {
		if isFile(base + ext) {
			return base + ext, true
		}
	}
	for _, ext := range probeExtensions {
		if index := filepath.Join(base, "index"+ext); isFile(index) {
			return index, true
		}
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
