package graph

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"inverigator/internal/extractor"
	"inverigator/internal/parser"
)

// Reason says why an edge was followed.
type Reason string

const (
	ReasonReExport    Reason = "re-export"
	ReasonConfigName  Reason = "config-name"
	ReasonLearnedName Reason = "learned-name"
	ReasonSpecifier   Reason = "registry-specifier"
	ReasonSibling     Reason = "sibling"
)

// ConfigNameConventions are the case-sensitive substrings that mark an
// imported name as configuration-like.
var ConfigNameConventions = []string{"Registry", "Configure", "register", "Bind"}

// siblingMarkers are matched case-insensitively against base file names.
var siblingMarkers = []string{"registry", "bindings"}

// ConfigNames is the per-scan memory of configuration-like import names.
type ConfigNames interface {
	KnowsConfigName(name string) bool
	LearnConfigName(name string)
}

// Import is one import or re-export declaration.
type Import struct {
	Specifier string
	Names     []string
	ReExport  bool
	Line      int
}

// Candidate is a file worth scanning next.
type Candidate struct {
	Path      string
	Specifier string
	Reason    Reason
}

// Follower decides which imported modules of a file are configuration
// modules and resolves them to files.
type Follower struct {
	resolver *ModuleResolver
	logger   *slog.Logger
}

func NewFollower(resolver *ModuleResolver, logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{resolver: resolver, logger: logger}
}

// FollowFrom returns the files f transitively registers through. names may
// be nil. The result holds each path once and never f itself.
func (fl *Follower) FollowFrom(f *parser.File, names ConfigNames) []Candidate {
	var out []Candidate
	seen := map[string]bool{f.Path: true}
	add := func(path, spec string, reason Reason) {
		if seen[path] {
			return
		}
		seen[path] = true
		out = append(out, Candidate{Path: path, Specifier: spec, Reason: reason})
	}

	for _, imp := range Imports(f) {
		reason, ok := qualifies(imp, names)
		if !ok {
			continue
		}
		path, resolved := fl.resolver.Resolve(f.Path, imp.Specifier)
		if !resolved {
			fl.logger.Debug("unresolved configuration import",
				"file", f.Path, "line", imp.Line, "specifier", imp.Specifier)
			continue
		}
		add(path, imp.Specifier, reason)
	}

	for _, sib := range siblings(f.Path) {
		add(sib, "", ReasonSibling)
	}
	return out
}

func qualifies(imp Import, names ConfigNames) (Reason, bool) {
	if imp.ReExport {
		return ReasonReExport, true
	}
	var reason Reason
	for _, n := range imp.Names {
		if isConfigName(n) {
			reason = ReasonConfigName
			if names != nil {
				names.LearnConfigName(n)
			}
		} else if reason == "" && names != nil && names.KnowsConfigName(n) {
			reason = ReasonLearnedName
		}
	}
	if reason != "" {
		return reason, true
	}
	if strings.Contains(strings.ToLower(imp.Specifier), "registry") {
		return ReasonSpecifier, true
	}
	return "", false
}

func isConfigName(name string) bool {
	for _, c := range ConfigNameConventions {
		if strings.Contains(name, c) {
			return true
		}
	}
	return false
}

// siblings lists source files next to path whose names mark them as
// registries or binding lists.
func siblings(path string) []string {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !parser.Supports(e.Name()) {
			continue
		}
		lower := strings.ToLower(e.Name())
		if strings.HasSuffix(lower, ".d.ts") {
			continue
		}
		for _, m := range siblingMarkers {
			if strings.Contains(lower, m) {
				out = append(out, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	return out
}

// Imports lists f's top-level import declarations and re-exports.
func Imports(f *parser.File) []Import {
	var out []Import
	root := f.Root()
	if root == nil {
		return nil
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "import_statement":
			src := n.ChildByFieldName("source")
			if src == nil {
				continue
			}
			out = append(out, Import{
				Specifier: extractor.Normalize(f.Text(src)),
				Names:     importedNames(f, n),
				Line:      parser.Line(n),
			})
		case "export_statement":
			src := n.ChildByFieldName("source")
			if src == nil {
				continue
			}
			out = append(out, Import{
				Specifier: extractor.Normalize(f.Text(src)),
				ReExport:  true,
				Line:      parser.Line(n),
			})
		}
	}
	return out
}

// importedNames collects default, named (both sides of `as`) and namespace
// bindings of an import statement.
func importedNames(f *parser.File, stmt *sitter.Node) []string {
	var names []string
	for _, clause := range parser.NamedChildrenOfType(stmt, "import_clause") {
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			c := clause.NamedChild(i)
			switch c.Type() {
			case "identifier":
				names = append(names, f.Text(c))
			case "namespace_import":
				for _, id := range parser.NamedChildrenOfType(c, "identifier") {
					names = append(names, f.Text(id))
				}
			case "named_imports":
				for _, spec := range parser.NamedChildrenOfType(c, "import_specifier") {
					if name := spec.ChildByFieldName("name"); name != nil {
						names = append(names, f.Text(name))
					}
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						names = append(names, f.Text(alias))
					}
				}
			}
		}
	}
	return names
}
