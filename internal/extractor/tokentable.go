package extractor

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"inverigator/internal/parser"
)

// registryNameRe recognises conventional token registry identifiers:
// TYPES, SERVICE_IDENTIFIER, Tokens, ServiceIdentifiers, DI_SYMBOLS, ...
var registryNameRe = regexp.MustCompile(`^(?:[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)*|[A-Za-z0-9_$]*(?:Types|Tokens|Identifiers|Symbols|Keys))$`)

// TokenTableExtractor finds the file's token registry object and associates
// each declared entry with the bind call that references it, in either the
// REGISTRY.entry or the REGISTRY["entry"] form.
type TokenTableExtractor struct {
	pattern ChainPattern
}

func NewTokenTableExtractor(pattern ChainPattern) *TokenTableExtractor {
	return &TokenTableExtractor{pattern: pattern}
}

func (t *TokenTableExtractor) Name() string { return "token_table" }

func (t *TokenTableExtractor) Extract(f *parser.File) Result {
	registry, defs := findTokenTable(f)
	if registry == "" {
		return Result{}
	}
	res := Result{Tokens: defs}
	entries := make(map[string]bool, len(defs))
	for _, d := range defs {
		entries[d.Entry] = true
	}

	src := maskComments(f.Content)
	re := t.pattern.registryRegexp(registry)
	for _, m := range re.FindAllSubmatchIndex(src, -1) {
		// m: full, init verb, dotted entry, bracketed entry, completion verb
		var entry string
		switch {
		case m[4] >= 0:
			entry = string(src[m[4]:m[5]])
		case m[6] >= 0:
			entry = string(src[m[6]:m[7]])
		}
		if !entries[entry] {
			continue
		}
		verb := string(src[m[8]:m[9]])
		kind, ok := t.pattern.completion(verb)
		if !ok {
			continue
		}
		arg, ok := balancedArgument(src, m[1])
		if !ok {
			continue
		}
		token := registry + "." + entry
		impl, ok := implementationFromText(kind, token, arg)
		if !ok {
			continue
		}
		res.Bindings = append(res.Bindings, Binding{
			Token:          token,
			Implementation: impl,
			SourceFile:     f.Path,
			SourceLine:     lineAt(src, m[2]),
			Kind:           verb,
			Strategy:       t.Name(),
		})
	}
	return res
}

// findTokenTable returns the first top-level const/let/var whose name looks
// like a registry and whose value is an object literal of token entries.
func findTokenTable(f *parser.File) (string, []TokenDefinition) {
	var registry string
	var defs []TokenDefinition
	parser.Walk(f.Root(), func(n *sitter.Node) bool {
		if registry != "" {
			return false
		}
		switch n.Type() {
		case "program", "export_statement", "lexical_declaration", "variable_declaration":
			return true
		case "variable_declarator":
			name := f.Text(n.ChildByFieldName("name"))
			if !registryNameRe.MatchString(name) {
				return false
			}
			obj := unwrapObject(n.ChildByFieldName("value"))
			if obj == nil {
				return false
			}
			entries := tokenEntries(f, name, obj)
			if len(entries) > 0 {
				registry, defs = name, entries
			}
		}
		return false
	})
	return registry, defs
}

// unwrapObject sees through `{...} as const` and `{...} satisfies T`.
func unwrapObject(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "object":
			return n
		case "as_expression", "satisfies_expression", "parenthesized_expression":
			n = n.NamedChild(0)
		default:
			return nil
		}
	}
	return nil
}

func tokenEntries(f *parser.File, registry string, obj *sitter.Node) []TokenDefinition {
	var defs []TokenDefinition
	for _, pair := range parser.NamedChildrenOfType(obj, "pair") {
		key := Normalize(f.Text(pair.ChildByFieldName("key")))
		value := pair.ChildByFieldName("value")
		if key == "" || value == nil {
			continue
		}
		raw := f.Text(value)
		isToken := value.Type() == "string" || value.Type() == "template_string" ||
			(value.Type() == "call_expression" && strings.HasPrefix(raw, "Symbol"))
		if !isToken {
			continue
		}
		defs = append(defs, TokenDefinition{
			Registry:   registry,
			Entry:      key,
			Value:      Normalize(raw),
			SourceFile: f.Path,
			SourceLine: parser.Line(pair),
		})
	}
	return defs
}
