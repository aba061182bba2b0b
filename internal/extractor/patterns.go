package extractor

import (
	"regexp"
	"sort"
	"strings"
)

// CompletionKind says how a completion verb's argument becomes the implementation.
type CompletionKind int

const (
	// ImplFromArgument: the first argument, normalized.
	ImplFromArgument CompletionKind = iota
	// ImplIsToken: the binding's implementation is its own token (toSelf).
	ImplIsToken
	// ImplAlias: the token aliases another token (toService).
	ImplAlias
	// ImplConstructed: the class constructed inside the argument, e.g.
	// toConstantValue(new X()) or toDynamicValue(() => new X()). Plain
	// identifiers and literals fall back to ImplFromArgument.
	ImplConstructed
)

// ChainPattern describes the bind(token).<verb>(impl) call-chain shape.
// Structural and text extraction are both driven by it.
type ChainPattern struct {
	InitVerbs    []string
	Completions  map[string]CompletionKind
	MaxChainHops int
}

// DefaultChainPattern covers the inversify fluent binding syntax.
var DefaultChainPattern = ChainPattern{
	InitVerbs: []string{"bind", "rebind"},
	Completions: map[string]CompletionKind{
		"to":              ImplFromArgument,
		"toSelf":          ImplIsToken,
		"toService":       ImplAlias,
		"toConstantValue": ImplConstructed,
		"toDynamicValue":  ImplConstructed,
		"toFactory":       ImplConstructed,
		"toProvider":      ImplConstructed,
		"toConstructor":   ImplFromArgument,
		"toFunction":      ImplFromArgument,
		"toAutoFactory":   ImplFromArgument,
	},
	MaxChainHops: 4,
}

func (p ChainPattern) isInitVerb(name string) bool {
	for _, v := range p.InitVerbs {
		if v == name {
			return true
		}
	}
	return false
}

func (p ChainPattern) completion(name string) (CompletionKind, bool) {
	k, ok := p.Completions[name]
	return k, ok
}

func (p ChainPattern) completionVerbs() []string {
	verbs := make([]string, 0, len(p.Completions))
	for v := range p.Completions {
		verbs = append(verbs, v)
	}
	// longest first so "toSelf" wins over "to" inside an alternation
	sort.Slice(verbs, func(i, j int) bool {
		if len(verbs[i]) != len(verbs[j]) {
			return len(verbs[i]) > len(verbs[j])
		}
		return verbs[i] < verbs[j]
	})
	return verbs
}

const (
	genericArgsExpr = `(?:<(?:[^<>]|<[^<>]*>)*>)?`
	tokenExpr       = "Symbol(?:\\s*\\.\\s*for)?\\s*\\(\\s*(?:\"[^\"]*\"|'[^']*'|`[^`]*`)\\s*\\)" +
		"|\"[^\"]*\"|'[^']*'|`[^`]*`" +
		`|[\w$]+(?:\s*\.\s*[\w$]+|\s*\[\s*(?:"[\w$]+"|'[\w$]+'|` + "`[\\w$]+`" + `)\s*\])*`
	plainArgExpr = "^(?:\"[^\"]*\"|'[^']*'|`[^`]*`|[\\w$]+(?:\\s*\\.\\s*[\\w$]+)*)$"
)

var (
	plainArgRe = regexp.MustCompile(plainArgExpr)
	newExprRe  = regexp.MustCompile(`\bnew\s+([A-Za-z_$][\w$]*(?:\.[\w$]+)*)`)
)

func alternation(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// chainRegexps builds the raw-text alternatives for the pattern. Each regexp
// captures (init verb, token text, completion verb) and ends right after the
// completion call's opening parenthesis.
func (p ChainPattern) chainRegexps() []*regexp.Regexp {
	init := alternation(p.InitVerbs)
	verbs := alternation(p.completionVerbs())
	tail := `\s*\)\s*\.\s*(` + verbs + `)\s*\(`
	return []*regexp.Regexp{
		// container.bind<T>(TOKEN).to(...), bind(TOKEN).to(...)
		regexp.MustCompile(`(?:^|[^\w$])(` + init + `)\s*` + genericArgsExpr + `\s*\(\s*(` + tokenExpr + `)` + tail),
		// (await container.rebind(TOKEN)).to(...)
		regexp.MustCompile(`\(\s*await\s+[\w$.]*?\b(` + init + `)\s*` + genericArgsExpr + `\s*\(\s*(` + tokenExpr + `)\s*\)\s*\)\s*\.\s*(` + verbs + `)\s*\(`),
	}
}

// registryRegexp matches bind calls whose token is REGISTRY.entry or
// REGISTRY["entry"]. Captures (init verb, dotted entry, bracketed entry,
// completion verb).
func (p ChainPattern) registryRegexp(registry string) *regexp.Regexp {
	init := alternation(p.InitVerbs)
	verbs := alternation(p.completionVerbs())
	return regexp.MustCompile(`(?:^|[^\w$])(` + init + `)\s*` + genericArgsExpr +
		`\s*\(\s*` + regexp.QuoteMeta(registry) +
		"\\s*(?:\\.\\s*([\\w$]+)|\\[\\s*[\"'`]([^\"'`]+)[\"'`]\\s*\\])" +
		`\s*\)\s*\.\s*(` + verbs + `)\s*\(`)
}

// implementationFromText applies a completion kind to the raw argument text
// of a completion call. ok is false when nothing usable was found.
func implementationFromText(kind CompletionKind, token, arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	switch kind {
	case ImplIsToken:
		return token, token != ""
	case ImplConstructed:
		if m := newExprRe.FindStringSubmatch(arg); m != nil {
			return m[1], true
		}
	}
	if arg == "" || !plainArgRe.MatchString(arg) {
		return "", false
	}
	impl := Normalize(arg)
	return impl, impl != ""
}

// balancedArgument returns the text between the '(' ending at openEnd and its
// matching ')'. Quotes are skipped; unbalanced input yields ok=false.
func balancedArgument(src []byte, openEnd int) (string, bool) {
	depth := 1
	var quote byte
	for i := openEnd; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				arg := string(src[openEnd:i])
				return firstTopLevelArgument(arg), true
			}
		}
	}
	return "", false
}

// firstTopLevelArgument drops everything after the first top-level comma.
func firstTopLevelArgument(args string) string {
	depth := 0
	var quote byte
	for i := 0; i < len(args); i++ {
		c := args[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				return args[:i]
			}
		}
	}
	return args
}
