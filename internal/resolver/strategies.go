package resolver

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"inverigator/internal/extractor"
)

// InterfaceStrategy maps an interface name (IFoo) to the token injected
// for it, then looks the token up.
type InterfaceStrategy struct{}

func (InterfaceStrategy) Name() string { return "interface" }

func (InterfaceStrategy) Resolve(q Query, ix Indexes) []extractor.Binding {
	if !looksLikeInterface(q.Symbol) {
		return nil
	}
	token, ok := ix.Injections.InterfaceToken(q.Symbol)
	if !ok {
		return nil
	}
	return ix.Bindings.Lookup(token)
}

// looksLikeInterface matches the I-prefix convention: IFoo, not Item.
func looksLikeInterface(s string) bool {
	if len(s) < 2 || s[0] != 'I' {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[1:])
	return unicode.IsUpper(r)
}

// PropertyStrategy resolves `receiver.prop` when prop is an injected
// property of the class enclosing the cursor.
type PropertyStrategy struct {
	Global bool
}

func (PropertyStrategy) Name() string { return "property" }

func (p PropertyStrategy) Resolve(q Query, ix Indexes) []extractor.Binding {
	if q.LineText == "" || !propertyAccess(q.LineText, q.Symbol) {
		return nil
	}
	if span, ok := ix.Injections.EnclosingClass(q.File, q.Line); ok {
		if im, ok := ix.Injections.InjectedIn(span, q.Symbol); ok {
			return ix.Bindings.Lookup(im.Token)
		}
		if !p.Global {
			return nil
		}
	}
	if !p.Global {
		return nil
	}
	if im, ok := ix.Injections.Property(q.File, q.Symbol); ok {
		return ix.Bindings.Lookup(im.Token)
	}
	return nil
}

func propertyAccess(line, symbol string) bool {
	if symbol == "" {
		return false
	}
	re, err := regexp.Compile(`[\w$\])]\s*(?:\?\.|!\.|\.)\s*` + regexp.QuoteMeta(symbol) + `(?:[^\w$]|$)`)
	if err != nil {
		return false
	}
	return re.MatchString(line)
}

// DirectStrategy looks the symbol up as an index key.
type DirectStrategy struct{}

func (DirectStrategy) Name() string { return "direct" }

func (DirectStrategy) Resolve(q Query, ix Indexes) []extractor.Binding {
	if got := ix.Bindings.Lookup(q.Symbol); len(got) > 0 {
		return got
	}
	if n := extractor.Normalize(q.Symbol); n != q.Symbol {
		return ix.Bindings.Lookup(n)
	}
	return nil
}

// ServiceStrategy treats a known service class as its own implementation.
type ServiceStrategy struct{}

func (ServiceStrategy) Name() string { return "service" }

func (ServiceStrategy) Resolve(q Query, ix Indexes) []extractor.Binding {
	svc, ok := ix.Services.Get(q.Symbol)
	if !ok {
		return nil
	}
	return []extractor.Binding{{
		Token:          q.Symbol,
		Implementation: svc.ClassName,
		SourceFile:     svc.SourceFile,
		SourceLine:     svc.SourceLine,
		Kind:           "service",
	}}
}

// KeyMatcher decides whether an index key fuzzily matches a symbol.
type KeyMatcher struct {
	Name  string
	Match func(key, symbol string) bool
}

// FuzzyStrategy scans every index key with an ordered matcher list. The
// first matcher that matches any key decides the candidate set.
type FuzzyStrategy struct {
	Matchers []KeyMatcher
}

// NewFuzzyStrategy uses suffix-stripped equality, then substring
// containment.
func NewFuzzyStrategy() *FuzzyStrategy {
	return &FuzzyStrategy{Matchers: []KeyMatcher{
		{Name: "suffix", Match: suffixStrippedEqual},
		{Name: "contains", Match: containsEither},
	}}
}

func (*FuzzyStrategy) Name() string { return "fuzzy" }

func (f *FuzzyStrategy) Resolve(q Query, ix Indexes) []extractor.Binding {
	keys := ix.Bindings.Keys()
	for _, m := range f.Matchers {
		var out []extractor.Binding
		for _, k := range keys {
			if m.Match(k, q.Symbol) {
				out = append(out, ix.Bindings.Lookup(k)...)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

var serviceLikeSuffixes = []string{"Implementation", "Service", "Repository", "Provider", "Controller", "Impl"}

func stripServiceSuffix(s string) string {
	for _, suffix := range serviceLikeSuffixes {
		if len(s) > len(suffix) && strings.HasSuffix(s, suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}

func suffixStrippedEqual(key, symbol string) bool {
	k := stripServiceSuffix(lastSegment(key))
	s := stripServiceSuffix(lastSegment(symbol))
	return k != "" && strings.EqualFold(k, s)
}

// minContainment keeps one- and two-letter symbols from matching
// everything.
const minContainment = 3

func containsEither(key, symbol string) bool {
	k, s := strings.ToLower(key), strings.ToLower(symbol)
	if len(k) < minContainment || len(s) < minContainment {
		return false
	}
	return strings.Contains(k, s) || strings.Contains(s, k)
}

func lastSegment(s string) string {
	if short := extractor.StripNamespace(s); short != "" {
		return short
	}
	return s
}
