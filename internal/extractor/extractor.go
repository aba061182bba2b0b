package extractor

import (
	"inverigator/internal/parser"
)

// Extractor finds bindings in one parsed file.
type Extractor interface {
	Name() string
	Extract(f *parser.File) Result
}

// Composite runs several extractors over the same file and merges their
// output additively. Identical (token, implementation) pairs found by more
// than one strategy are reported once, first strategy wins.
type Composite struct {
	extractors []Extractor
}

// NewComposite composes extractors in the given order.
func NewComposite(extractors ...Extractor) *Composite {
	return &Composite{extractors: extractors}
}

// NewDefault returns structural, text-pattern and token-table extraction
// driven by DefaultChainPattern.
func NewDefault() *Composite {
	return NewComposite(
		NewStructuralExtractor(DefaultChainPattern),
		NewTextPatternExtractor(DefaultChainPattern),
		NewTokenTableExtractor(DefaultChainPattern),
	)
}

func (c *Composite) Name() string { return "composite" }

func (c *Composite) Extract(f *parser.File) Result {
	var merged Result
	for _, e := range c.extractors {
		merged.merge(e.Extract(f))
	}
	merged.Bindings = dedupe(merged.Bindings)
	return merged
}

func dedupe(bindings []Binding) []Binding {
	type key struct{ token, impl string }
	seen := make(map[key]bool, len(bindings))
	out := bindings[:0]
	for _, b := range bindings {
		k := key{b.Token, b.Implementation}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, b)
	}
	return out
}
