package resolver

import (
	"errors"
	"fmt"
	"strings"

	"inverigator/internal/analysis"
	"inverigator/internal/extractor"
	"inverigator/internal/index"
)

// ErrNoImplementation is matched by every MissError.
var ErrNoImplementation = errors.New("no implementation found")

// MissError reports a symbol no strategy could resolve.
type MissError struct {
	Symbol    string
	Attempted []string
}

func (e *MissError) Error() string {
	return fmt.Sprintf("no implementation found for %q (tried %s)", e.Symbol, strings.Join(e.Attempted, ", "))
}

func (e *MissError) Is(target error) bool { return target == ErrNoImplementation }

// Query is a navigation request: the symbol under the cursor and where it
// was found.
type Query struct {
	Symbol   string
	LineText string
	File     string
	Line     int // 0-based
}

// Indexes is the scan output a resolution reads.
type Indexes struct {
	Bindings   *index.BindingIndex
	Services   *analysis.ServiceMap
	Injections *analysis.InjectionMap
}

// Strategy is one resolution step. It returns nil when it does not apply.
type Strategy interface {
	Name() string
	Resolve(q Query, ix Indexes) []extractor.Binding
}

type StageResult struct {
	Strategy   string
	Candidates int
}

// Resolution is a successful lookup. More than one candidate means the
// caller must let the user choose.
type Resolution struct {
	Symbol     string
	Strategy   string
	Candidates []extractor.Binding
	Stages     []StageResult
}

func (r *Resolution) Ambiguous() bool {
	return len(r.Candidates) > 1
}

// Chain tries strategies in order; the first one producing candidates wins.
type Chain struct {
	strategies []Strategy
}

func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Options tune the default chain.
type Options struct {
	// GlobalPropertyFallback lets the property step use the workspace-wide
	// property map when the enclosing class is unknown or does not inject
	// the property.
	GlobalPropertyFallback bool
}

// NewDefaultChain returns interface, property, direct, service and fuzzy
// resolution, in that order.
func NewDefaultChain(opts Options) *Chain {
	return NewChain(
		InterfaceStrategy{},
		PropertyStrategy{Global: opts.GlobalPropertyFallback},
		DirectStrategy{},
		ServiceStrategy{},
		NewFuzzyStrategy(),
	)
}

// Resolve runs the chain. A miss is returned as a *MissError.
func (c *Chain) Resolve(q Query, ix Indexes) (*Resolution, error) {
	q.Symbol = strings.TrimSpace(q.Symbol)
	res := &Resolution{Symbol: q.Symbol}
	if q.Symbol == "" {
		return nil, &MissError{Symbol: q.Symbol}
	}

	var attempted []string
	for _, s := range c.strategies {
		candidates := dedupe(s.Resolve(q, ix))
		attempted = append(attempted, s.Name())
		res.Stages = append(res.Stages, StageResult{Strategy: s.Name(), Candidates: len(candidates)})
		if len(candidates) > 0 {
			res.Strategy = s.Name()
			res.Candidates = candidates
			return res, nil
		}
	}
	return nil, &MissError{Symbol: q.Symbol, Attempted: attempted}
}

// dedupe keeps the first binding per (implementation, source file).
func dedupe(bindings []extractor.Binding) []extractor.Binding {
	if len(bindings) < 2 {
		return bindings
	}
	type key struct{ impl, file string }
	seen := make(map[key]bool, len(bindings))
	out := make([]extractor.Binding, 0, len(bindings))
	for _, b := range bindings {
		k := key{b.Implementation, b.SourceFile}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, b)
	}
	return out
}
