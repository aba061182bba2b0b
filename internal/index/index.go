package index

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"inverigator/internal/extractor"
)

// BindingIndex maps lookup keys to the bindings reachable through them. Each
// binding is filed under its token, its namespace-stripped token and its
// implementation, so lookups by any of those surface it.
//
// Within one key no two entries share (implementation, source file).
// BindingIndex is not safe for concurrent mutation; build it from one
// goroutine and treat it as read-only afterwards.
type BindingIndex struct {
	byKey map[string][]extractor.Binding
	all   []extractor.Binding
}

type entryKey struct {
	impl string
	file string
}

// New returns an empty index.
func New() *BindingIndex {
	return &BindingIndex{byKey: make(map[string][]extractor.Binding)}
}

// FromBindings builds an index from a flat binding list, e.g. a cache load.
func FromBindings(bindings []extractor.Binding) *BindingIndex {
	idx := New()
	idx.AddAll(bindings)
	return idx
}

// Add files b under all of its keys. Bindings with an empty token or
// implementation are ignored. It reports whether b was new.
func (x *BindingIndex) Add(b extractor.Binding) bool {
	if b.Token == "" || b.Implementation == "" {
		return false
	}
	ek := entryKey{b.Implementation, b.SourceFile}
	if x.has(b.Token, ek) {
		return false
	}
	x.all = append(x.all, b)

	keys := []string{b.Token}
	if short := extractor.StripNamespace(b.Token); short != "" {
		keys = append(keys, short)
	}
	keys = append(keys, b.Implementation)
	for _, k := range keys {
		if !x.has(k, ek) {
			x.byKey[k] = append(x.byKey[k], b)
		}
	}
	return true
}

func (x *BindingIndex) AddAll(bindings []extractor.Binding) int {
	n := 0
	for _, b := range bindings {
		if x.Add(b) {
			n++
		}
	}
	return n
}

func (x *BindingIndex) has(key string, ek entryKey) bool {
	for _, e := range x.byKey[key] {
		if e.Implementation == ek.impl && e.SourceFile == ek.file {
			return true
		}
	}
	return false
}

// Lookup returns the bindings filed under key, in insertion order.
func (x *BindingIndex) Lookup(key string) []extractor.Binding {
	if x == nil {
		return nil
	}
	entries := x.byKey[key]
	out := make([]extractor.Binding, len(entries))
	copy(out, entries)
	return out
}

// Has reports whether key has at least one binding.
func (x *BindingIndex) Has(key string) bool {
	return x != nil && len(x.byKey[key]) > 0
}

// Keys returns every lookup key, sorted.
func (x *BindingIndex) Keys() []string {
	if x == nil {
		return nil
	}
	keys := make([]string, 0, len(x.byKey))
	for k := range x.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bindings returns each distinct binding once, in insertion order.
func (x *BindingIndex) Bindings() []extractor.Binding {
	if x == nil {
		return nil
	}
	out := make([]extractor.Binding, len(x.all))
	copy(out, x.all)
	return out
}

// Len is the number of distinct bindings.
func (x *BindingIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.all)
}

// WriteJSON encodes the index as {key: [bindings]}; keys are sorted by the
// encoder.
func (x *BindingIndex) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(x.byKey); err != nil {
		return fmt.Errorf("failed to encode binding index: %w", err)
	}
	return nil
}
