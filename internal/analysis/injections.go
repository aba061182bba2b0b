package analysis

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"inverigator/internal/parser"
)

// InjectionMapping is one decorator-based injection site: a constructor
// parameter or property annotated with @inject(TOKEN).
type InjectionMapping struct {
	Property   string `json:"property"`
	Interface  string `json:"interface"`
	Token      string `json:"token"`
	ClassName  string `json:"class_name"`
	SourceFile string `json:"source_file"`
	SourceLine int    `json:"source_line"`
}

var injectDecorators = map[string]bool{
	"inject":      true,
	"Inject":      true,
	"multiInject": true,
	"lazyInject":  true,
}

func (c classDecl) injections() []InjectionMapping {
	body := c.body()
	if body == nil {
		return nil
	}
	var out []InjectionMapping
	for _, member := range parser.NamedChildren(body) {
		switch member.Type() {
		case "method_definition":
			if c.file.Text(member.ChildByFieldName("name")) != "constructor" {
				continue
			}
			params := member.ChildByFieldName("parameters")
			for _, p := range parser.NamedChildren(params) {
				if p.Type() != "required_parameter" && p.Type() != "optional_parameter" {
					continue
				}
				if m, ok := c.injection(p, p.ChildByFieldName("pattern")); ok {
					out = append(out, m)
				}
			}
		case "public_field_definition":
			if m, ok := c.injection(member, member.ChildByFieldName("name")); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

// injection reads the first injection decorator on a parameter or field.
func (c classDecl) injection(site, name *sitter.Node) (InjectionMapping, bool) {
	if name == nil {
		return InjectionMapping{}, false
	}
	for _, d := range parser.NamedChildrenOfType(site, "decorator") {
		if !injectDecorators[decoratorName(c.file, d)] {
			continue
		}
		arg := decoratorArgument(d)
		if arg == nil {
			continue
		}
		token := normalizeToken(c.file.Text(arg))
		if token == "" {
			continue
		}
		return InjectionMapping{
			Property:   c.file.Text(name),
			Interface:  typeName(c.file, site.ChildByFieldName("type")),
			Token:      token,
			ClassName:  c.name,
			SourceFile: c.file.Path,
			SourceLine: parser.Line(site),
		}, true
	}
	return InjectionMapping{}, false
}

// InjectionMap accumulates injection sites across the workspace. Interface
// and property maps are last-write-wins; the per-class injected sets are
// exact.
type InjectionMap struct {
	mu               sync.RWMutex
	mappings         []InjectionMapping
	interfaceToToken map[string]string
	tokenToInterface map[string]string
	properties       map[string]InjectionMapping
	injected         map[string]map[string]bool
	classes          map[string][]ClassSpan
}

func NewInjectionMap() *InjectionMap {
	return &InjectionMap{
		interfaceToToken: make(map[string]string),
		tokenToInterface: make(map[string]string),
		properties:       make(map[string]InjectionMapping),
		injected:         make(map[string]map[string]bool),
		classes:          make(map[string][]ClassSpan),
	}
}

func classKey(file, class string) string {
	return file + "#" + class
}

// PropertyKey is the file-scoped property key, e.g. "user.service:logger".
func PropertyKey(file, property string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ":" + property
}

// Add records injection sites.
func (m *InjectionMap) Add(mappings ...InjectionMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, im := range mappings {
		m.mappings = append(m.mappings, im)
		if im.Interface != "" {
			m.interfaceToToken[im.Interface] = im.Token
			m.tokenToInterface[im.Token] = im.Interface
		}
		m.properties[im.Property] = im
		m.properties[PropertyKey(im.SourceFile, im.Property)] = im

		k := classKey(im.SourceFile, im.ClassName)
		if m.injected[k] == nil {
			m.injected[k] = make(map[string]bool)
		}
		m.injected[k][im.Property] = true
	}
}

// AddClasses records class spans used to find the class enclosing a line.
func (m *InjectionMap) AddClasses(spans ...ClassSpan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range spans {
		m.classes[s.File] = append(m.classes[s.File], s)
	}
}

// AddAnalysis records a file's injections and classes.
func (m *InjectionMap) AddAnalysis(fa FileAnalysis) {
	m.Add(fa.Injections...)
	m.AddClasses(fa.Classes...)
}

func (m *InjectionMap) InterfaceToken(iface string) (string, bool) {
	if m == nil {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.interfaceToToken[iface]
	return t, ok
}

func (m *InjectionMap) TokenInterface(token string) (string, bool) {
	if m == nil {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.tokenToInterface[token]
	return i, ok
}

// Property looks up a property by its file-scoped key first, then by bare
// name.
func (m *InjectionMap) Property(file, property string) (InjectionMapping, bool) {
	if m == nil {
		return InjectionMapping{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if file != "" {
		if im, ok := m.properties[PropertyKey(file, property)]; ok {
			return im, true
		}
	}
	im, ok := m.properties[property]
	return im, ok
}

// InjectedIn reports whether property is injected in the given class.
func (m *InjectionMap) InjectedIn(span ClassSpan, property string) (InjectionMapping, bool) {
	if m == nil {
		return InjectionMapping{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.injected[classKey(span.File, span.Name)][property] {
		return InjectionMapping{}, false
	}
	// the latest site for this exact class wins
	for i := len(m.mappings) - 1; i >= 0; i-- {
		im := m.mappings[i]
		if im.SourceFile == span.File && im.ClassName == span.Name && im.Property == property {
			return im, true
		}
	}
	return InjectionMapping{}, false
}

// EnclosingClass returns the innermost class containing the 0-based line.
func (m *InjectionMap) EnclosingClass(file string, line int) (ClassSpan, bool) {
	if m == nil {
		return ClassSpan{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best ClassSpan
	found := false
	for _, s := range m.classes[file] {
		if !s.Contains(line) {
			continue
		}
		if !found || s.EndLine-s.StartLine < best.EndLine-best.StartLine {
			best, found = s, true
		}
	}
	return best, found
}

// Mappings returns every recorded site in insertion order.
func (m *InjectionMap) Mappings() []InjectionMapping {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]InjectionMapping, len(m.mappings))
	copy(out, m.mappings)
	return out
}

// Classes returns every class span sorted by file and start line.
func (m *InjectionMap) Classes() []ClassSpan {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ClassSpan
	for _, spans := range m.classes {
		out = append(out, spans...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].StartLine < out[j].StartLine
	})
	return out
}

func (m *InjectionMap) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mappings)
}
