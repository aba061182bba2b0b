package analysis

import (
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"inverigator/internal/parser"
)

// ServiceInfo is one class that looks like an injectable implementation.
type ServiceInfo struct {
	ClassName   string   `json:"class_name"`
	MethodNames []string `json:"method_names"`
	SourceFile  string   `json:"source_file"`
	SourceLine  int      `json:"source_line"`
}

var (
	injectableDecorators = map[string]bool{
		"injectable":    true,
		"Injectable":    true,
		"provide":       true,
		"fluentProvide": true,
		"Service":       true,
	}
	serviceSuffixes = []string{"Service", "Repository", "Controller", "Provider"}
)

// service decides whether the class is recorded. The net is wide: an
// injectable decorator, a service-like suffix or any public method is enough.
func (c classDecl) service() (ServiceInfo, bool) {
	methods, public := c.methods()
	info := ServiceInfo{
		ClassName:   c.name,
		MethodNames: methods,
		SourceFile:  c.file.Path,
		SourceLine:  parser.Line(c.node.ChildByFieldName("name")),
	}
	for _, d := range c.decorators() {
		if injectableDecorators[d] {
			return info, true
		}
	}
	for _, s := range serviceSuffixes {
		if strings.HasSuffix(c.name, s) {
			return info, true
		}
	}
	return info, public > 0
}

// methods lists method names other than the constructor and _-prefixed
// helpers, and counts the public ones.
func (c classDecl) methods() ([]string, int) {
	body := c.body()
	if body == nil {
		return nil, 0
	}
	var names []string
	public := 0
	for _, m := range parser.NamedChildren(body) {
		if m.Type() != "method_definition" {
			continue
		}
		nameNode := m.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := c.file.Text(nameNode)
		if name == "constructor" || strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
		if nameNode.Type() != "private_property_identifier" && !isRestricted(c.file, m) {
			public++
		}
	}
	return names, public
}

// isRestricted reports a private or protected accessibility modifier.
func isRestricted(f *parser.File, member *sitter.Node) bool {
	for _, m := range parser.NamedChildrenOfType(member, "accessibility_modifier") {
		if v := f.Text(m); v == "private" || v == "protected" {
			return true
		}
	}
	return false
}

// ServiceMap holds one ServiceInfo per class name; a later Add for the
// same name replaces the earlier one.
type ServiceMap struct {
	mu       sync.RWMutex
	services map[string]ServiceInfo
}

func NewServiceMap() *ServiceMap {
	return &ServiceMap{services: make(map[string]ServiceInfo)}
}

func (m *ServiceMap) Add(infos ...ServiceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range infos {
		m.services[info.ClassName] = info
	}
}

func (m *ServiceMap) Get(className string) (ServiceInfo, bool) {
	if m == nil {
		return ServiceInfo{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.services[className]
	return info, ok
}

// All returns the services sorted by class name.
func (m *ServiceMap) All() []ServiceInfo {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServiceInfo, 0, len(m.services))
	for _, info := range m.services {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassName < out[j].ClassName })
	return out
}

func (m *ServiceMap) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services)
}
