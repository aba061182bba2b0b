package analysis

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"inverigator/internal/extractor"
	"inverigator/internal/parser"
)

// ClassSpan is the line range a class declaration occupies.
type ClassSpan struct {
	File      string `json:"file"`
	Name      string `json:"name"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Contains reports whether a 0-based line falls inside the class.
func (s ClassSpan) Contains(line int) bool {
	return line >= s.StartLine && line <= s.EndLine
}

// FileAnalysis is everything the service and injection passes learn from
// one file.
type FileAnalysis struct {
	Services   []ServiceInfo
	Injections []InjectionMapping
	Classes    []ClassSpan
}

// Analyze walks every class declaration in f once.
func Analyze(f *parser.File) FileAnalysis {
	var fa FileAnalysis
	parser.Walk(f.Root(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "class_declaration", "abstract_class_declaration", "class":
		default:
			return true
		}
		name := f.Text(n.ChildByFieldName("name"))
		if name == "" {
			// anonymous class expression
			return true
		}
		c := classDecl{file: f, node: n, name: name}

		fa.Classes = append(fa.Classes, ClassSpan{
			File:      f.Path,
			Name:      name,
			StartLine: parser.Line(n),
			EndLine:   int(n.EndPoint().Row),
		})
		if svc, ok := c.service(); ok {
			fa.Services = append(fa.Services, svc)
		}
		fa.Injections = append(fa.Injections, c.injections()...)
		// nested classes are declarations of their own
		return true
	})
	return fa
}

type classDecl struct {
	file *parser.File
	node *sitter.Node
	name string
}

// decorators returns the class's decorator names, including those written
// before `export`.
func (c classDecl) decorators() []string {
	var names []string
	for _, d := range parser.NamedChildrenOfType(c.node, "decorator") {
		names = append(names, decoratorName(c.file, d))
	}
	if parent := c.node.Parent(); parent != nil && parent.Type() == "export_statement" {
		for _, d := range parser.NamedChildrenOfType(parent, "decorator") {
			names = append(names, decoratorName(c.file, d))
		}
	}
	return names
}

func (c classDecl) body() *sitter.Node {
	return c.node.ChildByFieldName("body")
}

// decoratorName returns "inject" for @inject, @inject(X) and @di.inject(X).
func decoratorName(f *parser.File, d *sitter.Node) string {
	if d.NamedChildCount() == 0 {
		return ""
	}
	expr := d.NamedChild(0)
	if expr.Type() == "call_expression" || expr.Type() == "decorator_call_expression" {
		expr = expr.ChildByFieldName("function")
	}
	name := f.Text(expr)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// decoratorArgument returns the first argument of a decorator call, or nil.
func decoratorArgument(d *sitter.Node) *sitter.Node {
	if d.NamedChildCount() == 0 {
		return nil
	}
	call := d.NamedChild(0)
	if call.Type() != "call_expression" && call.Type() != "decorator_call_expression" {
		return nil
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if a := args.NamedChild(i); a.Type() != "comment" {
			return a
		}
	}
	return nil
}

// typeName strips the annotation's colon and all whitespace.
func typeName(f *parser.File, annotation *sitter.Node) string {
	if annotation == nil {
		return ""
	}
	s := strings.TrimPrefix(strings.TrimSpace(f.Text(annotation)), ":")
	return strings.Join(strings.Fields(s), "")
}

func normalizeToken(raw string) string {
	return extractor.Normalize(strings.TrimSpace(raw))
}
