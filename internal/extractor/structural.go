package extractor

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"inverigator/internal/parser"
)

// StructuralExtractor walks the syntax tree for bind(token).<verb>(impl)
// call chains.
type StructuralExtractor struct {
	pattern ChainPattern
}

func NewStructuralExtractor(pattern ChainPattern) *StructuralExtractor {
	return &StructuralExtractor{pattern: pattern}
}

func (s *StructuralExtractor) Name() string { return "structural" }

func (s *StructuralExtractor) Extract(f *parser.File) Result {
	var res Result
	parser.Walk(f.Root(), func(n *sitter.Node) bool {
		if n.Type() != "call_expression" {
			return true
		}
		verb := calleeName(f, n)
		if !s.pattern.isInitVerb(verb) {
			return true
		}
		tokenNode := firstArgument(n)
		if tokenNode == nil {
			return true
		}
		rawToken := f.Text(tokenNode)
		if functionBind(rawToken) || argumentCount(n) > 1 {
			// fn.bind(this), fn.bind(null, x): Function.prototype.bind, not a container call
			return true
		}
		token := Normalize(rawToken)
		if token == "" {
			return true
		}

		kind, impl, found := s.completionFor(f, n, token)
		if !found {
			if receiverLike(rawToken) {
				// handler.bind(ctx) is far more likely than an unfinished chain
				return true
			}
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				File:     f.Path,
				Line:     parser.Line(n),
				Severity: SeverityInfo,
				Message:  fmt.Sprintf("%s(%s) has no discoverable completion", verb, token),
			})
			return true
		}
		res.Bindings = append(res.Bindings, Binding{
			Token:          token,
			Implementation: impl,
			SourceFile:     f.Path,
			SourceLine:     parser.Line(n),
			Kind:           kind,
			Strategy:       s.Name(),
		})
		return true
	})
	return res
}

// completionFor climbs from the bind call through at most MaxChainHops
// chained calls looking for a completion verb.
func (s *StructuralExtractor) completionFor(f *parser.File, bindCall *sitter.Node, token string) (string, string, bool) {
	cur := bindCall
	for hop := 0; hop < s.pattern.MaxChainHops; hop++ {
		member := cur.Parent()
		for member != nil && (member.Type() == "parenthesized_expression" || member.Type() == "await_expression" || member.Type() == "non_null_expression") {
			member = member.Parent()
		}
		if member == nil || member.Type() != "member_expression" {
			return "", "", false
		}
		call := member.Parent()
		if call == nil || call.Type() != "call_expression" {
			return "", "", false
		}
		verb := f.Text(member.ChildByFieldName("property"))
		if kind, ok := s.pattern.completion(verb); ok {
			impl, ok := implementationFromNode(f, kind, token, firstArgument(call))
			return verb, impl, ok
		}
		cur = call
	}
	return "", "", false
}

func implementationFromNode(f *parser.File, kind CompletionKind, token string, arg *sitter.Node) (string, bool) {
	switch kind {
	case ImplIsToken:
		return token, true
	case ImplConstructed:
		if arg == nil {
			return "", false
		}
		if name := constructedClass(f, arg); name != "" {
			return name, true
		}
	}
	if arg == nil {
		return "", false
	}
	switch arg.Type() {
	case "identifier", "member_expression", "string", "template_string", "call_expression", "nested_identifier":
		impl := Normalize(f.Text(arg))
		if arg.Type() == "call_expression" && impl == f.Text(arg) {
			// only Symbol(...) style calls normalize to a key
			return "", false
		}
		return impl, impl != ""
	}
	return "", false
}

// constructedClass finds the first `new X(...)` at or below n.
func constructedClass(f *parser.File, n *sitter.Node) string {
	var name string
	parser.Walk(n, func(c *sitter.Node) bool {
		if name != "" {
			return false
		}
		if c.Type() == "new_expression" {
			if ctor := c.ChildByFieldName("constructor"); ctor != nil {
				name = Normalize(f.Text(ctor))
			}
			return false
		}
		return true
	})
	return name
}

// calleeName returns "bind" for both bind(x) and container.bind<T>(x).
func calleeName(f *parser.File, call *sitter.Node) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return f.Text(fn)
	case "member_expression":
		return f.Text(fn.ChildByFieldName("property"))
	}
	return ""
}

// functionBind reports whether a bind argument is a receiver that only
// Function.prototype.bind takes.
func functionBind(arg string) bool {
	switch arg {
	case "this", "null", "undefined":
		return true
	}
	return false
}

// receiverLike reports whether an argument is a bare lower-case identifier,
// which container tokens almost never are.
func receiverLike(arg string) bool {
	if !identRe.MatchString(arg) {
		return false
	}
	c := arg[0]
	return c >= 'a' && c <= 'z'
}

func argumentCount(call *sitter.Node) int {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return 0
	}
	n := 0
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if c := args.NamedChild(i); c != nil && c.Type() != "comment" {
			n++
		}
	}
	return n
}

func firstArgument(call *sitter.Node) *sitter.Node {
	if call == nil {
		return nil
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		c := args.NamedChild(i)
		if c != nil && c.Type() != "comment" {
			return c
		}
	}
	return nil
}
