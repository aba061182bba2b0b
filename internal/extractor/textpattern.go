package extractor

import (
	"bytes"
	"regexp"

	"inverigator/internal/parser"
)

// TextPatternExtractor matches bind chains directly in the raw source text.
// It tolerates formatting the structural walk does not anticipate and may
// over-match; results go through the same de-duplicating index.
type TextPatternExtractor struct {
	pattern ChainPattern
	res     []*regexp.Regexp
}

func NewTextPatternExtractor(pattern ChainPattern) *TextPatternExtractor {
	return &TextPatternExtractor{pattern: pattern, res: pattern.chainRegexps()}
}

func (t *TextPatternExtractor) Name() string { return "text" }

func (t *TextPatternExtractor) Extract(f *parser.File) Result {
	return Result{Bindings: t.extractText(f.Path, f.Content)}
}

func (t *TextPatternExtractor) extractText(path string, content []byte) []Binding {
	src := maskComments(content)
	var out []Binding
	for _, re := range t.res {
		for _, m := range re.FindAllSubmatchIndex(src, -1) {
			// m: full, init verb, token, completion verb
			token := Normalize(string(src[m[4]:m[5]]))
			verb := string(src[m[6]:m[7]])
			kind, ok := t.pattern.completion(verb)
			if !ok || token == "" || functionBind(token) {
				continue
			}
			arg, ok := balancedArgument(src, m[1])
			if !ok {
				continue
			}
			impl, ok := implementationFromText(kind, token, arg)
			if !ok {
				continue
			}
			out = append(out, Binding{
				Token:          token,
				Implementation: impl,
				SourceFile:     path,
				SourceLine:     lineAt(src, m[2]),
				Kind:           verb,
				Strategy:       t.Name(),
			})
		}
	}
	return out
}

func lineAt(src []byte, offset int) int {
	if offset > len(src) {
		offset = len(src)
	}
	return bytes.Count(src[:offset], []byte{'\n'})
}

// maskComments blanks out // and /* */ comments, keeping byte offsets and
// newlines intact so match positions still map to source lines.
func maskComments(content []byte) []byte {
	out := make([]byte, len(content))
	copy(out, content)
	var quote byte
	for i := 0; i < len(out); i++ {
		c := out[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote || (c == '\n' && quote != '`') {
				quote = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case c == '/' && i+1 < len(out) && out[i+1] == '/':
			for ; i < len(out) && out[i] != '\n'; i++ {
				out[i] = ' '
			}
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			out[i], out[i+1] = ' ', ' '
			i += 2
			for ; i < len(out); i++ {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i++
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
			}
		}
	}
	return out
}
