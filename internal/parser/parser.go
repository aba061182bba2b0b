package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// DefaultMaxFileSize bounds how much source a single parse will accept.
const DefaultMaxFileSize int64 = 2 * 1024 * 1024

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrInvalidContent   = errors.New("invalid content")
	ErrUnsupportedFile  = errors.New("unsupported file type")
	ErrEmptySyntaxTree  = errors.New("empty syntax tree")
	supportedExtensions = map[string]bool{
		".ts":  true,
		".tsx": true,
		".mts": true,
		".cts": true,
		".js":  true,
		".jsx": true,
		".mjs": true,
		".cjs": true,
	}
)

// ParseFailure reports a file that could not be turned into a syntax tree.
// Callers skip the file and keep scanning.
type ParseFailure struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// File is one parsed source file. Close releases the tree-sitter tree.
type File struct {
	Path    string
	Content []byte
	Tree    *sitter.Tree
}

// Root returns the root node of the syntax tree, or nil for a closed file.
func (f *File) Root() *sitter.Node {
	if f == nil || f.Tree == nil {
		return nil
	}
	return f.Tree.RootNode()
}

// Text returns the source text covered by n.
func (f *File) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(f.Content)
}

// HasSyntaxErrors reports whether tree-sitter had to recover from errors.
// The tree is still usable; the text-pattern pass covers what it misses.
func (f *File) HasSyntaxErrors() bool {
	root := f.Root()
	return root != nil && root.HasError()
}

func (f *File) Close() {
	if f != nil && f.Tree != nil {
		f.Tree.Close()
		f.Tree = nil
	}
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxFileSize overrides DefaultMaxFileSize. Non-positive values are ignored.
func WithMaxFileSize(bytes int64) Option {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// Parser wraps tree-sitter's TypeScript grammars. It is safe for concurrent
// use: every call creates its own tree-sitter parser.
type Parser struct {
	maxFileSize int64
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Supports reports whether path has a TypeScript/JavaScript extension.
func Supports(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// ParseFile reads path from disk and parses it.
func (p *Parser) ParseFile(ctx context.Context, path string) (*File, error) {
	if !Supports(path) {
		return nil, &ParseFailure{Path: path, Reason: "unsupported extension", Err: ErrUnsupportedFile}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ParseFailure{Path: path, Reason: "stat failed", Err: err}
	}
	if info.Size() > p.maxFileSize {
		return nil, &ParseFailure{
			Path:   path,
			Reason: fmt.Sprintf("size %d exceeds limit %d", info.Size(), p.maxFileSize),
			Err:    ErrFileTooLarge,
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseFailure{Path: path, Reason: "read failed", Err: err}
	}
	return p.Parse(ctx, path, content)
}

// Parse builds a syntax tree for content. path selects the grammar
// (.tsx/.jsx use the TSX grammar) and is recorded on the File.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*File, error) {
	if int64(len(content)) > p.maxFileSize {
		return nil, &ParseFailure{
			Path:   path,
			Reason: fmt.Sprintf("size %d exceeds limit %d", len(content), p.maxFileSize),
			Err:    ErrFileTooLarge,
		}
	}
	if !utf8.Valid(content) {
		return nil, &ParseFailure{Path: path, Reason: "content is not valid UTF-8", Err: ErrInvalidContent}
	}

	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(languageFor(path))

	tree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, &ParseFailure{Path: path, Reason: "tree-sitter parse failed", Err: err}
	}
	if tree == nil || tree.RootNode() == nil {
		return nil, &ParseFailure{Path: path, Reason: "tree-sitter returned no root", Err: ErrEmptySyntaxTree}
	}

	return &File{Path: path, Content: content, Tree: tree}, nil
}

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx", ".jsx":
		return tsx.GetLanguage()
	default:
		return typescript.GetLanguage()
	}
}
