package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "container.ts")
	require.NoError(t, os.WriteFile(path, []byte("container.bind(TYPES.Logger).to(ConsoleLogger);\n"), 0644))

	f, err := NewParser().ParseFile(context.Background(), path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, path, f.Path)
	assert.Equal(t, "program", f.Root().Type())
	assert.False(t, f.HasSyntaxErrors())

	var calls int
	Walk(f.Root(), func(n *sitter.Node) bool {
		if n.Type() == "call_expression" {
			calls++
		}
		return true
	})
	assert.Equal(t, 2, calls)
}

func TestParser_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		_, err := NewParser().ParseFile(ctx, filepath.Join(t.TempDir(), "nope.ts"))
		var pf *ParseFailure
		require.ErrorAs(t, err, &pf)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := NewParser().ParseFile(ctx, "README.md")
		assert.ErrorIs(t, err, ErrUnsupportedFile)
	})

	t.Run("invalid utf8", func(t *testing.T) {
		_, err := NewParser().Parse(ctx, "bad.ts", []byte{0xff, 0xfe, 0xfd})
		assert.ErrorIs(t, err, ErrInvalidContent)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := NewParser(WithMaxFileSize(4)).Parse(ctx, "big.ts", []byte("const a = 1;"))
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})
}

func TestParser_SyntaxErrorsStillYieldTree(t *testing.T) {
	f, err := NewParser().Parse(context.Background(), "broken.ts", []byte("class { bind(X).to(\n"))
	require.NoError(t, err)
	defer f.Close()
	assert.True(t, f.HasSyntaxErrors())
}

func TestSupports(t *testing.T) {
	assert.True(t, Supports("a/b/container.ts"))
	assert.True(t, Supports("App.TSX"))
	assert.False(t, Supports("types.json"))
}
