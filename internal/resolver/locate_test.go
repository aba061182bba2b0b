package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inverigator/internal/analysis"
	"inverigator/internal/extractor"
)

type staticFiles []string

func (s staticFiles) Files(context.Context) ([]string, error) { return s, nil }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLocateKnownService(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "audit.ts", "import x from 'y';\n\nexport class AuditService {\n}\n")

	services := analysis.NewServiceMap()
	services.Add(analysis.ServiceInfo{ClassName: "AuditService", SourceFile: path, SourceLine: 2})

	loc, err := NewLocator(services, nil).Locate(context.Background(), extractor.Binding{Implementation: "AuditService"})
	require.NoError(t, err)
	assert.Equal(t, Location{File: path, Line: 2, Column: 13, Offset: 33}, loc)
}

func TestLocatePrefersMatchingFileName(t *testing.T) {
	dir := t.TempDir()
	decoy := writeFile(t, dir, "a/notes.ts", "// see class ConsoleLogger\n")
	real := writeFile(t, dir, "b/console-logger.ts", "\nexport class ConsoleLogger implements ILogger {}\n")

	loc, err := NewLocator(nil, staticFiles{decoy, real}).
		Locate(context.Background(), extractor.Binding{Implementation: "ConsoleLogger"})
	require.NoError(t, err)
	assert.Equal(t, real, loc.File)
	assert.Equal(t, 1, loc.Line)
	assert.Equal(t, 13, loc.Column)
}

func TestLocateInterfaceAndNamespacedImplementation(t *testing.T) {
	dir := t.TempDir()
	types := writeFile(t, dir, "types.ts", "export interface Cache {\n  get(k: string): string;\n}\n")

	loc, err := NewLocator(nil, staticFiles{types}).
		Locate(context.Background(), extractor.Binding{Implementation: "TYPES.Cache"})
	require.NoError(t, err)
	assert.Equal(t, types, loc.File)
	assert.Equal(t, 0, loc.Line)
	assert.Equal(t, 17, loc.Column)
}

func TestLocateFallsBackToBindingFile(t *testing.T) {
	dir := t.TempDir()
	container := writeFile(t, dir, "container.ts", "class Inline {}\ncontainer.bind(T).to(Inline);\n")

	loc, err := NewLocator(nil, staticFiles{}).
		Locate(context.Background(), extractor.Binding{Implementation: "Inline", SourceFile: container, SourceLine: 1})
	require.NoError(t, err)
	assert.Equal(t, Location{File: container, Line: 0, Column: 6, Offset: 6}, loc)
}

func TestLocateNotFound(t *testing.T) {
	dir := t.TempDir()
	other := writeFile(t, dir, "other.ts", "export const x = 1;\n")

	_, err := NewLocator(nil, staticFiles{other}).
		Locate(context.Background(), extractor.Binding{Implementation: "Missing"})
	assert.ErrorIs(t, err, ErrDeclarationNotFound)

	_, err = NewLocator(nil, staticFiles{other}).
		Locate(context.Background(), extractor.Binding{Implementation: "http://example"})
	assert.ErrorIs(t, err, ErrDeclarationNotFound)
}

func TestSearchOrder(t *testing.T) {
	got := searchOrder("UserService", "/w/container.ts", []string{"/w/a.ts", "/w/user.service.ts", "/w/container.ts", "/w/a.ts"})
	assert.Equal(t, []string{"/w/user.service.ts", "/w/container.ts", "/w/a.ts"}, got)
}
