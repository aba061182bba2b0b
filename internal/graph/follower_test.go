package graph

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inverigator/internal/parser"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func parseAt(t *testing.T, path string) *parser.File {
	t.Helper()
	f, err := parser.NewParser().ParseFile(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f
}

type nameSet map[string]bool

func (s nameSet) KnowsConfigName(name string) bool { return s[name] }
func (s nameSet) LearnConfigName(name string)      { s[name] = true }

func candidatePaths(root string, cs []Candidate) map[string]Reason {
	out := make(map[string]Reason, len(cs))
	for _, c := range cs {
		rel, _ := filepath.Rel(root, c.Path)
		out[filepath.ToSlash(rel)] = c.Reason
	}
	return out
}

func TestFollower_FollowFrom(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.ts": `import { registerServices } from "./services";
import { helper } from "./util";
import { Foo } from "@app/registry/foo";
import * as ioc from "./ioc/setup";
import lodash from "lodash";
import { BindAll } from "some-package";
export * from "./barrel";
export { thing } from "./missing";
`,
		"services.ts":               "export function registerServices() {}",
		"util.ts":                   "export const helper = 1;",
		"src/registry/foo/index.ts": "export class Foo {}",
		"ioc/setup.ts":              "export const x = 1;",
		"barrel/index.ts":           "export * from './a';",
	})
	resolver := NewModuleResolver(NewAliases(root, map[string][]string{"@app/*": {"src/*"}}))
	names := nameSet{}

	got := NewFollower(resolver, nil).FollowFrom(parseAt(t, filepath.Join(root, "main.ts")), names)

	assert.Equal(t, map[string]Reason{
		"services.ts":               ReasonConfigName,
		"src/registry/foo/index.ts": ReasonSpecifier,
		"barrel/index.ts":           ReasonReExport,
	}, candidatePaths(root, got))
	assert.True(t, names["registerServices"], "qualifying names are learned")
	assert.True(t, names["BindAll"], "learned even when the module is external")
}

func TestFollower_LearnedNames(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app.ts":   `import { setupIoc } from "./setup";`,
		"setup.ts": "export function setupIoc() {}",
	})
	f := parseAt(t, filepath.Join(root, "app.ts"))
	fl := NewFollower(NewModuleResolver(nil), nil)

	assert.Empty(t, fl.FollowFrom(f, nameSet{}))
	assert.Equal(t, map[string]Reason{"setup.ts": ReasonLearnedName},
		candidatePaths(root, fl.FollowFrom(f, nameSet{"setupIoc": true})))
}

func TestFollower_Cycle(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.ts": `import { registerB } from "./b";
export function registerA() {}`,
		"b.ts": `import { registerA } from "./a";
export function registerB() {}`,
	})
	fl := NewFollower(NewModuleResolver(nil), nil)
	p := parser.NewParser()

	visited := map[string]int{}
	queue := []string{filepath.Join(root, "a.ts")}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if visited[path] > 0 {
			continue
		}
		visited[path]++
		f, err := p.ParseFile(context.Background(), path)
		require.NoError(t, err)
		for _, c := range fl.FollowFrom(f, nil) {
			queue = append(queue, c.Path)
		}
		f.Close()
	}

	assert.Len(t, visited, 2)
	for path, n := range visited {
		assert.Equal(t, 1, n, path)
	}
}

func TestFollower_Siblings(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"ioc/container.ts":     "export const container = 1;",
		"ioc/bindings.ts":      "",
		"ioc/user.registry.ts": "",
		"ioc/registry.d.ts":    "",
		"ioc/notes.md":         "registry",
		"other/bindings.ts":    "",
	})
	got := NewFollower(NewModuleResolver(nil), nil).FollowFrom(parseAt(t, filepath.Join(root, "ioc/container.ts")), nil)

	var paths []string
	for _, c := range got {
		assert.Equal(t, ReasonSibling, c.Reason)
		rel, _ := filepath.Rel(root, c.Path)
		paths = append(paths, filepath.ToSlash(rel))
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"ioc/bindings.ts", "ioc/user.registry.ts"}, paths)
}

func TestFollower_NeverReturnsSelf(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"registry.ts": `export * from "./registry";`,
	})
	got := NewFollower(NewModuleResolver(nil), nil).FollowFrom(parseAt(t, filepath.Join(root, "registry.ts")), nil)
	assert.Empty(t, got)
}

func TestImports(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"x.ts": `import Default, { a as b, c } from './m';
import * as ns from "./n";
import "./side-effect";
export * from './o';
export const local = 1;
`,
	})
	imps := Imports(parseAt(t, filepath.Join(root, "x.ts")))
	require.Len(t, imps, 4)
	assert.Equal(t, "./m", imps[0].Specifier)
	assert.Equal(t, []string{"Default", "a", "b", "c"}, imps[0].Names)
	assert.Equal(t, []string{"ns"}, imps[1].Names)
	assert.Equal(t, "./side-effect", imps[2].Specifier)
	assert.Empty(t, imps[2].Names)
	assert.True(t, imps[3].ReExport)
	assert.Equal(t, 3, imps[3].Line)
}
