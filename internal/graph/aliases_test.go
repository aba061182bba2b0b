package graph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliases_LongestPrefixFirst(t *testing.T) {
	a := NewAliases("/w", map[string][]string{
		"@app/*":        {"src/*"},
		"@app/config/*": {"config/*"},
		"@app/config":   {"config/index.ts"},
	})

	assert.Equal(t, []string{filepath.FromSlash("/w/config/ioc")}, a.Targets("@app/config/ioc"))
	assert.Equal(t, []string{filepath.FromSlash("/w/config/index.ts")}, a.Targets("@app/config"))
	assert.Equal(t, []string{filepath.FromSlash("/w/src/services/user")}, a.Targets("@app/services/user"))
	assert.Nil(t, a.Targets("lodash"))
	assert.Equal(t, 3, a.Len())
}

func TestAliases_Extend(t *testing.T) {
	a := NewAliases("/w", map[string][]string{"@ioc/*": {"override/*"}})
	a.Extend(NewAliases("/w", map[string][]string{
		"@ioc/*": {"src/ioc/*"},
		"~/*":    {"src/*"},
	}))

	assert.Equal(t, []string{filepath.FromSlash("/w/override/x")}, a.Targets("@ioc/x"), "existing entries win ties")
	assert.Equal(t, []string{filepath.FromSlash("/w/src/y")}, a.Targets("~/y"))
}

func TestLoadTsconfig(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"tsconfig.json": `{
  // comments and trailing commas are fine
  "compilerOptions": {
    "baseUrl": "./src",
    "paths": {
      "@ioc/*": ["ioc/*", "legacy/ioc/*"],
    },
  },
}`,
		"src/legacy/ioc/registry.ts": "export {}",
		"src/services/user.ts":       "export {}",
	})
	a, err := LoadTsconfig(filepath.Join(root, "tsconfig.json"))
	require.NoError(t, err)
	require.Equal(t, 2, a.Len())

	r := NewModuleResolver(a)
	from := filepath.Join(root, "src", "main.ts")

	path, ok := r.Resolve(from, "@ioc/registry")
	require.True(t, ok, "second target is tried")
	assert.Equal(t, filepath.Join(root, "src/legacy/ioc/registry.ts"), path)

	path, ok = r.Resolve(from, "services/user")
	require.True(t, ok, "baseUrl resolves bare specifiers inside the workspace")
	assert.Equal(t, filepath.Join(root, "src/services/user.ts"), path)

	_, ok = r.Resolve(from, "inversify")
	assert.False(t, ok)
}

func TestLoadTsconfig_Missing(t *testing.T) {
	a, err := LoadTsconfig(filepath.Join(t.TempDir(), "tsconfig.json"))
	require.NoError(t, err)
	assert.Zero(t, a.Len())
}

func TestLoadTsconfig_Invalid(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"tsconfig.json": `{"compilerOptions": [`})
	_, err := LoadTsconfig(filepath.Join(root, "tsconfig.json"))
	assert.Error(t, err)
}

func TestModuleResolver_Relative(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/a.ts":              "",
		"src/b.tsx":             "",
		"src/esm.ts":            "",
		"src/dir/index.ts":      "",
		"src/plain.js":          "",
		"src/nested/deep/c.mts": "",
	})
	r := NewModuleResolver(nil)
	from := filepath.Join(root, "src", "main.ts")

	cases := map[string]string{
		"./a":             "src/a.ts",
		"./a.ts":          "src/a.ts",
		"./b":             "src/b.tsx",
		"./esm.js":        "src/esm.ts",
		"./dir":           "src/dir/index.ts",
		"./plain.js":      "src/plain.js",
		"./nested/deep/c": "src/nested/deep/c.mts",
		"../src/a":        "src/a.ts",
	}
	for spec, want := range cases {
		path, ok := r.Resolve(from, spec)
		require.True(t, ok, spec)
		assert.Equal(t, filepath.Join(root, filepath.FromSlash(want)), path, spec)
	}

	for _, spec := range []string{"./missing", "lodash", "@scope/pkg", ""} {
		_, ok := r.Resolve(from, spec)
		assert.False(t, ok, spec)
	}
}
