package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inverigator/internal/config"
	"inverigator/internal/extractor"
	"inverigator/internal/storage"
)

func workspace(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	cfg := config.Default()
	cfg.Root = root
	cfg.UseCache = false
	return cfg
}

func newScanner(t *testing.T, cfg *config.Config, store storage.CacheStore) *Scanner {
	t.Helper()
	s, err := NewScanner(cfg, store, nil)
	require.NoError(t, err)
	return s
}

func rels(root string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, _ := filepath.Rel(root, f)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

var scenarioFiles = map[string]string{
	"src/container.ts": `import { Container } from "inversify";
const container = new Container();
container.bind(TYPES.Logger).to(ConsoleLogger);
`,
	"src/logger.ts": `@injectable()
export class ConsoleLogger implements ILogger {
  info(msg: string) {}
}
`,
	"src/user.ts": `export class UserService {
  constructor(@inject(TYPES.Logger) private log: ILogger) {}

  greet() {
    this.log.info("hi");
  }
}
`,
	"src/math.ts":             "export const add = (a: number, b: number) => a + b;",
	"node_modules/x/index.ts": "container.bind(TYPES.Logger).to(VendorLogger);",
	"src/container.test.ts":   "container.bind(TYPES.Logger).to(TestLogger);",
}

func TestScanner_Scenario(t *testing.T) {
	cfg := workspace(t, scenarioFiles)
	res, err := newScanner(t, cfg, nil).Run(context.Background(), false)
	require.NoError(t, err)

	assert.False(t, res.FromCache)
	assert.False(t, res.Partial)
	// user.ts only mentions TYPES but is still within the container-file cap
	assert.Equal(t, []string{"src/container.ts", "src/user.ts"}, rels(cfg.Root, res.Files))

	require.Equal(t, 1, res.Index.Len())
	b := res.Index.Bindings()[0]
	assert.Equal(t, "TYPES.Logger", b.Token)
	assert.Equal(t, "ConsoleLogger", b.Implementation)
	assert.Equal(t, 2, b.SourceLine)
	for _, key := range []string{"TYPES.Logger", "Logger", "ConsoleLogger"} {
		assert.Len(t, res.Index.Lookup(key), 1, key)
	}

	svc, ok := res.Services.Get("ConsoleLogger")
	require.True(t, ok)
	assert.Equal(t, []string{"info"}, svc.MethodNames)
	_, ok = res.Services.Get("UserService")
	assert.True(t, ok)

	token, ok := res.Injections.InterfaceToken("ILogger")
	require.True(t, ok)
	assert.Equal(t, "TYPES.Logger", token)
}

func TestScanner_FileBudget(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("src/mod%02d.ts", i)] = fmt.Sprintf("container.bind(TYPES.S%d).to(Impl%d);\n", i, i)
	}
	cfg := workspace(t, files)
	cfg.MaxFilesToScan = 5

	res, err := newScanner(t, cfg, nil).Run(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.NotZero(t, res.Index.Len())
	assert.LessOrEqual(t, res.Index.Len(), 5)
	assert.Len(t, res.Files, 5)
}

func TestScanner_Deadline(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// expiresAfter returns a clock that reads start for n calls, then an
	// hour later.
	expiresAfter := func(n int) func() time.Time {
		calls := 0
		return func() time.Time {
			calls++
			if calls <= n {
				return start
			}
			return start.Add(time.Hour)
		}
	}

	t.Run("before extraction", func(t *testing.T) {
		cfg := workspace(t, scenarioFiles)
		s := newScanner(t, cfg, nil)
		s.now = expiresAfter(1)

		res, err := s.Run(context.Background(), false)
		require.NoError(t, err)
		assert.True(t, res.Partial)
		assert.Zero(t, res.Index.Len())
	})

	t.Run("during discovery", func(t *testing.T) {
		files := make(map[string]string)
		for i := 0; i < 10; i++ {
			files[fmt.Sprintf("mod%02d.ts", i)] = fmt.Sprintf("container.bind(TYPES.S%d).to(Impl%d);\n", i, i)
		}
		cfg := workspace(t, files)
		s := newScanner(t, cfg, nil)

		state := NewScanState(0, start.Add(time.Minute), expiresAfter(2))
		acc := newAccumulator()
		plan, err := s.discoveryStage(context.Background(), state, acc)
		require.NoError(t, err)
		assert.True(t, acc.partial)
		var planned []string
		for _, tier := range plan.tiers {
			planned = append(planned, tier...)
		}
		assert.Equal(t, []string{"mod00.ts", "mod01.ts"}, rels(cfg.Root, planned))

		s.now = expiresAfter(3)
		res, err := s.Run(context.Background(), false)
		require.NoError(t, err)
		assert.True(t, res.Partial)
		assert.Zero(t, res.Index.Len())
	})
}

func TestScanner_Idempotent(t *testing.T) {
	cfg := workspace(t, map[string]string{
		"a.ts": "container.bind(TYPES.A).to(AImpl);\ncontainer.bind(TYPES.A).to(AltImpl);",
		"b.ts": "container.bind(TYPES.B).toSelf();",
		"c.ts": "import { Container } from 'inversify';",
	})
	s := newScanner(t, cfg, nil)

	first, err := s.Run(context.Background(), false)
	require.NoError(t, err)
	second, err := s.Run(context.Background(), false)
	require.NoError(t, err)

	assert.ElementsMatch(t, first.Index.Bindings(), second.Index.Bindings())
	assert.Equal(t, first.Index.Keys(), second.Index.Keys())
	assert.Equal(t, first.Files, second.Files)
	assert.Equal(t, 3, first.Index.Len())
}

func TestScanner_Cache(t *testing.T) {
	cfg := workspace(t, scenarioFiles)
	cfg.UseCache = true
	store, err := storage.NewSQLiteStore(storage.DefaultPath(cfg.Root, cfg.CacheDir))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	first, err := newScanner(t, cfg, store).Run(ctx, false)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	t.Run("hit", func(t *testing.T) {
		res, err := newScanner(t, cfg, store).Run(ctx, false)
		require.NoError(t, err)
		assert.True(t, res.FromCache)
		assert.Equal(t, first.Index.Bindings(), res.Index.Bindings())
		assert.Equal(t, first.Files, res.Files)
		_, ok := res.Services.Get("ConsoleLogger")
		assert.True(t, ok, "services come from the cache too")
		token, _ := res.Injections.InterfaceToken("ILogger")
		assert.Equal(t, "TYPES.Logger", token)
	})

	t.Run("force", func(t *testing.T) {
		res, err := newScanner(t, cfg, store).Run(ctx, true)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	})

	t.Run("config hash change", func(t *testing.T) {
		changed := *cfg
		changed.MaxScanDepth = cfg.MaxScanDepth + 1
		require.NotEqual(t, cfg.Hash(), changed.Hash())

		res, err := newScanner(t, &changed, store).Run(ctx, false)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	})

	t.Run("expired", func(t *testing.T) {
		// the previous subtest saved under the changed hash; save under cfg again
		_, err := newScanner(t, cfg, store).Run(ctx, true)
		require.NoError(t, err)

		s := newScanner(t, cfg, store)
		s.now = func() time.Time { return time.Now().Add(cfg.CacheMaxAge.Duration + time.Hour) }
		res, err := s.Run(ctx, false)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	})
}

func TestScanner_CacheKeepsPartialFlag(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("src/mod%02d.ts", i)] = fmt.Sprintf("container.bind(TYPES.S%d).to(Impl%d);\n", i, i)
	}
	cfg := workspace(t, files)
	cfg.UseCache = true
	cfg.MaxFilesToScan = 5
	store, err := storage.NewSQLiteStore(storage.DefaultPath(cfg.Root, cfg.CacheDir))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	first, err := newScanner(t, cfg, store).Run(ctx, false)
	require.NoError(t, err)
	require.False(t, first.FromCache)
	require.True(t, first.Partial)

	res, err := newScanner(t, cfg, store).Run(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.True(t, res.Partial)
	assert.Equal(t, first.Index.Len(), res.Index.Len())
}

func TestScanner_CacheTracksWorkspaceFiles(t *testing.T) {
	cfg := workspace(t, map[string]string{
		"src/container.ts": "container.bind(TYPES.A).to(NewImpl);",
		"legacy/old.ts":    "container.bind(TYPES.A).to(OldImpl);",
	})
	cfg.UseCache = true
	store, err := storage.NewSQLiteStore(storage.DefaultPath(cfg.Root, cfg.CacheDir))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	first, err := newScanner(t, cfg, store).Run(ctx, false)
	require.NoError(t, err)
	require.Len(t, first.Index.Lookup("TYPES.A"), 2)

	t.Run("ignore file edited", func(t *testing.T) {
		require.NoError(t, os.WriteFile(cfg.Path(cfg.IgnoreFile), []byte("legacy/\n"), 0o644))

		res, err := newScanner(t, cfg, store).Run(ctx, false)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
		hits := res.Index.Lookup("TYPES.A")
		require.Len(t, hits, 1)
		assert.Equal(t, "NewImpl", hits[0].Implementation)

		res, err = newScanner(t, cfg, store).Run(ctx, false)
		require.NoError(t, err)
		assert.True(t, res.FromCache, "unchanged files reuse the cache")
	})

	t.Run("tsconfig edited", func(t *testing.T) {
		tsconfig := `{ "compilerOptions": { "baseUrl": ".", "paths": { "@app/*": ["src/*"] } } }`
		require.NoError(t, os.WriteFile(cfg.Path(cfg.Tsconfig), []byte(tsconfig), 0o644))

		res, err := newScanner(t, cfg, store).Run(ctx, false)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	})
}

func TestScanner_CycleVisitedOnce(t *testing.T) {
	cfg := workspace(t, map[string]string{
		"a.ts": `import { registerB } from "./b";
export function registerA() { container.bind(TYPES.A).to(AImpl); }`,
		"b.ts": `import { registerA } from "./a";
export function registerB() { container.bind(TYPES.B).to(BImpl); }`,
	})
	res, err := newScanner(t, cfg, nil).Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ts", "b.ts"}, rels(cfg.Root, res.Files))
	assert.Equal(t, 2, res.Index.Len())
}

func TestScanner_FollowsBeyondContainerCap(t *testing.T) {
	files := map[string]string{
		"main.ts": `export * from "./extra";
container.bind(TYPES.Main).to(MainImpl);`,
		"extra.ts": `import { Container } from "inversify";
export const load = (c: Container) => c.get(TYPES.Main);`,
	}

	t.Run("followed", func(t *testing.T) {
		cfg := workspace(t, files)
		cfg.MaxContainerFiles = 0
		res, err := newScanner(t, cfg, nil).Run(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"extra.ts", "main.ts"}, rels(cfg.Root, res.Files))
	})

	t.Run("depth zero", func(t *testing.T) {
		cfg := workspace(t, files)
		cfg.MaxContainerFiles = 0
		cfg.MaxScanDepth = 0
		res, err := newScanner(t, cfg, nil).Run(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"main.ts"}, rels(cfg.Root, res.Files))
	})
}

func TestScanner_ConfiguredPaths(t *testing.T) {
	cfg := workspace(t, map[string]string{
		"src/ioc/setup.ts": "export const nothing = 1;",
		"src/other.ts":     "export const other = 2;",
	})
	cfg.ConfigPaths = []string{"src/ioc/*.ts"}

	res, err := newScanner(t, cfg, nil).Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/ioc/setup.ts"}, rels(cfg.Root, res.Files))
}

func TestScanner_ParseFailureIsDiagnostic(t *testing.T) {
	cfg := workspace(t, map[string]string{
		"bad.ts":  "container.bind(TYPES.Bad).to(\xff\xfe);",
		"good.ts": "container.bind(TYPES.Good).to(GoodImpl);",
	})
	res, err := newScanner(t, cfg, nil).Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Index.Len())
	var warned bool
	for _, d := range res.Diagnostics {
		if d.Severity == extractor.SeverityWarning && filepath.Base(d.File) == "bad.ts" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestScanner_EmptyWorkspace(t *testing.T) {
	cfg := workspace(t, nil)
	res, err := newScanner(t, cfg, nil).Run(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, res.Index.Len())
	assert.Empty(t, res.Files)
	assert.False(t, res.Partial)
}

func TestScanner_MissingRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Root = filepath.Join(t.TempDir(), "missing")
	cfg.UseCache = false
	_, err := newScanner(t, cfg, nil).Run(context.Background(), false)
	assert.Error(t, err)
}
