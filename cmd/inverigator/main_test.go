package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inverigator/internal/config"
	"inverigator/internal/resolver"
	"inverigator/internal/storage"
)

type closeCountingStore struct {
	storage.CacheStore
	closed int
}

func (s *closeCountingStore) Close() error {
	s.closed++
	return s.CacheStore.Close()
}

func TestResolveClosesStore(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "container.ts"), []byte(
		"container.bind(TYPES.Logger).to(ConsoleLogger);\ncontainer.bind(TYPES.Logger).to(FileLogger);\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "logger.ts"), []byte(
		"export class ConsoleLogger {}\nexport class FileLogger {}\n"), 0o644))

	cases := []struct {
		name   string
		symbol string
		pick   fixedChooser
		code   int
		output string
	}{
		{"found", "TYPES.Logger", 0, 0, "🔎 TYPES.Logger -> "},
		{"no implementation", "Nothing", 0, 1, `No implementation found for "Nothing"`},
		{"choice cancelled", "TYPES.Logger", 5, 1, "🚫"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Root = root
			cfg.UseCache = true

			a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
			require.NoError(t, err)
			require.NotNil(t, a.store)
			store := &closeCountingStore{CacheStore: a.store}
			a.store = store

			var out bytes.Buffer
			code := a.run(func(a *app) int {
				return a.resolve(context.Background(), resolver.Query{Symbol: tc.symbol}, tc.pick, &out)
			})

			assert.Equal(t, tc.code, code)
			assert.Contains(t, out.String(), tc.output)
			assert.Equal(t, 1, store.closed)
		})
	}
}
