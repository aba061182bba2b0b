package crawler

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"inverigator/internal/parser"
)

// Crawler enumerates the workspace's source files. Excluded directories are
// pruned during the walk, so nothing under them is ever read.
type Crawler struct {
	root   string
	ignore *IgnoreSet
	logger *slog.Logger
}

// NewCrawler creates a crawler rooted at root. A nil ignore set excludes
// nothing; a nil logger uses slog.Default().
func NewCrawler(root string, ignore *IgnoreSet, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{root: root, ignore: ignore, logger: logger}
}

func (c *Crawler) Root() string { return c.root }

// Rel returns path relative to the root with forward slashes.
func (c *Crawler) Rel(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Excluded reports whether an absolute path falls under an ignore pattern.
func (c *Crawler) Excluded(path string, isDir bool) bool {
	return c.ignore.Match(c.Rel(path), isDir)
}

// ScanProject walks the root and streams every supported, non-excluded
// source file to onFile. Unreadable directories are logged and skipped.
func (c *Crawler) ScanProject(ctx context.Context, onFile func(path string) error) error {
	return filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.root {
				return err
			}
			c.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != c.root && c.Excluded(path, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !parser.Supports(path) || c.Excluded(path, false) {
			return nil
		}
		return onFile(path)
	})
}

// Files collects ScanProject's output in walk order.
func (c *Crawler) Files(ctx context.Context) ([]string, error) {
	var files []string
	err := c.ScanProject(ctx, func(path string) error {
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", c.root, err)
	}
	return files, nil
}
