package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"inverigator/internal/crawler"
	"inverigator/internal/parser"
)

// DefaultDebounce coalesces an editor's save burst into one rescan.
const DefaultDebounce = 300 * time.Millisecond

// registryHints mark file names that usually hold container wiring.
var registryHints = []string{"container", "registry", "bindings", "inversify", "ioc", "module"}

// Filter decides which changed paths warrant a rescan.
type Filter struct {
	crawler *crawler.Crawler
	paths   *crawler.PathPatterns
}

func NewFilter(c *crawler.Crawler, paths *crawler.PathPatterns) *Filter {
	return &Filter{crawler: c, paths: paths}
}

// Relevant reports whether a change to path can alter the binding index:
// a supported, non-excluded source file that is either a configured path or
// named like a container/registry file.
func (f *Filter) Relevant(path string) bool {
	if !parser.Supports(path) || f.crawler.Excluded(path, false) {
		return false
	}
	if f.paths != nil && f.paths.Match(f.crawler.Rel(path)) {
		return true
	}
	base := strings.ToLower(filepath.Base(path))
	for _, hint := range registryHints {
		if strings.Contains(base, hint) {
			return true
		}
	}
	return false
}

// Watcher triggers a rescan when relevant files change.
type Watcher struct {
	filter   *Filter
	rescan   func(ctx context.Context) error
	debounce time.Duration
	logger   *slog.Logger
}

func New(filter *Filter, rescan func(ctx context.Context) error, debounce time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{filter: filter, rescan: rescan, debounce: debounce, logger: logger}
}

// Run watches the crawler root until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.filter.crawler.Root()); err != nil {
		return err
	}
	w.logger.Info("watching workspace", "root", w.filter.crawler.Root())

	return w.loop(ctx, fw.Events, fw.Errors, func(dir string) {
		if err := w.addTree(fw, dir); err != nil {
			w.logger.Warn("failed to watch directory", "path", dir, "error", err)
		}
	})
}

// addTree watches dir and every non-excluded directory below it. fsnotify
// is not recursive.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.filter.crawler.Excluded(path, true) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, onNewDir func(string)) error {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending []string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && onNewDir != nil && isDir(ev.Name) && !w.filter.crawler.Excluded(ev.Name, true) {
				onNewDir(ev.Name)
				continue
			}
			if ev.Op == fsnotify.Chmod || !w.filter.Relevant(ev.Name) {
				continue
			}
			w.logger.Debug("relevant change", "path", ev.Name, "op", ev.Op.String())
			pending = append(pending, ev.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-fire:
			fire = nil
			w.logger.Info("rescanning after change", "files", len(pending), "first", pending[0])
			pending = pending[:0]
			if err := w.rescan(ctx); err != nil {
				w.logger.Warn("rescan failed", "error", err)
			}
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
