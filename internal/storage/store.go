package storage

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"inverigator/internal/analysis"
	"inverigator/internal/extractor"
)

// FormatVersion tags the logical cache layout. Snapshots with another
// version are rejected by the reader.
const FormatVersion = "4"

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no cached snapshot")

// Snapshot is the persisted outcome of one scan.
type Snapshot struct {
	Version    string
	ConfigHash string
	SavedAt    time.Time
	// Partial marks a scan cut short by a file or time budget.
	Partial    bool
	Bindings   []extractor.Binding
	Injections []analysis.InjectionMapping
	Services   []analysis.ServiceInfo
	Classes    []analysis.ClassSpan
	Files      []string
}

// CacheStore persists scan snapshots. Save replaces the previous snapshot
// wholesale.
type CacheStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
	Close() error
}

// DefaultPath is where a workspace keeps its cache database.
func DefaultPath(root, cacheDir string) string {
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(root, cacheDir)
	}
	return filepath.Join(cacheDir, "cache.db")
}
