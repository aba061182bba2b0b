package pipeline

import (
	"errors"
	"fmt"
	"time"

	"inverigator/internal/analysis"
	"inverigator/internal/index"
	"inverigator/internal/storage"
)

// ErrCacheInvalid means a stored snapshot cannot be reused. It never
// reaches the user; the scanner falls back to a full scan.
var ErrCacheInvalid = errors.New("cache invalid")

func validateSnapshot(snap *storage.Snapshot, configHash string, maxAge time.Duration, now time.Time) error {
	switch {
	case snap.Version != storage.FormatVersion:
		return fmt.Errorf("%w: version %q, want %q", ErrCacheInvalid, snap.Version, storage.FormatVersion)
	case snap.ConfigHash != configHash:
		return fmt.Errorf("%w: configuration changed", ErrCacheInvalid)
	case maxAge > 0 && now.Sub(snap.SavedAt) > maxAge:
		return fmt.Errorf("%w: saved %s ago, max age %s", ErrCacheInvalid, now.Sub(snap.SavedAt).Round(time.Second), maxAge)
	}
	return nil
}

func resultFromSnapshot(snap *storage.Snapshot) *Result {
	services := analysis.NewServiceMap()
	services.Add(snap.Services...)
	injections := analysis.NewInjectionMap()
	injections.Add(snap.Injections...)
	injections.AddClasses(snap.Classes...)
	return &Result{
		Index:      index.FromBindings(snap.Bindings),
		Services:   services,
		Injections: injections,
		Files:      snap.Files,
		FromCache:  true,
		Partial:    snap.Partial,
	}
}

func snapshotFromResult(r *Result, configHash string, now time.Time) *storage.Snapshot {
	return &storage.Snapshot{
		Version:    storage.FormatVersion,
		ConfigHash: configHash,
		SavedAt:    now,
		Partial:    r.Partial,
		Bindings:   r.Index.Bindings(),
		Injections: r.Injections.Mappings(),
		Services:   r.Services.All(),
		Classes:    r.Injections.Classes(),
		Files:      r.Files,
	}
}
