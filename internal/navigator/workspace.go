package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"inverigator/internal/extractor"
	"inverigator/internal/pipeline"
	"inverigator/internal/resolver"
)

var (
	// ErrChoiceCancelled is returned when the user dismisses a
	// disambiguation list.
	ErrChoiceCancelled = errors.New("choice cancelled")
	ErrNotScanned      = errors.New("workspace has not been scanned")
)

// Snapshot is one complete scan result. It is never mutated after it is
// published.
type Snapshot struct {
	resolver.Indexes
	Files       []string
	Diagnostics []extractor.Diagnostic
	FromCache   bool
	Partial     bool
	ScannedAt   time.Time
}

// Scanner produces scan results; *pipeline.Scanner implements it.
type Scanner interface {
	Run(ctx context.Context, force bool) (*pipeline.Result, error)
}

// Choice is one entry of a disambiguation list.
type Choice struct {
	Label  string
	Detail string
}

// Chooser presents a single-choice list and returns the selected index.
type Chooser interface {
	Choose(ctx context.Context, title string, choices []Choice) (int, error)
}

// Opener opens a file with the cursor at loc.
type Opener interface {
	Open(ctx context.Context, loc resolver.Location) error
}

// Target is where a navigation ended up.
type Target struct {
	Binding    extractor.Binding
	Location   resolver.Location
	Resolution *resolver.Resolution
	// Fallback is set when the declaration was not found and the
	// registration site was opened instead.
	Fallback bool
}

// Workspace serves navigation requests from the latest published snapshot.
// Resolution never waits for a rescan; it sees the previous snapshot until
// the new one is swapped in.
type Workspace struct {
	root      string
	scanner   Scanner
	files     resolver.FileLister
	chain     *resolver.Chain
	logger    *slog.Logger
	now       func() time.Time
	snapshot  atomic.Pointer[Snapshot]
	refreshMu sync.Mutex
}

func New(root string, scanner Scanner, files resolver.FileLister, chain *resolver.Chain, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	if chain == nil {
		chain = resolver.NewDefaultChain(resolver.Options{})
	}
	return &Workspace{
		root:    root,
		scanner: scanner,
		files:   files,
		chain:   chain,
		logger:  logger,
		now:     time.Now,
	}
}

// Snapshot returns the current snapshot, or nil before the first scan.
func (w *Workspace) Snapshot() *Snapshot {
	return w.snapshot.Load()
}

// Refresh scans and publishes a new snapshot. Concurrent refreshes run one
// after another; a failed scan keeps the previous snapshot.
func (w *Workspace) Refresh(ctx context.Context, force bool) (*Snapshot, error) {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	res, err := w.scanner.Run(ctx, force)
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	snap := &Snapshot{
		Indexes: resolver.Indexes{
			Bindings:   res.Index,
			Services:   res.Services,
			Injections: res.Injections,
		},
		Files:       res.Files,
		Diagnostics: res.Diagnostics,
		FromCache:   res.FromCache,
		Partial:     res.Partial,
		ScannedAt:   w.now(),
	}
	w.snapshot.Store(snap)
	return snap, nil
}

// Resolve runs the resolver chain against the current snapshot.
func (w *Workspace) Resolve(q resolver.Query) (*resolver.Resolution, error) {
	snap := w.snapshot.Load()
	if snap == nil {
		return nil, ErrNotScanned
	}
	return w.chain.Resolve(q, snap.Indexes)
}

// GoToImplementation resolves q, asks chooser when more than one candidate
// exists, locates the chosen implementation and opens it.
func (w *Workspace) GoToImplementation(ctx context.Context, q resolver.Query, chooser Chooser, opener Opener) (*Target, error) {
	snap := w.snapshot.Load()
	if snap == nil {
		return nil, ErrNotScanned
	}
	res, err := w.chain.Resolve(q, snap.Indexes)
	if err != nil {
		return nil, err
	}

	chosen, err := w.pick(ctx, res, chooser)
	if err != nil {
		return nil, err
	}

	target := &Target{Binding: chosen, Resolution: res}
	loc, err := resolver.NewLocator(snap.Services, w.files).Locate(ctx, chosen)
	switch {
	case err == nil:
		target.Location = loc
	case errors.Is(err, resolver.ErrDeclarationNotFound):
		w.logger.Debug("declaration not found, opening registration site",
			"implementation", chosen.Implementation,
			"file", chosen.SourceFile,
			"line", chosen.SourceLine)
		target.Location = resolver.Location{File: chosen.SourceFile, Line: chosen.SourceLine}
		target.Fallback = true
	default:
		return nil, err
	}

	if opener != nil {
		if err := opener.Open(ctx, target.Location); err != nil {
			return nil, fmt.Errorf("open %s: %w", target.Location.File, err)
		}
	}
	return target, nil
}

func (w *Workspace) pick(ctx context.Context, res *resolver.Resolution, chooser Chooser) (extractor.Binding, error) {
	if !res.Ambiguous() {
		return res.Candidates[0], nil
	}
	if chooser == nil {
		return extractor.Binding{}, fmt.Errorf("%d implementations of %q and no way to choose: %w",
			len(res.Candidates), res.Symbol, ErrChoiceCancelled)
	}

	choices := make([]Choice, len(res.Candidates))
	for i, b := range res.Candidates {
		choices[i] = Choice{Label: b.Implementation, Detail: w.describe(b)}
	}
	i, err := chooser.Choose(ctx, fmt.Sprintf("Implementations of %s", res.Symbol), choices)
	if err != nil {
		return extractor.Binding{}, err
	}
	if i < 0 || i >= len(res.Candidates) {
		return extractor.Binding{}, ErrChoiceCancelled
	}
	return res.Candidates[i], nil
}

// describe renders "src/container.ts:12 (TYPES.Logger)" with a 1-based line.
func (w *Workspace) describe(b extractor.Binding) string {
	file := b.SourceFile
	if w.root != "" {
		if rel, err := filepath.Rel(w.root, file); err == nil {
			file = filepath.ToSlash(rel)
		}
	}
	return fmt.Sprintf("%s:%d (%s)", file, b.SourceLine+1, b.Token)
}
