package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"inverigator/internal/analysis"
	"inverigator/internal/config"
	"inverigator/internal/crawler"
	"inverigator/internal/extractor"
	"inverigator/internal/graph"
	"inverigator/internal/index"
	"inverigator/internal/parser"
	"inverigator/internal/storage"
)

// Result is the outcome of one scan.
type Result struct {
	Index       *index.BindingIndex
	Services    *analysis.ServiceMap
	Injections  *analysis.InjectionMap
	Files       []string
	Diagnostics []extractor.Diagnostic
	// FromCache is set when the result was loaded instead of scanned.
	FromCache bool
	// Partial is set when a file or time budget cut the scan short.
	Partial  bool
	Duration time.Duration
}

// Scanner drives a whole-workspace scan: cache check, discovery, binding
// extraction with import following, the service/injection pass, and the
// cache write.
type Scanner struct {
	cfg       *config.Config
	parser    *parser.Parser
	extractor extractor.Extractor
	crawler   *crawler.Crawler
	follower  *graph.Follower
	paths     *crawler.PathPatterns
	store     storage.CacheStore
	cacheHash string
	logger    *slog.Logger
	now       func() time.Time
}

// NewScanner wires a scanner from cfg. store may be nil to disable
// caching regardless of cfg.UseCache.
func NewScanner(cfg *config.Config, store storage.CacheStore, logger *slog.Logger) (*Scanner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ignore, err := crawler.NewIgnoreSet(cfg.IgnorePatterns...)
	if err != nil {
		return nil, err
	}
	if err := ignore.Add(cfg.CacheDir); err != nil {
		return nil, err
	}
	if cfg.IgnoreFile != "" {
		if err := ignore.LoadFile(cfg.Path(cfg.IgnoreFile)); err != nil {
			return nil, err
		}
	}

	paths, err := crawler.NewPathPatterns(cfg.ConfigPaths)
	if err != nil {
		return nil, err
	}

	aliases := graph.NewAliases(cfg.Root, cfg.PathAliases)
	if cfg.Tsconfig != "" {
		ts, err := graph.LoadTsconfig(cfg.Path(cfg.Tsconfig))
		if err != nil {
			// a broken tsconfig only costs alias resolution
			logger.Warn("ignoring tsconfig", "path", cfg.Path(cfg.Tsconfig), "error", err)
		} else {
			aliases.Extend(ts)
		}
	}

	return &Scanner{
		cfg:       cfg,
		parser:    parser.NewParser(),
		extractor: extractor.NewDefault(),
		crawler:   crawler.NewCrawler(cfg.Root, ignore, logger),
		follower:  graph.NewFollower(graph.NewModuleResolver(aliases), logger),
		paths:     paths,
		store:     store,
		cacheHash: cacheHash(cfg),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// cacheHash extends the config fingerprint with the contents of the
// ignore file and tsconfig, which change scan output without changing any
// option. A missing file hashes as empty.
func cacheHash(cfg *config.Config) string {
	h := sha256.New()
	h.Write([]byte(cfg.Hash()))
	for _, name := range []string{cfg.IgnoreFile, cfg.Tsconfig} {
		var content []byte
		if name != "" {
			content, _ = os.ReadFile(cfg.Path(name))
		}
		sum := sha256.Sum256(content)
		h.Write([]byte{0})
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Crawler exposes the workspace enumerator, e.g. for watch filtering.
func (s *Scanner) Crawler() *crawler.Crawler { return s.crawler }

// Run scans the workspace. force skips the cache read. Budget exhaustion
// yields a partial result, not an error; only enumeration of the root
// itself can fail.
func (s *Scanner) Run(ctx context.Context, force bool) (*Result, error) {
	start := s.now()

	if !force {
		if res, ok := s.cacheCheckStage(ctx); ok {
			res.Duration = s.now().Sub(start)
			return res, nil
		}
	}

	var deadline time.Time
	if s.cfg.ScanTimeout.Duration > 0 {
		deadline = start.Add(s.cfg.ScanTimeout.Duration)
	}
	state := NewScanState(s.cfg.MaxFilesToScan, deadline, s.now)

	acc := newAccumulator()
	plan, err := s.discoveryStage(ctx, state, acc)
	if err != nil {
		return nil, err
	}

	s.extractionStage(ctx, state, plan, acc)
	s.analysisStage(ctx, state, plan.classFiles, acc)

	res := s.completionStage(ctx, state, acc)
	res.Duration = s.now().Sub(start)
	s.logger.Info("scan complete",
		"files", len(res.Files),
		"bindings", res.Index.Len(),
		"services", res.Services.Len(),
		"injections", res.Injections.Len(),
		"partial", res.Partial,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

func (s *Scanner) useCache() bool {
	return s.cfg.UseCache && s.store != nil
}

func (s *Scanner) cacheCheckStage(ctx context.Context) (*Result, bool) {
	if !s.useCache() {
		return nil, false
	}
	snap, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNoSnapshot) {
			s.logger.Debug("cache unreadable", "error", err)
		}
		return nil, false
	}
	if err := validateSnapshot(snap, s.cacheHash, s.cfg.CacheMaxAge.Duration, s.now()); err != nil {
		s.logger.Debug("cache rejected", "error", err)
		return nil, false
	}
	s.logger.Debug("using cached scan", "bindings", len(snap.Bindings), "saved_at", snap.SavedAt)
	return resultFromSnapshot(snap), true
}

type scanPlan struct {
	// configured, then has-bindings, then capped mentions-container files
	tiers      [][]string
	classFiles []string
}

// discoveryStage classifies the enumerated files into tiers. The deadline
// is checked before every read; when it passes, the files classified so
// far make up the plan and the scan is marked partial.
func (s *Scanner) discoveryStage(ctx context.Context, state *ScanState, acc *accumulator) (*scanPlan, error) {
	files, err := s.crawler.Files(ctx)
	if err != nil {
		return nil, err
	}

	var configured, hasBindings, mentions, classFiles []string
	for i, path := range files {
		if state.Expired() {
			acc.partial = true
			s.logger.Info("scan deadline reached during discovery", "classified", i, "remaining", len(files)-i)
			break
		}
		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable file", "file", path, "error", err)
			continue
		}
		if crawler.DeclaresClasses(content) {
			classFiles = append(classFiles, path)
		}
		if s.paths.Match(s.crawler.Rel(path)) {
			configured = append(configured, path)
			continue
		}
		switch crawler.Classify(content) {
		case crawler.ClassHasBindings:
			hasBindings = append(hasBindings, path)
		case crawler.ClassMentionsContainer:
			mentions = append(mentions, path)
		}
	}
	if len(mentions) > s.cfg.MaxContainerFiles {
		mentions = mentions[:s.cfg.MaxContainerFiles]
	}

	s.logger.Debug("discovery complete",
		"files", len(files),
		"configured", len(configured),
		"has_bindings", len(hasBindings),
		"mentions_container", len(mentions),
		"class_files", len(classFiles))
	return &scanPlan{
		tiers:      [][]string{configured, hasBindings, mentions},
		classFiles: classFiles,
	}, nil
}

type fileOutcome struct {
	path       string
	result     extractor.Result
	analysis   *analysis.FileAnalysis
	candidates []graph.Candidate
	failure    error
}

// extractionStage scans the tiers in priority order, then follows import
// candidates level by level up to MaxScanDepth. Files within a level are
// processed concurrently, BatchSize at a time; outcomes are merged in
// order on this goroutine.
func (s *Scanner) extractionStage(ctx context.Context, state *ScanState, plan *scanPlan, acc *accumulator) {
	var level []string
	for _, tier := range plan.tiers {
		level = append(level, tier...)
	}

	for depth := 0; len(level) > 0; depth++ {
		follow := depth < s.cfg.MaxScanDepth
		outcomes := s.runLevel(ctx, state, level, func(ctx context.Context, path string) fileOutcome {
			return s.extractFile(ctx, path, state, follow)
		})

		var next []string
		for _, o := range outcomes {
			acc.addExtraction(o)
			for _, c := range o.candidates {
				if state.Visited(c.Path) || s.crawler.Excluded(c.Path, false) || !parser.Supports(c.Path) {
					continue
				}
				s.logger.Debug("following import", "file", o.path, "target", c.Path, "reason", c.Reason, "depth", depth+1)
				next = append(next, c.Path)
			}
		}
		if state.Exhausted() {
			return
		}
		level = next
	}
}

// runLevel reserves budget per file, in order, and runs fn on the reserved
// files with at most BatchSize in flight. Files already visited are
// skipped.
func (s *Scanner) runLevel(ctx context.Context, state *ScanState, paths []string, fn func(context.Context, string) fileOutcome) []fileOutcome {
	outcomes := make([]fileOutcome, len(paths))
	scheduled := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchSize())
	for i, path := range paths {
		if !state.Visit(path) {
			continue
		}
		if !state.Reserve() {
			s.logger.Info("scan budget exhausted", "files", state.Reserved())
			break
		}
		scheduled[i] = true
		g.Go(func() error {
			outcomes[i] = fn(gctx, path)
			return nil
		})
	}
	_ = g.Wait()

	out := outcomes[:0]
	for i, o := range outcomes {
		if scheduled[i] {
			out = append(out, o)
		}
	}
	return out
}

func (s *Scanner) batchSize() int {
	if s.cfg.BatchSize < 1 {
		return 1
	}
	return s.cfg.BatchSize
}

func (s *Scanner) extractFile(ctx context.Context, path string, state *ScanState, follow bool) fileOutcome {
	o := fileOutcome{path: path}
	f, err := s.parser.ParseFile(ctx, path)
	if err != nil {
		o.failure = err
		return o
	}
	defer f.Close()

	o.result = s.extractor.Extract(f)
	if crawler.DeclaresClasses(f.Content) {
		fa := analysis.Analyze(f)
		o.analysis = &fa
	}
	if follow {
		o.candidates = s.follower.FollowFrom(f, state)
	}
	return o
}

// analysisStage runs the service and injection pass over class-bearing
// files the extraction stage did not already cover. It is bounded by the
// deadline only.
func (s *Scanner) analysisStage(ctx context.Context, state *ScanState, files []string, acc *accumulator) {
	var pending []string
	for _, path := range files {
		if !acc.analyzed[path] {
			pending = append(pending, path)
		}
	}

	outcomes := make([]fileOutcome, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchSize())
	for i, path := range pending {
		if state.Expired() {
			acc.partial = true
			s.logger.Info("scan deadline reached during service analysis", "remaining", len(pending)-i)
			outcomes = outcomes[:i]
			break
		}
		g.Go(func() error {
			o := fileOutcome{path: path}
			f, err := s.parser.ParseFile(gctx, path)
			if err != nil {
				o.failure = err
				outcomes[i] = o
				return nil
			}
			defer f.Close()
			fa := analysis.Analyze(f)
			o.analysis = &fa
			outcomes[i] = o
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		acc.addAnalysis(o, s.logger)
	}
}

func (s *Scanner) completionStage(ctx context.Context, state *ScanState, acc *accumulator) *Result {
	sort.Strings(acc.files)
	res := &Result{
		Index:       acc.index,
		Services:    acc.services,
		Injections:  acc.injections,
		Files:       acc.files,
		Diagnostics: acc.diagnostics,
		Partial:     acc.partial || state.Exhausted(),
	}
	for _, d := range acc.diagnostics {
		if d.Severity == extractor.SeverityWarning {
			s.logger.Warn(d.Message, "file", d.File, "line", d.Line)
		} else {
			s.logger.Debug(d.Message, "file", d.File, "line", d.Line)
		}
	}

	if s.useCache() {
		if err := s.store.Save(ctx, snapshotFromResult(res, s.cacheHash, s.now())); err != nil {
			s.logger.Warn("failed to write scan cache", "error", err)
		}
	}
	return res
}

type accumulator struct {
	index       *index.BindingIndex
	services    *analysis.ServiceMap
	injections  *analysis.InjectionMap
	files       []string
	diagnostics []extractor.Diagnostic
	analyzed    map[string]bool
	partial     bool
}

func newAccumulator() *accumulator {
	return &accumulator{
		index:      index.New(),
		services:   analysis.NewServiceMap(),
		injections: analysis.NewInjectionMap(),
		analyzed:   make(map[string]bool),
	}
}

func failureDiagnostic(path string, err error) extractor.Diagnostic {
	return extractor.Diagnostic{
		File:     path,
		Severity: extractor.SeverityWarning,
		Message:  fmt.Sprintf("skipped: %v", err),
	}
}

func (a *accumulator) addExtraction(o fileOutcome) {
	if o.failure != nil {
		a.diagnostics = append(a.diagnostics, failureDiagnostic(o.path, o.failure))
		return
	}
	a.files = append(a.files, o.path)
	a.index.AddAll(o.result.Bindings)
	a.diagnostics = append(a.diagnostics, o.result.Diagnostics...)
	if o.analysis != nil {
		a.analyzed[o.path] = true
		a.services.Add(o.analysis.Services...)
		a.injections.AddAnalysis(*o.analysis)
	}
}

func (a *accumulator) addAnalysis(o fileOutcome, logger *slog.Logger) {
	if o.failure != nil {
		logger.Debug("service analysis skipped file", "file", o.path, "error", o.failure)
		return
	}
	if o.analysis == nil || a.analyzed[o.path] {
		return
	}
	a.analyzed[o.path] = true
	a.services.Add(o.analysis.Services...)
	a.injections.AddAnalysis(*o.analysis)
}
