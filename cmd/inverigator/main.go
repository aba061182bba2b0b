package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"inverigator/internal/config"
	"inverigator/internal/crawler"
	"inverigator/internal/extractor"
	"inverigator/internal/git"
	"inverigator/internal/navigator"
	"inverigator/internal/pipeline"
	"inverigator/internal/resolver"
	"inverigator/internal/storage"
	"inverigator/internal/watch"
)

var (
	rootCmd = &cobra.Command{
		Use:   "inverigator",
		Short: "Find inversify bindings and jump from tokens to implementations",
	}
	rootDir  string
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", ".", "Workspace root (holds .inverigator.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log_level (debug, info, warn, error)")

	scanCmd.Flags().Bool("force", false, "Ignore the cache and rescan")
	scanCmd.Flags().BoolP("verbose", "v", false, "Print extraction diagnostics")
	scanCmd.Flags().String("since", "", "Rescan when container files changed since this git ref")

	resolveCmd.Flags().StringP("file", "f", "", "File containing the symbol")
	resolveCmd.Flags().IntP("line", "l", 0, "1-based line of the symbol")
	resolveCmd.Flags().String("line-text", "", "Text of the line (read from --file when empty)")
	resolveCmd.Flags().Int("pick", 0, "1-based candidate to open when several implementations exist")

	bindingsCmd.Flags().StringP("key", "k", "", "Only show bindings for this token")
	bindingsCmd.Flags().Bool("json", false, "Print the index as JSON")

	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(bindingsCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
}

// app is everything a command needs, wired from the workspace config.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     storage.CacheStore
	scanner   *pipeline.Scanner
	workspace *navigator.Workspace
}

func setup() *app {
	cfg, err := config.Load(rootDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	a, err := newApp(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create scanner: %v", err)
	}
	return a
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	// 1. Cache store
	var store storage.CacheStore
	if cfg.UseCache {
		s, err := storage.NewSQLiteStore(storage.DefaultPath(cfg.Root, cfg.CacheDir))
		if err != nil {
			// scanning still works without a cache
			logger.Warn("cache disabled", "error", err)
		} else {
			store = s
		}
	}

	// 2. Scanner
	scanner, err := pipeline.NewScanner(cfg, store, logger)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	// 3. Workspace
	chain := resolver.NewDefaultChain(resolver.Options{GlobalPropertyFallback: cfg.GlobalPropertyFallback})
	ws := navigator.New(cfg.Root, scanner, scanner.Crawler(), chain, logger)

	return &app{cfg: cfg, logger: logger, store: store, scanner: scanner, workspace: ws}, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// run calls fn and closes a before returning fn's exit code, so callers
// can os.Exit without leaking the cache handle.
func (a *app) run(fn func(*app) int) int {
	defer a.Close()
	return fn(a)
}

func (a *app) rel(path string) string {
	if rel, err := filepath.Rel(a.cfg.Root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

func (a *app) refresh(ctx context.Context, force bool) *navigator.Snapshot {
	snap, err := a.workspace.Refresh(ctx, force)
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
	return snap
}

func printSummary(a *app, snap *navigator.Snapshot) {
	source := "scanned"
	if snap.FromCache {
		source = "from cache"
	}
	fmt.Printf("✅ %d bindings, %d services, %d injections in %d files (%s)\n",
		snap.Bindings.Len(), snap.Services.Len(), snap.Injections.Len(), len(snap.Files), source)
	if snap.Partial {
		fmt.Printf("⚠️  Scan stopped early (max_files_to_scan=%d, scan_timeout=%s)\n",
			a.cfg.MaxFilesToScan, a.cfg.ScanTimeout.Duration)
	}
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the workspace for container bindings",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		verbose, _ := cmd.Flags().GetBool("verbose")
		since, _ := cmd.Flags().GetString("since")

		a := setup()
		defer a.Close()

		if since != "" && !force {
			force = a.changedSince(cmd.Context(), since)
		}

		fmt.Printf("📂 Scanning workspace: %s\n", a.cfg.Root)
		snap := a.refresh(cmd.Context(), force)
		printSummary(a, snap)

		if verbose {
			for _, d := range snap.Diagnostics {
				fmt.Printf("   %s %s:%d %s\n", severityIcon(d.Severity), a.rel(d.File), d.Line+1, d.Message)
			}
		}
	},
}

// changedSince reports whether git shows container-like files changed
// since ref. Git errors only cost the shortcut.
func (a *app) changedSince(ctx context.Context, ref string) bool {
	files, err := git.ChangedFiles(ctx, a.cfg.Root, ref)
	if err != nil {
		a.logger.Warn("git diff unavailable", "ref", ref, "error", err)
		return false
	}
	paths, err := crawler.NewPathPatterns(a.cfg.ConfigPaths)
	if err != nil {
		log.Fatalf("Invalid config_paths: %v", err)
	}
	filter := watch.NewFilter(a.scanner.Crawler(), paths)
	for _, f := range files {
		if filter.Relevant(f) {
			fmt.Printf("📝 %s changed since %s\n", a.rel(f), ref)
			return true
		}
	}
	return false
}

func severityIcon(s extractor.Severity) string {
	if s == extractor.SeverityWarning {
		return "⚠️ "
	}
	return "ℹ️ "
}

var resolveCmd = &cobra.Command{
	Use:   "resolve SYMBOL",
	Short: "Resolve a token, interface or injected property to its implementation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		line, _ := cmd.Flags().GetInt("line")
		lineText, _ := cmd.Flags().GetString("line-text")
		pick, _ := cmd.Flags().GetInt("pick")

		q := resolver.Query{Symbol: args[0], LineText: lineText}
		if file != "" {
			abs, err := filepath.Abs(file)
			if err != nil {
				log.Fatalf("Invalid file: %v", err)
			}
			q.File = abs
		}
		if line > 0 {
			q.Line = line - 1
			if q.LineText == "" && q.File != "" {
				q.LineText = readLine(q.File, q.Line)
			}
		}

		var chooser navigator.Chooser = newPromptChooser(os.Stdin, os.Stdout)
		if pick > 0 {
			chooser = fixedChooser(pick - 1)
		}

		code := setup().run(func(a *app) int {
			return a.resolve(cmd.Context(), q, chooser, os.Stdout)
		})
		if code != 0 {
			os.Exit(code)
		}
	},
}

// resolve prints where q's implementation lives and returns the process
// exit code: 1 when nothing matched or the choice was cancelled.
func (a *app) resolve(ctx context.Context, q resolver.Query, chooser navigator.Chooser, out io.Writer) int {
	snap, err := a.workspace.Refresh(ctx, false)
	if err != nil {
		fmt.Fprintf(out, "Scan failed: %v\n", err)
		return 1
	}
	if snap.Partial {
		fmt.Fprintln(out, "⚠️  Index is partial; results may be incomplete")
	}

	target, err := a.workspace.GoToImplementation(ctx, q, chooser, printOpener{rel: a.rel, out: out})
	switch {
	case err == nil:
	case errors.Is(err, resolver.ErrNoImplementation):
		fmt.Fprintf(out, "❌ No implementation found for %q\n", q.Symbol)
		return 1
	case errors.Is(err, navigator.ErrChoiceCancelled):
		fmt.Fprintf(out, "🚫 %v\n", err)
		return 1
	default:
		a.logger.Error("resolve failed", "symbol", q.Symbol, "error", err)
		fmt.Fprintf(out, "Resolve failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "🔎 %s -> %s (%s, via %s)\n", q.Symbol, target.Binding.Implementation, target.Binding.Token, target.Resolution.Strategy)
	if target.Fallback {
		fmt.Fprintln(out, "   declaration not found; showing the registration site")
	}
	return 0
}

// readLine returns the 0-based line of path, or "" when unavailable.
func readLine(path string, line int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for i := 0; sc.Scan(); i++ {
		if i == line {
			return sc.Text()
		}
	}
	return ""
}

var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "List discovered bindings",
	Run: func(cmd *cobra.Command, args []string) {
		key, _ := cmd.Flags().GetString("key")
		asJSON, _ := cmd.Flags().GetBool("json")

		a := setup()
		defer a.Close()
		snap := a.refresh(cmd.Context(), false)

		if asJSON {
			if err := snap.Bindings.WriteJSON(os.Stdout); err != nil {
				log.Fatalf("%v", err)
			}
			return
		}

		keys := snap.Bindings.Keys()
		if key != "" {
			keys = []string{key}
		}
		for _, k := range keys {
			bs := snap.Bindings.Lookup(k)
			if len(bs) == 0 {
				fmt.Printf("❌ No bindings for %s\n", k)
				continue
			}
			fmt.Printf("🔑 %s\n", k)
			for _, b := range bs {
				fmt.Printf("   -> %s  %s:%d [%s]\n", b.Implementation, a.rel(b.SourceFile), b.SourceLine+1, b.Kind)
			}
		}
	},
}

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List classes recognised as injectable services",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup()
		defer a.Close()
		snap := a.refresh(cmd.Context(), false)

		for _, s := range snap.Services.All() {
			fmt.Printf("🧩 %s  %s:%d\n", s.ClassName, a.rel(s.SourceFile), s.SourceLine+1)
			if len(s.MethodNames) > 0 {
				fmt.Printf("   %s\n", strings.Join(s.MethodNames, ", "))
			}
		}
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rescan when container or registry files are saved",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup()
		defer a.Close()

		if !a.cfg.AutoRescanOnSave {
			fmt.Println("⏸️  auto_rescan_on_save is disabled")
			return
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		printSummary(a, a.refresh(ctx, false))

		paths, err := crawler.NewPathPatterns(a.cfg.ConfigPaths)
		if err != nil {
			log.Fatalf("Invalid config_paths: %v", err)
		}
		w := watch.New(watch.NewFilter(a.scanner.Crawler(), paths), func(ctx context.Context) error {
			snap, err := a.workspace.Refresh(ctx, true)
			if err != nil {
				return err
			}
			fmt.Print("🔄 ")
			printSummary(a, snap)
			return nil
		}, watch.DefaultDebounce, a.logger)

		fmt.Println("👀 Watching for changes (Ctrl+C to stop)")
		if err := w.Run(ctx); err != nil {
			log.Fatalf("Watch failed: %v", err)
		}
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the scan cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the cached scan",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup()
		defer a.Close()

		if a.store == nil {
			fmt.Println("✅ Cache is disabled; nothing to clear")
			return
		}
		if err := a.store.Clear(cmd.Context()); err != nil {
			log.Fatalf("Failed to clear cache: %v", err)
		}
		fmt.Println("🧹 Cache cleared")
	},
}
