// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/scipsync/scipsync/internal/apperr"
	"github.com/scipsync/scipsync/internal/aquery"
	"github.com/scipsync/scipsync/internal/artifact"
	"github.com/scipsync/scipsync/internal/bazel"
	"github.com/scipsync/scipsync/internal/depgraph"
	"github.com/scipsync/scipsync/internal/indexer"
	"github.com/scipsync/scipsync/internal/project"
	"github.com/scipsync/scipsync/internal/workspace"
)

// enableIndexEnv switches index generation on in the aspect build.
var enableIndexEnv = map[string]string{"ENABLE_SCIP_INDEX_GEN": "true"}

// SyncStats summarizes one sync run.
type SyncStats struct {
	ExtractionSec     float64
	BuildSec          float64
	CopySec           float64
	TotalSec          float64
	TargetsIdentified int
	PassedIndexCount  int
	FailedIndexCount  int
}

// Run executes one sync with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{depth: -1}
	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	if app.root == "" {
		return fmt.Errorf("workspace root is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	runner := app.runner
	if runner == nil {
		runner = bazel.ExecRunner{}
	}

	depth := app.depth
	if depth < 0 {
		depth = cfg.Sync.Depth
	}

	cacheDir := filepath.Join(app.root, cfg.Cache.Dir)
	workers := cfg.Sync.PoolSize()

	client := bazel.NewClient(cfg.Bazel.Binary, runner, logger)
	syncer := artifact.NewSyncer(cacheDir, workers, cfg.Cache.ReservedPrefix, logger)
	ix := indexer.New(cfg.Bazel.AggregatorPath, cfg.Cache.WorkDir, runner, logger)

	logger.Info("Configuration loaded",
		slog.String("root", app.root),
		slog.String("cache_dir", cacheDir),
		slog.Int("depth", depth),
		slog.Int("workers", workers))

	if app.file != "" {
		syncFile(ctx, app.root, cacheDir, app.file, ix, syncer, logger)
	} else if err := syncTargets(ctx, app, cfg, client, syncer, cacheDir, depth, workers, logger); err != nil {
		return err
	}

	if app.watch {
		watchCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return indexer.Watch(watchCtx, app.root, cacheDir, ix, syncer, logger)
	}
	return nil
}

// syncFile is the single-file fast path: look the manifest up in the
// persisted workspace, regenerate that file's index, and register it in
// the cache. A file without a recorded manifest is reported, not an
// error; a full sync is needed to pick it up.
func syncFile(ctx context.Context, root, cacheDir, file string, ix *indexer.Indexer, syncer *artifact.Syncer, logger *slog.Logger) {
	rel := strings.TrimPrefix(file, root+string(os.PathSeparator))

	manifest, err := workspace.ManifestForFile(cacheDir, rel)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			logger.Info("file not found in workspace, run a full sync first",
				slog.String("file", rel))
		} else {
			logger.Warn("workspace lookup failed",
				slog.String("file", rel),
				slog.String("error", err.Error()))
		}
		return
	}

	out, err := ix.IndexFile(ctx, root, rel, manifest)
	if err != nil {
		logger.Warn("file indexing failed", slog.String("file", rel), slog.String("error", err.Error()))
		return
	}
	if err := syncer.Register(out); err != nil {
		logger.Warn("index registration failed", slog.String("file", rel), slog.String("error", err.Error()))
		return
	}
	logger.Info("file index synced", slog.String("file", rel))
}

// syncTargets runs the full pipeline: closure resolution, aspect build,
// action-graph join, workspace population, and digest-gated artifact copy.
func syncTargets(ctx context.Context, app *application, cfg *Config, client *bazel.Client, syncer *artifact.Syncer, cacheDir string, depth, workers int, logger *slog.Logger) error {
	stats := SyncStats{}
	start := time.Now()

	targets := app.targets
	var excludes []string
	if len(targets) == 0 {
		logger.Info("Reading targets from project view file")
		projectTargets, projectExcludes, err := project.Targets(app.root)
		if err != nil {
			logger.Warn("project view unavailable", slog.String("error", err.Error()))
		} else {
			targets, excludes = projectTargets, projectExcludes
		}
	}
	if len(targets) == 0 {
		logger.Info("No targets to sync")
		return nil
	}

	logger.Info("Syncing deps for targets", slog.Int("seeds", len(targets)))
	records, err := client.Query(ctx, app.root, targets, bazel.QueryOptions{
		Kinds:    cfg.Sync.SupportedRules,
		Deps:     true,
		Depth:    depth,
		SoftFail: true,
	})
	if err != nil {
		return err
	}

	graph := depgraph.Transform(records)
	closure, err := depgraph.Resolve(graph, depgraph.Options{
		Seeds:    targets,
		Excludes: excludes,
		Depth:    depth,
		Deps:     true,
	})
	if err != nil {
		return err
	}
	if len(closure) == 0 {
		logger.Info("Found no targets to sync")
		return nil
	}
	stats.TargetsIdentified = len(closure)
	stats.ExtractionSec = time.Since(start).Seconds()

	// Build the tooling first, then the closure with indexing enabled.
	// Index generation is best-effort: many targets legitimately fail, so
	// build errors are logged and the run continues with what was built.
	buildStart := time.Now()
	if err := client.Build(ctx, app.root, cfg.Bazel.ToolingTarget, cfg.Bazel.JavaFlags, nil); err != nil {
		logger.Warn("tooling build failed", slog.String("error", err.Error()))
	}
	logger.Info("Initiating index build", slog.Int("targets", len(closure)))
	if err := client.BuildWithAspect(ctx, app.root, closure.Labels(), cfg.Bazel.Aspect, cfg.Bazel.OutputGroups, cfg.Bazel.JavaFlags, enableIndexEnv); err != nil {
		logger.Warn("index build reported failures", slog.String("error", err.Error()))
	}
	stats.BuildSec = time.Since(buildStart).Seconds()

	outputs := actionGraphOutputs(ctx, app.root, cfg, client, closure, workers, logger)

	store := workspace.Populate(outputs, workspace.PopulateOptions{
		Root:             app.root,
		ManifestMnemonic: cfg.Mnemonics.Manifest,
		SourcesMnemonic:  cfg.Mnemonics.Sources,
		ManifestSuffix:   cfg.Sync.ManifestSuffix,
		SkipPrefixes:     cfg.Sync.SkipPrefixes,
	}, logger)
	if err := store.Save(cacheDir); err != nil {
		logger.Warn("workspace save failed", slog.String("error", err.Error()))
	}

	// Collect generated indexes for targets inside the closure.
	var toCopy []string
	passed := make(map[string]struct{})
	for target, mnemonics := range outputs {
		if !closure.Contains(target) {
			continue
		}
		for _, out := range mnemonics[cfg.Mnemonics.Index] {
			abs := filepath.Join(app.root, out)
			if _, statErr := os.Stat(abs); statErr == nil {
				toCopy = append(toCopy, abs)
				passed[target] = struct{}{}
			}
		}
	}
	stats.PassedIndexCount = len(passed)
	stats.FailedIndexCount = stats.TargetsIdentified - stats.PassedIndexCount

	copyStart := time.Now()
	if err := syncer.Sync(ctx, toCopy); err != nil {
		logger.Warn("artifact sync failed", slog.String("error", err.Error()))
	}
	stats.CopySec = time.Since(copyStart).Seconds()
	stats.TotalSec = time.Since(start).Seconds()

	logger.Info("Sync complete",
		slog.Int("targets_identified", stats.TargetsIdentified),
		slog.Int("passed", stats.PassedIndexCount),
		slog.Int("failed", stats.FailedIndexCount),
		slog.Float64("extraction_sec", stats.ExtractionSec),
		slog.Float64("build_sec", stats.BuildSec),
		slog.Float64("copy_sec", stats.CopySec),
		slog.Float64("total_sec", stats.TotalSec))
	return nil
}

// actionGraphOutputs recovers per-target output paths. Any upstream
// failure degrades to an empty mapping: a target with no recovered
// outputs simply has nothing to index this cycle.
func actionGraphOutputs(ctx context.Context, root string, cfg *Config, client *bazel.Client, closure depgraph.Closure, workers int, logger *slog.Logger) aquery.Outputs {
	data, err := client.ActionGraph(ctx, root, cfg.Mnemonics.All(), closure.Labels(), cfg.Bazel.Aspect, cfg.Bazel.OutputGroups)
	if err != nil {
		logger.Warn("action graph query failed", slog.String("error", err.Error()))
		return aquery.Outputs{}
	}
	graph, err := aquery.Parse(data)
	if err != nil {
		logger.Warn("action graph unreadable", slog.String("error", err.Error()))
		return aquery.Outputs{}
	}
	return aquery.Join(ctx, graph, workers)
}
