// Package indexer drives per-file index generation through the aggregator
// binary produced by the tooling build.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/scipsync/scipsync/internal/bazel"
)

// Indexer generates the index artifact for a single source file from its
// recorded manifest, without touching the build graph.
type Indexer struct {
	// AggregatorPath is the aggregator binary, relative to the workspace
	// root. It is produced by the tooling build step.
	AggregatorPath string
	// WorkDir receives generated artifacts, relative to the workspace root.
	WorkDir string

	runner bazel.Runner
	logger *slog.Logger
}

// New returns an Indexer invoking aggregatorPath with outputs under workDir.
func New(aggregatorPath, workDir string, runner bazel.Runner, logger *slog.Logger) *Indexer {
	return &Indexer{
		AggregatorPath: aggregatorPath,
		WorkDir:        workDir,
		runner:         runner,
		logger:         logger,
	}
}

// IndexFile runs the aggregator for file (relative to root) against
// manifest and returns the path of the generated artifact.
func (ix *Indexer) IndexFile(ctx context.Context, root, file, manifest string) (string, error) {
	workDir := filepath.Join(root, ix.WorkDir)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("indexer: create work dir: %w", err)
	}

	name := strings.NewReplacer("/", "_", ".", "_").Replace(file) + ".scip"
	out := filepath.Join(workDir, name)

	err := ix.runner.Run(ctx, root, nil,
		filepath.Join(root, ix.AggregatorPath),
		"-m", manifest,
		"-f", file,
		"-o", out,
	)
	if err != nil {
		return "", fmt.Errorf("indexer: index %s: %w", file, err)
	}
	ix.logger.Debug("indexer: generated", slog.String("file", file), slog.String("out", out))
	return out, nil
}
