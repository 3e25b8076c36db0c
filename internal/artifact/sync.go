// Package artifact copies generated index artifacts into the cache
// directory, gated on their content digests, and evicts stale entries.
package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/scipsync/scipsync/internal/checksum"
	"github.com/scipsync/scipsync/internal/workspace"
)

// SidecarSuffix is appended to an artifact's name to form its digest file.
const SidecarSuffix = ".sha256"

// outputRootMarker splits a bazel output path; the cache name is derived
// from everything after it.
const outputRootMarker = string(os.PathSeparator) + "bin" + string(os.PathSeparator)

// Syncer copies artifacts into CacheDir with digest gating.
type Syncer struct {
	CacheDir string
	// Workers bounds the copy/cleanup pool.
	Workers int
	// ReservedPrefix marks long-lived shared artifacts exempt from eviction.
	ReservedPrefix string

	logger *slog.Logger
}

// NewSyncer returns a Syncer writing into cacheDir.
func NewSyncer(cacheDir string, workers int, reservedPrefix string, logger *slog.Logger) *Syncer {
	if workers < 1 {
		workers = 1
	}
	return &Syncer{
		CacheDir:       cacheDir,
		Workers:        workers,
		ReservedPrefix: reservedPrefix,
		logger:         logger,
	}
}

// Sync brings the cache in line with the given artifact paths. Artifacts
// whose sidecar digest matches the cached one are skipped; the rest are
// copied together with their sidecars. Afterwards every cache entry that
// is neither still valid, reserved, nor the workspace document is
// deleted. A per-artifact failure is logged and the name dropped from the
// valid set; it never aborts the batch.
func (s *Syncer) Sync(ctx context.Context, artifacts []string) error {
	if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
		return fmt.Errorf("artifact: create cache dir: %w", err)
	}

	var mu sync.Mutex
	valid := make(map[string]struct{})

	grp, _ := errgroup.WithContext(ctx)
	grp.SetLimit(s.Workers)
	for _, src := range artifacts {
		src := src
		grp.Go(func() error {
			name, err := s.syncOne(src)
			if err != nil {
				s.logger.Warn("artifact: sync failed",
					slog.String("path", src),
					slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			valid[name] = struct{}{}
			valid[name+SidecarSuffix] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()

	return s.cleanup(ctx, valid)
}

// syncOne copies one artifact (and its sidecar) unless the cached digest
// already matches, and returns the canonical cache name.
func (s *Syncer) syncOne(src string) (string, error) {
	name := CanonicalName(src)

	newDigest, err := readSidecar(src + SidecarSuffix)
	if err != nil {
		return "", fmt.Errorf("read digest: %w", err)
	}

	dest := filepath.Join(s.CacheDir, name)
	if cached, err := readSidecar(dest + SidecarSuffix); err == nil && cached == newDigest {
		s.logger.Debug("artifact: unchanged", slog.String("name", name))
		return name, nil
	}

	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	if err := copyFile(src+SidecarSuffix, dest+SidecarSuffix); err != nil {
		return "", fmt.Errorf("copy sidecar: %w", err)
	}
	s.logger.Debug("artifact: copied", slog.String("name", name))
	return name, nil
}

// cleanup deletes cache entries outside the valid set, sparing the
// workspace document and reserved-prefix names.
func (s *Syncer) cleanup(ctx context.Context, valid map[string]struct{}) error {
	entries, err := os.ReadDir(s.CacheDir)
	if err != nil {
		return fmt.Errorf("artifact: list cache dir: %w", err)
	}

	grp, _ := errgroup.WithContext(ctx)
	grp.SetLimit(s.Workers)
	for _, entry := range entries {
		name := entry.Name()
		if _, ok := valid[name]; ok {
			continue
		}
		if name == workspace.DocumentName {
			continue
		}
		if s.ReservedPrefix != "" && strings.HasPrefix(name, s.ReservedPrefix) {
			continue
		}
		grp.Go(func() error {
			if err := os.RemoveAll(filepath.Join(s.CacheDir, name)); err != nil {
				s.logger.Warn("artifact: remove stale failed",
					slog.String("name", name),
					slog.String("error", err.Error()))
			} else {
				s.logger.Debug("artifact: removed stale", slog.String("name", name))
			}
			return nil
		})
	}
	_ = grp.Wait()
	return nil
}

// Register copies a freshly generated artifact into the cache and writes
// a sidecar with a newly computed digest. Used by the single-file fast
// path, which produces artifacts without sidecars.
func (s *Syncer) Register(src string) error {
	if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
		return fmt.Errorf("artifact: create cache dir: %w", err)
	}
	name := CanonicalName(src)
	dest := filepath.Join(s.CacheDir, name)
	if err := copyFile(src, dest); err != nil {
		return fmt.Errorf("artifact: copy %s: %w", src, err)
	}
	digest, err := checksum.SumFile(src)
	if err != nil {
		return fmt.Errorf("artifact: digest %s: %w", src, err)
	}
	if err := os.WriteFile(dest+SidecarSuffix, []byte(digest+"\n"), 0o644); err != nil {
		return fmt.Errorf("artifact: write sidecar: %w", err)
	}
	return nil
}

// CanonicalName derives the cache filename from the path segment after
// the build output root, flattening separators and hyphens. The target
// naming scheme keeps this collision-free.
func CanonicalName(path string) string {
	parts := strings.Split(path, outputRootMarker)
	rel := parts[len(parts)-1]
	return strings.NewReplacer("/", "_", "-", "_").Replace(rel)
}

func readSidecar(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
