package internal

import "github.com/scipsync/scipsync/internal/bazel"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	runner  bazel.Runner
	root    string
	targets []string
	file    string
	depth   int // -1 means "use the configured default"
	watch   bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithRunner overrides the command runner; tests use this to avoid
// invoking a real build tool.
func WithRunner(r bazel.Runner) Option {
	return func(a *application) {
		a.runner = r
	}
}

// WithRoot sets the workspace root the sync operates in.
func WithRoot(root string) Option {
	return func(a *application) {
		a.root = root
	}
}

// WithTargets sets the seed targets.
func WithTargets(targets []string) Option {
	return func(a *application) {
		a.targets = targets
	}
}

// WithFile requests the single-file fast path for the given source file.
func WithFile(file string) Option {
	return func(a *application) {
		a.file = file
	}
}

// WithDepth overrides the configured dependency graph depth.
func WithDepth(depth int) Option {
	return func(a *application) {
		a.depth = depth
	}
}

// WithWatch keeps the process alive after the sync, re-indexing
// workspace-known files as they change.
func WithWatch(watch bool) Option {
	return func(a *application) {
		a.watch = watch
	}
}
