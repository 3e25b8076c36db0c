// Package testutil provides shared test helpers: a fake command runner
// and quiet loggers.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

// Call records one command invocation seen by the FakeRunner.
type Call struct {
	Cwd  string
	Env  map[string]string
	Name string
	Args []string
}

// FakeRunner satisfies bazel.Runner without executing anything. Outputs
// are selected by the leading argument (query, aquery, build, ...).
type FakeRunner struct {
	QueryOutput  []byte
	AqueryOutput []byte
	OutputErr    error
	RunErr       error
	Calls        []Call
}

func (f *FakeRunner) Output(_ context.Context, cwd string, env map[string]string, name string, args ...string) ([]byte, error) {
	f.Calls = append(f.Calls, Call{Cwd: cwd, Env: env, Name: name, Args: args})
	var out []byte
	if len(args) > 0 {
		switch args[0] {
		case "query":
			out = f.QueryOutput
		case "aquery":
			out = f.AqueryOutput
		}
	}
	return out, f.OutputErr
}

func (f *FakeRunner) Run(_ context.Context, cwd string, env map[string]string, name string, args ...string) error {
	f.Calls = append(f.Calls, Call{Cwd: cwd, Env: env, Name: name, Args: args})
	return f.RunErr
}

// Logger returns a logger that discards everything.
func Logger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
