// Package bazel builds query strings for the external build tool and
// executes its query/aquery/build commands.
package bazel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Runner executes an external command. It exists so tests can substitute
// canned outputs instead of invoking a real build tool.
type Runner interface {
	// Output runs the command and returns its captured stdout. Partial
	// output is returned alongside a non-nil error when the command fails.
	Output(ctx context.Context, cwd string, env map[string]string, name string, args ...string) ([]byte, error)
	// Run runs the command and waits for completion.
	Run(ctx context.Context, cwd string, env map[string]string, name string, args ...string) error
}

// ExecRunner runs commands through os/exec with PROJECT_ROOT set to the
// working directory.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, cwd string, env map[string]string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cwd
	cmd.Env = buildEnv(cwd, env)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("bazel: run %s: %w: %s", name, err, bytes.TrimSpace(exitErr.Stderr))
		}
		return out, fmt.Errorf("bazel: run %s: %w", name, err)
	}
	return out, nil
}

func (ExecRunner) Run(ctx context.Context, cwd string, env map[string]string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cwd
	cmd.Env = buildEnv(cwd, env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("bazel: run %s: %w", name, err)
	}
	return nil
}

func buildEnv(cwd string, extra map[string]string) []string {
	env := os.Environ()
	env = append(env, "PROJECT_ROOT="+cwd)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
