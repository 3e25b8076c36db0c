package bazel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/scipsync/scipsync/internal/apperr"
)

// DepthUnbounded leaves the deps()/rdeps() depth argument off the query.
const DepthUnbounded = -1

// Record is one entry of a streamed_jsonproto query result. Only RULE
// records carry a Rule payload.
type Record struct {
	Type string `json:"type"`
	Rule *Rule  `json:"rule,omitempty"`
}

// RecordTypeRule tags records describing build rules.
const RecordTypeRule = "RULE"

// Rule is the rule payload of a RULE record.
type Rule struct {
	Name       string      `json:"name"`
	RuleClass  string      `json:"ruleClass"`
	Attributes []Attribute `json:"attribute"`
	RuleInputs []string    `json:"ruleInput"`
}

// Attribute is a single rule attribute; only string-list values matter here.
type Attribute struct {
	Name            string   `json:"name"`
	StringListValue []string `json:"stringListValue"`
}

// StringList returns the string-list value of the named attribute, or nil.
func (r *Rule) StringList(name string) []string {
	for _, attr := range r.Attributes {
		if attr.Name == name {
			return attr.StringListValue
		}
	}
	return nil
}

// QueryOptions control how a target union is wrapped into a query string.
type QueryOptions struct {
	Kinds         []string // kind("a|b", ...) filter
	Deps          bool     // wrap in deps(...)
	Rdeps         bool     // wrap in rdeps(universe, ...)
	RdepsUniverse string   // defaults to //...
	Depth         int      // DepthUnbounded to omit
	Tags          []string // attr(tags, "\ba\b|\bb\b", ...) filter
	Filter        string   // filter(".*<f>.*", ...)
	SoftFail      bool     // pass --keep_going and tolerate a non-zero exit
}

// QueryString joins targets into a union and applies the requested
// deps/rdeps, tag, kind, and filter wrappers.
//
// Deps and Rdeps are mutually exclusive; requesting both is a caller bug
// and fails immediately.
func QueryString(targets []string, opts QueryOptions) (string, error) {
	if len(targets) == 0 {
		return "", fmt.Errorf("bazel: query targets must not be empty")
	}
	if opts.Deps && opts.Rdeps {
		return "", fmt.Errorf("bazel: deps and rdeps cannot be used together")
	}

	quoted := make([]string, len(targets))
	for i, t := range targets {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	query := strings.Join(quoted, " + ")

	if opts.Deps || opts.Rdeps {
		fun := "deps"
		if opts.Rdeps {
			fun = "rdeps"
			universe := opts.RdepsUniverse
			if universe == "" {
				universe = "//..."
			}
			query = fmt.Sprintf("%q, %s", universe, query)
		}
		if opts.Depth == DepthUnbounded {
			query = fmt.Sprintf("%s(%s)", fun, query)
		} else {
			query = fmt.Sprintf("%s(%s, %d)", fun, query, opts.Depth)
		}
	}

	if len(opts.Tags) > 0 {
		patterns := make([]string, len(opts.Tags))
		for i, tag := range opts.Tags {
			patterns[i] = `\b` + tag + `\b`
		}
		query = fmt.Sprintf(`attr(tags, "%s", %s)`, strings.Join(patterns, "|"), query)
	}

	if len(opts.Kinds) > 0 {
		query = fmt.Sprintf(`kind("%s", %s)`, strings.Join(opts.Kinds, "|"), query)
	}

	if opts.Filter != "" {
		query = fmt.Sprintf(`filter(".*%s.*", %s)`, opts.Filter, query)
	}

	return query, nil
}

// Client issues queries and builds against a workspace through a Runner.
type Client struct {
	binary string
	runner Runner
	logger *slog.Logger
}

// NewClient returns a Client invoking the named bazel binary.
func NewClient(binary string, runner Runner, logger *slog.Logger) *Client {
	return &Client{binary: binary, runner: runner, logger: logger}
}

// Query runs a bazel query for the target union and decodes the
// streamed_jsonproto result line by line. Lines that fail to decode are
// dropped. In soft-fail mode a failed query yields whatever records were
// decoded; otherwise the failure is fatal.
//
// The query string goes through a query file to stay clear of the
// argument-count limit on large target sets.
func (c *Client) Query(ctx context.Context, cwd string, targets []string, opts QueryOptions) ([]Record, error) {
	query, err := QueryString(targets, opts)
	if err != nil {
		return nil, err
	}

	queryFile, err := writeTempFile("scipsync-query-*.txt", query)
	if err != nil {
		return nil, err
	}
	defer os.Remove(queryFile)

	args := []string{
		"query",
		"--output", "streamed_jsonproto",
		"--order_output=no",
		"--query_file", queryFile,
	}
	if opts.SoftFail {
		args = append(args, "--keep_going")
	}

	out, runErr := c.runner.Output(ctx, cwd, nil, c.binary, args...)
	records := decodeRecords(out)

	if runErr != nil {
		if !opts.SoftFail {
			return nil, fmt.Errorf("bazel: %w: %v", apperr.ErrQueryFailed, runErr)
		}
		c.logger.Warn("bazel: query failed, using partial results",
			slog.Int("records", len(records)),
			slog.String("error", runErr.Error()))
	}
	return records, nil
}

// ActionGraph runs an aquery restricted to the given mnemonics over the
// target union and returns the raw jsonproto document.
func (c *Client) ActionGraph(ctx context.Context, cwd string, mnemonics, targets []string, aspect, outputGroups string) ([]byte, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("bazel: aquery targets must not be empty")
	}
	quoted := make([]string, len(targets))
	for i, t := range targets {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	query := fmt.Sprintf(`mnemonic("%s", %s)`,
		strings.Join(mnemonics, "|"), strings.Join(quoted, " + "))

	queryFile, err := writeTempFile("scipsync-aquery-*.txt", query)
	if err != nil {
		return nil, err
	}
	defer os.Remove(queryFile)

	out, err := c.runner.Output(ctx, cwd, nil, c.binary,
		"aquery",
		"--query_file", queryFile,
		"--aspects", aspect,
		outputGroups,
		"--output=jsonproto",
		"--keep_going",
	)
	if err != nil {
		return nil, fmt.Errorf("bazel: aquery: %w", err)
	}
	return out, nil
}

// Build runs a plain bazel build of a single target.
func (c *Client) Build(ctx context.Context, cwd, target string, flags []string, env map[string]string) error {
	args := append([]string{"build", target, "--keep_going"}, flags...)
	return c.runner.Run(ctx, cwd, env, c.binary, args...)
}

// BuildWithAspect builds the given targets with an aspect and output group
// enabled. Targets go through a pattern file to avoid the argument limit.
func (c *Client) BuildWithAspect(ctx context.Context, cwd string, targets []string, aspect, outputGroups string, flags []string, env map[string]string) error {
	patternFile, err := writeTempFile("scipsync-targets-*.txt", strings.Join(targets, "\n")+"\n")
	if err != nil {
		return err
	}
	defer os.Remove(patternFile)

	args := []string{
		"build",
		"--target_pattern_file=" + patternFile,
		"--keep_going",
		"--aspects", aspect,
		outputGroups,
	}
	args = append(args, flags...)
	return c.runner.Run(ctx, cwd, env, c.binary, args...)
}

func decodeRecords(out []byte) []Record {
	var records []Record
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

func writeTempFile(pattern, content string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("bazel: create temp file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("bazel: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("bazel: close temp file: %w", err)
	}
	return f.Name(), nil
}
