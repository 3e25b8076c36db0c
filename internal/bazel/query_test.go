package bazel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/scipsync/scipsync/internal/apperr"
	"github.com/scipsync/scipsync/internal/testutil"
)

func TestQueryString_Union(t *testing.T) {
	got, err := QueryString([]string{"//a:a", "//b:b"}, QueryOptions{Depth: DepthUnbounded})
	if err != nil {
		t.Fatal(err)
	}
	if got != `"//a:a" + "//b:b"` {
		t.Errorf("query = %s", got)
	}
}

func TestQueryString_DepsWithDepth(t *testing.T) {
	got, err := QueryString([]string{"//a:a"}, QueryOptions{Deps: true, Depth: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got != `deps("//a:a", 2)` {
		t.Errorf("query = %s", got)
	}
}

func TestQueryString_DepsUnbounded(t *testing.T) {
	got, err := QueryString([]string{"//a:a"}, QueryOptions{Deps: true, Depth: DepthUnbounded})
	if err != nil {
		t.Fatal(err)
	}
	if got != `deps("//a:a")` {
		t.Errorf("query = %s", got)
	}
}

func TestQueryString_RdepsDefaultUniverse(t *testing.T) {
	got, err := QueryString([]string{"//a:a"}, QueryOptions{Rdeps: true, Depth: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got != `rdeps("//...", "//a:a", 1)` {
		t.Errorf("query = %s", got)
	}
}

func TestQueryString_KindTagsFilterNesting(t *testing.T) {
	got, err := QueryString([]string{"//a:a"}, QueryOptions{
		Deps:   true,
		Depth:  1,
		Kinds:  []string{"java_library", "java_test"},
		Tags:   []string{"scip"},
		Filter: "service",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `filter(".*service.*", kind("java_library|java_test", attr(tags, "\bscip\b", deps("//a:a", 1))))`
	if got != want {
		t.Errorf("query = %s\n want = %s", got, want)
	}
}

func TestQueryString_BothModesFail(t *testing.T) {
	if _, err := QueryString([]string{"//a:a"}, QueryOptions{Deps: true, Rdeps: true}); err == nil {
		t.Fatal("expected error for deps+rdeps")
	}
}

func TestQueryString_EmptyTargetsFail(t *testing.T) {
	if _, err := QueryString(nil, QueryOptions{}); err == nil {
		t.Fatal("expected error for empty targets")
	}
}

func TestClient_QueryDecodesStreamedRecords(t *testing.T) {
	runner := &testutil.FakeRunner{QueryOutput: []byte(strings.Join([]string{
		`{"type":"RULE","rule":{"name":"//a:a","ruleClass":"java_library","ruleInput":["//b:b"]}}`,
		`not json at all`,
		``,
		`{"type":"SOURCE_FILE"}`,
		`{"type":"RULE","rule":{"name":"//b:b","ruleClass":"java_library","attribute":[{"name":"deps","stringListValue":["//a:a"]}]}}`,
	}, "\n"))}
	c := NewClient("bazel", runner, testutil.Logger(t))

	records, err := c.Query(context.Background(), "/w", []string{"//..."}, QueryOptions{Depth: DepthUnbounded})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 (garbage line dropped)", len(records))
	}
	if records[0].Rule.Name != "//a:a" || records[0].Rule.RuleInputs[0] != "//b:b" {
		t.Errorf("first record = %+v", records[0].Rule)
	}
	if got := records[2].Rule.StringList("deps"); len(got) != 1 || got[0] != "//a:a" {
		t.Errorf("deps attribute = %v", got)
	}

	if len(runner.Calls) != 1 || runner.Calls[0].Args[0] != "query" {
		t.Fatalf("calls = %+v", runner.Calls)
	}
	for _, arg := range runner.Calls[0].Args {
		if arg == "--keep_going" {
			t.Error("--keep_going passed without soft-fail")
		}
	}
}

func TestClient_QueryHardFailure(t *testing.T) {
	runner := &testutil.FakeRunner{OutputErr: errors.New("exit status 7")}
	c := NewClient("bazel", runner, testutil.Logger(t))

	_, err := c.Query(context.Background(), "/w", []string{"//..."}, QueryOptions{Depth: DepthUnbounded})
	if !errors.Is(err, apperr.ErrQueryFailed) {
		t.Errorf("error = %v, want ErrQueryFailed", err)
	}
}

func TestClient_QuerySoftFailKeepsPartialResults(t *testing.T) {
	runner := &testutil.FakeRunner{
		QueryOutput: []byte(`{"type":"RULE","rule":{"name":"//a:a","ruleClass":"java_library"}}`),
		OutputErr:   errors.New("exit status 3"),
	}
	c := NewClient("bazel", runner, testutil.Logger(t))

	records, err := c.Query(context.Background(), "/w", []string{"//..."}, QueryOptions{Depth: DepthUnbounded, SoftFail: true})
	if err != nil {
		t.Fatalf("soft-fail query should not error: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("records = %d, want 1", len(records))
	}

	var sawKeepGoing bool
	for _, arg := range runner.Calls[0].Args {
		if arg == "--keep_going" {
			sawKeepGoing = true
		}
	}
	if !sawKeepGoing {
		t.Error("soft-fail query should pass --keep_going")
	}
}

func TestClient_ActionGraphArgs(t *testing.T) {
	runner := &testutil.FakeRunner{AqueryOutput: []byte(`{"targets":[]}`)}
	c := NewClient("bazel", runner, testutil.Logger(t))

	out, err := c.ActionGraph(context.Background(), "/w",
		[]string{"scipMutation", "TemplateExpand"},
		[]string{"//a:a"},
		"@scip//:aspect.bzl%x", "--output_groups=scip")
	if err != nil {
		t.Fatalf("ActionGraph: %v", err)
	}
	if string(out) != `{"targets":[]}` {
		t.Errorf("out = %s", out)
	}

	args := runner.Calls[0].Args
	if args[0] != "aquery" {
		t.Fatalf("args = %v", args)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--output=jsonproto") || !strings.Contains(joined, "--keep_going") {
		t.Errorf("aquery args missing flags: %v", args)
	}
}

func TestClient_BuildWithAspectPatternFile(t *testing.T) {
	runner := &testutil.FakeRunner{}
	c := NewClient("bazel", runner, testutil.Logger(t))

	err := c.BuildWithAspect(context.Background(), "/w",
		[]string{"//a:a", "//b:b"},
		"@scip//:aspect.bzl%x", "--output_groups=scip",
		[]string{"--java_language_version=21"},
		map[string]string{"ENABLE_SCIP_INDEX_GEN": "true"})
	if err != nil {
		t.Fatalf("BuildWithAspect: %v", err)
	}

	call := runner.Calls[0]
	if call.Args[0] != "build" {
		t.Fatalf("args = %v", call.Args)
	}
	var sawPatternFile bool
	for _, arg := range call.Args {
		if strings.HasPrefix(arg, "--target_pattern_file=") {
			sawPatternFile = true
		}
	}
	if !sawPatternFile {
		t.Error("build should go through a target pattern file")
	}
	if call.Env["ENABLE_SCIP_INDEX_GEN"] != "true" {
		t.Errorf("env = %v", call.Env)
	}
}
