package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/scipsync/scipsync/internal/testutil"
)

func TestIndexFile_InvokesAggregator(t *testing.T) {
	root := t.TempDir()
	runner := &testutil.FakeRunner{}
	ix := New("bazel-bin/tools/aggregator_bin", ".scip/tmp", runner, testutil.Logger(t))

	out, err := ix.IndexFile(context.Background(), root, "src/main/Foo.java", "out/a_options")
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	want := filepath.Join(root, ".scip/tmp", "src_main_Foo_java.scip")
	if out != want {
		t.Errorf("out = %s, want %s", out, want)
	}
	if _, err := os.Stat(filepath.Join(root, ".scip/tmp")); err != nil {
		t.Errorf("work dir not created: %v", err)
	}

	call := runner.Calls[0]
	if call.Name != filepath.Join(root, "bazel-bin/tools/aggregator_bin") {
		t.Errorf("binary = %s", call.Name)
	}
	wantArgs := []string{"-m", "out/a_options", "-f", "src/main/Foo.java", "-o", want}
	if len(call.Args) != len(wantArgs) {
		t.Fatalf("args = %v", call.Args)
	}
	for i, arg := range wantArgs {
		if call.Args[i] != arg {
			t.Errorf("arg[%d] = %s, want %s", i, call.Args[i], arg)
		}
	}
}

func TestIndexFile_AggregatorFailure(t *testing.T) {
	runner := &testutil.FakeRunner{RunErr: errors.New("exit status 1")}
	ix := New("agg", "tmp", runner, testutil.Logger(t))

	if _, err := ix.IndexFile(context.Background(), t.TempDir(), "a.java", "m"); err == nil {
		t.Fatal("expected error from failing aggregator")
	}
}
