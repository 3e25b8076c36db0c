package project

import (
	"os"
	"path/filepath"
	"testing"
)

func writeViewFile(t *testing.T, root, content string) {
	t.Helper()
	path := filepath.Join(root, ViewFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParse_SectionsAndComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "view")
	content := `# comment
targets:
  //a:a
  //b/...

workspace_type: java
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sections, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := sections["targets"]; len(got) != 2 || got[0] != "//a:a" || got[1] != "//b/..." {
		t.Errorf("targets = %v", got)
	}
	if got := sections["workspace_type"]; len(got) != 1 || got[0] != "java" {
		t.Errorf("workspace_type = %v", got)
	}
}

func TestParse_LabelColonNotAKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "view")
	if err := os.WriteFile(path, []byte("targets:\n  //pkg:name\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sections, err := Parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := sections["targets"]; len(got) != 1 || got[0] != "//pkg:name" {
		t.Errorf("targets = %v", got)
	}
}

func TestTargets_SplitsExcludes(t *testing.T) {
	root := t.TempDir()
	writeViewFile(t, root, `targets:
  //a:a
  -//b:b
`)

	targets, excludes, err := Targets(root)
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	if len(targets) != 1 || targets[0] != "//a:a" {
		t.Errorf("targets = %v", targets)
	}
	if len(excludes) != 1 || excludes[0] != "//b:b" {
		t.Errorf("excludes = %v", excludes)
	}
}

func TestTargets_DeriveFromDirectories(t *testing.T) {
	root := t.TempDir()
	writeViewFile(t, root, `derive_targets_from_directories: true
directories:
  lib/core
  -lib/legacy
  .
`)

	targets, excludes, err := Targets(root)
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	if len(targets) != 1 || targets[0] != "//lib/core/..." {
		t.Errorf("targets = %v", targets)
	}
	if len(excludes) != 1 || excludes[0] != "//lib/legacy/..." {
		t.Errorf("excludes = %v", excludes)
	}
}

func TestTargets_DeriveDisabledIgnoresDirectories(t *testing.T) {
	root := t.TempDir()
	writeViewFile(t, root, `directories:
  lib/core
targets:
  //a:a
`)

	targets, _, err := Targets(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0] != "//a:a" {
		t.Errorf("targets = %v", targets)
	}
}

func TestTargets_MissingViewFile(t *testing.T) {
	if _, _, err := Targets(t.TempDir()); err == nil {
		t.Fatal("expected error for missing view file")
	}
}
