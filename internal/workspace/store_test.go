package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/scipsync/scipsync/internal/apperr"
)

func TestStore_LinkIDsMonotoneAcrossTypes(t *testing.T) {
	s := NewStore()
	id1 := s.AddLink("//a:a", LinkBazelTarget)
	id2 := s.AddLink("manifests/a_options", LinkJavaManifest)
	id3 := s.AddLink("//b:b", LinkBazelTarget)

	if id1 != "1" || id2 != "2" || id3 != "3" {
		t.Errorf("ids = %s, %s, %s; want 1, 2, 3", id1, id2, id3)
	}
	if v, _ := s.GetLink("2", LinkJavaManifest); v != "manifests/a_options" {
		t.Errorf("link 2 = %q", v)
	}
	if _, ok := s.GetLink("2", LinkBazelTarget); ok {
		t.Error("id 2 should not resolve under BAZEL_TARGET")
	}
}

func TestStore_AddFileLastWriteWinsPerType(t *testing.T) {
	s := NewStore()
	target1 := s.AddLink("//a:a", LinkBazelTarget)
	target2 := s.AddLink("//b:b", LinkBazelTarget)
	manifest := s.AddLink("m_options", LinkJavaManifest)

	s.AddFile("src/Foo.java", target1, LinkBazelTarget)
	s.AddFile("src/Foo.java", target2, LinkBazelTarget)
	s.AddFile("src/Foo.java", manifest, LinkJavaManifest)

	links, ok := s.GetFile("src/Foo.java")
	if !ok {
		t.Fatal("file not recorded")
	}
	if links[string(LinkBazelTarget)] != target2 {
		t.Errorf("target link = %s, want %s", links[string(LinkBazelTarget)], target2)
	}
	if links[string(LinkJavaManifest)] != manifest {
		t.Errorf("manifest link = %s, want %s", links[string(LinkJavaManifest)], manifest)
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	s.AddLink("//a:a", LinkBazelTarget)
	s.AddFile("f", "1", LinkBazelTarget)
	s.Clear()

	if len(s.Files) != 0 || len(s.Links) != 0 || s.LastLinkID != 0 {
		t.Errorf("clear left state: %+v", s)
	}
	if id := s.AddLink("//a:a", LinkBazelTarget); id != "1" {
		t.Errorf("id after clear = %s, want 1", id)
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := NewStore()
	targetID := s.AddLink("//a:a", LinkBazelTarget)
	manifestID := s.AddLink("m_options", LinkJavaManifest)
	s.AddFile("src/Foo.java", targetID, LinkBazelTarget)
	s.AddFile("src/Foo.java", manifestID, LinkJavaManifest)

	if err := s.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LastLinkID != s.LastLinkID {
		t.Errorf("LastLinkID = %d, want %d", loaded.LastLinkID, s.LastLinkID)
	}
	if v, _ := loaded.GetLink(targetID, LinkBazelTarget); v != "//a:a" {
		t.Errorf("target link = %q", v)
	}
	links, ok := loaded.GetFile("src/Foo.java")
	if !ok || links[string(LinkJavaManifest)] != manifestID {
		t.Errorf("file links = %v", links)
	}

	// Ids keep climbing after a reload.
	if id := loaded.AddLink("//c:c", LinkBazelTarget); id != "3" {
		t.Errorf("id after reload = %s, want 3", id)
	}
}

func TestLoad_MissingDocument(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("missing document should not error: %v", err)
	}
	if len(s.Files) != 0 || s.LastLinkID != 0 {
		t.Errorf("expected empty store, got %+v", s)
	}
}

func TestLoad_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DocumentName), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err == nil {
		t.Error("corrupt document should surface a parse error")
	}
	if s == nil || len(s.Files) != 0 {
		t.Errorf("corrupt document should still yield an empty store, got %+v", s)
	}
}

func TestManifestForFile(t *testing.T) {
	dir := t.TempDir()

	s := NewStore()
	targetID := s.AddLink("//a:a", LinkBazelTarget)
	manifestID := s.AddLink("manifests/a_options", LinkJavaManifest)
	s.AddFile("src/Foo.java", targetID, LinkBazelTarget)
	s.AddFile("src/Foo.java", manifestID, LinkJavaManifest)
	if err := s.Save(dir); err != nil {
		t.Fatal(err)
	}

	manifest, err := ManifestForFile(dir, "src/Foo.java")
	if err != nil {
		t.Fatalf("ManifestForFile: %v", err)
	}
	if manifest != "manifests/a_options" {
		t.Errorf("manifest = %q", manifest)
	}

	if _, err := ManifestForFile(dir, "src/Other.java"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown file error = %v, want ErrNotFound", err)
	}
}

func TestManifestForFile_FileWithoutManifestLink(t *testing.T) {
	dir := t.TempDir()

	s := NewStore()
	targetID := s.AddLink("//a:a", LinkBazelTarget)
	s.AddFile("src/Foo.java", targetID, LinkBazelTarget)
	if err := s.Save(dir); err != nil {
		t.Fatal(err)
	}

	if _, err := ManifestForFile(dir, "src/Foo.java"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
