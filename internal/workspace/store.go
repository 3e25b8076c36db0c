// Package workspace maintains the deduplicated file-to-target mapping
// persisted next to the index cache, so a single file's manifest can be
// looked up without touching the build graph.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scipsync/scipsync/internal/apperr"
)

// DocumentName is the persisted workspace document inside the cache dir.
const DocumentName = "workspace.json"

// LinkType distinguishes what a link's value refers to.
type LinkType string

const (
	LinkBazelTarget  LinkType = "BAZEL_TARGET"
	LinkJavaManifest LinkType = "JAVA_MANIFEST"
)

// Store holds the two deduplication tables. A file may reference multiple
// artifacts; rather than duplicating values per file, each value is stored
// once under an allocated link id and files point at the ids.
//
// Link ids are a single monotone counter shared by both link types; ids
// are never reused and only reset by Clear.
type Store struct {
	// Files maps a source file path to link-type name -> link id.
	Files map[string]map[string]string `json:"files"`
	// Links maps link-type name -> link id -> value.
	Links map[string]map[string]string `json:"links"`
	// LastLinkID is the most recently allocated id.
	LastLinkID int `json:"last_link_id"`
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Files: make(map[string]map[string]string),
		Links: make(map[string]map[string]string),
	}
}

// AddLink allocates the next id, stores value under it, and returns the
// id. Ids are strings because JSON object keys are strings.
func (s *Store) AddLink(value string, t LinkType) string {
	s.LastLinkID++
	id := fmt.Sprintf("%d", s.LastLinkID)
	typeLinks := s.Links[string(t)]
	if typeLinks == nil {
		typeLinks = make(map[string]string)
		s.Links[string(t)] = typeLinks
	}
	typeLinks[id] = value
	return id
}

// GetLink returns the value stored under (t, id).
func (s *Store) GetLink(id string, t LinkType) (string, bool) {
	value, ok := s.Links[string(t)][id]
	return value, ok
}

// AddFile attaches a link id to file under its type; a later id for the
// same type replaces the earlier one.
func (s *Store) AddFile(file, id string, t LinkType) {
	links := s.Files[file]
	if links == nil {
		links = make(map[string]string)
		s.Files[file] = links
	}
	links[string(t)] = id
}

// GetFile returns the link-type -> id mapping recorded for file.
func (s *Store) GetFile(file string) (map[string]string, bool) {
	links, ok := s.Files[file]
	return links, ok
}

// Clear drops both tables and resets the id counter.
func (s *Store) Clear() {
	s.Files = make(map[string]map[string]string)
	s.Links = make(map[string]map[string]string)
	s.LastLinkID = 0
}

// Load reads the workspace document from dir. A missing document yields an
// empty store with a nil error; a corrupt one yields an empty store plus
// the parse error so the caller can log and carry on.
func Load(dir string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(dir, DocumentName))
	if err != nil {
		if os.IsNotExist(err) {
			return NewStore(), nil
		}
		return NewStore(), fmt.Errorf("workspace: read document: %w", err)
	}

	store := NewStore()
	if err := json.Unmarshal(data, store); err != nil {
		return NewStore(), fmt.Errorf("workspace: parse document: %w", err)
	}
	if store.Files == nil {
		store.Files = make(map[string]map[string]string)
	}
	if store.Links == nil {
		store.Links = make(map[string]map[string]string)
	}
	return store, nil
}

// Save writes the document into dir atomically: tmp file → rename.
func (s *Store) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("workspace: create dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: encode document: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".workspace-tmp-*")
	if err != nil {
		return fmt.Errorf("workspace: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("workspace: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("workspace: close temp: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, DocumentName)); err != nil {
		return fmt.Errorf("workspace: rename: %w", err)
	}
	success = true
	return nil
}

// ManifestForFile loads the document from dir and returns the manifest
// recorded for file. This is the O(1) fast path: no build-graph query is
// involved. Returns apperr.ErrNotFound when the file or its manifest link
// is not recorded.
func ManifestForFile(dir, file string) (string, error) {
	store, err := Load(dir)
	if err != nil {
		return "", err
	}
	links, ok := store.GetFile(file)
	if !ok {
		return "", fmt.Errorf("workspace: file %s: %w", file, apperr.ErrNotFound)
	}
	id, ok := links[string(LinkJavaManifest)]
	if !ok {
		return "", fmt.Errorf("workspace: manifest link for %s: %w", file, apperr.ErrNotFound)
	}
	manifest, ok := store.GetLink(id, LinkJavaManifest)
	if !ok {
		return "", fmt.Errorf("workspace: manifest value for %s: %w", file, apperr.ErrNotFound)
	}
	return manifest, nil
}
