package workspace

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/scipsync/scipsync/internal/aquery"
)

// PopulateOptions describe how target outputs map onto workspace entries.
type PopulateOptions struct {
	// Root is the workspace root source lists are resolved against.
	Root string
	// ManifestMnemonic tags manifest-producing actions.
	ManifestMnemonic string
	// SourcesMnemonic tags source-list-producing actions.
	SourcesMnemonic string
	// ManifestSuffix filters manifest outputs; binaries picked up by the
	// mnemonic query do not carry it.
	ManifestSuffix string
	// SkipPrefixes drop third-party and generated targets entirely.
	SkipPrefixes []string
}

// Populate rebuilds a store from the joiner's target -> mnemonic -> paths
// mapping. For every kept target, each manifest output is paired
// positionally with the source list at the same index; a missing or
// misaligned source list skips the pair. Every file named in a source
// list gets one target link and one manifest link.
func Populate(outputs aquery.Outputs, opts PopulateOptions, logger *slog.Logger) *Store {
	store := NewStore()
	for target, mnemonics := range outputs {
		if skipTarget(target, opts.SkipPrefixes) {
			continue
		}
		addTarget(store, target, mnemonics, opts, logger)
	}
	return store
}

func addTarget(store *Store, target string, mnemonics map[string][]string, opts PopulateOptions, logger *slog.Logger) {
	var manifests []string
	for _, m := range mnemonics[opts.ManifestMnemonic] {
		if strings.HasSuffix(m, opts.ManifestSuffix) {
			manifests = append(manifests, m)
		}
	}
	sourceLists := mnemonics[opts.SourcesMnemonic]

	for i, manifest := range manifests {
		// One manifest pairs with one source list per target.
		if i >= len(sourceLists) {
			continue
		}
		listPath := filepath.Join(opts.Root, sourceLists[i])
		files, err := readSourceList(listPath)
		if err != nil {
			logger.Debug("workspace: source list unavailable",
				slog.String("target", target),
				slog.String("path", listPath),
				slog.String("error", err.Error()))
			continue
		}
		addFilesForTarget(store, target, manifest, files)
	}
}

// addFilesForTarget allocates one link per value and attaches both links
// to every listed file.
func addFilesForTarget(store *Store, target, manifest string, files []string) {
	targetID := store.AddLink(target, LinkBazelTarget)
	manifestID := store.AddLink(manifest, LinkJavaManifest)
	for _, file := range files {
		store.AddFile(file, targetID, LinkBazelTarget)
		store.AddFile(file, manifestID, LinkJavaManifest)
	}
}

func skipTarget(target string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(target, p) {
			return true
		}
	}
	return false
}

// readSourceList reads a newline-delimited file list, trimming whitespace
// and dropping blank lines.
func readSourceList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
