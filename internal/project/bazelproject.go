// Package project reads sync targets out of a .bazelproject view file.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ViewFile is the default project view location under the workspace root.
const ViewFile = ".ijwb/.bazelproject"

// Section names recognized in the view file.
const (
	sectionTargets     = "targets"
	sectionDirectories = "directories"
	sectionDeriveFlag  = "derive_targets_from_directories"
)

// Parse reads a .bazelproject file into section -> values. A line with a
// "key:" starts a section; indented lines append to the current one.
// Comments and blank lines are skipped.
func Parse(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", path, err)
	}

	sections := make(map[string][]string)
	lastKey := ""
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value := splitLine(line)
		if key != "" {
			sections[key] = []string{}
			lastKey = key
		}
		if value != "" && lastKey != "" {
			sections[lastKey] = append(sections[lastKey], value)
		}
	}
	return sections, nil
}

// splitLine separates an optional "key:" prefix from the value. Labels
// starting with // are values, never keys, despite containing a colon.
func splitLine(line string) (key, value string) {
	if strings.HasPrefix(line, "//") {
		return "", line
	}
	if k, v, found := strings.Cut(line, ":"); found {
		return strings.TrimSpace(k), strings.TrimSpace(v)
	}
	return "", line
}

// Targets reads the view file under root and returns the target and
// exclude sets. Entries prefixed with "-" are excludes. When
// derive_targets_from_directories is true, directory entries become
// //dir/... patterns on the corresponding set.
func Targets(root string) (targets, excludes []string, err error) {
	path := filepath.Join(root, ViewFile)
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return nil, nil, fmt.Errorf("project: %s not found", ViewFile)
	}

	sections, err := Parse(path)
	if err != nil {
		return nil, nil, err
	}

	for _, t := range sections[sectionTargets] {
		if strings.HasPrefix(t, "-") {
			excludes = append(excludes, t[1:])
		} else {
			targets = append(targets, t)
		}
	}

	derive := false
	if flags := sections[sectionDeriveFlag]; len(flags) > 0 {
		derive = strings.EqualFold(flags[0], "true")
	}
	if derive {
		var included, excluded []string
		for _, d := range sections[sectionDirectories] {
			if strings.HasPrefix(d, "-") {
				excluded = append(excluded, d[1:])
			} else {
				included = append(included, d)
			}
		}
		targets = append(targets, directoriesToTargets(included)...)
		excludes = append(excludes, directoriesToTargets(excluded)...)
	}

	return targets, excludes, nil
}

// directoriesToTargets turns directory entries into //dir/... patterns,
// skipping the workspace base directory.
func directoriesToTargets(dirs []string) []string {
	var targets []string
	for _, dir := range dirs {
		dir = strings.TrimSuffix(strings.TrimSpace(dir), "/")
		if dir == "." || dir == "" {
			continue
		}
		targets = append(targets, fmt.Sprintf("//%s/...", dir))
	}
	return targets
}
