// Package depgraph turns raw query records into a dependency graph and
// computes depth-bounded buildable closures over it.
package depgraph

import (
	"strings"

	"github.com/scipsync/scipsync/internal/bazel"
)

const externalRepoPrefix = "@"

// Node is one target in the dependency graph. Deps and DirectDeps only
// reference labels that exist in the same query result, so traversal stays
// inside a closed subgraph; Exports are kept verbatim because they are
// walked as transparent re-exports rather than dependency edges.
type Node struct {
	BasePath   string
	Deps       []string
	DirectDeps []string
	Exports    []string
	Kind       string
}

// Graph is an adjacency map keyed by target label. Edges are resolved by
// key lookup at traversal time.
type Graph map[string]*Node

// Transform builds a Graph from raw query records. Non-RULE records are
// ignored; rule inputs and deps/data attribute values pointing at external
// repositories or at labels outside the result set are dropped. Missing
// attributes default to empty, never an error.
func Transform(records []bazel.Record) Graph {
	rules := make(map[string]struct{})
	for _, rec := range records {
		if rec.Type == bazel.RecordTypeRule && rec.Rule != nil {
			rules[rec.Rule.Name] = struct{}{}
		}
	}

	graph := make(Graph, len(rules))
	for _, rec := range records {
		if rec.Type != bazel.RecordTypeRule || rec.Rule == nil {
			continue
		}
		rule := rec.Rule

		var directDeps []string
		for _, dep := range rule.RuleInputs {
			if !inSet(dep, rules) {
				continue
			}
			directDeps = append(directDeps, dep)
		}

		var deps []string
		seen := make(map[string]struct{})
		for _, attr := range []string{"deps", "data"} {
			for _, dep := range rule.StringList(attr) {
				if !inSet(dep, rules) {
					continue
				}
				if _, dup := seen[dep]; dup {
					continue
				}
				seen[dep] = struct{}{}
				deps = append(deps, dep)
			}
		}

		graph[rule.Name] = &Node{
			BasePath:   basePath(rule.Name),
			Deps:       deps,
			DirectDeps: directDeps,
			Exports:    rule.StringList("exports"),
			Kind:       rule.RuleClass,
		}
	}
	return graph
}

func inSet(label string, rules map[string]struct{}) bool {
	if strings.HasPrefix(label, externalRepoPrefix) {
		return false
	}
	_, ok := rules[label]
	return ok
}

// basePath derives the package path from a label: "//a/b:c" -> "a/b".
func basePath(label string) string {
	pkg, _, _ := strings.Cut(label, ":")
	return strings.TrimPrefix(pkg, "//")
}
