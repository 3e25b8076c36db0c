package depgraph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Closure is the set of target labels produced by Resolve.
type Closure map[string]struct{}

// Labels returns the closure as a sorted slice.
func (c Closure) Labels() []string {
	labels := make([]string, 0, len(c))
	for label := range c {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Contains reports membership of a label.
func (c Closure) Contains(label string) bool {
	_, ok := c[label]
	return ok
}

// Options select the traversal mode and its bounds.
//
// Deps computes the forward closure reachable from the seeds; Rdeps
// returns every node whose direct deps intersect the seed mask. The two
// modes are mutually exclusive. Seeds and Excludes accept literal labels
// or "<prefix>/..." wildcards.
type Options struct {
	Seeds    []string
	Excludes []string
	Depth    int
	Deps     bool
	Rdeps    bool
}

// Resolve computes the buildable closure over g.
//
// In deps mode, every graph node matching the seed mask is a DFS root.
// The DFS is depth bounded, with exports expanded ahead of the depth
// check: each export is appended unconditionally and recursed into with
// depth-1, so export chains are reached past the local budget but still
// bounded by the original depth. Depth 0 yields the seeds plus their full
// export chains and no direct deps.
//
// In rdeps mode, depth is ignored locally (the upstream query already
// bounded the graph) and the result is every node whose direct deps
// intersect the seed mask without intersecting the exclude mask.
func Resolve(g Graph, opts Options) (Closure, error) {
	if opts.Deps && opts.Rdeps {
		return nil, fmt.Errorf("depgraph: deps and rdeps modes cannot be combined")
	}

	masks, err := compileMasks(opts.Seeds)
	if err != nil {
		return nil, err
	}
	excludeMasks, err := compileMasks(opts.Excludes)
	if err != nil {
		return nil, err
	}

	result := make(Closure)

	if opts.Rdeps {
		for label, node := range g {
			if matchesAny(node.DirectDeps, masks) && !matchesAny(node.DirectDeps, excludeMasks) {
				result[label] = struct{}{}
			}
		}
		return result, nil
	}

	for label := range g {
		if matchesLabel(label, masks) {
			dfs(g, label, opts.Depth, result)
		}
	}
	for label := range result {
		if matchesLabel(label, excludeMasks) {
			delete(result, label)
		}
	}
	return result, nil
}

// dfs walks direct deps down to the depth budget, collecting labels into
// out. Exports are appended before the depth check so that a call that is
// already out of budget still delivers its export chain; the recursive
// export call decrements depth, which keeps chained exports finite.
func dfs(g Graph, label string, depth int, out Closure) {
	node, ok := g[label]
	if !ok {
		return
	}

	for _, export := range node.Exports {
		out[export] = struct{}{}
		dfs(g, export, depth-1, out)
	}

	if depth < 0 {
		return
	}
	out[label] = struct{}{}
	if depth == 0 {
		return
	}

	for _, dep := range node.DirectDeps {
		out[dep] = struct{}{}
		dfs(g, dep, depth-1, out)
	}
}

// compileMasks converts seed patterns into anchored regexps: a trailing
// "/..." becomes a prefix match, anything else an exact match.
func compileMasks(patterns []string) ([]*regexp.Regexp, error) {
	masks := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		var expr string
		if strings.HasSuffix(p, "/...") {
			expr = "^" + strings.TrimSuffix(p, "/...")
		} else {
			expr = "^" + p + "$"
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("depgraph: compile mask %q: %w", p, err)
		}
		masks = append(masks, re)
	}
	return masks, nil
}

func matchesLabel(label string, masks []*regexp.Regexp) bool {
	for _, m := range masks {
		if m.MatchString(label) {
			return true
		}
	}
	return false
}

func matchesAny(labels []string, masks []*regexp.Regexp) bool {
	for _, label := range labels {
		if matchesLabel(label, masks) {
			return true
		}
	}
	return false
}
