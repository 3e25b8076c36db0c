// Package aquery reconstructs per-target output paths from the flat
// tables of an action-graph query result.
package aquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ActionGraph is the jsonproto document of an aquery: four flat tables
// that have to be joined to recover which output belongs to which target.
type ActionGraph struct {
	PathFragments []PathFragment `json:"pathFragments"`
	Artifacts     []Artifact     `json:"artifacts"`
	Actions       []Action       `json:"actions"`
	Targets       []Target       `json:"targets"`
}

// PathFragment is one segment of an output path, linked to its parent.
type PathFragment struct {
	ID       int    `json:"id"`
	Label    string `json:"label"`
	ParentID int    `json:"parentId"`
}

// Artifact references the leaf fragment of its full path.
type Artifact struct {
	ID             int `json:"id"`
	PathFragmentID int `json:"pathFragmentId"`
}

// Action links a target to the artifacts it produces, tagged by mnemonic.
type Action struct {
	TargetID  int    `json:"targetId"`
	Mnemonic  string `json:"mnemonic"`
	OutputIDs []int  `json:"outputIds"`
}

// Target maps a numeric id to a target label.
type Target struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// Outputs maps target label -> mnemonic -> output paths.
type Outputs map[string]map[string][]string

// Parse decodes an aquery jsonproto document. Absent tables decode to
// empty slices.
func Parse(data []byte) (*ActionGraph, error) {
	var g ActionGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("aquery: parse action graph: %w", err)
	}
	return &g, nil
}

// Join resolves every fragment chain to a full path and joins the four
// tables into Outputs. Fragment resolution and the target join both fan
// out over a pool of workers goroutines; output ids with no artifact
// entry are skipped rather than failing, and per-(target, mnemonic) path
// lists merge additively across batches.
func Join(ctx context.Context, g *ActionGraph, workers int) Outputs {
	if workers < 1 {
		workers = 1
	}

	parents := make(map[int]int, len(g.PathFragments))
	labels := make(map[int]string, len(g.PathFragments))
	for _, frag := range g.PathFragments {
		labels[frag.ID] = frag.Label
		if frag.ParentID != 0 {
			parents[frag.ID] = frag.ParentID
		}
	}

	// Path resolution is a pure function of the fragment id, so the memo
	// tolerates two workers racing to store the same value.
	var paths sync.Map // fragment id -> full path

	grp, _ := errgroup.WithContext(ctx)
	grp.SetLimit(workers)
	for _, frag := range g.PathFragments {
		id := frag.ID
		grp.Go(func() error {
			resolvePath(id, parents, labels, &paths)
			return nil
		})
	}
	_ = grp.Wait()

	artifactFragment := make(map[int]int, len(g.Artifacts))
	for _, a := range g.Artifacts {
		artifactFragment[a.ID] = a.PathFragmentID
	}

	// target id -> mnemonic -> output artifact ids
	actionOutputs := make(map[int]map[string][]int)
	for _, action := range g.Actions {
		byMnemonic := actionOutputs[action.TargetID]
		if byMnemonic == nil {
			byMnemonic = make(map[string][]int)
			actionOutputs[action.TargetID] = byMnemonic
		}
		byMnemonic[action.Mnemonic] = append(byMnemonic[action.Mnemonic], action.OutputIDs...)
	}

	batchSize := len(g.Targets) / (workers * 2)
	if batchSize < 1 {
		batchSize = 1
	}

	var mu sync.Mutex
	result := make(Outputs)

	grp, _ = errgroup.WithContext(ctx)
	grp.SetLimit(workers)
	for start := 0; start < len(g.Targets); start += batchSize {
		end := start + batchSize
		if end > len(g.Targets) {
			end = len(g.Targets)
		}
		batch := g.Targets[start:end]
		grp.Go(func() error {
			local := joinBatch(batch, actionOutputs, artifactFragment, &paths)
			mu.Lock()
			mergeOutputs(result, local)
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()

	return result
}

// resolvePath walks the parent chain from leaf to root and joins the
// collected labels root-first.
func resolvePath(id int, parents map[int]int, labels map[int]string, memo *sync.Map) string {
	if cached, ok := memo.Load(id); ok {
		return cached.(string)
	}

	var parts []string
	for current := id; current != 0; {
		parts = append(parts, labels[current])
		current = parents[current]
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	full := strings.Join(parts, "/")
	memo.Store(id, full)
	return full
}

func joinBatch(batch []Target, actionOutputs map[int]map[string][]int, artifactFragment map[int]int, paths *sync.Map) Outputs {
	local := make(Outputs)
	for _, target := range batch {
		byMnemonic := actionOutputs[target.ID]
		if byMnemonic == nil {
			continue
		}
		targetResult := make(map[string][]string)
		for mnemonic, outputIDs := range byMnemonic {
			var outputPaths []string
			for _, oid := range outputIDs {
				fragID, ok := artifactFragment[oid]
				if !ok {
					// Garbled or partial action graph; drop the output.
					continue
				}
				if p, ok := paths.Load(fragID); ok {
					outputPaths = append(outputPaths, p.(string))
				}
			}
			if len(outputPaths) > 0 {
				targetResult[mnemonic] = outputPaths
			}
		}
		if len(targetResult) > 0 {
			local[target.Label] = targetResult
		}
	}
	return local
}

// mergeOutputs folds src into dst, concatenating path lists when the same
// (target, mnemonic) pair shows up in both.
func mergeOutputs(dst, src Outputs) {
	for label, mnemonics := range src {
		existing := dst[label]
		if existing == nil {
			existing = make(map[string][]string, len(mnemonics))
			dst[label] = existing
		}
		for mnemonic, paths := range mnemonics {
			existing[mnemonic] = append(existing[mnemonic], paths...)
		}
	}
}
