package merge

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/awsl-project/appforge/internal/domain"
)

// Apply merges generated output onto the prior project state.
//
// Starting from a copy of prior, each generated entry is applied in order:
// MarkerUnchanged keeps whatever prior holds (an absent key stays absent),
// MarkerDelete removes the key, and any other value overwrites or creates it.
// Keys only present in prior are kept. Neither input is modified.
func Apply(prior, generated *domain.FileMap) *domain.FileMap {
	merged := prior.Clone()
	generated.Range(func(path, content string) bool {
		switch content {
		case domain.MarkerUnchanged:
		case domain.MarkerDelete:
			merged.Delete(path)
		default:
			merged.Set(path, content)
		}
		return true
	})
	return merged
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// FileChange describes how one path differs between two project states.
type FileChange struct {
	Path      string     `json:"path"`
	Kind      ChangeKind `json:"kind"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
}

// Summarize lists per-file line changes from prior to merged. Changed and
// added paths come first in merged order, followed by deletions in prior order.
func Summarize(prior, merged *domain.FileMap) []FileChange {
	var changes []FileChange
	dmp := diffmatchpatch.New()

	merged.Range(func(path, content string) bool {
		old, existed := prior.Get(path)
		switch {
		case !existed:
			changes = append(changes, FileChange{Path: path, Kind: ChangeAdded, Additions: countLines(content)})
		case old != content:
			add, del := lineStats(dmp, old, content)
			changes = append(changes, FileChange{Path: path, Kind: ChangeModified, Additions: add, Deletions: del})
		}
		return true
	})

	prior.Range(func(path, content string) bool {
		if !merged.Has(path) {
			changes = append(changes, FileChange{Path: path, Kind: ChangeDeleted, Deletions: countLines(content)})
		}
		return true
	})
	return changes
}

func lineStats(dmp *diffmatchpatch.DiffMatchPatch, before, after string) (additions, deletions int) {
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}
	return additions, deletions
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
