package pipeline

import (
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// computePatches compares two file sets and reports what changed.
// Paths come back sorted so two runs over the same inputs produce the
// same output.
func computePatches(base, next map[string]string) ([]string, []FilePatch) {
	dmp := diffmatchpatch.New()

	paths := make(map[string]struct{}, len(base)+len(next))
	for p := range base {
		paths[p] = struct{}{}
	}
	for p := range next {
		paths[p] = struct{}{}
	}

	ordered := make([]string, 0, len(paths))
	for p := range paths {
		ordered = append(ordered, p)
	}
	sort.Strings(ordered)

	changed := make([]string, 0, len(ordered))
	patches := make([]FilePatch, 0, len(ordered))

	for _, p := range ordered {
		before, inBase := base[p]
		after, inNext := next[p]

		var status string
		switch {
		case !inBase && inNext:
			status = "added"
		case inBase && !inNext:
			status = "removed"
		case before != after:
			status = "modified"
		default:
			continue
		}

		diff := dmp.PatchToText(dmp.PatchMake(before, after))
		changed = append(changed, p)
		patches = append(patches, FilePatch{Path: p, Status: status, Patch: diff})
	}

	return changed, patches
}
