package enhance

import (
	"fmt"
	"sort"

	"tbcv/internal/types"
)

// typePriority orders edit types when spans overlap: structural fixes win
// over metadata, metadata over content, content over tone.
var typePriority = map[types.RecommendationType]int{
	types.RecStructural:      0,
	types.RecSEO:             1,
	types.RecMissingInfo:     2,
	types.RecMissingPlugin:   2,
	types.RecIncorrectPlugin: 2,
	types.RecOther:           2,
	types.RecTone:            3,
}

// resolveConflicts partitions planned edits into an applicable,
// non-overlapping set and the skipped losers. Overlap resolution is
// deterministic: higher type priority first, then the earlier target
// location, then recommendation id.
func resolveConflicts(edits []*edit) (kept []*edit, skipped []*skip) {
	ordered := make([]*edit, len(edits))
	copy(ordered, edits)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		pa, pb := priorityOf(a.rec.Type), priorityOf(b.rec.Type)
		if pa != pb {
			return pa < pb
		}
		if a.startLine != b.startLine {
			return a.startLine < b.startLine
		}
		return a.rec.ID < b.rec.ID
	})

	for _, candidate := range ordered {
		conflict := findOverlap(kept, candidate)
		if conflict == nil {
			kept = append(kept, candidate)
			continue
		}
		skipped = append(skipped, &skip{
			rec: candidate.rec,
			reason: fmt.Sprintf("overlaps lines %d-%d already claimed by %s recommendation %s",
				conflict.startLine, conflict.endLine, conflict.rec.Type, conflict.rec.ID),
		})
	}
	return kept, skipped
}

func priorityOf(t types.RecommendationType) int {
	if p, ok := typePriority[t]; ok {
		return p
	}
	return 2
}

// findOverlap returns the first kept edit whose span intersects candidate.
// Insertions (empty spans) at the same line also conflict; two inserts into
// the same gap are not linearizable deterministically.
func findOverlap(kept []*edit, candidate *edit) *edit {
	for _, k := range kept {
		if spansOverlap(k, candidate) {
			return k
		}
	}
	return nil
}

func spansOverlap(a, b *edit) bool {
	aStart, aEnd := normalizeSpan(a)
	bStart, bEnd := normalizeSpan(b)
	return aStart <= bEnd && bStart <= aEnd
}

// normalizeSpan gives insertions a width of one at the insertion point so
// they conflict with edits touching that line.
func normalizeSpan(e *edit) (int, int) {
	if e.endLine < e.startLine {
		return e.startLine, e.startLine
	}
	return e.startLine, e.endLine
}
