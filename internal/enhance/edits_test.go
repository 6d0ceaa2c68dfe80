package enhance

import (
	"strings"
	"testing"

	"tbcv/internal/types"
)

func rec(id string, t types.RecommendationType, line int, change, rationale string) *types.Recommendation {
	return &types.Recommendation{
		ID:              id,
		Type:            t,
		Target:          types.TargetLocation{Line: line},
		SuggestedChange: change,
		Rationale:       rationale,
	}
}

func TestPlanFrontmatterEditInsertsField(t *testing.T) {
	lines := []string{"---", "title: T", "---", "", "# Doc"}
	e, sk := planEdit(rec("r1", types.RecMissingInfo, 1, "add description: to the frontmatter", ""), lines, 3)
	if sk != nil {
		t.Fatalf("planEdit() skipped: %s", sk.reason)
	}
	if e.startLine != 3 || e.endLine != 2 {
		t.Fatalf("edit span = %d-%d, want insertion at 3", e.startLine, e.endLine)
	}
	if len(e.replacement) != 1 || !strings.HasPrefix(e.replacement[0], "description:") {
		t.Fatalf("replacement = %v, want description field", e.replacement)
	}
}

func TestPlanFrontmatterEditCreatesBlock(t *testing.T) {
	lines := []string{"# Doc", "", "Body."}
	e, sk := planEdit(rec("r1", types.RecMissingInfo, 1, "add title: to the frontmatter", ""), lines, 0)
	if sk != nil {
		t.Fatalf("planEdit() skipped: %s", sk.reason)
	}
	if e.startLine != 1 || e.endLine != 0 {
		t.Fatalf("edit span = %d-%d, want insertion at top", e.startLine, e.endLine)
	}
	if e.replacement[0] != "---" || e.replacement[2] != "---" {
		t.Fatalf("replacement = %v, want a new frontmatter block", e.replacement)
	}
}

func TestPlanLineEditReplaceDirective(t *testing.T) {
	lines := []string{"# Doc", "Use the dataview plugin here."}
	e, sk := planEdit(rec("r1", types.RecIncorrectPlugin, 2,
		`replace "dataview plugin" with "Dataview"`, ""), lines, 0)
	if sk != nil {
		t.Fatalf("planEdit() skipped: %s", sk.reason)
	}
	if e.replacement[0] != "Use the Dataview here." {
		t.Fatalf("replacement = %q", e.replacement[0])
	}
}

func TestPlanLineEditDriftedTarget(t *testing.T) {
	lines := []string{"# Doc", "This line changed meanwhile."}
	_, sk := planEdit(rec("r1", types.RecIncorrectPlugin, 2,
		`replace "dataview plugin" with "Dataview"`, ""), lines, 0)
	if sk == nil {
		t.Fatal("planEdit() applied against a drifted line")
	}
	if !strings.Contains(sk.reason, "no longer contains") {
		t.Errorf("skip reason = %q", sk.reason)
	}
}

func TestPlanLineEditOutOfRange(t *testing.T) {
	_, sk := planEdit(rec("r1", types.RecTone, 99, "Better wording.", ""), []string{"only line"}, 0)
	if sk == nil || !strings.Contains(sk.reason, "out of range") {
		t.Fatalf("skip = %v, want out-of-range", sk)
	}
}

func TestPlanLineEditAdvisorySkipped(t *testing.T) {
	_, sk := planEdit(rec("r1", types.RecTone, 1, "consider rewording this paragraph", ""), []string{"text"}, 0)
	if sk == nil {
		t.Fatal("advisory suggestion produced an edit")
	}
}

func TestPlanStructuralEdits(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		rationale string
		want      string
	}{
		{"trailing whitespace", "text  \t", "line 3: trailing whitespace", "text"},
		{"hard tab", "\tindented", "hard tab outside a code block", "    indented"},
		{"language tag", "```", "code fence has no language tag", "```text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := []string{tt.line}
			e, sk := planEdit(rec("r1", types.RecStructural, 1, "", tt.rationale), lines, 0)
			if sk != nil {
				t.Fatalf("planEdit() skipped: %s", sk.reason)
			}
			if e.replacement[0] != tt.want {
				t.Fatalf("replacement = %q, want %q", e.replacement[0], tt.want)
			}
		})
	}
}

func TestPlanSEODemotesExtraH1(t *testing.T) {
	r := rec("r1", types.RecSEO, 1, "", "multiple H1 headings")
	r.Target.Selector = "headings"
	e, sk := planEdit(r, []string{"# Second Title"}, 0)
	if sk != nil {
		t.Fatalf("planEdit() skipped: %s", sk.reason)
	}
	if e.replacement[0] != "## Second Title" {
		t.Fatalf("replacement = %q, want demoted heading", e.replacement[0])
	}
}

func TestApplyEditsBottomUp(t *testing.T) {
	lines := []string{"one", "two", "three", "four"}
	edits := []*edit{
		{rec: rec("a", types.RecTone, 1, "", ""), startLine: 1, endLine: 1, replacement: []string{"ONE"}},
		{rec: rec("b", types.RecTone, 3, "", ""), startLine: 3, endLine: 3, replacement: []string{"THREE", "extra"}},
	}

	out, applied := applyEdits(lines, edits)
	want := []string{"ONE", "two", "THREE", "extra", "four"}
	if strings.Join(out, "|") != strings.Join(want, "|") {
		t.Fatalf("applyEdits() = %v, want %v", out, want)
	}
	// Report comes back in document order regardless of apply order.
	if applied[0].RecommendationID != "a" || applied[1].RecommendationID != "b" {
		t.Fatalf("applied order = %s, %s", applied[0].RecommendationID, applied[1].RecommendationID)
	}
}

func TestApplyEditsInsertion(t *testing.T) {
	lines := []string{"---", "title: T", "---", "body"}
	edits := []*edit{
		{rec: rec("a", types.RecMissingInfo, 3, "", ""), startLine: 3, endLine: 2,
			replacement: []string{`description: ""`}},
	}
	out, _ := applyEdits(lines, edits)
	want := []string{"---", "title: T", `description: ""`, "---", "body"}
	if strings.Join(out, "|") != strings.Join(want, "|") {
		t.Fatalf("applyEdits() = %v, want %v", out, want)
	}
}

func TestResolveConflictsPriority(t *testing.T) {
	structural := &edit{rec: rec("s", types.RecStructural, 5, "", ""), startLine: 5, endLine: 5,
		replacement: []string{"fixed"}}
	tone := &edit{rec: rec("t", types.RecTone, 5, "", ""), startLine: 5, endLine: 6,
		replacement: []string{"reworded"}}
	elsewhere := &edit{rec: rec("e", types.RecTone, 10, "", ""), startLine: 10, endLine: 10,
		replacement: []string{"other"}}

	kept, skipped := resolveConflicts([]*edit{tone, structural, elsewhere})
	if len(kept) != 2 {
		t.Fatalf("kept %d edits, want 2", len(kept))
	}
	keptIDs := map[string]bool{}
	for _, e := range kept {
		keptIDs[e.rec.ID] = true
	}
	if !keptIDs["s"] || !keptIDs["e"] {
		t.Fatalf("kept = %v, want structural and non-overlapping", keptIDs)
	}
	if len(skipped) != 1 || skipped[0].rec.ID != "t" {
		t.Fatalf("skipped = %v, want the tone edit", skipped)
	}
	if !strings.Contains(skipped[0].reason, "overlaps") {
		t.Errorf("skip reason = %q", skipped[0].reason)
	}
}

func TestResolveConflictsInsertionsCollide(t *testing.T) {
	a := &edit{rec: rec("a", types.RecMissingInfo, 3, "", ""), startLine: 3, endLine: 2,
		replacement: []string{"x: 1"}}
	b := &edit{rec: rec("b", types.RecMissingInfo, 3, "", ""), startLine: 3, endLine: 2,
		replacement: []string{"y: 2"}}

	kept, skipped := resolveConflicts([]*edit{a, b})
	if len(kept) != 1 || len(skipped) != 1 {
		t.Fatalf("kept=%d skipped=%d, want 1/1", len(kept), len(skipped))
	}
}

func TestContextWindow(t *testing.T) {
	lines := []string{"1", "2", "3", "4", "5"}
	start, window := contextWindow(lines, 1, 2)
	if start != 1 || len(window) != 3 {
		t.Fatalf("contextWindow(1) = %d, %v", start, window)
	}
	start, window = contextWindow(lines, 4, 2)
	if start != 2 || len(window) != 4 {
		t.Fatalf("contextWindow(4) = %d, %v", start, window)
	}
}
