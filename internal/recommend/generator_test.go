package recommend

import (
	"testing"

	"tbcv/internal/types"
)

func proposal(id string, t types.RecommendationType, line, severity int, change, rationale string) *types.Recommendation {
	return &types.Recommendation{
		ID:              id,
		Type:            t,
		Target:          types.TargetLocation{Line: line},
		SeverityScore:   severity,
		SuggestedChange: change,
		Rationale:       rationale,
	}
}

func TestMergeSimilarCollapsesDuplicates(t *testing.T) {
	recs := []*types.Recommendation{
		proposal("a", types.RecStructural, 5, 40,
			"wrap the bare URL in a markdown link using the text form", "bare URL"),
		proposal("b", types.RecStructural, 5, 70,
			"wrap the bare URL in a markdown link using the link form", "bare URL flagged twice"),
		proposal("c", types.RecStructural, 9, 40,
			"wrap the bare URL in a markdown link using the text form", "different line"),
	}

	out := mergeSimilar(recs)
	if len(out) != 2 {
		t.Fatalf("mergeSimilar() kept %d, want 2", len(out))
	}
	merged := out[0]
	if merged.ID != "a" {
		t.Fatalf("survivor = %s, want first-seen a", merged.ID)
	}
	if merged.SeverityScore != 70 {
		t.Errorf("merged severity = %d, want max 70", merged.SeverityScore)
	}
	if merged.Rationale != "bare URL; bare URL flagged twice" {
		t.Errorf("merged rationale = %q", merged.Rationale)
	}
}

func TestMergeSimilarKeepsDistinctTypes(t *testing.T) {
	recs := []*types.Recommendation{
		proposal("a", types.RecStructural, 5, 40, "demote the second heading level", ""),
		proposal("b", types.RecSEO, 5, 40, "demote the second heading level", ""),
	}
	if out := mergeSimilar(recs); len(out) != 2 {
		t.Fatalf("mergeSimilar() merged across types: kept %d", len(out))
	}
}

func TestMergeSimilarKeepsDissimilarChanges(t *testing.T) {
	recs := []*types.Recommendation{
		proposal("a", types.RecStructural, 5, 40, "add a language tag to the opening fence", ""),
		proposal("b", types.RecStructural, 5, 40, "remove the trailing whitespace from this line", ""),
	}
	if out := mergeSimilar(recs); len(out) != 2 {
		t.Fatalf("mergeSimilar() merged dissimilar changes: kept %d", len(out))
	}
}

func TestOrderRecommendations(t *testing.T) {
	recs := []*types.Recommendation{
		proposal("b", types.RecTone, 20, 40, "x", ""),
		proposal("a", types.RecTone, 20, 40, "x", ""),
		proposal("c", types.RecStructural, 3, 90, "x", ""),
		proposal("d", types.RecSEO, 8, 40, "x", ""),
	}
	orderRecommendations(recs)

	wantOrder := []string{"c", "d", "a", "b"}
	for i, want := range wantOrder {
		if recs[i].ID != want {
			t.Fatalf("order[%d] = %s, want %s (full: %v)", i, recs[i].ID, want,
				[]string{recs[0].ID, recs[1].ID, recs[2].ID, recs[3].ID})
		}
	}
}

func TestTokenJaccard(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"wrap the url in a link", "wrap the url in a link", 1.0, 1.0},
		{"add a description field here", "remove the trailing tab character", 0, 0.2},
		{"ok", "ok", 1.0, 1.0}, // short strings fall back to trigrams
	}
	for _, tt := range tests {
		got := tokenJaccard(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("tokenJaccard(%q, %q) = %f, want in [%f, %f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
