package truth

import (
	"context"
	"testing"

	"tbcv/internal/types"
)

func sampleRecords() []*types.TruthRecord {
	return []*types.TruthRecord{
		{
			ID:            "r1",
			Family:        types.Family("obsidian"),
			CanonicalName: "Dataview",
			Kind:          "plugin",
			Aliases:       []string{"dataview plugin", "DV"},
			Combinations:  [][]string{{"Dataview", "Templater"}},
		},
		{
			ID:            "r2",
			Family:        types.Family("obsidian"),
			CanonicalName: "Templater",
			Kind:          "plugin",
			Aliases:       []string{"templater plugin"},
		},
		{
			ID:            "r3",
			Family:        types.Family("hugo"),
			CanonicalName: "Page Bundles",
			Kind:          "concept",
		},
	}
}

func TestIndexLookup(t *testing.T) {
	ix := NewIndex(nil, 0)
	ix.Replace(sampleRecords())

	if r := ix.Lookup("dataview"); r == nil || r.ID != "r1" {
		t.Fatalf("Lookup(dataview) = %v, want r1", r)
	}
	if r := ix.Lookup("DATAVIEW"); r == nil || r.ID != "r1" {
		t.Fatal("Lookup is not case-insensitive")
	}
	if r := ix.Lookup("unknown"); r != nil {
		t.Fatalf("Lookup(unknown) = %v, want nil", r)
	}
}

func TestIndexByAlias(t *testing.T) {
	ix := NewIndex(nil, 0)
	ix.Replace(sampleRecords())

	tests := []struct {
		query string
		want  []string
	}{
		{"Dataview", []string{"r1"}},          // canonical hit
		{"dv", []string{"r1"}},                // alias hit
		{"templater plugins", []string{"r2"}}, // trigram fallback
		{"completely different", nil},
	}
	for _, tt := range tests {
		got := ix.ByAlias(tt.query)
		if len(got) != len(tt.want) {
			t.Errorf("ByAlias(%q) returned %d records, want %d", tt.query, len(got), len(tt.want))
			continue
		}
		for i, r := range got {
			if r.ID != tt.want[i] {
				t.Errorf("ByAlias(%q)[%d] = %s, want %s", tt.query, i, r.ID, tt.want[i])
			}
		}
	}
}

func TestIndexSemanticFallsBackWithoutEngine(t *testing.T) {
	ix := NewIndex(nil, 0)
	ix.Replace(sampleRecords())

	results := ix.Semantic(context.Background(), "Dataview", types.Family("obsidian"), 5)
	if len(results) != 1 {
		t.Fatalf("Semantic() returned %d results, want 1", len(results))
	}
	if !results[0].Fallback {
		t.Error("Semantic() fallback flag = false, want true with nil engine")
	}
	if results[0].Record.ID != "r1" {
		t.Errorf("Semantic() record = %s, want r1", results[0].Record.ID)
	}
}

func TestIndexValidCombination(t *testing.T) {
	ix := NewIndex(nil, 0)
	ix.Replace(sampleRecords())

	tests := []struct {
		names []string
		want  bool
	}{
		{[]string{"Dataview", "Templater"}, true},
		{[]string{"templater", "dataview"}, true}, // order and case free
		{[]string{"Dataview"}, false},
		{[]string{"Dataview", "Page Bundles"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := ix.ValidCombination(tt.names); got != tt.want {
			t.Errorf("ValidCombination(%v) = %v, want %v", tt.names, got, tt.want)
		}
	}
}

func TestIndexClear(t *testing.T) {
	ix := NewIndex(nil, 0)
	ix.Replace(sampleRecords())

	ix.Clear(types.Family("obsidian"))
	if r := ix.Lookup("Dataview"); r != nil {
		t.Fatal("cleared family record still resolvable")
	}
	if r := ix.Lookup("Page Bundles"); r == nil {
		t.Fatal("record from other family lost on Clear")
	}
	stats := ix.Stats()
	if stats["obsidian"] != 0 || stats["hugo"] != 1 {
		t.Fatalf("Stats() after Clear = %v", stats)
	}
}

func TestIndexStats(t *testing.T) {
	ix := NewIndex(nil, 0)
	ix.Replace(sampleRecords())

	stats := ix.Stats()
	if stats["obsidian"] != 2 || stats["hugo"] != 1 {
		t.Fatalf("Stats() = %v, want obsidian=2 hugo=1", stats)
	}
}

func TestTrigramJaccard(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"dataview", "dataview", 1.0, 1.0},
		{"templater plugin", "templater plugins", 0.85, 1.0},
		{"dataview", "zzzzz", 0, 0},
		{"", "dataview", 0, 0},
	}
	for _, tt := range tests {
		got := TrigramJaccard(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("TrigramJaccard(%q, %q) = %f, want in [%f, %f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
