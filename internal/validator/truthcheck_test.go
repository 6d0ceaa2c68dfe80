package validator

import (
	"context"
	"testing"

	"tbcv/internal/config"
	"tbcv/internal/truth"
	"tbcv/internal/types"
)

func truthIndex() *truth.Index {
	ix := truth.NewIndex(nil, 0)
	ix.Replace([]*types.TruthRecord{
		{
			ID:            "r1",
			Family:        types.FamilyGeneric,
			CanonicalName: "Dataview",
			Kind:          "plugin",
			Aliases:       []string{"DV"},
			Combinations:  [][]string{{"Dataview", "Templater"}},
		},
		{
			ID:            "r2",
			Family:        types.FamilyGeneric,
			CanonicalName: "Templater",
			Kind:          "plugin",
		},
		{
			ID:            "r3",
			Family:        types.FamilyGeneric,
			CanonicalName: "QuickAdd",
			Kind:          "plugin",
		},
	})
	return ix
}

func truthInput(content string, prior []types.Issue) *Input {
	return &Input{
		FilePath: "doc.md",
		Family:   types.FamilyGeneric,
		Content:  content,
		Doc:      ParseDocument(content),
		Prior:    prior,
		Metrics:  make(map[string]any),
	}
}

func TestTruthAliasUsage(t *testing.T) {
	v := NewTruthValidator(truthIndex(), nil, config.LLMConfig{})
	issues, err := v.Validate(context.Background(), truthInput("# T\n\nQuery notes with DV expressions.\n", nil))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(issues) != 1 || issues[0].Code != "TRUTH-001" {
		t.Fatalf("issues = %+v, want one TRUTH-001", issues)
	}
	if !issues[0].AutoFixable {
		t.Error("alias issue not marked auto-fixable")
	}
}

func TestTruthCombinationCountsFuzzyDetections(t *testing.T) {
	content := "# T\n\nPair this with Dataview for queries.\n"

	// The document alone mentions one plugin, so no combination to judge.
	v := NewTruthValidator(truthIndex(), nil, config.LLMConfig{})
	issues, err := v.Validate(context.Background(), truthInput(content, nil))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	for _, is := range issues {
		if is.Code == "TRUTH-002" {
			t.Fatalf("combination issue without a second mention: %+v", is)
		}
	}

	// A near-miss detection of QuickAdd from the content tier makes it two
	// mentions, and [Dataview, QuickAdd] is not a declared combination.
	prior := []types.Issue{{
		Code:       "FUZZY-001",
		Validator:  "fuzzy",
		Suggestion: `replace with "QuickAdd"`,
	}}
	issues, err = v.Validate(context.Background(), truthInput(content, prior))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	found := false
	for _, is := range issues {
		if is.Code == "TRUTH-002" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no TRUTH-002 despite undeclared combination, issues = %+v", issues)
	}
}

func TestTruthDeclaredCombinationPasses(t *testing.T) {
	content := "# T\n\nDataview works well with Templater.\n"
	v := NewTruthValidator(truthIndex(), nil, config.LLMConfig{})
	issues, err := v.Validate(context.Background(), truthInput(content, nil))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	for _, is := range issues {
		if is.Code == "TRUTH-002" {
			t.Fatalf("declared combination flagged: %+v", is)
		}
	}
}
