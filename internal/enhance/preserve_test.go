package enhance

import (
	"testing"

	"tbcv/internal/types"
)

const preserveOriginal = `---
title: Guide
---
# Guide

Use Dataview to query your notes.

` + "```go\nfmt.Println()\n```\n"

func TestCheckPreservationClean(t *testing.T) {
	enhanced := preserveOriginal + "\nMore detail about Dataview queries.\n"
	report := checkPreservation(preserveOriginal, enhanced, types.DefaultPreservationRules(), false)

	if len(report.Violations) != 0 {
		t.Fatalf("Violations = %v, want none", report.Violations)
	}
	if !report.FrontmatterIntact || !report.CodeFencesIntact || !report.HeadingsIntact {
		t.Fatal("intact flags cleared on a clean enhancement")
	}
}

func TestCheckPreservationKeywordLoss(t *testing.T) {
	rules := types.DefaultPreservationRules()
	rules.ProductNames = []string{"Dataview"}

	enhanced := `---
title: Guide
---
# Guide

Use the query plugin to query your notes.

` + "```go\nfmt.Println()\n```\n"

	report := checkPreservation(preserveOriginal, enhanced, rules, false)
	if !report.HasCritical() {
		t.Fatal("dropped product name did not produce a critical violation")
	}
	if report.KeywordsChecked != 1 || report.KeywordsPreserved != 0 {
		t.Fatalf("keywords checked/preserved = %d/%d, want 1/0",
			report.KeywordsChecked, report.KeywordsPreserved)
	}

	if score := scoreSafety(report); score.Overall != 0 {
		t.Fatalf("safety score = %f, want 0 on critical violation", score.Overall)
	}
}

func TestCheckPreservationCaseChangeIsMajor(t *testing.T) {
	rules := types.DefaultPreservationRules()
	rules.ProductNames = []string{"Dataview"}

	enhanced := `---
title: Guide
---
# Guide

Use dataview to query your notes.

` + "```go\nfmt.Println()\n```\n"

	report := checkPreservation(preserveOriginal, enhanced, rules, false)
	if report.HasCritical() {
		t.Fatal("casing drift graded critical, want major")
	}
	if len(report.Violations) != 1 || report.Violations[0].Severity != types.ViolationMajor {
		t.Fatalf("Violations = %v, want one major", report.Violations)
	}
}

func TestCheckPreservationKeywordsIgnoreCase(t *testing.T) {
	rules := types.DefaultPreservationRules()
	rules.Keywords = []string{"DATAVIEW"}
	rules.TechnicalTerms = []string{"Query"}

	enhanced := `---
title: Guide
---
# Guide

Use dataview to QUERY your notes.

` + "```go\nfmt.Println()\n```\n"

	report := checkPreservation(preserveOriginal, enhanced, rules, false)
	if len(report.Violations) != 0 {
		t.Fatalf("Violations = %v, want none for recased keywords", report.Violations)
	}
	if report.KeywordsChecked != 2 || report.KeywordsPreserved != 2 {
		t.Fatalf("keywords checked/preserved = %d/%d, want 2/2",
			report.KeywordsChecked, report.KeywordsPreserved)
	}
}

func TestCheckPreservationFrontmatterDrift(t *testing.T) {
	enhanced := `---
title: Different
---
# Guide

Use Dataview to query your notes.

` + "```go\nfmt.Println()\n```\n"

	report := checkPreservation(preserveOriginal, enhanced, types.DefaultPreservationRules(), false)
	if report.FrontmatterIntact {
		t.Fatal("frontmatter drift not detected")
	}
	if !report.HasCritical() {
		t.Fatal("untargeted frontmatter change should be critical")
	}

	// The same change is fine when the edit targeted the frontmatter.
	targeted := checkPreservation(preserveOriginal, enhanced, types.DefaultPreservationRules(), true)
	if !targeted.FrontmatterIntact {
		t.Fatal("targeted frontmatter edit flagged as drift")
	}
}

func TestCheckPreservationFenceRemoved(t *testing.T) {
	enhanced := `---
title: Guide
---
# Guide

Use Dataview to query your notes.
`
	report := checkPreservation(preserveOriginal, enhanced, types.DefaultPreservationRules(), false)
	if report.CodeFencesIntact {
		t.Fatal("removed code fence not detected")
	}
	if !report.HasCritical() {
		t.Fatal("fence count change should be critical")
	}
}

func TestCheckPreservationShrinkage(t *testing.T) {
	report := checkPreservation(preserveOriginal, "# Guide\n", types.DefaultPreservationRules(), false)
	found := false
	for _, v := range report.Violations {
		if v.Rule == "max_content_reduction" && v.Severity == types.ViolationCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("Violations = %v, want max_content_reduction critical", report.Violations)
	}
}

func TestScoreSafetyComponents(t *testing.T) {
	report := types.PreservationReport{
		KeywordsChecked:   4,
		KeywordsPreserved: 2,
		FrontmatterIntact: true,
		CodeFencesIntact:  true,
		HeadingsIntact:    true,
	}
	score := scoreSafety(report)
	if score.KeywordScore != 0.5 {
		t.Errorf("KeywordScore = %f, want 0.5", score.KeywordScore)
	}
	if score.Overall <= 0 || score.Overall >= 1 {
		t.Errorf("Overall = %f, want in (0,1)", score.Overall)
	}
}

func TestFenceSignature(t *testing.T) {
	content := "```go\ncode\n```\ntext\n```bash\nmore\n```\n"
	got := fenceSignature(content)
	if len(got) != 2 || got[0] != "go" || got[1] != "bash" {
		t.Fatalf("fenceSignature() = %v, want [go bash]", got)
	}
}

func TestMaxHeadingDepth(t *testing.T) {
	content := "# One\n\n### Deep\n\n```text\n##### not a heading\n```\n"
	if got := maxHeadingDepth(content); got != 3 {
		t.Fatalf("maxHeadingDepth() = %d, want 3", got)
	}
}
