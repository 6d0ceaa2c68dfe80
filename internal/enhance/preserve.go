package enhance

import (
	"fmt"
	"strings"

	"tbcv/internal/types"
)

// checkPreservation validates the enhanced document against the preservation
// rules and reports every broken invariant.
func checkPreservation(original, enhanced string, rules types.PreservationRules, frontmatterTargeted bool) types.PreservationReport {
	report := types.PreservationReport{
		FrontmatterIntact: true,
		CodeFencesIntact:  true,
		HeadingsIntact:    true,
	}

	checkKeywords(&report, original, enhanced, rules)

	if rules.PreserveFront && !frontmatterTargeted {
		origFM := frontmatterBlock(original)
		newFM := frontmatterBlock(enhanced)
		if origFM != newFM {
			report.FrontmatterIntact = false
			report.Violations = append(report.Violations, types.Violation{
				Rule:     "preserve_frontmatter",
				Severity: types.ViolationCritical,
				Detail:   "frontmatter changed by an edit that did not target it",
			})
		}
	}

	if rules.PreserveCode {
		origFences := fenceSignature(original)
		newFences := fenceSignature(enhanced)
		if len(origFences) != len(newFences) {
			report.CodeFencesIntact = false
			report.Violations = append(report.Violations, types.Violation{
				Rule:     "preserve_code_blocks",
				Severity: types.ViolationCritical,
				Detail: fmt.Sprintf("code fence count changed from %d to %d",
					len(origFences), len(newFences)),
			})
		} else {
			for i := range origFences {
				if origFences[i] != newFences[i] && origFences[i] != "" {
					report.CodeFencesIntact = false
					report.Violations = append(report.Violations, types.Violation{
						Rule:     "preserve_code_blocks",
						Severity: types.ViolationMajor,
						Detail:   fmt.Sprintf("fence %d language changed from %q to %q", i+1, origFences[i], newFences[i]),
					})
				}
			}
		}
	}

	if rules.PreserveHeadings {
		origDepth := maxHeadingDepth(original)
		newDepth := maxHeadingDepth(enhanced)
		if newDepth > origDepth+1 {
			report.HeadingsIntact = false
			report.Violations = append(report.Violations, types.Violation{
				Rule:     "preserve_headings",
				Severity: types.ViolationMajor,
				Detail:   fmt.Sprintf("heading depth grew from H%d to H%d", origDepth, newDepth),
			})
		}
	}

	origLen := float64(len(original))
	if origLen > 0 {
		delta := (float64(len(enhanced)) - origLen) / origLen
		report.LengthDeltaPct = delta
		if rules.MaxReductionPct > 0 && delta < -rules.MaxReductionPct {
			report.Violations = append(report.Violations, types.Violation{
				Rule:     "max_content_reduction",
				Severity: types.ViolationCritical,
				Detail:   fmt.Sprintf("content shrank %.1f%%, limit is %.1f%%", -delta*100, rules.MaxReductionPct*100),
			})
		}
		if rules.MinExpansionPct > 0 && delta < rules.MinExpansionPct {
			report.Violations = append(report.Violations, types.Violation{
				Rule:     "min_content_expansion",
				Severity: types.ViolationMinor,
				Detail:   fmt.Sprintf("content grew %.1f%%, expected at least %.1f%%", delta*100, rules.MinExpansionPct*100),
			})
		}
	}

	return report
}

// checkKeywords verifies every protected term survives. Keywords and
// technical terms match case-insensitively; product names must keep their
// exact casing, so a casing drift there is a violation of its own.
func checkKeywords(report *types.PreservationReport, original, enhanced string, rules types.PreservationRules) {
	var loose []string
	loose = append(loose, rules.Keywords...)
	loose = append(loose, rules.TechnicalTerms...)

	origLower := strings.ToLower(original)
	newLower := strings.ToLower(enhanced)

	for _, term := range loose {
		if term == "" || !strings.Contains(origLower, strings.ToLower(term)) {
			continue
		}
		report.KeywordsChecked++
		if strings.Contains(newLower, strings.ToLower(term)) {
			report.KeywordsPreserved++
			continue
		}
		report.Violations = append(report.Violations, types.Violation{
			Rule:     "preserve_keywords",
			Severity: types.ViolationCritical,
			Detail:   fmt.Sprintf("protected term %q is gone", term),
		})
	}

	for _, term := range rules.ProductNames {
		if term == "" || !strings.Contains(original, term) {
			continue
		}
		report.KeywordsChecked++
		if strings.Contains(enhanced, term) {
			report.KeywordsPreserved++
			continue
		}
		severity := types.ViolationCritical
		detail := fmt.Sprintf("protected term %q is gone", term)
		if strings.Contains(newLower, strings.ToLower(term)) {
			severity = types.ViolationMajor
			detail = fmt.Sprintf("product name %q survives only with different casing", term)
		}
		report.Violations = append(report.Violations, types.Violation{
			Rule:     "preserve_keywords",
			Severity: severity,
			Detail:   detail,
		})
	}
}

// scoreSafety computes the weighted aggregate. A critical violation pins the
// overall score to zero regardless of the components.
func scoreSafety(report types.PreservationReport) types.SafetyScore {
	s := types.SafetyScore{
		KeywordScore:   1.0,
		StructureScore: 1.0,
		StabilityScore: 1.0,
		AccuracyScore:  1.0,
	}

	if report.KeywordsChecked > 0 {
		s.KeywordScore = float64(report.KeywordsPreserved) / float64(report.KeywordsChecked)
	}

	structural := 0
	for _, v := range report.Violations {
		switch v.Rule {
		case "preserve_frontmatter", "preserve_code_blocks", "preserve_headings":
			structural++
		}
	}
	if structural > 0 {
		s.StructureScore = 1.0 / float64(1+structural)
	}

	delta := report.LengthDeltaPct
	if delta < 0 {
		delta = -delta
	}
	if delta > 0.5 {
		s.StabilityScore = 0.2
	} else {
		s.StabilityScore = 1.0 - delta
	}

	for _, v := range report.Violations {
		if v.Severity == types.ViolationMajor {
			s.AccuracyScore -= 0.2
		}
	}
	if s.AccuracyScore < 0 {
		s.AccuracyScore = 0
	}

	s.Overall = 0.35*s.KeywordScore + 0.30*s.StructureScore + 0.20*s.StabilityScore + 0.15*s.AccuracyScore
	if report.HasCritical() {
		s.Overall = 0
	}
	return s
}

// frontmatterBlock returns the leading --- delimited block, empty when absent.
func frontmatterBlock(content string) string {
	if !strings.HasPrefix(content, "---\n") {
		return ""
	}
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		t := strings.TrimRight(lines[i], " \t")
		if t == "---" || t == "..." {
			return strings.Join(lines[:i+1], "\n")
		}
	}
	return ""
}

// fenceSignature lists fence languages in order of appearance.
func fenceSignature(content string) []string {
	var langs []string
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				lang := strings.TrimPrefix(trimmed, "```")
				if idx := strings.IndexAny(lang, " \t"); idx >= 0 {
					lang = lang[:idx]
				}
				langs = append(langs, lang)
			}
			inFence = !inFence
		}
	}
	return langs
}

// maxHeadingDepth scans ATX headings outside fences.
func maxHeadingDepth(content string) int {
	depth := 0
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || !strings.HasPrefix(trimmed, "#") {
			continue
		}
		n := 0
		for n < len(trimmed) && trimmed[n] == '#' {
			n++
		}
		if n <= 6 && n < len(trimmed) && trimmed[n] == ' ' && n > depth {
			depth = n
		}
	}
	return depth
}
