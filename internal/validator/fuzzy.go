package validator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"tbcv/internal/truth"
	"tbcv/internal/types"
)

// FuzzyValidator detects product/plugin name mentions and flags near-miss
// spellings against the truth index. An exact canonical or alias hit is
// accepted; a trigram-similar token above the match threshold is reported as
// a likely misspelling.
type FuzzyValidator struct {
	index *truth.Index
}

func NewFuzzyValidator(index *truth.Index) *FuzzyValidator {
	return &FuzzyValidator{index: index}
}

func (v *FuzzyValidator) Name() string { return "fuzzy" }

// codeSpanRe captures inline code spans, the usual home of plugin names.
var codeSpanRe = regexp.MustCompile("`([^`\n]+)`")

func (v *FuzzyValidator) Validate(ctx context.Context, in *Input) ([]types.Issue, error) {
	if v.index == nil {
		return nil, nil
	}
	doc := in.Doc
	var issues []types.Issue

	records := v.index.Family(in.Family)
	if len(records) == 0 {
		records = v.index.Family(types.FamilyGeneric)
	}
	if len(records) == 0 {
		return nil, nil
	}

	threshold := truth.AliasThreshold
	reported := make(map[string]bool)

	for i, line := range doc.Lines {
		lineNo := i + 1
		if lineNo < doc.BodyFirstLine || insideFence(doc, lineNo) {
			continue
		}
		for _, m := range codeSpanRe.FindAllStringSubmatch(line, -1) {
			candidate := strings.TrimSpace(m[1])
			if candidate == "" || len(candidate) > 64 || reported[candidate] {
				continue
			}
			match, sim, exact := bestTruthMatch(records, candidate)
			if match == nil || exact {
				continue
			}
			if sim >= threshold {
				reported[candidate] = true
				is := issue(v.Name(), "FUZZY-001",
					levelFor(in.Rules, "near_miss_names", types.LevelWarning),
					lineNo, "fuzzy", fmt.Sprintf("%q looks like a misspelling of %q", candidate, match.CanonicalName))
				is.Subcategory = match.Kind
				is.Suggestion = fmt.Sprintf("replace with %q", match.CanonicalName)
				is.FixExample = strings.Replace(line, candidate, match.CanonicalName, 1)
				is.AutoFixable = true
				is.Confidence = sim
				issues = append(issues, is)
			}
		}
	}

	if ruleEnabled(in.Rules, "forbidden_patterns") {
		issues = append(issues, v.checkForbidden(in, records)...)
	}

	return issues, nil
}

// bestTruthMatch finds the closest record by canonical name or alias.
// exact=true means the candidate is already a correct name.
func bestTruthMatch(records []*types.TruthRecord, candidate string) (*types.TruthRecord, float64, bool) {
	lower := strings.ToLower(candidate)
	var best *types.TruthRecord
	bestSim := 0.0
	for _, r := range records {
		names := append([]string{r.CanonicalName}, r.Aliases...)
		for _, name := range names {
			if strings.ToLower(name) == lower {
				return r, 1.0, true
			}
			if sim := truth.TrigramJaccard(lower, strings.ToLower(name)); sim > bestSim {
				best, bestSim = r, sim
			}
		}
	}
	return best, bestSim, false
}

// checkForbidden flags occurrences of record-declared forbidden patterns.
func (v *FuzzyValidator) checkForbidden(in *Input, records []*types.TruthRecord) []types.Issue {
	var issues []types.Issue
	for _, r := range records {
		for _, pattern := range r.ForbiddenPatterns {
			if pattern == "" {
				continue
			}
			for i, line := range in.Doc.Lines {
				lineNo := i + 1
				if insideFence(in.Doc, lineNo) {
					continue
				}
				if strings.Contains(strings.ToLower(line), strings.ToLower(pattern)) {
					is := issue(v.Name(), "FUZZY-002",
						levelFor(in.Rules, "forbidden_patterns", types.LevelError),
						lineNo, "fuzzy",
						fmt.Sprintf("forbidden usage %q (see %s)", pattern, r.CanonicalName))
					is.ContextSnippet = line
					issues = append(issues, is)
				}
			}
		}
	}
	return issues
}
