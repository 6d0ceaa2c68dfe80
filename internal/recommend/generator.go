// Package recommend turns validation findings into reviewable edit
// proposals. Each issue category has a handler that knows what kind of edit
// fixes it; near-duplicate proposals are merged before persistence.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"tbcv/internal/logging"
	"tbcv/internal/store"
	"tbcv/internal/truth"
	"tbcv/internal/types"
)

// MergeThreshold is the token-set Jaccard similarity above which two
// proposals for the same location are considered duplicates.
const MergeThreshold = 0.85

// Generator builds recommendations from a validation report.
type Generator struct {
	store  *store.Store
	critic Critic // optional
}

// Critic scores a recommendation's usefulness in [0,1]. Implemented by the
// LLM self-critique; nil disables critique.
type Critic interface {
	Critique(ctx context.Context, rec *types.Recommendation, content string) (float64, error)
}

// NewGenerator creates a generator. critic may be nil.
func NewGenerator(st *store.Store, critic Critic) *Generator {
	return &Generator{store: st, critic: critic}
}

// Generate derives, merges, orders and persists recommendations for a
// validation. Existing pending recommendations are left alone; callers use
// Rebuild for a clean slate.
func (g *Generator) Generate(ctx context.Context, v *types.Validation) ([]*types.Recommendation, error) {
	if v.Report == nil {
		return nil, nil
	}
	timer := logging.StartTimer(logging.CategoryRecommend, "Generate")
	defer timer.Stop()

	var recs []*types.Recommendation
	for _, is := range v.Report.Issues {
		if rec := g.fromIssue(v, is); rec != nil {
			recs = append(recs, rec)
		}
	}

	recs = mergeSimilar(recs)
	orderRecommendations(recs)

	if g.critic != nil {
		g.critique(ctx, recs, v.OriginalContent)
	}

	if len(recs) > 0 {
		if err := g.store.CreateRecommendations(ctx, recs); err != nil {
			return nil, fmt.Errorf("persisting recommendations: %w", err)
		}
	}
	logging.Get(logging.CategoryRecommend).Info("Generated %d recommendations for validation %s", len(recs), v.ID)
	return recs, nil
}

// Rebuild deletes the validation's pending recommendations and regenerates
// from the stored report. Approved, rejected and applied ones survive.
func (g *Generator) Rebuild(ctx context.Context, v *types.Validation) (deleted, created int, err error) {
	deleted, err = g.store.DeleteRecommendationsByValidation(ctx, v.ID)
	if err != nil {
		return 0, 0, err
	}
	recs, err := g.Generate(ctx, v)
	if err != nil {
		return deleted, 0, err
	}
	return deleted, len(recs), nil
}

// fromIssue maps one issue to a proposal. Issues with no actionable edit
// (runtime failures, pure informational notes) yield nil.
func (g *Generator) fromIssue(v *types.Validation, is types.Issue) *types.Recommendation {
	if is.Source == types.SourceValidatorRuntime {
		return nil
	}

	rec := &types.Recommendation{
		ID:           uuid.NewString(),
		ValidationID: v.ID,
		Status:       types.RecPending,
		Target: types.TargetLocation{
			Line:    is.Line,
			Column:  is.Column,
			EndLine: is.EndLine,
		},
		SeverityScore: is.SeverityScore,
		Rationale:     is.Message,
		CreatedAt:     time.Now().UTC(),
	}

	switch is.Category {
	case "fuzzy":
		if is.Code == "FUZZY-001" {
			rec.Type = types.RecIncorrectPlugin
			rec.SuggestedChange = is.FixExample
			if rec.SuggestedChange == "" {
				rec.SuggestedChange = is.Suggestion
			}
		} else {
			rec.Type = types.RecIncorrectPlugin
			rec.SuggestedChange = is.Suggestion
		}
	case "truth":
		if strings.Contains(is.Message, "not a declared valid combination") {
			rec.Type = types.RecIncorrectPlugin
		} else {
			rec.Type = types.RecMissingPlugin
		}
		rec.SuggestedChange = is.Suggestion
	case "frontmatter":
		rec.Type = types.RecMissingInfo
		rec.Target.Selector = "frontmatter"
		rec.SuggestedChange = is.Suggestion
	case "structure", "markdown", "code", "links":
		rec.Type = types.RecStructural
		rec.SuggestedChange = firstNonEmpty(is.FixExample, is.Suggestion)
	case "seo":
		rec.Type = types.RecSEO
		rec.Target.Selector = is.Subcategory
		rec.SuggestedChange = is.Suggestion
	case "tone", "clarity", "completeness", "quality":
		rec.Type = types.RecTone
		rec.SuggestedChange = is.Suggestion
	default:
		rec.Type = types.RecOther
		rec.SuggestedChange = is.Suggestion
	}

	if rec.SuggestedChange == "" && !is.AutoFixable {
		// Nothing concrete to propose.
		return nil
	}
	return rec
}

// mergeSimilar collapses proposals whose suggested change is near-identical
// for the same target line, keeping the highest severity and concatenating
// distinct rationales.
func mergeSimilar(recs []*types.Recommendation) []*types.Recommendation {
	var out []*types.Recommendation
	for _, rec := range recs {
		merged := false
		for _, kept := range out {
			if kept.Type != rec.Type || kept.Target.Line != rec.Target.Line {
				continue
			}
			if tokenJaccard(kept.SuggestedChange, rec.SuggestedChange) >= MergeThreshold {
				if rec.SeverityScore > kept.SeverityScore {
					kept.SeverityScore = rec.SeverityScore
				}
				if !strings.Contains(kept.Rationale, rec.Rationale) {
					kept.Rationale += "; " + rec.Rationale
				}
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, rec)
		}
	}
	return out
}

// tokenJaccard computes Jaccard similarity over whitespace tokens, falling
// back to trigram similarity for short strings.
func tokenJaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) < 3 || len(tb) < 3 {
		return truth.TrigramJaccard(a, b)
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = true
	}
	return out
}

// orderRecommendations sorts by severity descending, then earlier target
// location, then id for a total order.
func orderRecommendations(recs []*types.Recommendation) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.SeverityScore != b.SeverityScore {
			return a.SeverityScore > b.SeverityScore
		}
		if a.Target.Line != b.Target.Line {
			return a.Target.Line < b.Target.Line
		}
		return a.ID < b.ID
	})
}

// critique scores each proposal; failures leave the score unset.
func (g *Generator) critique(ctx context.Context, recs []*types.Recommendation, content string) {
	for _, rec := range recs {
		score, err := g.critic.Critique(ctx, rec, content)
		if err != nil {
			logging.Get(logging.CategoryRecommend).Debug("Critique skipped for %s: %v", rec.ID, err)
			continue
		}
		rec.CritiqueScore = score
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
