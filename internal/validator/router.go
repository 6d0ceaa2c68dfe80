package validator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tbcv/internal/logging"
	"tbcv/internal/rules"
	"tbcv/internal/types"
)

// Tier assignment. Tier 1 is pure-local and cheap, tier 2 touches the parsed
// structure more deeply, tier 3 may hit the network.
const (
	TierStructural = 1
	TierAnalytical = 2
	TierSemantic   = 3
)

// tierOf maps validator names to tiers. Unknown validators run last.
var tierOf = map[string]int{
	"frontmatter": TierStructural,
	"markdown":    TierStructural,
	"structure":   TierStructural,
	"links":       TierAnalytical,
	"code":        TierAnalytical,
	"seo":         TierAnalytical,
	"fuzzy":       TierAnalytical,
	"truth":       TierSemantic,
	"llm":         TierSemantic,
}

// Router runs registered validators tier by tier. Validators within a tier
// run concurrently; tiers run strictly in order so the semantic tier can be
// skipped when structural problems already doom the document.
type Router struct {
	validators  []Validator
	rules       *rules.Loader
	terminateOn map[types.IssueLevel]bool
}

// NewRouter creates a router over the given validators. terminateOn lists the
// issue levels that stop execution between tiers; empty means critical only.
func NewRouter(loader *rules.Loader, terminateOn []string, validators ...Validator) *Router {
	levels := make(map[types.IssueLevel]bool)
	for _, l := range terminateOn {
		levels[types.IssueLevel(l)] = true
	}
	if len(levels) == 0 {
		levels[types.LevelCritical] = true
	}
	return &Router{validators: validators, rules: loader, terminateOn: levels}
}

// ValidatorNames returns the names of all registered validators, tier order.
func (r *Router) ValidatorNames() []string {
	names := make([]string, 0, len(r.validators))
	for _, v := range r.validators {
		names = append(names, v.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		ti, tj := tierFor(names[i]), tierFor(names[j])
		if ti != tj {
			return ti < tj
		}
		return names[i] < names[j]
	})
	return names
}

func tierFor(name string) int {
	if t, ok := tierOf[name]; ok {
		return t
	}
	return TierSemantic
}

// Tier returns the execution tier for a validator name.
func Tier(name string) int { return tierFor(name) }

// Run validates content through the enabled validators and returns the
// merged report. selected restricts the run to the named validators; empty
// means all registered. A failing validator contributes a validator_runtime
// issue instead of aborting the run.
func (r *Router) Run(ctx context.Context, filePath string, family types.Family, content string, selected []string) *types.ValidationReport {
	timer := logging.StartTimer(logging.CategoryRouter, "Run")
	defer timer.StopWithThreshold(2 * time.Second)

	doc := ParseDocument(content)
	report := &types.ValidationReport{
		Confidence: 1.0,
		Metrics:    make(map[string]any),
	}

	var wanted map[string]bool
	if len(selected) > 0 {
		wanted = make(map[string]bool, len(selected))
		for _, name := range selected {
			wanted[name] = true
		}
	}

	byTier := make(map[int][]Validator)
	for _, v := range r.validators {
		if wanted != nil && !wanted[v.Name()] {
			continue
		}
		if !r.rules.ValidatorEnabled(v.Name()) {
			logging.RouterDebug("Validator %s disabled by config", v.Name())
			continue
		}
		t := tierFor(v.Name())
		byTier[t] = append(byTier[t], v)
	}

	for _, tier := range []int{TierStructural, TierAnalytical, TierSemantic} {
		group := byTier[tier]
		if len(group) == 0 {
			continue
		}
		if ctx.Err() != nil {
			report.Notes = append(report.Notes, "validation cancelled")
			break
		}

		// Completed-tier issues feed the next tier; truth consumes fuzzy's
		// detections this way.
		prior := append([]types.Issue(nil), report.Issues...)
		r.runTier(ctx, tier, group, filePath, family, content, doc, prior, report)
		report.TiersExecuted = tierIndex(tier)

		if n := report.IssuesAtOrAbove(r.terminateOn); n > 0 && tier < TierSemantic {
			report.Terminated = true
			report.Notes = append(report.Notes,
				fmt.Sprintf("terminated after tier %d: %d terminal-level issues", tierIndex(tier), n))
			logging.Router("Early termination for %s after tier %d (%d issues)", filePath, tierIndex(tier), n)
			break
		}
	}

	finalizeReport(report)
	logging.Router("Validated %s: %d issues, %d tiers, severity=%s",
		filePath, len(report.Issues), report.TiersExecuted, report.MaxSeverity())
	return report
}

// tierIndex converts the tier constant to its ordinal (1..3). The constants
// are already ordinals; kept separate so reordering constants cannot skew
// reporting.
func tierIndex(tier int) int { return tier }

// runTier executes one tier's validators concurrently and merges results in
// validator-name order for deterministic output.
func (r *Router) runTier(ctx context.Context, tier int, group []Validator, filePath string, family types.Family, content string, doc *Document, prior []types.Issue, report *types.ValidationReport) {
	type result struct {
		name    string
		issues  []types.Issue
		err     error
		took    time.Duration
		metrics map[string]any
	}

	results := make([]result, len(group))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range group {
		g.Go(func() error {
			in := &Input{
				FilePath: filePath,
				Family:   family,
				Content:  content,
				Doc:      doc,
				Rules:    r.rules.Resolve(v.Name(), family),
				Prior:    prior,
				Metrics:  make(map[string]any),
			}
			start := time.Now()
			issues, err := v.Validate(gctx, in)
			results[i] = result{name: v.Name(), issues: issues, err: err, took: time.Since(start), metrics: in.Metrics}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].name < results[j].name })
	for _, res := range results {
		report.Timings = append(report.Timings, types.ValidatorTiming{
			Validator:  res.name,
			Tier:       tier,
			Duration:   res.took,
			IssueCount: len(res.issues),
			Failed:     res.err != nil,
		})
		if res.err != nil {
			logging.Get(logging.CategoryRouter).Error("Validator %s failed: %v", res.name, res.err)
			report.Issues = append(report.Issues, types.Issue{
				ID:            uuid.NewString(),
				Code:          "RUNTIME-001",
				Level:         types.LevelError,
				SeverityScore: 70,
				Category:      "validator_runtime",
				Message:       fmt.Sprintf("validator %s failed: %v", res.name, res.err),
				Source:        types.SourceValidatorRuntime,
				Confidence:    1.0,
				Validator:     res.name,
			})
			continue
		}
		report.Issues = append(report.Issues, res.issues...)
		for k, val := range res.metrics {
			report.Metrics[res.name+"."+k] = val
		}
	}
}

// finalizeReport computes the derived fields after all tiers ran.
func finalizeReport(report *types.ValidationReport) {
	autoFixable := 0
	minConfidence := 1.0
	for _, is := range report.Issues {
		if is.AutoFixable {
			autoFixable++
		}
		if is.Confidence > 0 && is.Confidence < minConfidence {
			minConfidence = is.Confidence
		}
	}
	report.AutoFixable = autoFixable
	report.Confidence = minConfidence
	report.Metrics["issue_count"] = len(report.Issues)
	report.Metrics["auto_fixable"] = autoFixable
}
