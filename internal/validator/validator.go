// Package validator implements the tiered validation pipeline: cheap
// structural checks first, network-dependent semantic checks last, with
// early termination between tiers when severe issues already exist.
package validator

import (
	"context"

	"github.com/google/uuid"

	"tbcv/internal/rules"
	"tbcv/internal/types"
)

// Input is the unit of work handed to every validator.
type Input struct {
	FilePath string
	Family   types.Family
	Content  string
	Doc      *Document // parsed once, shared by all validators
	Rules    rules.ResolvedRules

	// Prior holds the issues from already-completed tiers, letting later
	// tiers build on earlier findings instead of re-deriving them.
	Prior []types.Issue

	// Metrics is a per-validator sink merged into the report after the tier
	// completes. Not shared between validators.
	Metrics map[string]any
}

// Validator is one named check stage.
type Validator interface {
	// Name is the stable identifier used in configs and issue attribution.
	Name() string

	// Validate inspects the document and returns its findings. An error means
	// the validator itself failed, not that the content is invalid.
	Validate(ctx context.Context, in *Input) ([]types.Issue, error)
}

// issue builds a finding with the common fields filled in.
func issue(validator, code string, level types.IssueLevel, line int, category, message string) types.Issue {
	return types.Issue{
		ID:            uuid.NewString(),
		Code:          code,
		Level:         level,
		SeverityScore: severityScore(level),
		Line:          line,
		Category:      category,
		Message:       message,
		Source:        types.SourceRuleBased,
		Confidence:    1.0,
		Validator:     validator,
	}
}

func severityScore(level types.IssueLevel) int {
	switch level {
	case types.LevelCritical:
		return 90
	case types.LevelError:
		return 70
	case types.LevelWarning:
		return 40
	default:
		return 10
	}
}

// levelFor returns the configured level for a rule, or the built-in default
// when the rule table has no entry.
func levelFor(rr rules.ResolvedRules, ruleID string, def types.IssueLevel) types.IssueLevel {
	if r, ok := rr.Rules[ruleID]; ok && r.Level != "" {
		return r.Level
	}
	return def
}

// ruleEnabled reports whether a rule is on. Rules absent from the resolved
// table default to enabled so a missing config file still validates.
func ruleEnabled(rr rules.ResolvedRules, ruleID string) bool {
	r, ok := rr.Rules[ruleID]
	if !ok {
		return true
	}
	return r.Enabled
}
