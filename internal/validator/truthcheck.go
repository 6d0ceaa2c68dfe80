package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"tbcv/internal/config"
	"tbcv/internal/llm"
	"tbcv/internal/logging"
	"tbcv/internal/truth"
	"tbcv/internal/types"
)

// TruthValidator checks factual accuracy against the curated truth index in
// three phases: deterministic rule checks, optional LLM enhancement, then a
// merge where rule-based findings take precedence over overlapping LLM ones.
type TruthValidator struct {
	index  *truth.Index
	client llm.Client
	cfg    config.LLMConfig
}

func NewTruthValidator(index *truth.Index, client llm.Client, cfg config.LLMConfig) *TruthValidator {
	return &TruthValidator{index: index, client: client, cfg: cfg}
}

func (v *TruthValidator) Name() string { return "truth" }

func (v *TruthValidator) Validate(ctx context.Context, in *Input) ([]types.Issue, error) {
	ruleIssues := v.rulePhase(in)

	llmIssues, skipped := v.llmPhase(ctx, in)
	if skipped != "" {
		in.Metrics["llm_skipped"] = skipped
	}

	return mergeTruthIssues(ruleIssues, llmIssues, v.confidenceThreshold()), nil
}

func (v *TruthValidator) confidenceThreshold() float64 {
	if v.cfg.ConfidenceThreshold > 0 {
		return v.cfg.ConfidenceThreshold
	}
	return 0.7
}

// rulePhase runs the deterministic checks: alias usage where the canonical
// name is expected, and undeclared plugin combinations.
func (v *TruthValidator) rulePhase(in *Input) []types.Issue {
	if v.index == nil {
		return nil
	}
	var issues []types.Issue

	records := v.index.Family(in.Family)
	if len(records) == 0 {
		records = v.index.Family(types.FamilyGeneric)
	}

	var mentioned []*types.TruthRecord
	seen := make(map[string]bool)
	for _, r := range records {
		if line := v.mentionLine(in.Doc, r.CanonicalName); line > 0 {
			if !seen[r.ID] {
				seen[r.ID] = true
				mentioned = append(mentioned, r)
			}
			continue
		}
		// Alias mentions without the canonical name.
		if ruleEnabled(in.Rules, "canonical_names") {
			for _, alias := range r.Aliases {
				if line := v.mentionLine(in.Doc, alias); line > 0 {
					if !seen[r.ID] {
						seen[r.ID] = true
						mentioned = append(mentioned, r)
					}
					is := issue(v.Name(), "TRUTH-001",
						levelFor(in.Rules, "canonical_names", types.LevelWarning),
						line, "truth", fmt.Sprintf("%q should use the canonical name %q", alias, r.CanonicalName))
					is.Suggestion = fmt.Sprintf("replace %q with %q", alias, r.CanonicalName)
					is.AutoFixable = true
					issues = append(issues, is)
					break
				}
			}
		}
	}

	// Fuzzy near-miss detections from the content tier count as mentions:
	// a misspelled plugin name still participates in the combination check.
	for _, is := range in.Prior {
		if is.Validator != "fuzzy" || is.Code != "FUZZY-001" {
			continue
		}
		name := suggestedName(is.Suggestion)
		if name == "" {
			continue
		}
		if r := v.index.Lookup(name); r != nil && !seen[r.ID] {
			seen[r.ID] = true
			mentioned = append(mentioned, r)
		}
	}

	if ruleEnabled(in.Rules, "valid_combinations") && len(mentioned) >= 2 {
		declaresCombos := false
		names := make([]string, 0, len(mentioned))
		for _, r := range mentioned {
			names = append(names, r.CanonicalName)
			if len(r.Combinations) > 0 {
				declaresCombos = true
			}
		}
		if declaresCombos && !v.index.ValidCombination(names) {
			is := issue(v.Name(), "TRUTH-002",
				levelFor(in.Rules, "valid_combinations", types.LevelError),
				0, "truth",
				fmt.Sprintf("combination [%s] is not a declared valid combination", strings.Join(names, ", ")))
			issues = append(issues, is)
		}
	}

	return issues
}

// suggestedNameRe extracts the quoted replacement from a fuzzy suggestion.
var suggestedNameRe = regexp.MustCompile(`"([^"]+)"\s*$`)

func suggestedName(suggestion string) string {
	if m := suggestedNameRe.FindStringSubmatch(suggestion); m != nil {
		return m[1]
	}
	return ""
}

// mentionLine returns the first 1-based body line mentioning name, 0 if none.
func (v *TruthValidator) mentionLine(doc *Document, name string) int {
	needle := strings.ToLower(name)
	for i := doc.BodyFirstLine - 1; i < len(doc.Lines); i++ {
		if strings.Contains(strings.ToLower(doc.Lines[i]), needle) {
			return i + 1
		}
	}
	return 0
}

// llmFinding is the JSON shape the model is asked to emit.
type llmFinding struct {
	Line       int     `json:"line"`
	Category   string  `json:"category"`
	Message    string  `json:"message"`
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

// llmPhase asks the model to cross-check the document against the truth
// facts. Any failure degrades to the rule-based result alone; the skip reason
// is surfaced as a metric, never as an error.
func (v *TruthValidator) llmPhase(ctx context.Context, in *Input) ([]types.Issue, string) {
	if v.client == nil || !v.client.Available() {
		return nil, "llm_unavailable"
	}
	if err := llm.CheckContentLength(in.Content, v.cfg); err != nil {
		return nil, "content_length"
	}

	prompt := v.buildPrompt(in)
	raw, err := v.client.Complete(ctx, prompt)
	if err != nil {
		logging.TruthDebug("LLM phase skipped: %v", err)
		return nil, "llm_error"
	}

	findings, err := parseFindings(raw)
	if err != nil {
		logging.TruthDebug("LLM response unparseable: %v", err)
		return nil, "unparseable_response"
	}

	threshold := v.confidenceThreshold()
	var issues []types.Issue
	for _, f := range findings {
		if f.Confidence < threshold || f.Message == "" {
			continue
		}
		issues = append(issues, types.Issue{
			ID:            uuid.NewString(),
			Code:          "TRUTH-100",
			Level:         types.LevelWarning,
			SeverityScore: 50,
			Line:          f.Line,
			Category:      nonEmpty(f.Category, "truth"),
			Message:       f.Message,
			Suggestion:    f.Suggestion,
			Source:        types.SourceLLMSemantic,
			Confidence:    f.Confidence,
			Validator:     v.Name(),
		})
	}
	return issues, ""
}

func (v *TruthValidator) buildPrompt(in *Input) string {
	var sb strings.Builder
	sb.WriteString("You are a technical fact checker. Cross-check the document against these known facts:\n\n")
	records := v.index.Family(in.Family)
	for _, r := range records {
		fmt.Fprintf(&sb, "- %s (%s)", r.CanonicalName, r.Kind)
		if len(r.Aliases) > 0 {
			fmt.Fprintf(&sb, ", aliases: %s", strings.Join(r.Aliases, ", "))
		}
		if r.Description != "" {
			fmt.Fprintf(&sb, ": %s", r.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nReport factual errors as a JSON array of objects with keys ")
	sb.WriteString(`"line", "category", "message", "suggestion", "confidence" (0-1). `)
	sb.WriteString("Return [] when the document is accurate.\n\nDocument:\n\n")
	sb.WriteString(in.Content)
	return sb.String()
}

// parseFindings tolerates markdown-fenced JSON in the response.
func parseFindings(raw string) ([]llmFinding, error) {
	trimmed := strings.TrimSpace(raw)
	if idx := strings.Index(trimmed, "["); idx >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > idx {
			trimmed = trimmed[idx : end+1]
		}
	}
	var findings []llmFinding
	if err := json.Unmarshal([]byte(trimmed), &findings); err != nil {
		return nil, err
	}
	return findings, nil
}

// mergeTruthIssues combines both phases with rule precedence: an LLM finding
// that shares a category and message prefix with a rule-based one is dropped.
func mergeTruthIssues(ruleIssues, llmIssues []types.Issue, threshold float64) []types.Issue {
	out := append([]types.Issue{}, ruleIssues...)
	for _, li := range llmIssues {
		if li.Confidence < threshold {
			continue
		}
		dup := false
		for _, ri := range ruleIssues {
			if ri.Category == li.Category && sharesPrefix(ri.Message, li.Message) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, li)
		}
	}
	return out
}

// sharesPrefix compares the first few words of two messages.
func sharesPrefix(a, b string) bool {
	wa, wb := strings.Fields(strings.ToLower(a)), strings.Fields(strings.ToLower(b))
	n := 4
	if len(wa) < n || len(wb) < n {
		n = min(len(wa), len(wb))
	}
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if wa[i] != wb[i] {
			return false
		}
	}
	return true
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
