package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tbcv/internal/config"
	"tbcv/internal/llm"
	"tbcv/internal/logging"
	"tbcv/internal/types"
)

// LLMValidator runs the model over the document for quality concerns the
// rule-based tiers cannot see: clarity, tone, completeness. It is entirely
// optional; without a reachable model it contributes nothing.
type LLMValidator struct {
	client llm.Client
	cfg    config.LLMConfig
}

func NewLLMValidator(client llm.Client, cfg config.LLMConfig) *LLMValidator {
	return &LLMValidator{client: client, cfg: cfg}
}

func (v *LLMValidator) Name() string { return "llm" }

func (v *LLMValidator) Validate(ctx context.Context, in *Input) ([]types.Issue, error) {
	if v.client == nil || !v.client.Available() {
		in.Metrics["llm_skipped"] = "llm_unavailable"
		return nil, nil
	}
	if err := llm.CheckContentLength(in.Content, v.cfg); err != nil {
		in.Metrics["llm_skipped"] = "content_length"
		return nil, nil
	}

	raw, err := v.client.Complete(ctx, v.buildPrompt(in))
	if err != nil {
		logging.Get(logging.CategoryLLM).Debug("Quality pass skipped: %v", err)
		in.Metrics["llm_skipped"] = "llm_error"
		return nil, nil
	}

	findings, err := parseFindings(raw)
	if err != nil {
		in.Metrics["llm_skipped"] = "unparseable_response"
		return nil, nil
	}

	threshold := v.cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	var issues []types.Issue
	for _, f := range findings {
		if f.Confidence < threshold || f.Message == "" {
			continue
		}
		issues = append(issues, types.Issue{
			ID:            uuid.NewString(),
			Code:          "LLM-001",
			Level:         types.LevelInfo,
			SeverityScore: 20,
			Line:          f.Line,
			Category:      nonEmpty(f.Category, "quality"),
			Message:       f.Message,
			Suggestion:    f.Suggestion,
			Source:        types.SourceLLMSemantic,
			Confidence:    f.Confidence,
			Validator:     v.Name(),
		})
	}
	in.Metrics["findings"] = len(issues)
	return issues, nil
}

func (v *LLMValidator) buildPrompt(in *Input) string {
	var sb strings.Builder
	sb.WriteString("Review this technical document for clarity, completeness and tone problems. ")
	sb.WriteString("Ignore formatting and factual accuracy; other checks cover those.\n")
	fmt.Fprintf(&sb, "The document family is %q.\n\n", in.Family)
	sb.WriteString("Report problems as a JSON array of objects with keys ")
	sb.WriteString(`"line", "category" (one of "clarity", "completeness", "tone"), "message", "suggestion", "confidence" (0-1). `)
	sb.WriteString("Return [] when the document reads well.\n\nDocument:\n\n")
	sb.WriteString(in.Content)
	return sb.String()
}
