package recommend

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tbcv/internal/llm"
	"tbcv/internal/types"
)

// LLMCritic scores proposals with the model. A score near 0 means the edit
// would likely hurt the document; near 1 means clearly beneficial.
type LLMCritic struct {
	client llm.Client
}

// NewLLMCritic wraps the client; returns nil when the client cannot serve so
// the generator skips critique entirely.
func NewLLMCritic(client llm.Client) *LLMCritic {
	if client == nil || !client.Available() {
		return nil
	}
	return &LLMCritic{client: client}
}

// Critique asks the model for a single 0-1 usefulness score.
func (c *LLMCritic) Critique(ctx context.Context, rec *types.Recommendation, content string) (float64, error) {
	prompt := fmt.Sprintf(
		"A proposed edit for a technical document:\n\nType: %s\nTarget line: %d\nChange: %s\nRationale: %s\n\n"+
			"Rate how beneficial applying this edit would be, 0.0 (harmful or pointless) to 1.0 (clearly beneficial). "+
			"Respond with only the number.\n\nDocument excerpt:\n%s",
		rec.Type, rec.Target.Line, rec.SuggestedChange, rec.Rationale, excerpt(content, rec.Target.Line))

	raw, err := c.client.Complete(ctx, prompt)
	if err != nil {
		return 0, err
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable critique score %q", raw)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

// excerpt returns up to 20 lines around the target line.
func excerpt(content string, line int) string {
	lines := strings.Split(content, "\n")
	start := line - 10
	if start < 0 {
		start = 0
	}
	end := start + 20
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}
