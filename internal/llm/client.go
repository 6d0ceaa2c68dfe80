// Package llm provides the language model client used by the truth
// validator's semantic phase and the recommender's self-critique. All calls
// carry a hard timeout and degrade gracefully: callers treat any error as
// "no LLM available" and proceed on rule-based results alone.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"tbcv/internal/config"
	"tbcv/internal/logging"
)

// ErrUnavailable is returned when no LLM is configured or reachable.
var ErrUnavailable = errors.New("llm unavailable")

// ErrContentLength is returned when content is outside the analyzable range.
var ErrContentLength = errors.New("content length outside llm bounds")

// Client is the I/O contract with the external model. The prompts behind it
// are an implementation detail of each caller.
type Client interface {
	// Complete sends a prompt and returns the raw text response.
	Complete(ctx context.Context, prompt string) (string, error)

	// Available reports whether the client can serve requests.
	Available() bool
}

// GenAIClient implements Client over the Google GenAI API.
type GenAIClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewClient builds a client from configuration. A missing API key yields a
// disabled client rather than an error so the pipeline still runs.
func NewClient(cfg config.LLMConfig) Client {
	if cfg.APIKey == "" {
		logging.Get(logging.CategoryLLM).Warn("No LLM API key configured; semantic phase disabled")
		return &disabledClient{}
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		logging.Get(logging.CategoryLLM).Error("Failed to create GenAI client: %v", err)
		return &disabledClient{}
	}
	return &GenAIClient{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.TimeoutDuration(),
	}
}

// Complete sends the prompt under the configured hard timeout.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "Complete")
	defer timer.StopWithThreshold(10 * time.Second)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(prompt), nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("llm timed out after %v: %w", c.timeout, ErrUnavailable)
		}
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("empty llm response: %w", ErrUnavailable)
	}
	return text, nil
}

// Available reports whether the client can serve requests.
func (c *GenAIClient) Available() bool { return true }

type disabledClient struct{}

func (d *disabledClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", ErrUnavailable
}

func (d *disabledClient) Available() bool { return false }

// CheckContentLength gates content against the configured analyzable range.
func CheckContentLength(content string, cfg config.LLMConfig) error {
	n := len(content)
	min, max := cfg.MinContentLen, cfg.MaxContentLen
	if min <= 0 {
		min = 100
	}
	if max <= 0 {
		max = 50000
	}
	if n < min || n > max {
		return fmt.Errorf("content length %d outside [%d, %d]: %w", n, min, max, ErrContentLength)
	}
	return nil
}
