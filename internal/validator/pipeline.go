package validator

import (
	"tbcv/internal/config"
	"tbcv/internal/llm"
	"tbcv/internal/rules"
	"tbcv/internal/truth"
)

// NewPipeline assembles the standard router with every validator wired in.
func NewPipeline(loader *rules.Loader, index *truth.Index, client llm.Client, cfg *config.Config) *Router {
	return NewRouter(loader, cfg.Router.TerminateOn,
		NewFrontmatterValidator(),
		NewMarkdownValidator(),
		NewStructureValidator(),
		NewLinksValidator(),
		NewCodeValidator(),
		NewSEOValidator(),
		NewFuzzyValidator(index),
		NewTruthValidator(index, client, cfg.LLM),
		NewLLMValidator(client, cfg.LLM),
	)
}
