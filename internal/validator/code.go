package validator

import (
	"context"
	"fmt"
	"strings"

	"tbcv/internal/types"
)

// knownLanguages is the fence language allowlist used when the rule config
// does not supply its own.
var knownLanguages = map[string]bool{
	"bash": true, "sh": true, "shell": true, "console": true,
	"go": true, "python": true, "py": true, "javascript": true, "js": true,
	"typescript": true, "ts": true, "json": true, "yaml": true, "yml": true,
	"toml": true, "xml": true, "html": true, "css": true, "sql": true,
	"text": true, "plaintext": true, "diff": true, "markdown": true, "md": true,
	"dockerfile": true, "makefile": true, "ini": true, "csv": true,
	"java": true, "c": true, "cpp": true, "rust": true, "ruby": true, "php": true,
}

// CodeValidator checks fenced code blocks: language tags, placeholder
// leftovers and oversized blocks.
type CodeValidator struct{}

func NewCodeValidator() *CodeValidator { return &CodeValidator{} }

func (v *CodeValidator) Name() string { return "code" }

func (v *CodeValidator) Validate(ctx context.Context, in *Input) ([]types.Issue, error) {
	doc := in.Doc
	var issues []types.Issue

	allowed := knownLanguages
	if extra := in.Rules.Rules["language_tags"].ParamStrings("languages"); len(extra) > 0 {
		allowed = make(map[string]bool, len(extra))
		for _, l := range extra {
			allowed[strings.ToLower(l)] = true
		}
	}

	for _, fence := range doc.CodeFences {
		if ruleEnabled(in.Rules, "language_tags") {
			if fence.Language == "" {
				is := issue(v.Name(), "CODE-001", levelFor(in.Rules, "language_tags", types.LevelWarning),
					fence.StartLine, "code", "code fence has no language tag")
				is.Suggestion = "tag the fence, e.g. ```bash"
				is.AutoFixable = true
				issues = append(issues, is)
			} else if !allowed[strings.ToLower(fence.Language)] {
				issues = append(issues, issue(v.Name(), "CODE-002",
					levelFor(in.Rules, "language_tags", types.LevelInfo),
					fence.StartLine, "code",
					fmt.Sprintf("unrecognized fence language %q", fence.Language)))
			}
		}

		if ruleEnabled(in.Rules, "no_placeholders") {
			for line := fence.StartLine + 1; line < fence.EndLine && line <= len(doc.Lines); line++ {
				text := doc.Lines[line-1]
				for _, marker := range []string{"YOUR_API_KEY", "<REPLACE", "CHANGEME", "xxx-xxx"} {
					if strings.Contains(text, marker) {
						is := issue(v.Name(), "CODE-003",
							levelFor(in.Rules, "no_placeholders", types.LevelWarning),
							line, "code", fmt.Sprintf("placeholder %q left in code block", marker))
						is.ContextSnippet = text
						issues = append(issues, is)
					}
				}
			}
		}

		maxLines := in.Rules.Rules["max_block_lines"].ParamInt("lines", 120)
		if ruleEnabled(in.Rules, "max_block_lines") {
			if n := fence.EndLine - fence.StartLine - 1; n > maxLines {
				issues = append(issues, issue(v.Name(), "CODE-004",
					levelFor(in.Rules, "max_block_lines", types.LevelInfo),
					fence.StartLine, "code",
					fmt.Sprintf("code block is %d lines (limit %d); consider splitting it", n, maxLines)))
			}
		}
	}

	return issues, nil
}
