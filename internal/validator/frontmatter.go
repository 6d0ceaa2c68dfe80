package validator

import (
	"context"
	"fmt"
	"strings"

	"tbcv/internal/types"
)

// FrontmatterValidator checks the YAML frontmatter block: presence, parse
// validity, required fields and field value shapes.
type FrontmatterValidator struct{}

func NewFrontmatterValidator() *FrontmatterValidator { return &FrontmatterValidator{} }

func (v *FrontmatterValidator) Name() string { return "frontmatter" }

func (v *FrontmatterValidator) Validate(ctx context.Context, in *Input) ([]types.Issue, error) {
	doc := in.Doc
	var issues []types.Issue

	if !doc.HasFrontmatter {
		if ruleEnabled(in.Rules, "require_frontmatter") {
			is := issue(v.Name(), "YAML-001", levelFor(in.Rules, "require_frontmatter", types.LevelError),
				1, "frontmatter", "document has no frontmatter block")
			is.Suggestion = "add a YAML frontmatter block delimited by --- at the top of the file"
			is.AutoFixable = true
			issues = append(issues, is)
		}
		return issues, nil
	}

	if doc.FrontmatterErr != nil {
		is := issue(v.Name(), "YAML-002", types.LevelCritical, 1, "frontmatter",
			fmt.Sprintf("frontmatter is not valid YAML: %v", doc.FrontmatterErr))
		is.ContextSnippet = snippet(doc.Lines, 1, 5)
		issues = append(issues, is)
		return issues, nil
	}

	required := in.Rules.Rules["required_fields"].ParamStrings("fields")
	if len(required) == 0 {
		required = []string{"title", "description"}
	}
	if ruleEnabled(in.Rules, "required_fields") {
		for _, field := range required {
			if _, ok := doc.Frontmatter[field]; !ok {
				is := issue(v.Name(), "YAML-003", levelFor(in.Rules, "required_fields", types.LevelError),
					1, "frontmatter", fmt.Sprintf("required frontmatter field %q is missing", field))
				is.Suggestion = fmt.Sprintf("add %s: <value> to the frontmatter", field)
				is.AutoFixable = true
				issues = append(issues, is)
			}
		}
	}

	if ruleEnabled(in.Rules, "scalar_fields") {
		for _, field := range []string{"title", "description"} {
			if raw, ok := doc.Frontmatter[field]; ok {
				if _, isStr := raw.(string); !isStr {
					issues = append(issues, issue(v.Name(), "YAML-004",
						levelFor(in.Rules, "scalar_fields", types.LevelWarning),
						1, "frontmatter", fmt.Sprintf("frontmatter field %q should be a plain string", field)))
				}
			}
		}
	}

	if ruleEnabled(in.Rules, "no_empty_values") {
		for key, raw := range doc.Frontmatter {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
				issues = append(issues, issue(v.Name(), "YAML-005",
					levelFor(in.Rules, "no_empty_values", types.LevelWarning),
					1, "frontmatter", fmt.Sprintf("frontmatter field %q is empty", key)))
			}
		}
	}

	return issues, nil
}

// snippet joins up to n lines starting at 1-based line start.
func snippet(lines []string, start, n int) string {
	if start < 1 {
		start = 1
	}
	end := start - 1 + n
	if end > len(lines) {
		end = len(lines)
	}
	if start-1 >= end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
