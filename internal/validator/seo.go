package validator

import (
	"context"
	"fmt"

	"tbcv/internal/types"
)

// SEOValidator checks search-facing metadata and heading discipline: title
// and description length windows, a single H1 and no heading level jumps.
type SEOValidator struct{}

func NewSEOValidator() *SEOValidator { return &SEOValidator{} }

func (v *SEOValidator) Name() string { return "seo" }

func (v *SEOValidator) Validate(ctx context.Context, in *Input) ([]types.Issue, error) {
	doc := in.Doc
	var issues []types.Issue

	title, _ := doc.Frontmatter["title"].(string)
	desc, _ := doc.Frontmatter["description"].(string)

	titleMin := in.Rules.Rules["title_length"].ParamInt("min", 30)
	titleMax := in.Rules.Rules["title_length"].ParamInt("max", 60)
	if ruleEnabled(in.Rules, "title_length") && title != "" {
		if n := len(title); n < titleMin || n > titleMax {
			is := issue(v.Name(), "SEO-001", levelFor(in.Rules, "title_length", types.LevelWarning),
				1, "seo", fmt.Sprintf("title is %d characters; the effective window is %d-%d", n, titleMin, titleMax))
			is.Subcategory = "title"
			issues = append(issues, is)
		}
	}

	descMin := in.Rules.Rules["description_length"].ParamInt("min", 120)
	descMax := in.Rules.Rules["description_length"].ParamInt("max", 160)
	if ruleEnabled(in.Rules, "description_length") && desc != "" {
		if n := len(desc); n < descMin || n > descMax {
			is := issue(v.Name(), "SEO-002", levelFor(in.Rules, "description_length", types.LevelWarning),
				1, "seo", fmt.Sprintf("description is %d characters; the effective window is %d-%d", n, descMin, descMax))
			is.Subcategory = "description"
			issues = append(issues, is)
		}
	}

	if ruleEnabled(in.Rules, "single_h1") {
		var h1s []Heading
		for _, h := range doc.Headings {
			if h.Level == 1 {
				h1s = append(h1s, h)
			}
		}
		for _, extra := range h1sAfterFirst(h1s) {
			is := issue(v.Name(), "SEO-003", levelFor(in.Rules, "single_h1", types.LevelError),
				extra.Line, "seo", fmt.Sprintf("multiple H1 headings; %q should be demoted", extra.Text))
			is.Subcategory = "headings"
			is.AutoFixable = true
			issues = append(issues, is)
		}
	}

	if ruleEnabled(in.Rules, "no_heading_jumps") {
		prev := 0
		for _, h := range doc.Headings {
			if prev > 0 && h.Level > prev+1 {
				is := issue(v.Name(), "SEO-004", levelFor(in.Rules, "no_heading_jumps", types.LevelWarning),
					h.Line, "seo",
					fmt.Sprintf("heading level jumps from H%d to H%d at %q", prev, h.Level, h.Text))
				is.Subcategory = "headings"
				issues = append(issues, is)
			}
			prev = h.Level
		}
	}

	return issues, nil
}

func h1sAfterFirst(h1s []Heading) []Heading {
	if len(h1s) <= 1 {
		return nil
	}
	return h1s[1:]
}
