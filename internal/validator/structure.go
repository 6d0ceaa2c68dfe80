package validator

import (
	"context"
	"fmt"

	"tbcv/internal/types"
)

// StructureValidator checks document structure: heading presence and
// hierarchy, section balance and minimum body length.
type StructureValidator struct{}

func NewStructureValidator() *StructureValidator { return &StructureValidator{} }

func (v *StructureValidator) Name() string { return "structure" }

func (v *StructureValidator) Validate(ctx context.Context, in *Input) ([]types.Issue, error) {
	doc := in.Doc
	var issues []types.Issue

	if ruleEnabled(in.Rules, "require_headings") && len(doc.Headings) == 0 {
		is := issue(v.Name(), "STRUCT-001", levelFor(in.Rules, "require_headings", types.LevelError),
			doc.BodyFirstLine, "structure", "document has no headings")
		is.Suggestion = "add a top-level # heading and section headings"
		issues = append(issues, is)
	}

	if ruleEnabled(in.Rules, "first_heading_h1") && len(doc.Headings) > 0 && doc.Headings[0].Level != 1 {
		issues = append(issues, issue(v.Name(), "STRUCT-002",
			levelFor(in.Rules, "first_heading_h1", types.LevelWarning),
			doc.Headings[0].Line, "structure",
			fmt.Sprintf("first heading is H%d; documents should start with an H1", doc.Headings[0].Level)))
	}

	if ruleEnabled(in.Rules, "no_empty_sections") {
		for i, h := range doc.Headings {
			end := len(doc.Lines)
			if i+1 < len(doc.Headings) {
				end = doc.Headings[i+1].Line - 1
			}
			if sectionEmpty(doc, h.Line, end) {
				is := issue(v.Name(), "STRUCT-003", levelFor(in.Rules, "no_empty_sections", types.LevelWarning),
					h.Line, "structure", fmt.Sprintf("section %q has no content", h.Text))
				is.Suggestion = "add body text or remove the heading"
				issues = append(issues, is)
			}
		}
	}

	minWords := in.Rules.Rules["min_words"].ParamInt("count", 50)
	if ruleEnabled(in.Rules, "min_words") {
		if wc := doc.WordCount(); wc < minWords {
			issues = append(issues, issue(v.Name(), "STRUCT-004",
				levelFor(in.Rules, "min_words", types.LevelWarning),
				doc.BodyFirstLine, "structure",
				fmt.Sprintf("body has only %d words (minimum %d)", wc, minWords)))
		}
	}

	maxDepth := in.Rules.Rules["max_heading_depth"].ParamInt("depth", 4)
	if ruleEnabled(in.Rules, "max_heading_depth") {
		for _, h := range doc.Headings {
			if h.Level > maxDepth {
				issues = append(issues, issue(v.Name(), "STRUCT-005",
					levelFor(in.Rules, "max_heading_depth", types.LevelInfo),
					h.Line, "structure",
					fmt.Sprintf("heading %q is H%d, deeper than the H%d limit", h.Text, h.Level, maxDepth)))
			}
		}
	}

	return issues, nil
}

// sectionEmpty reports whether the half-open line span after a heading holds
// no non-blank content.
func sectionEmpty(doc *Document, headingLine, endLine int) bool {
	for line := headingLine + 1; line <= endLine && line <= len(doc.Lines); line++ {
		if insideFence(doc, line) {
			return false
		}
		if len(doc.Lines[line-1]) > 0 && doc.Lines[line-1] != "\r" {
			trimmedEmpty := true
			for _, c := range doc.Lines[line-1] {
				if c != ' ' && c != '\t' && c != '\r' {
					trimmedEmpty = false
					break
				}
			}
			if !trimmedEmpty {
				return false
			}
		}
	}
	return true
}
