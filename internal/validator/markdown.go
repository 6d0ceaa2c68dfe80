package validator

import (
	"context"
	"fmt"
	"strings"

	"tbcv/internal/types"
)

// MarkdownValidator checks markdown syntax hygiene: unclosed fences,
// malformed link syntax, bare URLs, trailing whitespace and hard tabs.
type MarkdownValidator struct{}

func NewMarkdownValidator() *MarkdownValidator { return &MarkdownValidator{} }

func (v *MarkdownValidator) Name() string { return "markdown" }

func (v *MarkdownValidator) Validate(ctx context.Context, in *Input) ([]types.Issue, error) {
	doc := in.Doc
	var issues []types.Issue

	if ruleEnabled(in.Rules, "closed_fences") {
		if line, ok := unclosedFence(doc); ok {
			is := issue(v.Name(), "MD-001", types.LevelCritical, line, "markdown",
				"fenced code block is never closed")
			is.ContextSnippet = snippet(doc.Lines, line, 3)
			issues = append(issues, is)
		}
	}

	if ruleEnabled(in.Rules, "no_empty_links") {
		for _, link := range doc.Links {
			if link.InlineHTML || link.Image {
				continue
			}
			if strings.TrimSpace(link.Destination) == "" {
				is := issue(v.Name(), "MD-002", levelFor(in.Rules, "no_empty_links", types.LevelError),
					link.Line, "markdown", fmt.Sprintf("link %q has an empty destination", link.Text))
				is.AutoFixable = false
				issues = append(issues, is)
			}
		}
	}

	if ruleEnabled(in.Rules, "no_bare_urls") {
		for i, line := range doc.Lines {
			lineNo := i + 1
			if lineNo < doc.BodyFirstLine || insideFence(doc, lineNo) {
				continue
			}
			if col := bareURLColumn(line); col > 0 {
				is := issue(v.Name(), "MD-003", levelFor(in.Rules, "no_bare_urls", types.LevelWarning),
					lineNo, "markdown", "bare URL; wrap it in a markdown link")
				is.Column = col
				is.Suggestion = "use [text](url) or <url>"
				is.AutoFixable = true
				issues = append(issues, is)
			}
		}
	}

	if ruleEnabled(in.Rules, "no_trailing_whitespace") {
		for i, line := range doc.Lines {
			lineNo := i + 1
			if insideFence(doc, lineNo) {
				continue
			}
			trimmed := strings.TrimRight(line, " \t")
			// Two trailing spaces are a markdown hard break, not a defect.
			if trimmed != line && line != trimmed+"  " {
				is := issue(v.Name(), "MD-004", levelFor(in.Rules, "no_trailing_whitespace", types.LevelInfo),
					lineNo, "markdown", "trailing whitespace")
				is.AutoFixable = true
				issues = append(issues, is)
			}
		}
	}

	if ruleEnabled(in.Rules, "no_hard_tabs") {
		for i, line := range doc.Lines {
			lineNo := i + 1
			if insideFence(doc, lineNo) {
				continue
			}
			if idx := strings.IndexByte(line, '\t'); idx >= 0 {
				is := issue(v.Name(), "MD-005", levelFor(in.Rules, "no_hard_tabs", types.LevelInfo),
					lineNo, "markdown", "hard tab outside a code block")
				is.Column = idx + 1
				is.AutoFixable = true
				issues = append(issues, is)
			}
		}
	}

	return issues, nil
}

// unclosedFence detects an odd number of fence delimiters by raw scan; the
// parser silently recovers from unterminated fences so the AST cannot tell.
func unclosedFence(doc *Document) (int, bool) {
	open := -1
	var openMarker string
	for i := doc.BodyFirstLine - 1; i < len(doc.Lines); i++ {
		trimmed := strings.TrimSpace(doc.Lines[i])
		marker := fenceMarker(trimmed)
		if marker == "" {
			continue
		}
		if open == -1 {
			open = i + 1
			openMarker = marker
		} else if strings.HasPrefix(marker, openMarker[:1]) && trimmed == marker {
			open = -1
			openMarker = ""
		}
	}
	if open >= 0 {
		return open, true
	}
	return 0, false
}

func fenceMarker(trimmed string) string {
	for _, m := range []string{"```", "~~~"} {
		if strings.HasPrefix(trimmed, m) {
			n := 0
			for n < len(trimmed) && trimmed[n] == m[0] {
				n++
			}
			return trimmed[:n]
		}
	}
	return ""
}

// insideFence reports whether a 1-based document line falls inside any fence.
func insideFence(doc *Document, line int) bool {
	for _, f := range doc.CodeFences {
		if line >= f.StartLine && line <= f.EndLine {
			return true
		}
	}
	return false
}

// bareURLColumn returns the 1-based column of a bare http(s) URL not wrapped
// in markdown link syntax, 0 when none.
func bareURLColumn(line string) int {
	for _, scheme := range []string{"http://", "https://"} {
		idx := strings.Index(line, scheme)
		if idx < 0 {
			continue
		}
		before := line[:idx]
		// Already inside [text](url), <url>, or a quoted attribute.
		if strings.HasSuffix(before, "(") || strings.HasSuffix(before, "<") ||
			strings.HasSuffix(before, `"`) || strings.HasSuffix(before, "'") ||
			strings.HasSuffix(before, "`") {
			continue
		}
		return idx + 1
	}
	return 0
}
