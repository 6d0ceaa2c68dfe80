// Package enhance applies approved recommendations to documents surgically:
// line-targeted edits with conflict resolution, preservation validation, a
// safety gate, previews that never touch disk, and rollback.
package enhance

import (
	"fmt"
	"regexp"
	"strings"

	"tbcv/internal/types"
)

// edit is one planned change. An insertion has EndLine = StartLine-1 (empty
// span); a replacement covers [StartLine, EndLine] inclusive.
type edit struct {
	rec         *types.Recommendation
	startLine   int // 1-based
	endLine     int
	replacement []string // replacement lines, nil removes the span
}

// skip records why a recommendation produced no edit.
type skip struct {
	rec    *types.Recommendation
	reason string
}

var replaceDirectiveRe = regexp.MustCompile(`replace (?:with )?"((?:[^"\\]|\\.)*)"(?: with "((?:[^"\\]|\\.)*)")?`)
var addFieldRe = regexp.MustCompile(`add ([A-Za-z_][A-Za-z0-9_-]*):`)

// planEdit turns one recommendation into a concrete edit against the current
// document lines, or a skip with the reason.
func planEdit(rec *types.Recommendation, lines []string, frontmatterEnd int) (*edit, *skip) {
	switch rec.Type {
	case types.RecMissingInfo:
		return planFrontmatterEdit(rec, lines, frontmatterEnd)
	case types.RecIncorrectPlugin, types.RecMissingPlugin:
		return planLineEdit(rec, lines)
	case types.RecStructural:
		return planStructuralEdit(rec, lines)
	case types.RecSEO:
		return planSEOEdit(rec, lines)
	case types.RecTone:
		return planLineEdit(rec, lines)
	default:
		return nil, &skip{rec, "no handler for recommendation type"}
	}
}

// planFrontmatterEdit inserts a missing field into the frontmatter block,
// creating the block when absent.
func planFrontmatterEdit(rec *types.Recommendation, lines []string, frontmatterEnd int) (*edit, *skip) {
	m := addFieldRe.FindStringSubmatch(rec.SuggestedChange)
	if m == nil {
		return planLineEdit(rec, lines)
	}
	field := m[1]

	if frontmatterEnd > 0 {
		// Insert just before the closing delimiter.
		return &edit{
			rec:         rec,
			startLine:   frontmatterEnd,
			endLine:     frontmatterEnd - 1,
			replacement: []string{field + `: ""`},
		}, nil
	}
	// No frontmatter at all: create the block at the top.
	return &edit{
		rec:         rec,
		startLine:   1,
		endLine:     0,
		replacement: []string{"---", field + `: ""`, "---", ""},
	}, nil
}

// planLineEdit handles the common case: a full replacement line, or a quoted
// replace directive applied to the target line.
func planLineEdit(rec *types.Recommendation, lines []string) (*edit, *skip) {
	line := rec.Target.Line
	if line < 1 || line > len(lines) {
		return nil, &skip{rec, fmt.Sprintf("target line %d out of range", line)}
	}
	current := lines[line-1]

	if m := replaceDirectiveRe.FindStringSubmatch(rec.SuggestedChange); m != nil {
		from, to := m[1], m[2]
		if to == "" {
			// "replace with X" form targets the whole line.
			return &edit{rec: rec, startLine: line, endLine: line, replacement: []string{from}}, nil
		}
		if !strings.Contains(current, from) {
			return nil, &skip{rec, fmt.Sprintf("target line no longer contains %q", from)}
		}
		return &edit{
			rec:         rec,
			startLine:   line,
			endLine:     line,
			replacement: []string{strings.Replace(current, from, to, 1)},
		}, nil
	}

	// A suggested change that looks like document text replaces the line.
	if rec.SuggestedChange != "" && !looksLikeInstruction(rec.SuggestedChange) {
		end := rec.Target.EndLine
		if end < line {
			end = line
		}
		if end > len(lines) {
			end = len(lines)
		}
		return &edit{
			rec:         rec,
			startLine:   line,
			endLine:     end,
			replacement: strings.Split(rec.SuggestedChange, "\n"),
		}, nil
	}

	return nil, &skip{rec, "suggestion is advisory, not a concrete edit"}
}

// planStructuralEdit covers the auto-fixable structural findings.
func planStructuralEdit(rec *types.Recommendation, lines []string) (*edit, *skip) {
	line := rec.Target.Line
	if line >= 1 && line <= len(lines) {
		current := lines[line-1]
		switch {
		case strings.Contains(rec.Rationale, "trailing whitespace"):
			return &edit{rec: rec, startLine: line, endLine: line,
				replacement: []string{strings.TrimRight(current, " \t")}}, nil
		case strings.Contains(rec.Rationale, "hard tab"):
			return &edit{rec: rec, startLine: line, endLine: line,
				replacement: []string{strings.ReplaceAll(current, "\t", "    ")}}, nil
		case strings.Contains(rec.Rationale, "no language tag"):
			if strings.HasPrefix(strings.TrimSpace(current), "```") {
				return &edit{rec: rec, startLine: line, endLine: line,
					replacement: []string{strings.Replace(current, "```", "```text", 1)}}, nil
			}
		}
	}
	return planLineEdit(rec, lines)
}

// planSEOEdit covers heading fixes; metadata rewrites need a human.
func planSEOEdit(rec *types.Recommendation, lines []string) (*edit, *skip) {
	if rec.Target.Selector == "headings" {
		line := rec.Target.Line
		if line < 1 || line > len(lines) {
			return nil, &skip{rec, fmt.Sprintf("target line %d out of range", line)}
		}
		current := lines[line-1]
		if strings.HasPrefix(current, "# ") && strings.Contains(rec.Rationale, "multiple H1") {
			return &edit{rec: rec, startLine: line, endLine: line,
				replacement: []string{"#" + current}}, nil
		}
		return nil, &skip{rec, "heading fix is not mechanical"}
	}
	return nil, &skip{rec, "metadata rewrite requires manual review"}
}

// looksLikeInstruction filters prose suggestions ("add a ...", "check the
// ...") from literal replacement text.
func looksLikeInstruction(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range []string{"add ", "use ", "check ", "consider ", "remove ", "wrap ", "tag "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// applyEdits applies non-overlapping edits bottom-up so earlier line numbers
// stay valid, and returns the new document lines plus the per-edit record.
func applyEdits(lines []string, edits []*edit) ([]string, []types.AppliedEdit) {
	ordered := make([]*edit, len(edits))
	copy(ordered, edits)
	// Bottom-up.
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].startLine > ordered[i].startLine {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	out := make([]string, len(lines))
	copy(out, lines)
	applied := make([]types.AppliedEdit, 0, len(ordered))
	for _, e := range ordered {
		start, end := e.startLine, e.endLine
		if start < 1 {
			start = 1
		}
		if end > len(out) {
			end = len(out)
		}
		var next []string
		next = append(next, out[:start-1]...)
		next = append(next, e.replacement...)
		if end < len(out) {
			next = append(next, out[end:]...)
		}
		out = next

		applied = append(applied, types.AppliedEdit{
			RecommendationID: e.rec.ID,
			Type:             e.rec.Type,
			StartLine:        e.startLine,
			EndLine:          e.endLine,
			Replacement:      strings.Join(e.replacement, "\n"),
			Rationales:       []string{e.rec.Rationale},
		})
	}
	// Report in document order.
	for i := 0; i < len(applied)/2; i++ {
		applied[i], applied[len(applied)-1-i] = applied[len(applied)-1-i], applied[i]
	}
	return out, applied
}

// contextWindow extracts the ±n line window around an edit, used by the
// preservation checks and the preview payload.
func contextWindow(lines []string, line, n int) (start int, window []string) {
	start = line - n
	if start < 1 {
		start = 1
	}
	end := line + n
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return start, nil
	}
	return start, lines[start-1 : end]
}
