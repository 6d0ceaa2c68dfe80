// Package diff provides diff computation for enhancement previews using the
// sergi/go-diff library.
package diff

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Stats summarises the line-level size of a change.
type Stats struct {
	LinesAdded   int
	LinesRemoved int
	LinesChanged int
}

// Result is a computed diff between two documents.
type Result struct {
	Unified string
	Stats   Stats
}

// Engine computes diffs with caching for identical input pairs.
type Engine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache sync.Map
}

type cacheKey struct {
	oldHash uint64
	newHash uint64
}

// NewEngine creates a diff engine tuned for document diffs.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // accuracy over speed
	return &Engine{dmp: dmp}
}

// DefaultEngine is a singleton engine for general use.
var DefaultEngine = NewEngine()

// Compute returns the unified diff and stats between old and new content.
func (e *Engine) Compute(oldPath, newPath, oldContent, newContent string) *Result {
	key := cacheKey{hash(oldContent), hash(newContent)}
	if cached, ok := e.cache.Load(key); ok {
		return cached.(*Result)
	}

	// Line-level reduction avoids newline boundary artifacts when converting
	// character diffs back to line ops.
	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	res := &Result{Unified: renderUnified(oldPath, newPath, diffs)}
	for _, d := range diffs {
		lines := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			res.Stats.LinesAdded += lines
		case diffmatchpatch.DiffDelete:
			res.Stats.LinesRemoved += lines
		}
	}
	if res.Stats.LinesAdded < res.Stats.LinesRemoved {
		res.Stats.LinesChanged = res.Stats.LinesAdded
	} else {
		res.Stats.LinesChanged = res.Stats.LinesRemoved
	}

	e.cache.Store(key, res)
	return res
}

// renderUnified produces a unified-diff style rendering with hunk headers.
func renderUnified(oldPath, newPath string, diffs []diffmatchpatch.Diff) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", oldPath, newPath)

	oldLine, newLine := 1, 1
	for _, d := range diffs {
		lines := splitKeepingTrailing(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			// Context collapses to a hunk marker to keep previews compact.
			n := len(lines)
			if n > 0 {
				fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", oldLine, n, newLine, n)
			}
			oldLine += n
			newLine += n
		case diffmatchpatch.DiffDelete:
			for _, line := range lines {
				sb.WriteString("-")
				sb.WriteString(line)
				sb.WriteString("\n")
			}
			oldLine += len(lines)
		case diffmatchpatch.DiffInsert:
			for _, line := range lines {
				sb.WriteString("+")
				sb.WriteString(line)
				sb.WriteString("\n")
			}
			newLine += len(lines)
		}
	}
	return sb.String()
}

func splitKeepingTrailing(text string) []string {
	if text == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(text, "\n")
	if trimmed == "" {
		return []string{""}
	}
	return strings.Split(trimmed, "\n")
}

func countLines(text string) int {
	return len(splitKeepingTrailing(text))
}

func hash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
