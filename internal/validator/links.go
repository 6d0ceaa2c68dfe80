package validator

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"tbcv/internal/types"
)

// LinksValidator checks every markdown and inline-HTML link: scheme sanity,
// relative target existence, anchor resolution against the document's own
// headings and duplicate destinations.
type LinksValidator struct{}

func NewLinksValidator() *LinksValidator { return &LinksValidator{} }

func (v *LinksValidator) Name() string { return "links" }

func (v *LinksValidator) Validate(ctx context.Context, in *Input) ([]types.Issue, error) {
	doc := in.Doc
	var issues []types.Issue

	anchors := headingAnchors(doc)
	seen := make(map[string]int)

	for _, link := range doc.Links {
		dest := strings.TrimSpace(link.Destination)
		if dest == "" {
			continue // markdown validator reports empty destinations
		}

		switch {
		case strings.HasPrefix(dest, "#"):
			if ruleEnabled(in.Rules, "valid_anchors") && !anchors[strings.TrimPrefix(dest, "#")] {
				is := issue(v.Name(), "LINK-001", levelFor(in.Rules, "valid_anchors", types.LevelError),
					link.Line, "links", fmt.Sprintf("anchor %s does not match any heading", dest))
				is.Suggestion = "check the heading slug; anchors are lowercased with spaces as dashes"
				issues = append(issues, is)
			}

		case strings.Contains(dest, "://"):
			if ruleEnabled(in.Rules, "valid_urls") {
				if u, err := url.Parse(dest); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
					issues = append(issues, issue(v.Name(), "LINK-002",
						levelFor(in.Rules, "valid_urls", types.LevelWarning),
						link.Line, "links", fmt.Sprintf("suspicious URL scheme in %q", dest)))
				}
			}

		case strings.HasPrefix(dest, "mailto:"):
			// Always acceptable.

		default:
			if ruleEnabled(in.Rules, "relative_targets_exist") {
				target := dest
				if idx := strings.IndexByte(target, '#'); idx >= 0 {
					target = target[:idx]
				}
				if target != "" && !relativeTargetExists(in.FilePath, target) {
					is := issue(v.Name(), "LINK-003",
						levelFor(in.Rules, "relative_targets_exist", types.LevelError),
						link.Line, "links", fmt.Sprintf("relative link target %q does not exist", target))
					is.ContextSnippet = snippet(doc.Lines, link.Line, 1)
					issues = append(issues, is)
				}
			}
		}

		if !link.Image {
			seen[dest]++
		}
	}

	if ruleEnabled(in.Rules, "no_duplicate_links") {
		for dest, n := range seen {
			if n > 3 {
				issues = append(issues, issue(v.Name(), "LINK-004",
					levelFor(in.Rules, "no_duplicate_links", types.LevelInfo),
					0, "links", fmt.Sprintf("destination %q is linked %d times", dest, n)))
			}
		}
	}

	return issues, nil
}

// relativeTargetExists resolves dest against the document's directory.
func relativeTargetExists(filePath, dest string) bool {
	base := filepath.Dir(filePath)
	_, err := os.Stat(filepath.Join(base, filepath.FromSlash(dest)))
	return err == nil
}

var anchorStripRe = regexp.MustCompile(`[^a-z0-9\- ]`)

// headingAnchors builds the GitHub-style slug set for the document headings.
func headingAnchors(doc *Document) map[string]bool {
	out := make(map[string]bool, len(doc.Headings))
	counts := make(map[string]int)
	for _, h := range doc.Headings {
		slug := strings.ToLower(h.Text)
		slug = anchorStripRe.ReplaceAllString(slug, "")
		slug = strings.ReplaceAll(strings.TrimSpace(slug), " ", "-")
		if n := counts[slug]; n > 0 {
			out[fmt.Sprintf("%s-%d", slug, n)] = true
		} else {
			out[slug] = true
		}
		counts[slug]++
	}
	return out
}
