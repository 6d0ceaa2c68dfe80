package validator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tbcv/internal/types"
)

// runChecks runs one validator against content with the built-in defaults.
func runChecks(t *testing.T, v Validator, filePath, content string) []types.Issue {
	t.Helper()
	in := &Input{
		FilePath: filePath,
		Family:   types.FamilyGeneric,
		Content:  content,
		Doc:      ParseDocument(content),
		Metrics:  make(map[string]any),
	}
	issues, err := v.Validate(context.Background(), in)
	if err != nil {
		t.Fatalf("%s.Validate() error = %v", v.Name(), err)
	}
	return issues
}

func codeSet(issues []types.Issue) map[string]int {
	out := make(map[string]int)
	for _, is := range issues {
		out[is.Code]++
	}
	return out
}

func TestFrontmatterValidator(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]int
	}{
		{
			name:    "missing block",
			content: "# Doc\n\nBody.\n",
			want:    map[string]int{"YAML-001": 1},
		},
		{
			name:    "unparseable yaml",
			content: "---\ntitle: [unclosed\n---\n# Doc\n",
			want:    map[string]int{"YAML-002": 1},
		},
		{
			name:    "missing required fields",
			content: "---\nauthor: someone\n---\n# Doc\n",
			want:    map[string]int{"YAML-003": 2}, // title and description
		},
		{
			name:    "non-scalar title",
			content: "---\ntitle: [a, b]\ndescription: fine\n---\n# Doc\n",
			want:    map[string]int{"YAML-004": 1},
		},
		{
			name:    "empty value",
			content: "---\ntitle: ok\ndescription: \"\"\n---\n# Doc\n",
			want:    map[string]int{"YAML-005": 1},
		},
		{
			name:    "clean",
			content: "---\ntitle: ok\ndescription: fine\n---\n# Doc\n",
			want:    map[string]int{},
		},
	}

	v := NewFrontmatterValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codeSet(runChecks(t, v, "doc.md", tt.content))
			if len(got) != len(tt.want) {
				t.Fatalf("issue codes = %v, want %v", got, tt.want)
			}
			for code, n := range tt.want {
				if got[code] != n {
					t.Errorf("code %s count = %d, want %d", code, got[code], n)
				}
			}
		})
	}
}

func TestMarkdownValidatorUnclosedFence(t *testing.T) {
	issues := runChecks(t, NewMarkdownValidator(), "doc.md", "# T\n\n```go\nfmt.Println()\n")
	got := codeSet(issues)
	if got["MD-001"] != 1 {
		t.Fatalf("MD-001 count = %d, want 1 (issues: %v)", got["MD-001"], got)
	}
	for _, is := range issues {
		if is.Code == "MD-001" && is.Level != types.LevelCritical {
			t.Errorf("MD-001 level = %s, want critical", is.Level)
		}
	}
}

func TestMarkdownValidatorHygiene(t *testing.T) {
	content := "# T\n\nAn [empty]() link.\n\nVisit https://example.com today.\n\ntrailing space \n\n\thard tab line\n"
	got := codeSet(runChecks(t, NewMarkdownValidator(), "doc.md", content))

	for code, want := range map[string]int{
		"MD-002": 1, // empty destination
		"MD-003": 1, // bare URL
		"MD-004": 1, // trailing whitespace
		"MD-005": 1, // hard tab
	} {
		if got[code] != want {
			t.Errorf("code %s count = %d, want %d (all: %v)", code, got[code], want, got)
		}
	}
}

func TestMarkdownValidatorIgnoresFences(t *testing.T) {
	// Bare URLs and tabs inside a fence are code, not prose defects.
	content := "# T\n\n```text\nhttps://example.com\n\tindent\n```\n"
	got := codeSet(runChecks(t, NewMarkdownValidator(), "doc.md", content))
	if got["MD-003"] != 0 || got["MD-005"] != 0 {
		t.Fatalf("fence content flagged: %v", got)
	}
}

func TestMarkdownValidatorHardBreakAllowed(t *testing.T) {
	got := codeSet(runChecks(t, NewMarkdownValidator(), "doc.md", "# T\n\nline with hard break  \nnext\n"))
	if got["MD-004"] != 0 {
		t.Fatal("two-space hard break flagged as trailing whitespace")
	}
}

func TestStructureValidator(t *testing.T) {
	longBody := "# Title\n\n"
	for i := 0; i < 60; i++ {
		longBody += "word "
	}
	longBody += "\n"

	tests := []struct {
		name    string
		content string
		code    string
		present bool
	}{
		{"no headings", "just text without any heading but with enough words to pass the minimum threshold check here and more filler words to reach fifty total words in the body which requires quite a few more words than one might expect at first glance to be honest", "STRUCT-001", true},
		{"first heading not h1", "## Second Level\n\n" + longBody, "STRUCT-002", true},
		{"empty section", longBody + "\n## Empty\n\n## Follow\n\ncontent here\n", "STRUCT-003", true},
		{"short body", "# T\n\nfew words\n", "STRUCT-004", true},
		{"deep heading", longBody + "\n##### Too Deep\n\ndeep content\n", "STRUCT-005", true},
		{"clean", longBody, "STRUCT-001", false},
	}

	v := NewStructureValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codeSet(runChecks(t, v, "doc.md", tt.content))
			if (got[tt.code] > 0) != tt.present {
				t.Errorf("code %s present = %v, want %v (all: %v)", tt.code, got[tt.code] > 0, tt.present, got)
			}
		})
	}
}

func TestCodeValidator(t *testing.T) {
	content := "# T\n\n```\nno tag\n```\n\n```klingon\nunknown\n```\n\n```bash\nexport KEY=YOUR_API_KEY\n```\n"
	got := codeSet(runChecks(t, NewCodeValidator(), "doc.md", content))

	for code, want := range map[string]int{
		"CODE-001": 1, // missing tag
		"CODE-002": 1, // unknown language
		"CODE-003": 1, // placeholder
	} {
		if got[code] != want {
			t.Errorf("code %s count = %d, want %d (all: %v)", code, got[code], want, got)
		}
	}
}

func TestCodeValidatorMaxLines(t *testing.T) {
	content := "# T\n\n```text\n"
	for i := 0; i < 130; i++ {
		content += "line\n"
	}
	content += "```\n"
	got := codeSet(runChecks(t, NewCodeValidator(), "doc.md", content))
	if got["CODE-004"] != 1 {
		t.Fatalf("CODE-004 count = %d, want 1", got["CODE-004"])
	}
}

func TestSEOValidator(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
		present bool
	}{
		{"short title", "---\ntitle: Hi\ndescription: " + repeat("d", 130) + "\n---\n# One\n", "SEO-001", true},
		{"short description", "---\ntitle: " + repeat("t", 40) + "\ndescription: tiny\n---\n# One\n", "SEO-002", true},
		{"multiple h1", "---\ntitle: " + repeat("t", 40) + "\n---\n# One\n\n# Two\n", "SEO-003", true},
		{"heading jump", "---\ntitle: " + repeat("t", 40) + "\n---\n# One\n\n### Jumped\n", "SEO-004", true},
		{"clean", "---\ntitle: " + repeat("t", 40) + "\ndescription: " + repeat("d", 130) + "\n---\n# One\n\n## Two\n", "SEO-001", false},
	}

	v := NewSEOValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codeSet(runChecks(t, v, "doc.md", tt.content))
			if (got[tt.code] > 0) != tt.present {
				t.Errorf("code %s present = %v, want %v (all: %v)", tt.code, got[tt.code] > 0, tt.present, got)
			}
		})
	}
}

func TestLinksValidatorAnchors(t *testing.T) {
	content := "# My Section\n\nGood [jump](#my-section) and bad [jump](#missing-section).\n"
	got := codeSet(runChecks(t, NewLinksValidator(), "doc.md", content))
	if got["LINK-001"] != 1 {
		t.Fatalf("LINK-001 count = %d, want 1 (all: %v)", got["LINK-001"], got)
	}
}

func TestLinksValidatorSchemes(t *testing.T) {
	content := "# T\n\nFine [a](https://example.com), odd [b](ftp://example.com/file).\n"
	got := codeSet(runChecks(t, NewLinksValidator(), "doc.md", content))
	if got["LINK-002"] != 1 {
		t.Fatalf("LINK-002 count = %d, want 1 (all: %v)", got["LINK-002"], got)
	}
}

func TestLinksValidatorRelativeTargets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "other.md"), []byte("# Other\n"), 0644); err != nil {
		t.Fatal(err)
	}
	docPath := filepath.Join(dir, "doc.md")

	content := "# T\n\nExists [a](other.md), missing [b](gone.md).\n"
	got := codeSet(runChecks(t, NewLinksValidator(), docPath, content))
	if got["LINK-003"] != 1 {
		t.Fatalf("LINK-003 count = %d, want 1 (all: %v)", got["LINK-003"], got)
	}
}

func TestLinksValidatorDuplicates(t *testing.T) {
	content := "# T\n\n[a](https://dup.example.com) [b](https://dup.example.com) [c](https://dup.example.com) [d](https://dup.example.com)\n"
	got := codeSet(runChecks(t, NewLinksValidator(), "doc.md", content))
	if got["LINK-004"] != 1 {
		t.Fatalf("LINK-004 count = %d, want 1 (all: %v)", got["LINK-004"], got)
	}
}

func TestHeadingAnchors(t *testing.T) {
	doc := ParseDocument("# My Section!\n\n## My Section!\n\n## Other Stuff\n")
	anchors := headingAnchors(doc)
	for _, want := range []string{"my-section", "my-section-1", "other-stuff"} {
		if !anchors[want] {
			t.Errorf("anchor %q missing (got %v)", want, anchors)
		}
	}
}

func repeat(s string, n int) string { return strings.Repeat(s, n) }
