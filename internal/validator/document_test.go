package validator

import "testing"

func TestParseDocumentFrontmatter(t *testing.T) {
	doc := ParseDocument("---\ntitle: Hello\ntags: [a, b]\n---\n\n# Heading\n\nBody text.\n")

	if !doc.HasFrontmatter {
		t.Fatal("HasFrontmatter = false")
	}
	if doc.FrontmatterErr != nil {
		t.Fatalf("FrontmatterErr = %v", doc.FrontmatterErr)
	}
	if got := doc.Frontmatter["title"]; got != "Hello" {
		t.Errorf("Frontmatter[title] = %v, want Hello", got)
	}
	if doc.FrontmatterEnd != 4 {
		t.Errorf("FrontmatterEnd = %d, want 4", doc.FrontmatterEnd)
	}
	if doc.BodyFirstLine != 5 {
		t.Errorf("BodyFirstLine = %d, want 5", doc.BodyFirstLine)
	}
}

func TestParseDocumentNoFrontmatter(t *testing.T) {
	doc := ParseDocument("# Just a heading\n\nText.\n")
	if doc.HasFrontmatter {
		t.Fatal("HasFrontmatter = true for plain document")
	}
	if doc.Body != doc.Raw {
		t.Error("Body differs from Raw without frontmatter")
	}
	if doc.BodyFirstLine != 1 {
		t.Errorf("BodyFirstLine = %d, want 1", doc.BodyFirstLine)
	}
}

func TestParseDocumentUnclosedFrontmatter(t *testing.T) {
	doc := ParseDocument("---\ntitle: Oops\n\n# Heading\n")
	if !doc.HasFrontmatter {
		t.Fatal("HasFrontmatter = false for unclosed block")
	}
	if doc.FrontmatterErr == nil {
		t.Fatal("FrontmatterErr = nil, want unclosed error")
	}
}

func TestParseDocumentHeadings(t *testing.T) {
	doc := ParseDocument("---\ntitle: T\n---\n# One\n\n## Two\n\ntext\n\n### Three\n")

	want := []struct {
		level int
		text  string
		line  int
	}{
		{1, "One", 4},
		{2, "Two", 6},
		{3, "Three", 10},
	}
	if len(doc.Headings) != len(want) {
		t.Fatalf("got %d headings, want %d: %+v", len(doc.Headings), len(want), doc.Headings)
	}
	for i, w := range want {
		h := doc.Headings[i]
		if h.Level != w.level || h.Text != w.text || h.Line != w.line {
			t.Errorf("heading %d = {%d %q %d}, want {%d %q %d}",
				i, h.Level, h.Text, h.Line, w.level, w.text, w.line)
		}
	}
}

func TestParseDocumentCodeFences(t *testing.T) {
	doc := ParseDocument("# T\n\n```go\nfmt.Println()\n```\n\n```\nplain\n```\n")

	if len(doc.CodeFences) != 2 {
		t.Fatalf("got %d fences, want 2: %+v", len(doc.CodeFences), doc.CodeFences)
	}
	first := doc.CodeFences[0]
	if first.Language != "go" {
		t.Errorf("fence language = %q, want go", first.Language)
	}
	if first.StartLine != 3 || first.EndLine != 5 {
		t.Errorf("fence span = %d-%d, want 3-5", first.StartLine, first.EndLine)
	}
	if doc.CodeFences[1].Language != "" {
		t.Errorf("bare fence language = %q, want empty", doc.CodeFences[1].Language)
	}
}

func TestParseDocumentLinks(t *testing.T) {
	doc := ParseDocument(`# T

A [site](https://example.com) and an image ![alt](img.png).

Auto link: https://auto.example.com

<a href="https://html.example.com">raw</a>
`)

	byDest := make(map[string]Link)
	for _, l := range doc.Links {
		byDest[l.Destination] = l
	}

	if l, ok := byDest["https://example.com"]; !ok || l.Image || l.InlineHTML {
		t.Errorf("markdown link = %+v, want plain link", l)
	}
	if l, ok := byDest["img.png"]; !ok || !l.Image {
		t.Errorf("image link = %+v, want Image=true", l)
	}
	if _, ok := byDest["https://auto.example.com"]; !ok {
		t.Error("autolink not collected")
	}
	if l, ok := byDest["https://html.example.com"]; !ok || !l.InlineHTML {
		t.Errorf("html link = %+v, want InlineHTML=true", l)
	}
}

func TestOffsetToLine(t *testing.T) {
	doc := ParseDocument("---\na: 1\n---\nline one\nline two\nline three\n")

	tests := []struct {
		offset int
		want   int
	}{
		{0, 4},  // start of body = document line 4
		{9, 5},  // "line two"
		{18, 6}, // "line three"
	}
	for _, tt := range tests {
		if got := doc.offsetToLine(tt.offset); got != tt.want {
			t.Errorf("offsetToLine(%d) = %d, want %d", tt.offset, got, tt.want)
		}
	}
}

func TestWordCount(t *testing.T) {
	doc := ParseDocument("---\ntitle: T\n---\none two three\nfour\n")
	if got := doc.WordCount(); got != 4 {
		t.Errorf("WordCount() = %d, want 4", got)
	}
}
