package validator

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Heading is one ATX or setext heading in the body.
type Heading struct {
	Level int
	Text  string
	Line  int // 1-based, in the full document
}

// CodeFence is one fenced code block.
type CodeFence struct {
	Language  string
	Info      string
	StartLine int
	EndLine   int
}

// Link is one markdown or inline-HTML link or image.
type Link struct {
	Destination string
	Text        string
	Line        int
	Image       bool
	InlineHTML  bool
}

// Document is the parse of one markdown file, computed once per validation
// run and shared read-only by all validators in the pipeline.
type Document struct {
	Raw   string
	Lines []string

	// Frontmatter block, when present.
	HasFrontmatter  bool
	FrontmatterRaw  string // delimiters included
	Frontmatter     map[string]any
	FrontmatterErr  error
	FrontmatterEnd  int // 1-based line of the closing delimiter, 0 when absent

	// Body is everything after the frontmatter.
	Body          string
	BodyFirstLine int // 1-based line the body starts at

	Headings   []Heading
	CodeFences []CodeFence
	Links      []Link

	source      []byte // body bytes fed to goldmark
	lineOffsets []int  // byte offset of each body line start
}

var markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ParseDocument parses content into the shared document structure. Parsing
// never fails; malformed pieces surface as validator findings instead.
func ParseDocument(content string) *Document {
	doc := &Document{
		Raw:           content,
		Lines:         strings.Split(content, "\n"),
		Body:          content,
		BodyFirstLine: 1,
	}
	doc.splitFrontmatter()
	doc.parseBody()
	doc.collectHTMLLinks()
	return doc
}

// splitFrontmatter detects a leading --- delimited YAML block.
func (d *Document) splitFrontmatter() {
	if !strings.HasPrefix(d.Raw, "---\n") && d.Raw != "---" {
		return
	}
	for i := 1; i < len(d.Lines); i++ {
		trimmed := strings.TrimRight(d.Lines[i], " \t")
		if trimmed == "---" || trimmed == "..." {
			d.HasFrontmatter = true
			d.FrontmatterEnd = i + 1
			d.FrontmatterRaw = strings.Join(d.Lines[:i+1], "\n")
			inner := strings.Join(d.Lines[1:i], "\n")
			fm := make(map[string]any)
			if err := yaml.Unmarshal([]byte(inner), &fm); err != nil {
				d.FrontmatterErr = err
			} else {
				d.Frontmatter = fm
			}
			if i+1 < len(d.Lines) {
				d.Body = strings.Join(d.Lines[i+1:], "\n")
			} else {
				d.Body = ""
			}
			d.BodyFirstLine = i + 2
			return
		}
	}
	// Opening delimiter with no close. Leave body as the whole file; the
	// frontmatter validator reports it.
	d.HasFrontmatter = true
	d.FrontmatterErr = errUnclosedFrontmatter
}

type unclosedFrontmatterError struct{}

func (unclosedFrontmatterError) Error() string { return "frontmatter block is never closed" }

var errUnclosedFrontmatter = unclosedFrontmatterError{}

// parseBody builds the goldmark AST and extracts headings, fences and links.
func (d *Document) parseBody() {
	d.source = []byte(d.Body)
	d.lineOffsets = computeLineOffsets(d.source)

	root := markdownParser.Parser().Parse(text.NewReader(d.source))
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			line := d.nodeLine(node)
			d.Headings = append(d.Headings, Heading{
				Level: node.Level,
				Text:  string(node.Text(d.source)),
				Line:  line,
			})
		case *ast.FencedCodeBlock:
			start, end := d.fenceLines(node)
			info := ""
			if node.Info != nil {
				info = string(node.Info.Segment.Value(d.source))
			}
			lang := info
			if idx := strings.IndexAny(info, " \t"); idx >= 0 {
				lang = info[:idx]
			}
			d.CodeFences = append(d.CodeFences, CodeFence{
				Language:  lang,
				Info:      info,
				StartLine: start,
				EndLine:   end,
			})
		case *ast.Link:
			d.Links = append(d.Links, Link{
				Destination: string(node.Destination),
				Text:        string(node.Text(d.source)),
				Line:        d.inlineLine(node),
			})
		case *ast.Image:
			d.Links = append(d.Links, Link{
				Destination: string(node.Destination),
				Text:        string(node.Text(d.source)),
				Line:        d.inlineLine(node),
				Image:       true,
			})
		case *ast.AutoLink:
			d.Links = append(d.Links, Link{
				Destination: string(node.URL(d.source)),
				Line:        d.inlineLine(node),
			})
		}
		return ast.WalkContinue, nil
	})
}

// collectHTMLLinks scans raw and inline HTML for anchor hrefs the markdown
// parser does not model.
func (d *Document) collectHTMLLinks() {
	if !strings.Contains(d.Body, "<a") {
		return
	}
	tokenizer := html.NewTokenizer(strings.NewReader(d.Body))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := tokenizer.Token()
		if tok.Data != "a" {
			continue
		}
		for _, attr := range tok.Attr {
			if attr.Key == "href" {
				d.Links = append(d.Links, Link{
					Destination: attr.Val,
					Line:        d.searchLine(`href="` + attr.Val),
					InlineHTML:  true,
				})
			}
		}
	}
}

// searchLine finds the 1-based document line containing needle, 0 when absent.
func (d *Document) searchLine(needle string) int {
	for i, line := range d.Lines {
		if strings.Contains(line, needle) {
			return i + 1
		}
	}
	return 0
}

// nodeLine returns the 1-based document line of a block node.
func (d *Document) nodeLine(n ast.Node) int {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return d.BodyFirstLine
	}
	return d.offsetToLine(lines.At(0).Start)
}

// inlineLine walks up to the nearest block ancestor carrying segments.
func (d *Document) inlineLine(n ast.Node) int {
	for p := n; p != nil; p = p.Parent() {
		if lines := p.Lines(); lines != nil && lines.Len() > 0 {
			return d.offsetToLine(lines.At(0).Start)
		}
	}
	return d.BodyFirstLine
}

// fenceLines returns the document line span of a fenced block including its
// delimiters.
func (d *Document) fenceLines(n *ast.FencedCodeBlock) (int, int) {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return d.BodyFirstLine, d.BodyFirstLine
	}
	start := d.offsetToLine(lines.At(0).Start) - 1 // opening fence precedes content
	end := d.offsetToLine(lines.At(lines.Len()-1).Start) + 1
	return start, end
}

// offsetToLine maps a body byte offset to a 1-based document line number.
func (d *Document) offsetToLine(offset int) int {
	idx := sort.Search(len(d.lineOffsets), func(i int) bool {
		return d.lineOffsets[i] > offset
	})
	return d.BodyFirstLine + idx - 1
}

func computeLineOffsets(src []byte) []int {
	offsets := []int{0}
	for i, b := range src {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// WordCount counts whitespace-separated tokens in the body.
func (d *Document) WordCount() int {
	return len(strings.Fields(d.Body))
}
