// Package extract turns raw documentation files into searchable text,
// headings, code blocks, links and an outline.
package extract

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Heading is a section title with its level (1 for H1).
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// OutlineItem is one entry of the document outline.
type OutlineItem struct {
	Title    string        `json:"title"`
	ID       string        `json:"id,omitempty"`
	Children []OutlineItem `json:"children,omitempty"`
}

// Result is the extracted view of a file.
type Result struct {
	Format     Format
	PlainText  string
	Headings   []Heading
	CodeBlocks []string
	Links      []string
	Outline    []OutlineItem
	HasTOC     bool
}

// Headers returns the heading titles in document order.
func (r *Result) Headers() []string {
	out := make([]string, len(r.Headings))
	for i, h := range r.Headings {
		out[i] = h.Text
	}
	return out
}

// SearchBody is the text indexed for full-text search: prose followed by code.
func (r *Result) SearchBody() string {
	if len(r.CodeBlocks) == 0 {
		return r.PlainText
	}
	return r.PlainText + "\n\n" + strings.Join(r.CodeBlocks, "\n\n")
}

// Extractor converts supported formats to Markdown and walks the Markdown AST.
type Extractor struct {
	md   goldmark.Markdown
	html *converter.Converter
}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{
		md: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
		html: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Extract parses content of the given format. Unknown formats yield the raw
// text with no headings or code blocks.
func (e *Extractor) Extract(content []byte, format Format) (*Result, error) {
	switch format {
	case FormatMarkdown:
		return e.markdown(content, format)
	case FormatMDX:
		return e.markdown([]byte(mdxToMarkdown(string(content))), format)
	case FormatRST:
		return e.markdown([]byte(rstToMarkdown(string(content))), format)
	case FormatAsciiDoc:
		return e.markdown([]byte(asciidocToMarkdown(string(content))), format)
	case FormatNotebook:
		md, ok := notebookToMarkdown(content)
		if !ok {
			return raw(content, format), nil
		}
		return e.markdown([]byte(md), format)
	case FormatHTML:
		if strings.TrimSpace(string(content)) == "" {
			return raw(content, format), nil
		}
		md, err := e.html.ConvertString(string(content))
		if err != nil {
			return nil, fmt.Errorf("convert html: %w", err)
		}
		return e.markdown([]byte(md), format)
	default:
		return raw(content, format), nil
	}
}

func raw(content []byte, format Format) *Result {
	return &Result{
		Format:    format,
		PlainText: strings.TrimSpace(string(content)),
	}
}

func (e *Extractor) markdown(source []byte, format Format) (*Result, error) {
	doc := e.md.Parser().Parse(text.NewReader(source))

	res := &Result{Format: format}
	var prose []string

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(nodeText(node, source))
			if title != "" {
				res.Headings = append(res.Headings, Heading{Level: node.Level, Text: title})
				prose = append(prose, title)
			}
			collectLinks(node, source, &res.Links)
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			if s := strings.TrimSpace(nodeText(node, source)); s != "" {
				prose = append(prose, s)
			}
			collectLinks(node, source, &res.Links)
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			res.CodeBlocks = appendCode(res.CodeBlocks, node.Lines(), source)
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			res.CodeBlocks = appendCode(res.CodeBlocks, node.Lines(), source)
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(3),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}
	res.Outline = outline(tree.Items)
	res.PlainText = strings.Join(prose, "\n\n")
	res.HasTOC = hasTOC(res.Headings)
	return res, nil
}

func appendCode(blocks []string, lines *text.Segments, source []byte) []string {
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	code := strings.TrimRight(b.String(), "\n")
	if strings.TrimSpace(code) == "" {
		return blocks
	}
	return append(blocks, code)
}

// nodeText concatenates the inline text below n.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.Label(source))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func collectLinks(n ast.Node, source []byte, links *[]string) {
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch l := c.(type) {
		case *ast.Link:
			*links = append(*links, string(l.Destination))
		case *ast.AutoLink:
			*links = append(*links, string(l.URL(source)))
		}
		return ast.WalkContinue, nil
	})
}

func outline(items toc.Items) []OutlineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]OutlineItem, 0, len(items))
	for _, it := range items {
		out = append(out, OutlineItem{
			Title:    string(it.Title),
			ID:       string(it.ID),
			Children: outline(it.Items),
		})
	}
	return out
}

func hasTOC(headings []Heading) bool {
	for _, h := range headings {
		t := strings.ToLower(h.Text)
		if t == "contents" || t == "toc" || strings.Contains(t, "table of contents") {
			return true
		}
	}
	return false
}
