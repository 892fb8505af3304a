package http

import (
	"strings"

	"ocr-job-service/internal/core/domain"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ParseSections splits each page's markdown into ATX-heading-delimited
// sections. Parsing is per page (not on the pages concatenated together)
// so a section's Page field always identifies a single source page.
// Content before a page's first heading is reported as a level-0
// "(untitled)" section, matching how a page with no headings at all
// becomes one untitled section spanning its whole text.
func ParseSections(pages []domain.PageResult) []domain.Section {
	var sections []domain.Section

	md := goldmark.New()

	for _, page := range pages {
		if strings.TrimSpace(page.MarkdownText) == "" {
			continue
		}

		source := []byte(page.MarkdownText)
		doc := md.Parser().Parse(text.NewReader(source))

		type heading struct {
			level int
			title string
			start int
		}
		var headings []heading

		_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			h, ok := n.(*ast.Heading)
			if !ok {
				return ast.WalkContinue, nil
			}
			lines := h.Lines()
			start := len(source)
			if lines.Len() > 0 {
				// The segment starts at the heading text; back up to the start of
				// its line so the "#" markers are not counted as preceding content.
				start = lines.At(0).Start
				start = strings.LastIndexByte(page.MarkdownText[:start], '\n') + 1
			}
			headings = append(headings, heading{level: h.Level, title: headingText(h, source), start: start})
			return ast.WalkSkipChildren, nil
		})

		if len(headings) == 0 {
			content := strings.TrimSpace(page.MarkdownText)
			if content != "" {
				sections = append(sections, domain.Section{Heading: "(untitled)", Level: 0, Page: page.PageNumber, Content: content})
			}
			continue
		}

		if pre := strings.TrimSpace(page.MarkdownText[:headings[0].start]); pre != "" {
			sections = append(sections, domain.Section{Heading: "(untitled)", Level: 0, Page: page.PageNumber, Content: pre})
		}

		for i, h := range headings {
			end := len(source)
			if i+1 < len(headings) {
				end = headings[i+1].start
			}
			// Skip past the heading line itself to its body.
			bodyStart := strings.IndexByte(page.MarkdownText[h.start:end], '\n')
			body := ""
			if bodyStart >= 0 {
				body = strings.TrimSpace(page.MarkdownText[h.start+bodyStart : end])
			}
			sections = append(sections, domain.Section{Heading: h.title, Level: h.level, Page: page.PageNumber, Content: body})
		}
	}

	return sections
}

// headingText concatenates a heading's inline text children, since
// ast.Heading itself holds no direct text accessor once the inline parser
// has split its line into child nodes (ast.Text, ast.Emphasis, ...).
func headingText(h *ast.Heading, source []byte) string {
	var b strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Text(source))
		}
	}
	return strings.TrimSpace(b.String())
}
