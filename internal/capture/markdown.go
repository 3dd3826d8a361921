package capture

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skippedTags are subtrees that carry no analyzable page copy.
var skippedTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Canvas:   true,
	atom.Object:   true,
}

// FromHTML converts an HTML document into the markdown the analysis
// prompts consume. The conversion keeps visible copy, structure, links
// and image alt text and drops scripts, styles and navigation chrome.
func FromHTML(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}
	return renderMarkdown(doc), nil
}

func renderMarkdown(doc *html.Node) string {
	r := &markdownRenderer{}
	r.container(doc, 0)
	return tidyMarkdown(r.b.String())
}

type markdownRenderer struct {
	b strings.Builder
}

// container walks a node's children, grouping consecutive inline nodes
// into implicit paragraphs and dispatching block elements.
func (r *markdownRenderer) container(n *html.Node, depth int) {
	var run []*html.Node
	flush := func() {
		if len(run) == 0 {
			return
		}
		if text := strings.TrimSpace(inlineNodes(run)); text != "" {
			r.paragraph(text)
		}
		run = nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isInline(c) {
			run = append(run, c)
			continue
		}
		flush()
		r.block(c, depth)
	}
	flush()
}

func (r *markdownRenderer) block(n *html.Node, depth int) {
	if n.Type != html.ElementNode || skippedTags[n.DataAtom] {
		return
	}
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		if text := strings.TrimSpace(inlineText(n)); text != "" {
			r.paragraph(strings.Repeat("#", level) + " " + text)
		}
	case atom.P:
		if text := strings.TrimSpace(inlineText(n)); text != "" {
			r.paragraph(text)
		}
	case atom.Ul:
		r.list(n, false, depth)
	case atom.Ol:
		r.list(n, true, depth)
	case atom.Blockquote:
		if text := strings.TrimSpace(inlineText(n)); text != "" {
			r.paragraph("> " + text)
		}
	case atom.Pre:
		if code := strings.Trim(textContent(n), "\n"); strings.TrimSpace(code) != "" {
			r.paragraph("```\n" + code + "\n```")
		}
	case atom.Table:
		r.table(n)
	case atom.Hr:
		r.paragraph("---")
	default:
		r.container(n, depth)
	}
}

func (r *markdownRenderer) paragraph(text string) {
	r.b.WriteString(text)
	r.b.WriteString("\n\n")
}

func (r *markdownRenderer) list(n *html.Node, ordered bool, depth int) {
	index := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		index++
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", index)
		}
		if text := strings.TrimSpace(listItemText(c)); text != "" {
			r.b.WriteString(strings.Repeat("  ", depth) + marker + text + "\n")
		}
		// Nested lists continue one level deeper.
		for g := c.FirstChild; g != nil; g = g.NextSibling {
			if g.Type == html.ElementNode && (g.DataAtom == atom.Ul || g.DataAtom == atom.Ol) {
				r.list(g, g.DataAtom == atom.Ol, depth+1)
			}
		}
	}
	if depth == 0 {
		r.b.WriteString("\n")
	}
}

// listItemText renders an li's inline content, excluding any nested
// lists the caller renders separately.
func listItemText(li *html.Node) string {
	var nodes []*html.Node
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol) {
			continue
		}
		nodes = append(nodes, c)
	}
	return inlineNodes(nodes)
}

func (r *markdownRenderer) table(n *html.Node) {
	var rows []string
	var walk func(*html.Node)
	walk = func(m *html.Node) {
		if m.Type == html.ElementNode && m.DataAtom == atom.Tr {
			var cells []string
			for c := m.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
					cells = append(cells, strings.TrimSpace(inlineText(c)))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, strings.Join(cells, " | "))
			}
			return
		}
		for c := m.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	for _, row := range rows {
		r.b.WriteString(row + "\n")
	}
	if len(rows) > 0 {
		r.b.WriteString("\n")
	}
}

func isInline(n *html.Node) bool {
	switch n.Type {
	case html.TextNode:
		return true
	case html.ElementNode:
	default:
		return false
	}
	switch n.DataAtom {
	case atom.A, atom.Strong, atom.B, atom.Em, atom.I, atom.Span, atom.Code,
		atom.Img, atom.Br, atom.Small, atom.Sup, atom.Sub, atom.U, atom.S,
		atom.Abbr, atom.Mark, atom.Time, atom.Label, atom.Button:
		return true
	}
	return false
}

// inlineNodes renders a run of nodes as one line of inline markdown.
func inlineNodes(nodes []*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		writeInline(&b, n)
	}
	return collapseSpace(b.String())
}

func inlineText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeInline(&b, c)
	}
	return collapseSpace(b.String())
}

func writeInline(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		return
	}
	if skippedTags[n.DataAtom] {
		return
	}
	switch n.DataAtom {
	case atom.Br:
		b.WriteString(" ")
	case atom.A:
		label := strings.TrimSpace(inlineText(n))
		href := attr(n, "href")
		switch {
		case label == "" && href == "":
		case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:"):
			b.WriteString(label)
		case label == "":
			b.WriteString(href)
		default:
			fmt.Fprintf(b, "[%s](%s)", label, href)
		}
	case atom.Strong, atom.B:
		if t := strings.TrimSpace(inlineText(n)); t != "" {
			b.WriteString("**" + t + "**")
		}
	case atom.Em, atom.I:
		if t := strings.TrimSpace(inlineText(n)); t != "" {
			b.WriteString("*" + t + "*")
		}
	case atom.Code:
		if t := strings.TrimSpace(textContent(n)); t != "" {
			b.WriteString("`" + t + "`")
		}
	case atom.Img:
		alt := attr(n, "alt")
		src := attr(n, "src")
		if alt != "" || src != "" {
			fmt.Fprintf(b, "![%s](%s)", alt, src)
		}
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeInline(b, c)
		}
	}
}

// textContent concatenates raw text nodes, preserving whitespace. Used
// for code where collapsing would destroy formatting.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(m *html.Node) {
		if m.Type == html.TextNode {
			b.WriteString(m.Data)
		}
		for c := m.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func tidyMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	out := strings.Join(lines, "\n")
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

// documentTitle extracts the <title> text from a parsed document.
func documentTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			title = collapseSpace(textContent(n))
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}
