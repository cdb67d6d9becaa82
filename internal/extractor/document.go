// internal/extractor/document.go
package extractor

import (
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document is the read-only view of a page the extractor works against.
// Implementations must be safe to query repeatedly and must never mutate the page.
type Document interface {
	// URL returns the address the document was loaded from.
	URL() string
	// Title returns the trimmed contents of the <title> element, or "".
	Title() string
	// Query evaluates an XPath expression and returns matching elements in document order.
	// An invalid expression yields no elements.
	Query(xpath string) []Element
	// BodyText returns the visible text of the document body, whitespace collapsed.
	BodyText() string
}

// Element is a single node returned by Document.Query.
type Element interface {
	Tag() string
	ID() string
	Class() string
	Attr(name string) string
	// Text returns the visible descendant text, whitespace collapsed.
	Text() string
	// Visible approximates a rendered layout box using markup-only signals.
	Visible() bool
	// Next returns the next sibling element, or nil.
	Next() Element
}

// hiddenContainers never contribute rendered text.
var hiddenContainers = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

type htmlDocument struct {
	url  string
	root *html.Node
}

// NewDocument parses HTML from r into a Document. pageURL is recorded verbatim.
func NewDocument(r io.Reader, pageURL string) (Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}
	return &htmlDocument{url: pageURL, root: root}, nil
}

// NewDocumentFromString is a convenience wrapper around NewDocument.
func NewDocumentFromString(markup, pageURL string) (Document, error) {
	return NewDocument(strings.NewReader(markup), pageURL)
}

func (d *htmlDocument) URL() string { return d.url }

func (d *htmlDocument) Title() string {
	n := htmlquery.FindOne(d.root, "//title")
	if n == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(n))
}

func (d *htmlDocument) Query(expr string) []Element {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		out = append(out, &htmlElement{node: n})
	}
	return out
}

func (d *htmlDocument) BodyText() string {
	body := htmlquery.FindOne(d.root, "//body")
	if body == nil {
		return visibleText(d.root)
	}
	return visibleText(body)
}

type htmlElement struct {
	node *html.Node
}

func (e *htmlElement) Tag() string   { return strings.ToLower(e.node.Data) }
func (e *htmlElement) ID() string    { return htmlquery.SelectAttr(e.node, "id") }
func (e *htmlElement) Class() string { return htmlquery.SelectAttr(e.node, "class") }

func (e *htmlElement) Attr(name string) string { return htmlquery.SelectAttr(e.node, name) }

func (e *htmlElement) Text() string { return visibleText(e.node) }

func (e *htmlElement) Visible() bool {
	for n := e.node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type == html.ElementNode && hiddenNode(n) {
			return false
		}
	}
	return true
}

func (e *htmlElement) Next() Element {
	for s := e.node.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return &htmlElement{node: s}
		}
	}
	return nil
}

// hiddenNode reports whether n alone suppresses rendering of its subtree.
func hiddenNode(n *html.Node) bool {
	if hiddenContainers[strings.ToLower(n.Data)] {
		return true
	}
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(strings.TrimSpace(a.Val), "true") {
				return true
			}
		case "style":
			style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

// visibleText joins the text nodes under n that are not inside a hidden subtree.
func visibleText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			parts = append(parts, c.Data)
			return
		case html.ElementNode:
			if hiddenNode(c) {
				return
			}
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
