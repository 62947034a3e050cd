// Package dom works on HTML snapshots of the page under automation: it
// evaluates selectors against a parsed document and captures the DOM
// context (element, parent, children, siblings) of a target element.
//
// Selectors starting with "/", "./", "(" or "xpath=" are XPath 1.0 and run
// through htmlquery; anything else (optionally prefixed "css=") is a CSS
// selector run through goquery. Invalid expressions match nothing.
package dom

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

const (
	maxFragment = 1024
	maxRelated  = 10
)

// Context is a snapshot of the DOM neighbourhood of one element.
type Context struct {
	FullElementHTML string   `json:"full_element_html,omitempty"`
	ParentElement   string   `json:"parent_element,omitempty"`
	ChildElements   []string `json:"child_elements,omitempty"`
	SiblingElements []string `json:"sibling_elements,omitempty"`
}

// IsEmpty reports whether c carries no context at all. A nil Context is empty.
func (c *Context) IsEmpty() bool {
	return c == nil || (c.FullElementHTML == "" && c.ParentElement == "" &&
		len(c.ChildElements) == 0 && len(c.SiblingElements) == 0)
}

// Parse parses an HTML snapshot.
func Parse(raw string) (*html.Node, error) {
	return htmlquery.Parse(strings.NewReader(raw))
}

// IsXPath reports whether selector is written in the XPath dialect.
func IsXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "(") || strings.HasPrefix(s, "xpath=")
}

// Query returns the elements of doc matched by selector, in document order.
func Query(doc *html.Node, selector string) []*html.Node {
	s := strings.TrimSpace(selector)
	if doc == nil || s == "" {
		return nil
	}
	if IsXPath(s) {
		nodes, err := htmlquery.QueryAll(doc, strings.TrimPrefix(s, "xpath="))
		if err != nil {
			return nil
		}
		out := nodes[:0]
		for _, n := range nodes {
			if n.Type == html.ElementNode {
				out = append(out, n)
			}
		}
		return out
	}
	return goquery.NewDocumentFromNode(doc).Find(strings.TrimPrefix(s, "css=")).Nodes
}

// Exists reports whether selector matches at least one element of the raw
// HTML snapshot.
func Exists(raw, selector string) bool {
	doc, err := Parse(raw)
	if err != nil {
		return false
	}
	return len(Query(doc, selector)) > 0
}

// Capture returns the DOM context of the first element matched by selector
// in the raw HTML snapshot, or nil when nothing matches.
func Capture(raw, selector string) *Context {
	doc, err := Parse(raw)
	if err != nil {
		return nil
	}
	matches := Query(doc, selector)
	if len(matches) == 0 {
		return nil
	}
	n := matches[0]

	c := &Context{FullElementHTML: truncate(render(n))}
	if p := n.Parent; p != nil && p.Type == html.ElementNode {
		c.ParentElement = openTag(p)
	}
	for ch := n.FirstChild; ch != nil && len(c.ChildElements) < maxRelated; ch = ch.NextSibling {
		if ch.Type == html.ElementNode {
			c.ChildElements = append(c.ChildElements, truncate(render(ch)))
		}
	}
	if n.Parent != nil {
		for s := n.Parent.FirstChild; s != nil && len(c.SiblingElements) < maxRelated; s = s.NextSibling {
			if s != n && s.Type == html.ElementNode {
				c.SiblingElements = append(c.SiblingElements, truncate(render(s)))
			}
		}
	}
	return c
}

// render serialises a node subtree back to HTML.
func render(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// openTag renders only the start tag of an element.
func openTag(n *html.Node) string {
	shallow := &html.Node{Type: n.Type, DataAtom: n.DataAtom, Data: n.Data, Attr: n.Attr}
	s := render(shallow)
	if i := strings.LastIndex(s, "</"); i > 0 {
		s = s[:i]
	}
	return truncate(s)
}

func truncate(s string) string {
	if len(s) <= maxFragment {
		return s
	}
	return s[:maxFragment] + "…"
}
