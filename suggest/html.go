package suggest

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// htmlCompactor shrinks a page snapshot before it goes into a prompt.
// Scripts, styles and presentational attributes are dropped; the structure
// and the attributes a selector can anchor on are kept.
type htmlCompactor struct {
	policy   *bluemonday.Policy
	md       *converter.Converter
	maxChars int
}

func newHTMLCompactor(maxChars int) *htmlCompactor {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"html", "body", "main", "header", "footer", "nav", "section", "article", "aside",
		"div", "span", "p", "a", "button", "form", "fieldset", "legend", "label",
		"input", "select", "option", "optgroup", "textarea",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "dl", "dt", "dd",
		"table", "thead", "tbody", "tfoot", "tr", "th", "td",
		"img", "svg", "video", "audio", "canvas", "dialog", "details", "summary",
		"strong", "em", "b", "i", "small",
	)
	p.AllowAttrs(
		"id", "class", "name", "type", "role", "value", "placeholder", "title", "alt",
		"for", "href", "src", "action", "method",
		"aria-label", "aria-labelledby", "aria-describedby", "aria-hidden", "aria-expanded",
	).Globally()
	p.AllowDataAttributes()

	return &htmlCompactor{
		policy: p,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		maxChars: maxChars,
	}
}

// Sanitize returns the structural HTML used in selector prompts.
func (c *htmlCompactor) Sanitize(raw string) string {
	return truncate(collapseBlankLines(c.policy.Sanitize(raw)), c.maxChars)
}

// Markdown returns a readable rendering of the page used in description
// prompts. It falls back to sanitized HTML when conversion fails.
func (c *htmlCompactor) Markdown(raw, pageURL string) string {
	clean := c.policy.Sanitize(raw)
	md, err := c.md.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil || strings.TrimSpace(md) == "" {
		return truncate(collapseBlankLines(clean), c.maxChars)
	}
	return truncate(strings.TrimSpace(md), c.maxChars)
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, strings.TrimRight(l, " \t"))
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "\n…"
}
