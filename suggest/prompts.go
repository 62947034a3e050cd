package suggest

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/selfheal/dom"
)

const systemPrompt = "You repair broken selectors for web UI automation. " +
	"Answer with the requested value only, no explanation and no code fence."

const notAvailable = "Not available"

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func listOrNA(items []string) string {
	if len(items) == 0 {
		return notAvailable
	}
	return strings.Join(items, ", ")
}

// writeDOMContext appends the element neighbourhood lines shared by the
// selector and description prompts.
func writeDOMContext(sb *strings.Builder, dc *dom.Context) {
	if dc == nil {
		dc = &dom.Context{}
	}
	fmt.Fprintf(sb, "- Full element HTML: %s\n", orNA(dc.FullElementHTML))
	fmt.Fprintf(sb, "- Parent element HTML: %s\n", orNA(dc.ParentElement))
	fmt.Fprintf(sb, "- Child elements HTML: %s\n", listOrNA(dc.ChildElements))
	fmt.Fprintf(sb, "- Sibling elements HTML: %s\n", listOrNA(dc.SiblingElements))
}

func selectorPrompt(html, failedSelector, action string, dc *dom.Context) string {
	var sb strings.Builder
	sb.WriteString("Generate a robust and valid XPath selector for the element targeted below. " +
		"Enclose every attribute value in double quotes.\n\n")
	fmt.Fprintf(&sb, "- Action to perform: %s\n", action)
	fmt.Fprintf(&sb, "- Failed selector: %s\n", failedSelector)
	writeDOMContext(&sb, dc)
	fmt.Fprintf(&sb, "- Current HTML:\n```html\n%s\n```\n\n", html)
	sb.WriteString("Return only the XPath selector, or none if the element is not on the page.")
	return sb.String()
}

func descriptionPrompt(action, selector, url, page string, dc *dom.Context) string {
	var sb strings.Builder
	sb.WriteString("Given the following details of a web automation action:\n")
	fmt.Fprintf(&sb, "- Action: %s\n", action)
	fmt.Fprintf(&sb, "- Selector: %s\n", selector)
	fmt.Fprintf(&sb, "- URL: %s\n", url)
	writeDOMContext(&sb, dc)
	fmt.Fprintf(&sb, "- Page content (truncated):\n```\n%s\n```\n\n", page)
	sb.WriteString("Write a one-sentence description of this action in the context of the page.")
	return sb.String()
}

func analysisPrompt(patternsText, failedSelector, action string) string {
	var sb strings.Builder
	sb.WriteString("The following selectors were recorded during earlier automation runs, " +
		"with their page, description and reliability weight:\n")
	fmt.Fprintf(&sb, "```\n%s\n```\n\n", patternsText)
	fmt.Fprintf(&sb, "Using this history, suggest the most suitable replacement for the failed selector %q "+
		"in the context of the action %q.\n\n", failedSelector, action)
	sb.WriteString("Return only the selector, or none if the history holds no plausible replacement.")
	return sb.String()
}
