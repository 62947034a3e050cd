package suggest

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/selfheal/dom"
)

var (
	fenceRe = regexp.MustCompile("```[a-zA-Z]*")

	// A comparison inside a predicate: @attr, text() or "." compared to a
	// quoted or bare value, up to "]", ")" or an and/or operator.
	xpathCmpRe = regexp.MustCompile(`(@[\w-]+|text\(\)|\.)\s*=\s*(?:'([^']*)'|"([^"]*)"|([^'"\])]+?))(\s*(?:\]|\)|\s(?:and|or)\s))`)

	// contains(subject, bare) and starts-with(subject, bare).
	xpathFnArgRe = regexp.MustCompile(`((?:contains|starts-with)\(\s*(?:@[\w-]+|text\(\)|\.)\s*,\s*)([^'"\s)][^'"\)]*?)(\s*\))`)

	// [attr=bare], [attr^=bare] and the other CSS attribute operators.
	cssAttrRe = regexp.MustCompile(`\[\s*([\w-]+)\s*([~|^$*]?=)\s*([^'"\]\s][^'"\]]*?)\s*\]`)

	analysisJunk = strings.NewReplacer("`", "", `'`, "", `"`, "", "\n", "", "\r", "")
)

// CleanSelector extracts a bare selector from a model reply: code fences
// are removed, the first non-empty line is kept, and surrounding quotes and
// backticks are trimmed.
func CleanSelector(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) >= 2 && (line[0] == '"' || line[0] == '\'' || line[0] == '`') && line[len(line)-1] == line[0] {
			line = strings.TrimSpace(line[1 : len(line)-1])
		}
		return strings.Trim(line, "`")
	}
	return ""
}

// FixXPath rewrites every comparison of an XPath predicate to use double
// quotes, so that @id=go, @id='go' and text()=Log in become @id="go" and
// text()="Log in". Bare arguments of contains() and starts-with() are quoted
// too. When the quote count is still odd afterwards, a stray quote following
// "]" is dropped.
func FixXPath(xpath string) string {
	if !strings.ContainsAny(xpath, "@=") {
		return xpath
	}
	fixed := xpathCmpRe.ReplaceAllStringFunc(xpath, func(m string) string {
		sub := xpathCmpRe.FindStringSubmatch(m)
		val := sub[2] + sub[3] + sub[4]
		if strings.Contains(val, `"`) {
			return m
		}
		return sub[1] + `="` + val + `"` + sub[5]
	})
	fixed = xpathFnArgRe.ReplaceAllString(fixed, `$1"$2"$3`)
	if strings.Count(fixed, `"`)%2 != 0 {
		fixed = strings.ReplaceAll(fixed, `]"`, "]")
	}
	return fixed
}

// FixCSS quotes the bare values of CSS attribute selectors:
// input[name=q] becomes input[name="q"].
func FixCSS(css string) string {
	return cssAttrRe.ReplaceAllString(css, `[$1$2"$3"]`)
}

// FixSelector repairs a selector read back from the pattern store, where
// quotes have been stripped, with FixXPath or FixCSS depending on its
// dialect.
func FixSelector(selector string) string {
	if dom.IsXPath(selector) {
		return FixXPath(selector)
	}
	return FixCSS(selector)
}

// IsNone reports whether a model reply means "no suggestion".
func IsNone(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "none")
}

// cleanAnalysis strips every quote, backtick and newline from a context
// analysis reply.
func cleanAnalysis(raw string) string {
	return strings.TrimSpace(analysisJunk.Replace(fenceRe.ReplaceAllString(raw, "")))
}
