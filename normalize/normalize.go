// Package normalize turns raw selectors and page URLs into the canonical keys
// used to match pattern rows. All functions are pure, idempotent and total:
// they accept any string, including the empty one, and never panic.
package normalize

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	selectorJunk = strings.NewReplacer(`"`, "", `'`, "", "<", "", ">", "")

	schemeRe   = regexp.MustCompile(`^(?i:https?://)?(?i:www\.)?`)
	queryRe    = regexp.MustCompile(`\?.*$`)
	fragmentRe = regexp.MustCompile(`#.*$`)
)

// Selector returns the comparison key for a selector: quote and
// angle-bracket characters stripped, surrounding whitespace trimmed and
// internal whitespace runs collapsed to one space. An empty selector is
// returned unchanged.
//
//	Selector(` #login   button[name="go"] `) == "#login button[name=go]"
func Selector(raw string) string {
	if raw == "" {
		return raw
	}
	s := selectorJunk.Replace(raw)
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// URL returns the comparison key for a page URL: scheme, leading "www.",
// query string, fragment, trailing slashes and surrounding whitespace are
// removed.
//
//	URL("https://www.example.com/login/?next=/#top") == "example.com/login"
func URL(raw string) string {
	u := raw
	for {
		// Stripping one part can expose another ("http://www.http://x",
		// "example.com /"), so repeat until nothing changes.
		next := strings.TrimSpace(u)
		next = schemeRe.ReplaceAllString(next, "")
		next = queryRe.ReplaceAllString(next, "")
		next = fragmentRe.ReplaceAllString(next, "")
		next = strings.TrimRight(next, "/")
		if next == u {
			return u
		}
		u = next
	}
}

// LooksLikeURL reports whether s is URL-shaped rather than a selector.
// Candidates that look like URLs are never used as replacement selectors.
func LooksLikeURL(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "http")
}
