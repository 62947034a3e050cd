// Package heal wraps automation actions with selector self-healing.
//
// An Interceptor runs an action; when it fails and its arguments carry a
// selector, the interceptor looks for a replacement (pattern ranking, a
// learned replacement, context analysis, then a direct suggestion), records
// the failure, checks that the replacement is on the page and retries the
// action once with it. Every outcome is recorded in the pattern store.
//
//	ic := heal.New(store, suggester, heal.Config{Logger: logger})
//	click := ic.Wrap("click", heal.Click)
//	_, err := click(ctx, page, heal.Args{"selector": "//button[@id='go']"})
package heal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/selfheal/driver"
	"github.com/hazyhaar/selfheal/patterns"
)

// Args are the named arguments of an action.
type Args map[string]any

// String returns args[key] when it is a string.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// with returns a copy of a with key set to value.
func (a Args) with(key, value string) Args {
	out := make(Args, len(a)+1)
	for k, v := range a {
		out[k] = v
	}
	out[key] = value
	return out
}

// Action is an automation step run against a page.
type Action func(ctx context.Context, page driver.Page, args Args) (any, error)

// Middleware decorates a named Action.
type Middleware func(name string, next Action) Action

// Store is the pattern memory the interceptor reads and records into.
// *patterns.Store satisfies it.
type Store interface {
	SavePattern(ctx context.Context, p patterns.SaveParams) error
	GetPattern(ctx context.Context, action, selector, url string) (*patterns.Pattern, error)
	ResolveSelector(ctx context.Context, failedSelector, url string, limit int) (string, error)
	LearnedReplacement(ctx context.Context, action, selector, url string) (string, error)
	GetReplacementSelector(ctx context.Context, failedSelector, url, action string) (string, error)
	UpdateOriginalPattern(ctx context.Context, action, originalSelector, url, replacementSelector string) error
}

// Config configures the interceptor.
type Config struct {
	// SelectorKey is the argument holding the selector. Default: "selector".
	// When it is absent, "xpath" is used.
	SelectorKey string `json:"selector_key" yaml:"selector_key"`

	// CandidateLimit is the number of ranked patterns considered. Default: 10.
	CandidateLimit int `json:"candidate_limit" yaml:"candidate_limit"`

	// SkipSuggestedRecord disables recording a suggested selector that is
	// present on the page before it is retried.
	SkipSuggestedRecord bool `json:"skip_suggested_record" yaml:"skip_suggested_record"`

	// SkipDOMCapture disables storing the DOM context of successful targets.
	SkipDOMCapture bool `json:"skip_dom_capture" yaml:"skip_dom_capture"`

	// Logger for healing decisions. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.SelectorKey == "" {
		c.SelectorKey = "selector"
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ActionError is returned when an action fails for good. Cause is the error
// of the last attempt: the original one, or the retry's when a replacement
// selector was tried.
type ActionError struct {
	Action   string
	Selector string // selector of the attempt that produced Cause
	Healed   bool   // a replacement selector was tried
	Cause    error
}

func (e *ActionError) Error() string {
	switch {
	case e.Healed:
		return fmt.Sprintf("heal: %s %s (retry): %v", e.Action, e.Selector, e.Cause)
	case e.Selector != "":
		return fmt.Sprintf("heal: %s %s: %v", e.Action, e.Selector, e.Cause)
	}
	return fmt.Sprintf("heal: %s: %v", e.Action, e.Cause)
}

func (e *ActionError) Unwrap() error { return e.Cause }
