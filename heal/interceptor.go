package heal

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hazyhaar/selfheal/dom"
	"github.com/hazyhaar/selfheal/driver"
	"github.com/hazyhaar/selfheal/idgen"
	"github.com/hazyhaar/selfheal/kit"
	"github.com/hazyhaar/selfheal/normalize"
	"github.com/hazyhaar/selfheal/patterns"
	"github.com/hazyhaar/selfheal/suggest"
)

const suggestedDescription = "suggested"

var invocationID = idgen.Prefixed("inv_", idgen.UUIDv7())

// Interceptor runs actions with self-healing. It is safe for concurrent
// use; each invocation is independent.
type Interceptor struct {
	store  Store
	sg     suggest.Suggester
	cfg    Config
	logger *slog.Logger
}

// New creates an Interceptor. A nil suggester disables suggestions and
// descriptions.
func New(store Store, sg suggest.Suggester, cfg Config) *Interceptor {
	cfg.defaults()
	if sg == nil {
		sg = suggest.Noop{}
	}
	return &Interceptor{store: store, sg: sg, cfg: cfg, logger: cfg.Logger}
}

// Wrap returns action with self-healing applied.
func (i *Interceptor) Wrap(name string, action Action) Action {
	return func(ctx context.Context, page driver.Page, args Args) (any, error) {
		return i.Execute(ctx, name, action, page, args)
	}
}

// Middleware returns Wrap as a Middleware.
func (i *Interceptor) Middleware() Middleware {
	return i.Wrap
}

// Execute runs action once and, if it fails on a selector, tries a single
// replacement. The page URL and HTML are read before the action runs; the
// pattern is keyed on that URL.
func (i *Interceptor) Execute(ctx context.Context, name string, action Action, page driver.Page, args Args) (any, error) {
	key, selector := i.selectorOf(args)
	log := i.logger.With("invocation", invocationID(), "action", name)
	if sid := kit.GetSessionID(ctx); sid != "" {
		log = log.With("session", sid)
	}

	url, html := i.snapshot(ctx, log, page)

	result, err := action(ctx, page, args)
	if err == nil {
		i.recordSuccess(ctx, log, name, selector, url, html, "")
		return result, nil
	}

	if selector == "" || page == nil {
		log.Debug("heal: action failed, nothing to heal", "error", err)
		return nil, &ActionError{Action: name, Selector: selector, Cause: err}
	}
	log = log.With("selector", selector, "url", url)
	log.Info("heal: action failed, looking for a replacement", "error", err)

	if current, herr := page.CurrentHTML(ctx); herr == nil {
		html = current
	}
	candidate, source := i.findCandidate(ctx, log, name, selector, url, html)

	if serr := i.store.SavePattern(ctx, patterns.SaveParams{
		Action:              name,
		Selector:            selector,
		URL:                 url,
		Success:             false,
		ReplacementSelector: candidate,
	}); serr != nil {
		log.Warn("heal: record failure", "error", serr)
	}

	if candidate == "" {
		log.Info("heal: no replacement found")
		return nil, &ActionError{Action: name, Selector: selector, Cause: err}
	}
	log = log.With("candidate", candidate, "source", source)

	present, perr := page.ElementExists(ctx, candidate)
	if perr != nil {
		log.Warn("heal: existence check failed", "error", perr)
		return nil, &ActionError{Action: name, Selector: selector, Cause: err}
	}
	if !present {
		log.Info("heal: replacement not on page")
		return nil, &ActionError{Action: name, Selector: selector, Cause: err}
	}

	if source == sourceSuggestion && !i.cfg.SkipSuggestedRecord {
		if serr := i.store.SavePattern(ctx, patterns.SaveParams{
			Action: name, Selector: candidate, URL: url, Description: suggestedDescription, Success: true,
		}); serr != nil {
			log.Warn("heal: record suggestion", "error", serr)
		}
	}

	result, rerr := action(ctx, page, args.with(key, candidate))
	if rerr != nil {
		log.Warn("heal: retry failed", "error", rerr)
		return nil, &ActionError{Action: name, Selector: candidate, Healed: true, Cause: rerr}
	}

	log.Info("heal: action healed")
	i.recordSuccess(ctx, log, name, candidate, url, html, selector)
	if uerr := i.store.UpdateOriginalPattern(ctx, name, selector, url, candidate); uerr != nil {
		log.Warn("heal: update original pattern", "error", uerr)
	}
	return result, nil
}

// selectorOf returns the argument key and value of the selector, if any.
func (i *Interceptor) selectorOf(args Args) (key, selector string) {
	if s := strings.TrimSpace(args.String(i.cfg.SelectorKey)); s != "" {
		return i.cfg.SelectorKey, s
	}
	if s := strings.TrimSpace(args.String("xpath")); s != "" {
		return "xpath", s
	}
	return i.cfg.SelectorKey, ""
}

func (i *Interceptor) snapshot(ctx context.Context, log *slog.Logger, page driver.Page) (url, html string) {
	if page == nil {
		return "", ""
	}
	var err error
	if url, err = page.CurrentURL(ctx); err != nil {
		log.Warn("heal: read page url", "error", err)
	}
	if html, err = page.CurrentHTML(ctx); err != nil {
		log.Warn("heal: read page html", "error", err)
	}
	return url, html
}

// recordSuccess describes and saves a successful use of selector. healedFrom
// names the selector it replaced, if any.
func (i *Interceptor) recordSuccess(ctx context.Context, log *slog.Logger, name, selector, url, html, healedFrom string) {
	var dc *dom.Context
	if !i.cfg.SkipDOMCapture && selector != "" && html != "" {
		dc = dom.Capture(html, selector)
	}

	desc, err := i.sg.GenerateDescription(ctx, name, selector, url, html, dc)
	if err != nil {
		log.Warn("heal: describe action", "selector", selector, "error", err)
		desc = ""
	}

	if err := i.store.SavePattern(ctx, patterns.SaveParams{
		Action:      name,
		Selector:    selector,
		URL:         url,
		Description: desc,
		Success:     true,
		DOM:         dc,
	}); err != nil {
		log.Warn("heal: record success", "selector", selector, "error", err)
		return
	}
	if healedFrom != "" {
		log.Debug("heal: healed pattern recorded", "selector", selector, "replaces", healedFrom)
	}
}

const (
	sourceStore      = "store"
	sourceLearned    = "learned"
	sourceAnalysis   = "analysis"
	sourceSuggestion = "suggestion"
)

// findCandidate walks the replacement sources in order and returns the
// first acceptable candidate with its source. Lookup errors are logged and
// the next source is tried.
func (i *Interceptor) findCandidate(ctx context.Context, log *slog.Logger, name, selector, url, html string) (string, string) {
	sources := []struct {
		name string
		fn   func() (string, error)
	}{
		{sourceStore, func() (string, error) {
			return i.store.ResolveSelector(ctx, selector, url, i.cfg.CandidateLimit)
		}},
		{sourceLearned, func() (string, error) {
			return i.store.LearnedReplacement(ctx, name, selector, url)
		}},
		{sourceAnalysis, func() (string, error) {
			return i.store.GetReplacementSelector(ctx, selector, url, name)
		}},
		{sourceSuggestion, func() (string, error) {
			return i.sg.SuggestAlternativeSelector(ctx, html, selector, name, i.storedContext(ctx, log, name, selector, url))
		}},
	}

	for _, src := range sources {
		c, err := src.fn()
		if err != nil {
			log.Warn("heal: replacement lookup failed", "source", src.name, "error", err)
			continue
		}
		c = strings.TrimSpace(c)
		if src.name == sourceStore || src.name == sourceLearned {
			// Stored selectors are normalized keys without quotes.
			c = suggest.FixSelector(c)
		}
		if i.acceptable(log, src.name, selector, c) {
			return c, src.name
		}
	}
	return "", ""
}

// acceptable rejects empty candidates, URLs, and the failing selector itself.
func (i *Interceptor) acceptable(log *slog.Logger, source, failed, candidate string) bool {
	c := strings.TrimSpace(candidate)
	switch {
	case c == "":
		return false
	case normalize.LooksLikeURL(c):
		log.Warn("heal: url-shaped candidate rejected", "source", source, "candidate", c)
		return false
	case normalize.Selector(c) == normalize.Selector(failed):
		log.Debug("heal: candidate equals failing selector", "source", source)
		return false
	}
	return true
}

// storedContext returns the DOM context recorded for the failing pattern.
func (i *Interceptor) storedContext(ctx context.Context, log *slog.Logger, name, selector, url string) *dom.Context {
	p, err := i.store.GetPattern(ctx, name, selector, url)
	if err != nil {
		log.Debug("heal: read stored context", "error", err)
		return nil
	}
	if p == nil {
		return nil
	}
	dc := &dom.Context{
		FullElementHTML: p.FullElementHTML,
		ParentElement:   p.ParentElement,
		ChildElements:   p.ChildElements,
		SiblingElements: p.SiblingElements,
	}
	if dc.IsEmpty() {
		return nil
	}
	return dc
}
