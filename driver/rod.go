package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/selfheal/dom"
)

// RodPage is a Page and Interactor backed by a Chrome tab.
type RodPage struct {
	page   *rod.Page
	router *rod.HijackRouter
	cfg    Config
}

// Rod returns the underlying page for operations outside the Interactor set.
func (p *RodPage) Rod() *rod.Page { return p.page }

func (p *RodPage) CurrentURL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("driver: page info: %w", err)
	}
	return info.URL, nil
}

func (p *RodPage) CurrentHTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("driver: page html: %w", err)
	}
	return html, nil
}

// ElementExists checks the live DOM once, without waiting.
func (p *RodPage) ElementExists(ctx context.Context, selector string) (bool, error) {
	xpath, css := splitSelector(selector)
	if xpath == "" && css == "" {
		return false, nil
	}
	var ok bool
	var err error
	if xpath != "" {
		ok, _, err = p.page.Context(ctx).HasX(xpath)
	} else {
		ok, _, err = p.page.Context(ctx).Has(css)
	}
	if err != nil {
		return false, fmt.Errorf("driver: check %s: %w", selector, err)
	}
	return ok, nil
}

func (p *RodPage) Click(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("driver: click %s: %w", selector, err)
	}
	return nil
}

func (p *RodPage) Type(ctx context.Context, selector, text string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("driver: type %s: %w", selector, err)
	}
	return nil
}

// Press sends key to the element, or to the page when selector is empty.
// Key is a name such as "Enter", "Tab", "ArrowDown" or a single character.
func (p *RodPage) Press(ctx context.Context, selector, key string) error {
	k, ok := keyByName(key)
	if !ok {
		return fmt.Errorf("driver: unknown key %q", key)
	}
	if selector == "" {
		if err := p.page.Context(ctx).Keyboard.Press(k); err != nil {
			return fmt.Errorf("driver: press %s: %w", key, err)
		}
		return nil
	}
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Type(k); err != nil {
		return fmt.Errorf("driver: press %s on %s: %w", key, selector, err)
	}
	return nil
}

func (p *RodPage) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavigateTimeout)
	defer cancel()

	page := p.page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("driver: navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		p.cfg.Logger.Warn("driver: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Close stops request interception and closes the tab.
func (p *RodPage) Close() error {
	if p.router != nil {
		p.router.Stop()
		p.router = nil
	}
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}

// element waits up to ElementTimeout for selector. A miss is reported as
// ErrElementNotFound.
func (p *RodPage) element(ctx context.Context, selector string) (*rod.Element, error) {
	xpath, css := splitSelector(selector)
	if xpath == "" && css == "" {
		return nil, fmt.Errorf("%w: empty selector", ErrElementNotFound)
	}

	page := p.page.Context(ctx).Timeout(p.cfg.ElementTimeout)
	var el *rod.Element
	var err error
	if xpath != "" {
		el, err = page.ElementX(xpath)
	} else {
		el, err = page.Element(css)
	}
	if err == nil {
		return el, nil
	}

	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
	}
	return nil, fmt.Errorf("driver: find %s: %w", selector, err)
}

// splitSelector returns the selector as XPath or as CSS, prefixes removed.
func splitSelector(selector string) (xpath, css string) {
	s := strings.TrimSpace(selector)
	if s == "" {
		return "", ""
	}
	if dom.IsXPath(s) {
		return strings.TrimPrefix(s, "xpath="), ""
	}
	return "", strings.TrimPrefix(s, "css=")
}

var namedKeys = map[string]input.Key{
	"enter":      input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"esc":        input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"space":      input.Space,
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"home":       input.Home,
	"end":        input.End,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
}

func keyByName(name string) (input.Key, bool) {
	if k, ok := namedKeys[strings.ToLower(name)]; ok {
		return k, true
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		return input.Key(r), true
	}
	return 0, false
}
