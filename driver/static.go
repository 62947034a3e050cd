package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/hazyhaar/selfheal/dom"
)

// StaticPage is a Page and Interactor over a fixed HTML snapshot. Actions
// succeed when their selector matches and record what they did; they never
// change the document.
type StaticPage struct {
	mu   sync.Mutex
	url  string
	html string
	log  []string
}

// NewStaticPage returns a page showing html at url.
func NewStaticPage(url, html string) *StaticPage {
	return &StaticPage{url: url, html: html}
}

// SetHTML replaces the snapshot, e.g. to simulate a redesign.
func (p *StaticPage) SetHTML(html string) {
	p.mu.Lock()
	p.html = html
	p.mu.Unlock()
}

// Actions returns the actions performed so far, as "click //a" lines.
func (p *StaticPage) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...)
}

func (p *StaticPage) CurrentURL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *StaticPage) CurrentHTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *StaticPage) ElementExists(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return dom.Exists(p.html, selector), nil
}

func (p *StaticPage) Click(ctx context.Context, selector string) error {
	return p.act(selector, "click "+selector)
}

func (p *StaticPage) Type(ctx context.Context, selector, text string) error {
	return p.act(selector, fmt.Sprintf("type %s %q", selector, text))
}

// Press with an empty selector presses the key on the page itself.
func (p *StaticPage) Press(ctx context.Context, selector, key string) error {
	if selector == "" {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.log = append(p.log, "press "+key)
		return nil
	}
	return p.act(selector, fmt.Sprintf("press %s %s", selector, key))
}

func (p *StaticPage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.log = append(p.log, "navigate "+url)
	return nil
}

func (p *StaticPage) act(selector, entry string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == "" || !dom.Exists(p.html, selector) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	p.log = append(p.log, entry)
	return nil
}
