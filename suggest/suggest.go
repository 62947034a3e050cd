// Package suggest is the boundary to a text-generation backend that proposes
// replacement selectors and describes automation actions.
//
// The backend is any OpenAI-compatible chat completions server (OpenAI,
// vLLM, Ollama, llama.cpp). With no endpoint configured, New returns a
// provider that never suggests anything, so healing falls back to the
// pattern store alone.
//
// Usage:
//
//	sg := suggest.New(suggest.Config{
//	    Endpoint: "http://localhost:11434",
//	    Model:    "qwen2.5-coder:7b",
//	})
//	sel, err := sg.SuggestAlternativeSelector(ctx, html, "//bad", "click", nil)
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/selfheal/dom"
)

// Suggester produces selectors and descriptions. Every method returns ""
// when it has nothing to offer.
type Suggester interface {
	// SuggestAlternativeSelector proposes a selector for the element the
	// failed selector was meant to reach, given the current page HTML.
	SuggestAlternativeSelector(ctx context.Context, html, failedSelector, action string, dc *dom.Context) (string, error)

	// GenerateDescription returns a short human-readable description of an
	// action performed on selector.
	GenerateDescription(ctx context.Context, action, selector, url, html string, dc *dom.Context) (string, error)

	// AnalyzeContextFromText proposes a replacement for failedSelector from
	// a plain-text listing of stored patterns.
	AnalyzeContextFromText(ctx context.Context, patternsText, failedSelector, action string) (string, error)
}

// Config configures the suggestion client.
type Config struct {
	// Endpoint is the base URL of the chat server (e.g. "https://api.openai.com").
	// If empty, a provider that never suggests is returned.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// APIKey is sent as a bearer token when set.
	APIKey string `json:"-" yaml:"api_key"`

	// Model is the model name sent with each request. Default: gpt-4o-mini.
	Model string `json:"model" yaml:"model"`

	// Temperature of the completions. Default: 0.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// Timeout bounds every call, including reading the reply. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxHTMLChars caps the page HTML placed in a prompt. Default: 20000.
	MaxHTMLChars int `json:"max_html_chars" yaml:"max_html_chars"`

	// Logger for debug/error messages. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxHTMLChars <= 0 {
		c.MaxHTMLChars = 20000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New creates a Suggester from config.
func New(cfg Config) Suggester {
	cfg.defaults()
	if cfg.Endpoint == "" {
		cfg.Logger.Info("suggest: no endpoint configured, selector suggestions disabled")
		return Noop{}
	}
	return newChatClient(cfg)
}

// AdapterError reports a failed call to the suggestion backend.
type AdapterError struct {
	Op    string
	Cause error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("suggest: %s: %v", e.Op, e.Cause)
}

func (e *AdapterError) Unwrap() error { return e.Cause }

// Timeout reports whether the call was cut short by its deadline.
func (e *AdapterError) Timeout() bool {
	return errors.Is(e.Cause, context.DeadlineExceeded)
}

// Noop never suggests anything.
type Noop struct{}

func (Noop) SuggestAlternativeSelector(context.Context, string, string, string, *dom.Context) (string, error) {
	return "", nil
}

func (Noop) GenerateDescription(context.Context, string, string, string, string, *dom.Context) (string, error) {
	return "", nil
}

func (Noop) AnalyzeContextFromText(context.Context, string, string, string) (string, error) {
	return "", nil
}
