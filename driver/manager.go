package driver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// StealthLevel controls how pages are opened.
type StealthLevel int

const (
	LevelHeadless StealthLevel = 0 // headless + stealth (default)
	LevelPlain    StealthLevel = 1 // headless, no stealth patches
	LevelHeadful  StealthLevel = 2 // visible window + stealth, needs DISPLAY
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string `json:"remote_url" yaml:"remote_url"`

	// Stealth sets how pages are opened. Default: LevelHeadless.
	Stealth StealthLevel `json:"stealth" yaml:"stealth"`

	// Display is the X display used in headful mode. Default: ":0".
	Display string `json:"display" yaml:"display"`

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string `json:"resource_blocking" yaml:"resource_blocking"`

	// NavigateTimeout bounds navigation and load waits. Default: 30s.
	NavigateTimeout time.Duration `json:"navigate_timeout" yaml:"navigate_timeout"`

	// ElementTimeout bounds how long an action waits for its element. Default: 5s.
	ElementTimeout time.Duration `json:"element_timeout" yaml:"element_timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Display == "" {
		c.Display = ":0"
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process (or remote connection) and opens pages
// on it. There is no recycling or crash recovery: callers restart it.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome, or connects to RemoteURL. Calling Start on a
// started manager is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("driver: manager is closed")
	}
	if m.browser != nil {
		return nil
	}
	return m.launch(ctx)
}

// Browser returns the current Rod browser handle, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// Close shuts down Chrome. Pages opened from the manager become unusable.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch(ctx context.Context) error {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("driver: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx)
		if m.cfg.Stealth == LevelHeadful {
			l = l.Headless(false).Env(append(os.Environ(), "DISPLAY="+m.cfg.Display)...)
		} else {
			l = l.Headless(true)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("driver: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("driver: launched local chrome", "url", wsURL, "stealth", m.cfg.Stealth)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Cleanup()
			m.lnch = nil
		}
		return fmt.Errorf("driver: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("driver: ignore cert errors failed", "error", err)
	}
	m.browser = b
	return nil
}

func (m *Manager) cleanup() error {
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return err
}

// OpenPage opens a tab, applies stealth and resource blocking, and
// navigates to pageURL when it is not empty.
func (m *Manager) OpenPage(ctx context.Context, pageURL string) (*RodPage, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("driver: no active browser")
	}

	var page *rod.Page
	var err error
	if m.cfg.Stealth == LevelPlain {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	} else {
		page, err = stealth.Page(b)
	}
	if err != nil {
		return nil, fmt.Errorf("driver: create tab: %w", err)
	}

	rp := &RodPage{page: page, cfg: m.cfg}
	if len(m.cfg.ResourceBlocking) > 0 {
		rp.router = applyResourceBlocking(page, m.cfg.ResourceBlocking)
	}

	if pageURL != "" {
		if err := rp.Navigate(ctx, pageURL); err != nil {
			rp.Close()
			return nil, err
		}
	}
	return rp, nil
}

// applyResourceBlocking intercepts requests and fails the blocked resource
// types. The returned router must be stopped when the page closes.
func applyResourceBlocking(page *rod.Page, types []string) *rod.HijackRouter {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blockSet, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)
	switch lower {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	}
	return blockSet[lower]
}
