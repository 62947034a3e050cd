// Package engine assembles a self-healing automation stack from one
// configuration: the pattern store, the suggestion client, the interceptor
// and, optionally, a go-rod browser.
//
// Usage:
//
//	cfg, err := engine.LoadConfigFile("selfheal.yaml")
//	e, err := engine.Open(ctx, cfg, logger)
//	defer e.Close()
//	page, err := e.OpenPage(ctx, "https://example.com/login")
//	_, err = e.Do(ctx, "click", page, heal.Args{"selector": "//button[@id='go']"})
//	e.RegisterMCP(mcpServer)
//	http.Handle("/selfheal/", http.StripPrefix("/selfheal", e.Handler()))
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/selfheal/dbopen"
	"github.com/hazyhaar/selfheal/driver"
	"github.com/hazyhaar/selfheal/heal"
	"github.com/hazyhaar/selfheal/kit"
	"github.com/hazyhaar/selfheal/patterns"
	"github.com/hazyhaar/selfheal/shield"
	"github.com/hazyhaar/selfheal/suggest"
	"github.com/hazyhaar/selfheal/trace"
)

// Engine owns the components built from a Config.
type Engine struct {
	store   *patterns.Store
	sg      suggest.Suggester
	ic      *heal.Interceptor
	browser *driver.Manager
	logger  *slog.Logger
	config  *Config
}

// Open builds the engine: opens the pattern database, creates the suggestion
// client, and starts the browser when enabled.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	scfg := cfg.Suggest
	scfg.Logger = logger
	sg := suggest.New(scfg)

	store, err := openStore(cfg, logger,
		patterns.WithLogger(logger),
		patterns.WithAnalyzer(sg),
		patterns.WithWeights(cfg.Patterns.InitialWeight, cfg.Patterns.WeightStep),
		patterns.WithContextSize(cfg.Patterns.ContextSize),
	)
	if err != nil {
		return nil, err
	}

	hcfg := cfg.Heal
	hcfg.Logger = logger
	e := &Engine{
		store:  store,
		sg:     sg,
		ic:     heal.New(store, sg, hcfg),
		logger: logger,
		config: cfg,
	}

	if cfg.Browser.Enabled {
		bcfg := cfg.Browser.Config
		bcfg.Logger = logger
		e.browser = driver.NewManager(bcfg)
		if err := e.browser.Start(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}

	logger.Info("engine: opened", "db", cfg.DBPath,
		"suggestions", cfg.Suggest.Endpoint != "", "browser", cfg.Browser.Enabled)
	return e, nil
}

func openStore(cfg *Config, logger *slog.Logger, opts ...patterns.Option) (*patterns.Store, error) {
	if !cfg.TraceSQL {
		return patterns.Open(cfg.DBPath, opts...)
	}
	trace.SetLogger(logger)
	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithDriver(trace.DriverName),
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(patterns.Schema))
	if err != nil {
		return nil, &patterns.StoreError{Op: "open", Cause: err}
	}
	return patterns.New(db, opts...), nil
}

// Close stops the browser and closes the database.
func (e *Engine) Close() error {
	var errs []error
	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: close browser: %w", err))
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine: close store: %w", err))
	}
	return errors.Join(errs...)
}

// Store returns the pattern store.
func (e *Engine) Store() *patterns.Store { return e.store }

// Suggester returns the suggestion client.
func (e *Engine) Suggester() suggest.Suggester { return e.sg }

// Interceptor returns the self-healing interceptor.
func (e *Engine) Interceptor() *heal.Interceptor { return e.ic }

// Wrap applies self-healing to a custom action.
func (e *Engine) Wrap(name string, action heal.Action) heal.Action {
	return e.ic.Wrap(name, action)
}

// Do runs one of the standard actions (click, type, press, navigate) with
// self-healing.
func (e *Engine) Do(ctx context.Context, name string, page driver.Page, args heal.Args) (any, error) {
	action, ok := heal.Actions[name]
	if !ok {
		return nil, fmt.Errorf("engine: unknown action %q", name)
	}
	return e.ic.Execute(ctx, name, action, page, args)
}

// OpenPage opens a browser tab on pageURL. The browser must be enabled.
func (e *Engine) OpenPage(ctx context.Context, pageURL string) (*driver.RodPage, error) {
	if e.browser == nil {
		return nil, errors.New("engine: browser not enabled")
	}
	return e.browser.OpenPage(ctx, pageURL)
}

// RegisterMCP registers the pattern store tools on an MCP server.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.store.RegisterMCP(srv)
}

// Handler returns the HTTP diagnostics of the pattern store.
func (e *Engine) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	for _, mw := range shield.APIStack() {
		r.Use(mw)
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := kit.WithTransport(req.Context(), "http")
			ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	e.store.RegisterHTTP(r)
	return r
}
