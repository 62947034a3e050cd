package patterns

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/selfheal/kit"
)

// RegisterMCP registers the pattern store tools on an MCP server.
func (s *Store) RegisterMCP(srv *mcp.Server) {
	s.registerListPatternsTool(srv)
	s.registerResolveSelectorTool(srv)
	s.registerStatsTool(srv)
	s.registerRecordReplacementTool(srv)
}

// registerTool registers endpoint behind panic recovery and call logging.
func (s *Store) registerTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mw := kit.Chain(kit.Recover(), kit.Logging(s.logger, tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

func decodeArgs[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var v T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &v); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &v}, nil
}

// --- list_patterns ---

type listPatternsRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Store) registerListPatternsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "selfheal_list_patterns",
		Description: "List the most recently used selector patterns with their weight, usage count, success rate and replacement.",
		InputSchema: kit.InputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max results (default 100)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listPatternsRequest)
		ps, err := s.GetAllPatterns(ctx, r.Limit)
		if err != nil {
			return nil, err
		}
		if ps == nil {
			ps = []*Pattern{}
		}
		return ps, nil
	}

	s.registerTool(srv, tool, endpoint, decodeArgs[listPatternsRequest])
}

// --- resolve_selector ---

type resolveSelectorRequest struct {
	Selector string `json:"selector"`
	URL      string `json:"url"`
	Limit    int    `json:"limit,omitempty"`
}

type resolveSelectorResponse struct {
	Selector   string     `json:"selector"`
	Resolved   string     `json:"resolved"`
	Candidates []*Pattern `json:"candidates"`
}

func (s *Store) registerResolveSelectorTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "selfheal_resolve_selector",
		Description: "Show which stored selector would replace a failing one on a page, and the ranked candidates behind the choice.",
		InputSchema: kit.InputSchema(map[string]any{
			"selector": map[string]any{"type": "string", "description": "Failing selector"},
			"url":      map[string]any{"type": "string", "description": "Page URL"},
			"limit":    map[string]any{"type": "integer", "description": "Max candidates (default 10)"},
		}, []string{"selector", "url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*resolveSelectorRequest)
		return s.resolve(ctx, r.Selector, r.URL, r.Limit)
	}

	s.registerTool(srv, tool, endpoint, decodeArgs[resolveSelectorRequest])
}

func (s *Store) resolve(ctx context.Context, selector, url string, limit int) (*resolveSelectorResponse, error) {
	if selector == "" {
		return nil, errors.New("selector is required")
	}
	cands, err := s.GetPatterns(ctx, selector, url, limit)
	if err != nil {
		return nil, err
	}
	resolved, err := s.ResolveSelector(ctx, selector, url, limit)
	if err != nil {
		return nil, err
	}
	if cands == nil {
		cands = []*Pattern{}
	}
	return &resolveSelectorResponse{Selector: selector, Resolved: resolved, Candidates: cands}, nil
}

// --- pattern_stats ---

func (s *Store) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "selfheal_pattern_stats",
		Description: "Aggregate counters over the pattern store.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Stats(ctx)
	}

	s.registerTool(srv, tool, endpoint, decodeArgs[struct{}])
}

// --- record_replacement ---

type recordReplacementRequest struct {
	Action      string `json:"action"`
	Selector    string `json:"selector"`
	URL         string `json:"url"`
	Replacement string `json:"replacement"`
}

func (s *Store) registerRecordReplacementTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "selfheal_record_replacement",
		Description: "Mark a stored selector as broken and record the selector that replaces it. Usage statistics are not changed.",
		InputSchema: kit.InputSchema(map[string]any{
			"action":      map[string]any{"type": "string", "description": "Action name (click, type, ...)"},
			"selector":    map[string]any{"type": "string", "description": "Broken selector"},
			"url":         map[string]any{"type": "string", "description": "Page URL"},
			"replacement": map[string]any{"type": "string", "description": "Working selector"},
		}, []string{"action", "selector", "url", "replacement"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*recordReplacementRequest)
		if r.Action == "" || r.Selector == "" || r.Replacement == "" {
			return nil, errors.New("action, selector and replacement are required")
		}
		if err := s.UpdateOriginalPattern(ctx, r.Action, r.Selector, r.URL, r.Replacement); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	}

	s.registerTool(srv, tool, endpoint, decodeArgs[recordReplacementRequest])
}
