package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hazyhaar/selfheal/dom"
)

// chatClient implements Suggester with the OpenAI /v1/chat/completions API
// format. This covers OpenAI, vLLM, Ollama and llama.cpp servers.
type chatClient struct {
	endpoint string
	client   *http.Client
	html     *htmlCompactor
	cfg      Config
}

func newChatClient(cfg Config) *chatClient {
	return &chatClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		html:     newHTMLCompactor(cfg.MaxHTMLChars),
		cfg:      cfg,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the JSON body sent to /v1/chat/completions.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// chatResponse is the subset of the completion reply that is read.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *chatClient) SuggestAlternativeSelector(ctx context.Context, html, failedSelector, action string, dc *dom.Context) (string, error) {
	reply, err := c.complete(ctx, "suggest selector", selectorPrompt(c.html.Sanitize(html), failedSelector, action, dc))
	if err != nil {
		return "", err
	}
	sel := CleanSelector(reply)
	if sel == "" || IsNone(sel) {
		return "", nil
	}
	sel = FixXPath(sel)
	c.cfg.Logger.Debug("suggest: selector suggested",
		"action", action, "failed_selector", failedSelector, "suggestion", sel)
	return sel, nil
}

func (c *chatClient) GenerateDescription(ctx context.Context, action, selector, url, html string, dc *dom.Context) (string, error) {
	reply, err := c.complete(ctx, "describe", descriptionPrompt(action, selector, url, c.html.Markdown(html, url), dc))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (c *chatClient) AnalyzeContextFromText(ctx context.Context, patternsText, failedSelector, action string) (string, error) {
	reply, err := c.complete(ctx, "analyze context", analysisPrompt(patternsText, failedSelector, action))
	if err != nil {
		return "", err
	}
	sel := cleanAnalysis(reply)
	if IsNone(sel) {
		return "", nil
	}
	return sel, nil
}

// complete sends one user prompt and returns the first choice's content.
// Every failure, including the deadline, is an *AdapterError.
func (c *chatClient) complete(ctx context.Context, op, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", &AdapterError{Op: op, Cause: fmt.Errorf("marshal request: %w", err)}
	}

	url := c.endpoint + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &AdapterError{Op: op, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", &AdapterError{Op: op, Cause: fmt.Errorf("HTTP POST %s: %w", url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &AdapterError{Op: op, Cause: fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, string(respBody))}
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &AdapterError{Op: op, Cause: fmt.Errorf("decode response: %w", err)}
	}
	if len(result.Choices) == 0 {
		return "", &AdapterError{Op: op, Cause: fmt.Errorf("no choices returned from %s", url)}
	}
	return result.Choices[0].Message.Content, nil
}
