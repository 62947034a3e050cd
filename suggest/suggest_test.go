package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/selfheal/dom"
)

// chatServer answers every completion with reply and records the last request.
func chatServer(t *testing.T, reply string, last *chatRequest, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if last != nil {
			if err := json.NewDecoder(r.Body).Decode(last); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_NoEndpointIsNoop(t *testing.T) {
	sg := New(Config{})
	if _, ok := sg.(Noop); !ok {
		t.Fatalf("New without endpoint: got %T", sg)
	}
	ctx := context.Background()
	if s, err := sg.SuggestAlternativeSelector(ctx, "<p/>", "//bad", "click", nil); s != "" || err != nil {
		t.Errorf("suggest: %q, %v", s, err)
	}
	if s, err := sg.GenerateDescription(ctx, "click", "#a", "example.com", "<p/>", nil); s != "" || err != nil {
		t.Errorf("describe: %q, %v", s, err)
	}
	if s, err := sg.AnalyzeContextFromText(ctx, "", "//bad", "click"); s != "" || err != nil {
		t.Errorf("analyze: %q, %v", s, err)
	}
}

func TestSuggestAlternativeSelector(t *testing.T) {
	var req chatRequest
	var auth string
	srv := chatServer(t, "```xpath\n//button[@id='submit']\n```", &req, &auth)
	sg := New(Config{Endpoint: srv.URL + "/", Model: "test-model", APIKey: "sk-test"})

	html := `<html><head><script>alert(1)</script></head><body><form><button id="submit" style="color:red">Go</button></form></body></html>`
	got, err := sg.SuggestAlternativeSelector(context.Background(), html, "//bad", "click",
		&dom.Context{ParentElement: `<form>`})
	if err != nil {
		t.Fatalf("SuggestAlternativeSelector: %v", err)
	}
	if got != `//button[@id="submit"]` {
		t.Errorf("selector: got %q", got)
	}
	if req.Model != "test-model" || len(req.Messages) != 2 || req.Messages[1].Role != "user" {
		t.Fatalf("request: %+v", req)
	}
	prompt := req.Messages[1].Content
	for _, want := range []string{"- Failed selector: //bad", "- Action to perform: click", "- Parent element HTML: <form>", `id="submit"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "alert(1)") || strings.Contains(prompt, "color:red") {
		t.Errorf("prompt not sanitized:\n%s", prompt)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("authorization: got %q", auth)
	}
}

func TestSuggestAlternativeSelector_None(t *testing.T) {
	srv := chatServer(t, "None", nil, nil)
	sg := New(Config{Endpoint: srv.URL})
	got, err := sg.SuggestAlternativeSelector(context.Background(), "<p/>", "//bad", "click", nil)
	if err != nil || got != "" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestGenerateDescription(t *testing.T) {
	var req chatRequest
	srv := chatServer(t, "  Clicks the login button.\n", &req, nil)
	sg := New(Config{Endpoint: srv.URL})
	got, err := sg.GenerateDescription(context.Background(), "click", "#login", "https://example.com",
		`<body><h1>Welcome</h1><button id="login">Log in</button></body>`, nil)
	if err != nil {
		t.Fatalf("GenerateDescription: %v", err)
	}
	if got != "Clicks the login button." {
		t.Errorf("description: got %q", got)
	}
	if prompt := req.Messages[1].Content; !strings.Contains(prompt, "# Welcome") {
		t.Errorf("page not rendered as markdown:\n%s", prompt)
	}
}

func TestAnalyzeContextFromText(t *testing.T) {
	var req chatRequest
	srv := chatServer(t, "`#login-button`\n", &req, nil)
	sg := New(Config{Endpoint: srv.URL})
	got, err := sg.AnalyzeContextFromText(context.Background(), "Selector: #login-button", "#login", "click")
	if err != nil {
		t.Fatalf("AnalyzeContextFromText: %v", err)
	}
	if got != "#login-button" {
		t.Errorf("selector: got %q", got)
	}
	if !strings.Contains(req.Messages[1].Content, "Selector: #login-button") {
		t.Error("patterns text missing from prompt")
	}
}

func TestAdapterError_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sg := New(Config{Endpoint: srv.URL})
	_, err := sg.SuggestAlternativeSelector(context.Background(), "<p/>", "//bad", "click", nil)
	var ae *AdapterError
	if !errors.As(err, &ae) {
		t.Fatalf("err: got %T %v, want *AdapterError", err, err)
	}
	if ae.Op != "suggest selector" || !strings.Contains(ae.Error(), "503") {
		t.Errorf("adapter error: %v", ae)
	}
}

func TestAdapterError_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := New(Config{Endpoint: srv.URL}).AnalyzeContextFromText(context.Background(), "", "#a", "click")
	var ae *AdapterError
	if !errors.As(err, &ae) {
		t.Fatalf("err: got %v, want *AdapterError", err)
	}
}

func TestAdapterError_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	sg := New(Config{Endpoint: srv.URL, Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := sg.SuggestAlternativeSelector(ctx, "<p/>", "//bad", "click", nil)
	var ae *AdapterError
	if !errors.As(err, &ae) {
		t.Fatalf("err: got %v, want *AdapterError", err)
	}
	if !ae.Timeout() {
		t.Errorf("Timeout(): false for %v", ae)
	}
	if time.Since(start) > time.Second {
		t.Errorf("call not bounded by deadline: %v", time.Since(start))
	}
}

func TestCleanSelector(t *testing.T) {
	tests := []struct{ in, want string }{
		{"//div[@id='a']", "//div[@id='a']"},
		{"```xpath\n//div\n```", "//div"},
		{"```css\n#main > a\n```", "#main > a"},
		{"```\n//a\n```", "//a"},
		{`"//div[@id='a']"`, "//div[@id='a']"},
		{"`#go`", "#go"},
		{"\n\n  //p  \nThis selects the paragraph.", "//p"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanSelector(tt.in); got != tt.want {
			t.Errorf("CleanSelector(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFixXPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"//button[@id=submit]", `//button[@id="submit"]`},
		{"//button[@id='submit']", `//button[@id="submit"]`},
		{`//button[@id="submit"]`, `//button[@id="submit"]`},
		{"//input[@name='q'][@type=text]", `//input[@name="q"][@type="text"]`},
		{"//a[@data-test-id = 'x y']", `//a[@data-test-id="x y"]`},
		{"//div[contains(@class,'card')]", "//div[contains(@class,'card')]"},
		{"#main .item", "#main .item"},
		{`//a[@id="x"]"`, `//a[@id="x"]`},
		{"//button[text()=Log in]", `//button[text()="Log in"]`},
		{"//input[@type=text and @name=q]", `//input[@type="text" and @name="q"]`},
		{"//li[.=Home]", `//li[.="Home"]`},
		{"//div[contains(@class,card)]", `//div[contains(@class,"card")]`},
		{"//a[starts-with(@href, /login)]", `//a[starts-with(@href, "/login")]`},
		{"(//button)[2]", "(//button)[2]"},
	}
	for _, tt := range tests {
		if got := FixXPath(tt.in); got != tt.want {
			t.Errorf("FixXPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFixSelector(t *testing.T) {
	tests := []struct{ in, want string }{
		{"//form/button[@class=btn]", `//form/button[@class="btn"]`},
		{"input[name=q]", `input[name="q"]`},
		{"#login button[title=Log in]", `#login button[title="Log in"]`},
		{"a[href^=/login]", `a[href^="/login"]`},
		{`a[href^="/login"]`, `a[href^="/login"]`},
		{"input[required]", "input[required]"},
		{"#login button", "#login button"},
	}
	for _, tt := range tests {
		got := FixSelector(tt.in)
		if got != tt.want {
			t.Errorf("FixSelector(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := FixSelector(got); again != got {
			t.Errorf("FixSelector not stable on %q: %q", got, again)
		}
	}
}

func TestIsNone(t *testing.T) {
	for _, s := range []string{"none", "None", " NONE\n"} {
		if !IsNone(s) {
			t.Errorf("IsNone(%q) = false", s)
		}
	}
	for _, s := range []string{"", "//none", "nonexistent"} {
		if IsNone(s) {
			t.Errorf("IsNone(%q) = true", s)
		}
	}
}

func TestHTMLCompactor_Truncates(t *testing.T) {
	c := newHTMLCompactor(40)
	got := c.Sanitize("<div>" + strings.Repeat("x", 200) + "</div>")
	if len(got) > 40+len("\n…") {
		t.Errorf("sanitized length %d exceeds cap", len(got))
	}
}
