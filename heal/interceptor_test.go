package heal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hazyhaar/selfheal/dom"
	"github.com/hazyhaar/selfheal/driver"
	"github.com/hazyhaar/selfheal/patterns"
)

// fakeStore records saves and returns canned lookups.
type fakeStore struct {
	mu       sync.Mutex
	saves    []patterns.SaveParams
	updates  [][4]string
	resolve  string
	learned  string
	analysis string
	stored   *patterns.Pattern
	saveErr  error
	lookErr  error
}

func (f *fakeStore) SavePattern(_ context.Context, p patterns.SaveParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, p)
	return f.saveErr
}

func (f *fakeStore) GetPattern(context.Context, string, string, string) (*patterns.Pattern, error) {
	return f.stored, nil
}

func (f *fakeStore) ResolveSelector(context.Context, string, string, int) (string, error) {
	return f.resolve, f.lookErr
}

func (f *fakeStore) LearnedReplacement(context.Context, string, string, string) (string, error) {
	return f.learned, nil
}

func (f *fakeStore) GetReplacementSelector(context.Context, string, string, string) (string, error) {
	return f.analysis, nil
}

func (f *fakeStore) UpdateOriginalPattern(_ context.Context, action, orig, url, repl string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, [4]string{action, orig, url, repl})
	return nil
}

// fakeSuggester returns a fixed suggestion and description.
type fakeSuggester struct {
	suggestion  string
	description string
	err         error
	gotContext  *dom.Context
}

func (f *fakeSuggester) SuggestAlternativeSelector(_ context.Context, _, _, _ string, dc *dom.Context) (string, error) {
	f.gotContext = dc
	return f.suggestion, f.err
}

func (f *fakeSuggester) GenerateDescription(context.Context, string, string, string, string, *dom.Context) (string, error) {
	return f.description, nil
}

func (f *fakeSuggester) AnalyzeContextFromText(context.Context, string, string, string) (string, error) {
	return "", nil
}

const page = `<html><body><form><button id="fixed">Go</button></form></body></html>`

// flakyClick fails for every selector except those in ok.
func flakyClick(calls *[]string, ok ...string) Action {
	return func(_ context.Context, _ driver.Page, args Args) (any, error) {
		sel := args.String("selector")
		*calls = append(*calls, sel)
		for _, o := range ok {
			if sel == o {
				return "clicked " + sel, nil
			}
		}
		return nil, errNotFound
	}
}

var errNotFound = errors.New("element not found")

func newPage() *driver.StaticPage {
	return driver.NewStaticPage("https://example.com/login", page)
}

func TestExecute_Success(t *testing.T) {
	fs := &fakeStore{}
	ic := New(fs, &fakeSuggester{description: "clicks go"}, Config{})

	var calls []string
	res, err := ic.Execute(context.Background(), "click", flakyClick(&calls, "#fixed"), newPage(), Args{"selector": "#fixed"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res != "clicked #fixed" {
		t.Errorf("result: got %v", res)
	}
	if len(fs.saves) != 1 {
		t.Fatalf("saves: got %d, want 1", len(fs.saves))
	}
	s := fs.saves[0]
	if !s.Success || s.Selector != "#fixed" || s.URL != "https://example.com/login" || s.Description != "clicks go" {
		t.Errorf("save: %+v", s)
	}
	if s.DOM == nil || s.DOM.FullElementHTML != `<button id="fixed">Go</button>` {
		t.Errorf("dom context: %+v", s.DOM)
	}
}

func TestExecute_NoSelectorPropagates(t *testing.T) {
	fs := &fakeStore{resolve: "#fixed"}
	ic := New(fs, nil, Config{})

	var calls []string
	_, err := ic.Execute(context.Background(), "click", flakyClick(&calls), newPage(), Args{"text": "x"})
	if !errors.Is(err, errNotFound) {
		t.Fatalf("err: got %v", err)
	}
	if len(calls) != 1 || len(fs.saves) != 0 {
		t.Errorf("calls=%d saves=%d, want 1 and 0", len(calls), len(fs.saves))
	}
}

// No store match and no suggestion: one failed record, original error.
func TestExecute_NoCandidate(t *testing.T) {
	fs := &fakeStore{}
	ic := New(fs, &fakeSuggester{}, Config{})

	var calls []string
	_, err := ic.Execute(context.Background(), "click", flakyClick(&calls), newPage(), Args{"selector": "//bad"})
	if !errors.Is(err, errNotFound) {
		t.Fatalf("err: got %v, want original error", err)
	}
	var ae *ActionError
	if !errors.As(err, &ae) || ae.Healed || ae.Selector != "//bad" || ae.Action != "click" {
		t.Errorf("action error: %+v", ae)
	}
	if len(calls) != 1 {
		t.Errorf("attempts: got %d, want 1", len(calls))
	}
	if len(fs.saves) != 1 {
		t.Fatalf("saves: got %d, want 1", len(fs.saves))
	}
	s := fs.saves[0]
	if s.Success || s.Selector != "//bad" || s.ReplacementSelector != "" {
		t.Errorf("failure record: %+v", s)
	}
}

// Store candidate present on the page: two records, retry result returned.
func TestExecute_Healed(t *testing.T) {
	fs := &fakeStore{resolve: "//fixed"}
	ic := New(fs, &fakeSuggester{}, Config{})
	pg := driver.NewStaticPage("https://example.com/login", `<body><fixed/></body>`)

	var calls []string
	res, err := ic.Execute(context.Background(), "click", flakyClick(&calls, "//fixed"), pg, Args{"selector": "//bad"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res != "clicked //fixed" {
		t.Errorf("result: got %v", res)
	}
	if len(calls) != 2 || calls[1] != "//fixed" {
		t.Errorf("attempts: %v", calls)
	}
	if len(fs.saves) != 2 {
		t.Fatalf("saves: got %d, want 2", len(fs.saves))
	}
	if s := fs.saves[0]; s.Success || s.Selector != "//bad" || s.ReplacementSelector != "//fixed" {
		t.Errorf("failure record: %+v", s)
	}
	if s := fs.saves[1]; !s.Success || s.Selector != "//fixed" {
		t.Errorf("healed record: %+v", s)
	}
	if len(fs.updates) != 1 || fs.updates[0] != [4]string{"click", "//bad", "https://example.com/login", "//fixed"} {
		t.Errorf("updates: %v", fs.updates)
	}
}

func TestExecute_URLCandidateRejected(t *testing.T) {
	fs := &fakeStore{resolve: "http://evil.example", analysis: "HTTPS://evil.example/x"}
	sg := &fakeSuggester{suggestion: " http://evil.example "}
	ic := New(fs, sg, Config{})

	var calls []string
	_, err := ic.Execute(context.Background(), "click", flakyClick(&calls, "http://evil.example"), newPage(), Args{"selector": "//bad"})
	if !errors.Is(err, errNotFound) {
		t.Fatalf("err: got %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("retried with url candidate: %v", calls)
	}
	if len(fs.saves) != 1 || fs.saves[0].ReplacementSelector != "" {
		t.Errorf("saves: %+v", fs.saves)
	}
}

func TestExecute_SourceOrder(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
		sg    *fakeSuggester
		want  string
	}{
		{"store first", &fakeStore{resolve: "#a", learned: "#b", analysis: "#c"}, &fakeSuggester{suggestion: "#d"}, "#a"},
		{"learned", &fakeStore{learned: "#b", analysis: "#c"}, &fakeSuggester{suggestion: "#d"}, "#b"},
		{"analysis", &fakeStore{analysis: "#c"}, &fakeSuggester{suggestion: "#d"}, "#c"},
		{"suggestion", &fakeStore{}, &fakeSuggester{suggestion: "#d"}, "#d"},
		{"store error falls through", &fakeStore{resolve: "#a", lookErr: errors.New("db locked")}, &fakeSuggester{suggestion: "#d"}, "#d"},
		{"same selector skipped", &fakeStore{resolve: " //bad "}, &fakeSuggester{suggestion: "#d"}, "#d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ic := New(tt.store, tt.sg, Config{})
			pg := driver.NewStaticPage("https://example.com", `<p id="a"></p><p id="b"></p><p id="c"></p><p id="d"></p>`)
			var calls []string
			if _, err := ic.Execute(context.Background(), "click", flakyClick(&calls, tt.want), pg, Args{"selector": "//bad"}); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if calls[len(calls)-1] != tt.want {
				t.Errorf("retried with %q, want %q", calls[len(calls)-1], tt.want)
			}
		})
	}
}

// Stored selectors come back without quotes; they are requoted before the
// existence check and the retry.
func TestExecute_StoredCandidateRequoted(t *testing.T) {
	pg := driver.NewStaticPage("https://example.com/login",
		`<form><button class="btn" title="Log in">Log in</button></form>`)
	tests := []struct {
		name  string
		store *fakeStore
		want  string
	}{
		{"xpath attribute", &fakeStore{resolve: "//form/button[@class=btn]"}, `//form/button[@class="btn"]`},
		{"xpath text", &fakeStore{resolve: "//button[text()=Log in]"}, `//button[text()="Log in"]`},
		{"learned css", &fakeStore{learned: "form button[title=Log in]"}, `form button[title="Log in"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ic := New(tt.store, nil, Config{})
			var calls []string
			if _, err := ic.Execute(context.Background(), "click", flakyClick(&calls, tt.want), pg, Args{"selector": "//form/input"}); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got := calls[len(calls)-1]; got != tt.want {
				t.Errorf("retried with %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecute_CandidateAbsent(t *testing.T) {
	fs := &fakeStore{resolve: "#nowhere"}
	ic := New(fs, nil, Config{})

	var calls []string
	_, err := ic.Execute(context.Background(), "click", flakyClick(&calls, "#nowhere"), newPage(), Args{"selector": "//bad"})
	if !errors.Is(err, errNotFound) {
		t.Fatalf("err: got %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("retried with absent candidate: %v", calls)
	}
	if len(fs.saves) != 1 || fs.saves[0].ReplacementSelector != "#nowhere" {
		t.Errorf("failure record: %+v", fs.saves)
	}
}

func TestExecute_RetryErrorPropagates(t *testing.T) {
	fs := &fakeStore{resolve: "#fixed"}
	ic := New(fs, nil, Config{})
	retryErr := errors.New("element detached")

	calls := 0
	action := func(_ context.Context, _ driver.Page, args Args) (any, error) {
		calls++
		if calls == 1 {
			return nil, errNotFound
		}
		return nil, retryErr
	}
	_, err := ic.Execute(context.Background(), "click", action, newPage(), Args{"selector": "//bad"})
	if !errors.Is(err, retryErr) {
		t.Fatalf("err: got %v, want retry error", err)
	}
	var ae *ActionError
	if !errors.As(err, &ae) || !ae.Healed || ae.Selector != "#fixed" {
		t.Errorf("action error: %+v", ae)
	}
	if calls != 2 {
		t.Errorf("attempts: got %d, want exactly 2", calls)
	}
	if len(fs.saves) != 1 {
		t.Errorf("saves: got %d, want only the failure record", len(fs.saves))
	}
}

func TestExecute_StoreOutageDoesNotMaskError(t *testing.T) {
	fs := &fakeStore{saveErr: errors.New("disk full")}
	ic := New(fs, nil, Config{})

	var calls []string
	_, err := ic.Execute(context.Background(), "click", flakyClick(&calls), newPage(), Args{"selector": "//bad"})
	if !errors.Is(err, errNotFound) {
		t.Fatalf("err: got %v, want original error", err)
	}

	res, err := ic.Execute(context.Background(), "click", flakyClick(&calls, "#fixed"), newPage(), Args{"selector": "#fixed"})
	if err != nil || res != "clicked #fixed" {
		t.Fatalf("success with failing store: %v, %v", res, err)
	}
}

func TestExecute_SuggestionRecordedAndContextPassed(t *testing.T) {
	fs := &fakeStore{stored: &patterns.Pattern{FullElementHTML: `<button id="old">Go</button>`}}
	sg := &fakeSuggester{suggestion: "#fixed"}
	ic := New(fs, sg, Config{})

	var calls []string
	if _, err := ic.Execute(context.Background(), "click", flakyClick(&calls, "#fixed"), newPage(), Args{"selector": "#old"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sg.gotContext == nil || sg.gotContext.FullElementHTML != `<button id="old">Go</button>` {
		t.Errorf("stored context not passed: %+v", sg.gotContext)
	}
	if len(fs.saves) != 3 {
		t.Fatalf("saves: got %d, want failure + suggested + healed", len(fs.saves))
	}
	if s := fs.saves[1]; s.Selector != "#fixed" || s.Description != "suggested" || !s.Success {
		t.Errorf("suggested record: %+v", s)
	}

	fs2 := &fakeStore{}
	ic2 := New(fs2, &fakeSuggester{suggestion: "#fixed"}, Config{SkipSuggestedRecord: true})
	calls = nil
	if _, err := ic2.Execute(context.Background(), "click", flakyClick(&calls, "#fixed"), newPage(), Args{"selector": "#old"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(fs2.saves) != 2 {
		t.Errorf("saves with SkipSuggestedRecord: got %d, want 2", len(fs2.saves))
	}
}

func TestExecute_AdapterErrorDegrades(t *testing.T) {
	fs := &fakeStore{}
	ic := New(fs, &fakeSuggester{suggestion: "#fixed", err: errors.New("backend down")}, Config{})

	var calls []string
	_, err := ic.Execute(context.Background(), "click", flakyClick(&calls, "#fixed"), newPage(), Args{"selector": "//bad"})
	if !errors.Is(err, errNotFound) {
		t.Fatalf("err: got %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("attempts: %v", calls)
	}
}

func TestExecute_XPathKeyAndCustomKey(t *testing.T) {
	fs := &fakeStore{resolve: "#fixed"}
	ic := New(fs, nil, Config{})
	var got Args
	action := func(_ context.Context, _ driver.Page, args Args) (any, error) {
		got = args
		if args.String("xpath") == "#fixed" {
			return "ok", nil
		}
		return nil, errNotFound
	}
	orig := Args{"xpath": "//bad", "n": 1}
	if _, err := ic.Execute(context.Background(), "click", action, newPage(), orig); err != nil {
		t.Fatalf("xpath key: %v", err)
	}
	if got["n"] != 1 || orig["xpath"] != "//bad" {
		t.Errorf("args not copied: got %v, orig %v", got, orig)
	}

	ic = New(&fakeStore{resolve: "#fixed"}, nil, Config{SelectorKey: "target"})
	action = func(_ context.Context, _ driver.Page, args Args) (any, error) {
		if args.String("target") == "#fixed" {
			return "ok", nil
		}
		return nil, errNotFound
	}
	if res, err := ic.Execute(context.Background(), "click", action, newPage(), Args{"target": "//bad"}); err != nil || res != "ok" {
		t.Fatalf("custom key: %v, %v", res, err)
	}
}

func TestWrapAndMiddleware(t *testing.T) {
	fs := &fakeStore{resolve: "#fixed"}
	ic := New(fs, nil, Config{})

	var calls []string
	var mw Middleware = ic.Middleware()
	click := mw("click", flakyClick(&calls, "#fixed"))
	if _, err := click(context.Background(), newPage(), Args{"selector": "//bad"}); err != nil {
		t.Fatalf("wrapped: %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("attempts: %v", calls)
	}
}
