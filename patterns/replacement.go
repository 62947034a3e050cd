package patterns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/selfheal/suggest"
)

// GetReplacementSelector asks the configured analyzer for a replacement of
// failedSelector, given the most recent patterns of the store as context.
// It returns "" when no analyzer is configured, when the analyzer has no
// suggestion, or when it fails. Analyzer failures are logged, not returned.
func (s *Store) GetReplacementSelector(ctx context.Context, failedSelector, url, action string) (string, error) {
	if s.analyzer == nil {
		return "", nil
	}
	recent, err := s.GetAllPatterns(ctx, s.contextSize)
	if err != nil {
		return "", err
	}

	out, err := s.analyzer.AnalyzeContextFromText(ctx, FormatPatterns(recent), failedSelector, action)
	if err != nil {
		s.logger.Warn("patterns: context analysis failed",
			"action", action, "selector", failedSelector, "url", url, "error", err)
		return "", nil
	}
	out = strings.TrimSpace(out)
	if out == "" || suggest.IsNone(out) {
		return "", nil
	}
	return suggest.FixXPath(out), nil
}

// FormatPatterns renders patterns as the plain-text listing handed to a
// context analyzer, one block per pattern separated by blank lines.
func FormatPatterns(ps []*Pattern) string {
	var sb strings.Builder
	for i, p := range ps {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Action: %s\n", p.Action)
		fmt.Fprintf(&sb, "Selector: %s\n", p.Selector)
		fmt.Fprintf(&sb, "URL: %s\n", p.URL)
		fmt.Fprintf(&sb, "Timestamp: %s\n", time.UnixMilli(p.Timestamp).UTC().Format(time.RFC3339))
		fmt.Fprintf(&sb, "Description: %s\n", p.Description)
		fmt.Fprintf(&sb, "Weight: %.2f\n", p.Weight)
	}
	return sb.String()
}
