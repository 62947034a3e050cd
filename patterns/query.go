package patterns

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/hazyhaar/selfheal/normalize"
)

const patternColumns = `id, action, selector, url, description, timestamp,
	weight, usage_count, success_rate, failed, replacement_selector,
	full_element_html, parent_element, child_elements, sibling_elements, active`

// A row matches a failed selector when either its selector or its
// replacement equals, contains, or is contained in the failed selector.
// Empty columns never match.
const candidatesSQL = `SELECT ` + patternColumns + `
	FROM patterns
	WHERE url = ? AND failed = 0 AND active = 1
	  AND (
	    (selector <> '' AND (selector = ? OR instr(selector, ?) > 0 OR instr(?, selector) > 0))
	    OR
	    (COALESCE(replacement_selector, '') <> ''
	      AND (replacement_selector = ? OR instr(replacement_selector, ?) > 0 OR instr(?, replacement_selector) > 0))
	  )
	ORDER BY weight DESC, success_rate DESC, timestamp DESC
	LIMIT ?`

// GetPatterns returns the healthy patterns of url whose selector or
// replacement is related to failedSelector, best first.
func (s *Store) GetPatterns(ctx context.Context, failedSelector, url string, limit int) ([]*Pattern, error) {
	sel := normalize.Selector(failedSelector)
	if sel == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, candidatesSQL,
		normalize.URL(url), sel, sel, sel, sel, sel, sel, limit)
	if err != nil {
		return nil, &StoreError{Op: "get patterns", Cause: err}
	}
	defer rows.Close()
	out, err := scanPatterns(rows)
	if err != nil {
		return nil, &StoreError{Op: "get patterns", Cause: err}
	}
	return out, nil
}

// ResolveSelector returns a stored selector to try in place of
// failedSelector, or "" when the store knows none. The best ranked row
// yields its own selector when that differs from the failed one, otherwise
// its replacement.
func (s *Store) ResolveSelector(ctx context.Context, failedSelector, url string, limit int) (string, error) {
	ps, err := s.GetPatterns(ctx, failedSelector, url, limit)
	if err != nil || len(ps) == 0 {
		return "", err
	}
	best := ps[0]
	if best.Selector != normalize.Selector(failedSelector) {
		return best.Selector, nil
	}
	return best.ReplacementSelector, nil
}

// LearnedReplacement returns the replacement previously recorded for a
// failed (action, selector, url) key, provided the replacement itself has a
// healthy pattern on the same page. It returns "" otherwise.
func (s *Store) LearnedReplacement(ctx context.Context, action, selector, url string) (string, error) {
	sel := normalize.Selector(selector)
	if sel == "" {
		return "", nil
	}
	u := normalize.URL(url)

	var repl sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT replacement_selector FROM patterns
		WHERE action = ? AND selector = ? AND url = ? AND failed = 1
		  AND COALESCE(replacement_selector, '') <> ''`,
		action, sel, u).Scan(&repl)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &StoreError{Op: "learned replacement", Cause: err}
	}

	var healthy int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM patterns
		WHERE selector = ? AND url = ? AND failed = 0 AND active = 1`,
		normalize.Selector(repl.String), u).Scan(&healthy)
	if err != nil {
		return "", &StoreError{Op: "learned replacement", Cause: err}
	}
	if healthy == 0 {
		return "", nil
	}
	return repl.String, nil
}

// GetAllPatterns returns up to limit patterns, most recent first.
func (s *Store) GetAllPatterns(ctx context.Context, limit int) ([]*Pattern, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+patternColumns+`
		FROM patterns ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &StoreError{Op: "get all", Cause: err}
	}
	defer rows.Close()
	out, err := scanPatterns(rows)
	if err != nil {
		return nil, &StoreError{Op: "get all", Cause: err}
	}
	return out, nil
}

// GetPattern returns the pattern stored under a key, or nil.
func (s *Store) GetPattern(ctx context.Context, action, selector, url string) (*Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+patternColumns+`
		FROM patterns WHERE action = ? AND selector = ? AND url = ?`,
		action, normalize.Selector(selector), normalize.URL(url))
	if err != nil {
		return nil, &StoreError{Op: "get", Cause: err}
	}
	defer rows.Close()
	ps, err := scanPatterns(rows)
	if err != nil {
		return nil, &StoreError{Op: "get", Cause: err}
	}
	if len(ps) == 0 {
		return nil, nil
	}
	return ps[0], nil
}

// Stats returns aggregate counters over the whole store.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(failed), 0),
		       COUNT(DISTINCT url),
		       COALESCE(SUM(usage_count), 0),
		       COALESCE(AVG(success_rate), 0)
		FROM patterns`).Scan(&st.Patterns, &st.Failed, &st.URLs, &st.TotalUsage, &st.AvgSuccessRate)
	if err != nil {
		return nil, &StoreError{Op: "stats", Cause: err}
	}
	return &st, nil
}

func scanPatterns(rows *sql.Rows) ([]*Pattern, error) {
	var out []*Pattern
	for rows.Next() {
		var p Pattern
		var desc, repl, full, parent, kids, sibs sql.NullString
		var failed, active int
		if err := rows.Scan(&p.ID, &p.Action, &p.Selector, &p.URL, &desc, &p.Timestamp,
			&p.Weight, &p.UsageCount, &p.SuccessRate, &failed, &repl,
			&full, &parent, &kids, &sibs, &active); err != nil {
			return nil, err
		}
		p.Description = desc.String
		p.ReplacementSelector = repl.String
		p.FullElementHTML = full.String
		p.ParentElement = parent.String
		p.ChildElements = decodeList(kids)
		p.SiblingElements = decodeList(sibs)
		p.Failed = failed != 0
		p.Active = active != 0
		out = append(out, &p)
	}
	return out, rows.Err()
}

func decodeList(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(ns.String), &items); err != nil {
		return nil
	}
	return items
}
