package patterns

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/hazyhaar/selfheal/dbopen"
	"github.com/hazyhaar/selfheal/normalize"
)

// The merge is a single statement so that concurrent writers to one key are
// serialised by SQLite's write lock instead of racing a read-modify-write.
// In DO UPDATE, bare column names are the stored row, excluded.* the new one.
const upsertSQL = `
INSERT INTO patterns (
    id, action, selector, url, description, timestamp,
    weight, usage_count, success_rate, failed, replacement_selector,
    full_element_html, parent_element, child_elements, sibling_elements, active
) VALUES (?,?,?,?,?,?,?,1,?,?,?,?,?,?,?,1)
ON CONFLICT (action, selector, url) DO UPDATE SET
    usage_count  = patterns.usage_count + 1,
    success_rate = (patterns.success_rate * patterns.usage_count + excluded.success_rate)
                   / (patterns.usage_count + 1),
    weight       = patterns.weight + CASE WHEN excluded.failed = 1 THEN -? ELSE ? END,
    failed       = excluded.failed,
    replacement_selector = CASE
        WHEN excluded.failed = 1 AND excluded.replacement_selector IS NOT NULL
        THEN excluded.replacement_selector
        ELSE patterns.replacement_selector END,
    description       = COALESCE(excluded.description, patterns.description),
    timestamp         = excluded.timestamp,
    full_element_html = COALESCE(excluded.full_element_html, patterns.full_element_html),
    parent_element    = COALESCE(excluded.parent_element, patterns.parent_element),
    child_elements    = COALESCE(excluded.child_elements, patterns.child_elements),
    sibling_elements  = COALESCE(excluded.sibling_elements, patterns.sibling_elements)
RETURNING usage_count, weight`

// SavePattern records one use of a selector. The first save for a key
// inserts a row (usage 1, success rate 1 or 0, initial weight); later saves
// merge into it. The write is all-or-nothing.
func (s *Store) SavePattern(ctx context.Context, p SaveParams) error {
	if p.Action == "" {
		return &StoreError{Op: "save", Cause: errors.New("action is required")}
	}
	sel := normalize.Selector(p.Selector)
	u := normalize.URL(p.URL)

	successRate := 0.0
	if p.Success {
		successRate = 1.0
	}
	var replacement sql.NullString
	if !p.Success {
		replacement = nullStr(p.ReplacementSelector)
	}

	var fullHTML, parent, children, siblings sql.NullString
	if p.DOM != nil {
		fullHTML = nullStr(p.DOM.FullElementHTML)
		parent = nullStr(p.DOM.ParentElement)
		children = jsonList(p.DOM.ChildElements)
		siblings = jsonList(p.DOM.SiblingElements)
	}

	var usage int
	var weight float64
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, upsertSQL,
			s.newID(), p.Action, sel, u, nullStr(p.Description), s.now().UnixMilli(),
			s.initialWeight, successRate, boolInt(!p.Success), replacement,
			fullHTML, parent, children, siblings,
			s.weightStep, s.weightStep,
		).Scan(&usage, &weight)
	})
	if err != nil {
		return &StoreError{Op: "save", Cause: err}
	}

	if usage == 1 {
		s.logger.Debug("patterns: new pattern saved",
			"action", p.Action, "selector", sel, "url", u, "success", p.Success)
	} else {
		s.logger.Debug("patterns: pattern updated",
			"action", p.Action, "selector", sel, "url", u, "success", p.Success,
			"usage_count", usage, "weight", weight)
	}
	return nil
}

// UpdateOriginalPattern marks the pattern of a broken selector as failed and
// points it at its replacement. Usage statistics are left untouched. A
// missing pattern is not an error.
func (s *Store) UpdateOriginalPattern(ctx context.Context, action, originalSelector, url, replacementSelector string) error {
	var n int64
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE patterns SET failed = 1, replacement_selector = ?
			WHERE action = ? AND selector = ? AND url = ?`,
			nullStr(replacementSelector), action,
			normalize.Selector(originalSelector), normalize.URL(url))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return &StoreError{Op: "update original", Cause: err}
	}
	if n > 0 {
		s.logger.Info("patterns: original pattern updated",
			"action", action, "selector", originalSelector, "replacement", replacementSelector)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonList encodes a non-empty list; empty lists are NULL so they never
// overwrite stored context.
func jsonList(items []string) sql.NullString {
	if len(items) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
