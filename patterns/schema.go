package patterns

// Schema contains the DDL for the pattern store.
const Schema = `
-- One row per (action, normalized selector, normalized url).
CREATE TABLE IF NOT EXISTS patterns (
    id                   TEXT PRIMARY KEY,
    action               TEXT NOT NULL,
    selector             TEXT NOT NULL,
    url                  TEXT NOT NULL,
    description          TEXT,
    timestamp            INTEGER NOT NULL,
    weight               REAL NOT NULL DEFAULT 1.0,
    usage_count          INTEGER NOT NULL DEFAULT 0,
    success_rate         REAL NOT NULL DEFAULT 0.0,
    failed               INTEGER NOT NULL DEFAULT 0,
    replacement_selector TEXT,
    full_element_html    TEXT,
    parent_element       TEXT,
    child_elements       TEXT,
    sibling_elements     TEXT,
    active               INTEGER NOT NULL DEFAULT 1,
    UNIQUE (action, selector, url)
);
CREATE INDEX IF NOT EXISTS idx_patterns_rank ON patterns(url, failed, weight DESC, success_rate DESC);
CREATE INDEX IF NOT EXISTS idx_patterns_time ON patterns(timestamp DESC);
`
