// Package patterns is the persistent memory of selector outcomes.
//
// Every action performed through the interceptor is recorded as a pattern
// keyed by (action, normalized selector, normalized url). Repeated use of a
// key merges into the same row: usage count, running success rate and a
// reinforcement weight. When a selector breaks, the store ranks the rows of
// the same page to propose a replacement, and can hand its recent history to
// a context analyzer (typically an LLM) when ranking finds nothing.
//
// Usage:
//
//	s, err := patterns.Open("patterns.db", patterns.WithLogger(logger))
//	defer s.Close()
//	err = s.SavePattern(ctx, patterns.SaveParams{Action: "click", Selector: "#go", URL: u, Success: true})
//	sel, err := s.ResolveSelector(ctx, "#go", u, 10)
package patterns

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/selfheal/dbopen"
	"github.com/hazyhaar/selfheal/idgen"
)

// ContextAnalyzer proposes a replacement selector from a textual dump of
// stored patterns. It returns "" when it has no suggestion.
type ContextAnalyzer interface {
	AnalyzeContextFromText(ctx context.Context, patternsText, failedSelector, action string) (string, error)
}

// Store is the pattern repository.
type Store struct {
	db       *sql.DB
	logger   *slog.Logger
	analyzer ContextAnalyzer

	initialWeight float64
	weightStep    float64
	contextSize   int

	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAnalyzer sets the analyzer used by GetReplacementSelector.
func WithAnalyzer(a ContextAnalyzer) Option {
	return func(s *Store) { s.analyzer = a }
}

// WithWeights overrides the weight of a new pattern (default 1.0) and the
// amount added on success and removed on failure (default 0.1).
func WithWeights(initial, step float64) Option {
	return func(s *Store) {
		s.initialWeight = initial
		s.weightStep = step
	}
}

// WithIDGenerator sets the generator of pattern row IDs. Default: UUIDv7.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithContextSize sets how many recent patterns GetReplacementSelector hands
// to the analyzer. Default: 10.
func WithContextSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.contextSize = n
		}
	}
}

// New wraps an open database. The schema must already be applied.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:            db,
		logger:        slog.Default(),
		initialWeight: 1.0,
		weightStep:    0.1,
		contextSize:   10,
		now:           time.Now,
		newID:         idgen.Default,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, &StoreError{Op: "open", Cause: err}
	}
	return New(db, opts...), nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
