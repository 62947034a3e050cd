// Package trace registers a "sqlite-trace" database/sql driver that wraps
// modernc.org/sqlite and logs every statement through slog:
//
//	db, err := dbopen.Open("patterns.db", dbopen.WithDriver(trace.DriverName))
//
// Statements log at Debug, at Warn when slower than SlowThreshold and at
// Error when they fail. The request ID set by kit is attached when present.
package trace

import (
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver is registered under.
const DriverName = "sqlite-trace"

// SlowThreshold is the duration above which a statement logs at Warn.
var SlowThreshold = 100 * time.Millisecond

var logger atomic.Pointer[slog.Logger]

// SetLogger sets the logger used by the driver. nil restores slog.Default().
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func current() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

func init() {
	sql.Register(DriverName, &tracingDriver{Driver: &sqlite.Driver{}})
}
