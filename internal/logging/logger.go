// Package logging defines the structured-logging interface used across the
// engine. The concrete implementation wraps slog; components only ever see
// the interface so tests can pass a discard logger.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "purchase ok", "account", name, "cost", cost)
type Logger interface {
	// Debug logs fine-grained diagnostic output (token lifetimes, poll ticks).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}
