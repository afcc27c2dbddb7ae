// Package logging centralizes slog construction and the structured field
// vocabulary used across clipforge. Components receive loggers by injection
// and tag themselves with NewComponentLogger; nothing logs through a global.
package logging
