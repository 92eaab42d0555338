// Package logging assembles structured slog loggers for domin.
//
// It owns the console and JSON handlers, the per-run log file that mirrors
// console output, and context helpers that tag lines with the run and
// environment they belong to. Components derive their logger with
// NewComponentLogger so every line carries a component field.
package logging
