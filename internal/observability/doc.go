// Package observability configures process-wide structured logging.
//
// Instrument installs the default slog logger. Records go to a text or JSON handler
// writing either to a caller-provided writer (interactive runs log to stdout) or to a
// size-rotated log file (service runs). An OpenTelemetry log exporter can be added
// next to the local output; records are then bridged through otelslog as well.
package observability
