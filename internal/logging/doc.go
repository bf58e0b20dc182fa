// Package logging wraps log/slog with the project's output conventions:
// console or JSON format, multi-destination output (stdout plus the
// daemon log file), standardized field names, and context-derived
// job/dataset attributes.
package logging
