// Package logging builds the slog logger used across clipforge.
//
// Two output formats are supported: a compact console format for interactive
// use and JSON for log aggregation. A "component" attribute, when present,
// becomes the message prefix in console output.
package logging
