// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect executes ffprobe and returns the parsed container metadata. The
// render pipeline only consumes DurationSeconds, but the stream listing is
// kept so diagnostics can report codec and geometry of rejected uploads.
package ffprobe
