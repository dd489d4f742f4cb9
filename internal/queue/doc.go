// Package queue persists render jobs in SQLite.
//
// Each job moves through the lifecycle in Status order; terminal jobs carry a
// Result and, for failures, an error message. The store is the source of
// truth for the `jobs` CLI commands and lets a restarted daemon mark jobs
// that were in flight when the process died.
//
// To add new statuses or fields, update schema.sql and bump schemaVersion.
package queue
