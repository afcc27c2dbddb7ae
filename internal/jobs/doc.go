// Package jobs persists video production jobs in SQLite.
//
// A job carries its script (scenes), lifecycle status, and — once assembly
// has run — the serialized pipeline output, so finalization can be re-driven
// from persisted state after a crash or a transient failure. Failed jobs
// record whether the failure was retryable so the retry command can decide
// between re-enqueue and permanent failure.
package jobs
