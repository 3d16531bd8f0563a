// Package coalesce merges bursts of rapid edits into a single committed
// write after a quiet period.
//
// It exists for fields edited at keystroke frequency (free-text opinions):
// every Write is reflected immediately in the pending value, but the
// commit function runs only once input has been quiet for the configured
// delay, or on an explicit Flush (blur, confirm key). Close always
// flushes, so a pending edit is never silently dropped on teardown.
package coalesce
