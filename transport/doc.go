// Package transport is the request executor for the annotation-review
// backend: a JSON-over-HTTP client that normalizes every failure into a
// typed Error with a stable Kind before it reaches the query or mutation
// layers.
//
// Reads retry a bounded number of times with a fixed delay on retryable
// kinds. Writes are never retried automatically, to avoid applying a
// mutation twice; their errors carry a Retryable flag so the UI can offer
// a manual retry instead.
package transport
