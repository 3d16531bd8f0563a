// Package mutate executes writes against the annotation-review backend
// while keeping the cache consistent.
//
// A mutation optionally applies a synchronous optimistic transform so the
// edit feels instant, snapshots the prior cache state, then issues the
// network call. On success the server's authoritative data replaces the
// optimistic guess and dependent partitions are invalidated; on failure
// the snapshot is restored verbatim and the typed error is surfaced.
// Writes are never retried automatically, and a failed mutation never
// marks anything stale.
package mutate
