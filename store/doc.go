// Package store provides the in-memory entry store that backs the
// annotation-review cache.
//
// A Store maps structured keys to entries holding the last-known server
// value, a status, and a monotonically increasing version. It supports
// snapshot/restore for optimistic-write rollback, staleness marking for
// invalidation, per-key in-flight generations for discarding slow fetch
// results, and per-key subscriber notification.
//
// The Store never performs I/O. All operations are synchronous
// data-structure mutations guarded by a single mutex; subscriber
// callbacks are invoked outside the lock.
package store
