package store

import "time"

// Status is the lifecycle state of a cache entry.
type Status int

const (
	// StatusEmpty means the entry exists but holds no data yet.
	StatusEmpty Status = iota
	// StatusLoading means a first fetch is in flight and no data has
	// ever been stored.
	StatusLoading
	// StatusReady means the entry holds last-known-good data.
	StatusReady
	// StatusError means the last fetch failed. Previously stored data,
	// if any, is retained alongside the error.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "empty"
	}
}

// Entry is the externally visible view of one cached partition.
//
// Version increases on every write to the entry and is used to detect and
// ignore out-of-order responses. Stale flags the entry for background
// refetch without clearing the currently displayed data.
type Entry struct {
	Data      any
	Status    Status
	Version   uint64
	UpdatedAt time.Time
	Err       error
	Stale     bool
}
