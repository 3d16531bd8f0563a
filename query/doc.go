// Package query fetches cached entries on demand.
//
// A Controller returns whatever the store currently holds and triggers a
// fetch when the entry is missing or stale. Concurrent requests for the
// same key share a single fetch. Results of fetches overtaken by an
// optimistic write are discarded through the store's in-flight
// generations, so a slow stale response never clobbers a newer write.
//
// An Observer wraps a Controller for one UI collaborator: it retains the
// entry while observed, refetches in the background when the entry is
// invalidated, and can keep serving the previous key's data while a new
// key loads so partial updates never flash to empty.
package query
