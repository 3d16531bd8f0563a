package store

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/jonwraymond/annosync/observe"
)

// DefaultRetention is the retention window applied to entries whose
// observers never specified one.
const DefaultRetention = 5 * time.Minute

// Config configures a Store.
type Config struct {
	// Logger receives debug-level entry lifecycle events.
	// If nil, logging is disabled.
	Logger observe.Logger

	// Meter records hit/miss/eviction counters.
	// If nil, a no-op meter is used.
	Meter metric.Meter

	// DefaultRetention is the eviction window for unobserved entries.
	// Default: 5 minutes.
	DefaultRetention time.Duration

	// Now is the clock used for timestamps and retention.
	// Default: time.Now. Overridable for tests.
	Now func() time.Time
}

// Store is the single shared mutable cache of server-derived entries.
//
// Every access path goes through its synchronous API under one mutex, so
// no entry is ever observed half-updated. The Store never performs I/O
// and its operations cannot fail.
type Store struct {
	mu       sync.Mutex
	entries  map[Key]*entryState
	gens     map[Key]uint64
	retained map[Key]*retainState
	subs     map[Key]map[uint64]func(Key, Entry)
	nextSub  uint64
	version  uint64

	logger    observe.Logger
	now       func() time.Time
	retention time.Duration

	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
}

type entryState struct {
	data      any
	status    Status
	version   uint64
	updatedAt time.Time
	err       error
	stale     bool
}

type retainState struct {
	count      int
	window     time.Duration
	releasedAt time.Time
}

// New creates a Store.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Meter == nil {
		cfg.Meter = noop.NewMeterProvider().Meter("annosync")
	}
	if cfg.DefaultRetention <= 0 {
		cfg.DefaultRetention = DefaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Store{
		entries:   make(map[Key]*entryState),
		gens:      make(map[Key]uint64),
		retained:  make(map[Key]*retainState),
		subs:      make(map[Key]map[uint64]func(Key, Entry)),
		logger:    cfg.Logger.WithComponent("store"),
		now:       cfg.Now,
		retention: cfg.DefaultRetention,
	}
	s.hits, _ = cfg.Meter.Int64Counter("annosync.store.hits")
	s.misses, _ = cfg.Meter.Int64Counter("annosync.store.misses")
	s.evictions, _ = cfg.Meter.Int64Counter("annosync.store.evictions")
	return s
}

// Get returns the entry for key. Returns ok=false when the key has never
// been written (or has been evicted).
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	st, ok := s.entries[key]
	var e Entry
	if ok {
		e = st.view()
	}
	s.mu.Unlock()

	ctx := context.Background()
	if ok {
		s.count(ctx, s.hits)
	} else {
		s.count(ctx, s.misses)
	}
	return e, ok
}

// Set replaces the entry's data with authoritative data and marks it
// ready. Observers of the key are notified.
func (s *Store) Set(key Key, data any) {
	s.mu.Lock()
	st := s.ensureLocked(key)
	s.writeLocked(st, data)
	notify := s.notificationLocked(key, st)
	s.mu.Unlock()
	notify()
}

// SetIfCurrent behaves like Set but only applies when gen matches the
// key's current in-flight generation. It returns false when the result
// was discarded because CancelInFlight ran after the fetch started.
func (s *Store) SetIfCurrent(key Key, gen uint64, data any) bool {
	s.mu.Lock()
	if s.gens[key] != gen {
		s.mu.Unlock()
		s.logger.Debug(context.Background(), "stale fetch result discarded",
			observe.F("key", key.String()))
		return false
	}
	st := s.ensureLocked(key)
	s.writeLocked(st, data)
	notify := s.notificationLocked(key, st)
	s.mu.Unlock()
	notify()
	return true
}

// Fail transitions the entry to the error status. Data already stored is
// retained so the UI can show stale data alongside an error indicator.
func (s *Store) Fail(key Key, err error) {
	s.mu.Lock()
	st := s.ensureLocked(key)
	s.failLocked(st, err)
	notify := s.notificationLocked(key, st)
	s.mu.Unlock()
	notify()
}

// FailIfCurrent behaves like Fail but only applies when gen matches the
// key's current in-flight generation.
func (s *Store) FailIfCurrent(key Key, gen uint64, err error) bool {
	s.mu.Lock()
	if s.gens[key] != gen {
		s.mu.Unlock()
		return false
	}
	st := s.ensureLocked(key)
	s.failLocked(st, err)
	notify := s.notificationLocked(key, st)
	s.mu.Unlock()
	notify()
	return true
}

// SetLoading marks the entry as loading when it holds no data yet.
// Entries that already hold data keep their status so displayed data is
// never replaced by a spinner.
func (s *Store) SetLoading(key Key) {
	s.mu.Lock()
	st := s.ensureLocked(key)
	var notify func()
	if st.data == nil && st.status != StatusLoading {
		st.status = StatusLoading
		st.version = s.nextVersionLocked()
		notify = s.notificationLocked(key, st)
	} else {
		notify = func() {}
	}
	s.mu.Unlock()
	notify()
}

// Generation returns the current in-flight generation for key,
// registering the key so a later CancelInFlight can invalidate results
// of fetches that started now.
func (s *Store) Generation(key Key) uint64 {
	s.mu.Lock()
	gen := s.gens[key]
	s.gens[key] = gen
	s.mu.Unlock()
	return gen
}

// CancelInFlight bumps the generation of every matching key so that
// results of fetches already in flight are discarded on arrival. The
// underlying requests are not aborted; only their results are ignored.
func (s *Store) CancelInFlight(pred KeyPredicate) {
	s.mu.Lock()
	for key := range s.gens {
		if pred(key) {
			s.gens[key]++
		}
	}
	for key := range s.entries {
		if _, seen := s.gens[key]; !seen && pred(key) {
			s.gens[key] = 1
		}
	}
	s.mu.Unlock()
}

// SetMany applies updater to every entry whose key matches pred. The
// updater returns the replacement data and whether the entry changed;
// unchanged entries are not rewritten and observers are not notified.
func (s *Store) SetMany(pred KeyPredicate, updater func(Key, any) (any, bool)) {
	s.mu.Lock()
	var notifies []func()
	for key, st := range s.entries {
		if !pred(key) || st.data == nil {
			continue
		}
		data, changed := updater(key, st.data)
		if !changed {
			continue
		}
		st.data = data
		st.version = s.nextVersionLocked()
		st.updatedAt = s.now()
		notifies = append(notifies, s.notificationLocked(key, st))
	}
	s.mu.Unlock()
	for _, n := range notifies {
		n()
	}
}

// Each calls fn with the key and data of every entry matching pred that
// holds data. fn runs under the store lock and must not call back into
// the Store or block.
func (s *Store) Each(pred KeyPredicate, fn func(Key, any)) {
	s.mu.Lock()
	for key, st := range s.entries {
		if pred(key) && st.data != nil {
			fn(key, st.data)
		}
	}
	s.mu.Unlock()
}

// Snapshot captures the current values of the given keys for later
// rollback, including their absence.
func (s *Store) Snapshot(keys []Key) Snapshot {
	s.mu.Lock()
	snap := Snapshot{values: make(map[Key]snapshotValue, len(keys))}
	for _, key := range keys {
		st, ok := s.entries[key]
		if !ok {
			snap.values[key] = snapshotValue{}
			continue
		}
		snap.values[key] = snapshotValue{
			present:   true,
			data:      st.data,
			status:    st.status,
			updatedAt: st.updatedAt,
			err:       st.err,
			stale:     st.stale,
		}
	}
	s.mu.Unlock()
	return snap
}

// Restore writes captured values back verbatim. Keys that were absent at
// snapshot time are deleted again. Used on mutation failure so optimistic
// writes visibly revert.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	var notifies []func()
	for key, v := range snap.values {
		if !v.present {
			if _, ok := s.entries[key]; ok {
				delete(s.entries, key)
				notifies = append(notifies, s.notificationLocked(key, nil))
			}
			continue
		}
		st := s.ensureLocked(key)
		st.data = v.data
		st.status = v.status
		st.updatedAt = v.updatedAt
		st.err = v.err
		st.stale = v.stale
		st.version = s.nextVersionLocked()
		notifies = append(notifies, s.notificationLocked(key, st))
	}
	s.mu.Unlock()
	for _, n := range notifies {
		n()
	}
}

// MarkStale flags the given entries for refetch without clearing their
// currently displayed data.
func (s *Store) MarkStale(keys ...Key) {
	s.MarkStaleWhere(MatchKeys(keys...))
}

// MarkStaleWhere flags every entry whose key matches pred. Entries that
// are already stale are notified again: an observer's earlier refetch may
// have been discarded by CancelInFlight, and the repeated notification is
// what re-arms it.
func (s *Store) MarkStaleWhere(pred KeyPredicate) {
	s.mu.Lock()
	var notifies []func()
	for key, st := range s.entries {
		if !pred(key) {
			continue
		}
		st.stale = true
		notifies = append(notifies, s.notificationLocked(key, st))
	}
	s.mu.Unlock()
	for _, n := range notifies {
		n()
	}
}

// Subscribe registers fn for changes to key. The returned function
// removes the subscription.
func (s *Store) Subscribe(key Key, fn func(Key, Entry)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[key] == nil {
		s.subs[key] = make(map[uint64]func(Key, Entry))
	}
	s.subs[key][id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if m := s.subs[key]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(s.subs, key)
			}
		}
		s.mu.Unlock()
	}
}

// Retain records one observer of key with the given retention window.
// While retained, the entry is never evicted.
func (s *Store) Retain(key Key, retention time.Duration) {
	if retention <= 0 {
		retention = s.retention
	}
	s.mu.Lock()
	r := s.retained[key]
	if r == nil {
		r = &retainState{}
		s.retained[key] = r
	}
	r.count++
	if retention > r.window {
		r.window = retention
	}
	s.mu.Unlock()
}

// Release drops one observer of key. The entry becomes evictable once
// its retention window has elapsed with no observers.
func (s *Store) Release(key Key) {
	s.mu.Lock()
	if r := s.retained[key]; r != nil && r.count > 0 {
		r.count--
		if r.count == 0 {
			r.releasedAt = s.now()
		}
	}
	s.mu.Unlock()
}

// Sweep evicts entries that have had no observers for longer than their
// retention window. It returns the number of evicted entries. The caller
// owns the sweep cadence; the Store starts no timers of its own.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	evicted := 0
	for key, st := range s.entries {
		r := s.retained[key]
		if r != nil && r.count > 0 {
			continue
		}
		window := s.retention
		last := st.updatedAt
		if r != nil {
			if r.window > 0 {
				window = r.window
			}
			if r.releasedAt.After(last) {
				last = r.releasedAt
			}
		}
		if now.Sub(last) > window {
			delete(s.entries, key)
			delete(s.retained, key)
			delete(s.gens, key)
			evicted++
		}
	}
	s.mu.Unlock()

	if evicted > 0 {
		ctx := context.Background()
		s.evictions.Add(ctx, int64(evicted))
		s.logger.Debug(ctx, "swept unobserved entries", observe.F("evicted", evicted))
	}
	return evicted
}

// Snapshot holds captured entry values for rollback.
type Snapshot struct {
	values map[Key]snapshotValue
}

// Keys returns the keys captured in the snapshot.
func (s Snapshot) Keys() []Key {
	keys := make([]Key, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

type snapshotValue struct {
	present   bool
	data      any
	status    Status
	updatedAt time.Time
	err       error
	stale     bool
}

func (st *entryState) view() Entry {
	return Entry{
		Data:      st.data,
		Status:    st.status,
		Version:   st.version,
		UpdatedAt: st.updatedAt,
		Err:       st.err,
		Stale:     st.stale,
	}
}

func (s *Store) ensureLocked(key Key) *entryState {
	st, ok := s.entries[key]
	if !ok {
		st = &entryState{status: StatusEmpty}
		s.entries[key] = st
	}
	return st
}

func (s *Store) writeLocked(st *entryState, data any) {
	st.data = data
	st.status = StatusReady
	st.err = nil
	st.stale = false
	st.version = s.nextVersionLocked()
	st.updatedAt = s.now()
}

func (s *Store) failLocked(st *entryState, err error) {
	st.status = StatusError
	st.err = err
	st.version = s.nextVersionLocked()
}

func (s *Store) nextVersionLocked() uint64 {
	s.version++
	return s.version
}

// notificationLocked captures the subscribers and entry view for key so
// callbacks can run outside the lock. A nil state notifies absence.
func (s *Store) notificationLocked(key Key, st *entryState) func() {
	m := s.subs[key]
	if len(m) == 0 {
		return func() {}
	}
	fns := make([]func(Key, Entry), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	var e Entry
	if st != nil {
		e = st.view()
	}
	return func() {
		for _, fn := range fns {
			fn(key, e)
		}
	}
}

func (s *Store) count(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}
