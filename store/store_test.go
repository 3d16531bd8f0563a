package store

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStore_GetSet(t *testing.T) {
	s := New(Config{})
	key := NewKey("principles")

	// Get on empty store
	if _, ok := s.Get(key); ok {
		t.Error("Get on empty store should return ok=false")
	}

	s.Set(key, []string{"a", "b"})

	e, ok := s.Get(key)
	if !ok {
		t.Fatal("Get after Set should return ok=true")
	}
	if e.Status != StatusReady {
		t.Errorf("Status = %v, want ready", e.Status)
	}
	if e.Stale {
		t.Error("fresh entry should not be stale")
	}
	data, ok := e.Data.([]string)
	if !ok || len(data) != 2 {
		t.Errorf("Data = %v", e.Data)
	}
}

func TestStore_VersionMonotonic(t *testing.T) {
	s := New(Config{})
	key := NewKey("principles")

	s.Set(key, 1)
	e1, _ := s.Get(key)
	s.Set(key, 2)
	e2, _ := s.Get(key)

	if e2.Version <= e1.Version {
		t.Errorf("version must increase on every write: %d then %d", e1.Version, e2.Version)
	}
}

func TestStore_FailRetainsData(t *testing.T) {
	s := New(Config{})
	key := NewKey("principles")

	s.Set(key, "displayed")
	s.Fail(key, errors.New("boom"))

	e, ok := s.Get(key)
	if !ok {
		t.Fatal("entry should still exist after Fail")
	}
	if e.Status != StatusError {
		t.Errorf("Status = %v, want error", e.Status)
	}
	if e.Err == nil {
		t.Error("Err should be set")
	}
	if e.Data != "displayed" {
		t.Errorf("data should be retained for stale-data-plus-error display, got %v", e.Data)
	}
}

func TestStore_SetLoading(t *testing.T) {
	s := New(Config{})
	key := NewKey("principles")

	s.SetLoading(key)
	e, _ := s.Get(key)
	if e.Status != StatusLoading {
		t.Errorf("Status = %v, want loading", e.Status)
	}

	// Entries with data keep their status: no flash-to-spinner.
	s.Set(key, "data")
	s.SetLoading(key)
	e, _ = s.Get(key)
	if e.Status != StatusReady {
		t.Errorf("Status = %v, want ready (data present)", e.Status)
	}
}

func TestStore_SnapshotRestore(t *testing.T) {
	s := New(Config{})
	present := NewKey("samples", "1", "true")
	absent := NewKey("samples", "1", "false")

	s.Set(present, "before")
	snap := s.Snapshot([]Key{present, absent})

	// Mutate both optimistically.
	s.Set(present, "optimistic")
	s.Set(absent, "optimistic")

	s.Restore(snap)

	e, ok := s.Get(present)
	if !ok || e.Data != "before" {
		t.Errorf("restored entry = %v, %v; want before, true", e.Data, ok)
	}
	if _, ok := s.Get(absent); ok {
		t.Error("entry absent at snapshot time must be absent after restore")
	}
}

func TestStore_RestorePreservesStatusAndError(t *testing.T) {
	s := New(Config{})
	key := NewKey("principles")

	s.Set(key, "data")
	s.Fail(key, errors.New("original failure"))
	snap := s.Snapshot([]Key{key})

	s.Set(key, "optimistic")
	s.Restore(snap)

	e, _ := s.Get(key)
	if e.Status != StatusError {
		t.Errorf("Status = %v, want error restored verbatim", e.Status)
	}
	if e.Err == nil || e.Err.Error() != "original failure" {
		t.Errorf("Err = %v, want original failure", e.Err)
	}
	if e.Data != "data" {
		t.Errorf("Data = %v, want data", e.Data)
	}
}

func TestStore_MarkStaleKeepsData(t *testing.T) {
	s := New(Config{})
	key := NewKey("samples", "1", "true")

	s.Set(key, "shown")
	s.MarkStale(key)

	e, ok := s.Get(key)
	if !ok {
		t.Fatal("entry should survive MarkStale")
	}
	if !e.Stale {
		t.Error("entry should be flagged stale")
	}
	if e.Data != "shown" {
		t.Error("MarkStale must not clear displayed data")
	}
	if e.Status != StatusReady {
		t.Errorf("Status = %v, want ready", e.Status)
	}
}

func TestStore_MarkStaleWhere_Family(t *testing.T) {
	s := New(Config{})
	a := NewKey("samples", "1", "true")
	b := NewKey("samples", "2", "false")
	p := NewKey("principles")

	s.Set(a, 1)
	s.Set(b, 2)
	s.Set(p, 3)

	s.MarkStaleWhere(MatchFamily("samples"))

	for _, k := range []Key{a, b} {
		e, _ := s.Get(k)
		if !e.Stale {
			t.Errorf("%v should be stale", k)
		}
	}
	e, _ := s.Get(p)
	if e.Stale {
		t.Error("principles entry should be untouched")
	}
}

func TestStore_SetMany(t *testing.T) {
	s := New(Config{})
	a := NewKey("samples", "1", "true")
	b := NewKey("samples", "1", "false")

	s.Set(a, 10)
	s.Set(b, 20)

	updated := 0
	s.SetMany(MatchPrefix("samples", "1"), func(_ Key, data any) (any, bool) {
		n := data.(int)
		if n == 10 {
			updated++
			return n + 1, true
		}
		return data, false
	})

	if updated != 1 {
		t.Fatalf("updater reported %d changes, want 1", updated)
	}
	ea, _ := s.Get(a)
	if ea.Data != 11 {
		t.Errorf("a = %v, want 11", ea.Data)
	}
	eb, _ := s.Get(b)
	if eb.Data != 20 {
		t.Errorf("b must be unchanged, got %v", eb.Data)
	}
}

func TestStore_Each(t *testing.T) {
	s := New(Config{})
	s.Set(NewKey("samples", "1", "true"), 10)
	s.Set(NewKey("samples", "2", "true"), 20)
	s.Set(NewKey("principles"), 30)
	s.SetLoading(NewKey("samples", "3", "true")) // no data; skipped

	sum := 0
	seen := 0
	s.Each(MatchFamily("samples"), func(_ Key, data any) {
		seen++
		sum += data.(int)
	})

	if seen != 2 || sum != 30 {
		t.Errorf("Each visited %d entries (sum %d), want 2 entries summing 30", seen, sum)
	}
}

func TestStore_CancelInFlight(t *testing.T) {
	s := New(Config{})
	key := NewKey("samples", "1", "true")

	gen := s.Generation(key)

	// Optimistic write path cancels in-flight reads for the key.
	s.CancelInFlight(MatchKeys(key))

	if s.SetIfCurrent(key, gen, "slow stale response") {
		t.Error("result from a cancelled fetch must be discarded")
	}
	if _, ok := s.Get(key); ok {
		t.Error("discarded result must not create an entry")
	}

	// A fetch started after the cancellation applies normally.
	gen = s.Generation(key)
	if !s.SetIfCurrent(key, gen, "fresh") {
		t.Error("current-generation result must apply")
	}
	e, _ := s.Get(key)
	if e.Data != "fresh" {
		t.Errorf("Data = %v, want fresh", e.Data)
	}
}

func TestStore_FailIfCurrent(t *testing.T) {
	s := New(Config{})
	key := NewKey("principles")

	gen := s.Generation(key)
	s.CancelInFlight(MatchFamily("principles"))

	if s.FailIfCurrent(key, gen, errors.New("late failure")) {
		t.Error("failure from a cancelled fetch must be discarded")
	}
}

func TestStore_SubscribeNotify(t *testing.T) {
	s := New(Config{})
	key := NewKey("principles")

	var mu sync.Mutex
	var got []Entry
	unsub := s.Subscribe(key, func(_ Key, e Entry) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	s.Set(key, "v1")
	s.MarkStale(key)
	unsub()
	s.Set(key, "v2")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %d notifications, want 2", len(got))
	}
	if got[0].Data != "v1" || got[0].Stale {
		t.Errorf("first notification = %+v", got[0])
	}
	if !got[1].Stale {
		t.Error("second notification should carry the stale flag")
	}
}

func TestStore_MarkStaleWhere_NotifiesAlreadyStale(t *testing.T) {
	s := New(Config{})
	key := NewKey("samples", "1", "true")
	s.Set(key, "data")

	var mu sync.Mutex
	notified := 0
	unsub := s.Subscribe(key, func(Key, Entry) {
		mu.Lock()
		notified++
		mu.Unlock()
	})
	defer unsub()

	// A second invalidation on an already-stale entry must notify again:
	// the observer's previous refetch may have been cancelled, and the
	// notification is its only re-arm signal.
	s.MarkStaleWhere(MatchFamily("samples"))
	s.MarkStaleWhere(MatchFamily("samples"))

	mu.Lock()
	defer mu.Unlock()
	if notified != 2 {
		t.Errorf("got %d notifications, want 2 (one per invalidation)", notified)
	}
}

func TestStore_RetainBlocksSweep(t *testing.T) {
	now := time.Unix(0, 0)
	s := New(Config{Now: func() time.Time { return now }})
	key := NewKey("samples", "1", "true")

	s.Set(key, "data")
	s.Retain(key, time.Minute)

	now = now.Add(time.Hour)
	if n := s.Sweep(); n != 0 {
		t.Fatalf("Sweep evicted %d retained entries", n)
	}

	s.Release(key)
	// Within the retention window after release: still kept.
	now = now.Add(30 * time.Second)
	if n := s.Sweep(); n != 0 {
		t.Fatalf("Sweep evicted %d entries inside retention window", n)
	}

	now = now.Add(10 * time.Minute)
	if n := s.Sweep(); n != 1 {
		t.Fatalf("Sweep evicted %d entries, want 1", n)
	}
	if _, ok := s.Get(key); ok {
		t.Error("entry should be gone after eviction")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New(Config{})
	key := NewKey("samples", "1", "true")

	const goroutines = 50
	const ops = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < ops; j++ {
				switch j % 5 {
				case 0:
					s.Set(key, j)
				case 1:
					s.Get(key)
				case 2:
					s.MarkStale(key)
				case 3:
					snap := s.Snapshot([]Key{key})
					s.Restore(snap)
				case 4:
					s.CancelInFlight(MatchFamily("samples"))
				}
			}
		}(i)
	}
	wg.Wait()
}
