package store_test

import (
	"fmt"

	"github.com/jonwraymond/annosync/store"
)

func ExampleNewKey() {
	list := store.NewKey("samples", "7", "true")

	fmt.Println("String:", list.String())
	fmt.Println("Family:", list.Family)
	fmt.Println("Params:", list.Params())
	// Output:
	// String: samples:7/true
	// Family: samples
	// Params: [7 true]
}

func ExampleStore_Get() {
	s := store.New(store.Config{})
	key := store.NewKey("principles")

	// Miss - nothing cached yet
	_, ok := s.Get(key)
	fmt.Println("Before set:", ok)

	s.Set(key, []string{"honesty", "empathy"})
	e, ok := s.Get(key)
	fmt.Println("After set:", ok)
	fmt.Println("Status:", e.Status)
	fmt.Println("Data:", e.Data)
	// Output:
	// Before set: false
	// After set: true
	// Status: ready
	// Data: [honesty empathy]
}

func ExampleStore_MarkStaleWhere() {
	s := store.New(store.Config{})
	s.Set(store.NewKey("samples", "1", "true"), "partition A")
	s.Set(store.NewKey("samples", "2", "true"), "partition B")

	// Invalidate every sample partition; the data stays displayed.
	s.MarkStaleWhere(store.MatchFamily("samples"))

	e, _ := s.Get(store.NewKey("samples", "1", "true"))
	fmt.Println("Stale:", e.Stale)
	fmt.Println("Data kept:", e.Data)
	// Output:
	// Stale: true
	// Data kept: partition A
}

func ExampleStore_Restore() {
	s := store.New(store.Config{})
	key := store.NewKey("principle", "7")
	s.Set(key, "Empathy")

	// Snapshot, mutate optimistically, then roll back.
	snap := s.Snapshot([]store.Key{key})
	s.Set(key, "Empathy2")
	s.Restore(snap)

	e, _ := s.Get(key)
	fmt.Println("After rollback:", e.Data)
	// Output:
	// After rollback: Empathy
}
