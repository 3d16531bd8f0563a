package review

import (
	"strconv"

	"github.com/jonwraymond/annosync/store"
)

// Entity families used as cache key roots.
const (
	FamilyPrinciples = "principles"
	FamilyPrinciple  = "principle"
	FamilySamples    = "samples"
)

// PrinciplesKey is the cache key of the principle list.
func PrinciplesKey() store.Key {
	return store.NewKey(FamilyPrinciples)
}

// PrincipleKey is the cache key of one principle's detail entry.
func PrincipleKey(id string) store.Key {
	return store.NewKey(FamilyPrinciple, id)
}

// SamplesKey is the cache key of one principle's sample partition under
// one revision-visibility filter.
func SamplesKey(principleID string, showRevised bool) store.Key {
	return store.NewKey(FamilySamples, principleID, strconv.FormatBool(showRevised))
}

// SamplePartitions matches every cached partition of one principle,
// regardless of filter value.
func SamplePartitions(principleID string) store.KeyPredicate {
	return store.MatchPrefix(FamilySamples, principleID)
}

// AllSamplePartitions matches every sample partition of every principle.
// Reassignment invalidates this whole family: a single move changes
// totals for two principles at once, and invalidating everything trades
// a wider refetch for guaranteed correctness.
func AllSamplePartitions() store.KeyPredicate {
	return store.MatchFamily(FamilySamples)
}
