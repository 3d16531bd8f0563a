package store

import (
	"net/url"
	"strings"
)

// paramSep joins key parameters into the canonical path. Parameter values
// containing the separator are escaped, so a server-assigned id can never
// make two differently-shaped keys collide.
const paramSep = "/"

// Key identifies one cached partition. Keys are compared by structural
// equality: two logically different queries never collide, and one logical
// query always maps to the same key regardless of call site.
type Key struct {
	// Family is the root name shared by all partitions of one entity
	// family (e.g. "samples").
	Family string

	// Path is the canonical encoding of the key parameters.
	Path string
}

// NewKey builds a key from a family name and its parameters.
func NewKey(family string, params ...string) Key {
	if len(params) == 0 {
		return Key{Family: family}
	}
	escaped := make([]string, len(params))
	for i, p := range params {
		escaped[i] = url.PathEscape(p)
	}
	return Key{Family: family, Path: strings.Join(escaped, paramSep)}
}

// Params returns the key parameters as originally passed to NewKey.
func (k Key) Params() []string {
	if k.Path == "" {
		return nil
	}
	segments := strings.Split(k.Path, paramSep)
	for i, seg := range segments {
		if p, err := url.PathUnescape(seg); err == nil {
			segments[i] = p
		}
	}
	return segments
}

func (k Key) String() string {
	if k.Path == "" {
		return k.Family
	}
	return k.Family + ":" + k.Path
}

// KeyPredicate selects keys for family-wide operations such as
// invalidation and in-flight cancellation.
type KeyPredicate func(Key) bool

// MatchFamily matches every key in the given entity family.
func MatchFamily(family string) KeyPredicate {
	return func(k Key) bool {
		return k.Family == family
	}
}

// MatchPrefix matches keys in the given family whose leading parameters
// equal params. Matching is segment-wise, so a prefix of "1" does not
// match a key parameterized by "10".
func MatchPrefix(family string, params ...string) KeyPredicate {
	return func(k Key) bool {
		if k.Family != family {
			return false
		}
		got := k.Params()
		if len(got) < len(params) {
			return false
		}
		for i, p := range params {
			if got[i] != p {
				return false
			}
		}
		return true
	}
}

// MatchKeys matches exactly the given keys.
func MatchKeys(keys ...Key) KeyPredicate {
	set := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(k Key) bool {
		_, ok := set[k]
		return ok
	}
}
