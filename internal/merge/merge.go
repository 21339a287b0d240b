// Package merge implements the whole-record last-write-wins reconciliation
// primitive shared by every synchronized collection. One generic function,
// parameterized by an id accessor, a timestamp accessor and a tombstone set,
// replaces per-collection merge code so the conflict rule cannot drift
// between categories.
package merge

import "time"

// Set is a tombstone id set.
type Set map[string]struct{}

// NewSet builds a Set from the given ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Union returns a new set containing every id from both inputs. Tombstone
// sets only ever grow; callers must never shrink the result.
func Union(a, b Set) Set {
	out := make(Set, len(a)+len(b))
	for id := range a {
		out[id] = struct{}{}
	}
	for id := range b {
		out[id] = struct{}{}
	}
	return out
}

// IDs returns the set's members as a slice, order unspecified.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// ByID reconciles a local and a remote collection of the same category.
//
// Rules, in order: a tombstoned id never appears in the output regardless
// of timestamps; for ids known on only one side the known version survives;
// for conflicting ids the remote version wins only when its timestamp is
// strictly greater, so ties keep the local record. A record whose accessor
// returns the zero time sorts as oldest possible. Local order is preserved;
// remote-only records append in remote order.
func ByID[T any](local, remote []T, id func(T) string, updatedAt func(T) time.Time, deleted Set) []T {
	index := make(map[string]int, len(local)+len(remote))
	out := make([]T, 0, len(local)+len(remote))

	for _, item := range local {
		key := id(item)
		if deleted.Has(key) {
			continue
		}
		if _, ok := index[key]; ok {
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}

	for _, item := range remote {
		key := id(item)
		if deleted.Has(key) {
			continue
		}
		at, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, item)
			continue
		}
		if updatedAt(item).After(updatedAt(out[at])) {
			out[at] = item
		}
	}

	return out
}

// Timestamp returns updatedAt, falling back to createdAt when updatedAt is
// unset. The zero time means "oldest possible".
func Timestamp(updatedAt, createdAt time.Time) time.Time {
	if !updatedAt.IsZero() {
		return updatedAt
	}
	return createdAt
}
