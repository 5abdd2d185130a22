package canon

import "sort"

// ID is an opaque marketplace identifier.
//
// Marketplace ids can exceed the 53-bit range that survives a float64 round
// trip, so they are carried verbatim as the text the marketplace sent.
// The empty ID means "absent".
type ID string

// IsZero reports whether the id is absent.
func (id ID) IsZero() bool {
	return id == ""
}

func (id ID) String() string {
	return string(id)
}

// IDSet is a set of identifiers. The zero value is not usable; use NewIDSet.
type IDSet map[ID]struct{}

// NewIDSet creates a set containing ids.
func NewIDSet(ids ...ID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id. Zero ids are ignored.
func (s IDSet) Add(id ID) {
	if id.IsZero() {
		return
	}
	s[id] = struct{}{}
}

// Has reports whether id is in the set.
func (s IDSet) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Complement returns the members of ids that are not in s, sorted.
func (s IDSet) Complement(ids []ID) []ID {
	var out []ID
	for _, id := range ids {
		if !s.Has(id) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
