package domain

import (
	"sort"
	"strings"

	"github.com/haukened/tivilsta/internal/whitelist/common/utils"
)

// TLDSet is an immutable, deduplicated, case-folded set of top-level domain
// suffixes ("com", "gov.uk", ...). The zero value is an empty set.
type TLDSet struct {
	items  map[string]struct{}
	sorted []string
}

// NewTLDSet builds a set from raw entries. Entries are canonicalized, a
// leading dot is dropped, and blanks are skipped.
func NewTLDSet(entries ...string) TLDSet {
	items := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		e = strings.TrimPrefix(utils.CanonicalName(e), ".")
		if e == "" {
			continue
		}
		items[e] = struct{}{}
	}
	sorted := make([]string, 0, len(items))
	for k := range items {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	return TLDSet{items: items, sorted: sorted}
}

// Len returns the number of TLDs in the set.
func (s TLDSet) Len() int { return len(s.sorted) }

// Contains reports whether tld is present (compared after canonicalization).
func (s TLDSet) Contains(tld string) bool {
	_, ok := s.items[strings.TrimPrefix(utils.CanonicalName(tld), ".")]
	return ok
}

// Sorted returns the entries in ascending order. The slice must not be modified.
func (s TLDSet) Sorted() []string { return s.sorted }

// TLDs lets a static set act as the TLD source of a ruler.
func (s TLDSet) TLDs() TLDSet { return s }

// Union returns a new set holding the entries of both sets.
func (s TLDSet) Union(other TLDSet) TLDSet {
	merged := make([]string, 0, s.Len()+other.Len())
	merged = append(merged, s.sorted...)
	merged = append(merged, other.sorted...)
	return NewTLDSet(merged...)
}
