package whitelist

import (
	radix "github.com/armon/go-radix"

	"github.com/haukened/tivilsta/internal/whitelist/common/utils"
)

// suffixIndex stores leading-dot suffixes keyed by their reversed form, so a
// subject matches when some stored key is a prefix of the reversed
// "."+subject. The leading dot in every key pins matches to label boundaries:
// ".gov.uk" matches "gov.uk" and "a.gov.uk" but not "badgov.uk".
type suffixIndex struct {
	tree *radix.Tree
}

func newSuffixIndex() *suffixIndex {
	return &suffixIndex{tree: radix.New()}
}

// insert adds a leading-dot suffix and reports whether it was new.
func (s *suffixIndex) insert(suffix string) bool {
	_, updated := s.tree.Insert(utils.Reverse(suffix), suffix)
	return !updated
}

// match returns the first stored suffix matching subject, shortest first.
func (s *suffixIndex) match(subject string) (string, bool) {
	var (
		found string
		ok    bool
	)
	s.tree.WalkPath(utils.Reverse("."+subject), func(_ string, v interface{}) bool {
		found, ok = v.(string), true
		return true
	})
	return found, ok
}

func (s *suffixIndex) len() int { return s.tree.Len() }

// walk visits every stored suffix.
func (s *suffixIndex) walk(fn func(suffix string)) {
	s.tree.Walk(func(_ string, v interface{}) bool {
		fn(v.(string))
		return false
	})
}
