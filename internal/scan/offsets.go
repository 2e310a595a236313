package scan

import "github.com/google/btree"

// offsetSet is the ordered set of sector offsets already claimed by an
// entry.
type offsetSet struct {
	t *btree.BTreeG[int64]
}

func newOffsetSet() *offsetSet {
	return &offsetSet{t: btree.NewOrderedG[int64](32)}
}

// insert adds off and reports whether it was not already present.
func (s *offsetSet) insert(off int64) bool {
	_, found := s.t.ReplaceOrInsert(off)
	return !found
}

func (s *offsetSet) has(off int64) bool {
	return s.t.Has(off)
}

func (s *offsetSet) len() int {
	return s.t.Len()
}

// nextFree returns the smallest offset >= off, on the step grid, that is not
// a member. Runs of consecutive claimed sectors are skipped in one pass.
func (s *offsetSet) nextFree(off, step int64) int64 {
	want := off
	s.t.AscendGreaterOrEqual(off, func(item int64) bool {
		if item != want {
			return false
		}
		want += step
		return true
	})
	return want
}
