package storage

import (
	"github.com/tidwall/btree"
	"wisc.edu/cs564/badgerdb/common"
)

// freePageSet is an ordered set of reusable page ids, backed by
// github.com/tidwall/btree the same way indexing.MemBTreeIndex in the
// reference course engine wraps btree.BTreeG for its in-memory B+-tree
// index. DeletePage returns an id to the set; AllocatePage prefers the
// smallest free id over growing the file, so a churn-heavy workload
// (insert/delete/insert...) reuses space instead of growing without bound.
//
// freePageSet has no lock of its own: every method call in this file is
// already made while the owning DiskFile holds its own mu, so a second
// lock here would just be redundant bookkeeping, not independent
// protection.
type freePageSet struct {
	tree *btree.BTreeG[common.PageID]
}

func newFreePageSet() *freePageSet {
	less := func(a, b common.PageID) bool { return a < b }
	return &freePageSet{tree: btree.NewBTreeG(less)}
}

// release marks id as free for reuse.
func (s *freePageSet) release(id common.PageID) {
	s.tree.Set(id)
}

// take removes and returns the smallest free id, or false if none is free.
func (s *freePageSet) take() (common.PageID, bool) {
	min, ok := s.tree.Min()
	if !ok {
		return 0, false
	}
	s.tree.Delete(min)
	return min, true
}

// discard removes id from the free set without returning it, reporting
// whether it had been present. Used when a previously freed id becomes
// permanently unavailable -- e.g. the file has been shrunk past it -- so it
// can never be handed out by a later take().
func (s *freePageSet) discard(id common.PageID) bool {
	_, deleted := s.tree.Delete(id)
	return deleted
}
