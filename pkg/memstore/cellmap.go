package memstore

import "github.com/google/btree"

const btreeDegree = 32

// cellMap is an ordered mapping from StoreKey to Slot backed by a B-tree.
// It is not safe for concurrent use; the Memstore lock guards every access.
type cellMap struct {
	tree *btree.BTreeG[Entry]
}

func newCellMap() *cellMap {
	return &cellMap{
		tree: btree.NewG(btreeDegree, func(a, b Entry) bool {
			return Compare(a.Key, b.Key) < 0
		}),
	}
}

func (c *cellMap) put(e Entry) (Entry, bool) {
	return c.tree.ReplaceOrInsert(e)
}

func (c *cellMap) get(k StoreKey) (Slot, bool) {
	e, ok := c.tree.Get(Entry{Key: k})
	if !ok {
		return Slot{}, false
	}
	return e.Slot, true
}

func (c *cellMap) len() int {
	return c.tree.Len()
}

// ascendFrom visits entries >= k in ascending order while fn returns true.
func (c *cellMap) ascendFrom(k StoreKey, fn func(Entry) bool) {
	c.tree.AscendGreaterOrEqual(Entry{Key: k}, fn)
}

// ascendRange visits entries in [from, to) in ascending order.
func (c *cellMap) ascendRange(from, to StoreKey, fn func(Entry) bool) {
	c.tree.AscendRange(Entry{Key: from}, Entry{Key: to}, fn)
}

// descendBefore visits entries strictly < k in descending order.
func (c *cellMap) descendBefore(k StoreKey, fn func(Entry) bool) {
	c.tree.DescendLessOrEqual(Entry{Key: k}, func(e Entry) bool {
		if Compare(e.Key, k) == 0 {
			return true
		}
		return fn(e)
	})
}

func (c *cellMap) firstAtOrAfter(k StoreKey) (Entry, bool) {
	var out Entry
	var ok bool
	c.ascendFrom(k, func(e Entry) bool {
		out, ok = e, true
		return false
	})
	return out, ok
}

func (c *cellMap) lastBefore(k StoreKey) (Entry, bool) {
	var out Entry
	var ok bool
	c.descendBefore(k, func(e Entry) bool {
		out, ok = e, true
		return false
	})
	return out, ok
}

func (c *cellMap) each(fn func(Entry) bool) {
	c.tree.Ascend(fn)
}
