package memstore

import (
	"bytes"

	"github.com/google/btree"
)

// candidate tracks what is known about one cell identity while resolving the
// nearest row at or before a target: the best live version found so far and
// the highest tombstone version seen. A tombstone at version T permanently
// masks live versions <= T of the same cell, no matter which source each
// came from.
type candidate struct {
	row     string
	column  string
	version int64

	live         bool
	tombstone    int64
	hasTombstone bool
}

// Candidates accumulates per-cell candidates across source maps. The caller
// folds it left to right over the active map, the frozen map and any external
// on-disk sources, then reads the answer with BestRow.
type Candidates struct {
	tree *btree.BTreeG[candidate]
	live int
}

func NewCandidates() *Candidates {
	return &Candidates{
		tree: btree.NewG(btreeDegree, func(a, b candidate) bool {
			if a.row != b.row {
				return a.row < b.row
			}
			return a.column < b.column
		}),
	}
}

// Len returns the number of live candidates.
func (c *Candidates) Len() int {
	return c.live
}

// observe folds one entry into the accumulator. A live entry is recorded only
// if the identity has no candidate yet and no masking tombstone; within one
// map a forward scan visits a cell newest first, so the first live entry wins
// and older ones must not overwrite it. A tombstone raises the identity's
// mask and evicts a candidate at or below its version.
func (c *Candidates) observe(key StoreKey, tombstone bool) {
	probe := candidate{row: string(key.Row), column: string(key.Column)}
	cur, ok := c.tree.Get(probe)
	if !ok {
		cur = probe
	}
	if tombstone {
		if !cur.hasTombstone || cur.tombstone < key.Version {
			cur.hasTombstone = true
			cur.tombstone = key.Version
		}
		if cur.live && cur.version <= key.Version {
			cur.live = false
			c.live--
		}
	} else {
		if !cur.live && (!cur.hasTombstone || cur.tombstone < key.Version) {
			cur.live = true
			cur.version = key.Version
			c.live++
		}
	}
	c.tree.ReplaceOrInsert(cur)
}

// firstRow returns the smallest row holding a live candidate.
func (c *Candidates) firstRow() ([]byte, bool) {
	var row []byte
	var ok bool
	c.tree.Ascend(func(cd candidate) bool {
		if !cd.live {
			return true
		}
		row, ok = []byte(cd.row), true
		return false
	})
	return row, ok
}

// BestRow returns the greatest row holding at least one live candidate, the
// final answer after every source has been folded in, or false if none.
func (c *Candidates) BestRow() ([]byte, bool) {
	var row []byte
	var ok bool
	c.tree.Descend(func(cd candidate) bool {
		if !cd.live {
			return true
		}
		row, ok = []byte(cd.row), true
		return false
	})
	return row, ok
}

// BestRowCells returns the live candidates of the best row as column to
// version, or nil if there is no live candidate.
func (c *Candidates) BestRowCells() ([]byte, map[string]int64) {
	row, ok := c.BestRow()
	if !ok {
		return nil, nil
	}
	cells := make(map[string]int64)
	c.tree.AscendGreaterOrEqual(candidate{row: string(row)}, func(cd candidate) bool {
		if cd.row != string(row) {
			return false
		}
		if cd.live {
			cells[cd.column] = cd.version
		}
		return true
	})
	return row, cells
}

// RowAtOrBefore folds this buffer's two maps into cand, looking for the
// greatest row at or before target that still has a live version. The caller
// threads the same accumulator across any further sources and extracts the
// answer with BestRow.
func (m *Memstore) RowAtOrBefore(target []byte, cand *Candidates) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rowAtOrBefore(m.active, target, cand)
	rowAtOrBefore(m.frozen, target, cand)
}

func rowAtOrBefore(c *cellMap, target []byte, cand *Candidates) {
	// start at the target row, or at the first known candidate row once one
	// exists; anything between them is already ruled out
	seekRow := target
	if r, ok := cand.firstRow(); ok {
		seekRow = r
	}
	seek := rowSeekKey(seekRow)

	// If the range at or after the seek point begins at or before the target
	// row, the answer lies in that range: walk it forward, folding every
	// entry until the row passes the target.
	if first, ok := c.firstAtOrAfter(seek); ok && bytes.Compare(first.Key.Row, target) <= 0 {
		c.ascendFrom(seek, func(e Entry) bool {
			if bytes.Compare(e.Key.Row, target) > 0 {
				return false
			}
			cand.observe(e.Key, e.Slot.Tombstone)
			return true
		})
		return
	}

	// Otherwise only rows strictly before the seek point can contribute.
	last, ok := c.lastBefore(seek)
	if !ok {
		return
	}

	if cand.Len() == 0 {
		harvestBackward(c, seek, cand)
		return
	}

	// With candidates already in hand, only the last row before the seek
	// point matters: any closer acceptable row would have moved the seek
	// point and been found above.
	c.ascendRange(rowSeekKey(last.Key.Row), seek, func(e Entry) bool {
		cand.observe(e.Key, e.Slot.Tombstone)
		return true
	})
}

// harvestBackward walks rows before the seek point from greatest to
// smallest, folding one whole row at a time, and stops at the first row that
// yields a live candidate. Rows wholly masked by their own tombstones are
// passed over.
func harvestBackward(c *cellMap, seek StoreKey, cand *Candidates) {
	var rowBuf []Entry
	started := false
	var curRow []byte

	// rowBuf holds one row collected in descending order; fold it in
	// ascending (newest-first per cell) order so observe's first-wins rule
	// applies.
	fold := func() bool {
		for i := len(rowBuf) - 1; i >= 0; i-- {
			cand.observe(rowBuf[i].Key, rowBuf[i].Slot.Tombstone)
		}
		return cand.Len() > 0
	}

	done := false
	c.descendBefore(seek, func(e Entry) bool {
		if started && !bytes.Equal(e.Key.Row, curRow) {
			if fold() {
				done = true
				return false
			}
			rowBuf = rowBuf[:0]
		}
		started = true
		curRow = e.Key.Row
		rowBuf = append(rowBuf, e)
		return true
	})
	if !done && len(rowBuf) > 0 {
		fold()
	}
}
