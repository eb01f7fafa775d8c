// Package memstore implements the in-memory multiversion write buffer of a
// region: the active map absorbing edits, the frozen snapshot awaiting flush,
// and the lookup, nearest-row and scan algorithms that merge the two.
package memstore

import (
	"sync"
	"sync/atomic"
)

// Memstore holds a region's pending edits. Two ordered maps back it: active
// receives all inserts, frozen is the at-most-one outstanding snapshot being
// flushed. A single reader/writer lock guards both: lookups and scans share
// the read lock, while inserts and structural operations (snapshot rotation
// and release) take the write lock, because the backing trees are not safe
// for concurrent mutation. An insert therefore either completes fully before
// a rotation and lands in the new frozen, or begins after it and lands only
// in the new active. Never both, never neither.
type Memstore struct {
	mu     sync.RWMutex
	active *cellMap
	frozen *cellMap

	// snapshot generation ticket; see snapshot.go
	gen uint64

	size atomic.Int64
}

func New() *Memstore {
	return &Memstore{
		active: newCellMap(),
		frozen: newCellMap(),
	}
}

// Upsert writes one entry into the active map. It is a total operation: it
// cannot fail and has no side effect beyond the mapping update. A tombstone
// slot occupies a real entry at its own version and does not remove anything.
// Takes the write lock: the tree mutation must not run concurrently with
// readers.
func (m *Memstore) Upsert(key StoreKey, slot Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := Entry{Key: key, Slot: slot}
	old, replaced := m.active.put(e)
	delta := entrySize(e)
	if replaced {
		delta -= entrySize(old)
	}
	m.size.Add(delta)
}

// IsDeleted reports whether the exact key is present in the active map as a
// tombstone. The frozen snapshot is deliberately not consulted; callers that
// need full visibility go through Get.
func (m *Memstore) IsDeleted(key StoreKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slot, ok := m.active.get(key)
	return ok && slot.Tombstone
}

// ApproximateSize returns the approximate byte size of the active map. It
// resets to zero on every snapshot rotation.
func (m *Memstore) ApproximateSize() int64 {
	return m.size.Load()
}

// Len returns the total number of entries across active and frozen.
func (m *Memstore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.active.len() + m.frozen.len()
}
