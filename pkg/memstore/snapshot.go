package memstore

import (
	"errors"
	"log/slog"
)

// ErrStaleSnapshot is returned by Release when the handle does not match the
// currently installed snapshot: a stale handle, a double release, or a
// release without a prior Snapshot call. It signals a coordination bug in the
// flush path and must abort the flush attempt in progress.
var ErrStaleSnapshot = errors.New("regiondb: stale snapshot handle")

// Snapshot is the handle to the frozen map handed to the flush coordinator.
// It is the only sanctioned escape of internal state: readable by the flusher,
// writable by nobody, and invalidated by Release or by the next rotation.
type Snapshot struct {
	gen     uint64
	entries *cellMap
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int {
	return s.entries.len()
}

// Sorted returns the snapshot's entries in key order, ready to persist.
func (s *Snapshot) Sorted() []Entry {
	out := make([]Entry, 0, s.entries.len())
	s.entries.each(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Snapshot atomically rotates the active map into the frozen slot and
// installs a fresh empty active, returning a handle for the flush
// coordinator. If a snapshot is already outstanding (a prior flush attempt
// crashed or is being retried) the existing handle is returned unchanged, so
// repeated calls are safe and never lose or duplicate pending data. The
// returned snapshot may be empty if there was nothing to rotate.
//
// Must be followed, eventually, by Release with the returned handle.
func (m *Memstore) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen.len() > 0 {
		slog.Debug("returning existing snapshot, prior flush still pending",
			"entries", m.frozen.len())
		return &Snapshot{gen: m.gen, entries: m.frozen}
	}
	if m.active.len() > 0 {
		m.gen++
		m.frozen = m.active
		m.active = newCellMap()
		m.size.Store(0)
	}
	return &Snapshot{gen: m.gen, entries: m.frozen}
}

// Release discards the frozen snapshot once the flush coordinator has
// durably persisted it. The handle's generation ticket must match the
// currently installed snapshot; otherwise ErrStaleSnapshot is returned and
// nothing is mutated. Releasing an empty snapshot is a no-op.
func (m *Memstore) Release(s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s == nil || s.gen != m.gen || s.entries != m.frozen {
		return ErrStaleSnapshot
	}
	if m.frozen.len() > 0 {
		m.frozen = newCellMap()
		// consume the ticket so the handle cannot be released twice
		m.gen++
	}
	return nil
}
