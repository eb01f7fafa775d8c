package memstore

import "bytes"

// ColumnMatcher decides whether a wildcard scan emits a column. The matching
// logic (family globs, qualifier regexes) lives with the caller; the scanner
// only consults the boolean.
type ColumnMatcher func(column []byte) bool

type scannerState int

const (
	scannerOpen scannerState = iota
	scannerExhausted
	scannerClosed
)

// Scanner iterates distinct rows of a Memstore in ascending order, merging
// active and frozen into one per-row column view. It is single-goroutine; the
// buffer's lock is taken only for the duration of each Next call.
type Scanner struct {
	ms      *Memstore
	version int64
	row     []byte
	columns map[string]struct{} // nil means wildcard
	match   ColumnMatcher
	state   scannerState
}

// RowResult is one scanned row: its key and the visible cell per column.
type RowResult struct {
	Row     []byte
	Columns map[string]Cell
}

// NewScanner opens a scanner positioned before firstRow (exclusive), reading
// versions at or below version. A nil or empty targetColumns means a wildcard
// scan whose emitted columns are filtered through match; an explicit column
// set ignores match.
func (m *Memstore) NewScanner(version int64, targetColumns [][]byte, firstRow []byte, match ColumnMatcher) *Scanner {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &Scanner{
		ms:      m,
		version: version,
		row:     firstRow,
		match:   match,
	}
	if len(targetColumns) > 0 {
		s.columns = make(map[string]struct{}, len(targetColumns))
		for _, col := range targetColumns {
			s.columns[string(col)] = struct{}{}
		}
	}
	if s.match == nil {
		s.match = func([]byte) bool { return true }
	}
	return s
}

// Next advances to the next row with at least one visible column and returns
// it. Rows whose columns are all masked or filtered are skipped, never
// emitted empty. Returns false once the buffer is exhausted or the scanner
// closed.
func (s *Scanner) Next() (RowResult, bool) {
	if s.state != scannerOpen {
		return RowResult{}, false
	}

	s.ms.mu.RLock()
	defer s.ms.mu.RUnlock()

	deletes := make(map[string]int64)
	for {
		next, ok := s.ms.nextRowLocked(s.row)
		if !ok {
			s.state = scannerExhausted
			return RowResult{}, false
		}
		s.row = next

		clear(deletes)
		found := make(map[string]Cell)
		key := StoreKey{Row: next, Version: s.version}
		getFull(s.ms.active, key, s.columns, deletes, found)
		getFull(s.ms.frozen, key, s.columns, deletes, found)

		results := make(map[string]Cell, len(found))
		for col, cell := range found {
			// wildcard mode filters columns only; versions were already
			// handled by the row lookup
			if s.columns == nil && !s.match([]byte(col)) {
				continue
			}
			results[col] = cell
		}
		if len(results) > 0 {
			return RowResult{Row: next, Columns: results}, true
		}
	}
}

// Close shuts the scanner down. It is idempotent; Next on a closed scanner
// reports no more rows without touching the buffers.
func (s *Scanner) Close() {
	s.state = scannerClosed
}

// nextRowLocked returns the smallest row strictly greater than row across
// both maps. Callers must hold the lock.
func (m *Memstore) nextRowLocked(row []byte) ([]byte, bool) {
	a, aok := nextRow(m.active, row)
	b, bok := nextRow(m.frozen, row)
	switch {
	case aok && bok:
		if bytes.Compare(a, b) <= 0 {
			return a, true
		}
		return b, true
	case aok:
		return a, true
	case bok:
		return b, true
	default:
		return nil, false
	}
}

func nextRow(c *cellMap, row []byte) ([]byte, bool) {
	var out []byte
	var ok bool
	// seek with a synthetic newest-version key to land at the row's first
	// entry, then move off it; deletes are not suppressed here
	c.ascendFrom(rowSeekKey(row), func(e Entry) bool {
		if bytes.Compare(e.Key.Row, row) <= 0 {
			return true
		}
		out, ok = e.Key.Row, true
		return false
	})
	return out, ok
}
