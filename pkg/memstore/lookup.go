package memstore

import "bytes"

// Get returns up to maxVersions live values for the cell addressed by key,
// newest first, starting at key.Version and going older. Active results come
// before frozen results. A tombstone hides only its own version: older live
// versions of the cell stay visible. Pass AllVersions for no limit.
//
// This per-version masking is deliberately weaker than GetFull's
// newer-masks-older rule; the two are distinct contracts.
func (m *Memstore) Get(key StoreKey, maxVersions int) []Cell {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := getVersions(m.active, key, maxVersions)
	remaining := maxVersions
	if maxVersions != AllVersions {
		remaining = maxVersions - len(results)
	}
	if maxVersions == AllVersions || remaining > 0 {
		results = append(results, getVersions(m.frozen, key, remaining)...)
	}
	return results
}

func getVersions(c *cellMap, key StoreKey, limit int) []Cell {
	if limit == 0 {
		return nil
	}
	var out []Cell
	c.ascendFrom(key, func(e Entry) bool {
		// ordering groups a cell's versions together, so the first foreign
		// identity ends the scan
		if !e.Key.SameCell(key) {
			return false
		}
		if e.Slot.Tombstone {
			return true
		}
		out = append(out, Cell{Value: e.Slot.Value, Version: e.Key.Version})
		return limit == AllVersions || len(out) < limit
	})
	return out
}

// GetFull collects every column of key.Row visible at or below key.Version
// into results, walking active then frozen with the same accumulators. A
// tombstone at version T suppresses all versions <= T of its column,
// including ones found later in the frozen map. Pass columns == nil for all
// columns. deletes carries the highest tombstone version seen per column and
// must be shared across calls that merge further sources.
func (m *Memstore) GetFull(key StoreKey, columns map[string]struct{}, deletes map[string]int64, results map[string]Cell) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	getFull(m.active, key, columns, deletes, results)
	getFull(m.frozen, key, columns, deletes, results)
}

func getFull(c *cellMap, key StoreKey, columns map[string]struct{}, deletes map[string]int64, results map[string]Cell) {
	c.ascendFrom(rowSeekKey(key.Row), func(e Entry) bool {
		if !bytes.Equal(e.Key.Row, key.Row) {
			// ordering guarantee: once past the target row, nothing matches
			return false
		}
		col := string(e.Key.Column)
		if _, done := results[col]; done {
			return true
		}
		if e.Key.Version > key.Version {
			return true
		}
		if columns != nil {
			if _, wanted := columns[col]; !wanted {
				return true
			}
		}
		if e.Slot.Tombstone {
			if ts, ok := deletes[col]; !ok || ts < e.Key.Version {
				deletes[col] = e.Key.Version
			}
		} else if ts, ok := deletes[col]; !ok || ts < e.Key.Version {
			results[col] = Cell{Value: e.Slot.Value, Version: e.Key.Version}
		}
		return true
	})
}

// GetKeys returns the keys of live entries matching origin, newest first,
// active before frozen. With a non-empty column it matches origin's exact
// cell at or below origin.Version. With an empty column it matches the whole
// row, comparing only by version (whole-row version enumeration). versions
// limits the count; AllVersions returns everything. Tombstoned entries are
// skipped per version, as in Get.
func (m *Memstore) GetKeys(origin StoreKey, versions int) []StoreKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := getKeys(m.active, origin, versions)
	remaining := versions
	if versions != AllVersions {
		remaining = versions - len(results)
	}
	if versions == AllVersions || remaining > 0 {
		results = append(results, getKeys(m.frozen, origin, remaining)...)
	}
	return results
}

func getKeys(c *cellMap, origin StoreKey, versions int) []StoreKey {
	if versions == 0 {
		return nil
	}
	rowMode := len(origin.Column) == 0
	var out []StoreKey
	c.ascendFrom(origin, func(e Entry) bool {
		if rowMode {
			if !bytes.Equal(e.Key.Row, origin.Row) {
				return false
			}
			// newer than the origin version: skip down to the wanted ones
			if e.Key.Version > origin.Version {
				return true
			}
		} else if !e.Key.SameCell(origin) {
			return false
		}
		if e.Slot.Tombstone {
			return true
		}
		out = append(out, e.Key)
		return versions == AllVersions || len(out) < versions
	})
	return out
}
