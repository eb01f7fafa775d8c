package memstore

import (
	"bytes"
	"math"
)

// MaxVersion is the largest possible cell version. Because versions sort
// descending, a key carrying MaxVersion is the smallest key of its cell and
// is used as a synthetic seek point for row scans.
const MaxVersion = int64(math.MaxInt64)

// AllVersions asks a lookup for every matching version instead of a count.
const AllVersions = -1

// StoreKey addresses one version of one cell: a row, a column (family plus
// qualifier, already joined by the caller) and a version where larger means
// newer.
type StoreKey struct {
	Row     []byte
	Column  []byte
	Version int64
}

// Compare defines the single total order used by every component: row
// ascending, column ascending, version descending. Within a fixed cell a
// forward scan therefore visits newest to oldest.
func Compare(a, b StoreKey) int {
	if c := bytes.Compare(a.Row, b.Row); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Column, b.Column); c != 0 {
		return c
	}
	switch {
	case a.Version > b.Version:
		return -1
	case a.Version < b.Version:
		return 1
	default:
		return 0
	}
}

// SameCell reports whether two keys share a row and column, ignoring version.
func (k StoreKey) SameCell(o StoreKey) bool {
	return bytes.Equal(k.Row, o.Row) && bytes.Equal(k.Column, o.Column)
}

// CellID is the (row, column) identity of a key with the version stripped.
// It is comparable and usable as a map key.
type CellID struct {
	Row    string
	Column string
}

// Identity projects the key onto its cell identity.
func (k StoreKey) Identity() CellID {
	return CellID{Row: string(k.Row), Column: string(k.Column)}
}

// rowSeekKey is the smallest possible key of a row: empty column, newest
// version. Seeking to it lands on the row's first entry.
func rowSeekKey(row []byte) StoreKey {
	return StoreKey{Row: row, Version: MaxVersion}
}
