// Package codec holds the byte-level encoding of delete markers. The rest of
// the system treats tombstones as a tagged slot and only touches raw marker
// bytes at this boundary (WAL records, durable sinks, the HTTP surface).
package codec

import "bytes"

var deleteMarker = []byte("regiondb::deleted")

// DeleteMarker returns the sentinel value written in place of a deleted cell.
func DeleteMarker() []byte {
	return append([]byte(nil), deleteMarker...)
}

// IsDeleted reports whether value is the delete-marker sentinel.
func IsDeleted(value []byte) bool {
	return bytes.Equal(value, deleteMarker)
}
