package memstore

// Slot is the value side of a buffer entry: either a live value or a
// tombstone marking the cell deleted as of the entry's version. The raw
// delete-marker bytes are translated to and from this tag at the codec
// boundary, never here.
type Slot struct {
	Value     []byte
	Tombstone bool
}

// Entry is one key/slot pair as stored in a buffer.
type Entry struct {
	Key  StoreKey
	Slot Slot
}

// Cell is a single versioned value returned by lookups.
type Cell struct {
	Value   []byte
	Version int64
}

func entrySize(e Entry) int64 {
	const versionSize = 8
	return int64(len(e.Key.Row)+len(e.Key.Column)+len(e.Slot.Value)) + versionSize
}
