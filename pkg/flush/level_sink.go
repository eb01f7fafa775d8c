package flush

import (
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"regiondb/pkg/codec"
	"regiondb/pkg/memstore"
)

// LevelSink persists flushed entries into a LevelDB table. Keys keep the
// buffer's order: row, column, then inverted version so newer versions sort
// first.
type LevelSink struct {
	db *leveldb.DB
}

func NewLevelSink(dir string) (*LevelSink, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open level store: %w", err)
	}
	return &LevelSink{db: db}, nil
}

func (s *LevelSink) Persist(entries []memstore.Entry) error {
	batch := new(leveldb.Batch)
	for _, e := range entries {
		value := e.Slot.Value
		if e.Slot.Tombstone {
			value = codec.DeleteMarker()
		}
		batch.Put(encodeKey(e.Key), value)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to write flush batch: %w", err)
	}
	return nil
}

func (s *LevelSink) Close() error {
	return s.db.Close()
}

// encodeKey flattens a store key to row 0x00 column 0x00 ^version. The
// big-endian complement makes higher versions compare lower.
func encodeKey(key memstore.StoreKey) []byte {
	out := make([]byte, 0, len(key.Row)+len(key.Column)+10)
	out = append(out, key.Row...)
	out = append(out, 0x00)
	out = append(out, key.Column...)
	out = append(out, 0x00)
	out = binary.BigEndian.AppendUint64(out, ^uint64(key.Version))
	return out
}
