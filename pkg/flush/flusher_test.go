package flush

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"regiondb/pkg/codec"
	"regiondb/pkg/memstore"
)

type memorySink struct {
	persisted [][]memstore.Entry
	failures  int
}

func (s *memorySink) Persist(entries []memstore.Entry) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.persisted = append(s.persisted, entries)
	return nil
}

func put(ms *memstore.Memstore, row, col string, version int64, value string) {
	key := memstore.StoreKey{Row: []byte(row), Column: []byte(col), Version: version}
	ms.Upsert(key, memstore.Slot{Value: []byte(value)})
}

func TestFlushDrainsBuffer(t *testing.T) {
	ms := memstore.New()
	put(ms, "r1", "cf:a", 100, "A")
	put(ms, "r2", "cf:a", 100, "B")

	sink := &memorySink{}
	f := NewFlusher(nil, ms, sink, time.Millisecond, 0)

	if err := f.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if len(sink.persisted) != 1 || len(sink.persisted[0]) != 2 {
		t.Fatalf("expected one batch of 2 entries, got %v", sink.persisted)
	}
	if ms.Len() != 0 {
		t.Fatalf("expected empty buffer after flush, got %d entries", ms.Len())
	}
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	sink := &memorySink{}
	f := NewFlusher(nil, memstore.New(), sink, time.Millisecond, 0)

	if err := f.Flush(); err != nil {
		t.Fatalf("flush of empty buffer failed: %v", err)
	}
	if len(sink.persisted) != 0 {
		t.Fatalf("expected no batches, got %d", len(sink.persisted))
	}
}

// A failed persist leaves the pending snapshot in place; the retry picks up
// the same entries.
func TestFlushRetriesPendingSnapshot(t *testing.T) {
	ms := memstore.New()
	put(ms, "r1", "cf:a", 100, "A")

	sink := &memorySink{failures: 1}
	f := NewFlusher(nil, ms, sink, time.Millisecond, 2)

	if err := f.Flush(); err != nil {
		t.Fatalf("flush with retry failed: %v", err)
	}
	if len(sink.persisted) != 1 || len(sink.persisted[0]) != 1 {
		t.Fatalf("expected retried batch of 1 entry, got %v", sink.persisted)
	}
}

func TestFlushGivesUpAfterMaxRetries(t *testing.T) {
	ms := memstore.New()
	put(ms, "r1", "cf:a", 100, "A")

	sink := &memorySink{failures: 10}
	f := NewFlusher(nil, ms, sink, time.Millisecond, 1)

	if err := f.Flush(); err == nil {
		t.Fatal("expected error once retries are exhausted")
	}
	// the snapshot is still pending, so a later flush can succeed
	sink.failures = 0
	if err := f.Flush(); err != nil {
		t.Fatalf("follow-up flush failed: %v", err)
	}
	if ms.Len() != 0 {
		t.Fatalf("expected drained buffer, got %d entries", ms.Len())
	}
}

func TestFlusherTriggerLoop(t *testing.T) {
	ms := memstore.New()
	put(ms, "r1", "cf:a", 100, "A")

	sink := &memorySink{}
	trigger := make(chan struct{}, 1)
	f := NewFlusher(trigger, ms, sink, time.Millisecond, 0)

	done := make(chan error, 1)
	go func() {
		done <- f.Start(context.Background())
	}()

	trigger <- struct{}{}
	deadline := time.After(2 * time.Second)
	for ms.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for triggered flush")
		case <-time.After(5 * time.Millisecond):
		}
	}

	f.Stop()
	if err := <-done; err == nil {
		t.Fatal("expected stop error from flusher loop")
	}
}

func TestLevelSinkRoundTrip(t *testing.T) {
	sink, err := NewLevelSink(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open sink: %v", err)
	}
	defer sink.Close()

	entries := []memstore.Entry{
		{
			Key:  memstore.StoreKey{Row: []byte("r1"), Column: []byte("cf:a"), Version: 100},
			Slot: memstore.Slot{Value: []byte("A")},
		},
		{
			Key:  memstore.StoreKey{Row: []byte("r1"), Column: []byte("cf:a"), Version: 200},
			Slot: memstore.Slot{Tombstone: true},
		},
	}
	if err := sink.Persist(entries); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	got, err := sink.db.Get(encodeKey(entries[0].Key), nil)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("A")) {
		t.Fatalf("expected A, got %q", got)
	}

	tomb, err := sink.db.Get(encodeKey(entries[1].Key), nil)
	if err != nil {
		t.Fatalf("get tombstone failed: %v", err)
	}
	if !codec.IsDeleted(tomb) {
		t.Fatalf("expected delete marker, got %q", tomb)
	}

	// newer versions sort before older ones
	iter := sink.db.NewIterator(nil, nil)
	defer iter.Release()
	if !iter.First() {
		t.Fatal("expected at least one key")
	}
	first := append([]byte(nil), iter.Key()...)
	if !bytes.Equal(first, encodeKey(entries[1].Key)) {
		t.Fatalf("expected version 200 first, got key %q", first)
	}
}
