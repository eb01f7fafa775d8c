package region

import (
	"context"
	"sync"
	"time"

	"regiondb/pkg/clock"
	"regiondb/pkg/codec"
	"regiondb/pkg/config"
	"regiondb/pkg/flush"
	"regiondb/pkg/memstore"
	"regiondb/pkg/metrics"
	"regiondb/pkg/wal"
)

type iJournal interface {
	Start(ctx context.Context)
	Stop()

	Append(e wal.Entry)
	Done() <-chan uint64
	Replay(start uint64, callback func(wal.Entry) error) error
}

type iTimeProvider interface {
	Now() time.Time
}

type iClock interface {
	Val() uint64
	Next() uint64
	Set(t uint64)
}

// Region is one contiguous row range: a write buffer fronted by a journal,
// drained to a durable sink when it grows past the flush threshold.
type Region struct {
	tp   iTimeProvider
	jr   iJournal
	seqN iClock

	ms      *memstore.Memstore
	mc      metrics.Collector
	flushCh chan struct{}

	threshold int64
	startRow  []byte

	// serializes append, ack and apply so journal order matches buffer order
	writeMu sync.Mutex

	close func()
}

// Open builds a region from config, replays its journal and starts the
// background flusher and journal writer.
func Open(cfg config.RegionConfig, startRow []byte, sink flush.Sink, tp iTimeProvider, mc metrics.Collector) (*Region, error) {
	journal, err := wal.New(cfg.WALDir, cfg.WALChanBuffSize)
	if err != nil {
		return nil, err
	}

	if tp == nil {
		tp = clock.Wall{}
	}
	if mc == nil {
		mc = metrics.Nop{}
	}

	r := &Region{
		tp:        tp,
		jr:        journal,
		seqN:      clock.NewAtomic(0),
		ms:        memstore.New(),
		mc:        mc,
		flushCh:   make(chan struct{}, 1),
		threshold: cfg.FlushThresholdBytes,
		startRow:  startRow,
	}

	if err := r.restoreFromJournal(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	flusher := flush.NewFlusher(r.flushCh, r.ms, sink, cfg.Flush.RetryInterval, cfg.Flush.MaxRetries)
	go func() {
		// runs until Stop; the returned stop error is expected
		_ = flusher.Start(ctx)
	}()

	r.jr.Start(ctx)

	r.close = func() {
		flusher.Stop()
		r.jr.Stop()
		_ = journal.Close()
	}

	return r, nil
}

func (r *Region) restoreFromJournal() error {
	if r.jr == nil {
		return ErrWALNotInitialized
	}

	return r.jr.Replay(r.seqN.Val()+1, func(entry wal.Entry) error {
		if entry.SeqNum > r.seqN.Val() {
			r.seqN.Set(entry.SeqNum)
		}

		key := memstore.StoreKey{Row: entry.Row, Column: entry.Column, Version: entry.Version}
		slot := memstore.Slot{Value: entry.Value, Tombstone: entry.Tombstone}
		r.ms.Upsert(key, slot)
		return nil
	})
}

// StartRow is the first row this region covers, inclusive. Empty means the
// start of the keyspace.
func (r *Region) StartRow() []byte {
	return r.startRow
}

// Put stores value under (row, column, version). Version 0 means "now".
// Writing the reserved delete marker value records a tombstone instead.
func (r *Region) Put(row, column, value []byte, version int64) (int64, error) {
	if codec.IsDeleted(value) {
		return r.write(row, column, nil, version, true)
	}
	return r.write(row, column, value, version, false)
}

// Delete records a tombstone at (row, column, version).
func (r *Region) Delete(row, column []byte, version int64) (int64, error) {
	return r.write(row, column, nil, version, true)
}

func (r *Region) write(row, column, value []byte, version int64, tombstone bool) (int64, error) {
	if len(row) == 0 {
		return 0, ErrEmptyRow
	}
	if len(column) == 0 {
		return 0, ErrEmptyColumn
	}
	if version == 0 {
		version = r.tp.Now().UnixMilli()
	}

	started := time.Now()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	entryID := r.seqN.Next()
	r.jr.Append(wal.Entry{
		SeqNum:    entryID,
		Version:   version,
		Tombstone: tombstone,
		Row:       row,
		Column:    column,
		Value:     value,
	})
	// wait for the WAL to confirm write
	for id := <-r.jr.Done(); id != entryID; {
		id = <-r.jr.Done()
	}

	key := memstore.StoreKey{Row: row, Column: column, Version: version}
	r.ms.Upsert(key, memstore.Slot{Value: value, Tombstone: tombstone})

	op := "put"
	if tombstone {
		op = "delete"
	}
	r.mc.IncCounter("region_writes_total", map[string]string{"op": op}, 1)
	r.mc.SetGauge("region_buffer_bytes", nil, float64(r.ms.ApproximateSize()))
	r.mc.ObserveHistogram("region_write_seconds", map[string]string{"op": op}, time.Since(started).Seconds())

	if r.ms.ApproximateSize() >= r.threshold {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}

	return version, nil
}

// Get returns up to maxVersions cells of one column, newest first, at or
// below key.Version.
func (r *Region) Get(row, column []byte, version int64, maxVersions int) []memstore.Cell {
	r.mc.IncCounter("region_reads_total", map[string]string{"op": "get"}, 1)
	key := memstore.StoreKey{Row: row, Column: column, Version: version}
	return r.ms.Get(key, maxVersions)
}

// GetRow returns the newest visible cell per column of a row. A nil column
// set means every column.
func (r *Region) GetRow(row []byte, columns [][]byte, version int64) map[string]memstore.Cell {
	r.mc.IncCounter("region_reads_total", map[string]string{"op": "row"}, 1)

	var filter map[string]struct{}
	if len(columns) > 0 {
		filter = make(map[string]struct{}, len(columns))
		for _, col := range columns {
			filter[string(col)] = struct{}{}
		}
	}

	deletes := make(map[string]int64)
	results := make(map[string]memstore.Cell)
	key := memstore.StoreKey{Row: row, Version: version}
	r.ms.GetFull(key, filter, deletes, results)
	return results
}

// ClosestRowBefore finds the latest row at or before target that still has a
// live cell, with the surviving column versions.
func (r *Region) ClosestRowBefore(target []byte) ([]byte, map[string]int64, bool) {
	r.mc.IncCounter("region_reads_total", map[string]string{"op": "closest"}, 1)

	cand := memstore.NewCandidates()
	r.ms.RowAtOrBefore(target, cand)
	if cand.Len() == 0 {
		return nil, nil, false
	}
	row, cells := cand.BestRowCells()
	return row, cells, true
}

// Keys lists the live versions of a cell, or of a whole row when column is
// empty.
func (r *Region) Keys(row, column []byte, version int64, versions int) []memstore.StoreKey {
	key := memstore.StoreKey{Row: row, Column: column, Version: version}
	return r.ms.GetKeys(key, versions)
}

// OpenScanner starts a row scan after firstRow at or below version.
func (r *Region) OpenScanner(version int64, columns [][]byte, firstRow []byte, match memstore.ColumnMatcher) *memstore.Scanner {
	r.mc.IncCounter("region_scanners_total", nil, 1)
	return r.ms.NewScanner(version, columns, firstRow, match)
}

// BufferSize is the approximate byte size of the active write buffer.
func (r *Region) BufferSize() int64 {
	return r.ms.ApproximateSize()
}

func (r *Region) Close() {
	r.close()
}
