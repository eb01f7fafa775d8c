package flush

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"regiondb/pkg/memstore"
)

// Buffer is the flushable side of a write buffer: begin a snapshot, read it,
// release it once its contents are durable.
type Buffer interface {
	Snapshot() *memstore.Snapshot
	Release(*memstore.Snapshot) error
}

// Sink persists a sorted batch of entries.
type Sink interface {
	Persist(entries []memstore.Entry) error
}

// Flusher drains the write buffer to a sink when triggered. A failed persist
// is retried against a fresh Snapshot call, which hands back the same pending
// snapshot until it is released.
type Flusher struct {
	buffer Buffer
	sink   Sink
	in     <-chan struct{}

	retryInterval time.Duration
	maxRetries    int

	cancel func()
}

func NewFlusher(in <-chan struct{}, buffer Buffer, sink Sink, retryInterval time.Duration, maxRetries int) *Flusher {
	if retryInterval <= 0 {
		retryInterval = 500 * time.Millisecond
	}
	return &Flusher{
		buffer:        buffer,
		sink:          sink,
		in:            in,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
		cancel:        func() {},
	}
}

func (f *Flusher) Start(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)
	for {
		if err := f.run(ctx); err != nil {
			return err
		}
	}
}

func (f *Flusher) run(ctx context.Context) error {
	select {
	case <-f.in:
		err := f.Flush()
		if err != nil {
			return fmt.Errorf("failed to flush write buffer: %w", err)
		}
	case <-ctx.Done():
		return errors.New("flusher stopped by context")
	}

	return nil
}

// Flush drains the pending snapshot to the sink. Safe to call directly for a
// forced flush.
func (f *Flusher) Flush() error {
	snap := f.buffer.Snapshot()
	if snap.Len() == 0 {
		return nil
	}

	entries := snap.Sorted()

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(f.retryInterval)
			// the pending snapshot survives a failed persist; ask for it again
			snap = f.buffer.Snapshot()
			entries = snap.Sorted()
		}
		if lastErr = f.sink.Persist(entries); lastErr == nil {
			break
		}
		slog.Warn("flush persist failed", "attempt", attempt, "entries", len(entries), "error", lastErr)
	}
	if lastErr != nil {
		return fmt.Errorf("persist failed after %d retries: %w", f.maxRetries, lastErr)
	}

	if err := f.buffer.Release(snap); err != nil {
		// a stale handle here means the snapshot lifecycle was violated
		slog.Error("flush release failed", "error", err)
		return err
	}

	slog.Debug("flushed write buffer", "entries", len(entries))
	return nil
}

func (f *Flusher) Stop() {
	f.cancel()
}
