package wal

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
)

type seqNum = uint64

var errStopped = errors.New("wal stopped")

// Entry is one journaled mutation: a cell write or a tombstone.
type Entry struct {
	SeqNum    uint64
	Version   int64
	Tombstone bool
	Row       []byte
	Column    []byte
	Value     []byte
}

// WAL implements write-ahead logging. Appends go through a channel to a
// single writer goroutine; acknowledged sequence numbers come back on Done.
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	filePath string

	inputCh chan Entry
	doneCh  chan seqNum

	wg     sync.WaitGroup
	cancel func()
}

// New creates a new WAL instance backed by dir/wal.log.
func New(dir string, chanBuff int) (*WAL, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty WAL dir")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	filePath := filepath.Join(dir, "wal.log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	if chanBuff < 1 {
		chanBuff = 1
	}
	return &WAL{
		file:     file,
		writer:   bufio.NewWriter(file),
		filePath: filePath,
		inputCh:  make(chan Entry, chanBuff),
		doneCh:   make(chan seqNum, chanBuff),
		cancel:   func() {},
	}, nil
}

// Start launches the writer goroutine. Entries appended before Start sit in
// the channel buffer until it runs.
func (w *WAL) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		for {
			err := w.run(ctx)
			switch {
			case errors.Is(err, errStopped):
				return
			case err != nil:
				panic("wal writer error: " + err.Error())
			}
		}
	}()
}

func (w *WAL) run(ctx context.Context) error {
	select {
	case entry := <-w.inputCh:
		if err := w.writeFile(entry); err != nil {
			return fmt.Errorf("failed to handle input: %w", err)
		}
	case <-ctx.Done():
		return errStopped
	}

	return nil
}

// Stop terminates the writer goroutine and closes the channels.
func (w *WAL) Stop() {
	w.cancel()
	w.wg.Wait()
	close(w.inputCh)
	close(w.doneCh)
}

func (w *WAL) Append(entry Entry) {
	w.inputCh <- entry
}

// Done delivers the sequence number of each durably written entry.
func (w *WAL) Done() <-chan seqNum {
	return w.doneCh
}

// called by the writer goroutine for each appended entry
func (w *WAL) writeFile(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writeEntry(entry); err != nil {
		return fmt.Errorf("failed to write WAL entry: %w", err)
	}

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}

	w.doneCh <- entry.SeqNum

	return nil
}

// Replay reads the log from the beginning and hands every entry with
// SeqNum >= start to callback, in append order.
func (w *WAL) Replay(start uint64, callback func(Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL before replay: %w", err)
	}

	file, err := os.Open(w.filePath)
	if err != nil {
		return fmt.Errorf("failed to open WAL for reading: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Warn("failed to close WAL read file", "error", cerr)
		}
	}()

	reader := bufio.NewReader(file)

	for {
		entry, err := readEntry(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read WAL entry: %w", err)
		}
		if entry.SeqNum < start {
			continue
		}

		if err := callback(entry); err != nil {
			return fmt.Errorf("WAL replay callback failed: %w", err)
		}
	}

	return nil
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer != nil {
		if err := w.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush WAL on close: %w", err)
		}
		w.writer = nil
	}

	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close WAL file: %w", err)
		}
		w.file = nil
	}

	return nil
}

// writeEntry serializes a single entry: seqnum, version, tombstone flag,
// then length-prefixed row, column and value.
func (w *WAL) writeEntry(entry Entry) error {
	if w.writer == nil {
		return fmt.Errorf("WAL writer is nil")
	}

	if err := binary.Write(w.writer, binary.LittleEndian, entry.SeqNum); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.LittleEndian, entry.Version); err != nil {
		return err
	}

	var flags uint8
	if entry.Tombstone {
		flags = 1
	}
	if err := binary.Write(w.writer, binary.LittleEndian, flags); err != nil {
		return err
	}

	for _, field := range [][]byte{entry.Row, entry.Column, entry.Value} {
		if len(field) > math.MaxUint32 {
			return fmt.Errorf("field too large: %d", len(field))
		}
		if err := binary.Write(w.writer, binary.LittleEndian, uint32(len(field))); err != nil {
			return err
		}
		if _, err := w.writer.Write(field); err != nil {
			return err
		}
	}

	return nil
}

// readEntry reads a single entry from the WAL
func readEntry(reader *bufio.Reader) (Entry, error) {
	var entry Entry

	if err := binary.Read(reader, binary.LittleEndian, &entry.SeqNum); err != nil {
		return entry, err
	}
	if err := binary.Read(reader, binary.LittleEndian, &entry.Version); err != nil {
		return entry, err
	}

	var flags uint8
	if err := binary.Read(reader, binary.LittleEndian, &flags); err != nil {
		return entry, err
	}
	entry.Tombstone = flags&1 != 0

	for _, field := range []*[]byte{&entry.Row, &entry.Column, &entry.Value} {
		var length uint32
		if err := binary.Read(reader, binary.LittleEndian, &length); err != nil {
			return entry, err
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return entry, err
		}
		*field = buf
	}

	return entry, nil
}
