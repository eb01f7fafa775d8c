package server

import (
	"sync"

	"github.com/zhangyunhao116/skipmap"

	"regiondb/pkg/clock"
	"regiondb/pkg/memstore"
)

// scannerHandle serializes access to one scanner: the scanner itself is
// single-goroutine, but concurrent HTTP requests may page the same id.
type scannerHandle struct {
	mu sync.Mutex
	sc *memstore.Scanner
}

func (h *scannerHandle) next() (memstore.RowResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sc.Next()
}

func (h *scannerHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sc.Close()
}

// scannerRegistry hands out ids for open scanners so clients can page
// through results across requests.
type scannerRegistry struct {
	ids      *clock.AtomicClock
	scanners *skipmap.FuncMap[uint64, *scannerHandle]
}

func newScannerRegistry() *scannerRegistry {
	return &scannerRegistry{
		ids: clock.NewAtomic(0),
		scanners: skipmap.NewFunc[uint64, *scannerHandle](func(a, b uint64) bool {
			return a < b
		}),
	}
}

func (r *scannerRegistry) add(sc *memstore.Scanner) uint64 {
	id := r.ids.Next()
	r.scanners.Store(id, &scannerHandle{sc: sc})
	return id
}

func (r *scannerRegistry) get(id uint64) (*scannerHandle, bool) {
	return r.scanners.Load(id)
}

func (r *scannerRegistry) close(id uint64) bool {
	h, ok := r.scanners.Load(id)
	if !ok {
		return false
	}
	h.close()
	r.scanners.Delete(id)
	return true
}
