package region

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/zhangyunhao116/skipmap"

	"regiondb/pkg/config"
	"regiondb/pkg/flush"
	"regiondb/pkg/metrics"
)

// Manager owns the regions of one node, keyed by start row. Lookups walk the
// map in row order to find the region covering a key.
type Manager struct {
	cfg  config.RegionConfig
	sink flush.Sink
	tp   iTimeProvider
	mc   metrics.Collector

	regions *skipmap.FuncMap[string, *Region]

	// guards region creation so two Add calls cannot open the same WAL dir
	mu sync.Mutex
}

func NewManager(cfg config.RegionConfig, sink flush.Sink, tp iTimeProvider, mc metrics.Collector) *Manager {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Manager{
		cfg:  cfg,
		sink: sink,
		tp:   tp,
		mc:   mc,
		regions: skipmap.NewFunc[string, *Region](func(a, b string) bool {
			return a < b
		}),
	}
}

// Add opens a region starting at startRow. An empty startRow covers the
// beginning of the keyspace.
func (m *Manager) Add(startRow []byte) (*Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := string(startRow)
	if existing, ok := m.regions.Load(key); ok {
		return existing, nil
	}

	cfg := m.cfg
	cfg.WALDir = filepath.Join(m.cfg.WALDir, regionDirName(startRow))

	r, err := Open(cfg, startRow, m.sink, m.tp, m.mc)
	if err != nil {
		return nil, fmt.Errorf("failed to open region %q: %w", startRow, err)
	}

	m.regions.Store(key, r)
	m.mc.SetGauge("regions_total", nil, float64(m.regions.Len()))
	return r, nil
}

// Locate returns the region whose range contains row: the one with the
// greatest start row at or below it.
func (m *Manager) Locate(row []byte) (*Region, error) {
	target := string(row)

	var found *Region
	m.regions.Range(func(start string, r *Region) bool {
		if start > target {
			return false
		}
		found = r
		return true
	})
	if found == nil {
		return nil, ErrNoRegion
	}
	return found, nil
}

// StartRows lists the start row of every open region, in order.
func (m *Manager) StartRows() [][]byte {
	out := make([][]byte, 0, m.regions.Len())
	m.regions.Range(func(start string, _ *Region) bool {
		out = append(out, []byte(start))
		return true
	})
	return out
}

func (m *Manager) Len() int {
	return m.regions.Len()
}

func (m *Manager) Close() {
	m.regions.Range(func(_ string, r *Region) bool {
		r.Close()
		return true
	})
}

// regionDirName keeps WAL directories filesystem-safe for arbitrary row
// bytes.
func regionDirName(startRow []byte) string {
	if len(startRow) == 0 {
		return "root"
	}
	return hex.EncodeToString(startRow)
}
