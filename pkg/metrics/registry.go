package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Registry is an in-process Collector. Series are keyed by name plus the
// sorted label set; Snapshot returns a copy for the metrics endpoint.
// Histogram observations surface as _count and _sum counter series.
type Registry struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
}

func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
	}
}

func (r *Registry) IncCounter(name string, labels map[string]string, delta float64) {
	key := seriesKey(name, labels)
	r.mu.Lock()
	r.counters[key] += delta
	r.mu.Unlock()
}

func (r *Registry) SetGauge(name string, labels map[string]string, value float64) {
	key := seriesKey(name, labels)
	r.mu.Lock()
	r.gauges[key] = value
	r.mu.Unlock()
}

func (r *Registry) ObserveHistogram(name string, labels map[string]string, value float64) {
	countKey := seriesKey(name+"_count", labels)
	sumKey := seriesKey(name+"_sum", labels)
	r.mu.Lock()
	r.counters[countKey]++
	r.counters[sumKey] += value
	r.mu.Unlock()
}

// Snapshot returns the current counter and gauge series.
func (r *Registry) Snapshot() (counters, gauges map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counters = make(map[string]float64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	gauges = make(map[string]float64, len(r.gauges))
	for k, v := range r.gauges {
		gauges[k] = v
	}
	return counters, gauges
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}
