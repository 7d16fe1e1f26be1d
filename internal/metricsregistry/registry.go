// Package metricsregistry is the agent's in-memory keyed store of latest
// numeric samples: at most one entry per metric name, last-write-wins,
// evicted by age rather than by an LRU policy.
package metricsregistry

import (
	"sort"
	"sync"
	"time"

	"github.com/vitaliisemenov/hostagent/internal/types"
)

// entry is the registry's internal representation of C3's MetricEntry.
type entry struct {
	value       float64
	labels      map[string]string
	lastUpdated time.Time
}

// Registry is a concurrency-safe, single-mutex map of name -> entry. A
// single mutex (rather than a sharded equivalent) is sufficient here: the
// registry is written by the data-plane exporters and the supervisor's
// tickers and read by the introspection server, not a high-fanout hot path.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Record inserts or replaces the entry for name, refreshing lastUpdated to
// now. Repeated calls with identical arguments are idempotent: the
// registry state after two identical Record calls equals the state after
// one.
func (r *Registry) Record(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	labelsCopy := make(map[string]string, len(labels))
	for k, v := range labels {
		labelsCopy[k] = v
	}

	r.entries[name] = entry{value: value, labels: labelsCopy, lastUpdated: time.Now()}
}

// Snapshot returns a stable view of every entry with a single "now"
// timestamp applied uniformly, sorted by name for deterministic output.
func (r *Registry) Snapshot() []types.MetricSample {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	samples := make([]types.MetricSample, 0, len(r.entries))
	for name, e := range r.entries {
		samples = append(samples, types.MetricSample{
			Name:      name,
			Value:     e.value,
			Labels:    e.labels,
			Timestamp: now,
		})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples
}

// EvictOlderThan deletes every entry whose lastUpdated is at or before
// now-maxAge, leaving younger entries untouched.
func (r *Registry) EvictOlderThan(maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for name, e := range r.entries {
		if e.lastUpdated.Before(cutoff) || e.lastUpdated.Equal(cutoff) {
			delete(r.entries, name)
		}
	}
}

// Count returns the number of distinct metric names currently held.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
