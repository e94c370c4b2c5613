// Package monitoring holds the in-process latency sampler behind
// /debug/stats and the pprof plumbing for the admin listener. Prometheus
// metrics live in pkg/metrics; this package is for the quick look.
package monitoring

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	pp "net/http/pprof"
)

// Metrics keeps a ring of the most recent request durations. The API
// middleware feeds it; Snapshot reads it without stopping the writers for
// long.
type Metrics struct {
	mu    sync.Mutex
	ring  []float64 // milliseconds
	next  int
	total int64
}

// NewMetrics sizes the ring. Capacity bounds how far back the quantiles
// look; non-positive falls back to 256 samples.
func NewMetrics(capacity int) *Metrics {
	if capacity <= 0 {
		capacity = 256
	}
	return &Metrics{ring: make([]float64, capacity)}
}

// Observe records one request duration in milliseconds.
func (m *Metrics) Observe(ms float64) {
	m.mu.Lock()
	m.ring[m.next] = ms
	m.next = (m.next + 1) % len(m.ring)
	m.total++
	m.mu.Unlock()
}

// Snapshot returns the lifetime request count and the average, median and
// tail latencies over the retained window.
func (m *Metrics) Snapshot() (count int64, avg, p50, p95 float64) {
	m.mu.Lock()
	filled := len(m.ring)
	if m.total < int64(filled) {
		filled = m.next
	}
	window := make([]float64, filled)
	copy(window, m.ring[:filled])
	count = m.total
	m.mu.Unlock()

	if len(window) == 0 {
		return count, 0, 0, 0
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	avg = sum / float64(len(window))
	sort.Float64s(window)
	p50 = window[(len(window)*50)/100]
	p95 = window[(len(window)*95)/100]
	return count, avg, p50, p95
}

// MetricsHandler serves the sampler plus runtime counters as JSON. It is
// what you curl when Grafana is down.
func MetricsHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		count, avg, p50, p95 := m.Snapshot()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"time":             time.Now().Format(time.RFC3339),
			"requests_total":   count,
			"duration_ms_avg":  avg,
			"duration_ms_p50":  p50,
			"duration_ms_p95":  p95,
			"goroutines":       runtime.NumGoroutine(),
			"mem_alloc_bytes":  ms.Alloc,
			"heap_inuse_bytes": ms.HeapInuse,
			"gc_num":           ms.NumGC,
		})
	})
}

// RegisterPprof mounts the standard pprof handlers under /debug/pprof/ on
// the given mux. The admin listener is never exposed publicly.
func RegisterPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pp.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pp.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pp.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pp.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pp.Trace)
	for _, name := range []string{"goroutine", "heap", "block", "mutex"} {
		mux.Handle("/debug/pprof/"+name, pp.Handler(name))
	}
}

// EnableProfiling turns block and mutex profiling on or off. Both carry a
// runtime cost, so they stay off unless the config asks for them.
func EnableProfiling(enabled bool) {
	if enabled {
		runtime.SetBlockProfileRate(1)
		runtime.SetMutexProfileFraction(5)
		return
	}
	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
}
