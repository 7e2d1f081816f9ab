package runtime

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// TrafficStats summarises what a mediator forwarded to its transport.
type TrafficStats struct {
	Inbound         uint64            `json:"inbound"`
	Forwarded       uint64            `json:"forwarded"`
	Failed          uint64            `json:"failed"`
	LastForwardedAt time.Time         `json:"last_forwarded_at,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	Latency         LatencyMetrics    `json:"publish_latency"`
	Throughput      ThroughputMetrics `json:"throughput"`
}

// LatencyMetrics are percentiles over the most recent transport publishes.
type LatencyMetrics struct {
	SampleSize int   `json:"sample_size"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	AverageNs  int64 `json:"avg_ns"`
	LastNs     int64 `json:"last_ns"`
}

// ThroughputMetrics covers forwards in the last minute.
type ThroughputMetrics struct {
	Count         int     `json:"count"`
	WindowSeconds float64 `json:"window_seconds"`
	PerSecond     float64 `json:"per_second"`
}

type trafficRecorder struct {
	mu         sync.Mutex
	stats      TrafficStats
	latency    *latencyWindow
	throughput *throughputWindow
	now        func() time.Time
}

func newTrafficRecorder() *trafficRecorder {
	return &trafficRecorder{
		latency:    newLatencyWindow(latencySampleSize),
		throughput: newThroughputWindow(throughputWindowSize),
		now:        time.Now,
	}
}

func (r *trafficRecorder) inbound() {
	r.mu.Lock()
	r.stats.Inbound++
	r.mu.Unlock()
}

func (r *trafficRecorder) forwarded(d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.latency.Add(d)
	r.throughput.Add(now)
	if err != nil {
		r.stats.Failed++
		r.stats.LastError = err.Error()
		return
	}
	r.stats.Forwarded++
	r.stats.LastForwardedAt = now
}

func (r *trafficRecorder) snapshot() TrafficStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.stats
	out.Latency = r.latency.Snapshot()
	out.Throughput = r.throughput.Snapshot(r.now())
	return out
}

// latencyWindow is a ring of the last N durations.
type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	m := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return m
	}
	// Ring order does not matter once sorted.
	samples := append([]int64(nil), lw.samples[:lw.filled]...)
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var sum int64
	for _, v := range samples {
		sum += v
	}
	m.SampleSize = lw.filled
	m.P50Ns = percentile(samples, 0.50)
	m.P95Ns = percentile(samples, 0.95)
	m.P99Ns = percentile(samples, 0.99)
	m.AverageNs = sum / int64(len(samples))
	return m
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, q float64) int64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lower, upper := int(math.Floor(pos)), int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + int64(float64(sorted[upper]-sorted[lower])*frac)
}

// throughputWindow keeps the timestamps inside a sliding horizon.
type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{horizon: horizon, samples: make([]time.Time, 0, 64)}
}

func (tw *throughputWindow) Add(now time.Time) {
	tw.samples = append(tw.samples, now)
	tw.trim(now)
}

func (tw *throughputWindow) trim(now time.Time) {
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		tw.samples = append(tw.samples[:0], tw.samples[idx:]...)
	}
}

func (tw *throughputWindow) Snapshot(now time.Time) ThroughputMetrics {
	tw.trim(now)
	if len(tw.samples) == 0 {
		return ThroughputMetrics{}
	}
	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	return ThroughputMetrics{
		Count:         len(tw.samples),
		WindowSeconds: span.Seconds(),
		PerSecond:     float64(len(tw.samples)) / span.Seconds(),
	}
}
