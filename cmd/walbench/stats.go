package main

import (
	"fmt"
	"math"
	"time"

	"github.com/ls4154/gowal/db"
)

// latencyHistogram counts observations in buckets whose upper bounds grow
// in a 1-2-5 series from 5us to 1s.
type latencyHistogram struct {
	bounds []time.Duration
	counts []uint64
	total  uint64
	max    time.Duration
}

var histogramBounds = func() []time.Duration {
	var out []time.Duration
	for d := time.Microsecond; d <= time.Second; d *= 10 {
		for _, m := range []time.Duration{1, 2, 5} {
			if b := d * m; b >= 5*time.Microsecond && b <= time.Second {
				out = append(out, b)
			}
		}
	}
	return out
}()

func newLatencyHistogram() latencyHistogram {
	return latencyHistogram{
		bounds: histogramBounds,
		counts: make([]uint64, len(histogramBounds)+1),
	}
}

func (h *latencyHistogram) Observe(d time.Duration) {
	h.total++
	h.max = max(h.max, d)
	i := 0
	for i < len(h.bounds) && d > h.bounds[i] {
		i++
	}
	h.counts[i]++
}

func (h *latencyHistogram) Merge(other latencyHistogram) {
	if len(h.counts) != len(other.counts) {
		return
	}
	h.total += other.total
	h.max = max(h.max, other.max)
	for i, c := range other.counts {
		h.counts[i] += c
	}
}

// percentile returns the upper bound of the bucket holding the p-th
// percentile; the overflow bucket reports the largest observation.
func (h latencyHistogram) percentile(p float64) time.Duration {
	if h.total == 0 {
		return 0
	}
	target := max(uint64(math.Ceil(p/100.0*float64(h.total))), 1)
	var seen uint64
	for i, c := range h.counts {
		seen += c
		if seen < target {
			continue
		}
		if i < len(h.bounds) {
			return h.bounds[i]
		}
		break
	}
	return h.max
}

func (h latencyHistogram) P50() time.Duration { return h.percentile(50) }
func (h latencyHistogram) P95() time.Duration { return h.percentile(95) }
func (h latencyHistogram) P99() time.Duration { return h.percentile(99) }

type runResult struct {
	requested int64
	ops       int64
	errors    int64
	misses    int64
	bytes     int64
	opsPerSec float64
	mbPerSec  float64
	avgMicros float64
	hist      latencyHistogram
	wal       db.Stats
	message   string
}

func finalizeResult(requested, ops, errors, misses, bytes int64, wallElapsed, threadElapsed time.Duration, hist latencyHistogram) runResult {
	sec := max(wallElapsed.Seconds(), 1e-9)
	return runResult{
		requested: requested,
		ops:       ops,
		errors:    errors,
		misses:    misses,
		bytes:     bytes,
		opsPerSec: float64(ops) / sec,
		mbPerSec:  float64(bytes) / (1024 * 1024) / sec,
		avgMicros: float64(threadElapsed.Microseconds()) / float64(max(ops, 1)),
		hist:      hist,
	}
}

func formatDurationMicros(d time.Duration) string {
	return fmt.Sprintf("%.1f", float64(d.Microseconds()))
}
