// Package obs collects lightweight pipeline counters. Everything is atomic
// and nil-safe so instrumentation never becomes a dependency of
// correctness.
package obs

import (
	"sync/atomic"
	"time"

	"github.com/betedge/edgelake/internal/schema"
)

const maxDatasetKind = int(schema.DatasetEarnings)

// Metrics counts pipeline activity per dataset kind.
type Metrics struct {
	fetchCounts [maxDatasetKind + 1]uint64
	rowCounts   [maxDatasetKind + 1]uint64

	fetchFailures uint64

	jobsSubmitted uint64
	jobsFinalized uint64
	jobsAborted   uint64

	partitionsCommitted uint64
	bytesCommitted      uint64

	eventsDropped uint64

	fetchLatency  LatencyStats
	commitLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	FetchCounts map[schema.DatasetKind]uint64
	RowCounts   map[schema.DatasetKind]uint64

	FetchFailures uint64

	JobsSubmitted uint64
	JobsFinalized uint64
	JobsAborted   uint64

	PartitionsCommitted uint64
	BytesCommitted      uint64

	EventsDropped uint64

	FetchLatency  LatencySnapshot
	CommitLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveFetch records one completed fetch and the rows it normalized into.
func (m *Metrics) ObserveFetch(kind schema.DatasetKind, rows int, d time.Duration) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.fetchCounts) {
		atomic.AddUint64(&m.fetchCounts[idx], 1)
		if rows > 0 {
			atomic.AddUint64(&m.rowCounts[idx], uint64(rows))
		}
	}
	m.fetchLatency.Observe(d)
}

// IncFetchFailure records a sub-request whose fetch budget ran out.
func (m *Metrics) IncFetchFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.fetchFailures, 1)
}

// IncJobSubmitted records an accepted submission.
func (m *Metrics) IncJobSubmitted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.jobsSubmitted, 1)
}

// IncJobFinalized records a job that converged.
func (m *Metrics) IncJobFinalized() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.jobsFinalized, 1)
}

// IncJobAborted records a cancelled job.
func (m *Metrics) IncJobAborted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.jobsAborted, 1)
}

// IncEventDrop records a progress event lost to a full subscriber queue.
func (m *Metrics) IncEventDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.eventsDropped, 1)
}

// ObserveCommit records one partition write.
func (m *Metrics) ObserveCommit(bytes int, d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.partitionsCommitted, 1)
	if bytes > 0 {
		atomic.AddUint64(&m.bytesCommitted, uint64(bytes))
	}
	m.commitLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	fetchCounts := make(map[schema.DatasetKind]uint64)
	rowCounts := make(map[schema.DatasetKind]uint64)
	for i := range m.fetchCounts {
		if v := atomic.LoadUint64(&m.fetchCounts[i]); v > 0 {
			fetchCounts[schema.DatasetKind(i)] = v
		}
		if v := atomic.LoadUint64(&m.rowCounts[i]); v > 0 {
			rowCounts[schema.DatasetKind(i)] = v
		}
	}
	return Snapshot{
		FetchCounts:         fetchCounts,
		RowCounts:           rowCounts,
		FetchFailures:       atomic.LoadUint64(&m.fetchFailures),
		JobsSubmitted:       atomic.LoadUint64(&m.jobsSubmitted),
		JobsFinalized:       atomic.LoadUint64(&m.jobsFinalized),
		JobsAborted:         atomic.LoadUint64(&m.jobsAborted),
		PartitionsCommitted: atomic.LoadUint64(&m.partitionsCommitted),
		BytesCommitted:      atomic.LoadUint64(&m.bytesCommitted),
		EventsDropped:       atomic.LoadUint64(&m.eventsDropped),
		FetchLatency:        m.fetchLatency.Snapshot(),
		CommitLatency:       m.commitLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
