package ingest

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// A structure utilized for keeping track of the ingestion. The plain counters are read in tests,
// the collectors are exported on /metrics.
type Metrics struct {
	Cycles        uint64 // Number of cycles that ran to completion.
	CycleErrors   uint64 // Number of cycles that aborted.
	RowsWritten   uint64 // Number of rows appended to any table.
	FetchErrors   uint64 // Number of event queries that failed and were skipped.
	ChunksDropped uint64 // Number of L1 chunks that failed or timed out.
	HashesDropped uint64 // Number of transaction hashes in the dropped chunks.

	cycles        *prometheus.CounterVec
	rowsWritten   *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	chunksDropped prometheus.Counter
	hashesDropped prometheus.Counter
	watermarks    *prometheus.GaugeVec
	cycleDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg, unless reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mev_commit", Subsystem: "ingest", Name: "cycles_total", Help: "Ingestion cycles by outcome",
		}, []string{"status"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mev_commit", Subsystem: "ingest", Name: "rows_written_total", Help: "Rows appended per table",
		}, []string{"table"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mev_commit", Subsystem: "ingest", Name: "fetch_errors_total", Help: "Skipped event queries per table",
		}, []string{"table"}),
		chunksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mev_commit", Subsystem: "ingest", Name: "l1_chunks_dropped_total", Help: "L1 chunks that failed or timed out",
		}),
		hashesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mev_commit", Subsystem: "ingest", Name: "l1_hashes_dropped_total", Help: "Transaction hashes in dropped L1 chunks",
		}),
		watermarks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mev_commit", Subsystem: "ingest", Name: "watermark_block", Help: "Block the next fetch starts from",
		}, []string{"table"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mev_commit", Subsystem: "ingest", Name: "cycle_duration_seconds", Help: "Duration of an ingestion cycle",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.rowsWritten, m.fetchErrors, m.chunksDropped, m.hashesDropped, m.watermarks, m.cycleDuration)
	}
	return m
}

func (m *Metrics) IncrementCycles(seconds float64) {
	atomic.AddUint64(&m.Cycles, 1)
	m.cycles.WithLabelValues("ok").Inc()
	m.cycleDuration.Observe(seconds)
}

func (m *Metrics) IncrementCycleErrors() {
	atomic.AddUint64(&m.CycleErrors, 1)
	m.cycles.WithLabelValues("error").Inc()
}

func (m *Metrics) IncrementRowsWritten(table string, inc uint64) {
	atomic.AddUint64(&m.RowsWritten, inc)
	m.rowsWritten.WithLabelValues(table).Add(float64(inc))
}

func (m *Metrics) IncrementFetchErrors(table string) {
	atomic.AddUint64(&m.FetchErrors, 1)
	m.fetchErrors.WithLabelValues(table).Inc()
}

// Record a dropped L1 chunk of size hashes.
func (m *Metrics) IncrementChunksDropped(size int) {
	atomic.AddUint64(&m.ChunksDropped, 1)
	atomic.AddUint64(&m.HashesDropped, uint64(size))
	m.chunksDropped.Inc()
	m.hashesDropped.Add(float64(size))
}

func (m *Metrics) SetWatermark(table string, block uint64) {
	m.watermarks.WithLabelValues(table).Set(float64(block))
}
