package analyzer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters/histograms for an Analyzer's runs, registered
// against a caller-supplied prometheus.Registerer (SPEC_FULL.md DOMAIN
// STACK: prometheus/client_golang). The teacher queries an external
// Prometheus server for metric data; here the module is the producer
// instead, tracking partition throughput and checkpoint hit rate.
type Metrics struct {
	PartitionsProcessed prometheus.Counter
	RecordsParsed       prometheus.Counter
	RecordsIgnored      prometheus.Counter
	CheckpointHits      prometheus.Counter
	CheckpointMisses    prometheus.Counter
	PartitionDuration   prometheus.Histogram
}

// NewMetrics constructs and registers a Metrics set under reg. Passing a
// prometheus.NewRegistry() per test keeps runs isolated; passing
// prometheus.DefaultRegisterer wires a process-wide /metrics endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PartitionsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dftracer_utils",
			Subsystem: "analyzer",
			Name:      "partitions_processed_total",
			Help:      "Number of trace file partitions fully parsed and aggregated.",
		}),
		RecordsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dftracer_utils",
			Subsystem: "analyzer",
			Name:      "records_parsed_total",
			Help:      "Number of trace JSON lines successfully parsed.",
		}),
		RecordsIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dftracer_utils",
			Subsystem: "analyzer",
			Name:      "records_ignored_total",
			Help:      "Number of trace lines dropped by the ignore policy or because they failed to parse.",
		}),
		CheckpointHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dftracer_utils",
			Subsystem: "analyzer",
			Name:      "checkpoint_hits_total",
			Help:      "Number of analyze_trace calls served from an existing checkpoint.",
		}),
		CheckpointMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dftracer_utils",
			Subsystem: "analyzer",
			Name:      "checkpoint_misses_total",
			Help:      "Number of analyze_trace calls not served from a checkpoint.",
		}),
		PartitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dftracer_utils",
			Subsystem: "analyzer",
			Name:      "partition_duration_seconds",
			Help:      "Wall time spent reading, parsing, and aggregating one partition.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.PartitionsProcessed,
		m.RecordsParsed,
		m.RecordsIgnored,
		m.CheckpointHits,
		m.CheckpointMisses,
		m.PartitionDuration,
	)
	return m
}

// noopMetrics is used internally when a caller does not supply Metrics, so
// Analyzer's instrumentation calls never need a nil check.
func noopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
