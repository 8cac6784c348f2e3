package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event pipeline metrics
	EventsBuffered = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_events_buffered",
			Help: "Number of events currently buffered by event kind",
		},
		[]string{"kind"},
	)

	EventsFlushedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_events_flushed_total",
			Help: "Total number of events flushed to the event store",
		},
	)

	FlushBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_flush_batch_size",
			Help:    "Number of events per persisted batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_flush_duration_seconds",
			Help:    "Time taken to persist an event batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_flush_failures_total",
			Help: "Total number of failed batch persists",
		},
	)

	// Temporal event cache metrics
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_event_cache_hits_total",
			Help: "Total number of event cache reads served from the cache",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_event_cache_misses_total",
			Help: "Total number of event cache reads that fell back to the store",
		},
	)

	// Reader metrics
	ReaderEventsAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_reader_events_applied_total",
			Help: "Total number of events applied by the reader refresh loop",
		},
	)

	ReaderLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_reader_lag_seconds",
			Help: "Age of the last applied event at the end of a refresh cycle",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Coordinator metrics
	FanoutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_fanout_duration_seconds",
			Help:    "Shard fan-out duration in seconds by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ShardRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_shard_requests_total",
			Help: "Total number of downstream shard requests by kind and status",
		},
		[]string{"kind", "status"},
	)

	// Split metrics
	SplitPhase = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_split_phase",
			Help: "Current split phase (0=idle 1=prepare 2=dualwrite 3=backfill 4=drain 5=cutover 6=cleanup)",
		},
	)

	SplitEventsCopiedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_split_events_copied_total",
			Help: "Total number of events copied to the split target",
		},
	)

	// Trip switch metrics
	TripSwitchActuated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_trip_switch_actuated",
			Help: "Whether the trip switch has been actuated (1 = tripped)",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsBuffered)
	prometheus.MustRegister(EventsFlushedTotal)
	prometheus.MustRegister(FlushBatchSize)
	prometheus.MustRegister(FlushDuration)
	prometheus.MustRegister(FlushFailuresTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ReaderEventsAppliedTotal)
	prometheus.MustRegister(ReaderLagSeconds)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(FanoutDuration)
	prometheus.MustRegister(ShardRequestsTotal)
	prometheus.MustRegister(SplitPhase)
	prometheus.MustRegister(SplitEventsCopiedTotal)
	prometheus.MustRegister(TripSwitchActuated)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
