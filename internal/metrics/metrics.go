package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_indexer_rpc_requests_total",
			Help: "Total number of RPC requests by method",
		},
		[]string{"method"},
	)

	rpcErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_indexer_rpc_errors_total",
			Help: "Total number of failed RPC requests by method",
		},
		[]string{"method"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "launchpad_indexer_rpc_request_duration_seconds",
			Help:    "Duration of RPC requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	chunksScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_indexer_chunks_scanned_total",
			Help: "Number of block chunks fully scanned",
		},
		[]string{"version"},
	)

	chunksAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_indexer_chunks_abandoned_total",
			Help: "Number of block chunks abandoned after exhausting retries",
		},
		[]string{"version"},
	)

	chunkRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_indexer_chunk_retries_total",
			Help: "Number of chunk read retries",
		},
		[]string{"version"},
	)

	lastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "launchpad_indexer_last_processed_block",
			Help: "Next block not yet scanned, per contract version",
		},
		[]string{"version"},
	)

	eventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_indexer_events_total",
			Help: "Events handled by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	liveResubscribes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_indexer_live_resubscribes_total",
			Help: "Live log subscriptions re-established after a drop",
		},
		[]string{"version", "kind"},
	)

	scanTriggers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "launchpad_indexer_scan_triggers_total",
			Help: "Scan rounds requested by the scheduler",
		},
	)

	headBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "launchpad_indexer_head_block",
			Help: "Latest block head observed by the scheduler",
		},
	)

	notifyErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_indexer_notify_errors_total",
			Help: "Failed push notifications by publisher",
		},
		[]string{"publisher"},
	)
)

// Event outcomes.
const (
	OutcomeRecorded = "recorded"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

func RPCMethodInc(method string) {
	rpcRequests.WithLabelValues(method).Inc()
}

func RPCMethodDuration(method string, d time.Duration) {
	rpcDuration.WithLabelValues(method).Observe(d.Seconds())
}

func RPCMethodError(method string) {
	rpcErrors.WithLabelValues(method).Inc()
}

func ChunkScanned(version string) {
	chunksScanned.WithLabelValues(version).Inc()
}

func ChunkAbandoned(version string) {
	chunksAbandoned.WithLabelValues(version).Inc()
}

func ChunkRetry(version string) {
	chunkRetries.WithLabelValues(version).Inc()
}

func SetLastProcessedBlock(version string, block uint64) {
	lastProcessedBlock.WithLabelValues(version).Set(float64(block))
}

func EventHandled(kind, outcome string) {
	eventsHandled.WithLabelValues(kind, outcome).Inc()
}

func NotifyError(publisher string) {
	notifyErrors.WithLabelValues(publisher).Inc()
}

func Resubscribed(version, kind string) {
	liveResubscribes.WithLabelValues(version, kind).Inc()
}

func ScanTriggered() {
	scanTriggers.Inc()
}

func SetHeadBlock(block uint64) {
	headBlock.Set(float64(block))
}
