package ingest

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeCommitted = "committed"
	outcomeFailed    = "failed"

	outcomeAcked        = "acked"
	outcomeRequeued     = "requeued"
	outcomeDropped      = "dropped"
	outcomeSettleFailed = "settle_failed"
)

var (
	bufferedDeliveries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_worker_buffered_deliveries",
			Help: "Deliveries waiting in the in-memory buffer for the next flush.",
		},
	)

	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_worker_batches_total",
			Help: "Batches processed, by commit outcome.",
		},
		[]string{"outcome"},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_worker_deliveries_total",
			Help: "Deliveries settled with the broker, by outcome.",
		},
		[]string{"outcome"},
	)

	flushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_worker_flush_duration_seconds",
			Help:    "Time spent committing and settling one batch.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(bufferedDeliveries)
	prometheus.MustRegister(batchesTotal)
	prometheus.MustRegister(deliveriesTotal)
	prometheus.MustRegister(flushDuration)
}
