package observability

import "github.com/prometheus/client_golang/prometheus"

// Fulfillment metrics. Label values are fixed sets (outcomes, results), never
// order ids or emails.
var (
	// FulfillmentEvents counts processed order-paid events by outcome
	// (ready, failed, duplicate, in_flight, invalid, error).
	FulfillmentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_events_total",
			Help: "Order-paid events processed, by outcome.",
		},
		[]string{"outcome"},
	)

	// ArtifactGeneration records how long one generator call took.
	ArtifactGeneration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "artifact_generation_seconds",
			Help:    "Duration of artifact generation calls in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"result"},
	)

	// Notifications counts notifier calls by result (sent, error).
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Customer notifications attempted, by result.",
		},
		[]string{"result"},
	)

	// DownloadAuthorizations counts gate decisions by result
	// (granted, not_found, not_ready, email_mismatch, error).
	DownloadAuthorizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "download_authorizations_total",
			Help: "Download authorization decisions, by result.",
		},
		[]string{"result"},
	)

	// ReapedOrders counts generating orders moved to failed by the reaper.
	ReapedOrders = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fulfillment_reaped_orders_total",
			Help: "Stale generating orders moved to failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(FulfillmentEvents, ArtifactGeneration, Notifications, DownloadAuthorizations, ReapedOrders)
}
