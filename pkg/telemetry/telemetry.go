package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Low-cardinality operational metrics. Everything here is registered on
// the default registry and served by Handler.
var (
	ConversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pawtalk_conversations_created_total",
		Help: "Conversations created.",
	})
	MessagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pawtalk_messages_created_total",
		Help: "Messages durably appended.",
	})
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pawtalk_live_connections",
		Help: "Currently connected websocket participants.",
	})
	EventsFannedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pawtalk_events_fanned_out_total",
		Help: "Events delivered to subscriber connections.",
	})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pawtalk_events_dropped_total",
		Help: "Events dropped because a subscriber send buffer was full.",
	})
	SearchQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pawtalk_search_queries_total",
		Help: "Search queries served.",
	})
	IndexRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pawtalk_index_refreshes_total",
		Help: "Search projections rebuilt.",
	})
	IndexQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pawtalk_index_queue_dropped_total",
		Help: "Index refresh requests dropped due to a full queue.",
	})
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pawtalk_search_duration_seconds",
		Help:    "Search query latency.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler { return promhttp.Handler() }
