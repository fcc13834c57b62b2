package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cellar",
		Name:      "ai_requests_total",
		Help:      "Total number of calls to the recognition service",
	}, []string{"op", "outcome"})

	AIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cellar",
		Name:      "ai_request_duration_seconds",
		Help:      "Duration of recognition service calls",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9),
	}, []string{"op"})

	WineMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cellar",
		Name:      "wine_mutations_total",
		Help:      "Committed changes to the collection",
	}, []string{"action"})

	ImagesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cellar",
		Name:      "images_stored_total",
		Help:      "Label images persisted, by backend",
	}, []string{"backend"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cellar",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cellar",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
