package contentful

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamesync",
		Subsystem: "contentful",
		Name:      "requests_total",
		Help:      "Total number of management API requests broken down by operation and status.",
	}, []string{"operation", "status"})

	apiLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gamesync",
		Subsystem: "contentful",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for management API requests.",
		Buckets: []float64{
			0.01, 0.02, 0.05,
			0.1, 0.2, 0.5,
			1, 2, 5, 10,
		},
	}, []string{"operation"})
)

func recordRequest(operation string, status int, latency time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequests.WithLabelValues(operation, label).Inc()
	apiLatency.WithLabelValues(operation).Observe(latency.Seconds())
}
