package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(providerRequestsTotal, providerLatencyMs) }

var (
	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_provider_requests_total",
			Help: "Task provider HTTP attempts by operation and status code (0 for transport errors).",
		},
		[]string{"op", "status"},
	)

	providerLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_provider_latency_ms",
			Help:    "Task provider call latency including retries.",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"op", "success"},
	)
)

func IncProviderRequest(op string, status int) {
	providerRequestsTotal.WithLabelValues(norm(op), strconv.Itoa(status)).Inc()
}

func ObserveProviderCall(op string, latencyMs int64, success bool) {
	providerLatencyMs.WithLabelValues(norm(op), strconv.FormatBool(success)).Observe(float64(latencyMs))
}
