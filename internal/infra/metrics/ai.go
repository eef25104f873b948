package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(llmCallsLatencyMs, llmParseFallbacks)
}

var (
	llmCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_llm_calls_latency_ms",
			Help:    "LLM completion latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"backend", "model", "success"},
	)

	llmParseFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_llm_parse_fallbacks_total",
			Help: "Model outputs that could not be parsed and fell back to a default.",
		},
		[]string{"consumer"}, // classifier|renderer|memory
	)
)

func ObserveLLMCall(backend, model string, latencyMs int64, success bool) {
	llmCallsLatencyMs.WithLabelValues(norm(backend), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncLLMParseFallback(consumer string) {
	llmParseFallbacks.WithLabelValues(norm(consumer)).Inc()
}
