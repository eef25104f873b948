package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(outboundSendsTotal, outboundQueueDepth) }

var (
	outboundSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_outbound_sends_total",
			Help: "Outbound channel sends by kind and result.",
		},
		[]string{"kind", "result"}, // kind: text|media; result: delivered|queued|flushed|requeued
	)

	outboundQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_outbound_queue_depth",
			Help: "Items waiting in the outbound queue.",
		},
	)
)

func IncOutboundSend(kind, result string) {
	outboundSendsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func SetOutboundQueueDepth(n int) {
	outboundQueueDepth.Set(float64(n))
}
