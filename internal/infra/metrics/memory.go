package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(memoryWritesTotal) }

var memoryWritesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bridge_memory_writes_total",
		Help: "Memory candidates by source and result.",
	},
	[]string{"source", "result"}, // result: inserted|duplicate|superseded|rejected
)

func IncMemoryWrite(source, result string) {
	memoryWritesTotal.WithLabelValues(norm(source), norm(result)).Inc()
}
