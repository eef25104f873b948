// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(inboundTotal, routeDecisionsTotal)
}

var (
	inboundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_inbound_messages_total",
			Help: "Inbound channel messages by dispatch result.",
		},
		[]string{"channel", "result"}, // ignored|rate_limited|duplicate|local_reply|created|continued|failed
	)

	routeDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_route_decisions_total",
			Help: "Router decisions by action and reason class.",
		},
		[]string{"action", "reason"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncInbound(channel, result string) {
	inboundTotal.WithLabelValues(norm(channel), norm(result)).Inc()
}

// IncRouteDecision drops the id suffix from reasons like
// "classifier_rejected_unknown_task:<id>" to keep cardinality bounded.
func IncRouteDecision(action, reason string) {
	if i := strings.IndexByte(reason, ':'); i >= 0 {
		reason = reason[:i]
	}
	routeDecisionsTotal.WithLabelValues(norm(action), norm(reason)).Inc()
}
