package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhookEventsTotal, attachmentsDeliveredTotal) }

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_webhook_events_total",
			Help: "Provider webhook deliveries by event type and outcome.",
		},
		[]string{"type", "outcome"}, // unauthorized|invalid_payload|duplicate|accepted|processed|ignored|failed
	)

	attachmentsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_attachments_total",
			Help: "Provider attachments handled by result.",
		},
		[]string{"result"}, // delivered|queued|fetch_failed
	)
)

func IncWebhookEvent(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(outcome)).Inc()
}

func IncAttachment(result string) {
	attachmentsDeliveredTotal.WithLabelValues(norm(result)).Inc()
}
