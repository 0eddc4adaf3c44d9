package metrics

import (
	"time"

	"github.com/kovalevn/cognitive-copilot/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BillingMetrics интерфейс для метрик биллинга
type BillingMetrics interface {
	IncSubscriptionCreated(plan string)
	IncSubscriptionCancelled(plan string)
	IncWebhookEvent(eventType, outcome string)
	IncGatewayError(operation string)
	ObserveGatewayLatency(operation string, elapsed time.Duration)
}

type billingMetrics struct {
	log                    *logger.Logger
	subscriptionsCreated   *prometheus.CounterVec
	subscriptionsCancelled *prometheus.CounterVec
	webhookEvents          *prometheus.CounterVec
	gatewayErrors          *prometheus.CounterVec
	gatewayLatency         *prometheus.HistogramVec
}

// NewBillingMetrics создает новые метрики биллинга
func NewBillingMetrics(registry *prometheus.Registry, log *logger.Logger) BillingMetrics {
	subscriptionsCreated := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_created_total",
			Help: "The total number of created subscriptions",
		},
		[]string{"plan"},
	)

	subscriptionsCancelled := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_cancelled_total",
			Help: "The total number of cancelled subscriptions",
		},
		[]string{"plan"},
	)

	webhookEvents := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "The total number of processed webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	gatewayErrors := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "The total number of payment gateway errors by operation",
		},
		[]string{"operation"},
	)

	gatewayLatency := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Payment gateway request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	return &billingMetrics{
		log:                    log,
		subscriptionsCreated:   subscriptionsCreated,
		subscriptionsCancelled: subscriptionsCancelled,
		webhookEvents:          webhookEvents,
		gatewayErrors:          gatewayErrors,
		gatewayLatency:         gatewayLatency,
	}
}

// IncSubscriptionCreated увеличивает счетчик созданных подписок
func (m *billingMetrics) IncSubscriptionCreated(plan string) {
	m.subscriptionsCreated.WithLabelValues(plan).Inc()
}

// IncSubscriptionCancelled увеличивает счетчик отмененных подписок
func (m *billingMetrics) IncSubscriptionCancelled(plan string) {
	m.subscriptionsCancelled.WithLabelValues(plan).Inc()
}

// IncWebhookEvent увеличивает счетчик обработанных вебхуков
func (m *billingMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// IncGatewayError увеличивает счетчик ошибок платежного шлюза
func (m *billingMetrics) IncGatewayError(operation string) {
	m.gatewayErrors.WithLabelValues(operation).Inc()
}

// ObserveGatewayLatency записывает время обращения к платежному шлюзу
func (m *billingMetrics) ObserveGatewayLatency(operation string, elapsed time.Duration) {
	m.gatewayLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}
