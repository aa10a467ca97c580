package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors used across the bot.
type Metrics struct {
	WebhookUpdates     *prometheus.CounterVec
	ClassifierRequests *prometheus.CounterVec
	ClassifierLatency  *prometheus.HistogramVec
	ClassifierRetries  prometheus.Counter
	Intents            *prometheus.CounterVec
	Confirmations      *prometheus.CounterVec
	WizardSteps        *prometheus.CounterVec
	TelegramRequests   *prometheus.CounterVec
	TelegramLatency    *prometheus.HistogramVec
	StoreErrors        *prometheus.CounterVec
	Errors             *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. A nil reg gets a fresh private registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		WebhookUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_updates_total",
			Help:      "Inbound Telegram updates by kind and ingestion outcome.",
		}, []string{"kind", "outcome"}),
		ClassifierRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_requests_total",
			Help:      "Intent classifier calls by final outcome.",
		}, []string{"outcome"}),
		ClassifierLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_latency_seconds",
			Help:      "Latency of individual classifier HTTP attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		ClassifierRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_retries_total",
			Help:      "Classifier attempts that were retried.",
		}),
		Intents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Parsed intents by next action.",
		}, []string{"intent", "next_action"}),
		Confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Confirmation protocol outcomes.",
		}, []string{"outcome"}),
		WizardSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_steps_total",
			Help:      "Account creation wizard steps by outcome.",
		}, []string{"step", "outcome"}),
		TelegramRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_requests_total",
			Help:      "Bot API calls by method and status.",
		}, []string{"method", "status"}),
		TelegramLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "telegram_latency_seconds",
			Help:      "Bot API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Data store failures by operation.",
		}, []string{"op"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Unexpected errors by component.",
		}, []string{"component"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
