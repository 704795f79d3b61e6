// Package metrics объявляет счётчики Prometheus сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки вебхука.
const (
	OutcomeApplied   = "applied"
	OutcomeDeferred  = "deferred"
	OutcomeStale     = "stale"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeDropped   = "dropped"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeValid     = "valid"
	OutcomeNoPlan    = "no_subscription"
	OutcomeNoDevice  = "device_not_licensed"
)

// Metrics хранит счётчики, зарегистрированные в одном Registerer.
type Metrics struct {
	WebhookEvents    *prometheus.CounterVec
	LicenseValidated *prometheus.CounterVec
}

// New регистрирует счётчики в reg. nil означает prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entitlement_webhook_events_total",
			Help: "Processed payment processor events by type and outcome.",
		}, []string{"type", "outcome"}),
		LicenseValidated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entitlement_license_validations_total",
			Help: "License validation requests by outcome.",
		}, []string{"outcome"}),
	}
}

// Webhook увеличивает счётчик событий. Безопасен для nil.
func (m *Metrics) Webhook(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// Validation увеличивает счётчик проверок лицензий. Безопасен для nil.
func (m *Metrics) Validation(outcome string) {
	if m == nil {
		return
	}
	m.LicenseValidated.WithLabelValues(outcome).Inc()
}
