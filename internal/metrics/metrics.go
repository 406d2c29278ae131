package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid"
	OutcomeExpired      = "expired"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

// Metrics owns a per-process registry. Nothing here touches the prometheus
// default registry, the handle is constructed in main and passed down.
type Metrics struct {
	registry *prometheus.Registry

	SignInRequests prometheus.Counter
	Redemptions    *prometheus.CounterVec
	AuthChecks     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SignInRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signin_service",
			Name:      "signin_requests_total",
			Help:      "Number of sign-in emails requested.",
		}),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signin_service",
			Name:      "signin_redemptions_total",
			Help:      "Number of verification token redemptions by outcome.",
		}, []string{"outcome"}),
		AuthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signin_service",
			Name:      "auth_checks_total",
			Help:      "Number of bearer token checks by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(m.SignInRequests, m.Redemptions, m.AuthChecks)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
