package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for authentication operations.
type Metrics struct {
	authenticateTotal    *prometheus.CounterVec
	authenticateDuration *prometheus.HistogramVec
	tokenRefreshTotal    *prometheus.CounterVec
	fallbackTotal        *prometheus.CounterVec
	errorsTotal          *prometheus.CounterVec
	tokenAge             *prometheus.GaugeVec
	tokenExpiry          *prometheus.GaugeVec
	registry             *prometheus.Registry
}

// NewMetrics creates a new Metrics instance registered with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "eogate"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.authenticateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "authenticate_total",
			Help:      "Total number of authentication attempts",
		},
		[]string{"provider", "scheme", "status"},
	)

	m.authenticateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "authenticate_duration_seconds",
			Help:      "Authentication attempt duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "scheme"},
	)

	m.tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_refresh_total",
			Help:      "Total number of token grants by grant type",
		},
		[]string{"provider", "scheme", "grant", "status"},
	)

	m.fallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "fallback_total",
			Help:      "Total number of attempts served from a previously obtained token",
		},
		[]string{"provider", "scheme"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "errors_total",
			Help:      "Total number of authentication errors",
		},
		[]string{"provider", "scheme", "error_type"},
	)

	m.tokenAge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_age_seconds",
			Help:      "Age of the token handed out by the last authentication",
		},
		[]string{"provider", "scheme"},
	)

	m.tokenExpiry = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_expiry_seconds",
			Help:      "Token expiry timestamp in seconds since epoch",
		},
		[]string{"provider", "scheme"},
	)

	m.registry.MustRegister(m.collectors()...)

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.authenticateTotal,
		m.authenticateDuration,
		m.tokenRefreshTotal,
		m.fallbackTotal,
		m.errorsTotal,
		m.tokenAge,
		m.tokenExpiry,
	}
}

// Init pre-populates the label combinations of the given providers so the
// counters appear in /metrics before the first attempt.
func (m *Metrics) Init(providers map[string]string) {
	for provider, scheme := range providers {
		for _, s := range []string{"success", "error"} {
			m.authenticateTotal.WithLabelValues(provider, scheme, s)
		}
		m.fallbackTotal.WithLabelValues(provider, scheme)
	}
}

// RecordAuthenticate records one authentication attempt.
func (m *Metrics) RecordAuthenticate(provider, scheme, status string, duration time.Duration) {
	m.authenticateTotal.WithLabelValues(provider, scheme, status).Inc()
	m.authenticateDuration.WithLabelValues(provider, scheme).Observe(duration.Seconds())
}

// RecordRefresh records one password or refresh grant.
func (m *Metrics) RecordRefresh(provider, scheme, grant, status string) {
	m.tokenRefreshTotal.WithLabelValues(provider, scheme, grant, status).Inc()
}

// RecordFallback records an attempt served from a stored token.
func (m *Metrics) RecordFallback(provider, scheme string) {
	m.fallbackTotal.WithLabelValues(provider, scheme).Inc()
}

// RecordError records an authentication error.
func (m *Metrics) RecordError(provider, scheme, errType string) {
	m.errorsTotal.WithLabelValues(provider, scheme, errType).Inc()
}

// SetTokenAge sets the age of the token last handed out.
func (m *Metrics) SetTokenAge(provider, scheme string, age time.Duration) {
	m.tokenAge.WithLabelValues(provider, scheme).Set(age.Seconds())
}

// SetTokenExpiry sets the token expiry timestamp.
func (m *Metrics) SetTokenExpiry(provider, scheme string, expiry time.Time) {
	m.tokenExpiry.WithLabelValues(provider, scheme).Set(float64(expiry.Unix()))
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(m.collectors()...)
}

// NopMetrics returns a metrics instance that is never exported.
func NopMetrics() *Metrics {
	return NewMetrics("test")
}
