package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the login funnel
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Login funnel metrics
	LoginAttemptsTotal    *prometheus.CounterVec
	LoginOutcomesTotal    *prometheus.CounterVec
	RelayForwardsTotal    prometheus.Counter
	StalePinRejectsTotal  *prometheus.CounterVec
	ProviderMismatchTotal prometheus.Counter

	// Broker metrics
	BrokerExchangeDuration prometheus.Histogram
	BrokerErrorsTotal      *prometheus.CounterVec

	// Session metrics
	SessionsCreatedTotal    prometheus.Counter
	SessionsTerminatedTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ssobridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_login_attempts_total",
				Help: "Login attempts started, by selected provider",
			},
			[]string{"provider"},
		),
		LoginOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_login_outcomes_total",
				Help: "Terminal login outcomes, by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		RelayForwardsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ssobridge_relay_forwards_total",
				Help: "SAML responses re-POSTed to the broker ACS endpoint",
			},
		),
		StalePinRejectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_stale_pin_rejects_total",
				Help: "Callbacks rejected due to a missing or expired pin",
			},
			[]string{"endpoint"},
		),
		ProviderMismatchTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ssobridge_provider_mismatch_total",
				Help: "Broker callbacks rejected because the pin said legacy",
			},
		),
		BrokerExchangeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ssobridge_broker_exchange_duration_seconds",
				Help:    "Duration of broker code-for-profile exchanges",
				Buckets: prometheus.DefBuckets,
			},
		),
		BrokerErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssobridge_broker_errors_total",
				Help: "Broker exchange failures, by kind (oauth, unreachable)",
			},
			[]string{"kind"},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ssobridge_sessions_created_total",
				Help: "Authenticated sessions established",
			},
		),
		SessionsTerminatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ssobridge_sessions_terminated_total",
				Help: "Sessions destroyed via logout",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginAttemptsTotal,
		m.LoginOutcomesTotal,
		m.RelayForwardsTotal,
		m.StalePinRejectsTotal,
		m.ProviderMismatchTotal,
		m.BrokerExchangeDuration,
		m.BrokerErrorsTotal,
		m.SessionsCreatedTotal,
		m.SessionsTerminatedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLoginAttempt records a login attempt for the given provider
func (m *Metrics) ObserveLoginAttempt(provider string) {
	m.LoginAttemptsTotal.WithLabelValues(provider).Inc()
}

// ObserveLoginOutcome records a terminal login outcome
func (m *Metrics) ObserveLoginOutcome(provider, outcome string) {
	m.LoginOutcomesTotal.WithLabelValues(provider, outcome).Inc()
}

// Middleware instruments HTTP handlers with request count and duration
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
