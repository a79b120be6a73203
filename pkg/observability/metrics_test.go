package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	require.NotNil(t, m)
	assert.NotNil(t, m.LoginAttemptsTotal)
	assert.NotNil(t, m.LoginOutcomesTotal)
	assert.NotNil(t, m.BrokerExchangeDuration)
	assert.NotNil(t, m.Handler())
}

func TestMetrics_ScrapeOutput(t *testing.T) {
	m := NewMetrics()

	m.ObserveLoginAttempt("legacy")
	m.ObserveLoginAttempt("broker")
	m.ObserveLoginOutcome("broker", "completed")
	m.RelayForwardsTotal.Inc()
	m.StalePinRejectsTotal.WithLabelValues("legacy").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `ssobridge_login_attempts_total{provider="legacy"} 1`)
	assert.Contains(t, body, `ssobridge_login_attempts_total{provider="broker"} 1`)
	assert.Contains(t, body, `ssobridge_login_outcomes_total{outcome="completed",provider="broker"} 1`)
	assert.Contains(t, body, "ssobridge_relay_forwards_total 1")
}

func TestMetrics_Middleware(t *testing.T) {
	m := NewMetrics()

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	req := httptest.NewRequest("POST", "/authenticate", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, scrape.Body.String(),
		`ssobridge_http_requests_total{method="POST",path="/authenticate",status="302"} 1`)
}
