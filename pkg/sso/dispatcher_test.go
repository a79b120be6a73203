package sso

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/session"
	"github.com/platinummonkey/ssobridge/pkg/tenant"
	"github.com/platinummonkey/ssobridge/pkg/users"
)

type fakeLegacy struct {
	redirectURL string
	assertion   *Assertion
	err         error
	calls       int
}

func (f *fakeLegacy) AuthnRedirectURL(cfg *tenant.Config, relayState string) (string, error) {
	return f.redirectURL, nil
}

func (f *fakeLegacy) ValidateCallback(ctx context.Context, cfg *tenant.Config, r *http.Request) (*Assertion, error) {
	f.calls++
	return f.assertion, f.err
}

type fakeBroker struct {
	authURL   string
	acsURL    string
	assertion *Assertion
	err       error
	calls     int
}

func (f *fakeBroker) AuthorizationURL(cfg *tenant.Config, state string) (string, error) {
	return f.authURL, nil
}

func (f *fakeBroker) ExchangeCode(ctx context.Context, code string) (*Assertion, error) {
	f.calls++
	return f.assertion, f.err
}

func (f *fakeBroker) ACSURL(cfg *tenant.Config) string {
	return f.acsURL
}

type dispatcherFixture struct {
	router *mux.Router
	legacy *fakeLegacy
	broker *fakeBroker
	pinner *Pinner
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	resolver := tenant.NewStaticResolver(tenant.Config{
		SSOEntryURL:        "https://idp.acme.example.com/sso",
		Issuer:             "https://idp.acme.example.com",
		IDPCertificate:     testCertificate,
		BrokerConnectionID: "conn_123",
		BrokerACSURL:       "https://broker.example.com/sso/acs/conn_123",
	})

	legacy := &fakeLegacy{
		redirectURL: "https://idp.acme.example.com/sso?SAMLRequest=req",
		assertion:   &Assertion{Provider: ProviderLegacy, Email: "alice@acme.example.com"},
	}
	broker := &fakeBroker{
		authURL:   "https://broker.example.com/sso/authorize?connection=conn_123",
		acsURL:    "https://broker.example.com/sso/acs/conn_123",
		assertion: &Assertion{Provider: ProviderBroker, Email: "alice@acme.example.com"},
	}

	directory := users.NewStaticDirectory(
		users.User{ID: "user-1", Email: "alice@acme.example.com", OrganizationID: "org-1", IsActive: true},
	)
	pinner := NewPinner([]byte("test-secret"), 30*time.Second, false)
	binder := NewBinder(directory, session.NewMemoryStore(), 24*time.Hour, false)

	dispatcher := NewDispatcher(resolver, legacy, broker, pinner, binder, observability.NewMetrics())

	router := mux.NewRouter()
	dispatcher.RegisterRoutes(router)

	return &dispatcherFixture{
		router: router,
		legacy: legacy,
		broker: broker,
		pinner: pinner,
	}
}

// authenticate starts an attempt and returns the pin cookie it issued
func (f *dispatcherFixture) authenticate(t *testing.T, provider string) *http.Cookie {
	t.Helper()

	form := url.Values{ProviderFormField: {provider}}
	r := httptest.NewRequest("POST", "/authenticate", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusFound, w.Code)
	return pinCookie(t, w)
}

func redirectTarget(t *testing.T, w *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	target, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return target
}

func cookieByName(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestDispatcher_LegacyRoundTrip(t *testing.T) {
	f := newDispatcherFixture(t)

	pin := f.authenticate(t, "legacy")
	got, err := f.pinner.Read(requestWithCookie(pin))
	require.NoError(t, err)
	assert.Equal(t, ProviderLegacy, got)

	// IdP posts back to the legacy ACS
	r := httptest.NewRequest("POST", "/authenticate/callback",
		strings.NewReader(url.Values{"SAMLResponse": {"UkVTUE9OU0U="}}.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(pin)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, 1, f.legacy.calls)
	assert.Zero(t, f.broker.calls)

	session := cookieByName(w, SessionCookieName)
	require.NotNil(t, session)
	assert.NotEmpty(t, session.Value)

	// pin is cleared on completion
	cleared := cookieByName(w, PinCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestDispatcher_BrokerRoundTrip(t *testing.T) {
	f := newDispatcherFixture(t)

	pin := f.authenticate(t, "broker")

	r := httptest.NewRequest("GET", "/workos/callback?code=code-123", nil)
	r.AddCookie(pin)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, 1, f.broker.calls)
	assert.Zero(t, f.legacy.calls)

	require.NotNil(t, cookieByName(w, SessionCookieName))

	cleared := cookieByName(w, PinCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestDispatcher_RelaysStraySAMLCallback(t *testing.T) {
	f := newDispatcherFixture(t)

	// attempt pinned to broker, but the IdP still posts to the old ACS
	pin := f.authenticate(t, "broker")

	r := httptest.NewRequest("POST", "/authenticate/callback",
		strings.NewReader(url.Values{
			"SAMLResponse": {"UkVTUE9OU0U="},
			"RelayState":   {"state-xyz"},
		}.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(pin)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	action, fields := parseRelayForm(t, w.Body.String())
	assert.Equal(t, "https://broker.example.com/sso/acs/conn_123", action)
	assert.Equal(t, "UkVTUE9OU0U=", fields["SAMLResponse"])
	assert.Equal(t, "state-xyz", fields["RelayState"])

	// no local validation, and the pin survives for the broker leg
	assert.Zero(t, f.legacy.calls)
	assert.Nil(t, cookieByName(w, PinCookieName))
}

func TestDispatcher_SAMLCallbackWithoutPin(t *testing.T) {
	f := newDispatcherFixture(t)

	r := httptest.NewRequest("POST", "/authenticate/callback",
		strings.NewReader(url.Values{"SAMLResponse": {"UkVTUE9OU0U="}}.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusFound, w.Code)
	target := redirectTarget(t, w)
	assert.Equal(t, "/login", target.Path)
	assert.Equal(t, "stale_attempt", target.Query().Get("error"))
	assert.Zero(t, f.legacy.calls)
}

func TestDispatcher_SAMLCallbackWithStalePin(t *testing.T) {
	f := newDispatcherFixture(t)

	pin := f.authenticate(t, "legacy")
	f.pinner.now = func() time.Time { return time.Now().Add(time.Minute) }

	r := httptest.NewRequest("POST", "/authenticate/callback",
		strings.NewReader(url.Values{"SAMLResponse": {"UkVTUE9OU0U="}}.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(pin)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	target := redirectTarget(t, w)
	assert.Equal(t, "stale_attempt", target.Query().Get("error"))
	assert.Zero(t, f.legacy.calls)
}

func TestDispatcher_BrokerCallbackWithLegacyPin(t *testing.T) {
	f := newDispatcherFixture(t)

	pin := f.authenticate(t, "legacy")

	r := httptest.NewRequest("GET", "/workos/callback?code=code-123", nil)
	r.AddCookie(pin)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	target := redirectTarget(t, w)
	assert.Equal(t, "provider_mismatch", target.Query().Get("error"))

	// the code is never exchanged
	assert.Zero(t, f.broker.calls)
}

func TestDispatcher_BrokerCallbackMissingCode(t *testing.T) {
	f := newDispatcherFixture(t)

	pin := f.authenticate(t, "broker")

	r := httptest.NewRequest("GET", "/workos/callback", nil)
	r.AddCookie(pin)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	// rejected before any pin or broker work
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.broker.calls)
	assert.Nil(t, cookieByName(w, PinCookieName))
}

func TestDispatcher_BrokerCallbackWithoutPin(t *testing.T) {
	f := newDispatcherFixture(t)

	r := httptest.NewRequest("GET", "/workos/callback?code=code-123", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	target := redirectTarget(t, w)
	assert.Equal(t, "stale_attempt", target.Query().Get("error"))
	assert.Zero(t, f.broker.calls)
}

func TestDispatcher_BrokerDeniedRedirect(t *testing.T) {
	f := newDispatcherFixture(t)

	pin := f.authenticate(t, "broker")

	r := httptest.NewRequest("GET", "/workos/callback?error=access_denied&error_description=denied", nil)
	r.AddCookie(pin)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	target := redirectTarget(t, w)
	assert.Equal(t, "broker_denied", target.Query().Get("error"))
	assert.Zero(t, f.broker.calls)
}

func TestDispatcher_BrokerExchangeFailure(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedError string
	}{
		{name: "oauth error", err: &OAuthError{Code: "invalid_grant"}, expectedError: "broker_denied"},
		{name: "unreachable", err: ErrBrokerUnreachable, expectedError: "broker_unreachable"},
		{name: "incomplete profile", err: ErrProfileIncomplete, expectedError: "profile_incomplete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t)
			f.broker.assertion = nil
			f.broker.err = tt.err

			pin := f.authenticate(t, "broker")

			r := httptest.NewRequest("GET", "/workos/callback?code=code-123", nil)
			r.AddCookie(pin)
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, r)

			target := redirectTarget(t, w)
			assert.Equal(t, tt.expectedError, target.Query().Get("error"))

			// terminal outcome clears the pin
			cleared := cookieByName(w, PinCookieName)
			require.NotNil(t, cleared)
			assert.Equal(t, -1, cleared.MaxAge)
		})
	}
}

func TestDispatcher_LegacyValidationFailure(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedError string
	}{
		{name: "invalid assertion", err: ErrInvalidAssertion, expectedError: "invalid_assertion"},
		{name: "expired assertion", err: ErrAssertionExpired, expectedError: "assertion_expired"},
		{name: "missing email", err: ErrProfileIncomplete, expectedError: "profile_incomplete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t)
			f.legacy.assertion = nil
			f.legacy.err = tt.err

			pin := f.authenticate(t, "legacy")

			r := httptest.NewRequest("POST", "/authenticate/callback",
				strings.NewReader(url.Values{"SAMLResponse": {"UkVTUE9OU0U="}}.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			r.AddCookie(pin)
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, r)

			target := redirectTarget(t, w)
			assert.Equal(t, tt.expectedError, target.Query().Get("error"))
		})
	}
}

func TestDispatcher_UnknownUser(t *testing.T) {
	f := newDispatcherFixture(t)
	f.legacy.assertion = &Assertion{Provider: ProviderLegacy, Email: "stranger@example.com"}

	pin := f.authenticate(t, "legacy")

	r := httptest.NewRequest("POST", "/authenticate/callback",
		strings.NewReader(url.Values{"SAMLResponse": {"UkVTUE9OU0U="}}.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(pin)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	target := redirectTarget(t, w)
	assert.Equal(t, "user_not_found", target.Query().Get("error"))
	assert.Nil(t, cookieByName(w, SessionCookieName))
}

func TestDispatcher_AuthenticateMisconfiguredTenant(t *testing.T) {
	resolver := tenant.NewStaticResolver(tenant.Config{})
	f := newDispatcherFixture(t)

	dispatcher := NewDispatcher(resolver, f.legacy, f.broker, f.pinner,
		NewBinder(users.NewStaticDirectory(), session.NewMemoryStore(), time.Hour, false),
		observability.NewMetrics())
	router := mux.NewRouter()
	dispatcher.RegisterRoutes(router)

	r := httptest.NewRequest("POST", "/authenticate",
		strings.NewReader(url.Values{ProviderFormField: {"legacy"}}.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	target := redirectTarget(t, w)
	assert.Equal(t, "/login", target.Path)
	assert.Equal(t, "tenant_misconfigured", target.Query().Get("error"))
}

func TestDispatcher_LoginAndLogout(t *testing.T) {
	f := newDispatcherFixture(t)

	// login page shows the error code
	r := httptest.NewRequest("GET", "/login?error=stale_attempt", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stale_attempt")

	// complete a legacy login, then log out
	pin := f.authenticate(t, "legacy")
	cr := httptest.NewRequest("POST", "/authenticate/callback",
		strings.NewReader(url.Values{"SAMLResponse": {"UkVTUE9OU0U="}}.Encode()))
	cr.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	cr.AddCookie(pin)
	cw := httptest.NewRecorder()
	f.router.ServeHTTP(cw, cr)
	sessCookie := cookieByName(cw, SessionCookieName)
	require.NotNil(t, sessCookie)

	// home page shows the session
	hr := httptest.NewRequest("GET", "/", nil)
	hr.AddCookie(sessCookie)
	hw := httptest.NewRecorder()
	f.router.ServeHTTP(hw, hr)
	assert.Equal(t, http.StatusOK, hw.Code)
	assert.Contains(t, hw.Body.String(), "alice@acme.example.com")

	lr := httptest.NewRequest("GET", "/logout", nil)
	lr.AddCookie(sessCookie)
	lw := httptest.NewRecorder()
	f.router.ServeHTTP(lw, lr)
	assert.Equal(t, http.StatusFound, lw.Code)
	assert.Equal(t, "/login", lw.Header().Get("Location"))

	// the session no longer resolves
	hr2 := httptest.NewRequest("GET", "/", nil)
	hr2.AddCookie(sessCookie)
	hw2 := httptest.NewRecorder()
	f.router.ServeHTTP(hw2, hr2)
	assert.Equal(t, http.StatusFound, hw2.Code)
	assert.Equal(t, "/login", hw2.Header().Get("Location"))
}

func TestDispatcher_IndexWithoutSession(t *testing.T) {
	f := newDispatcherFixture(t)

	r := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}
