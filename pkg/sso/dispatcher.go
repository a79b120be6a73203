package sso

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/ssobridge/pkg/httputil"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/session"
	"github.com/platinummonkey/ssobridge/pkg/tenant"
)

// Dispatcher routes each login attempt to one provider and holds the
// decision steady across the redirect round trip. It owns the external
// authentication endpoints.
type Dispatcher struct {
	tenants tenant.Resolver
	legacy  LegacyAuthenticator
	broker  BrokerAuthenticator
	pinner  *Pinner
	binder  *Binder
	metrics *observability.Metrics
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(
	tenants tenant.Resolver,
	legacy LegacyAuthenticator,
	broker BrokerAuthenticator,
	pinner *Pinner,
	binder *Binder,
	metrics *observability.Metrics,
) *Dispatcher {
	return &Dispatcher{
		tenants: tenants,
		legacy:  legacy,
		broker:  broker,
		pinner:  pinner,
		binder:  binder,
		metrics: metrics,
	}
}

// RegisterRoutes mounts the authentication endpoints on the router
func (d *Dispatcher) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authenticate", d.HandleAuthenticate).Methods("POST")
	router.HandleFunc("/authenticate/callback", d.HandleSAMLCallback).Methods("POST")
	router.HandleFunc("/workos/callback", d.HandleBrokerCallback).Methods("GET")
	router.HandleFunc("/logout", d.HandleLogout).Methods("GET")
	router.HandleFunc("/login", d.HandleLogin).Methods("GET")
	router.HandleFunc("/", d.HandleIndex).Methods("GET")
}

// HandleAuthenticate starts a login attempt: resolve the tenant, pick a
// provider, pin the choice, and redirect to that provider. The pin is
// the only state carried into the callback leg.
func (d *Dispatcher) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	cfg, err := d.tenants.Resolve(r)
	if err != nil {
		d.fail(w, r, "", err)
		return
	}
	if err := cfg.Validate(r.Host); err != nil {
		d.fail(w, r, "", err)
		return
	}

	provider := SelectProvider(r, cfg)
	d.metrics.ObserveLoginAttempt(string(provider))

	state := uuid.NewString()

	var redirectURL string
	switch provider {
	case ProviderBroker:
		redirectURL, err = d.broker.AuthorizationURL(cfg, state)
	default:
		redirectURL, err = d.legacy.AuthnRedirectURL(cfg, state)
	}
	if err != nil {
		d.fail(w, r, provider, err)
		return
	}

	d.pinner.Issue(w, provider)
	logger.WithFields(map[string]interface{}{
		"provider": string(provider),
		"tenant":   r.Host,
	}).Info("login attempt dispatched")
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// HandleSAMLCallback receives SAML responses POSTed to the legacy ACS.
// When the attempt is pinned to the broker the response is relayed to
// the broker's ACS untouched and the pin survives for the broker leg;
// only a legacy pin gets the response validated locally.
func (d *Dispatcher) HandleSAMLCallback(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	pinned, err := d.pinner.Read(r)
	if err != nil {
		d.metrics.StalePinRejectsTotal.WithLabelValues("legacy").Inc()
		d.fail(w, r, "", err)
		return
	}

	cfg, err := d.tenants.Resolve(r)
	if err != nil {
		d.fail(w, r, pinned, err)
		return
	}

	if pinned == ProviderBroker {
		if err := r.ParseForm(); err != nil {
			d.fail(w, r, pinned, err)
			return
		}
		samlResponse := r.PostFormValue("SAMLResponse")
		if samlResponse == "" {
			d.fail(w, r, pinned, ErrInvalidAssertion)
			return
		}

		acsURL := d.broker.ACSURL(cfg)
		if acsURL == "" {
			d.fail(w, r, pinned, &tenant.IncompleteError{Tenant: r.Host, Missing: []string{"broker_acs_url"}})
			return
		}

		// Not a terminal outcome: the broker validates the response and
		// redirects back through /workos/callback, so the pin stays.
		d.metrics.RelayForwardsTotal.Inc()
		logger.WithField("tenant", r.Host).Info("relaying SAML response to broker")
		if err := WriteRelayForm(w, acsURL, samlResponse, r.PostFormValue("RelayState")); err != nil {
			logger.WithError(err).Error("relay form write failed")
		}
		return
	}

	assertion, err := d.legacy.ValidateCallback(r.Context(), cfg, r)
	if err != nil {
		d.fail(w, r, pinned, err)
		return
	}

	d.complete(w, r, pinned, assertion)
}

// HandleBrokerCallback receives the broker's authorization code
// redirect. The code is exchanged only when the attempt is pinned to the
// broker; a legacy pin here is a mismatch and no exchange happens.
func (d *Dispatcher) HandleBrokerCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// The broker reports user-facing failures on the redirect itself
	if errCode := query.Get("error"); errCode != "" {
		pinned, _ := d.pinner.Read(r)
		d.fail(w, r, pinned, &OAuthError{
			Code:        errCode,
			Description: query.Get("error_description"),
		})
		return
	}

	code := query.Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	pinned, err := d.pinner.Read(r)
	if err != nil {
		d.metrics.StalePinRejectsTotal.WithLabelValues("broker").Inc()
		d.fail(w, r, "", err)
		return
	}

	if pinned != ProviderBroker {
		d.metrics.ProviderMismatchTotal.Inc()
		d.fail(w, r, pinned, ErrProviderMismatch)
		return
	}

	start := time.Now()
	assertion, err := d.broker.ExchangeCode(r.Context(), code)
	d.metrics.BrokerExchangeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var oauthErr *OAuthError
		switch {
		case errors.As(err, &oauthErr):
			d.metrics.BrokerErrorsTotal.WithLabelValues("oauth").Inc()
		case errors.Is(err, ErrBrokerUnreachable):
			d.metrics.BrokerErrorsTotal.WithLabelValues("unreachable").Inc()
		}
		d.fail(w, r, pinned, err)
		return
	}

	d.complete(w, r, pinned, assertion)
}

// HandleLogout tears down the current session
func (d *Dispatcher) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := d.binder.Terminate(r.Context(), w, r); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("logout failed")
	} else {
		d.metrics.SessionsTerminatedTotal.Inc()
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// HandleLogin renders the login page. A failed attempt lands here with
// its error code in the query string.
func (d *Dispatcher) HandleLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := loginPageTemplate.Execute(w, loginPageData{
		Error: r.URL.Query().Get("error"),
	})
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("login page render failed")
	}
}

// HandleIndex shows the current session, or sends the visitor to the
// login page
func (d *Dispatcher) HandleIndex(w http.ResponseWriter, r *http.Request) {
	sess, err := d.binder.Current(r.Context(), r)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":         sess.UserID,
		"email":           sess.Email,
		"organization_id": sess.OrganizationID,
		"provider":        sess.Provider,
		"expires_at":      sess.ExpiresAt,
	})
}

// complete finishes a successful attempt: bind the assertion to a user,
// clear the pin, and land on the home page
func (d *Dispatcher) complete(w http.ResponseWriter, r *http.Request, provider ProviderChoice, assertion *Assertion) {
	sess, err := d.binder.Bind(r.Context(), w, assertion)
	if err != nil {
		d.fail(w, r, provider, err)
		return
	}

	d.pinner.Clear(w)
	d.metrics.ObserveLoginOutcome(string(provider), "success")
	d.metrics.SessionsCreatedTotal.Inc()

	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"provider": string(provider),
		"user_id":  sess.UserID,
	}).Info("login completed")
	http.Redirect(w, r, "/", http.StatusFound)
}

// fail terminates an attempt: clear the pin, count the outcome, and
// bounce to the login page with a stable error code
func (d *Dispatcher) fail(w http.ResponseWriter, r *http.Request, provider ProviderChoice, err error) {
	code := ErrorCode(err)

	providerLabel := string(provider)
	if providerLabel == "" {
		providerLabel = "unknown"
	}
	d.metrics.ObserveLoginOutcome(providerLabel, code)

	observability.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"provider": providerLabel,
		"outcome":  code,
	}).Warn("login attempt failed")

	d.pinner.Clear(w)
	http.Redirect(w, r, "/login?error="+url.QueryEscape(code), http.StatusFound)
}

type loginPageData struct {
	Error string
}

var loginPageTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
{{if .Error}}<p class="error">Sign-in failed: {{.Error}}</p>{{end}}
<form method="post" action="/authenticate">
<button type="submit" name="sso_provider" value="legacy">Sign in with your identity provider</button>
<button type="submit" name="sso_provider" value="broker">Sign in with SSO</button>
</form>
</body>
</html>
`))
