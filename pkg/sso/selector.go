package sso

import (
	"net/http"

	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/tenant"
)

// ProviderFormField is the login form field carrying the provider choice
const ProviderFormField = "sso_provider"

// SelectProvider decides which provider handles a fresh login attempt.
// The login form's sso_provider field wins when it names a known
// provider; otherwise the tenant's default applies, falling back to the
// legacy provider. An unrecognized form value is logged and never passed
// through to an adapter.
func SelectProvider(r *http.Request, cfg *tenant.Config) ProviderChoice {
	raw := r.PostFormValue(ProviderFormField)
	choice := ProviderChoice(raw)
	if choice.Valid() {
		return choice
	}

	fallback := ProviderLegacy
	if def := ProviderChoice(cfg.DefaultProvider); def.Valid() {
		fallback = def
	}

	if raw != "" {
		observability.FromContext(r.Context()).WithFields(map[string]interface{}{
			"sso_provider": raw,
			"fallback":     string(fallback),
		}).Warn("unrecognized provider selection, using fallback")
	}
	return fallback
}
