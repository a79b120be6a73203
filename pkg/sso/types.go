package sso

import (
	"context"
	"net/http"

	"github.com/platinummonkey/ssobridge/pkg/tenant"
)

// ProviderChoice identifies which provider handles a login attempt
type ProviderChoice string

const (
	// ProviderLegacy routes the attempt to the tenant's own SAML IdP
	ProviderLegacy ProviderChoice = "legacy"
	// ProviderBroker routes the attempt to the hosted SSO broker
	ProviderBroker ProviderChoice = "broker"
)

// Valid reports whether the choice is one of the known providers
func (p ProviderChoice) Valid() bool {
	return p == ProviderLegacy || p == ProviderBroker
}

// Assertion is the provider-neutral result of a validated login. Both the
// SAML adapter and the broker adapter normalize into this shape before
// the user lookup runs.
type Assertion struct {
	// Email is the asserted identity; always present on a valid assertion
	Email string
	// SubjectID is the provider's stable identifier for the subject, when
	// one was asserted (SAML NameID, broker profile ID)
	SubjectID string
	// OrganizationID scopes the user lookup when the provider asserted an
	// organization; empty means lookup by email alone
	OrganizationID string
	// Provider records which adapter produced the assertion
	Provider ProviderChoice
	// RawProfile holds provider attributes that were not normalized,
	// keyed by attribute name
	RawProfile map[string]string
}

// LegacyAuthenticator starts and completes logins against a tenant's own
// SAML identity provider
type LegacyAuthenticator interface {
	// AuthnRedirectURL builds the redirect URL that starts a SAML
	// authentication request at the tenant's IdP
	AuthnRedirectURL(cfg *tenant.Config, relayState string) (string, error)
	// ValidateCallback validates a SAML response posted back by the IdP
	// and normalizes it into an Assertion
	ValidateCallback(ctx context.Context, cfg *tenant.Config, r *http.Request) (*Assertion, error)
}

// BrokerAuthenticator starts and completes logins against the hosted SSO
// broker
type BrokerAuthenticator interface {
	// AuthorizationURL builds the broker authorization redirect for the
	// tenant's connection or organization
	AuthorizationURL(cfg *tenant.Config, state string) (string, error)
	// ExchangeCode redeems an authorization code for the authenticated
	// profile
	ExchangeCode(ctx context.Context, code string) (*Assertion, error)
	// ACSURL returns the broker's assertion consumer service URL for the
	// tenant, used when relaying stray SAML callbacks
	ACSURL(cfg *tenant.Config) string
}
