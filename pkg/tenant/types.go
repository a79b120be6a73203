package tenant

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound is returned when no tenant configuration matches the request
var ErrNotFound = errors.New("tenant configuration not found")

// IncompleteError is returned when a tenant's configuration is missing
// required fields
type IncompleteError struct {
	Tenant  string
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("tenant %q configuration incomplete: missing %s",
		e.Tenant, strings.Join(e.Missing, ", "))
}

// Config holds the SSO configuration for one tenant
type Config struct {
	// Legacy SAML settings
	SSOEntryURL    string `yaml:"sso_entry_url" json:"sso_entry_url"`
	Issuer         string `yaml:"issuer" json:"issuer"`
	IDPCertificate string `yaml:"idp_certificate" json:"-"`

	// Broker settings. Exactly one selector is needed: a connection pins
	// one IdP, an organization lets the broker pick among the org's
	// connections, a provider names a hosted OAuth provider directly.
	BrokerConnectionID   string `yaml:"broker_connection_id" json:"broker_connection_id"`
	BrokerOrganizationID string `yaml:"broker_organization_id,omitempty" json:"broker_organization_id,omitempty"`
	BrokerProvider       string `yaml:"broker_provider,omitempty" json:"broker_provider,omitempty"`
	BrokerACSURL         string `yaml:"broker_acs_url" json:"broker_acs_url"`

	// DefaultProvider controls the rollout default when a login request
	// carries no explicit provider selection ("legacy" or "broker")
	DefaultProvider string `yaml:"default_provider,omitempty" json:"default_provider,omitempty"`
}

// Validate reports missing required fields as an IncompleteError
func (c *Config) Validate(name string) error {
	var missing []string
	if c.SSOEntryURL == "" {
		missing = append(missing, "sso_entry_url")
	}
	if c.Issuer == "" {
		missing = append(missing, "issuer")
	}
	if c.IDPCertificate == "" {
		missing = append(missing, "idp_certificate")
	}
	if c.BrokerConnectionID == "" && c.BrokerOrganizationID == "" && c.BrokerProvider == "" {
		missing = append(missing, "broker_connection_id")
	}
	if c.BrokerACSURL == "" {
		missing = append(missing, "broker_acs_url")
	}

	if len(missing) > 0 {
		return &IncompleteError{Tenant: name, Missing: missing}
	}
	return nil
}

// Resolver resolves the SSO configuration applicable to a request
type Resolver interface {
	Resolve(r *http.Request) (*Config, error)
}

// requestHost normalizes a request's Host header for tenant lookup
func requestHost(r *http.Request) string {
	host := r.Host
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	return strings.ToLower(host)
}
