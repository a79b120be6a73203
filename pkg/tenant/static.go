package tenant

import (
	"net/http"
	"os"
)

// StaticResolver serves one fixed tenant configuration regardless of the
// request. It mirrors single-tenant deployments where the configuration
// comes straight from the environment.
type StaticResolver struct {
	config Config
}

// NewStaticResolver creates a resolver around a fixed configuration
func NewStaticResolver(config Config) *StaticResolver {
	return &StaticResolver{config: config}
}

// StaticResolverFromEnv builds a StaticResolver from SSOBRIDGE_TENANT_*
// environment variables
func StaticResolverFromEnv() *StaticResolver {
	return NewStaticResolver(Config{
		SSOEntryURL:          os.Getenv("SSOBRIDGE_TENANT_SSO_ENTRY_URL"),
		Issuer:               os.Getenv("SSOBRIDGE_TENANT_ISSUER"),
		IDPCertificate:       os.Getenv("SSOBRIDGE_TENANT_IDP_CERTIFICATE"),
		BrokerConnectionID:   os.Getenv("SSOBRIDGE_TENANT_BROKER_CONNECTION_ID"),
		BrokerOrganizationID: os.Getenv("SSOBRIDGE_TENANT_BROKER_ORGANIZATION_ID"),
		BrokerProvider:       os.Getenv("SSOBRIDGE_TENANT_BROKER_PROVIDER"),
		BrokerACSURL:         os.Getenv("SSOBRIDGE_TENANT_BROKER_ACS_URL"),
		DefaultProvider:      os.Getenv("SSOBRIDGE_TENANT_DEFAULT_PROVIDER"),
	})
}

// Resolve returns the fixed configuration after validating it
func (s *StaticResolver) Resolve(r *http.Request) (*Config, error) {
	cfg := s.config
	if err := cfg.Validate(requestHost(r)); err != nil {
		return nil, err
	}
	return &cfg, nil
}
