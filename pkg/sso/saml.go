package sso

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/platinummonkey/ssobridge/pkg/tenant"
)

// Common SAML attribute names asserted by the legacy identity providers
const (
	samlAttrEmail        = "email"
	samlAttrEmailAddress = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	samlAttrOrganization = "organization_id"
)

// SAMLAuthenticator validates logins against each tenant's own SAML
// identity provider. Service providers are built per tenant from the
// resolved configuration; the adapter holds only process-wide settings.
type SAMLAuthenticator struct {
	// AudienceURI is the SP entity ID the IdPs are configured to assert
	// for; usually the application base URL
	AudienceURI string
	// CallbackURL is the SP assertion consumer service URL registered
	// with the legacy IdPs
	CallbackURL string
	// SkipSignatureValidation disables response signature checks; only
	// ever set in tests
	SkipSignatureValidation bool
}

// NewSAMLAuthenticator creates a SAML adapter for the given SP identity
func NewSAMLAuthenticator(audienceURI, callbackURL string) *SAMLAuthenticator {
	return &SAMLAuthenticator{
		AudienceURI: audienceURI,
		CallbackURL: callbackURL,
	}
}

// serviceProvider builds the gosaml2 service provider for one tenant
func (a *SAMLAuthenticator) serviceProvider(cfg *tenant.Config) (*saml2.SAMLServiceProvider, error) {
	certBlock, _ := pem.Decode([]byte(cfg.IDPCertificate))
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode IdP certificate PEM")
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse IdP certificate: %w", err)
	}

	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}

	return &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.SSOEntryURL,
		IdentityProviderIssuer:      cfg.Issuer,
		ServiceProviderIssuer:       a.AudienceURI,
		AssertionConsumerServiceURL: a.CallbackURL,
		AudienceURI:                 a.AudienceURI,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  dsig.RandomKeyStoreForTest(),
		SkipSignatureValidation:     a.SkipSignatureValidation,
	}, nil
}

// AuthnRedirectURL implements LegacyAuthenticator
func (a *SAMLAuthenticator) AuthnRedirectURL(cfg *tenant.Config, relayState string) (string, error) {
	sp, err := a.serviceProvider(cfg)
	if err != nil {
		return "", err
	}

	authURL, err := sp.BuildAuthURL(relayState)
	if err != nil {
		return "", fmt.Errorf("failed to build auth URL: %w", err)
	}
	return authURL, nil
}

// ValidateCallback implements LegacyAuthenticator. The SAMLResponse form
// value is validated against the tenant's IdP certificate and audience,
// then normalized into an Assertion.
func (a *SAMLAuthenticator) ValidateCallback(ctx context.Context, cfg *tenant.Config, r *http.Request) (*Assertion, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	samlResponse := r.PostFormValue("SAMLResponse")
	if samlResponse == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter: %w", ErrInvalidAssertion)
	}

	sp, err := a.serviceProvider(cfg)
	if err != nil {
		return nil, err
	}

	assertionInfo, err := sp.RetrieveAssertionInfo(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	if assertionInfo.WarningInfo != nil {
		if assertionInfo.WarningInfo.InvalidTime {
			return nil, ErrAssertionExpired
		}
		if assertionInfo.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidAssertion)
		}
	}

	return normalizeAssertion(assertionInfo)
}

// normalizeAssertion maps a validated SAML assertion into the
// provider-neutral shape
func normalizeAssertion(info *saml2.AssertionInfo) (*Assertion, error) {
	assertion := &Assertion{
		Provider:   ProviderLegacy,
		SubjectID:  info.NameID,
		RawProfile: make(map[string]string),
	}

	for _, attr := range info.Values {
		if len(attr.Values) == 0 {
			continue
		}
		value := attr.Values[0].Value
		assertion.RawProfile[attr.Name] = value

		switch attr.Name {
		case samlAttrEmail, samlAttrEmailAddress:
			assertion.Email = value
		case samlAttrOrganization:
			assertion.OrganizationID = value
		}
	}

	// NameID carries the email for IdPs using the emailAddress format
	if assertion.Email == "" && looksLikeEmail(info.NameID) {
		assertion.Email = info.NameID
	}

	if assertion.Email == "" {
		return nil, ErrProfileIncomplete
	}
	return assertion, nil
}

func looksLikeEmail(s string) bool {
	at := -1
	for i, r := range s {
		if r == '@' {
			if at >= 0 {
				return false
			}
			at = i
		}
	}
	return at > 0 && at < len(s)-1
}
