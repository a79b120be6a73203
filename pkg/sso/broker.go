package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/ssobridge/pkg/tenant"
)

// BrokerConfig configures the hosted SSO broker adapter
type BrokerConfig struct {
	ClientID     string
	ClientSecret string
	// AuthURL and TokenURL are the broker's authorization and token
	// endpoints
	AuthURL  string
	TokenURL string
	// CallbackURL is where the broker redirects with the authorization
	// code
	CallbackURL string
	// IssuerURL enables ID token verification when the broker issues
	// OIDC tokens; empty disables verification
	IssuerURL string
	// ExchangeTimeout bounds the code exchange round trip
	ExchangeTimeout time.Duration
}

// BrokerClient authenticates users through the hosted SSO broker using
// the OAuth2 authorization code flow
type BrokerClient struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	timeout  time.Duration
}

// NewBrokerClient creates a broker adapter. When cfg.IssuerURL is set the
// broker's OIDC discovery document is fetched and ID tokens on the token
// response are verified.
func NewBrokerClient(ctx context.Context, cfg BrokerConfig) (*BrokerClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("broker client ID and secret are required")
	}

	timeout := cfg.ExchangeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &BrokerClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		timeout: timeout,
	}

	if cfg.IssuerURL != "" {
		provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("failed to discover broker OIDC provider: %w", err)
		}
		client.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	}

	return client, nil
}

// AuthorizationURL implements BrokerAuthenticator. The tenant's
// connection ID selects the IdP behind the broker; an organization ID
// lets the broker pick among the organization's connections.
func (c *BrokerClient) AuthorizationURL(cfg *tenant.Config, state string) (string, error) {
	var selector oauth2.AuthCodeOption
	switch {
	case cfg.BrokerConnectionID != "":
		selector = oauth2.SetAuthURLParam("connection", cfg.BrokerConnectionID)
	case cfg.BrokerOrganizationID != "":
		selector = oauth2.SetAuthURLParam("organization", cfg.BrokerOrganizationID)
	case cfg.BrokerProvider != "":
		selector = oauth2.SetAuthURLParam("provider", cfg.BrokerProvider)
	default:
		return "", ErrSelectorMissing
	}

	return c.oauth.AuthCodeURL(state, selector), nil
}

// ACSURL implements BrokerAuthenticator
func (c *BrokerClient) ACSURL(cfg *tenant.Config) string {
	return cfg.BrokerACSURL
}

// brokerProfile is the profile object the broker attaches to its token
// response
type brokerProfile struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	OrganizationID string `json:"organization_id"`
	ConnectionType string `json:"connection_type"`
}

// ExchangeCode implements BrokerAuthenticator. A structured error from
// the token endpoint becomes an OAuthError; a transport failure becomes
// ErrBrokerUnreachable.
func (c *BrokerClient) ExchangeCode(ctx context.Context, code string) (*Assertion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &OAuthError{
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnreachable, err)
	}

	if c.verifier != nil {
		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok || rawIDToken == "" {
			return nil, fmt.Errorf("%w: token response missing id_token", ErrInvalidAssertion)
		}
		if _, err := c.verifier.Verify(ctx, rawIDToken); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
		}
	}

	profile, err := profileFromToken(token)
	if err != nil {
		return nil, err
	}

	if profile.Email == "" {
		return nil, ErrProfileIncomplete
	}

	assertion := &Assertion{
		Provider:       ProviderBroker,
		Email:          profile.Email,
		SubjectID:      profile.ID,
		OrganizationID: profile.OrganizationID,
		RawProfile:     make(map[string]string),
	}
	if profile.FirstName != "" {
		assertion.RawProfile["first_name"] = profile.FirstName
	}
	if profile.LastName != "" {
		assertion.RawProfile["last_name"] = profile.LastName
	}
	if profile.ConnectionType != "" {
		assertion.RawProfile["connection_type"] = profile.ConnectionType
	}
	return assertion, nil
}

// profileFromToken extracts the broker profile from the token response
// extras
func profileFromToken(token *oauth2.Token) (*brokerProfile, error) {
	raw := token.Extra("profile")
	if raw == nil {
		return nil, fmt.Errorf("%w: token response missing profile", ErrProfileIncomplete)
	}

	// The extra comes back as decoded JSON; round trip through
	// encoding/json to get the typed shape
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal broker profile: %w", err)
	}

	profile := &brokerProfile{}
	if err := json.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to decode broker profile: %w", err)
	}
	return profile, nil
}
