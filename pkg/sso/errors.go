package sso

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/ssobridge/pkg/tenant"
)

// Sentinel errors for the terminal failure outcomes of a login attempt.
// The dispatcher maps each of these to an error code on the login page
// redirect without exposing provider internals.
var (
	// ErrPinMissing means no provider pin accompanied the callback; the
	// attempt cannot be resumed and the user must restart
	ErrPinMissing = errors.New("provider pin missing")
	// ErrPinStale means the provider pin had expired before the callback
	// arrived
	ErrPinStale = errors.New("provider pin stale")
	// ErrProviderMismatch means the callback arrived on an endpoint that
	// does not belong to the pinned provider
	ErrProviderMismatch = errors.New("callback does not match pinned provider")
	// ErrInvalidAssertion means the SAML response failed signature,
	// audience, or structural validation
	ErrInvalidAssertion = errors.New("invalid SAML assertion")
	// ErrAssertionExpired means the SAML assertion was outside its
	// validity window
	ErrAssertionExpired = errors.New("SAML assertion expired")
	// ErrProfileIncomplete means the provider authenticated the subject
	// but did not assert an email address
	ErrProfileIncomplete = errors.New("profile missing email")
	// ErrSelectorMissing means the tenant has no broker connection or
	// organization configured, so no broker redirect can be built
	ErrSelectorMissing = errors.New("no broker connection selector configured")
	// ErrBrokerUnreachable means the token exchange could not reach the
	// broker at all
	ErrBrokerUnreachable = errors.New("broker unreachable")
	// ErrUserNotFound means the assertion was valid but no active user
	// matched it
	ErrUserNotFound = errors.New("no user matches assertion")
)

// OAuthError is a structured error response from the broker's token
// endpoint
type OAuthError struct {
	Code        string
	Description string
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("broker oauth error %q: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("broker oauth error %q", e.Code)
}

// ErrorCode maps a login failure to the stable code surfaced in the
// login page redirect. Unknown errors map to "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrPinMissing), errors.Is(err, ErrPinStale):
		return "stale_attempt"
	case errors.Is(err, ErrProviderMismatch):
		return "provider_mismatch"
	case errors.Is(err, ErrAssertionExpired):
		return "assertion_expired"
	case errors.Is(err, ErrInvalidAssertion):
		return "invalid_assertion"
	case errors.Is(err, ErrProfileIncomplete):
		return "profile_incomplete"
	case errors.Is(err, ErrSelectorMissing):
		return "selector_missing"
	case errors.Is(err, ErrBrokerUnreachable):
		return "broker_unreachable"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, tenant.ErrNotFound):
		return "unknown_tenant"
	}
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return "broker_denied"
	}
	var incomplete *tenant.IncompleteError
	if errors.As(err, &incomplete) {
		return "tenant_misconfigured"
	}
	return "internal"
}
