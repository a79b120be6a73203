// Package sso implements the dual-provider authentication bridge.
//
// A login attempt is dispatched to exactly one provider: the tenant's
// legacy SAML identity provider, or the hosted SSO broker. The choice is
// pinned in a short-lived signed cookie so the callback leg of the
// redirect round trip lands on the same provider that started it. Stray
// SAML callbacks that arrive while an attempt is pinned to the broker are
// relayed to the broker's assertion consumer service instead of being
// validated locally.
package sso
