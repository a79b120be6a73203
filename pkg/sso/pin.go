package sso

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PinCookieName is the cookie that pins a login attempt to a provider
// across the redirect round trip
const PinCookieName = "sso_provider"

// Pinner issues and reads the provider pin cookie. The cookie value is
// sealed with HMAC-SHA256 so a tampered or forged pin reads back as
// missing, never as a different provider.
type Pinner struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewPinner creates a Pinner. The TTL only needs to cover one redirect
// round trip; anything longer weakens the staleness guarantee.
func NewPinner(secret []byte, ttl time.Duration, secure bool) *Pinner {
	return &Pinner{
		secret: secret,
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}
}

// Issue sets the pin cookie recording the provider choice for the
// attempt that is about to redirect away
func (p *Pinner) Issue(w http.ResponseWriter, provider ProviderChoice) {
	issuedAt := p.now().Unix()
	payload := fmt.Sprintf("%s|%d", provider, issuedAt)
	value := payload + "|" + p.sign(payload)

	http.SetCookie(w, &http.Cookie{
		Name:     PinCookieName,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(value)),
		Path:     "/",
		MaxAge:   int(p.ttl.Seconds()),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read returns the pinned provider for the request. A missing, malformed,
// or tampered cookie returns ErrPinMissing; a cookie older than the TTL
// returns ErrPinStale.
func (p *Pinner) Read(r *http.Request) (ProviderChoice, error) {
	cookie, err := r.Cookie(PinCookieName)
	if err != nil {
		return "", ErrPinMissing
	}

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return "", ErrPinMissing
	}

	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return "", ErrPinMissing
	}

	payload := parts[0] + "|" + parts[1]
	if !hmac.Equal([]byte(p.sign(payload)), []byte(parts[2])) {
		return "", ErrPinMissing
	}

	provider := ProviderChoice(parts[0])
	if !provider.Valid() {
		return "", ErrPinMissing
	}

	issuedAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrPinMissing
	}
	if p.now().Sub(time.Unix(issuedAt, 0)) > p.ttl {
		return "", ErrPinStale
	}

	return provider, nil
}

// Clear removes the pin cookie; called on every terminal outcome of an
// attempt
func (p *Pinner) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     PinCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (p *Pinner) sign(payload string) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
