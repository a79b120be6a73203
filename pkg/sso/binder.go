package sso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/ssobridge/pkg/session"
	"github.com/platinummonkey/ssobridge/pkg/users"
)

// SessionCookieName carries the opaque session ID issued after a
// successful login
const SessionCookieName = "ssobridge_session"

// Binder turns a validated assertion into an application session. Both
// providers converge here, so downstream code never sees which provider
// authenticated the user.
type Binder struct {
	directory users.Directory
	store     session.Store
	ttl       time.Duration
	secure    bool
	now       func() time.Time
}

// NewBinder creates a Binder
func NewBinder(directory users.Directory, store session.Store, ttl time.Duration, secure bool) *Binder {
	return &Binder{
		directory: directory,
		store:     store,
		ttl:       ttl,
		secure:    secure,
		now:       time.Now,
	}
}

// Bind looks up the asserted user and creates a session for them. When
// the assertion carries an organization the lookup is scoped to it, so
// the same email in two organizations resolves to the right user.
func (b *Binder) Bind(ctx context.Context, w http.ResponseWriter, assertion *Assertion) (*session.Session, error) {
	var (
		user *users.User
		err  error
	)
	if assertion.OrganizationID != "" {
		user, err = b.directory.FindByOrgAndEmail(ctx, assertion.OrganizationID, assertion.Email)
	} else {
		user, err = b.directory.FindByEmail(ctx, assertion.Email)
	}
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	now := b.now()
	sess := &session.Session{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Email:          user.Email,
		OrganizationID: user.OrganizationID,
		Provider:       string(assertion.Provider),
		CreatedAt:      now,
		ExpiresAt:      now.Add(b.ttl),
	}

	if err := b.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(b.ttl.Seconds()),
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return sess, nil
}

// Current returns the session for the request's session cookie, or
// session.ErrNotFound when there is none
func (b *Binder) Current(ctx context.Context, r *http.Request) (*session.Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, session.ErrNotFound
	}
	return b.store.Get(ctx, cookie.Value)
}

// Terminate deletes the request's session and clears its cookie. A
// request without a session is a no-op.
func (b *Binder) Terminate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	})

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}
	if err := b.store.Delete(ctx, cookie.Value); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
