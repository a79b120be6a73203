// Package session stores authenticated sessions. The bridge keeps the
// session record server side (Redis in production, memory for dev) and
// hands the browser only the opaque session ID.
package session
