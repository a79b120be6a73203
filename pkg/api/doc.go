// Package api assembles the HTTP surface of the bridge: the
// authentication endpoints plus request ID, logging, recovery, tracing,
// and metrics middleware.
package api
