// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks, and graceful shutdown for the
// sso-bridge service.
//
// The logger is a thin wrapper over log/slog emitting JSON, with helpers
// for carrying a request ID through context. Metrics cover the login
// funnel: attempts by provider, terminal outcomes, POST-binding relays,
// and broker code-exchange latency.
package observability
