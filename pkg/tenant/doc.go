// Package tenant resolves the per-tenant SSO configuration for an inbound
// request. The bridge supports a single-tenant resolver fed from the
// environment, a multi-tenant resolver backed by a hot-reloaded YAML file
// keyed by request host, and an LRU caching decorator. Resolution is
// read-only and idempotent for a given request.
package tenant
