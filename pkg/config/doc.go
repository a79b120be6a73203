// Package config loads sso-bridge configuration from SSOBRIDGE_*
// environment variables and validates it before startup.
package config
