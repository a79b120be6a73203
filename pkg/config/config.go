package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/ssobridge/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Auth configuration (pinning cookie, sessions, rollout)
	Auth AuthConfig

	// Broker SSO configuration
	Broker BrokerConfig

	// External stores (user directory, session store, tenant file)
	Stores StoresConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	BaseURL         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds authentication round-trip configuration
type AuthConfig struct {
	// CookieSecret seals the provider pinning cookie
	CookieSecret string
	// PinTTL bounds how long a half-completed login can resume
	PinTTL time.Duration
	// SessionTTL is the lifetime of an authenticated session
	SessionTTL time.Duration
	// SecureCookies marks cookies Secure (disable for local dev only)
	SecureCookies bool
}

// BrokerConfig holds the SSO broker's OAuth client configuration
type BrokerConfig struct {
	ClientID        string
	ClientSecret    string
	AuthURL         string
	TokenURL        string
	CallbackURL     string
	IssuerURL       string // optional; enables id_token verification
	ExchangeTimeout time.Duration
}

// StoresConfig holds external collaborator configuration
type StoresConfig struct {
	// TenantsFile is the YAML file mapping request hosts to tenant
	// SSO configuration; empty means the single-tenant env config is used
	TenantsFile     string
	TenantCacheSize int

	// User directory database
	DatabaseDriver string // postgres or sqlite3
	DatabaseURL    string

	// Redis session store; empty means in-memory sessions
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Auth:          loadAuthConfig(),
		Broker:        loadBrokerConfig(),
		Stores:        loadStoresConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SSOBRIDGE_HOST", "0.0.0.0"),
		Port:            getEnv("SSOBRIDGE_PORT", "8080"),
		BaseURL:         getEnv("SSOBRIDGE_BASE_URL", "http://localhost:8080"),
		ReadTimeout:     getEnvDuration("SSOBRIDGE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SSOBRIDGE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SSOBRIDGE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SSOBRIDGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SSOBRIDGE_HEALTH_PORT", "9090"),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		CookieSecret:  getEnv("SSOBRIDGE_COOKIE_SECRET", ""),
		PinTTL:        getEnvDuration("SSOBRIDGE_PIN_TTL", 30*time.Second),
		SessionTTL:    getEnvDuration("SSOBRIDGE_SESSION_TTL", 24*time.Hour),
		SecureCookies: getEnvBool("SSOBRIDGE_SECURE_COOKIES", true),
	}
}

func loadBrokerConfig() BrokerConfig {
	return BrokerConfig{
		ClientID:        getEnv("SSOBRIDGE_BROKER_CLIENT_ID", ""),
		ClientSecret:    getEnv("SSOBRIDGE_BROKER_CLIENT_SECRET", ""),
		AuthURL:         getEnv("SSOBRIDGE_BROKER_AUTH_URL", "https://api.workos.com/sso/authorize"),
		TokenURL:        getEnv("SSOBRIDGE_BROKER_TOKEN_URL", "https://api.workos.com/sso/token"),
		CallbackURL:     getEnv("SSOBRIDGE_BROKER_CALLBACK_URL", ""),
		IssuerURL:       getEnv("SSOBRIDGE_BROKER_ISSUER_URL", ""),
		ExchangeTimeout: getEnvDuration("SSOBRIDGE_BROKER_EXCHANGE_TIMEOUT", 10*time.Second),
	}
}

func loadStoresConfig() StoresConfig {
	return StoresConfig{
		TenantsFile:     getEnv("SSOBRIDGE_TENANTS_FILE", ""),
		TenantCacheSize: getEnvInt("SSOBRIDGE_TENANT_CACHE_SIZE", 128),
		DatabaseDriver:  getEnv("SSOBRIDGE_DATABASE_DRIVER", "postgres"),
		DatabaseURL:     getEnv("SSOBRIDGE_DATABASE_URL", ""),
		RedisURL:        getEnv("SSOBRIDGE_REDIS_URL", ""),
		RedisPassword:   getEnv("SSOBRIDGE_REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("SSOBRIDGE_REDIS_DB", 0),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           ParseLogLevel(getEnv("SSOBRIDGE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("SSOBRIDGE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("SSOBRIDGE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("SSOBRIDGE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("SSOBRIDGE_OTEL_SERVICE_NAME", "sso-bridge"),
		OTelServiceVersion: getEnv("SSOBRIDGE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("SSOBRIDGE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}

	if c.Auth.CookieSecret == "" {
		return fmt.Errorf("cookie secret is required")
	}
	if c.Auth.PinTTL <= 0 {
		return fmt.Errorf("pin TTL must be positive")
	}

	if c.Broker.ClientID == "" {
		return fmt.Errorf("broker client ID is required")
	}
	if c.Broker.ClientSecret == "" {
		return fmt.Errorf("broker client secret is required")
	}
	if c.Broker.CallbackURL == "" {
		return fmt.Errorf("broker callback URL is required")
	}

	switch c.Stores.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Stores.DatabaseDriver)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
