package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	// user directory database drivers
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/ssobridge/pkg/api"
	"github.com/platinummonkey/ssobridge/pkg/config"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/session"
	"github.com/platinummonkey/ssobridge/pkg/sso"
	"github.com/platinummonkey/ssobridge/pkg/tenant"
	"github.com/platinummonkey/ssobridge/pkg/users"
)

func main() {
	// Local dev settings come from .env; absent in production
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting SSO bridge")

	ctx := context.Background()

	tracerProvider, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	// Tenant resolution: a watched YAML file for multi-tenant
	// deployments, env config for single-tenant ones
	var resolver tenant.Resolver
	var fileResolver *tenant.FileResolver
	if cfg.Stores.TenantsFile != "" {
		fileResolver, err = tenant.NewFileResolver(cfg.Stores.TenantsFile, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to load tenants file")
			os.Exit(1)
		}
		cached, err := tenant.NewCachedResolver(fileResolver, cfg.Stores.TenantCacheSize)
		if err != nil {
			logger.WithError(err).Error("Failed to create tenant cache")
			os.Exit(1)
		}
		fileResolver.OnReload(cached.Purge)
		resolver = cached
		logger.WithField("file", cfg.Stores.TenantsFile).Info("Tenant configuration loaded from file")
	} else {
		resolver = tenant.StaticResolverFromEnv()
		logger.Info("Tenant configuration loaded from environment")
	}

	// User directory
	var db *sql.DB
	var directory users.Directory
	if cfg.Stores.DatabaseURL != "" {
		db, err = sql.Open(cfg.Stores.DatabaseDriver, cfg.Stores.DatabaseURL)
		if err != nil {
			logger.WithError(err).Error("Failed to open user directory database")
			os.Exit(1)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			cancel()
			logger.WithError(err).Error("User directory database unreachable")
			os.Exit(1)
		}
		cancel()
		directory = users.NewSQLDirectory(db)
		logger.WithField("driver", cfg.Stores.DatabaseDriver).Info("User directory connected")
	} else {
		logger.Warn("No database configured, user directory is empty")
		directory = users.NewStaticDirectory()
	}

	// Session store
	var redisClient *redis.Client
	var sessions session.Store
	var stopSessionSweep func()
	if cfg.Stores.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Stores.RedisURL,
			Password: cfg.Stores.RedisPassword,
			DB:       cfg.Stores.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.WithError(err).Error("Redis unreachable")
			os.Exit(1)
		}
		cancel()
		sessions = session.NewRedisStore(redisClient)
		logger.Info("Redis session store connected")
	} else {
		logger.Warn("No Redis configured, sessions are in-memory")
		memSessions := session.NewMemoryStore()
		stopSessionSweep = memSessions.StartSweeping(time.Minute)
		sessions = memSessions
	}

	broker, err := sso.NewBrokerClient(ctx, sso.BrokerConfig{
		ClientID:        cfg.Broker.ClientID,
		ClientSecret:    cfg.Broker.ClientSecret,
		AuthURL:         cfg.Broker.AuthURL,
		TokenURL:        cfg.Broker.TokenURL,
		CallbackURL:     cfg.Broker.CallbackURL,
		IssuerURL:       cfg.Broker.IssuerURL,
		ExchangeTimeout: cfg.Broker.ExchangeTimeout,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to create broker client")
		os.Exit(1)
	}

	legacy := sso.NewSAMLAuthenticator(cfg.Server.BaseURL, cfg.Server.BaseURL+"/authenticate/callback")
	pinner := sso.NewPinner([]byte(cfg.Auth.CookieSecret), cfg.Auth.PinTTL, cfg.Auth.SecureCookies)
	binder := sso.NewBinder(directory, sessions, cfg.Auth.SessionTTL, cfg.Auth.SecureCookies)

	metrics := observability.NewMetrics()
	dispatcher := sso.NewDispatcher(resolver, legacy, broker, pinner, binder, metrics)
	server := api.NewServer(dispatcher, logger, metrics)

	appServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on their own port so probes and scrapes skip
	// the auth middleware
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, appServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if tracerProvider != nil {
			return observability.ShutdownOTel(ctx, tracerProvider, logger)
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if fileResolver != nil {
			return fileResolver.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if stopSessionSweep != nil {
			stopSessionSweep()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if db != nil {
			return db.Close()
		}
		return nil
	})

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", appServer.Addr)
		if err := appServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown()
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
