// Package runtime assembles the full process: configuration, storage,
// external providers, HTTP surface and lifecycle.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	app "github.com/getdatasurge/frostguard/internal/app"
	"github.com/getdatasurge/frostguard/internal/app/httpapi"
	alertsvc "github.com/getdatasurge/frostguard/internal/app/services/alerts"
	billingsvc "github.com/getdatasurge/frostguard/internal/app/services/billing"
	devicesvc "github.com/getdatasurge/frostguard/internal/app/services/devices"
	notifysvc "github.com/getdatasurge/frostguard/internal/app/services/notifications"
	"github.com/getdatasurge/frostguard/internal/app/storage/postgres"
	"github.com/getdatasurge/frostguard/internal/cache"
	"github.com/getdatasurge/frostguard/internal/config"
	"github.com/getdatasurge/frostguard/internal/middleware"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	hub        *httpapi.Hub
	db         *sql.DB
	cache      *cache.Cache
}

// NewApplication constructs a new application instance with default wiring.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: "frostguard",
	})

	stores, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	opts, readingCache, err := buildOptions(cfg, log)
	if err != nil {
		return nil, err
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		return nil, fmt.Errorf("assemble application: %w", err)
	}

	hub := httpapi.NewHub(log)
	application.Ingest.AttachPublisher(hub)
	// Dashboards get alert transitions on the same stream as readings.
	application.Monitor.WithNotifier(alertsvc.Notifiers{application.Notifications, hub})

	handler, err := buildHandler(cfg, log, application, hub)
	if err != nil {
		return nil, err
	}
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: httpSrv,
		hub:        hub,
		db:         db,
		cache:      readingCache,
	}, nil
}

func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_DSN not set; using in-memory storage")
		return app.Stores{}, nil, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := runMigrations(db, cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("run migrations: %w", err)
	}

	store := postgres.New(db)
	return app.Stores{
		Orgs:          store,
		Sites:         store,
		Units:         store,
		Policies:      store,
		Readings:      store,
		Alerts:        store,
		Contacts:      store,
		Notifications: store,
		Devices:       store,
		Subscriptions: store,
		Reports:       store,
	}, db, nil
}

func runMigrations(db *sql.DB, path string) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func buildOptions(cfg *config.Config, log *logger.Logger) (app.Options, *cache.Cache, error) {
	opts := app.Options{
		BillingWebhookSecret: cfg.Billing.WebhookSecret,
		MonitorInterval:      cfg.Monitor.Interval,
		DispatchInterval:     cfg.Monitor.DispatchInterval,
		ProvisionInterval:    cfg.Monitor.ProvisionInterval,
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}

	if cfg.SMS.APIKey != "" {
		sms, err := notifysvc.NewSMSSender(httpClient, cfg.SMS.BaseURL, cfg.SMS.APIKey, cfg.SMS.FromNumber, log)
		if err != nil {
			return opts, nil, fmt.Errorf("configure sms sender: %w", err)
		}
		opts.SMS = sms
	}
	if cfg.Email.APIKey != "" {
		email, err := notifysvc.NewEmailSender(httpClient, cfg.Email.BaseURL, cfg.Email.APIKey, cfg.Email.FromAddress, log)
		if err != nil {
			return opts, nil, fmt.Errorf("configure email sender: %w", err)
		}
		opts.Email = email
	}
	if cfg.TTN.APIKey != "" && cfg.TTN.ApplicationID != "" {
		registrar, err := devicesvc.NewHTTPRegistrar(httpClient, cfg.TTN.BaseURL, cfg.TTN.APIKey, cfg.TTN.ApplicationID, log)
		if err != nil {
			return opts, nil, fmt.Errorf("configure device registrar: %w", err)
		}
		opts.Registrar = registrar
	}

	var readingCache *cache.Cache
	if cfg.Redis.Addr != "" {
		c, err := cache.New(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).Warn("redis unavailable; continuing without cache")
		} else {
			readingCache = c
			opts.Cache = c
		}
	}

	if cfg.Billing.PlansPath != "" {
		plans, err := billingsvc.LoadPlans(cfg.Billing.PlansPath)
		if err != nil {
			return opts, nil, fmt.Errorf("load plans: %w", err)
		}
		opts.Plans = plans
	}

	return opts, readingCache, nil
}

func buildHandler(cfg *config.Config, log *logger.Logger, application *app.Application, hub *httpapi.Hub) (http.Handler, error) {
	sink, err := httpapi.NewFileAuditSink(cfg.Server.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	auditBuf := httpapi.NewAuditLog(200, sink)

	mux := http.NewServeMux()
	mux.Handle("/webhooks/", httpapi.NewWebhookHandler(application, httpapi.WebhookConfig{
		TTNSecret: cfg.TTN.WebhookSecret,
	}))
	mux.Handle("/stream/readings", hub)
	mux.Handle("/", httpapi.NewHandler(application, auditBuf, hub))

	// Audit sits inside auth so entries carry the token claims.
	handler := httpapi.WrapWithAudit(mux, auditBuf)

	// Browsers cannot set headers on websocket upgrades, so the stream
	// endpoint filters by org instead of carrying a bearer token.
	auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), log, []string{
		"/healthz",
		"/metrics",
		"/webhooks/",
		"/stream/",
	})
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst, log)
	cors := middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	instr := middleware.NewMetricsMiddleware(application.Metrics)

	return cors.Handler(limiter.Handler(auth.Handler(instr.Handler(handler)))), nil
}

// Run starts the background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server and background services.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}
	if err := a.app.Stop(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	a.hub.Close()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
