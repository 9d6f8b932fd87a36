package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpapi "github.com/ledgerly/agentgate/internal/broker/http"
	"github.com/ledgerly/agentgate/internal/broker/service"
	"github.com/ledgerly/agentgate/internal/broker/store"
	"github.com/ledgerly/agentgate/internal/broker/store/drivers/sqlite"
	"github.com/ledgerly/agentgate/internal/broker/store/memory"
	"github.com/ledgerly/agentgate/internal/broker/upstream"
	"github.com/ledgerly/agentgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the broker with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	upstream *upstream.Client

	authorizeService    *service.AuthorizeService
	tokenService        *service.TokenService
	clientService       *service.ClientService
	sessionService      *service.SessionService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "agentgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	app.upstream = upstream.New(upstream.Config{
		ClientID:     cfg.UpstreamClientID,
		ClientSecret: cfg.UpstreamClientSecret,
		AuthorizeURL: cfg.UpstreamAuthorizeURL,
		TokenURL:     cfg.UpstreamTokenURL,
		WhoamiURL:    cfg.UpstreamWhoamiURL,
		RedirectURL:  cfg.Issuer + "/oauth2/callback",
		Timeout:      cfg.UpstreamTimeout,
	})

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("broker starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down broker...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("broker stopped")
	return nil
}

// initStore picks the backing store per config. sqlite mode persists the
// client registry; flow state is in memory either way.
func (app *Application) initStore() error {
	if app.cfg.StorageMode == "memory" {
		app.db = memory.New()
		return nil
	}

	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	app.authorizeService = &service.AuthorizeService{
		Store:      app.db,
		Upstream:   app.upstream,
		PendingTTL: app.cfg.PendingTTL,
		CodeTTL:    app.cfg.CodeTTL,
	}
	app.tokenService = &service.TokenService{
		Store:    app.db,
		Upstream: app.upstream,
	}
	app.clientService = &service.ClientService{Store: app.db}
	app.sessionService = &service.SessionService{
		Store:      app.db,
		Upstream:   app.upstream,
		SessionTTL: app.cfg.SessionTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	app.router = httpapi.NewRouter(app.cfg.Issuer, BuildVersion, app.db, app.logger)
	app.router.AuthorizeService = app.authorizeService
	app.router.TokenService = app.tokenService
	app.router.ClientService = app.clientService
	app.router.ApplyRoutes()

	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: app.router,
	}
}
