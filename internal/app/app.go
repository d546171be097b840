// Package app wires the gifting bot together: it opens the configured
// snapshot store, builds the vendor clients and the purchase engine, and
// runs the background schedules until shutdown.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/deykows/giftkeeper/internal/accounts"
	"github.com/deykows/giftkeeper/internal/captcha"
	"github.com/deykows/giftkeeper/internal/catalog"
	"github.com/deykows/giftkeeper/internal/commerce"
	"github.com/deykows/giftkeeper/internal/config"
	"github.com/deykows/giftkeeper/internal/engine"
	"github.com/deykows/giftkeeper/internal/identity"
	"github.com/deykows/giftkeeper/internal/kvstore"
	"github.com/deykows/giftkeeper/internal/ledger"
	"github.com/deykows/giftkeeper/internal/logging"
)

type App struct {
	config *config.Config
	logger logging.Logger

	db    *sql.DB // nil for the s3 backend
	store kvstore.Store

	accounts *accounts.Store
	ledger   *ledger.Ledger
	catalog  *catalog.Catalog
	commerce *commerce.Client
	creds    *engine.CredentialManager
	engine   *engine.Orchestrator
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := validate(cfg); err != nil {
		return nil, err
	}

	store, db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	solver := captcha.NewClient(cfg.CaptchaAPIKey, logger, captchaOpts(cfg)...)
	ident := identity.NewClient(solver, logger, identityOpts(cfg)...)
	com := commerce.NewClient(logger, commerceOpts(cfg)...)

	accs := accounts.NewStore(store, []byte(cfg.SealSecret), logger)
	led := ledger.New(store, logger)
	cat := catalog.New(store, logger)

	creds := engine.NewCredentialManager(ident, accs, logger,
		engine.WithRefreshInterval(cfg.CredentialRefreshInterval))
	orch := engine.NewOrchestrator(creds, accs, led, cat, com, logger)

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		store:    store,
		accounts: accs,
		ledger:   led,
		catalog:  cat,
		commerce: com,
		creds:    creds,
		engine:   orch,
	}, nil
}

// Engine exposes the purchase orchestrator for the presentation layer.
func (app *App) Engine() *engine.Orchestrator { return app.engine }

// Accounts exposes the account pool.
func (app *App) Accounts() *accounts.Store { return app.accounts }

// Ledger exposes the local currency ledger.
func (app *App) Ledger() *ledger.Ledger { return app.ledger }

// Catalog exposes the gift catalog.
func (app *App) Catalog() *catalog.Catalog { return app.catalog }

func validate(cfg *config.Config) error {
	switch {
	case cfg.VendorEmail == "" || cfg.VendorPassword == "":
		return errors.New("vendor credentials are not configured")
	case cfg.CaptchaAPIKey == "":
		return errors.New("captcha API key is not configured")
	case cfg.SealSecret == "":
		return errors.New("seal secret is not configured")
	}
	return nil
}

// OpenStore opens the snapshot store selected by the configuration. The
// returned *sql.DB is non-nil only for the database backends and must be
// closed by the caller on shutdown.
func OpenStore(ctx context.Context, cfg *config.Config) (kvstore.Store, *sql.DB, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		return kvstore.OpenSQLite(ctx, cfg.SQLitePath)
	case config.BackendPostgres:
		return kvstore.OpenPostgres(ctx, cfg.DatabaseDSN)
	case config.BackendS3:
		s, err := kvstore.NewS3Store(ctx, kvstore.S3Config{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		})
		return s, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func captchaOpts(cfg *config.Config) []captcha.Option {
	if cfg.CaptchaBaseURL == "" {
		return nil
	}
	return []captcha.Option{captcha.WithBaseURL(cfg.CaptchaBaseURL)}
}

func identityOpts(cfg *config.Config) []identity.Option {
	if cfg.AuthBaseURL == "" {
		return nil
	}
	return []identity.Option{identity.WithBaseURL(cfg.AuthBaseURL)}
}

func commerceOpts(cfg *config.Config) []commerce.Option {
	if cfg.CoreBaseURL == "" {
		return nil
	}
	return []commerce.Option{commerce.WithBaseURL(cfg.CoreBaseURL)}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// load restores all snapshots and guarantees the main account exists with
// the configured vendor credentials.
func (app *App) load(ctx context.Context) error {
	if err := app.accounts.Load(ctx); err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	if err := app.accounts.EnsureMain(ctx, app.config.VendorEmail, app.config.VendorPassword); err != nil {
		return fmt.Errorf("ensuring main account: %w", err)
	}
	if err := app.ledger.Load(ctx); err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}
	if err := app.catalog.Load(ctx); err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	return nil
}

// Run starts the background schedules and blocks until the context is
// cancelled or a signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "backend", app.config.StoreBackend)

	app.initSignalHandler(cancelFunc)

	if err := app.load(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.creds.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runOffersRefresh(ctx)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "closing store", "error", err)
		}
	}

	app.logger.Info(ctx, "app stopped")
	return nil
}
