// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-crawler/internal/api"
	"github.com/JakeFAU/creator-crawler/internal/archive"
	"github.com/JakeFAU/creator-crawler/internal/clock/beijing"
	"github.com/JakeFAU/creator-crawler/internal/clock/system"
	"github.com/JakeFAU/creator-crawler/internal/config"
	"github.com/JakeFAU/creator-crawler/internal/credential"
	"github.com/JakeFAU/creator-crawler/internal/crawler"
	"github.com/JakeFAU/creator-crawler/internal/guard"
	"github.com/JakeFAU/creator-crawler/internal/id/uuid"
	"github.com/JakeFAU/creator-crawler/internal/orchestrator"
	"github.com/JakeFAU/creator-crawler/internal/platform/xhs"
	kafkapublisher "github.com/JakeFAU/creator-crawler/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/creator-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/creator-crawler/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/creator-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/creator-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/creator-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/creator-crawler/internal/storage/postgres"
	redisstore "github.com/JakeFAU/creator-crawler/internal/storage/redis"
	sqlitestore "github.com/JakeFAU/creator-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/creator-crawler/internal/session"
	"github.com/JakeFAU/creator-crawler/internal/telemetry"
)

// Engine is a platform crawler that can also manage logins.
type Engine interface {
	crawler.Crawler
	crawler.LoginChecker
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Orchestrator *orchestrator.Orchestrator
	Pool         *credential.Pool
	Engine       Engine
	Profiles     *archive.Syncer
	Sessions     *session.Manager
	Jobs         crawler.JobStore

	apiServer *api.Server
	ready     func(ctx context.Context) error
	closers   []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Build creates the application's dependencies. The caller owns logger.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("engine", cfg.Crawler.Engine),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("db", cfg.DB.Provider),
		zap.String("history", cfg.History.Provider),
		zap.String("events", cfg.Events.Provider),
	)

	tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.onClose("tracer", tp.Shutdown)

	clock := system.New()
	if err := app.setupPool(ctx, clock); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	if err := app.setupArchives(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.setupHistory()
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.Engine = app.setupEngine()

	app.Orchestrator = orchestrator.New(
		guard.New(clock),
		app.Pool,
		app.Engine,
		app.Jobs,
		publisher,
		clock,
		uuid.New(),
		orchestrator.Config{
			BatchSize:     cfg.Crawler.BatchSize,
			BatchInterval: cfg.BatchInterval(),
			Location:      beijing.Location(cfg.Crawler.TimezoneOffsetHours),
			Topic:         cfg.Events.Topic,
		},
		logger.Named("orchestrator"),
	)

	app.Sessions = session.New(app.Pool, app.Engine, app.Profiles, session.Config{
		DefaultAccount: cfg.Credentials.DefaultAccount,
		ArchiveKey:     cfg.ArchiveKey,
		ProfileDir:     app.ProfileDir,
		RunState:       app.Orchestrator.State,
	}, logger.Named("session"))

	app.apiServer = api.NewServer(api.Deps{
		Orchestrator: app.Orchestrator,
		Pool:         app.Pool,
		Sessions:     app.Sessions,
		Jobs:         app.Jobs,
		Ready:        app.ready,
	}, cfg, logger.Named("api"))

	return app, nil
}

// ProfileDir is the local browser profile directory for account.
func (a *App) ProfileDir(account string) string {
	return filepath.Join(a.cfg.Browser.UserDataDir, account)
}

// Submit runs one crawl job in process.
func (a *App) Submit(ctx context.Context, req crawler.JobRequest) (crawler.Report, error) {
	return a.Orchestrator.Submit(ctx, req)
}

// CheckLogin verifies account's login. An empty account means the default account.
func (a *App) CheckLogin(ctx context.Context, account string, opts session.Options) (bool, error) {
	return a.Sessions.Check(ctx, account, opts)
}

// Login runs an interactive login for account.
func (a *App) Login(ctx context.Context, account string, opts session.Options) error {
	return a.Sessions.Login(ctx, account, opts)
}

func (a *App) setupPool(ctx context.Context, clock crawler.Clock) error {
	var store crawler.AccountStore
	switch a.cfg.DB.Provider {
	case config.ProviderPostgres:
		pg, err := pgstore.NewAccountStore(ctx, pgstore.Config{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.Table,
			MaxConns: a.cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres account store init failed: %w", err)
		}
		a.onClose("postgres", func(context.Context) error { pg.Close(); return nil })
		store = pg
		a.logger.Info("postgres account store initialized", zap.String("table", a.cfg.DB.Table))
	case config.ProviderSQLite:
		lite, err := sqlitestore.Open(ctx, a.cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("sqlite account store init failed: %w", err)
		}
		a.onClose("sqlite", func(context.Context) error { return lite.Close() })
		store = lite
		a.logger.Info("sqlite account store initialized", zap.String("path", a.cfg.DB.DSN))
	default:
		a.logger.Warn("no account database configured, login state is kept in memory only")
	}

	a.Pool = credential.NewPool(store, clock, a.logger.Named("credentials"))
	if err := a.Pool.Load(ctx); err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	a.Pool.Register(a.cfg.SeedAccounts()...)
	return nil
}

func (a *App) setupArchives(ctx context.Context) error {
	var store crawler.ArchiveStore
	switch a.cfg.Storage.Provider {
	case config.ProviderGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.onClose("gcs", func(context.Context) error { return client.Close() })
		gcs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs archive store init failed: %w", err)
		}
		store = gcs
		a.logger.Info("using GCS archive store", zap.String("bucket", a.cfg.Storage.GCSBucket))
	default:
		local, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("local archive store init failed: %w", err)
		}
		store = local
		a.logger.Info("using local archive store", zap.String("path", a.cfg.Storage.LocalDir))
	}
	a.Profiles = archive.NewSyncer(store)
	return nil
}

func (a *App) setupHistory() {
	switch a.cfg.History.Provider {
	case config.ProviderRedis:
		rs := redisstore.NewJobStore(a.cfg.History.RedisAddr, redisstore.DefaultPrefix, a.cfg.HistoryTTL())
		a.onClose("redis", func(context.Context) error { return rs.Close() })
		a.Jobs = rs
		a.ready = rs.Ping
		a.logger.Info("using redis job history",
			zap.String("addr", a.cfg.History.RedisAddr),
			zap.Duration("ttl", a.cfg.HistoryTTL()),
		)
	default:
		a.Jobs = memorystorage.NewJobStore()
		a.logger.Info("using in-memory job history")
	}
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	switch a.cfg.Events.Provider {
	case config.ProviderPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		topic := client.Topic(a.cfg.Events.Topic)
		a.onClose("pubsub", func(context.Context) error {
			topic.Stop()
			return client.Close()
		})
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Events.ProjectID),
			zap.String("topic", a.cfg.Events.Topic),
		)
		return gcppublisher.New(topic), nil
	case config.ProviderKafka:
		pub := kafkapublisher.New(a.cfg.Events.KafkaBroker, a.cfg.Events.Topic)
		a.onClose("kafka", func(context.Context) error { return pub.Close() })
		a.logger.Info("kafka publisher initialized",
			zap.String("broker", a.cfg.Events.KafkaBroker),
			zap.String("topic", a.cfg.Events.Topic),
		)
		return pub, nil
	case config.ProviderMemory:
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	default:
		a.logger.Info("completion events disabled")
		return nil, nil
	}
}

func (a *App) setupEngine() Engine {
	if a.cfg.Crawler.Engine == config.EngineHTTP {
		a.logger.Info("using colly crawl engine", zap.String("cookie_dir", a.cfg.Crawler.CookieDir))
		return xhs.NewHTTPCrawler(xhs.HTTPConfig{
			CookieDir: a.cfg.Crawler.CookieDir,
			UserAgent: a.cfg.Crawler.UserAgent,
			Timeout:   a.cfg.RequestTimeout(),
		}, a.logger.Named("xhs_http"))
	}
	a.logger.Info("using chromedp crawl engine", zap.String("user_data_dir", a.cfg.Browser.UserDataDir))
	return xhs.NewBrowserCrawler(xhs.BrowserConfig{
		UserDataDir:  a.cfg.Browser.UserDataDir,
		UserAgent:    a.cfg.Crawler.UserAgent,
		NavTimeout:   time.Duration(a.cfg.Browser.NavTimeoutSeconds) * time.Second,
		LoginTimeout: time.Duration(a.cfg.Browser.LoginTimeoutSeconds) * time.Second,
	}, a.logger.Named("xhs_browser"))
}

// Handler exposes the HTTP handler (tests).
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until ctx is canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases infrastructure in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	if len(a.closers) == 0 {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
