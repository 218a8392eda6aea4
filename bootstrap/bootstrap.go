// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/xbrlgate/adapters/cache"
	"github.com/artpar/xbrlgate/adapters/clock"
	"github.com/artpar/xbrlgate/adapters/hasher"
	apihttp "github.com/artpar/xbrlgate/adapters/http"
	"github.com/artpar/xbrlgate/adapters/http/admin"
	"github.com/artpar/xbrlgate/adapters/idgen"
	"github.com/artpar/xbrlgate/adapters/memory"
	"github.com/artpar/xbrlgate/adapters/metrics"
	"github.com/artpar/xbrlgate/adapters/postgres"
	"github.com/artpar/xbrlgate/adapters/random"
	"github.com/artpar/xbrlgate/adapters/redis"
	"github.com/artpar/xbrlgate/adapters/sqlite"
	"github.com/artpar/xbrlgate/app"
	"github.com/artpar/xbrlgate/config"
	"github.com/artpar/xbrlgate/ports"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	// Services
	Authorizer *app.Authorizer
	Keys       *app.KeyService
	Recorder   *app.UsageRecorder

	// Stores
	KeyStore   ports.KeyStore
	UsageStore ports.UsageStore
	Ledger     ports.Ledger

	checks  map[string]ports.Pinger
	closers []namedCloser
	stopCh  chan struct{}
	bgWG    sync.WaitGroup
	version string
}

type namedCloser struct {
	name string
	fn   func() error
}

// Options provides optional configuration for application initialization.
type Options struct {
	Version string
	// Output receives logs; default stdout.
	Output io.Writer
	// SkipServer builds services without an HTTP server, used by CLI commands.
	SkipServer bool
}

// New creates and initializes the application from a loaded config holder.
func New(holder *config.Holder, opts Options) (*App, error) {
	cfg := holder.Get()
	logger := NewLogger(cfg.Logging, opts.Output)

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("ledger", cfg.Ledger.Backend).
		Msg("initializing xbrlgate")

	a := &App{
		Logger:  logger,
		Config:  holder,
		checks:  map[string]ports.Pinger{},
		stopCh:  make(chan struct{}),
		version: opts.Version,
	}

	if err := a.init(cfg, opts); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *App) init(cfg *config.Config, opts Options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(cfg.Ledger.Backend)
		a.Logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.initStores(ctx, cfg); err != nil {
		return fmt.Errorf("init stores: %w", err)
	}

	keyHasher, err := hasher.NewHMAC(cfg.Auth.Pepper)
	if err != nil {
		return fmt.Errorf("init key hasher: %w", err)
	}

	tiers, err := cfg.TierLimits()
	if err != nil {
		return err
	}

	var authMetrics ports.AuthMetrics
	var usageMetrics ports.UsageMetrics
	if a.Metrics != nil {
		authMetrics = a.Metrics
		usageMetrics = a.Metrics
	}

	a.Authorizer = app.NewAuthorizer(app.AuthorizerDeps{
		Keys:    a.KeyStore,
		Hasher:  keyHasher,
		Ledger:  a.Ledger,
		Metrics: authMetrics,
		Logger:  a.Logger.With().Str("component", "authorizer").Logger(),
	}, app.AuthorizerConfig{
		Tiers:         tiers,
		StoreTimeout:  cfg.Timeouts.Store,
		LedgerTimeout: cfg.Timeouts.Ledger,
		TouchTimeout:  cfg.Timeouts.Touch,
	})

	a.Keys = app.NewKeyService(app.KeyServiceDeps{
		Keys:   a.KeyStore,
		Ledger: a.Ledger,
		Hasher: keyHasher,
		Random: random.Real{},
		IDGen:  idgen.UUID{},
		Clock:  clock.Real{},
		Logger: a.Logger.With().Str("component", "keys").Logger(),
	}, app.KeyServiceConfig{
		MaxActiveKeys: cfg.Auth.MaxActiveKeys,
		DefaultExpiry: cfg.Auth.DefaultExpiry,
	})

	a.Recorder = app.NewUsageRecorder(a.UsageStore, usageMetrics,
		a.Logger.With().Str("component", "usage").Logger(),
		app.UsageRecorderConfig{
			BufferSize:    cfg.Usage.BufferSize,
			BatchSize:     cfg.Usage.BatchSize,
			FlushInterval: cfg.Usage.FlushInterval,
			WriteTimeout:  cfg.Usage.WriteTimeout,
		})

	a.Config.OnChange(a.applyConfig)

	if opts.SkipServer {
		return nil
	}
	return a.initHTTPServer(cfg)
}

// initStores opens the credential store, the usage store and the ledger.
func (a *App) initStores(ctx context.Context, cfg *config.Config) error {
	var (
		sqliteDB *sqlite.DB
		pgDB     *postgres.DB
	)

	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.addCloser("sqlite", db.Close)
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		sqliteDB = db
		a.KeyStore = sqlite.NewKeyStore(db)
		a.UsageStore = sqlite.NewUsageStore(db)
		a.checks["keys"] = db
		a.Logger.Info().Str("path", cfg.Database.DSN).Msg("sqlite database ready")

	case "postgres":
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:      cfg.Database.DSN,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		a.addCloser("postgres", db.Close)
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		pgDB = db
		a.KeyStore = postgres.NewKeyStore(db)
		a.UsageStore = postgres.NewUsageStore(db)
		a.checks["keys"] = db
		a.Logger.Info().Msg("postgres database ready")

	case "memory":
		store := memory.NewKeyStore()
		a.KeyStore = store
		a.UsageStore = memory.NewUsageStore()
		a.checks["keys"] = store
		a.Logger.Warn().Msg("using in-memory key store, keys are lost on restart")

	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	a.KeyStore = cache.New(a.KeyStore, cache.Config{
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
		Clock:      clock.Real{},
	})
	if cfg.Cache.TTL > 0 {
		a.Logger.Info().Dur("ttl", cfg.Cache.TTL).Msg("key lookup cache enabled")
	}

	switch cfg.Ledger.Backend {
	case "memory":
		l := memory.NewLedger(memory.LedgerConfig{
			CleanupInterval: cfg.Ledger.CleanupInterval,
			Clock:           clock.Real{},
		})
		a.addCloser("memory ledger", l.Close)
		a.Ledger = l

	case "redis":
		client, err := redis.NewClient(ctx, redis.ClientConfig{
			Addr:     cfg.Ledger.Redis.Addr,
			Password: cfg.Ledger.Redis.Password,
			DB:       cfg.Ledger.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.addCloser("redis", client.Close)
		l := redis.NewLedger(client, redis.Options{
			Prefix: cfg.Ledger.Redis.Prefix,
			Grace:  cfg.Ledger.Redis.Grace,
		})
		a.Ledger = l
		a.checks["ledger"] = l
		a.Logger.Info().Str("addr", cfg.Ledger.Redis.Addr).Msg("redis ledger connected")

	case "sqlite":
		if sqliteDB == nil {
			return errors.New("sqlite ledger requires the sqlite database driver")
		}
		l := sqlite.NewLedger(sqliteDB)
		a.Ledger = l
		a.startCleanup(cfg.Ledger.CleanupInterval, l.Cleanup)

	case "postgres":
		if pgDB == nil {
			return errors.New("postgres ledger requires the postgres database driver")
		}
		// One row per key; stale windows restart lazily, nothing to clean up.
		a.Ledger = postgres.NewLedger(pgDB)

	default:
		return fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	if _, ok := a.checks["ledger"]; !ok && cfg.Ledger.Backend != "memory" {
		a.checks["ledger"] = a.checks["keys"]
	}
	return nil
}

// startCleanup periodically deletes counters of windows that have ended.
func (a *App) startCleanup(interval time.Duration, cleanup func(context.Context, time.Time) (int64, error)) {
	if interval <= 0 {
		return
	}
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				n, err := cleanup(ctx, time.Now())
				cancel()
				if err != nil {
					a.Logger.Warn().Err(err).Msg("ledger cleanup failed")
				} else if n > 0 {
					a.Logger.Debug().Int64("deleted", n).Msg("expired rate limit windows removed")
				}
			case <-a.stopCh:
				return
			}
		}
	}()
}

func (a *App) initHTTPServer(cfg *config.Config) error {
	var adminHandler http.Handler
	if cfg.Admin.TokenHash != "" {
		adminHandler = admin.NewHandler(admin.Deps{
			Keys:      a.Keys,
			Usage:     a.UsageStore,
			Checks:    a.checks,
			Hasher:    hasher.NewBcrypt(0),
			TokenHash: cfg.Admin.TokenHash,
			Clock:     clock.Real{},
			Logger:    a.Logger.With().Str("component", "admin").Logger(),
		}).Router()
		a.Logger.Info().Msg("admin API enabled at /admin")
	} else {
		a.Logger.Warn().Msg("admin.token_hash not set, admin API disabled")
	}

	router := apihttp.NewRouter(a.Logger, apihttp.RouterConfig{
		Auth: apihttp.AuthMiddleware(apihttp.AuthDeps{
			Authorizer: a.Authorizer,
			Recorder:   a.Recorder,
			Clock:      clock.Real{},
			Logger:     a.Logger,
			KeyHeader:  cfg.Auth.Header,
		}),
		Health:         apihttp.NewHealthHandler(a.checks),
		Metrics:        a.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		EnableOpenAPI:  cfg.OpenAPI.Enabled,
		AdminHandler:   adminHandler,
		RequestTimeout: cfg.Server.RequestTimeout,
		Version:        a.version,
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return nil
}

// applyConfig reacts to a config reload. Only tiers and the log level take
// effect without a restart.
func (a *App) applyConfig(cfg *config.Config, err error) {
	if a.Metrics != nil {
		a.Metrics.ConfigReloaded(err, time.Now())
	}
	if err != nil {
		return
	}

	tiers, err := cfg.TierLimits()
	if err != nil {
		a.Logger.Error().Err(err).Msg("reloaded tiers rejected")
		return
	}
	a.Authorizer.UpdateTiers(tiers)

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	a.Logger.Info().Int("tiers", len(tiers)).Msg("tier limits applied")
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	if a.HTTPServer == nil {
		return errors.New("app built without http server")
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application: the server drains first, then
// background work, then the usage recorder flushes, then stores close.
func (a *App) Shutdown() error {
	timeout := a.Config.Get().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.Config.Stop()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.Authorizer != nil {
		a.Authorizer.Wait()
	}

	if a.Recorder != nil {
		a.Logger.Info().Int("pending", a.Recorder.Pending()).Msg("flushing usage records")
		if err := a.Recorder.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("usage recorder close error")
		}
	}

	a.closeAll()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

// closeAll stops background loops and closes stores in reverse open order.
func (a *App) closeAll() {
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
	a.bgWG.Wait()

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.Logger.Error().Err(err).Str("store", c.name).Msg("close error")
		}
	}
	a.closers = nil
}

// Checks returns the health checks of the backing stores.
func (a *App) Checks() map[string]ports.Pinger {
	return a.checks
}

// NewLogger builds the process logger. A configured file is written through
// a rotating writer in addition to out.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = out
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	if cfg.File != "" {
		w = zerolog.MultiLevelWriter(w, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}

	return zerolog.New(w).With().Timestamp().Logger()
}
