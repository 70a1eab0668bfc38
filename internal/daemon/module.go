package daemon

import (
	"context"

	"github.com/matheus3301/dmchat/internal/api"
	"github.com/matheus3301/dmchat/internal/auth"
	"github.com/matheus3301/dmchat/internal/bus"
	"github.com/matheus3301/dmchat/internal/config"
	"github.com/matheus3301/dmchat/internal/hub"
	"github.com/matheus3301/dmchat/internal/lock"
	"github.com/matheus3301/dmchat/internal/logging"
	"github.com/matheus3301/dmchat/internal/receipts"
	"github.com/matheus3301/dmchat/internal/store"
	"github.com/matheus3301/dmchat/internal/ws"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params selects the configuration passed to the fx module.
type Params struct {
	ConfigPath string
	Config     *config.Config // optional, used as-is instead of reading ConfigPath
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideTokenManager,
			provideAuthenticator,
			provideHub,
			provideTracker,
			provideWSHandler,
			api.NewMessageService,
			api.NewUserService,
			api.NewAdminService,
			provideServices,
			NewServer,
		),
		fx.WithLogger(fxLogger),
		fx.Invoke(registerLifecycle),
	)
}

// fxLogger quiets fx's own events to warnings unless the configured level is
// already stricter.
func fxLogger(logger *zap.Logger) fxevent.Logger {
	named := logger.Named("fx")
	if named.Core().Enabled(zap.InfoLevel) {
		named = named.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	}
	return &fxevent.ZapLogger{Logger: named}
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		path := p.ConfigPath
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		if cfg, err = config.LoadOrDefault(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Path, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring database lock", zap.String("path", lock.Path(cfg.Store.Path)))
	l, err := lock.Acquire(cfg.Store.Path, cfg.Server.Listen)
	if err != nil {
		return nil, err
	}
	logger.Info("database lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened unguarded.
func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	cleared, err := db.ResetPresence(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if cleared > 0 {
		logger.Warn("cleared stale presence", zap.Int64("users", cleared))
	}
	logger.Info("store initialized", zap.String("path", cfg.Store.Path))
	return db, nil
}

func provideTokenManager(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration)
}

func provideAuthenticator(tokens *auth.TokenManager, db *store.DB) *auth.Authenticator {
	return auth.NewAuthenticator(tokens, db)
}

func provideHub(cfg *config.Config, db *store.DB, b *bus.Bus, logger *zap.Logger) *hub.Hub {
	return hub.New(db, b, logger.Named("hub"), hub.Options{
		Fanout:           cfg.Delivery.Fanout,
		MaxContentLength: cfg.Limits.MaxContentLength,
	})
}

func provideTracker(db *store.DB, b *bus.Bus, logger *zap.Logger) *receipts.Tracker {
	return receipts.NewTracker(db, b, logger.Named("receipts"))
}

func provideWSHandler(cfg *config.Config, h *hub.Hub, authn *auth.Authenticator, b *bus.Bus, logger *zap.Logger) *ws.Handler {
	return ws.NewHandler(h, authn, b, logger.Named("ws"), ws.Limits{
		MessagesPerSecond: cfg.Limits.MessagesPerSecond,
		Burst:             cfg.Limits.Burst,
	})
}

func provideServices(authn *auth.Authenticator, m *api.MessageService, u *api.UserService, a *api.AdminService) api.Services {
	return api.Services{Auth: authn, Messages: m, Users: u, Admin: a}
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, h *hub.Hub, lk *lock.Lock, db *store.DB, tracker *receipts.Tracker, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start receipts tracker (subscribes to message.* bus events).
			tracker.Start(context.Background())

			if err := srv.Start(); err != nil {
				tracker.Stop()
				return err
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("error stopping server", zap.Error(err))
			}
			// Upgraded connections outlive the server shutdown; take them
			// offline while the store is still open.
			h.Shutdown(ctx)
			tracker.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
