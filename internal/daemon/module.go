package daemon

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"github.com/fahad7169/chatd/internal/bus"
	"github.com/fahad7169/chatd/internal/cache"
	"github.com/fahad7169/chatd/internal/chat"
	"github.com/fahad7169/chatd/internal/config"
	"github.com/fahad7169/chatd/internal/identity"
	"github.com/fahad7169/chatd/internal/lock"
	"github.com/fahad7169/chatd/internal/logging"
	"github.com/fahad7169/chatd/internal/notify"
	"github.com/fahad7169/chatd/internal/outbox"
	"github.com/fahad7169/chatd/internal/profile"
	"github.com/fahad7169/chatd/internal/remote"
	"github.com/fahad7169/chatd/internal/status"
	intsync "github.com/fahad7169/chatd/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideTracker,
			provideLock,
			provideCache,
			provideFirebaseApp,
			provideStore,
			provideGate,
			provideNotifier,
			provideSender,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		return nil, err
	}
	logger.Info("config loaded",
		zap.String("project", cfg.Firebase.ProjectID),
		zap.Bool("notify", cfg.Notify.Enabled),
	)
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideTracker(b *bus.Bus) *status.Tracker {
	return status.NewTracker(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCache(p Params, _ *lock.Lock, logger *zap.Logger) (*cache.DB, error) {
	dbPath := profile.CacheDBPath(p.ProfileName)
	db, err := cache.Open(dbPath)
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
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideFirebaseApp(cfg *config.Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	return firebase.NewApp(context.Background(),
		&firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
}

func provideStore(cfg *config.Config, logger *zap.Logger) (remote.Store, error) {
	return remote.NewFirestore(context.Background(),
		cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, logger)
}

func provideGate(p Params, app *firebase.App, logger *zap.Logger) (identity.Gate, error) {
	return identity.NewFirebase(context.Background(), app,
		profile.TokenPath(p.ProfileName), logger)
}

func provideNotifier(cfg *config.Config, app *firebase.App, logger *zap.Logger) (notify.Notifier, error) {
	if !cfg.Notify.Enabled {
		logger.Info("push notifications disabled")
		return nil, nil
	}
	return notify.NewFCM(context.Background(), app, logger)
}

func provideSender(store remote.Store, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(store, b, logger)
}

func provideEngine(cfg *config.Config, gate identity.Gate, store remote.Store, db *cache.DB, notifier notify.Notifier, sender *outbox.Sender, tracker *status.Tracker, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(intsync.Params{
		Gate:     gate,
		Store:    store,
		Cache:    db,
		Notifier: notifier,
		Sender:   sender,
		Tracker:  tracker,
		Bus:      b,
		Logger:   logger,
		LocalProfile: chat.Profile{
			Username:    cfg.User.Username,
			PhoneNumber: cfg.User.PhoneNumber,
			ProfilePic:  cfg.User.ProfilePic,
			PushToken:   cfg.User.PushToken,
		},
	})
}

func registerLifecycle(lc fx.Lifecycle, engine *intsync.Engine, store remote.Store, db *cache.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(context.Background())
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			engine.Stop()
			if err := store.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
