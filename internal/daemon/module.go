// Package daemon composes the gateway process: configuration, storage,
// the notifier fan-out, the session manager and the HTTP surface, wired
// with fx lifecycle hooks.
package daemon

import (
	"context"

	"github.com/matheus3301/wagate/internal/config"
	"github.com/matheus3301/wagate/internal/credstore"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/lock"
	"github.com/matheus3301/wagate/internal/logging"
	"github.com/matheus3301/wagate/internal/notify"
	"github.com/matheus3301/wagate/internal/outbox"
	"github.com/matheus3301/wagate/internal/session"
	"github.com/matheus3301/wagate/internal/store"
	"github.com/matheus3301/wagate/internal/sync"
	"github.com/matheus3301/wagate/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module returns the fx module for the gateway daemon.
func Module() fx.Option {
	return fx.Module("daemon",
		fx.Provide(
			config.Load,
			provideLogger,
			provideLock,
			provideStore,
			provideCredStore,
			provideHub,
			provideWebhook,
			provideNotifier,
			provideEmitter,
			provideDialer,
			provideManager,
			provideSender,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath())
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data directory lock acquired", zap.String("dir", cfg.DataDir))
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath)
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
	return db, nil
}

func provideCredStore(db *store.DB, logger *zap.Logger) *credstore.Store {
	return credstore.New(db, logger)
}

func provideHub(cfg *config.Config, logger *zap.Logger) *notify.Hub {
	return notify.NewHub(cfg.APIKey, logger)
}

func provideWebhook(cfg *config.Config, logger *zap.Logger) (*notify.Webhook, error) {
	if !cfg.EnableWebhook {
		return nil, nil
	}
	filter, err := config.LoadEventFilter(cfg.WebhookEventsPath)
	if err != nil {
		return nil, err
	}
	return notify.NewWebhook(cfg.WebhookURL, filter, logger), nil
}

func provideNotifier(hub *notify.Hub, webhook *notify.Webhook, logger *zap.Logger) *notify.Notifier {
	return notify.New(hub, webhook, logger)
}

func provideEmitter(n *notify.Notifier) sync.Emitter {
	return n
}

func provideDialer(cfg *config.Config, logger *zap.Logger) engine.Dialer {
	return wa.NewDialer(cfg, logger)
}

func provideManager(cfg *config.Config, db *store.DB, creds *credstore.Store, dialer engine.Dialer, emitter sync.Emitter, logger *zap.Logger) *session.Manager {
	return session.NewManager(cfg, db, creds, dialer, emitter, logger)
}

func provideSender(db *store.DB, mgr *session.Manager, emitter sync.Emitter, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, mgr, emitter, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, mgr *session.Manager, sender *outbox.Sender, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			sender.Start(context.Background())

			// Restart recovery happens off the start path so a slow
			// engine handshake does not block boot.
			go mgr.Restore(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sender.Stop()
			mgr.Shutdown(ctx)
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
