package daemon

import (
	"context"
	"fmt"
	"net"

	"github.com/matheus3301/wahub/internal/api"
	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/config"
	"github.com/matheus3301/wahub/internal/fanout"
	"github.com/matheus3301/wahub/internal/hub"
	"github.com/matheus3301/wahub/internal/lock"
	"github.com/matheus3301/wahub/internal/logging"
	"github.com/matheus3301/wahub/internal/media"
	"github.com/matheus3301/wahub/internal/paths"
	"github.com/matheus3301/wahub/internal/store"
	"github.com/matheus3301/wahub/internal/supervisor"
	"github.com/matheus3301/wahub/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
	// Sessions overrides the protocol session factory, for tests.
	Sessions supervisor.SessionFactory
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideLayout,
			provideLock,
			provideStore,
			provideBus,
			provideMedia,
			provideFanout,
			provideSessionFactory,
			provideSupervisor,
			provideHub,
			provideAPI,
			provideControl,
			provideJobs,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	if p.Config == nil {
		return config.Default()
	}
	return p.Config
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.LogFile(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}

func provideLayout(cfg *config.Config) (paths.Layout, error) {
	layout := cfg.Layout()
	if err := layout.EnsureDir(); err != nil {
		return paths.Layout{}, err
	}
	return layout, nil
}

func provideLock(layout paths.Layout, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", layout.Root))
	l, err := lock.Acquire(layout.LockPath())
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by the
// process that owns the data dir.
func provideStore(layout paths.Layout, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := layout.AppDBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed() {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("to", result.To))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.To))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideMedia(cfg *config.Config) *media.Store {
	return media.New(cfg.MediaDir(), cfg.Media.PublicPrefix)
}

func provideFanout(db *store.DB, b *bus.Bus, m *media.Store, cfg *config.Config, logger *zap.Logger) (*fanout.Fanout, error) {
	return fanout.New(db, b, m, fanout.Options{
		DownloadWorkers: cfg.Media.DownloadWorkers,
		HistoryMedia:    cfg.Media.DownloadHistory,
	}, logger)
}

func provideSessionFactory(p Params, cfg *config.Config, layout paths.Layout, logger *zap.Logger) supervisor.SessionFactory {
	if p.Sessions != nil {
		return p.Sessions
	}
	wa.SetDeviceName(cfg.Device.OSName)
	return func(ctx context.Context, id string) (supervisor.Session, error) {
		c, err := wa.NewClient(ctx, id, layout.CredentialDBPath(id), logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func provideSupervisor(db *store.DB, b *bus.Bus, f *fanout.Fanout, m *media.Store, layout paths.Layout,
	factory supervisor.SessionFactory, cfg *config.Config, logger *zap.Logger) *supervisor.Supervisor {
	return supervisor.New(db, b, f, m, layout, factory, supervisor.Options{
		ReconnectDelay:    cfg.Supervisor.ReconnectDelay.Duration,
		ProfileDelay:      cfg.Supervisor.ProfileDelay.Duration,
		ProfileRetryDelay: cfg.Supervisor.ProfileRetryDelay.Duration,
	}, logger)
}

func provideHub(b *bus.Bus, sup *supervisor.Supervisor, logger *zap.Logger) *hub.Hub {
	return hub.New(b, sup, logger)
}

func provideAPI(sup *supervisor.Supervisor, db *store.DB, b *bus.Bus, h *hub.Hub, m *media.Store, logger *zap.Logger) *api.Server {
	return api.NewServer(sup, db, b, h, api.Options{MediaDir: m.Dir(), MediaPrefix: m.Prefix()}, logger)
}

func provideControl(cfg *config.Config, b *bus.Bus, logger *zap.Logger) (*ControlServer, error) {
	return NewControlServer(cfg.SocketPath(), b, logger)
}

func provideJobs(sup *supervisor.Supervisor, db *store.DB, m *media.Store, b *bus.Bus, h *hub.Hub,
	cfg *config.Config, logger *zap.Logger) (*Jobs, error) {
	return NewJobs(sup, db, m, b, h.Clients, JobsOptions{
		SnapshotInterval: cfg.Jobs.SnapshotInterval.Duration,
		MediaGC:          cfg.Jobs.MediaGC,
	}, logger)
}

type lifecycleParams struct {
	fx.In

	Config  *config.Config
	Lock    *lock.Lock
	DB      *store.DB
	Fanout  *fanout.Fanout
	Sup     *supervisor.Supervisor
	Hub     *hub.Hub
	HTTP    *api.Server
	Control *ControlServer
	Jobs    *Jobs
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, p lifecycleParams) {
	logger := p.Logger
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := net.Listen("tcp", p.Config.HTTP.Listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", p.Config.HTTP.Listen, err)
			}
			if err := p.Lock.Advertise(ln.Addr().String()); err != nil {
				logger.Warn("could not advertise http address", zap.Error(err))
			}

			p.Hub.Start()
			p.Control.Start()
			go func() {
				if err := p.HTTP.Serve(ln); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			p.Jobs.Start()

			if p.Config.Supervisor.RestoreOnStart {
				go func() {
					if _, err := p.Sup.Restore(context.Background()); err != nil {
						logger.Error("restore failed", zap.Error(err))
					}
				}()
			}
			logger.Info("daemon started", zap.String("http", ln.Addr().String()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Jobs.Stop()
			if err := p.HTTP.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			p.Hub.Stop()
			if err := p.Sup.Shutdown(ctx); err != nil {
				logger.Warn("supervisor shutdown", zap.Error(err))
			}
			p.Fanout.Close()
			p.Control.Stop(ctx)
			if err := p.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := p.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
