package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/hive/internal/admin"
	"github.com/matheus3301/hive/internal/auth"
	"github.com/matheus3301/hive/internal/bus"
	"github.com/matheus3301/hive/internal/config"
	"github.com/matheus3301/hive/internal/conversation"
	"github.com/matheus3301/hive/internal/fanout"
	"github.com/matheus3301/hive/internal/httpapi"
	"github.com/matheus3301/hive/internal/journal"
	"github.com/matheus3301/hive/internal/lock"
	"github.com/matheus3301/hive/internal/logging"
	"github.com/matheus3301/hive/internal/metrics"
	"github.com/matheus3301/hive/internal/notify"
	"github.com/matheus3301/hive/internal/outbox"
	"github.com/matheus3301/hive/internal/presence"
	"github.com/matheus3301/hive/internal/realtime"
	"github.com/matheus3301/hive/internal/registry"
	"github.com/matheus3301/hive/internal/relay"
	"github.com/matheus3301/hive/internal/social"
	"github.com/matheus3301/hive/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideLock,
			provideStore,
			bus.New,
			metrics.New,
			registry.New,
			registry.NewRooms,
			presence.NewTracker,
			fanout.New,
			provideVerifier,
			provideDispatcher,
			conversation.NewGateway,
			provideRelay,
			provideSocial,
			provideSessions,
			provideRouter,
			provideWSHandler,
			provideHTTPServer,
			provideJournal,
			providePublisher,
			provideExporter,
			provideAdminService,
			NewAdminServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func nodeName() string {
	host, err := os.Hostname()
	if err != nil {
		return "hived"
	}
	return host
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Path, nodeName(), cfg.Log.Level)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	dir := filepath.Dir(cfg.Store.Path)
	logger.Info("acquiring data dir lock", zap.String("dir", dir))
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second daemon.
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
	logger.Info("store initialized", zap.String("path", cfg.Store.Path))
	return db, nil
}

func provideVerifier(cfg *config.Config) *auth.Verifier {
	return auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
}

func provideDispatcher(cfg *config.Config, db *store.DB, fan *fanout.Fanout, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *notify.Dispatcher {
	return notify.NewDispatcher(db, fan, b, m, logger.Named("notify"), cfg.Limits.FanoutWorkers)
}

func provideRelay(cfg *config.Config, gw *conversation.Gateway, db *store.DB, d *notify.Dispatcher, fan *fanout.Fanout, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *relay.Relay {
	return relay.New(gw, db, d, fan, b, m, logger.Named("relay"), cfg.Server.SendTimeout)
}

func provideSocial(db *store.DB, d *notify.Dispatcher, fan *fanout.Fanout, b *bus.Bus, logger *zap.Logger) *social.Mutator {
	return social.New(db, d, fan, b, logger.Named("social"))
}

func provideSessions(cfg *config.Config, v *auth.Verifier, conns *registry.Registry, rooms *registry.Rooms, tracker *presence.Tracker, db *store.DB, fan *fanout.Fanout, m *metrics.Metrics, logger *zap.Logger) *realtime.Sessions {
	return realtime.NewSessions(v, conns, rooms, tracker, db, fan, m, logger.Named("sessions"), cfg.Server.HandshakeTimeout)
}

func provideRouter(cfg *config.Config, s *realtime.Sessions, rl *relay.Relay, sm *social.Mutator, rooms *registry.Rooms, fan *fanout.Fanout, m *metrics.Metrics, logger *zap.Logger) *realtime.Router {
	return realtime.NewRouter(s, rl, sm, rooms, fan, m, logger.Named("router"), cfg.Limits.EventsPerSecond, cfg.Limits.Burst)
}

func provideWSHandler(cfg *config.Config, s *realtime.Sessions, r *realtime.Router, logger *zap.Logger) *realtime.Handler {
	return realtime.NewHandler(s, r, realtime.HandlerConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SendBuffer:     cfg.Server.SendBuffer,
		WriteTimeout:   cfg.Server.WriteTimeout,
		PingInterval:   cfg.Server.PingInterval,
	}, logger.Named("ws"))
}

func provideHTTPServer(cfg *config.Config, db *store.DB, v *auth.Verifier, sm *social.Mutator, ws *realtime.Handler, m *metrics.Metrics, logger *zap.Logger) *http.Server {
	api := httpapi.New(db, v, sm, ws, m, logger.Named("http"))
	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}
}

func provideJournal(cfg *config.Config, db *store.DB, b *bus.Bus, logger *zap.Logger) *journal.Journal {
	return journal.New(db, b, cfg.Events.Topic, logger.Named("journal"))
}

func providePublisher(cfg *config.Config, logger *zap.Logger) (*outbox.Publisher, error) {
	return outbox.NewPublisher(cfg.Events, logger)
}

// provideExporter returns nil when event export is disabled.
func provideExporter(cfg *config.Config, db *store.DB, pub *outbox.Publisher, m *metrics.Metrics, logger *zap.Logger) *outbox.Exporter {
	if pub == nil {
		return nil
	}
	return outbox.NewExporter(db, pub, m, logger.Named("exporter"), cfg.Events.PollInterval)
}

func provideAdminService(s *realtime.Sessions, rooms *registry.Rooms, db *store.DB, b *bus.Bus, logger *zap.Logger) *admin.Service {
	return admin.NewService(nodeName(), s, rooms, db, b, logger.Named("admin"))
}

type lifecycleParams struct {
	fx.In

	Config     *config.Config
	Lock       *lock.Lock
	DB         *store.DB
	Sessions   *realtime.Sessions
	HTTP       *http.Server
	Admin      *AdminServer
	Journal    *journal.Journal
	Publisher  *outbox.Publisher
	Exporter   *outbox.Exporter
	Shutdowner fx.Shutdowner
	Logger     *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, p lifecycleParams) {
	logger := p.Logger
	var g errgroup.Group

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Presence left over from a crash is stale: nobody is connected yet.
			n, err := p.DB.ResetPresence(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("reset stale presence", zap.Int64("users", n))
			}

			p.Journal.Start(context.Background())
			if p.Exporter != nil {
				p.Exporter.Start(context.Background())
			}

			ln, err := net.Listen("tcp", p.HTTP.Addr)
			if err != nil {
				return err
			}
			logger.Info("http server starting", zap.String("addr", ln.Addr().String()))

			g.Go(func() error {
				if err := p.HTTP.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(p.Admin.Serve)
			go func() {
				if err := g.Wait(); err != nil {
					logger.Error("server exited", zap.Error(err))
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Hijacked websocket connections are not tracked by Shutdown.
			closed := p.Sessions.CloseAll()
			logger.Info("closed live connections", zap.Int("count", closed))
			if err := p.HTTP.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			p.Admin.Stop(ctx)

			if p.Exporter != nil {
				p.Exporter.Stop()
			}
			p.Journal.Stop()
			if p.Exporter != nil {
				// Export what the journal wrote while connections were closing.
				p.Exporter.Flush(ctx)
			}
			if p.Publisher != nil {
				if err := p.Publisher.Close(); err != nil {
					logger.Warn("close event publisher", zap.Error(err))
				}
			}

			if err := p.DB.Close(); err != nil {
				logger.Warn("close store", zap.Error(err))
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
