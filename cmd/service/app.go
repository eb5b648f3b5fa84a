package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"karaoke-service/internal/auth"
	"karaoke-service/internal/config"
	"karaoke-service/internal/logging"
	"karaoke-service/internal/metrics"
	"karaoke-service/internal/playlist"
	"karaoke-service/internal/realtime"
	"karaoke-service/internal/store"
	"karaoke-service/internal/supervisor"
)

// app holds the wired components of one process.
type app struct {
	cfg     *config.Config
	handler http.Handler
	hub     *realtime.Hub
	coord   *playlist.Coordinator
	sweeper *playlist.Sweeper
	relay   *realtime.Relay
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	authority, err := auth.NewAuthority([]byte(cfg.Auth.LinkTokenSecret))
	if err != nil {
		return nil, err
	}
	gate := auth.NewGate(authority)

	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	a.hub = realtime.NewHub()
	var pub playlist.Publisher = a.hub
	if cfg.Realtime.Transport == config.TransportRedis {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		pub = realtime.NewRedisPublisher(rdb, cfg.Redis.Channel)
		a.relay = realtime.NewRelay(rdb, cfg.Redis.Channel, a.hub)
	}

	a.coord = playlist.NewCoordinator(st, pub, authority, playlist.Options{
		SessionTTL:       cfg.Session.DefaultTTL,
		MaxExtendMinutes: cfg.Session.MaxExtendMinutes,
	})
	a.sweeper = playlist.NewSweeper(st, a.coord, cfg.Session.SweepInterval)

	ws := realtime.NewServer(a.hub, realtime.NewDispatcher(gate, a.hub, a.coord), cfg.Server.CORSOrigins)
	a.handler = a.router(gate, ws)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	if a.cfg.Store.Driver != config.DriverPostgres {
		return store.NewMemoryStore(), nil
	}

	pool, err := pgxpool.New(ctx, a.cfg.Store.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := store.AutoMigrate(ctx, pool); err != nil {
		return nil, err
	}
	return store.NewPostgresStore(pool), nil
}

func (a *app) router(gate *auth.Gate, ws *realtime.Server) http.Handler {
	srv := playlist.NewServer(a.coord, gate, a.cfg.Server.CreateRateLimit)
	r := srv.Router(
		middleware.RequestID,
		middleware.RealIP,
		logging.Middleware,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", auth.TokenHeader, "X-Request-Id"},
			ExposedHeaders: []string{playlist.HeaderBroadcastFailed},
			MaxAge:         300,
		}),
		middleware.Timeout(a.cfg.Server.RequestTimeout),
	)
	r.Get("/ws", ws.HandleWS)
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Run starts every long-lived component under the supervisor and blocks
// until ctx is cancelled.
func (a *app) Run(ctx context.Context) error {
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	})

	tree.AddMessagingService(a.hub)
	tree.AddMessagingService(a.sweeper)
	if a.relay != nil {
		tree.AddMessagingService(a.relay)
	}

	httpSrv := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      a.handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(supervisor.NewHTTPService(httpSrv, a.cfg.Server.ShutdownTimeout))

	return tree.Serve(ctx)
}

// Close releases the store and Redis connections. Safe to call twice.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
