package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/HoudaChairi/Ft-transcendence/internal/config"
	"github.com/HoudaChairi/Ft-transcendence/internal/housekeeping"
	"github.com/HoudaChairi/Ft-transcendence/internal/matchmaking"
	"github.com/HoudaChairi/Ft-transcendence/internal/registry"
	"github.com/HoudaChairi/Ft-transcendence/internal/server"
	"github.com/HoudaChairi/Ft-transcendence/internal/store"
	"github.com/HoudaChairi/Ft-transcendence/internal/store/memory"
	redisstore "github.com/HoudaChairi/Ft-transcendence/internal/store/redis"
	"github.com/HoudaChairi/Ft-transcendence/internal/store/sqlite"
	"github.com/HoudaChairi/Ft-transcendence/internal/tournament"
)

type serveFlags struct {
	envFile  string
	addr     string
	store    string
	sqlite   string
	redisURL string
	seeding  string
	winScore int
	logLevel string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.envFile)
			if err != nil {
				return err
			}
			applyFlags(cmd, f, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			var level slog.Level
			if err := level.UnmarshalText([]byte(f.logLevel)); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.envFile, "env-file", ".env", "Optional env file with PONG_* settings")
	fl.StringVar(&f.addr, "addr", "", "HTTP listen address (env: PONG_ADDR)")
	fl.StringVar(&f.store, "store", "", "Result store: memory, sqlite, redis (env: PONG_STORE)")
	fl.StringVar(&f.sqlite, "sqlite-path", "", "SQLite database file (env: PONG_SQLITE_PATH)")
	fl.StringVar(&f.redisURL, "redis-url", "", "Redis URL (env: PONG_REDIS_URL)")
	fl.StringVar(&f.seeding, "seeding", "", "Bracket seeding: arrival, random, ranked (env: PONG_SEEDING)")
	fl.IntVar(&f.winScore, "win-score", 0, "Points needed to win (env: PONG_WIN_SCORE)")
	fl.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	return cmd
}

// applyFlags overlays flags the user actually set
func applyFlags(cmd *cobra.Command, f serveFlags, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("addr") {
		cfg.Addr = f.addr
	}
	if set("store") {
		cfg.Store = f.store
	}
	if set("sqlite-path") {
		cfg.SQLitePath = f.sqlite
	}
	if set("redis-url") {
		cfg.RedisURL = f.redisURL
	}
	if set("seeding") {
		cfg.Seeding = f.seeding
	}
	if set("win-score") {
		cfg.Game.WinScore = f.winScore
	}
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.StoreRedis:
		rc := redisstore.DefaultConfig()
		rc.URL = cfg.RedisURL
		return redisstore.New(rc)
	case config.StoreMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func newSeeder(cfg config.Config, st store.Store) tournament.Seeder {
	switch cfg.Seeding {
	case config.SeedRandom:
		return tournament.RandomSeeder{}
	case config.SeedRanked:
		return tournament.RankedSeeder{Tallies: st}
	}
	return tournament.ArrivalSeeder{}
}

// app is the wired server
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  store.Store
	rec    *store.Recorder
	reg    *registry.Registry
	mgr    *matchmaking.Manager
	coord  *tournament.Coordinator
	hub    *server.Hub
	chores *housekeeping.Service
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	clock := clockwork.NewRealClock()

	a := &app{cfg: cfg, logger: logger, store: st}
	a.rec = store.NewRecorder(st, clock, logger)
	a.reg = registry.New()
	a.mgr = matchmaking.New(a.reg, matchmaking.Options{
		Game:      cfg.Game,
		GroupSize: cfg.TournamentSize,
		Clock:     clock,
		Results:   a.rec,
		Logger:    logger,
	})
	a.coord = tournament.New(a.mgr, a.reg, tournament.Options{
		Seeder: newSeeder(cfg, st),
		Clock:  clock,
		Logger: logger,
	})
	a.mgr.SetBracketFormer(a.coord)
	a.hub = server.NewHub(a.reg, a.mgr, server.Options{
		MaxConnsPerIP: cfg.MaxConnsPerIP,
		MaxTotalConns: cfg.MaxTotalConns,
		MessageRate:   cfg.MessageRate,
		MessageBurst:  cfg.MessageBurst,
		Avatars:       st,
		Identity:      server.NewIdentityVerifier(cfg.IdentitySecret),
		Logger:        logger,
	})
	a.chores, err = housekeeping.New(housekeeping.Sources{
		Registry:    a.reg,
		Matchmaking: a.mgr,
		Tournaments: a.coord,
		Recorder:    a.rec,
	}, housekeeping.Options{
		MetricsEvery: cfg.MetricsEvery,
		Retention:    cfg.BracketRetention,
		Clock:        clock,
		Logger:       logger,
	})
	if err != nil {
		a.rec.Close()
		st.Close()
		return nil, err
	}
	return a, nil
}

// close tears down in dependency order: sessions stop, queued results
// drain, then the store closes.
func (a *app) close() {
	if err := a.chores.Shutdown(); err != nil {
		a.logger.Warn("scheduler shutdown", slog.Any("error", err))
	}
	a.mgr.Close()
	a.rec.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close", slog.Any("error", err))
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	runCtx, cancel := context.WithCancel(context.Background())
	// Sessions are abandoned before the hub drops its clients, so a
	// server stop never records forfeits.
	defer func() {
		a.mgr.Close()
		cancel()
	}()
	go a.hub.Run(runCtx)
	go a.coord.Run(runCtx)
	a.chores.Start()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.SetupRoutes(a.hub, a.store),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("server started",
		slog.String("addr", cfg.Addr),
		slog.String("store", cfg.Store),
		slog.String("seeding", cfg.Seeding))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	}
	logger.Info("server stopped")
	return nil
}
