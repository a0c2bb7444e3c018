package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kick-haven/internal/config"
	"kick-haven/internal/database"
	"kick-haven/internal/engine"
	"kick-haven/internal/forum"
	"kick-haven/internal/handlers"
	"kick-haven/internal/logging"
	"kick-haven/internal/middleware"
	"kick-haven/internal/utils"
	"kick-haven/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
)

const shutdownTimeout = 10 * time.Second

// app is the wired process: store, reconciler, hub and router.
type app struct {
	store  database.Store
	engine *engine.Engine
	hub    *websocket.Hub
	server *handlers.Server

	cancelHub context.CancelFunc
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	metrics := utils.NewMetricsCollector()

	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if !store.Transactional() {
		logging.Warn().Msg("store has no transactions; counter writes fall back to compensation and reconciliation")
	}

	hub := websocket.NewHub()
	hubCtx, cancelHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	svc, err := forum.NewService(store, metrics, hub, nil)
	if err != nil {
		cancelHub()
		store.Close(ctx)
		return nil, err
	}
	eng := engine.NewEngine(actor.NewActorSystem(), forum.NewCounterAuditor(store, metrics), cfg.Reconcile.Interval, cfg.Database.OpTimeout)
	svc.SetReconciler(eng)
	eng.Start()

	server := handlers.NewServer(svc, eng, store, hub, metrics, middleware.NewAuthenticator(cfg.Auth.JWTSecret, 0))
	server.RequestTimeout = cfg.Server.RequestTimeout
	server.AllowedOrigins = cfg.CORS.AllowedOrigins
	server.VotesPerMinute = cfg.RateLimit.VotesPerMinute
	server.MetricsEnabled = cfg.Server.MetricsEnabled

	return &app{store: store, engine: eng, hub: hub, server: server, cancelHub: cancelHub}, nil
}

// close stops background work, then the store.
func (a *app) close(ctx context.Context) {
	a.engine.Stop()
	a.cancelHub()
	if err := a.store.Close(ctx); err != nil {
		logging.Warn().Err(err).Msg("failed to close store")
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := newApp(startCtx, cfg)
	cancel()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to start")
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", srv.Addr).Str("store", strings.SplitN(cfg.Database.URI, "://", 2)[0]).Msg("kick-haven listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server forced to shutdown")
	}
	a.close(shutdownCtx)
	logging.Info().Msg("server exiting")
}
