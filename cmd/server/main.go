package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hoangvu12/kaguya-socket/internal/adapters/cache"
	router "github.com/hoangvu12/kaguya-socket/internal/adapters/http"
	ws "github.com/hoangvu12/kaguya-socket/internal/adapters/signal"
	pgstore "github.com/hoangvu12/kaguya-socket/internal/adapters/store"
	"github.com/hoangvu12/kaguya-socket/internal/app"
	"github.com/hoangvu12/kaguya-socket/internal/config"
	"github.com/hoangvu12/kaguya-socket/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var store core.RoomStore
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pg.Close()
		store = pg
		log.Info().Msg("durable store connected")
	} else {
		log.Warn().Msg("database_url not set, durable persistence disabled")
	}

	var snaps core.SnapshotCache
	if cfg.RedisURL != "" {
		rc, err := cache.Open(cfg.RedisURL, cfg.RoomDeleteTime)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rc.Close()
		snaps = rc
		log.Info().Msg("snapshot cache connected")
	} else {
		log.Warn().Msg("redis_url not set, playback state is in-memory only")
	}

	rooms := app.NewRoomManager(app.Options{
		Store:           store,
		Snapshots:       snaps,
		RoomDeleteTime:  cfg.RoomDeleteTime,
		PersistDebounce: cfg.PersistDebounce,
	})
	clock := app.NewClockSync()
	ctl := ws.NewController(rooms, clock, cfg)

	r := router.SetupRouter(ctx, cfg, ctl, rooms)
	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
	}).Handler(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("kaguya socket server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
