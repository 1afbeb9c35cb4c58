package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ChatCall/internal/adapters/blob"
	router "github.com/dkeye/ChatCall/internal/adapters/http"
	"github.com/dkeye/ChatCall/internal/adapters/presence"
	"github.com/dkeye/ChatCall/internal/adapters/store"
	"github.com/dkeye/ChatCall/internal/app"
	"github.com/dkeye/ChatCall/internal/app/orch"
	"github.com/dkeye/ChatCall/internal/config"
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
	setupLogging(cfg.Log)

	db, err := store.OpenSQLite(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("open database")
	}
	defer func() { _ = store.Close(db) }()
	if err := store.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	blobs, err := blob.NewDiskStore(cfg.Uploads.Dir, "/uploads", cfg.Uploads.MaxBytes)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Uploads.Dir).Msg("prepare uploads dir")
	}
	messages := app.NewMessageService(store.NewMessageStore(db), blobs)

	opts := orch.Options{
		Policy:        app.SimplePolicy{},
		Messages:      messages,
		InviteLimiter: app.NewInviteRateLimiter(cfg.Call.InviteLimit, cfg.Call.InviteWindow),
		ICEWarnWindow: cfg.Call.ICEWarnWindow,
		RingTimeout:   cfg.Call.RingTimeout,
	}
	if cfg.Redis.URL != "" {
		instance := cfg.Redis.Instance
		if instance == "" {
			instance, _ = os.Hostname()
		}
		mirror, err := presence.NewRedisMirror(ctx, cfg.Redis.URL, instance, cfg.Redis.Channel)
		if err != nil {
			log.Error().Err(err).Msg("redis unavailable, presence mirror disabled")
		} else {
			defer func() { _ = mirror.Close() }()
			go mirror.Run(ctx)
			opts.Presence = mirror
			log.Info().Str("instance", instance).Str("channel", cfg.Redis.Channel).Msg("presence mirror enabled")
		}
	}

	coord := orch.New(opts)
	coordDone := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(coordDone)
	}()

	r := router.SetupRouter(ctx, cfg, router.Deps{Coord: coord, Messages: messages})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("ChatCall server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	<-coordDone
	log.Info().Msg("Server exited gracefully")
}

func setupLogging(cfg config.LogConfig) {
	if !cfg.Pretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
