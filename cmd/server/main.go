// Command server runs the order bridge: it accepts order webhooks from the
// site, stores them, and drives the operator workflow through a Telegram bot.
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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/changcafe/go-order-bridge/internal/bot"
	"github.com/changcafe/go-order-bridge/internal/config"
	httpapi "github.com/changcafe/go-order-bridge/internal/http"
	"github.com/changcafe/go-order-bridge/internal/observability"
	"github.com/changcafe/go-order-bridge/internal/repo"
	"github.com/changcafe/go-order-bridge/internal/services"
	"github.com/changcafe/go-order-bridge/internal/session"
	"github.com/changcafe/go-order-bridge/internal/telegram"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Optional .env for local development; real deployments use the
	// environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	sessions := newSessionStore(ctx, cfg)

	tg := telegram.NewClient(cfg.Bot.Token)
	notify := services.NewNotifyService(tg, cfg.Bot.OperatorChatID)
	ingest := services.NewIngestService(db, cfg.Bot.Username, notify)
	lifecycle := services.NewLifecycleService(db, notify)
	relay := services.NewRelayService(db, notify)
	b := bot.New(tg, sessions, lifecycle, relay, cfg.Bot.OperatorChatID)

	if cfg.Bot.PublicURL != "" {
		url := strings.TrimRight(cfg.Bot.PublicURL, "/") + "/webhook/telegram/" + cfg.Bot.WebhookSecret
		if err := tg.SetWebhook(ctx, url); err != nil {
			log.Error().Err(err).Msg("telegram webhook registration failed")
		} else {
			log.Info().Msg("telegram webhook registered")
		}
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, b, ingest, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// setupLogging applies the configured level and output format to the global
// zerolog logger.
func setupLogging(cfg config.Config) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// newSessionStore returns a Redis-backed store when an address is configured
// and reachable, and an in-process store otherwise. Session loss is benign
// (the user taps a button again), so Redis being down degrades instead of
// failing startup.
func newSessionStore(ctx context.Context, cfg config.Config) session.Store {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("sessions: using in-memory store")
		return session.NewMemoryStore(cfg.SessionTTL)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("sessions: redis unreachable, falling back to memory")
		_ = client.Close()
		return session.NewMemoryStore(cfg.SessionTTL)
	}

	log.Info().Str("addr", cfg.Redis.Addr).Msg("sessions: using redis")
	return session.NewRedisStore(client, cfg.SessionTTL)
}
